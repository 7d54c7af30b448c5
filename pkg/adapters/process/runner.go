package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"github.com/aretw0/autotron/internal/logging"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/ports"
	"github.com/spf13/cast"
)

// ExitUnreachable is the exit status a bridge uses for an unreachable device.
const ExitUnreachable = 3

// Bridge implements ports.Actuator by running the configured executable.
type Bridge struct {
	cfg    Config
	logger *slog.Logger
}

var _ ports.Actuator = (*Bridge)(nil)

// BridgeOption configures the bridge.
type BridgeOption func(*Bridge)

// WithLogger sets the logger used for bridge stderr and failures.
func WithLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// NewBridge creates a bridge for cfg.
func NewBridge(cfg Config, opts ...BridgeOption) *Bridge {
	b := &Bridge{cfg: cfg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Actuate hands cmd to the bridge.
func (b *Bridge) Actuate(ctx context.Context, cmd domain.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	env := []string{"AUTOTRON_ACTION=" + cmd.Action}
	for k, v := range cmd.Desired {
		env = append(env, fmt.Sprintf("AUTOTRON_ATTR_%s=%s", envKey(k), envValue(v)))
	}

	_, err = b.run(ctx, "actuate", cmd.EntityID, payload, env)
	return err
}

// Query asks the bridge for the reported attributes of entityID.
func (b *Bridge) Query(ctx context.Context, entityID string) (domain.Attributes, error) {
	out, err := b.run(ctx, "query", entityID, nil, nil)
	if err != nil {
		return nil, err
	}

	var attrs domain.Attributes
	if err := json.Unmarshal(bytes.TrimSpace(out), &attrs); err != nil {
		return nil, fmt.Errorf("bridge returned invalid attributes for %s: %w", entityID, err)
	}
	if attrs == nil {
		return nil, fmt.Errorf("%w: %s: bridge returned no state", domain.ErrActuationUnreachable, entityID)
	}
	return attrs, nil
}

func (b *Bridge) run(ctx context.Context, verb, entityID string, stdin []byte, env []string) ([]byte, error) {
	args := append(append([]string{}, b.cfg.Args...), verb, entityID)
	cmd := exec.CommandContext(ctx, b.cfg.Command, args...)
	cmd.Dir = b.cfg.Dir

	// Arguments travel as environment variables, never as extra flags.
	cmd.Env = append(cmd.Environ(), "AUTOTRON_ENTITY_ID="+entityID)
	for k, v := range b.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, env...)

	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		b.logger.DebugContext(ctx, "Bridge stderr", "verb", verb, "entity_id", entityID, "stderr", msg)
	}
	if err == nil {
		return stdout.Bytes(), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == ExitUnreachable {
		return nil, fmt.Errorf("%w: %s", domain.ErrActuationUnreachable, entityID)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("bridge %s %s: %w", verb, entityID, ctx.Err())
	}
	return nil, fmt.Errorf("bridge %s %s failed: %w: %s", verb, entityID, err, strings.TrimSpace(stderr.String()))
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

func envKey(k string) string {
	return strings.ToUpper(nonAlnum.ReplaceAllString(k, "_"))
}

// envValue renders primitives as text and everything else as JSON.
func envValue(v any) string {
	switch v.(type) {
	case string, bool, int, int64, float64, json.Number:
		return cast.ToString(v)
	case nil:
		return ""
	}
	if raw, err := json.Marshal(v); err == nil {
		return string(raw)
	}
	return fmt.Sprintf("%v", v)
}
