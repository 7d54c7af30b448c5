package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/autotron/internal/metrics"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestHooksRecordActivity(t *testing.T) {
	m := metrics.New()
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnTick(ctx, &domain.TickEvent{Duration: time.Millisecond})
	hooks.OnTick(ctx, &domain.TickEvent{Duration: time.Millisecond})
	hooks.OnNodeError(ctx, &domain.NodeErrorEvent{NodeType: "logic"})
	hooks.OnCommand(ctx, &domain.CommandEvent{})
	hooks.OnCommand(ctx, &domain.CommandEvent{Suppressed: true})
	hooks.OnCommand(ctx, &domain.CommandEvent{Retry: true})
	hooks.OnAudit(ctx, &domain.AuditEvent{Report: domain.AuditReport{Checked: 5, Mismatched: 1, Unknown: 1}})

	body := scrape(t, m)
	assert.Contains(t, body, "autotron_ticks_total 2")
	assert.Contains(t, body, `autotron_node_errors_total{node_type="logic"} 1`)
	assert.Contains(t, body, `autotron_commands_total{outcome="sent"} 1`)
	assert.Contains(t, body, `autotron_commands_total{outcome="suppressed"} 1`)
	assert.Contains(t, body, `autotron_commands_total{outcome="retry"} 1`)
	assert.Contains(t, body, `autotron_audit_entities{result="ok"} 3`)
	assert.Contains(t, body, "autotron_audits_total 1")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := metrics.New(), metrics.New()
	a.Hooks().OnTick(context.Background(), &domain.TickEvent{})
	assert.Contains(t, scrape(t, a), "autotron_ticks_total 1")
	assert.Contains(t, scrape(t, b), "autotron_ticks_total 0")
}
