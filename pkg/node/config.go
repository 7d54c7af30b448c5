package node

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode applies persisted properties onto a typed configuration struct.
// Values are weakly typed (json.Number, "true", 1 all decode into the target field).
// Keys the struct does not know about are returned as extra so they survive a
// Serialize/Restore round trip.
func Decode(saved map[string]any, cfg any) (map[string]any, error) {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := dec.Decode(saved); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}

	if len(md.Unused) == 0 {
		return nil, nil
	}
	extra := make(map[string]any, len(md.Unused))
	for _, key := range md.Unused {
		extra[key] = saved[key]
	}
	return extra, nil
}

// Encode turns a typed configuration struct back into a properties map,
// merging extra keys underneath the typed ones.
func Encode(cfg any, extra map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		out[k] = v
	}

	var typed map[string]any
	if err := mapstructure.Decode(cfg, &typed); err != nil {
		return nil, fmt.Errorf("failed to encode properties: %w", err)
	}
	for k, v := range typed {
		out[k] = v
	}
	return out, nil
}
