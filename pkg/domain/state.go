package domain

import (
	"encoding/json"
	"time"
)

// RuntimeState is the lifecycle position of the graph runtime.
type RuntimeState string

const (
	StateStopped RuntimeState = "stopped"
	StateLoaded  RuntimeState = "loaded"
	StateRunning RuntimeState = "running"
)

// Status is a read-only snapshot of the runtime, as served to the control surface.
type Status struct {
	State              RuntimeState  `json:"state"`
	Running            bool          `json:"running"`
	NodeCount          int           `json:"nodeCount"`
	ConnectionCount    int           `json:"connectionCount"`
	DroppedConnections int           `json:"droppedConnections"`
	TickCount          uint64        `json:"tickCount"`
	LastTickTime       *time.Time    `json:"lastTickTime,omitempty"`
	StartedAt          *time.Time    `json:"startedAt,omitempty"`
	Uptime             time.Duration `json:"-"`
	FrontendActive     bool          `json:"frontendActive"`
	FrontendLastSeen   *time.Time    `json:"frontendLastSeen,omitempty"`
}

// MarshalJSON reports Uptime as fractional seconds under "uptimeSeconds".
func (s Status) MarshalJSON() ([]byte, error) {
	type plain Status
	return json.Marshal(struct {
		plain
		UptimeSeconds float64 `json:"uptimeSeconds"`
	}{plain(s), s.Uptime.Seconds()})
}
