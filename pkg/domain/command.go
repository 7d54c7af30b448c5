package domain

import "time"

// Command actions issued by actuator nodes.
const (
	ActionTurnOn  = "turn_on"
	ActionTurnOff = "turn_off"
	ActionSet     = "set"
)

// Command is a request for a device to reach a desired state.
type Command struct {
	EntityID string     `json:"entity_id"`
	Action   string     `json:"action"`
	Desired  Attributes `json:"desired"`
}

// TrackedCommand is a ledger entry: a command that was sent and, eventually,
// the state update that acknowledged it.
type TrackedCommand struct {
	ID             string     `json:"id"`
	EntityID       string     `json:"entity_id"`
	Action         string     `json:"action"`
	DesiredState   Attributes `json:"desired_state"`
	IssuedAt       time.Time  `json:"issued_at"`
	SourceNodeID   string     `json:"source_node_id"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedState Attributes `json:"confirmed_state,omitempty"`

	// Mismatch is set on confirmation when the reported state disagrees with
	// DesiredState: the device answered, but not with what was asked.
	Mismatch bool `json:"mismatch,omitempty"`

	// Attempts counts resends made by the retry/verify loop.
	Attempts int `json:"attempts,omitempty"`
}

// Confirmed reports whether a state update has been matched to this command.
func (c TrackedCommand) Confirmed() bool {
	return c.ConfirmedAt != nil
}

// Verified reports whether the command was confirmed with the desired state.
func (c TrackedCommand) Verified() bool {
	return c.Confirmed() && !c.Mismatch
}

// StateUpdate is an inbound event from the actuation boundary.
type StateUpdate struct {
	EntityID   string     `json:"entity_id"`
	Attributes Attributes `json:"attributes"`
	Timestamp  time.Time  `json:"timestamp"`
}
