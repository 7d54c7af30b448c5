package domain

import "time"

// Expectation is what the runtime believes an entity should look like, and who says so.
type Expectation struct {
	EntityID string     `json:"entity_id"`
	State    Attributes `json:"state"`
	// Source names the producer: "node:<id>" or "command:<id>".
	Source string `json:"source"`
	// Override is the active exclusive override mode for the entity, if any.
	Override string `json:"override,omitempty"`
}

// AuditRecord is the outcome of comparing one entity's expected and actual state.
type AuditRecord struct {
	EntityID      string     `json:"entity_id"`
	ExpectedState Attributes `json:"expected_state"`
	ActualState   Attributes `json:"actual_state,omitempty"`
	Mismatch      bool       `json:"mismatch"`
	// Unknown is set when the actual state could not be queried.
	Unknown       bool      `json:"unknown,omitempty"`
	MismatchKeys  []string  `json:"mismatch_keys,omitempty"`
	Source        string    `json:"source"`
	Override      string    `json:"override,omitempty"`
	Error         string    `json:"error,omitempty"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// AuditReport summarizes one audit pass.
type AuditReport struct {
	Checked    int           `json:"checked"`
	Mismatched int           `json:"mismatched"`
	Unknown    int           `json:"unknown"`
	Details    []AuditRecord `json:"details"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}
