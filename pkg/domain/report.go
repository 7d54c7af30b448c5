package domain

// DroppedConnection is a connection rejected while building the graph model.
type DroppedConnection struct {
	Connection ConnectionSpec `json:"connection"`
	Reason     string         `json:"reason"`
}

// GraphReport describes how a document was turned into the running graph.
type GraphReport struct {
	// Order is the evaluation order of one tick.
	Order []string `json:"order"`
	// Skipped holds nodes whose type is not registered.
	Skipped   []string            `json:"skipped,omitempty"`
	Dropped   []DroppedConnection `json:"dropped,omitempty"`
	BackEdges []ConnectionSpec    `json:"back_edges,omitempty"`
}
