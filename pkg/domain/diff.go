package domain

import "sort"

// DocumentDiff represents the node-level changes between two graph documents.
// It is designed to be serialized to JSON and returned from a hot reload.
type DocumentDiff struct {
	// Added holds ids present only in the new document.
	Added []string `json:"added,omitempty"`

	// Removed holds ids present only in the old document.
	Removed []string `json:"removed,omitempty"`

	// Retyped holds ids whose node type changed; they are rebuilt.
	Retyped []string `json:"retyped,omitempty"`

	// Reconfigured holds ids with the same type but different properties.
	Reconfigured []string `json:"reconfigured,omitempty"`

	// Kept holds ids with the same type and properties.
	Kept []string `json:"kept,omitempty"`

	ConnectionsAdded   int `json:"connections_added,omitempty"`
	ConnectionsRemoved int `json:"connections_removed,omitempty"`
}

// Diff calculates the difference between oldDoc and newDoc.
// If oldDoc is nil, every node of newDoc is reported as added (initial load).
func Diff(oldDoc, newDoc *Document) *DocumentDiff {
	diff := &DocumentDiff{}
	if newDoc == nil {
		newDoc = &Document{}
	}

	oldNodes := make(map[string]NodeSpec)
	if oldDoc != nil {
		for _, n := range oldDoc.Nodes {
			oldNodes[n.ID] = n
		}
	}

	newIDs := make(map[string]struct{}, len(newDoc.Nodes))
	for _, n := range newDoc.Nodes {
		newIDs[n.ID] = struct{}{}
		prev, exists := oldNodes[n.ID]
		switch {
		case !exists:
			diff.Added = append(diff.Added, n.ID)
		case prev.Name != n.Name:
			diff.Retyped = append(diff.Retyped, n.ID)
		case !EqualJSON(prev.Data.Properties, n.Data.Properties):
			diff.Reconfigured = append(diff.Reconfigured, n.ID)
		default:
			diff.Kept = append(diff.Kept, n.ID)
		}
	}

	for id := range oldNodes {
		if _, exists := newIDs[id]; !exists {
			diff.Removed = append(diff.Removed, id)
		}
	}
	sort.Strings(diff.Removed)

	diff.ConnectionsAdded, diff.ConnectionsRemoved = diffConnections(oldDoc, newDoc)
	return diff
}

func diffConnections(oldDoc, newDoc *Document) (added, removed int) {
	oldSet := make(map[ConnectionSpec]struct{})
	if oldDoc != nil {
		for _, c := range oldDoc.Connections {
			oldSet[c] = struct{}{}
		}
	}
	newSet := make(map[ConnectionSpec]struct{}, len(newDoc.Connections))
	for _, c := range newDoc.Connections {
		newSet[c] = struct{}{}
		if _, ok := oldSet[c]; !ok {
			added++
		}
	}
	for c := range oldSet {
		if _, ok := newSet[c]; !ok {
			removed++
		}
	}
	return added, removed
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *DocumentDiff) IsEmpty() bool {
	return len(d.Added) == 0 &&
		len(d.Removed) == 0 &&
		len(d.Retyped) == 0 &&
		len(d.Reconfigured) == 0 &&
		d.ConnectionsAdded == 0 &&
		d.ConnectionsRemoved == 0
}
