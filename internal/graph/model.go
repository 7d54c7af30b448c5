package graph

import (
	"fmt"

	"github.com/aretw0/autotron/pkg/domain"
)

// PortResolver returns the declared ports of a node. declared is false for nodes
// with free-form ports, in which case any port name is accepted.
type PortResolver func(nodeID string) (inputs, outputs []string, declared bool)

// DroppedConnection is a connection rejected while building the model.
type DroppedConnection = domain.DroppedConnection

// Model is the validated, ordered form of a graph document.
// It is immutable once built; every load or reload builds a new one.
type Model struct {
	nodes       map[string]domain.NodeSpec
	connections []domain.ConnectionSpec
	dropped     []DroppedConnection
	order       []string
	position    map[string]int
	inbound     map[string][]domain.ConnectionSpec
	backEdges   []domain.ConnectionSpec
}

// Build creates a model from the accepted nodes (in document order) and the raw
// connections. Connections referencing missing nodes or undeclared ports are dropped
// here, never at tick time.
func Build(nodes []domain.NodeSpec, connections []domain.ConnectionSpec, ports PortResolver) *Model {
	m := &Model{
		nodes:    make(map[string]domain.NodeSpec, len(nodes)),
		position: make(map[string]int, len(nodes)),
		inbound:  make(map[string][]domain.ConnectionSpec),
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		m.nodes[n.ID] = n
		index[n.ID] = i
	}

	seen := make(map[domain.ConnectionSpec]struct{}, len(connections))
	for _, c := range connections {
		if reason := m.check(c, ports); reason != "" {
			m.dropped = append(m.dropped, DroppedConnection{Connection: c, Reason: reason})
			continue
		}
		if _, dup := seen[c]; dup {
			m.dropped = append(m.dropped, DroppedConnection{Connection: c, Reason: "duplicate connection"})
			continue
		}
		seen[c] = struct{}{}
		m.connections = append(m.connections, c)
		m.inbound[c.Target] = append(m.inbound[c.Target], c)
	}

	m.order = topoSort(nodes, index, m.connections)
	for i, id := range m.order {
		m.position[id] = i
	}
	for _, c := range m.connections {
		if m.position[c.Source] >= m.position[c.Target] {
			m.backEdges = append(m.backEdges, c)
		}
	}
	return m
}

func (m *Model) check(c domain.ConnectionSpec, ports PortResolver) string {
	if _, ok := m.nodes[c.Source]; !ok {
		return fmt.Sprintf("source node %q does not exist", c.Source)
	}
	if _, ok := m.nodes[c.Target]; !ok {
		return fmt.Sprintf("target node %q does not exist", c.Target)
	}
	if c.SourceOutput == "" || c.TargetInput == "" {
		return "missing port name"
	}
	if ports == nil {
		return ""
	}
	if _, outs, declared := ports(c.Source); declared && !contains(outs, c.SourceOutput) {
		return fmt.Sprintf("node %q has no output %q", c.Source, c.SourceOutput)
	}
	if ins, _, declared := ports(c.Target); declared && !contains(ins, c.TargetInput) {
		return fmt.Sprintf("node %q has no input %q", c.Target, c.TargetInput)
	}
	return ""
}

// topoSort orders nodes so that every node comes after its same-tick upstream
// nodes. Strongly connected components are ordered topologically (ties broken by
// document order) and the members of a cycle are emitted in document order; the
// edges of a cycle that point backwards in that order become back-edges.
func topoSort(nodes []domain.NodeSpec, index map[string]int, conns []domain.ConnectionSpec) []string {
	adj := make(map[string][]string)
	for _, c := range conns {
		if c.Source != c.Target {
			adj[c.Source] = append(adj[c.Source], c.Target)
		}
	}

	comp := stronglyConnected(nodes, adj)

	// Condensation: one vertex per component, keyed by its lowest document index.
	members := make(map[int][]string)
	for _, n := range nodes {
		members[comp[n.ID]] = append(members[comp[n.ID]], n.ID)
	}
	lowest := make(map[int]int, len(members))
	for c, ids := range members {
		lowest[c] = index[ids[0]]
	}

	indegree := make(map[int]int, len(members))
	downstream := make(map[int][]int)
	for _, c := range conns {
		from, to := comp[c.Source], comp[c.Target]
		if from == to {
			continue
		}
		indegree[to]++
		downstream[from] = append(downstream[from], to)
	}

	order := make([]string, 0, len(nodes))
	done := make(map[int]bool, len(members))
	for len(done) < len(members) {
		next, best := -1, len(nodes)
		for c := range members {
			if !done[c] && indegree[c] == 0 && lowest[c] < best {
				next, best = c, lowest[c]
			}
		}
		done[next] = true
		order = append(order, members[next]...)
		for _, t := range downstream[next] {
			indegree[t]--
		}
	}
	return order
}

// stronglyConnected labels every node with its component (Tarjan).
func stronglyConnected(nodes []domain.NodeSpec, adj map[string][]string) map[string]int {
	var (
		counter int
		stack   []string
		onStack = make(map[string]bool)
		idx     = make(map[string]int)
		low     = make(map[string]int)
		comp    = make(map[string]int)
		next    int
	)

	var visit func(v string)
	visit = func(v string) {
		idx[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, seen := idx[w]; !seen {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], idx[w])
			}
		}

		if low[v] == idx[v] {
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp[w] = next
				if w == v {
					break
				}
			}
			next++
		}
	}

	for _, n := range nodes {
		if _, seen := idx[n.ID]; !seen {
			visit(n.ID)
		}
	}
	return comp
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Order returns node ids in evaluation order.
func (m *Model) Order() []string {
	return append([]string(nil), m.order...)
}

// Node returns the NodeSpec of a node in the model.
func (m *Model) Node(id string) (domain.NodeSpec, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// Inbound returns the connections feeding a node, in document order.
func (m *Model) Inbound(id string) []domain.ConnectionSpec {
	return m.inbound[id]
}

// Position returns the evaluation index of a node, or -1.
func (m *Model) Position(id string) int {
	if p, ok := m.position[id]; ok {
		return p
	}
	return -1
}

// IsBackEdge reports whether a connection is read as the previous tick's value.
func (m *Model) IsBackEdge(c domain.ConnectionSpec) bool {
	return m.Position(c.Source) >= m.Position(c.Target)
}

// Connections returns the accepted connections.
func (m *Model) Connections() []domain.ConnectionSpec {
	return append([]domain.ConnectionSpec(nil), m.connections...)
}

// BackEdges returns the connections that close a cycle.
func (m *Model) BackEdges() []domain.ConnectionSpec {
	return append([]domain.ConnectionSpec(nil), m.backEdges...)
}

// Dropped returns the connections rejected at build time.
func (m *Model) Dropped() []DroppedConnection {
	return append([]DroppedConnection(nil), m.dropped...)
}

// NodeCount returns the number of nodes in the model.
func (m *Model) NodeCount() int { return len(m.nodes) }
