package navigation

import (
	"fmt"

	"ffcentral/protocol"
)

type Node struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	ModuleType string `json:"moduleType,omitempty"`
}

// IsModule reports whether vehicles dock at this node.
func (n Node) IsModule() bool { return n.Type == protocol.NodeModule }

type Edge struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Length    float64 `json:"length"`
	Direction string  `json:"direction,omitempty"`
}

// ID is the wire identifier of the edge.
func (e Edge) ID() string { return e.From + "-" + e.To }

// FactoryGraph is the static navigation topology. It is read-only once built.
type FactoryGraph struct {
	nodes []Node
	index map[string]int
	edges []Edge
	pair  map[[2]string]int
}

var opposite = map[string]string{
	protocol.North: protocol.South,
	protocol.South: protocol.North,
	protocol.East:  protocol.West,
	protocol.West:  protocol.East,
}

// NewFactoryGraph validates a layout and builds the graph from it.
func NewFactoryGraph(layout *protocol.Layout) (*FactoryGraph, error) {
	g := &FactoryGraph{
		index: make(map[string]int, len(layout.Nodes)),
		pair:  make(map[[2]string]int),
	}
	for _, ln := range layout.Nodes {
		if ln.ID == "" {
			return nil, fmt.Errorf("layout node without id")
		}
		if _, dup := g.index[ln.ID]; dup {
			return nil, fmt.Errorf("duplicate layout node %s", ln.ID)
		}
		typ := ln.Type
		if typ == "" {
			typ = protocol.NodeIntersection
		}
		g.index[ln.ID] = len(g.nodes)
		g.nodes = append(g.nodes, Node{ID: ln.ID, Type: typ, ModuleType: ln.ModuleType})
	}
	for _, le := range layout.Edges {
		if err := g.addEdge(le.From, le.To, le.Length, le.Direction); err != nil {
			return nil, err
		}
		if le.Bidirectional {
			if err := g.addEdge(le.To, le.From, le.Length, opposite[le.Direction]); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func (g *FactoryGraph) addEdge(from, to string, length float64, direction string) error {
	if _, ok := g.index[from]; !ok {
		return fmt.Errorf("edge %s-%s: unknown node %s", from, to, from)
	}
	if _, ok := g.index[to]; !ok {
		return fmt.Errorf("edge %s-%s: unknown node %s", from, to, to)
	}
	if from == to {
		return fmt.Errorf("edge %s-%s: self loop", from, to)
	}
	if length < 0 {
		return fmt.Errorf("edge %s-%s: negative length", from, to)
	}
	if direction != "" {
		if _, ok := opposite[direction]; !ok {
			return fmt.Errorf("edge %s-%s: invalid direction %q", from, to, direction)
		}
	}
	key := [2]string{from, to}
	if i, dup := g.pair[key]; dup {
		// keep the shorter of parallel edges
		if length < g.edges[i].Length {
			g.edges[i].Length = length
			g.edges[i].Direction = direction
		}
		return nil
	}
	g.pair[key] = len(g.edges)
	g.edges = append(g.edges, Edge{From: from, To: to, Length: length, Direction: direction})
	return nil
}

func (g *FactoryGraph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

func (g *FactoryGraph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

func (g *FactoryGraph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

func (g *FactoryGraph) HasNode(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Edge returns the directed edge between two nodes.
func (g *FactoryGraph) Edge(from, to string) (Edge, bool) {
	i, ok := g.pair[[2]string{from, to}]
	if !ok {
		return Edge{}, false
	}
	return g.edges[i], true
}

// ModuleNodes returns the module nodes of the given module type, or all module nodes when moduleType is empty.
func (g *FactoryGraph) ModuleNodes(moduleType string) []Node {
	var out []Node
	for _, n := range g.nodes {
		if n.IsModule() && (moduleType == "" || n.ModuleType == moduleType) {
			out = append(out, n)
		}
	}
	return out
}
