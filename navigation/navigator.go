package navigation

import (
	"errors"
	"log"
)

var (
	ErrNoPath      = errors.New("no path")
	ErrPathCycle   = errors.New("path revisits a node")
	ErrMissingEdge = errors.New("missing edge between path nodes")
)

// Navigator owns the factory graph and the node reservations of every vehicle.
// It is not safe for concurrent use; callers serialize access.
type Navigator struct {
	graph  *FactoryGraph
	blocks []NodeBlock
}

func NewNavigator(g *FactoryGraph) *Navigator {
	return &Navigator{graph: g}
}

func (n *Navigator) Graph() *FactoryGraph { return n.graph }

// Reconfigure swaps in a rebuilt graph and drops reservations on nodes it no longer has.
func (n *Navigator) Reconfigure(g *FactoryGraph) {
	n.graph = g
	kept := n.blocks[:0]
	for _, b := range n.blocks {
		if g.HasNode(b.NodeID) {
			kept = append(kept, b)
		}
	}
	n.blocks = kept
	log.Printf("navigation: layout reconfigured (%d nodes, %d edges, %d reservations kept)",
		len(g.nodes), len(g.edges), len(n.blocks))
}

// Path returns the shortest route for vehicle avoiding nodes reserved by other vehicles,
// or nil when either endpoint is unknown or no route exists.
func (n *Navigator) Path(start, target, vehicle string) *Path {
	if n.graph == nil {
		return nil
	}
	return n.graph.shortestPath(start, target, n.BlockedFor(vehicle))
}
