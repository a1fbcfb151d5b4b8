package navigation

import (
	"fmt"
	"time"

	"ffcentral/protocol"
)

// OrderRequest describes one vehicle navigation. Dock is attached to the final DOCK action.
type OrderRequest struct {
	Start         string
	Target        string
	OrderID       string
	OrderUpdateID int
	Vehicle       string
	ActionID      string
	Dock          *protocol.ActionMetadata
}

// Order routes req and converts the route into a vehicle order. The returned
// path is what the caller should reserve once the order is sent.
func (n *Navigator) Order(req OrderRequest) (*protocol.FtsOrder, *Path, error) {
	path := n.Path(req.Start, req.Target, req.Vehicle)
	if path == nil {
		return nil, nil, fmt.Errorf("%w from %s to %s for %s", ErrNoPath, req.Start, req.Target, req.Vehicle)
	}
	order := &protocol.FtsOrder{
		Timestamp:     time.Now().UTC(),
		OrderID:       req.OrderID,
		OrderUpdateID: req.OrderUpdateID,
		SerialNumber:  req.Vehicle,
	}
	if path.Distance == 0 {
		order.Nodes = []protocol.FtsNode{{
			ID:          req.Target,
			LinkedEdges: []string{},
			Action:      dockAction(req),
		}}
		order.Edges = []protocol.FtsEdge{}
		return order, path, nil
	}
	nodes, edges, err := n.graph.convert(path, req)
	if err != nil {
		return nil, nil, err
	}
	order.Nodes = nodes
	order.Edges = edges
	return order, path, nil
}

func dockAction(req OrderRequest) *protocol.NodeAction {
	return &protocol.NodeAction{ID: req.ActionID, Type: protocol.NodeActionDock, Metadata: req.Dock}
}

// convert turns a node path into wire nodes and edges with inferred actions.
func (g *FactoryGraph) convert(path *Path, req OrderRequest) ([]protocol.FtsNode, []protocol.FtsEdge, error) {
	seen := make(map[string]bool, len(path.Nodes))
	for _, id := range path.Nodes {
		if seen[id] {
			return nil, nil, fmt.Errorf("%w: %s", ErrPathCycle, id)
		}
		seen[id] = true
	}

	last := len(path.Nodes) - 1
	edges := make([]Edge, 0, last)
	wireEdges := make([]protocol.FtsEdge, 0, last)
	for i := 0; i < last; i++ {
		e, ok := g.Edge(path.Nodes[i], path.Nodes[i+1])
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s-%s", ErrMissingEdge, path.Nodes[i], path.Nodes[i+1])
		}
		edges = append(edges, e)
		wireEdges = append(wireEdges, protocol.FtsEdge{
			ID:          e.ID(),
			Length:      e.Length,
			LinkedNodes: []string{e.From, e.To},
		})
	}

	nodes := make([]protocol.FtsNode, 0, len(path.Nodes))
	for i, id := range path.Nodes {
		node := protocol.FtsNode{ID: id, LinkedEdges: []string{}}
		if i > 0 {
			node.LinkedEdges = append(node.LinkedEdges, edges[i-1].ID())
		}
		if i < last {
			node.LinkedEdges = append(node.LinkedEdges, edges[i].ID())
		}
		switch {
		case i == last:
			node.Action = dockAction(req)
		case i > 0:
			action := inferAction(edges[i-1].Direction, edges[i].Direction)
			if action != nil {
				action.ID = req.ActionID + "-" + id
			}
			node.Action = action
		}
		nodes = append(nodes, node)
	}
	return nodes, wireEdges, nil
}

var compass = map[string]int{
	protocol.North: 0,
	protocol.East:  1,
	protocol.South: 2,
	protocol.West:  3,
}

// inferAction derives PASS or TURN from the inbound and outbound edge directions.
// It returns nil when either direction is unknown.
func inferAction(in, out string) *protocol.NodeAction {
	from, ok := compass[in]
	if !ok {
		return nil
	}
	to, ok := compass[out]
	if !ok {
		return nil
	}
	var dir string
	switch (to - from + 4) % 4 {
	case 0:
		return &protocol.NodeAction{Type: protocol.NodeActionPass}
	case 1:
		dir = protocol.TurnRight
	case 2:
		dir = protocol.TurnBack
	case 3:
		dir = protocol.TurnLeft
	}
	return &protocol.NodeAction{Type: protocol.NodeActionTurn, Metadata: &protocol.ActionMetadata{Direction: dir}}
}
