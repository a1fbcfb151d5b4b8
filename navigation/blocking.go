package navigation

// NodeBlock reserves a node for a vehicle. AfterNodeID is the node the vehicle
// vacates before entering NodeID; it is empty for the node the vehicle stands on.
type NodeBlock struct {
	VehicleID   string `json:"vehicleId"`
	NodeID      string `json:"nodeId"`
	AfterNodeID string `json:"afterNodeId,omitempty"`
}

// BlockedFor returns the nodes reserved by vehicles other than vehicle.
func (n *Navigator) BlockedFor(vehicle string) map[string]bool {
	blocked := make(map[string]bool)
	for _, b := range n.blocks {
		if b.VehicleID != vehicle {
			blocked[b.NodeID] = true
		}
	}
	return blocked
}

// IsBlocked reports whether node is reserved by a vehicle other than vehicle.
func (n *Navigator) IsBlocked(node, vehicle string) bool {
	for _, b := range n.blocks {
		if b.NodeID == node && b.VehicleID != vehicle {
			return true
		}
	}
	return false
}

func (n *Navigator) hasBlock(vehicle, node string) bool {
	for _, b := range n.blocks {
		if b.VehicleID == vehicle && b.NodeID == node {
			return true
		}
	}
	return false
}

// BlockPath reserves every distinct node of a route in traversal order.
func (n *Navigator) BlockPath(vehicle string, nodes []string) {
	prev := ""
	for _, id := range nodes {
		if !n.hasBlock(vehicle, id) {
			n.blocks = append(n.blocks, NodeBlock{VehicleID: vehicle, NodeID: id, AfterNodeID: prev})
		}
		prev = id
	}
}

// ReserveNode reserves the node a vehicle currently occupies.
func (n *Navigator) ReserveNode(vehicle, node string) {
	if node == "" || n.hasBlock(vehicle, node) {
		return
	}
	n.blocks = append(n.blocks, NodeBlock{VehicleID: vehicle, NodeID: node})
}

// ReleasePassed drops the reservations the vehicle made before reaching node.
// A node the vehicle never reserved is reserved instead.
func (n *Navigator) ReleasePassed(vehicle, node string) {
	at := -1
	for i, b := range n.blocks {
		if b.VehicleID == vehicle && b.NodeID == node {
			at = i
			break
		}
	}
	if at == -1 {
		n.ReserveNode(vehicle, node)
		return
	}
	kept := n.blocks[:0]
	for i, b := range n.blocks {
		if b.VehicleID == vehicle && i < at {
			continue
		}
		kept = append(kept, b)
	}
	n.blocks = kept
}

// ReleaseAllExcept drops every reservation of vehicle except the one on node.
func (n *Navigator) ReleaseAllExcept(vehicle, node string) {
	kept := n.blocks[:0]
	for _, b := range n.blocks {
		if b.VehicleID == vehicle && b.NodeID != node {
			continue
		}
		kept = append(kept, b)
	}
	n.blocks = kept
	if node != "" {
		n.ReserveNode(vehicle, node)
	}
}

// ReleaseVehicle drops every reservation of vehicle.
func (n *Navigator) ReleaseVehicle(vehicle string) {
	n.ReleaseAllExcept(vehicle, "")
}

// Reset drops all reservations.
func (n *Navigator) Reset() {
	n.blocks = nil
}

// Blocks returns a copy of the current reservations.
func (n *Navigator) Blocks() []NodeBlock {
	out := make([]NodeBlock, len(n.blocks))
	copy(out, n.blocks)
	return out
}
