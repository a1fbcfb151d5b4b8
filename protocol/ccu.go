package protocol

import "time"

// Connection is the last-will style connectivity report of a device.
type Connection struct {
	Timestamp       time.Time `json:"timestamp"`
	SerialNumber    string    `json:"serialNumber"`
	ConnectionState string    `json:"connectionState"`
	IP              string    `json:"ip,omitempty"`
	Version         string    `json:"version,omitempty"`
}

// Online reports whether the connection state means the device is reachable.
func (c *Connection) Online() bool {
	return c.ConnectionState == ConnectionOnline
}

// InstantActions are executed immediately by a vehicle or module.
type InstantActions struct {
	Timestamp    time.Time       `json:"timestamp"`
	SerialNumber string          `json:"serialNumber"`
	Actions      []InstantAction `json:"actions"`
}

type InstantAction struct {
	ActionType string            `json:"actionType"`
	ActionID   string            `json:"actionId"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OrderRequest asks for a new production or storage order.
type OrderRequest struct {
	Timestamp   time.Time `json:"timestamp"`
	OrderType   string    `json:"orderType"`
	Type        string    `json:"type"`
	WorkpieceID string    `json:"workpieceId,omitempty"`
}

// OrderResponse acknowledges an accepted order request.
type OrderResponse struct {
	OrderID    string    `json:"orderId"`
	OrderType  string    `json:"orderType"`
	Type       string    `json:"type"`
	State      string    `json:"state"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type OrderCancel struct {
	OrderIDs []string `json:"orderIds"`
}

type ResetRequest struct {
	Timestamp   time.Time `json:"timestamp"`
	WithStorage bool      `json:"withStorage"`
}

// ChargeRequest starts (charge=true) or stops charging a vehicle.
type ChargeRequest struct {
	SerialNumber string `json:"serialNumber"`
	Charge       bool   `json:"charge"`
}

// PairFts tells the central unit where an unpositioned vehicle is docked.
type PairFts struct {
	SerialNumber       string `json:"serialNumber"`
	ModuleSerialNumber string `json:"moduleSerialNumber"`
	NodeID             string `json:"nodeId,omitempty"`
}

// Layout describes the navigation topology of the shop floor.
type Layout struct {
	Nodes []LayoutNode `json:"nodes" yaml:"nodes"`
	Edges []LayoutEdge `json:"edges" yaml:"edges"`
}

type LayoutNode struct {
	ID         string `json:"id" yaml:"id"`
	Type       string `json:"type" yaml:"type"`
	ModuleType string `json:"moduleType,omitempty" yaml:"module_type,omitempty"`
}

type LayoutEdge struct {
	From          string  `json:"from" yaml:"from"`
	To            string  `json:"to" yaml:"to"`
	Length        float64 `json:"length" yaml:"length"`
	Direction     string  `json:"direction" yaml:"direction"`
	Bidirectional bool    `json:"bidirectional,omitempty" yaml:"bidirectional,omitempty"`
}
