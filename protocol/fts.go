package protocol

import "time"

// FtsOrder is a navigation instruction for one vehicle.
type FtsOrder struct {
	Timestamp     time.Time `json:"timestamp"`
	OrderID       string    `json:"orderId"`
	OrderUpdateID int       `json:"orderUpdateId"`
	SerialNumber  string    `json:"serialNumber"`
	Nodes         []FtsNode `json:"nodes"`
	Edges         []FtsEdge `json:"edges"`
}

type FtsNode struct {
	ID          string      `json:"id"`
	LinkedEdges []string    `json:"linkedEdges"`
	Action      *NodeAction `json:"action,omitempty"`
}

type NodeAction struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Metadata *ActionMetadata `json:"metadata,omitempty"`
}

// ActionMetadata carries turn direction for TURN and load details for DOCK.
type ActionMetadata struct {
	Direction    string `json:"direction,omitempty"`
	LoadType     string `json:"loadType,omitempty"`
	LoadID       string `json:"loadId,omitempty"`
	LoadPosition string `json:"loadPosition,omitempty"`
	Charge       bool   `json:"charge,omitempty"`
}

type FtsEdge struct {
	ID          string   `json:"id"`
	Length      float64  `json:"length"`
	LinkedNodes []string `json:"linkedNodes"`
}

// FtsState is the periodic state report of a vehicle.
type FtsState struct {
	Timestamp              time.Time     `json:"timestamp"`
	SerialNumber           string        `json:"serialNumber"`
	OrderID                string        `json:"orderId"`
	OrderUpdateID          int           `json:"orderUpdateId"`
	LastNodeID             string        `json:"lastNodeId"`
	LastModuleSerialNumber string        `json:"lastModuleSerialNumber"`
	LastLoadPosition       string        `json:"lastLoadPosition,omitempty"`
	Driving                bool          `json:"driving"`
	Paused                 bool          `json:"paused"`
	WaitingForLoadHandling bool          `json:"waitingForLoadHandling"`
	NodeStates             []NodeState   `json:"nodeStates"`
	ActionStates           []ActionState `json:"actionStates"`
	BatteryState           *BatteryState `json:"batteryState,omitempty"`
	Errors                 []DeviceError `json:"errors"`
	Load                   []LoadInfo    `json:"load"`
}

type NodeState struct {
	NodeID string `json:"nodeId"`
}

type ActionState struct {
	ID      string `json:"id"`
	Type    string `json:"type,omitempty"`
	Command string `json:"command,omitempty"`
	State   string `json:"state"`
	Result  string `json:"result,omitempty"`
}

// BatteryState percentage is a pointer so a missing value is distinguishable from zero.
type BatteryState struct {
	CurrentVoltage float64  `json:"currentVoltage"`
	Percentage     *float64 `json:"percentage,omitempty"`
	Charging       bool     `json:"charging"`
}

type LoadInfo struct {
	LoadID       string `json:"loadId,omitempty"`
	LoadType     string `json:"loadType,omitempty"`
	LoadPosition string `json:"loadPosition"`
}

type DeviceError struct {
	ErrorType  string `json:"errorType"`
	ErrorLevel string `json:"errorLevel"`
}

// RunningOrder reports whether the vehicle still has an unfinished action of its current order.
func (s *FtsState) RunningOrder() bool {
	if s.OrderID == "" {
		return false
	}
	for _, a := range s.ActionStates {
		if a.State != ActionFinished && a.State != ActionFailed {
			return true
		}
	}
	return false
}

// Charging reports the battery charging flag, false when no battery state is present.
func (s *FtsState) Charging() bool {
	return s.BatteryState != nil && s.BatteryState.Charging
}
