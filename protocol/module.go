package protocol

import "time"

// ModuleOrder instructs a module to run one command.
type ModuleOrder struct {
	Timestamp     time.Time    `json:"timestamp"`
	SerialNumber  string       `json:"serialNumber"`
	OrderID       string       `json:"orderId"`
	OrderUpdateID int          `json:"orderUpdateId"`
	Action        ModuleAction `json:"action"`
}

type ModuleAction struct {
	ID       string          `json:"id"`
	Command  string          `json:"command"`
	Metadata *ModuleMetadata `json:"metadata,omitempty"`
}

type ModuleMetadata struct {
	Type         string `json:"type,omitempty"`
	WorkpieceID  string `json:"workpieceId,omitempty"`
	LoadPosition string `json:"loadPosition,omitempty"`
	FtsSerial    string `json:"ftsSerialNumber,omitempty"`
}

// ModuleState is the periodic state report of a module.
type ModuleState struct {
	Timestamp     time.Time     `json:"timestamp"`
	SerialNumber  string        `json:"serialNumber"`
	OrderID       string        `json:"orderId"`
	OrderUpdateID int           `json:"orderUpdateId"`
	Paused        bool          `json:"paused"`
	ActionState   *ActionState  `json:"actionState,omitempty"`
	Errors        []DeviceError `json:"errors"`
}

// Running reports whether the module is executing an action.
func (s *ModuleState) Running() bool {
	if s.ActionState == nil {
		return false
	}
	switch s.ActionState.State {
	case ActionWaiting, ActionInitializing, ActionRunning:
		return true
	}
	return false
}
