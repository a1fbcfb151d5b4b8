package orders

import "time"

type OrderType string

const (
	Production OrderType = "PRODUCTION"
	Storage    OrderType = "STORAGE"
)

// State is shared by orders and steps.
type State string

const (
	Enqueued   State = "ENQUEUED"
	InProgress State = "IN_PROGRESS"
	Finished   State = "FINISHED"
	Error      State = "ERROR"
	Cancelled  State = "CANCELLED"
)

// Terminal reports whether s can no longer change.
func (s State) Terminal() bool {
	return s == Finished || s == Error || s == Cancelled
}

type StepType string

const (
	Navigation  StepType = "NAVIGATION"
	Manufacture StepType = "MANUFACTURE"
)

// Step is one navigation or manufacture action of an order. Navigation steps
// use Source and Target; manufacture steps use Module and Command.
type Step struct {
	ID                string     `json:"id"`
	Type              StepType   `json:"type"`
	State             State      `json:"state"`
	DependentActionID string     `json:"dependentActionId,omitempty"`
	Source            string     `json:"source,omitempty"`
	Target            string     `json:"target,omitempty"`
	Module            string     `json:"moduleType,omitempty"`
	Command           string     `json:"command,omitempty"`
	ModuleSerial      string     `json:"serialNumber,omitempty"`
	VehicleSerial     string     `json:"ftsSerialNumber,omitempty"`
	Result            string     `json:"result,omitempty"`
	Injected          bool       `json:"injected,omitempty"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	StoppedAt         *time.Time `json:"stoppedAt,omitempty"`
}

// Order is a production or storage request and its step chain.
type Order struct {
	OrderID       string     `json:"orderId"`
	OrderType     OrderType  `json:"orderType"`
	Type          string     `json:"type"`
	WorkpieceID   string     `json:"workpieceId,omitempty"`
	State         State      `json:"state"`
	StockLocation string     `json:"stockLocation,omitempty"`
	OrderUpdateID int        `json:"orderUpdateId"`
	ReceivedAt    time.Time  `json:"receivedAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	StoppedAt     *time.Time `json:"stoppedAt,omitempty"`
	Steps         []*Step    `json:"productionSteps"`
}

// Step returns the step with id, or nil.
func (o *Order) Step(id string) *Step {
	for _, s := range o.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Successor returns the step that depends on s, or nil.
func (o *Order) Successor(s *Step) *Step {
	for _, n := range o.Steps {
		if n.DependentActionID == s.ID {
			return n
		}
	}
	return nil
}

// Predecessor returns the step s depends on, or nil.
func (o *Order) Predecessor(s *Step) *Step {
	if s.DependentActionID == "" {
		return nil
	}
	return o.Step(s.DependentActionID)
}

// Done reports whether every step is terminal.
func (o *Order) Done() bool {
	for _, s := range o.Steps {
		if !s.State.Terminal() {
			return false
		}
	}
	return true
}

// dependencyMet reports whether s may be dispatched now.
func (o *Order) dependencyMet(s *Step) bool {
	if s.DependentActionID == "" {
		return true
	}
	p := o.Step(s.DependentActionID)
	return p != nil && p.State == Finished
}

// insertAfter places n directly behind s in the step list.
func (o *Order) insertAfter(s, n *Step) {
	for i, x := range o.Steps {
		if x == s {
			o.Steps = append(o.Steps[:i+1], append([]*Step{n}, o.Steps[i+1:]...)...)
			return
		}
	}
	o.Steps = append(o.Steps, n)
}

// clone deep-copies the order for publication.
func (o *Order) clone() *Order {
	cp := *o
	cp.Steps = make([]*Step, len(o.Steps))
	for i, s := range o.Steps {
		sc := *s
		cp.Steps[i] = &sc
	}
	return &cp
}
