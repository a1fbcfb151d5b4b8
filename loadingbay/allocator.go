package loadingbay

import "fmt"

// Bay is one of a vehicle's cargo slots.
type Bay string

const (
	Left   Bay = "1"
	Middle Bay = "2"
	Right  Bay = "3"
)

// Bays lists the slots in allocation order.
var Bays = []Bay{Left, Middle, Right}

func (b Bay) Name() string {
	switch b {
	case Left:
		return "LEFT"
	case Middle:
		return "MIDDLE"
	case Right:
		return "RIGHT"
	}
	return string(b)
}

// Valid reports whether b names a physical slot.
func (b Bay) Valid() bool {
	return b == Left || b == Middle || b == Right
}

// OccupiedError is returned when a bay already holds a different order.
type OccupiedError struct {
	Serial  string
	Bay     Bay
	Holder  string
	OrderID string
}

func (e *OccupiedError) Error() string {
	return fmt.Sprintf("loading bay %s of %s holds order %s, cannot assign %s", e.Bay.Name(), e.Serial, e.Holder, e.OrderID)
}

// Allocator tracks which order rides in which bay of every vehicle.
// It is not safe for concurrent use; callers serialize access.
type Allocator struct {
	vehicles map[string]map[Bay]string
}

func New() *Allocator {
	return &Allocator{vehicles: make(map[string]map[Bay]string)}
}

func (a *Allocator) bays(serial string) map[Bay]string {
	m, ok := a.vehicles[serial]
	if !ok {
		m = make(map[Bay]string, len(Bays))
		for _, b := range Bays {
			m[b] = ""
		}
		a.vehicles[serial] = m
	}
	return m
}

// SetLoadingBay assigns bay to orderID. Assigning the same order again is a no-op.
func (a *Allocator) SetLoadingBay(serial string, bay Bay, orderID string) error {
	if !bay.Valid() {
		return fmt.Errorf("unknown loading bay %q", bay)
	}
	m := a.bays(serial)
	if holder := m[bay]; holder != "" && holder != orderID {
		return &OccupiedError{Serial: serial, Bay: bay, Holder: holder, OrderID: orderID}
	}
	m[bay] = orderID
	return nil
}

// GetOpenLoadingBay returns the first empty bay, or "" when the vehicle is full.
func (a *Allocator) GetOpenLoadingBay(serial string) Bay {
	m := a.bays(serial)
	for _, b := range Bays {
		if m[b] == "" {
			return b
		}
	}
	return ""
}

// OpenBayCount returns the number of empty bays.
func (a *Allocator) OpenBayCount(serial string) int {
	m := a.bays(serial)
	n := 0
	for _, b := range Bays {
		if m[b] == "" {
			n++
		}
	}
	return n
}

// BayForOrder returns the bay holding orderID, or "".
func (a *Allocator) BayForOrder(serial, orderID string) Bay {
	if orderID == "" {
		return ""
	}
	m := a.bays(serial)
	for _, b := range Bays {
		if m[b] == orderID {
			return b
		}
	}
	return ""
}

// GetLoadedOrderIDs returns the orders currently riding the vehicle in bay order.
func (a *Allocator) GetLoadedOrderIDs(serial string) []string {
	m := a.bays(serial)
	var ids []string
	for _, b := range Bays {
		if m[b] != "" {
			ids = append(ids, m[b])
		}
	}
	return ids
}

// ClearLoadingBayForOrder frees every bay holding orderID.
func (a *Allocator) ClearLoadingBayForOrder(serial, orderID string) {
	m := a.bays(serial)
	for _, b := range Bays {
		if m[b] == orderID {
			m[b] = ""
		}
	}
}

// ClearOrder frees the order's bays on every vehicle.
func (a *Allocator) ClearOrder(orderID string) {
	for serial := range a.vehicles {
		a.ClearLoadingBayForOrder(serial, orderID)
	}
}

// HolderOf returns the vehicle holding a bay for orderID, or "".
func (a *Allocator) HolderOf(orderID string) string {
	if orderID == "" {
		return ""
	}
	for serial, m := range a.vehicles {
		for _, b := range Bays {
			if m[b] == orderID {
				return serial
			}
		}
	}
	return ""
}

func (a *Allocator) ResetLoadingBayForFts(serial string) {
	delete(a.vehicles, serial)
}

func (a *Allocator) Reset() {
	a.vehicles = make(map[string]map[Bay]string)
}

// Snapshot returns vehicle -> bay -> order for every vehicle with an initialized map.
func (a *Allocator) Snapshot() map[string]map[Bay]string {
	out := make(map[string]map[Bay]string, len(a.vehicles))
	for serial, m := range a.vehicles {
		cp := make(map[Bay]string, len(m))
		for b, id := range m {
			cp[b] = id
		}
		out[serial] = cp
	}
	return out
}
