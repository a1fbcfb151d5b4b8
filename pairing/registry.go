package pairing

import (
	"log"
	"time"
)

type AvailableState string

const (
	Ready   AvailableState = "READY"
	Busy    AvailableState = "BUSY"
	Blocked AvailableState = "BLOCKED"
)

// Device is the bookkeeping shared by vehicles and modules.
type Device struct {
	SerialNumber string         `json:"serialNumber"`
	Connected    bool           `json:"connected"`
	Available    AvailableState `json:"available"`
	LastSeen     time.Time      `json:"lastSeen"`
	OrderID      string         `json:"orderId,omitempty"`
	IP           string         `json:"ip,omitempty"`
	Version      string         `json:"version,omitempty"`
}

func (d *Device) Base() *Device { return d }

// Record is implemented by the per-kind device records.
type Record interface {
	Base() *Device
}

// FactsheetRequester asks a device for its capability sheet.
type FactsheetRequester interface {
	RequestFactsheet(kind, serial string) error
}

// ChangeNotifier is told after every availability change.
type ChangeNotifier interface {
	PairingChanged()
}

// Registry is a serial-keyed state map shared by vehicle and module pairing.
// It is not safe for concurrent use; callers serialize access.
type Registry[T Record] struct {
	kind      string
	records   map[string]T
	order     []string
	newRecord func(serial string) T
	factsheet FactsheetRequester
	notifier  ChangeNotifier
}

func NewRegistry[T Record](kind string, newRecord func(serial string) T, factsheet FactsheetRequester, notifier ChangeNotifier) *Registry[T] {
	return &Registry[T]{
		kind:      kind,
		records:   make(map[string]T),
		newRecord: newRecord,
		factsheet: factsheet,
		notifier:  notifier,
	}
}

func (r *Registry[T]) Get(serial string) (T, bool) {
	rec, ok := r.records[serial]
	return rec, ok
}

func (r *Registry[T]) getOrCreate(serial string) T {
	rec, ok := r.records[serial]
	if !ok {
		rec = r.newRecord(serial)
		r.records[serial] = rec
		r.order = append(r.order, serial)
	}
	return rec
}

// All returns every record in first-seen order.
func (r *Registry[T]) All() []T {
	out := make([]T, 0, len(r.order))
	for _, s := range r.order {
		out = append(out, r.records[s])
	}
	return out
}

// UpdateConnection records connectivity and requests a factsheet when the device comes online.
// It reports whether the device transitioned to online.
func (r *Registry[T]) UpdateConnection(serial string, online bool, at time.Time, ip, version string) bool {
	d := r.getOrCreate(serial).Base()
	wasOnline := d.Connected
	d.Connected = online
	d.LastSeen = at
	if ip != "" {
		d.IP = ip
	}
	if version != "" {
		d.Version = version
	}
	if online && !wasOnline {
		log.Printf("pairing: %s %s online", r.kind, serial)
		if r.factsheet != nil {
			if err := r.factsheet.RequestFactsheet(r.kind, serial); err != nil {
				log.Printf("pairing: factsheet request for %s: %v", serial, err)
			}
		}
		return true
	}
	if !online && wasOnline {
		log.Printf("pairing: %s %s offline", r.kind, serial)
	}
	return false
}

// Touch refreshes the last-seen time.
func (r *Registry[T]) Touch(serial string, at time.Time) {
	r.getOrCreate(serial).Base().LastSeen = at
}

func (r *Registry[T]) setAvailability(serial string, state AvailableState, orderID *string) T {
	rec := r.getOrCreate(serial)
	d := rec.Base()
	d.Available = state
	if orderID != nil {
		d.OrderID = *orderID
	}
	return rec
}

func (r *Registry[T]) notify() {
	if r.notifier != nil {
		r.notifier.PairingChanged()
	}
}

func (r *Registry[T]) IsReady(serial string) bool {
	rec, ok := r.records[serial]
	if !ok {
		return false
	}
	d := rec.Base()
	return d.Connected && d.Available == Ready
}

// IsReadyForOrder is IsReady and the device is unbound or bound to orderID.
func (r *Registry[T]) IsReadyForOrder(serial, orderID string) bool {
	if !r.IsReady(serial) {
		return false
	}
	d := r.records[serial].Base()
	return d.OrderID == "" || d.OrderID == orderID
}

// GetReady prefers a ready device bound to orderID, else the first ready unassigned one.
func (r *Registry[T]) GetReady(orderID string) (T, bool) {
	return r.getReadyWhere(orderID, func(T) bool { return true })
}

func (r *Registry[T]) getReadyWhere(orderID string, match func(T) bool) (T, bool) {
	if orderID != "" {
		for _, s := range r.order {
			rec := r.records[s]
			if rec.Base().OrderID == orderID && match(rec) && r.IsReady(s) {
				return rec, true
			}
		}
	}
	for _, s := range r.order {
		rec := r.records[s]
		if rec.Base().OrderID == "" && match(rec) && r.IsReady(s) {
			return rec, true
		}
	}
	var zero T
	return zero, false
}

// BoundTo returns the device bound to orderID.
func (r *Registry[T]) BoundTo(orderID string) (T, bool) {
	if orderID != "" {
		for _, s := range r.order {
			if rec := r.records[s]; rec.Base().OrderID == orderID {
				return rec, true
			}
		}
	}
	var zero T
	return zero, false
}

func (r *Registry[T]) GetAllReadyUnassigned() []T {
	var out []T
	for _, s := range r.order {
		rec := r.records[s]
		if rec.Base().OrderID == "" && r.IsReady(s) {
			out = append(out, rec)
		}
	}
	return out
}

// SetAvailability sets the state and optionally the order binding, then notifies.
func (r *Registry[T]) SetAvailability(serial string, state AvailableState, orderID *string) {
	r.setAvailability(serial, state, orderID)
	r.notify()
}

// ClearOrder unbinds the device if it is bound to orderID, or unconditionally when orderID is empty.
func (r *Registry[T]) ClearOrder(serial, orderID string) {
	rec, ok := r.records[serial]
	if !ok {
		return
	}
	d := rec.Base()
	if orderID == "" || d.OrderID == orderID {
		d.OrderID = ""
		r.notify()
	}
}

// ClearOrderEverywhere unbinds every device bound to orderID.
func (r *Registry[T]) ClearOrderEverywhere(orderID string) {
	if orderID == "" {
		return
	}
	changed := false
	for _, rec := range r.records {
		if d := rec.Base(); d.OrderID == orderID {
			d.OrderID = ""
			changed = true
		}
	}
	if changed {
		r.notify()
	}
}

// Bind returns a pointer to id for use as an optional order binding.
func Bind(id string) *string { return &id }
