package pairing

import (
	"time"

	"ffcentral/loadingbay"
	"ffcentral/protocol"
)

// FtsRecord is a paired vehicle.
type FtsRecord struct {
	Device
	LastNodeID       string         `json:"lastNodeId,omitempty"`
	LastModuleSerial string         `json:"lastModuleSerialNumber"`
	LastLoadPosition loadingbay.Bay `json:"lastLoadPosition,omitempty"`
	PairedAt         *time.Time     `json:"pairedAt,omitempty"`
	BatteryVoltage   float64        `json:"batteryVoltage"`
	BatteryPercent   *float64       `json:"batteryPercentage,omitempty"`
	Charging         bool           `json:"charging"`
}

// Paired reports whether the vehicle has a known docking position.
func (f *FtsRecord) Paired() bool {
	return f.LastModuleSerial != "" && f.LastModuleSerial != protocol.UnknownPosition
}

// Position is the node the vehicle stands on, or "" when unknown.
func (f *FtsRecord) Position() string {
	if f.LastNodeID != "" && f.LastNodeID != protocol.UnknownPosition {
		return f.LastNodeID
	}
	if f.Paired() {
		return f.LastModuleSerial
	}
	return ""
}

// NodeReserver holds vehicle node reservations.
type NodeReserver interface {
	ReserveNode(vehicle, node string)
	ReleasePassed(vehicle, node string)
}

// FtsUpdate is an availability change. Empty fields leave the record unchanged;
// OrderID nil leaves the binding unchanged.
type FtsUpdate struct {
	State        AvailableState
	OrderID      *string
	NodeID       string
	ModuleSerial string
	LoadPosition loadingbay.Bay
}

// FtsPairing tracks every vehicle together with its loading bays.
type FtsPairing struct {
	*Registry[*FtsRecord]
	bays  *loadingbay.Allocator
	nodes NodeReserver
	now   func() time.Time
}

func NewFtsPairing(bays *loadingbay.Allocator, nodes NodeReserver, factsheet FactsheetRequester, notifier ChangeNotifier) *FtsPairing {
	newRecord := func(serial string) *FtsRecord {
		return &FtsRecord{
			Device:           Device{SerialNumber: serial, Available: Blocked},
			LastModuleSerial: protocol.UnknownPosition,
		}
	}
	return &FtsPairing{
		Registry: NewRegistry(protocol.KindFts, newRecord, factsheet, notifier),
		bays:     bays,
		nodes:    nodes,
		now:      time.Now,
	}
}

func (p *FtsPairing) Bays() *loadingbay.Allocator { return p.bays }

// Fts returns the record for serial, or nil.
func (p *FtsPairing) Fts(serial string) *FtsRecord {
	rec, _ := p.Get(serial)
	return rec
}

// UpdateAvailability applies u to the vehicle and republishes the pairing snapshot.
func (p *FtsPairing) UpdateAvailability(serial string, u FtsUpdate) {
	rec := p.setAvailability(serial, u.State, u.OrderID)

	if u.NodeID != "" && u.NodeID != rec.LastNodeID {
		wasUnknown := rec.Position() == ""
		rec.LastNodeID = u.NodeID
		if p.nodes != nil {
			if wasUnknown {
				p.nodes.ReserveNode(serial, u.NodeID)
			} else {
				p.nodes.ReleasePassed(serial, u.NodeID)
			}
		}
	}

	if u.ModuleSerial != "" && u.ModuleSerial != rec.LastModuleSerial {
		rec.LastModuleSerial = u.ModuleSerial
		if rec.Paired() {
			if rec.PairedAt == nil {
				t := p.now()
				rec.PairedAt = &t
			}
		} else {
			rec.PairedAt = nil
		}
	}

	if u.LoadPosition != "" {
		rec.LastLoadPosition = u.LoadPosition
	} else if !rec.Paired() && rec.LastLoadPosition == "" {
		rec.LastLoadPosition = loadingbay.Middle
	}

	p.notify()
}

// PairAt places an unpositioned vehicle at a module by operator request.
func (p *FtsPairing) PairAt(serial, moduleSerial string) {
	p.UpdateAvailability(serial, FtsUpdate{
		State:        p.getOrCreate(serial).Available,
		NodeID:       moduleSerial,
		ModuleSerial: moduleSerial,
	})
}

// GetForOrder returns the vehicle bound to orderID, or the one holding a bay for it.
func (p *FtsPairing) GetForOrder(orderID string) *FtsRecord {
	if rec, ok := p.BoundTo(orderID); ok {
		return rec
	}
	if holder := p.bays.HolderOf(orderID); holder != "" {
		return p.Fts(holder)
	}
	return nil
}

// GetReadyFts is GetReady returning nil when nothing is ready.
func (p *FtsPairing) GetReadyFts(orderID string) *FtsRecord {
	rec, _ := p.GetReady(orderID)
	return rec
}

// GetFtsAtPosition returns a ready vehicle docked at target that is free for orderID
// and can take its cargo, or nil.
func (p *FtsPairing) GetFtsAtPosition(target, orderID string) *FtsRecord {
	for _, rec := range p.All() {
		if !rec.Connected || !p.IsReady(rec.SerialNumber) || rec.Position() != target {
			continue
		}
		if rec.OrderID != "" && rec.OrderID != orderID {
			continue
		}
		if p.bays.GetOpenLoadingBay(rec.SerialNumber) != "" || p.bays.BayForOrder(rec.SerialNumber, orderID) != "" {
			return rec
		}
	}
	return nil
}

// IsFtsWaitingAtPosition reports whether the vehicle docked at target already holds a bay for orderID.
func (p *FtsPairing) IsFtsWaitingAtPosition(orderID, target string) bool {
	for _, rec := range p.All() {
		if rec.Position() == target && p.bays.BayForOrder(rec.SerialNumber, orderID) != "" {
			return true
		}
	}
	return false
}

// FtsAt returns any vehicle standing on node, ready or not.
func (p *FtsPairing) FtsAt(node string) *FtsRecord {
	for _, rec := range p.All() {
		if rec.Position() == node {
			return rec
		}
	}
	return nil
}

// UpdateCharge mirrors the battery state into the record.
func (p *FtsPairing) UpdateCharge(serial string, charging bool, voltage float64, percent *float64) {
	rec := p.getOrCreate(serial)
	rec.Charging = charging
	rec.BatteryVoltage = voltage
	rec.BatteryPercent = percent
}

func (p *FtsPairing) IsCharging(serial string) bool {
	rec, ok := p.Get(serial)
	return ok && rec.Charging
}

// ResetFts unbinds the vehicle and empties its loading bays.
func (p *FtsPairing) ResetFts(serial string) {
	if rec, ok := p.Get(serial); ok {
		rec.OrderID = ""
	}
	p.bays.ResetLoadingBayForFts(serial)
	p.notify()
}
