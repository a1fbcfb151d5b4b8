package pairing

import "ffcentral/protocol"

// Module types.
const (
	ModuleHBW     = "HBW"
	ModuleDPS     = "DPS"
	ModuleDrill   = "DRILL"
	ModuleMill    = "MILL"
	ModuleAIQS    = "AIQS"
	ModuleOven    = "OVEN"
	ModuleCharger = "CHRG"
)

// ModuleRecord is a paired processing station.
type ModuleRecord struct {
	Device
	Type    string `json:"type"`
	Passive bool   `json:"passive,omitempty"`
}

// ModulePairing tracks every module.
type ModulePairing struct {
	*Registry[*ModuleRecord]
}

func NewModulePairing(factsheet FactsheetRequester, notifier ChangeNotifier) *ModulePairing {
	newRecord := func(serial string) *ModuleRecord {
		return &ModuleRecord{Device: Device{SerialNumber: serial, Available: Blocked}}
	}
	return &ModulePairing{Registry: NewRegistry(protocol.KindModule, newRecord, factsheet, notifier)}
}

// Declare registers a module known from the layout. Chargers have no controller
// of their own, so they count as connected and ready from the start.
func (p *ModulePairing) Declare(serial, moduleType string) {
	rec := p.getOrCreate(serial)
	rec.Type = moduleType
	if moduleType == ModuleCharger {
		rec.Passive = true
		if !rec.Connected {
			rec.Connected = true
			rec.Available = Ready
		}
	}
}

// Module returns the record for serial, or nil.
func (p *ModulePairing) Module(serial string) *ModuleRecord {
	rec, _ := p.Get(serial)
	return rec
}

// UpdateAvailability sets the module state and optionally its order binding.
func (p *ModulePairing) UpdateAvailability(serial string, state AvailableState, orderID *string) {
	p.SetAvailability(serial, state, orderID)
}

// GetReadyOfType prefers a ready module of moduleType bound to orderID, else the first ready unassigned one.
func (p *ModulePairing) GetReadyOfType(moduleType, orderID string) *ModuleRecord {
	rec, _ := p.getReadyWhere(orderID, func(m *ModuleRecord) bool { return m.Type == moduleType })
	return rec
}

// OfType returns every module of moduleType.
func (p *ModulePairing) OfType(moduleType string) []*ModuleRecord {
	var out []*ModuleRecord
	for _, rec := range p.All() {
		if rec.Type == moduleType {
			out = append(out, rec)
		}
	}
	return out
}

// ReadyOfType returns every ready module of moduleType regardless of binding.
func (p *ModulePairing) ReadyOfType(moduleType string) []*ModuleRecord {
	var out []*ModuleRecord
	for _, rec := range p.OfType(moduleType) {
		if p.IsReady(rec.SerialNumber) {
			out = append(out, rec)
		}
	}
	return out
}
