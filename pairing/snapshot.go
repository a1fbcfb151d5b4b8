package pairing

import (
	"time"

	"ffcentral/loadingbay"
)

// Snapshot is the externally published view of every paired device.
type Snapshot struct {
	Timestamp time.Time                            `json:"timestamp"`
	Fts       []FtsRecord                          `json:"fts"`
	Modules   []ModuleRecord                       `json:"modules"`
	Bays      map[string]map[loadingbay.Bay]string `json:"loadingBays"`
}

// TakeSnapshot copies the current state of both registries.
func TakeSnapshot(fts *FtsPairing, modules *ModulePairing) Snapshot {
	s := Snapshot{Timestamp: time.Now().UTC()}
	for _, rec := range fts.All() {
		s.Fts = append(s.Fts, *rec)
	}
	for _, rec := range modules.All() {
		s.Modules = append(s.Modules, *rec)
	}
	s.Bays = fts.Bays().Snapshot()
	return s
}
