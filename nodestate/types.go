package nodestate

import (
	"time"

	"ffcentral/loadingbay"
	"ffcentral/navigation"
	"ffcentral/pairing"
)

// State is the mirrored view of the shop floor served to dashboards.
type State struct {
	UpdatedAt time.Time                            `json:"updatedAt"`
	Fts       []pairing.FtsRecord                  `json:"fts"`
	Modules   []pairing.ModuleRecord               `json:"modules"`
	Bays      map[string]map[loadingbay.Bay]string `json:"loadingBays"`
	Blocks    []navigation.NodeBlock               `json:"blocks"`
}
