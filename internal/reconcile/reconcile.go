package reconcile

import (
	"github.com/bmcscout/bmcscout/internal/manifest"
	"github.com/bmcscout/bmcscout/internal/sensor"
	"github.com/bmcscout/bmcscout/internal/source"
)

// Selected is the reconciled outcome for one logical unit this cycle.
type Selected struct {
	// Key is the unit's stable sensor key: category + canonical identifier.
	Key      string
	Category sensor.Category
	Unit     manifest.Unit

	// Reading is the chosen protocol's observation. Zero-valued when
	// Source is SourceNone.
	Reading sensor.Reading

	// Source is the protocol whose reading won, or SourceNone when neither
	// had data for the unit this cycle.
	Source sensor.Protocol
}

// Reconcile merges both pollers' outputs into one Selected per logical unit
// known to the manifest. The preferred protocol for the unit's category wins
// whenever its reading is present and non-absent; otherwise the other
// protocol's reading for the same unit is used; otherwise the unit is marked
// as having no data — it is never dropped, so consumers see a stable sensor
// set regardless of which source degraded this cycle.
//
// Output order is deterministic: categories in declaration order, units in
// manifest order.
func Reconcile(m *manifest.Manifest, tree, graph source.Result, prefs Preferences) []Selected {
	treeIdx := tree.Index()
	graphIdx := graph.Index()

	var out []Selected
	for _, cat := range sensor.Categories {
		preferred := prefs.Preferred(cat)
		for _, u := range m.Units(cat) {
			sel := Selected{
				Key:      sensor.MakeKey(cat, u.ID),
				Category: cat,
				Unit:     u,
				Source:   sensor.SourceNone,
			}
			for _, proto := range []sensor.Protocol{preferred, Other(preferred)} {
				rd, ok := lookup(proto, cat, u, treeIdx, graphIdx)
				if ok {
					sel.Reading = rd
					sel.Source = proto
					break
				}
			}
			out = append(out, sel)
		}
	}
	return out
}

// lookup finds proto's reading for the unit within cat, reporting ok only
// when the reading carries actual data. A reading whose value and status are
// both absent counts as no data — presence in the manifest is not presence
// in this cycle.
func lookup(proto sensor.Protocol, cat sensor.Category, u manifest.Unit,
	treeIdx, graphIdx map[sensor.Category]map[string]sensor.Reading) (sensor.Reading, bool) {

	var id string
	var idx map[sensor.Category]map[string]sensor.Reading
	switch proto {
	case sensor.SourceSNMP:
		id, idx = u.SNMP, treeIdx
	case sensor.SourceRedfish:
		id, idx = u.Redfish, graphIdx
	default:
		return sensor.Reading{}, false
	}
	if id == "" {
		return sensor.Reading{}, false
	}

	rd, ok := idx[cat][id]
	if !ok || !usable(rd) {
		return sensor.Reading{}, false
	}
	return rd, true
}

// usable reports whether the reading carries any data at all.
func usable(rd sensor.Reading) bool {
	return !rd.Value.IsAbsent() || !rd.Status.IsAbsent()
}
