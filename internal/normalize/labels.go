package normalize

import (
	"fmt"

	"github.com/bmcscout/bmcscout/internal/sensor"
)

// DisambiguateLabels appends a stable per-unit suffix to labels that collide
// within a category. Some firmware reports one location string for a group
// of physical units ("System Board Fan1" for both rotors), and two sensors
// sharing a label would be indistinguishable to operators. Keys are never
// touched — identity always derives from the original identifier, so a
// collision can never merge two units into one sensor.
//
// The suffix is the unit's 1-based occurrence order within its label group,
// which is stable because reconciliation emits units in manifest order.
func DisambiguateLabels(sensors []sensor.CanonicalSensor) {
	type group struct{ total, seen int }
	groups := make(map[string]*group)

	key := func(s *sensor.CanonicalSensor) string {
		return string(s.Category) + "\x00" + s.Label
	}

	for i := range sensors {
		k := key(&sensors[i])
		if groups[k] == nil {
			groups[k] = &group{}
		}
		groups[k].total++
	}

	for i := range sensors {
		s := &sensors[i]
		g := groups[key(s)]
		if g.total < 2 {
			continue
		}
		g.seen++
		s.Label = fmt.Sprintf("%s #%d", s.Label, g.seen)
	}
}
