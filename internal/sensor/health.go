package sensor

// Health is the canonical four-state ladder every raw status code or string
// normalizes into.
type Health string

const (
	HealthOK       Health = "ok"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
	HealthUnknown  Health = "unknown"
)

// healthRank orders states for worst-of aggregation: critical > warning >
// ok > unknown. Unknown ranks lowest so a unit that reports ok outweighs
// siblings that report nothing.
var healthRank = map[Health]int{
	HealthUnknown:  0,
	HealthOK:       1,
	HealthWarning:  2,
	HealthCritical: 3,
}

// Rank returns the aggregation rank of h. Unrecognized states rank as unknown.
func (h Health) Rank() int { return healthRank[h] }

// Worst returns the worst health among states. An empty set is unknown,
// never ok — absence of siblings must not read as healthy hardware.
func Worst(states []Health) Health {
	if len(states) == 0 {
		return HealthUnknown
	}
	worst := HealthUnknown
	for _, s := range states {
		if s.Rank() > worst.Rank() {
			worst = s
		}
	}
	return worst
}
