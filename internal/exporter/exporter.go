package exporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bmcscout/bmcscout/internal/sensor"
	"github.com/bmcscout/bmcscout/internal/store"
)

// Collector exposes the latest device snapshots as Prometheus metrics.
// It reads the store at scrape time; nothing is pre-aggregated.
type Collector struct {
	store *store.Store

	sensorValue  *prometheus.Desc
	sensorHealth *prometheus.Desc
	deviceUp     *prometheus.Desc
	powerWatts   *prometheus.Desc
	certDaysLeft *prometheus.Desc
}

// New creates a Collector over the snapshot store.
func New(st *store.Store) *Collector {
	return &Collector{
		store: st,
		sensorValue: prometheus.NewDesc(
			"bmcscout_sensor_value",
			"Current value of a numeric or boolean sensor (booleans as 0/1).",
			[]string{"device", "key", "category", "label", "unit"}, nil,
		),
		sensorHealth: prometheus.NewDesc(
			"bmcscout_sensor_health",
			"Sensor health state: 0 ok, 1 warning, 2 critical, 3 unknown.",
			[]string{"device", "key", "category"}, nil,
		),
		deviceUp: prometheus.NewDesc(
			"bmcscout_device_up",
			"1 when the device published a snapshot within the TTL, 0 when stale.",
			[]string{"device"}, nil,
		),
		powerWatts: prometheus.NewDesc(
			"bmcscout_device_power_watts",
			"Current whole-chassis power draw in watts.",
			[]string{"device"}, nil,
		),
		certDaysLeft: prometheus.NewDesc(
			"bmcscout_cert_days_left",
			"Days until the device's TLS certificate expires.",
			[]string{"device"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sensorValue
	ch <- c.sensorHealth
	ch <- c.deviceUp
	ch <- c.powerWatts
	ch <- c.certDaysLeft
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, e := range c.store.ListAll() {
		device := e.Snapshot.DeviceID

		up := 1.0
		if c.store.Stale(e) {
			up = 0
		}
		ch <- prometheus.MustNewConstMetric(c.deviceUp, prometheus.GaugeValue, up, device)

		if e.Cert != nil && e.Cert.State != "unreachable" {
			ch <- prometheus.MustNewConstMetric(c.certDaysLeft, prometheus.GaugeValue,
				float64(e.Cert.DaysLeft), device)
		}

		// Stale snapshots carry outdated readings; device_up already says so,
		// exporting the old values would just mislead dashboards.
		if up == 0 {
			continue
		}

		if w, ok := e.Snapshot.PowerWatts(); ok {
			ch <- prometheus.MustNewConstMetric(c.powerWatts, prometheus.GaugeValue, w, device)
		}

		for i := range e.Snapshot.Sensors {
			s := &e.Snapshot.Sensors[i]
			ch <- prometheus.MustNewConstMetric(c.sensorHealth, prometheus.GaugeValue,
				healthValue(s.Health), device, s.Key, string(s.Category))

			var v float64
			switch s.Value.Kind {
			case sensor.ValueNumeric:
				v = s.Value.Num
			case sensor.ValueBool:
				if s.Value.Bool {
					v = 1
				}
			default:
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.sensorValue, prometheus.GaugeValue,
				v, device, s.Key, string(s.Category), s.Label, s.Unit)
		}
	}
}

func healthValue(h sensor.Health) float64 {
	switch h {
	case sensor.HealthOK:
		return 0
	case sensor.HealthWarning:
		return 1
	case sensor.HealthCritical:
		return 2
	default:
		return 3
	}
}

// CycleMetrics are the poll-cycle instruments the daemon drives directly.
type CycleMetrics struct {
	Cycles   *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewCycleMetrics registers the cycle instruments with reg.
func NewCycleMetrics(reg prometheus.Registerer) *CycleMetrics {
	m := &CycleMetrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmcscout_cycles_total",
			Help: "Poll cycles by outcome.",
		}, []string{"device", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bmcscout_cycle_duration_seconds",
			Help:    "Wall-clock duration of poll cycles.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"device"}),
	}
	reg.MustRegister(m.Cycles, m.Duration)
	return m
}

// Observe records one cycle outcome.
func (m *CycleMetrics) Observe(device, result string, d time.Duration) {
	m.Cycles.WithLabelValues(device, result).Inc()
	m.Duration.WithLabelValues(device).Observe(d.Seconds())
}
