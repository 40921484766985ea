package api

import (
	"fmt"
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldnav/pkg/engine"
	"fieldnav/pkg/tracker"
	"fieldnav/pkg/trail"
)

// sampleCollector exposes the tracker counters at scrape time.
type sampleCollector struct {
	tr   *tracker.Tracker
	desc *prometheus.Desc
}

func (c *sampleCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *sampleCollector) Collect(ch chan<- prometheus.Metric) {
	for stream, s := range c.tr.Snapshot() {
		for outcome, v := range map[string]int64{
			"accepted":  s.Accepted,
			"throttled": s.Throttled,
			"duplicate": s.Duplicate,
			"invalid":   s.Invalid,
			"error":     s.Errors,
		} {
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(v), stream, outcome)
		}
	}
}

// Metrics bundles the Prometheus view of the engine.
type Metrics struct {
	gatherer prometheus.Gatherer
}

// NewMetrics registers the engine metrics against reg, or a private registry when reg is nil.
// hub may be nil.
func NewMetrics(reg prometheus.Registerer, tr *tracker.Tracker, nav *engine.Engine, hub *StreamHub) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	collectors := []prometheus.Collector{
		&sampleCollector{
			tr: tr,
			desc: prometheus.NewDesc(
				"fieldnav_sensor_samples_total",
				"Sensor samples by stream and outcome.",
				[]string{"stream", "outcome"}, nil,
			),
		},
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fieldnav_heading_error_degrees",
			Help: "Remaining distance between the animated and the target heading.",
		}, func() float64 {
			o := nav.Orientation()
			return math.Abs(o.Target - o.Current)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fieldnav_trail_points",
			Help: "Points in the visual breadcrumb trail.",
		}, func() float64 {
			return float64(nav.TrailStats().VisualPoints)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fieldnav_mission_points",
			Help: "Points in the mission log.",
		}, func() float64 {
			return float64(nav.TrailStats().MissionPoints)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fieldnav_recording",
			Help: "1 while a mission is being recorded.",
		}, func() float64 {
			if nav.TrailStats().State == trail.StateRecording {
				return 1
			}
			return 0
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fieldnav_radar_epoch",
			Help: "Number of radar anchor moves.",
		}, func() float64 {
			return float64(nav.Snapshot().Radar.Epoch)
		}),
	}
	if hub != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fieldnav_stream_clients",
			Help: "Connected WebSocket clients.",
		}, func() float64 {
			return float64(hub.Clients())
		}))
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return &Metrics{gatherer: gatherer}, nil
}

// Handler exposes the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
