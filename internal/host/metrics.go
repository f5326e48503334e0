package host

import "github.com/prometheus/client_golang/prometheus"

var (
	generationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "artifyd",
			Name:      "generation_total",
			Help:      "Generation calls by mode and status",
		},
		[]string{"mode", "status"},
	)
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "artifyd",
			Name:      "generation_duration_seconds",
			Help:      "Wall time of generation calls",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"mode"},
	)
	deviceInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "artifyd",
			Name:      "device_info",
			Help:      "Device and backend the loaded model is bound to (always 1)",
		},
		[]string{"device", "backend"},
	)
)

func init() {
	prometheus.MustRegister(generationTotal, generationDuration, deviceInfo)
}
