package observer

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exports compile and evaluation metrics.
type PrometheusRecorder struct {
	compileDuration *prometheus.HistogramVec
	runDuration     *prometheus.HistogramVec
	runTotal        *prometheus.CounterVec
	runMemory       *prometheus.GaugeVec
}

// NewPrometheusRecorder registers the sandbox collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		compileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lessonjudge",
			Name:      "compile_duration_seconds",
			Help:      "Submission compile and type check duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"language", "ok"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lessonjudge",
			Name:      "eval_duration_seconds",
			Help:      "Single test case evaluation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"language", "verdict"}),
		runTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lessonjudge",
			Name:      "evals_total",
			Help:      "Total number of test case evaluations",
		}, []string{"language", "verdict"}),
		runMemory: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lessonjudge",
			Name:      "eval_last_memory_kb",
			Help:      "Peak memory of the latest evaluation per language, when measured",
		}, []string{"language"}),
	}
}

func (p *PrometheusRecorder) ObserveCompile(ctx context.Context, language string, ok bool, timeMs int64) {
	p.compileDuration.WithLabelValues(language, strconv.FormatBool(ok)).Observe(float64(timeMs) / 1000)
}

func (p *PrometheusRecorder) ObserveRun(ctx context.Context, language string, verdict string, timeMs int64, memoryKB int64) {
	p.runDuration.WithLabelValues(language, verdict).Observe(float64(timeMs) / 1000)
	p.runTotal.WithLabelValues(language, verdict).Inc()
	if memoryKB > 0 {
		p.runMemory.WithLabelValues(language).Set(float64(memoryKB))
	}
}
