package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		summariesTotal,
		summarizedMessages,
		lorebookActivations,
	)
}

var (
	summariesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_summaries_total",
			Help: "Summarization runs by status (ok/failed/skipped).",
		},
		[]string{"status"},
	)

	summarizedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memory_summarized_messages_total",
			Help: "Messages folded into a context summary.",
		},
	)

	lorebookActivations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lorebook_active_entries",
			Help:    "Active lorebook entries injected per request.",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)
)

func IncSummary(status string) { summariesTotal.WithLabelValues(norm(status)).Inc() }

func AddSummarizedMessages(n int) { summarizedMessages.Add(float64(n)) }

func ObserveLorebookActive(n int) { lorebookActivations.Observe(float64(n)) }
