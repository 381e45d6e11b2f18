// Package metrics exposes playback counters on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Acquisitions counts source resolutions by outcome
	Acquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binger_acquisitions_total",
		Help: "Source acquisitions by outcome (completed, failed, timeout).",
	}, []string{"outcome"})

	// QualityFallbacks counts bandwidth-driven quality downgrades
	QualityFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binger_quality_fallbacks_total",
		Help: "Quality fallback attempts by outcome (applied, unavailable, failed).",
	}, []string{"outcome"})

	// Promotions counts autoplay transitions by path
	Promotions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binger_promotions_total",
		Help: "Autoplay transitions by path (prefetched, slow).",
	}, []string{"path"})

	// Faults counts player faults by class
	Faults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "binger_player_faults_total",
		Help: "Player faults by recovery class.",
	}, []string{"class"})

	// BufferEvents counts observed playback stalls
	BufferEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "binger_buffer_events_total",
		Help: "Observed playback stalls.",
	})
)
