package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteor_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteor_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	PasteUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteor_paste_updated_total",
		Help: "no. of pastes updated",
	})
	PasteDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteor_paste_deleted_total",
		Help: "no. of pastes deleted",
	})
	CommentCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteor_comment_created_total",
		Help: "no. of comments created",
	})
	CommentDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteor_comment_deleted_total",
		Help: "no. of comments deleted",
	})
	IDCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasteor_id_collisions_total",
		Help: "no. of paste id allocation collisions",
	})
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pasteor_cache_hits_total",
			Help: "no. of cache hits",
		},
		[]string{"cache"},
	)
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pasteor_cache_misses_total",
			Help: "no. of cache misses",
		},
		[]string{"cache"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pasteor_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)

func Init() {
}
