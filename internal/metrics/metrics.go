// Prometheus 지표 정의. /metrics 에서 노출
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostpulse",
		Name:      "analyses_ingested_total",
		Help:      "Number of analysis submissions accepted.",
	}, []string{"severity"})

	IncidentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hostpulse",
		Name:      "incidents_created_total",
		Help:      "Number of incidents opened from high-severity analyses.",
	})

	BroadcastsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hostpulse",
		Name:      "ws_broadcasts_dropped_total",
		Help:      "Number of websocket messages dropped due to full subscriber buffers.",
	})

	BackupsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostpulse",
		Name:      "backups_completed_total",
		Help:      "Number of backup runs, partitioned by outcome.",
	}, []string{"result"})
)
