package suppression

import (
	"hash/fnv"
	"math"

	"github.com/hostpulse/backend/internal/model"
)

// featureVector flattens an alert into the vector compared against learned
// pattern centroids: metric values, time of day, a stable alert-type code and
// light context. Order matters; centroids are only comparable within one
// layout version (stored alongside patterns as the schema version).
func featureVector(alert model.Alert) []float64 {
	return []float64{
		alert.Metrics["cpu_percent"],
		alert.Metrics["memory_percent"],
		alert.Score,
		float64(alert.Timestamp.Hour()),
		alertTypeCode(alert.AlertType),
		alert.Context.SystemLoad,
		float64(alert.Context.ProcessCount),
	}
}

// alertTypeCode maps an alert type to a stable numeric code.
func alertTypeCode(alertType string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(alertType))
	return float64(h.Sum32() % 100)
}

// cosineSimilarity returns 0 for mismatched lengths or zero vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
