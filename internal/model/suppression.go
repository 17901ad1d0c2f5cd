package model

import "time"

// LearnedPattern - 확정된 false positive들로부터 배치 재계산되는 패턴
// 패턴 저장소가 통째로 교체될 때 함께 저장됨
type LearnedPattern struct {
	AlertType string `json:"alert_type" db:"alert_type"`

	// Centroid: false positive 이벤트들의 피처 평균
	Centroid []float64 `json:"centroid" db:"-"`

	// FPProbability: |false positives| / |confirmed events|
	FPProbability float64 `json:"fp_probability" db:"fp_probability"`

	// Confidence: min(|events|/50, 1)
	Confidence float64 `json:"confidence" db:"confidence"`

	SampleSize  int       `json:"sample_size" db:"sample_size"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// SuppressionDecision - Filter 결과
type SuppressionDecision struct {
	Suppress      bool    `json:"suppress"`
	FPProbability float64 `json:"fp_probability"`
	Reasoning     string  `json:"reasoning"`

	// MatchedRule: 규칙에 의해 억제된 경우 규칙 이름
	MatchedRule string `json:"matched_rule,omitempty"`
}
