// 호스트 리소스 샘플 및 이상 탐지 결과 구조체를 정의
// sampler, detector, monitor 레이어에서 공통으로 사용하기 때문에 model 레이어에 별도로 정의

package model

import "time"

// Severity - 이상 점수의 순서형 분류
type Severity string

const (
	SeverityNormal Severity = "normal"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"

	// SeverityCritical은 중앙 서비스 쪽 Analysis에만 사용 (score >= 90)
	SeverityCritical Severity = "critical"
)

// Sample - 특정 시점의 리소스 사용량 스냅샷
type Sample struct {
	// CPUPercent: 전체 CPU 사용률 (0-100)
	CPUPercent float64 `json:"cpu_percent"`

	// MemoryPercent: 물리 메모리 사용률 (0-100)
	MemoryPercent float64 `json:"memory_percent"`

	// IOCounters: 디스크 read+write bytes 누적값
	IOBytes uint64 `json:"io_bytes"`

	// ProcessCount: 실행 중인 프로세스 수 (context score에 사용)
	ProcessCount int `json:"process_count"`

	Timestamp time.Time `json:"timestamp"`
}

// MetricStats - 단일 메트릭의 (mean, stdev)
type MetricStats struct {
	Mean  float64 `json:"mean"`
	Stdev float64 `json:"stdev"`
}

// Baseline - 호스트별 기준선. 재계산 전까지 불변
type Baseline struct {
	CPU    MetricStats `json:"cpu"`
	Memory MetricStats `json:"memory"`

	// SampleCount: baseline 계산에 사용된 샘플 수
	SampleCount int       `json:"sample_count"`
	ComputedAt  time.Time `json:"computed_at"`
}

// AnomalyResult - 단일 샘플에 대한 이상 점수
type AnomalyResult struct {
	// Score: [0,100] 범위로 clamp된 이상 점수
	Score float64 `json:"score"`

	Severity Severity `json:"severity"`

	// ZScores: 메트릭별 z-score (stdev==0이면 0)
	ZScores map[string]float64 `json:"z_scores"`

	Timestamp time.Time `json:"timestamp"`
}
