package model

import "time"

// Alert - monitoring loop가 medium 이상 severity에서 발행하는 이벤트
type Alert struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Score     float64   `json:"score"`

	// AlertType: 알림 분류 (예: "resource_anomaly")
	AlertType string `json:"alert_type"`

	// Metrics: 알림 발생 시점의 메트릭 값
	Metrics map[string]float64 `json:"metrics"`

	Message string `json:"message"`

	// Context: 억제 엔진 휴리스틱에 쓰이는 부가 정보
	Context AlertContext `json:"context"`
}

// AlertContext - 알림 시점의 호스트 상황
// 고정 키만 사용하고, 그 외 정보는 Extra로 전달
type AlertContext struct {
	SystemLoad      float64 `json:"system_load"`
	ProcessCount    int     `json:"process_count"`
	RecentInstall   bool    `json:"recent_install"`
	MaintenanceMode bool    `json:"maintenance_mode"`

	Extra map[string]string `json:"extra,omitempty"`
}

// AlertEvent - 억제 엔진이 학습 버퍼에 보관하는 알림 뷰
// WasFalsePositive는 사람이 확정하기 전까지 nil
type AlertEvent struct {
	Alert Alert `json:"alert"`

	// Features: 패턴 매칭용 피처 벡터 (metrics + time-of-day + type code + context)
	Features []float64 `json:"features"`

	WasFalsePositive *bool   `json:"was_false_positive,omitempty"`
	Confidence       float64 `json:"confidence"`
}
