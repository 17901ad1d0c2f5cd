package model

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Incident 모델 (장애 단위)
// ============================================================================

// IncidentStatus - 라이프사이클 상태. open → investigating → resolved → closed
// (전진 전용, open만 자동 전이)
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentClosed        IncidentStatus = "closed"
)

// CanTransition reports whether moving from s to next is a legal forward step.
func (s IncidentStatus) CanTransition(next IncidentStatus) bool {
	order := map[IncidentStatus]int{
		IncidentOpen:          0,
		IncidentInvestigating: 1,
		IncidentResolved:      2,
		IncidentClosed:        3,
	}
	from, ok := order[s]
	if !ok {
		return false
	}
	to, ok := order[next]
	if !ok {
		return false
	}
	return to > from
}

// ResolutionStep - 운영자 조치 감사 기록
type ResolutionStep struct {
	Actor string    `json:"actor"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	Note  string    `json:"note,omitempty"`
	At    time.Time `json:"at"`
}

// Incident - 하나 이상의 고심각도 Analysis가 승격된 장애 레코드. 삭제되지 않음
type Incident struct {
	IncidentID  string         `json:"incident_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Status      IncidentStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	AssignedTo  *string        `json:"assigned_to"`

	// SourceAnalyses: incident를 구성하는 analysis_id 목록 (항상 1개 이상)
	SourceAnalyses []string `json:"source_analyses"`

	ResolutionSteps []ResolutionStep `json:"resolution_steps"`

	// Metadata: 고정 키 외 확장 필드 (JSONB)
	Metadata json.RawMessage `json:"metadata"`
}

// SimilarIncident - 피처 벡터 기준 인접 incident
type SimilarIncident struct {
	IncidentID string  `json:"incident_id"`
	Title      string  `json:"title"`
	Distance   float64 `json:"distance"`
}

// IncidentListResponse - Incident 목록 조회용 구조체
type IncidentListResponse struct {
	Incidents []Incident `json:"incidents"`
}

// IncidentDetailEnvelope - Incident 상세 API 응답 구조체
type IncidentDetailEnvelope struct {
	Status  string            `json:"status"`
	Data    *Incident         `json:"data"`
	Similar []SimilarIncident `json:"similar_incidents,omitempty"`
}

// UpdateIncidentRequest - Incident 상태 변경 요청 구조체
type UpdateIncidentRequest struct {
	Status     IncidentStatus `json:"status" binding:"required"`
	AssignedTo *string        `json:"assigned_to"`
	Note       string         `json:"note"`
}

// IncidentUpdateResponse - Incident 수정 API 응답 구조체
type IncidentUpdateResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	IncidentID string `json:"incident_id"`
}

// IncidentUpdateEvent - live 채널로 브로드캐스트되는 incident 변경 이벤트
type IncidentUpdateEvent struct {
	Type      string    `json:"type"` // always "incident_update"
	Incident  Incident  `json:"incident"`
	Timestamp time.Time `json:"timestamp"`
}
