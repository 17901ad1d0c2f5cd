package model

import (
	"encoding/json"
	"time"
)

// Analysis - 클라이언트가 제출한 분석 레코드 (append-only)
// Payload는 저장 시 서버측 키로 암호화됨
type Analysis struct {
	AnalysisID string          `json:"analysis_id"`
	ClientID   string          `json:"client_id"`
	Type       string          `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Severity   Severity        `json:"severity"`
	Status     string          `json:"status"`

	// IncidentID: 한 번 설정되면 변경되지 않음
	IncidentID *string `json:"incident_id"`

	CreatedAt time.Time `json:"created_at"`
}

// SubmitAnalysisRequest - POST /api/v1/analysis 요청 구조체
type SubmitAnalysisRequest struct {
	Type      string          `json:"type" binding:"required"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data" binding:"required"`
	Severity  Severity        `json:"severity" binding:"required"`
}

// SubmitAnalysisResponse - POST /api/v1/analysis 응답 구조체
type SubmitAnalysisResponse struct {
	Status     string  `json:"status"`
	AnalysisID string  `json:"analysis_id"`
	IncidentID *string `json:"incident_id,omitempty"`
}
