package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hostpulse/backend/internal/crypto"
	"github.com/hostpulse/backend/internal/db"
	"github.com/hostpulse/backend/internal/metrics"
	"github.com/hostpulse/backend/internal/model"
)

const maxPayloadBytes = 256 * 1024

// IncidentBroadcaster - incident 변경을 실시간 채널로 내보내는 쪽의 최소 계약
type IncidentBroadcaster interface {
	BroadcastIncident(inc model.Incident) error
}

// IngestRepo - 제출 파이프라인이 쓰는 저장소 표면. *db.Postgres가 구현
type IngestRepo interface {
	InsertAnalysis(ctx context.Context, analysisID, clientID, analysisType string, observedAt time.Time, sealedPayload []byte, severity model.Severity) error
	LinkAnalysisToIncident(ctx context.Context, analysisID, incidentID string) error
	GetOpenIncidentForClient(ctx context.Context, clientID string) (*model.Incident, error)
	AttachAnalysisToIncident(ctx context.Context, incidentID, analysisID string, severity model.Severity) error
	CreateIncident(ctx context.Context, inc model.Incident) error
	GetIncident(ctx context.Context, incidentID string) (*model.Incident, error)
	GetSealedAnalysis(ctx context.Context, analysisID string) (*model.Analysis, []byte, error)
	UpsertIncidentVector(ctx context.Context, incidentID string, features []float32) error
	EnqueueOutbox(ctx context.Context, eventType string, payload json.RawMessage) error
}

// IngestService - 분석 제출 파이프라인.
// 검증 -> payload 암호화 -> append-only 저장 -> 고심각도면 incident 승격 -> 브로드캐스트
type IngestService struct {
	repo IngestRepo
	box  *crypto.Box
	hub  IncidentBroadcaster

	// clientMu: 같은 클라이언트의 동시 제출이 중복 incident를 만들지 않도록 직렬화
	clientMu sync.Map
}

func NewIngestService(repo IngestRepo, box *crypto.Box, hub IncidentBroadcaster) *IngestService {
	return &IngestService{
		repo: repo,
		box:  box,
		hub:  hub,
	}
}

// Submit - 분석 레코드 수락. 반환된 IncidentID는 고심각도로 incident에 연결된 경우에만 설정됨
func (s *IngestService) Submit(ctx context.Context, clientID string, req model.SubmitAnalysisRequest) (*model.SubmitAnalysisResponse, error) {
	if err := validateSubmission(req); err != nil {
		return nil, err
	}

	observedAt := req.Timestamp
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	sealed, err := s.box.Seal(req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to seal payload: %w", err)
	}

	analysisID := uuid.NewString()
	if err := s.repo.InsertAnalysis(ctx, analysisID, clientID, req.Type, observedAt, sealed, req.Severity); err != nil {
		return nil, err
	}
	metrics.AnalysesIngested.WithLabelValues(string(req.Severity)).Inc()

	resp := &model.SubmitAnalysisResponse{
		Status:     "accepted",
		AnalysisID: analysisID,
	}

	if req.Severity != model.SeverityHigh && req.Severity != model.SeverityCritical {
		return resp, nil
	}

	incidentID, err := s.promote(ctx, clientID, analysisID, req)
	if err != nil {
		// analysis는 이미 저장됨. 승격 실패는 제출 자체를 실패시키지 않는다
		log.Printf("[Ingest] failed to promote analysis %s: %v", analysisID, err)
		return resp, nil
	}

	resp.IncidentID = &incidentID
	return resp, nil
}

// GetAnalysis - 저장된 분석을 복호화해 돌려준다 (운영자 조회 경로)
func (s *IngestService) GetAnalysis(ctx context.Context, analysisID string) (*model.Analysis, error) {
	if strings.TrimSpace(analysisID) == "" {
		return nil, fmt.Errorf("%w: analysis id is required", ErrInvalidInput)
	}

	analysis, sealed, err := s.repo.GetSealedAnalysis(ctx, analysisID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("%w: analysis %s", ErrNotFound, analysisID)
		}
		return nil, err
	}

	plaintext, err := s.box.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload for %s: %w", analysisID, err)
	}
	analysis.Payload = plaintext
	return analysis, nil
}

// promote - 고심각도 분석을 incident로 승격.
// 같은 클라이언트의 open incident가 있으면 거기에 붙이고, 없으면 새로 연다
func (s *IngestService) promote(ctx context.Context, clientID, analysisID string, req model.SubmitAnalysisRequest) (string, error) {
	muIface, _ := s.clientMu.LoadOrStore(clientID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.repo.GetOpenIncidentForClient(ctx, clientID)
	if err != nil && !db.IsNoRows(err) {
		return "", err
	}

	if existing != nil {
		if err := s.repo.AttachAnalysisToIncident(ctx, existing.IncidentID, analysisID, req.Severity); err != nil {
			return "", err
		}
		if err := s.repo.LinkAnalysisToIncident(ctx, analysisID, existing.IncidentID); err != nil {
			return "", err
		}

		updated, err := s.repo.GetIncident(ctx, existing.IncidentID)
		if err == nil {
			s.broadcast(ctx, *updated)
		}
		return existing.IncidentID, nil
	}

	incident := model.Incident{
		IncidentID:      newIncidentID(),
		Title:           fmt.Sprintf("%s anomaly on %s", req.Type, clientID),
		Description:     fmt.Sprintf("Opened from %s analysis submitted by %s.", req.Severity, clientID),
		Severity:        req.Severity,
		Status:          model.IncidentOpen,
		SourceAnalyses:  []string{analysisID},
		ResolutionSteps: []model.ResolutionStep{},
		Metadata:        json.RawMessage(fmt.Sprintf(`{"client_id":%q}`, clientID)),
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return "", err
	}
	if err := s.repo.LinkAnalysisToIncident(ctx, analysisID, incident.IncidentID); err != nil {
		return "", err
	}
	metrics.IncidentsCreated.Inc()

	if features := incidentFeatures(req); features != nil {
		if err := s.repo.UpsertIncidentVector(ctx, incident.IncidentID, features); err != nil {
			log.Printf("[Ingest] failed to store incident vector for %s: %v", incident.IncidentID, err)
		}
	}

	s.broadcast(ctx, incident)
	return incident.IncidentID, nil
}

// broadcast - 실시간 채널 전달, 실패 시 outbox로 우회해 내구성 확보
func (s *IngestService) broadcast(ctx context.Context, inc model.Incident) {
	if err := s.hub.BroadcastIncident(inc); err == nil {
		return
	}

	event := model.IncidentUpdateEvent{
		Type:      "incident_update",
		Incident:  inc,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Ingest] failed to marshal incident event: %v", err)
		return
	}
	if err := s.repo.EnqueueOutbox(ctx, "incident_update", payload); err != nil {
		log.Printf("[Ingest] failed to enqueue outbox event: %v", err)
	}
}

func validateSubmission(req model.SubmitAnalysisRequest) error {
	if strings.TrimSpace(req.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidInput)
	}
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: data is required", ErrInvalidInput)
	}
	if len(req.Data) > maxPayloadBytes {
		return fmt.Errorf("%w: data exceeds %d bytes", ErrInvalidInput, maxPayloadBytes)
	}
	if !json.Valid(req.Data) {
		return fmt.Errorf("%w: data must be valid JSON", ErrInvalidInput)
	}
	switch req.Severity {
	case model.SeverityNormal, model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical:
	default:
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, req.Severity)
	}
	return nil
}

func newIncidentID() string {
	return fmt.Sprintf("INC-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
}

// incidentFeatures - 제출 payload에서 유사 incident 검색용 피처 벡터를 뽑는다.
// 에이전트 alert payload 형식이 아니면 nil (벡터 없는 incident도 유효)
func incidentFeatures(req model.SubmitAnalysisRequest) []float32 {
	var payload struct {
		Metrics struct {
			CPUPercent    float64 `json:"cpu_percent"`
			MemoryPercent float64 `json:"memory_percent"`
		} `json:"metrics"`
		Score   float64 `json:"score"`
		Context struct {
			SystemLoad   float64 `json:"system_load"`
			ProcessCount int     `json:"process_count"`
		} `json:"context"`
	}
	if err := json.Unmarshal(req.Data, &payload); err != nil {
		return nil
	}
	if payload.Metrics.CPUPercent == 0 && payload.Metrics.MemoryPercent == 0 && payload.Score == 0 {
		return nil
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return []float32{
		float32(payload.Metrics.CPUPercent),
		float32(payload.Metrics.MemoryPercent),
		float32(payload.Score),
		float32(ts.Hour()),
		float32(severityCode(req.Severity)),
		float32(payload.Context.SystemLoad),
		float32(payload.Context.ProcessCount),
	}
}

func severityCode(sev model.Severity) int {
	switch sev {
	case model.SeverityCritical:
		return 4
	case model.SeverityHigh:
		return 3
	case model.SeverityMedium:
		return 2
	case model.SeverityLow:
		return 1
	default:
		return 0
	}
}
