package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hostpulse/backend/internal/db"
	"github.com/hostpulse/backend/internal/model"
)

// IncidentRepo - 라이프사이클 관리가 쓰는 저장소 표면. *db.Postgres가 구현
type IncidentRepo interface {
	ListIncidents(ctx context.Context) ([]model.Incident, error)
	GetIncident(ctx context.Context, incidentID string) (*model.Incident, error)
	UpdateIncidentStatus(ctx context.Context, incidentID string, next model.IncidentStatus, assignedTo *string, step model.ResolutionStep) (*model.Incident, error)
	GetIncidentVector(ctx context.Context, incidentID string) ([]float32, error)
	FindSimilarIncidents(ctx context.Context, incidentID string, features []float32, limit int) ([]model.SimilarIncident, error)
	EnqueueOutbox(ctx context.Context, eventType string, payload json.RawMessage) error
	DequeuePending(ctx context.Context, limit int) ([]db.OutboxEntry, error)
	MarkOutboxSent(ctx context.Context, id int64) error
	PurgeSentOutbox(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IncidentService - incident 조회와 운영자 라이프사이클 관리
type IncidentService struct {
	repo IncidentRepo
	hub  IncidentBroadcaster
}

func NewIncidentService(repo IncidentRepo, hub IncidentBroadcaster) *IncidentService {
	return &IncidentService{repo: repo, hub: hub}
}

func (s *IncidentService) List(ctx context.Context) ([]model.Incident, error) {
	return s.repo.ListIncidents(ctx)
}

// Get - incident 상세 + 피처 벡터 기준 유사 incident 목록
func (s *IncidentService) Get(ctx context.Context, incidentID string) (*model.IncidentDetailEnvelope, error) {
	inc, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	envelope := &model.IncidentDetailEnvelope{
		Status: "ok",
		Data:   inc,
	}

	similar, err := s.similarTo(ctx, incidentID)
	if err != nil {
		// 유사 incident 조회 실패는 상세 응답을 막지 않는다
		log.Printf("[Incident] similar lookup failed for %s: %v", incidentID, err)
	} else {
		envelope.Similar = similar
	}

	return envelope, nil
}

// Update - 운영자 상태 전이. 전진 전용, 역방향/동일 상태는 ErrInvalidInput
func (s *IncidentService) Update(ctx context.Context, incidentID, actor string, req model.UpdateIncidentRequest) (*model.Incident, error) {
	current, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !current.Status.CanTransition(req.Status) {
		return nil, fmt.Errorf("%w: cannot transition %s from %s to %s",
			ErrInvalidInput, incidentID, current.Status, req.Status)
	}

	step := model.ResolutionStep{
		Actor: actor,
		Note:  req.Note,
		At:    time.Now(),
	}

	updated, err := s.repo.UpdateIncidentStatus(ctx, incidentID, req.Status, req.AssignedTo, step)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, *updated)
	return updated, nil
}

// ReplayOutbox - 브로드캐스트 실패분 재전송. 주기 작업에서 호출
func (s *IncidentService) ReplayOutbox(ctx context.Context, hub interface{ BroadcastRaw([]byte) error }) error {
	entries, err := s.repo.DequeuePending(ctx, 100)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := hub.BroadcastRaw(entry.Payload); err != nil {
			return err
		}
		if err := s.repo.MarkOutboxSent(ctx, entry.ID); err != nil {
			return err
		}
	}
	return nil
}

// PurgeOutbox - 전송 완료된 outbox 행 중 보존 기간이 지난 것을 정리
func (s *IncidentService) PurgeOutbox(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.repo.PurgeSentOutbox(ctx, olderThan)
}

func (s *IncidentService) similarTo(ctx context.Context, incidentID string) ([]model.SimilarIncident, error) {
	// 벡터가 없는 incident는 빈 목록
	features, err := s.repo.GetIncidentVector(ctx, incidentID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return s.repo.FindSimilarIncidents(ctx, incidentID, features, 5)
}

func (s *IncidentService) broadcast(ctx context.Context, inc model.Incident) {
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
		log.Printf("[Incident] failed to marshal incident event: %v", err)
		return
	}
	if err := s.repo.EnqueueOutbox(ctx, "incident_update", payload); err != nil {
		log.Printf("[Incident] failed to enqueue outbox event: %v", err)
	}
}
