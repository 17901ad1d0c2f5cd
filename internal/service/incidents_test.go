package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hostpulse/backend/internal/db"
	"github.com/hostpulse/backend/internal/model"
	"github.com/jackc/pgx/v5"
)

type fakeIncidentRepo struct {
	incidents map[string]*model.Incident
	vectors   map[string][]float32
	similar   []model.SimilarIncident
	outbox    []db.OutboxEntry
	sent      []int64
	nextID    int64
}

func newFakeIncidentRepo() *fakeIncidentRepo {
	return &fakeIncidentRepo{
		incidents: make(map[string]*model.Incident),
		vectors:   make(map[string][]float32),
	}
}

func (f *fakeIncidentRepo) ListIncidents(_ context.Context) ([]model.Incident, error) {
	list := make([]model.Incident, 0, len(f.incidents))
	for _, inc := range f.incidents {
		list = append(list, *inc)
	}
	return list, nil
}

func (f *fakeIncidentRepo) GetIncident(_ context.Context, incidentID string) (*model.Incident, error) {
	inc, ok := f.incidents[incidentID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return inc, nil
}

func (f *fakeIncidentRepo) UpdateIncidentStatus(_ context.Context, incidentID string, next model.IncidentStatus, assignedTo *string, step model.ResolutionStep) (*model.Incident, error) {
	inc, ok := f.incidents[incidentID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	step.From = string(inc.Status)
	step.To = string(next)
	inc.Status = next
	if assignedTo != nil {
		inc.AssignedTo = assignedTo
	}
	inc.ResolutionSteps = append(inc.ResolutionSteps, step)
	return inc, nil
}

func (f *fakeIncidentRepo) GetIncidentVector(_ context.Context, incidentID string) ([]float32, error) {
	vec, ok := f.vectors[incidentID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return vec, nil
}

func (f *fakeIncidentRepo) FindSimilarIncidents(_ context.Context, _ string, _ []float32, _ int) ([]model.SimilarIncident, error) {
	return f.similar, nil
}

func (f *fakeIncidentRepo) EnqueueOutbox(_ context.Context, eventType string, payload json.RawMessage) error {
	f.nextID++
	f.outbox = append(f.outbox, db.OutboxEntry{ID: f.nextID, EventType: eventType, Payload: payload, CreatedAt: time.Now()})
	return nil
}

func (f *fakeIncidentRepo) DequeuePending(_ context.Context, _ int) ([]db.OutboxEntry, error) {
	pending := make([]db.OutboxEntry, 0)
	for _, e := range f.outbox {
		if e.SentAt == nil {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

func (f *fakeIncidentRepo) MarkOutboxSent(_ context.Context, id int64) error {
	for i := range f.outbox {
		if f.outbox[i].ID == id {
			now := time.Now()
			f.outbox[i].SentAt = &now
		}
	}
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeIncidentRepo) PurgeSentOutbox(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	kept := f.outbox[:0]
	var purged int64
	for _, e := range f.outbox {
		if e.SentAt != nil && e.SentAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	f.outbox = kept
	return purged, nil
}

func openIncident(id string) *model.Incident {
	return &model.Incident{
		IncidentID:     id,
		Title:          "cpu anomaly on host-1",
		Severity:       model.SeverityHigh,
		Status:         model.IncidentOpen,
		SourceAnalyses: []string{"a1"},
	}
}

func TestUpdateForwardTransition(t *testing.T) {
	repo := newFakeIncidentRepo()
	repo.incidents["INC-1"] = openIncident("INC-1")
	hub := &fakeHub{}
	svc := NewIncidentService(repo, hub)

	operator := "oncall"
	updated, err := svc.Update(context.Background(), "INC-1", operator, model.UpdateIncidentRequest{
		Status:     model.IncidentInvestigating,
		AssignedTo: &operator,
		Note:       "looking into it",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if updated.Status != model.IncidentInvestigating {
		t.Fatalf("unexpected status: %s", updated.Status)
	}
	if len(updated.ResolutionSteps) != 1 {
		t.Fatalf("expected 1 resolution step, got %d", len(updated.ResolutionSteps))
	}
	step := updated.ResolutionSteps[0]
	if step.Actor != "oncall" || step.From != "open" || step.To != "investigating" {
		t.Fatalf("unexpected step: %+v", step)
	}
	if len(hub.events) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(hub.events))
	}
}

func TestUpdateRejectsBackwardTransition(t *testing.T) {
	repo := newFakeIncidentRepo()
	inc := openIncident("INC-1")
	inc.Status = model.IncidentResolved
	repo.incidents["INC-1"] = inc
	svc := NewIncidentService(repo, &fakeHub{})

	_, err := svc.Update(context.Background(), "INC-1", "oncall", model.UpdateIncidentRequest{
		Status: model.IncidentInvestigating,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpdateRejectsSameStatus(t *testing.T) {
	repo := newFakeIncidentRepo()
	repo.incidents["INC-1"] = openIncident("INC-1")
	svc := NewIncidentService(repo, &fakeHub{})

	_, err := svc.Update(context.Background(), "INC-1", "oncall", model.UpdateIncidentRequest{
		Status: model.IncidentOpen,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpdateUnknownIncident(t *testing.T) {
	svc := NewIncidentService(newFakeIncidentRepo(), &fakeHub{})

	_, err := svc.Update(context.Background(), "INC-missing", "oncall", model.UpdateIncidentRequest{
		Status: model.IncidentClosed,
	})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetIncludesSimilarIncidents(t *testing.T) {
	repo := newFakeIncidentRepo()
	repo.incidents["INC-1"] = openIncident("INC-1")
	repo.vectors["INC-1"] = []float32{1, 2, 3, 4, 5, 6, 7}
	repo.similar = []model.SimilarIncident{{IncidentID: "INC-0", Title: "earlier cpu anomaly", Distance: 0.05}}
	svc := NewIncidentService(repo, &fakeHub{})

	envelope, err := svc.Get(context.Background(), "INC-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if envelope.Data.IncidentID != "INC-1" {
		t.Fatalf("unexpected incident: %+v", envelope.Data)
	}
	if len(envelope.Similar) != 1 || envelope.Similar[0].IncidentID != "INC-0" {
		t.Fatalf("unexpected similar list: %+v", envelope.Similar)
	}
}

func TestGetWithoutVectorOmitsSimilar(t *testing.T) {
	repo := newFakeIncidentRepo()
	repo.incidents["INC-1"] = openIncident("INC-1")
	svc := NewIncidentService(repo, &fakeHub{})

	envelope, err := svc.Get(context.Background(), "INC-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if envelope.Similar != nil {
		t.Fatalf("expected no similar incidents, got %+v", envelope.Similar)
	}
}

type rawHub struct {
	messages [][]byte
	err      error
}

func (h *rawHub) BroadcastRaw(data []byte) error {
	if h.err != nil {
		return h.err
	}
	h.messages = append(h.messages, data)
	return nil
}

func TestReplayOutboxMarksSent(t *testing.T) {
	repo := newFakeIncidentRepo()
	_ = repo.EnqueueOutbox(context.Background(), "incident_update", json.RawMessage(`{"a":1}`))
	_ = repo.EnqueueOutbox(context.Background(), "incident_update", json.RawMessage(`{"a":2}`))
	svc := NewIncidentService(repo, &fakeHub{})

	hub := &rawHub{}
	if err := svc.ReplayOutbox(context.Background(), hub); err != nil {
		t.Fatalf("ReplayOutbox: %v", err)
	}

	if len(hub.messages) != 2 {
		t.Fatalf("expected 2 replayed messages, got %d", len(hub.messages))
	}
	if len(repo.sent) != 2 {
		t.Fatalf("expected 2 entries marked sent, got %d", len(repo.sent))
	}
}

func TestPurgeOutboxKeepsPendingAndRecentRows(t *testing.T) {
	repo := newFakeIncidentRepo()
	_ = repo.EnqueueOutbox(context.Background(), "incident_update", json.RawMessage(`{"a":1}`))
	_ = repo.EnqueueOutbox(context.Background(), "incident_update", json.RawMessage(`{"a":2}`))
	_ = repo.EnqueueOutbox(context.Background(), "incident_update", json.RawMessage(`{"a":3}`))

	// 첫 번째는 보존 기간 이전에 전송 완료, 두 번째는 방금 전송 완료, 세 번째는 미전송
	old := time.Now().Add(-48 * time.Hour)
	repo.outbox[0].SentAt = &old
	now := time.Now()
	repo.outbox[1].SentAt = &now

	svc := NewIncidentService(repo, &fakeHub{})
	purged, err := svc.PurgeOutbox(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeOutbox: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged row, got %d", purged)
	}
	if len(repo.outbox) != 2 {
		t.Fatalf("expected 2 remaining rows, got %d", len(repo.outbox))
	}
	for _, e := range repo.outbox {
		if e.ID == 1 {
			t.Fatal("old sent row should have been purged")
		}
	}
}

func TestReplayOutboxStopsOnBroadcastError(t *testing.T) {
	repo := newFakeIncidentRepo()
	_ = repo.EnqueueOutbox(context.Background(), "incident_update", json.RawMessage(`{"a":1}`))
	svc := NewIncidentService(repo, &fakeHub{})

	hub := &rawHub{err: errors.New("hub closed")}
	if err := svc.ReplayOutbox(context.Background(), hub); err == nil {
		t.Fatal("expected error")
	}
	if len(repo.sent) != 0 {
		t.Fatal("failed broadcast must not be marked sent")
	}
}
