package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hostpulse/backend/internal/crypto"
	"github.com/hostpulse/backend/internal/model"
	"github.com/jackc/pgx/v5"
)

type storedAnalysis struct {
	clientID string
	sealed   []byte
	severity model.Severity
	incident *string
}

type fakeIngestRepo struct {
	analyses  map[string]*storedAnalysis
	incidents map[string]*model.Incident
	vectors   map[string][]float32
	outbox    []string
}

func newFakeIngestRepo() *fakeIngestRepo {
	return &fakeIngestRepo{
		analyses:  make(map[string]*storedAnalysis),
		incidents: make(map[string]*model.Incident),
		vectors:   make(map[string][]float32),
	}
}

func (f *fakeIngestRepo) InsertAnalysis(_ context.Context, analysisID, clientID, _ string, _ time.Time, sealedPayload []byte, severity model.Severity) error {
	f.analyses[analysisID] = &storedAnalysis{clientID: clientID, sealed: sealedPayload, severity: severity}
	return nil
}

func (f *fakeIngestRepo) LinkAnalysisToIncident(_ context.Context, analysisID, incidentID string) error {
	a, ok := f.analyses[analysisID]
	if !ok {
		return pgx.ErrNoRows
	}
	if a.incident != nil {
		return errors.New("incident_id already set")
	}
	a.incident = &incidentID
	return nil
}

func (f *fakeIngestRepo) GetOpenIncidentForClient(_ context.Context, clientID string) (*model.Incident, error) {
	for _, inc := range f.incidents {
		if inc.Status != model.IncidentOpen {
			continue
		}
		for _, aid := range inc.SourceAnalyses {
			if a, ok := f.analyses[aid]; ok && a.clientID == clientID {
				return inc, nil
			}
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeIngestRepo) AttachAnalysisToIncident(_ context.Context, incidentID, analysisID string, severity model.Severity) error {
	inc, ok := f.incidents[incidentID]
	if !ok {
		return pgx.ErrNoRows
	}
	inc.SourceAnalyses = append(inc.SourceAnalyses, analysisID)
	if severity == model.SeverityCritical {
		inc.Severity = model.SeverityCritical
	}
	return nil
}

func (f *fakeIngestRepo) CreateIncident(_ context.Context, inc model.Incident) error {
	copied := inc
	f.incidents[inc.IncidentID] = &copied
	return nil
}

func (f *fakeIngestRepo) GetIncident(_ context.Context, incidentID string) (*model.Incident, error) {
	inc, ok := f.incidents[incidentID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return inc, nil
}

func (f *fakeIngestRepo) GetSealedAnalysis(_ context.Context, analysisID string) (*model.Analysis, []byte, error) {
	a, ok := f.analyses[analysisID]
	if !ok {
		return nil, nil, pgx.ErrNoRows
	}
	return &model.Analysis{
		AnalysisID: analysisID,
		ClientID:   a.clientID,
		Severity:   a.severity,
		IncidentID: a.incident,
	}, a.sealed, nil
}

func (f *fakeIngestRepo) UpsertIncidentVector(_ context.Context, incidentID string, features []float32) error {
	f.vectors[incidentID] = features
	return nil
}

func (f *fakeIngestRepo) EnqueueOutbox(_ context.Context, eventType string, _ json.RawMessage) error {
	f.outbox = append(f.outbox, eventType)
	return nil
}

type fakeHub struct {
	events []model.Incident
	err    error
}

func (h *fakeHub) BroadcastIncident(inc model.Incident) error {
	if h.err != nil {
		return h.err
	}
	h.events = append(h.events, inc)
	return nil
}

func testBox(t *testing.T) *crypto.Box {
	t.Helper()
	box, err := crypto.NewBox(bytes.Repeat([]byte{7}, 32))
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	return box
}

func alertData() json.RawMessage {
	return json.RawMessage(`{"metrics":{"cpu_percent":95,"memory_percent":60},"score":88,"context":{"system_load":3.2,"process_count":120}}`)
}

func TestSubmitLowSeverityStoresWithoutIncident(t *testing.T) {
	repo := newFakeIngestRepo()
	hub := &fakeHub{}
	svc := NewIngestService(repo, testBox(t), hub)

	resp, err := svc.Submit(context.Background(), "host-1", model.SubmitAnalysisRequest{
		Type:     "anomaly",
		Data:     alertData(),
		Severity: model.SeverityLow,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.IncidentID != nil {
		t.Fatal("low severity must not open an incident")
	}
	if len(repo.analyses) != 1 {
		t.Fatalf("expected 1 stored analysis, got %d", len(repo.analyses))
	}
	if len(repo.incidents) != 0 {
		t.Fatal("no incident expected")
	}
	if len(hub.events) != 0 {
		t.Fatal("no broadcast expected")
	}
}

func TestSubmitSealsPayloadAtRest(t *testing.T) {
	repo := newFakeIngestRepo()
	box := testBox(t)
	svc := NewIngestService(repo, box, &fakeHub{})

	plaintext := alertData()
	resp, err := svc.Submit(context.Background(), "host-1", model.SubmitAnalysisRequest{
		Type:     "anomaly",
		Data:     plaintext,
		Severity: model.SeverityLow,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	stored := repo.analyses[resp.AnalysisID]
	if bytes.Contains(stored.sealed, []byte("cpu_percent")) {
		t.Fatal("stored payload must not contain plaintext")
	}
	opened, err := box.Open(stored.sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatal("decrypted payload does not round-trip")
	}
}

func TestSubmitHighSeverityOpensIncident(t *testing.T) {
	repo := newFakeIngestRepo()
	hub := &fakeHub{}
	svc := NewIngestService(repo, testBox(t), hub)

	resp, err := svc.Submit(context.Background(), "host-1", model.SubmitAnalysisRequest{
		Type:     "anomaly",
		Data:     alertData(),
		Severity: model.SeverityHigh,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.IncidentID == nil {
		t.Fatal("expected an incident id")
	}

	inc := repo.incidents[*resp.IncidentID]
	if inc == nil {
		t.Fatal("incident not stored")
	}
	if inc.Status != model.IncidentOpen {
		t.Fatalf("expected open status, got %s", inc.Status)
	}
	if len(inc.SourceAnalyses) != 1 || inc.SourceAnalyses[0] != resp.AnalysisID {
		t.Fatalf("unexpected source analyses: %v", inc.SourceAnalyses)
	}
	if got := repo.analyses[resp.AnalysisID].incident; got == nil || *got != *resp.IncidentID {
		t.Fatal("analysis not linked to incident")
	}
	if len(repo.vectors[*resp.IncidentID]) != 7 {
		t.Fatalf("expected 7-dim feature vector, got %v", repo.vectors[*resp.IncidentID])
	}
	if len(hub.events) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(hub.events))
	}
}

func TestSecondHighSeveritySubmissionJoinsOpenIncident(t *testing.T) {
	repo := newFakeIngestRepo()
	svc := NewIngestService(repo, testBox(t), &fakeHub{})

	first, err := svc.Submit(context.Background(), "host-1", model.SubmitAnalysisRequest{
		Type: "anomaly", Data: alertData(), Severity: model.SeverityHigh,
	})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := svc.Submit(context.Background(), "host-1", model.SubmitAnalysisRequest{
		Type: "anomaly", Data: alertData(), Severity: model.SeverityHigh,
	})
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	if *first.IncidentID != *second.IncidentID {
		t.Fatalf("expected one incident, got %s and %s", *first.IncidentID, *second.IncidentID)
	}
	if len(repo.incidents) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(repo.incidents))
	}
	inc := repo.incidents[*first.IncidentID]
	if len(inc.SourceAnalyses) != 2 {
		t.Fatalf("expected 2 source analyses, got %v", inc.SourceAnalyses)
	}
}

func TestCriticalSubmissionEscalatesExistingIncident(t *testing.T) {
	repo := newFakeIngestRepo()
	svc := NewIngestService(repo, testBox(t), &fakeHub{})

	first, err := svc.Submit(context.Background(), "host-1", model.SubmitAnalysisRequest{
		Type: "anomaly", Data: alertData(), Severity: model.SeverityHigh,
	})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := svc.Submit(context.Background(), "host-1", model.SubmitAnalysisRequest{
		Type: "anomaly", Data: alertData(), Severity: model.SeverityCritical,
	}); err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	if got := repo.incidents[*first.IncidentID].Severity; got != model.SeverityCritical {
		t.Fatalf("expected escalation to critical, got %s", got)
	}
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	svc := NewIngestService(newFakeIngestRepo(), testBox(t), &fakeHub{})

	cases := []struct {
		name string
		req  model.SubmitAnalysisRequest
	}{
		{"missing type", model.SubmitAnalysisRequest{Data: alertData(), Severity: model.SeverityLow}},
		{"missing data", model.SubmitAnalysisRequest{Type: "anomaly", Severity: model.SeverityLow}},
		{"invalid json", model.SubmitAnalysisRequest{Type: "anomaly", Data: json.RawMessage("{"), Severity: model.SeverityLow}},
		{"unknown severity", model.SubmitAnalysisRequest{Type: "anomaly", Data: alertData(), Severity: "urgent"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Submit(context.Background(), "host-1", tc.req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestGetAnalysisReturnsDecryptedPayload(t *testing.T) {
	repo := newFakeIngestRepo()
	svc := NewIngestService(repo, testBox(t), &fakeHub{})

	plaintext := alertData()
	resp, err := svc.Submit(context.Background(), "host-1", model.SubmitAnalysisRequest{
		Type:     "anomaly",
		Data:     plaintext,
		Severity: model.SeverityLow,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	analysis, err := svc.GetAnalysis(context.Background(), resp.AnalysisID)
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if analysis.ClientID != "host-1" {
		t.Fatalf("unexpected client id %q", analysis.ClientID)
	}
	if !bytes.Equal(analysis.Payload, plaintext) {
		t.Fatalf("expected decrypted payload, got %s", analysis.Payload)
	}
}

func TestGetAnalysisUnknownID(t *testing.T) {
	svc := NewIngestService(newFakeIngestRepo(), testBox(t), &fakeHub{})

	if _, err := svc.GetAnalysis(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetAnalysis(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBroadcastFailureFallsBackToOutbox(t *testing.T) {
	repo := newFakeIngestRepo()
	hub := &fakeHub{err: errors.New("hub closed")}
	svc := NewIngestService(repo, testBox(t), hub)

	resp, err := svc.Submit(context.Background(), "host-1", model.SubmitAnalysisRequest{
		Type: "anomaly", Data: alertData(), Severity: model.SeverityHigh,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.IncidentID == nil {
		t.Fatal("incident should still be opened")
	}
	if len(repo.outbox) != 1 || repo.outbox[0] != "incident_update" {
		t.Fatalf("expected outbox fallback, got %v", repo.outbox)
	}
}
