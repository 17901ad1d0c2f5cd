package suppression

import (
	"errors"
	"testing"
	"time"

	"github.com/hostpulse/backend/internal/model"
)

// Wednesday 12:00 UTC, outside every temporal window.
var weekdayNoon = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

func makeAlert(alertType string, severity model.Severity, at time.Time) model.Alert {
	return model.Alert{
		Timestamp: at,
		Severity:  severity,
		Score:     80,
		AlertType: alertType,
		Metrics:   map[string]float64{"cpu_percent": 90, "memory_percent": 50},
		Message:   "test",
	}
}

func TestBurstRuleSuppressesSixthAlert(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	var last model.SuppressionDecision
	for i := 0; i < 6; i++ {
		a := makeAlert("resource_anomaly", model.SeverityHigh, weekdayNoon.Add(time.Duration(i)*10*time.Second))
		last = e.Filter(a)
	}

	if !last.Suppress {
		t.Fatalf("6th alert in burst not suppressed: %+v", last)
	}
	if last.MatchedRule != "burst" {
		t.Fatalf("matched rule = %q, want burst", last.MatchedRule)
	}
}

func TestBurstRuleNeedsMoreThanFive(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	var last model.SuppressionDecision
	for i := 0; i < 5; i++ {
		a := makeAlert("resource_anomaly", model.SeverityHigh, weekdayNoon.Add(time.Duration(i)*10*time.Second))
		last = e.Filter(a)
	}
	if last.MatchedRule == "burst" {
		t.Fatal("burst rule fired with only 5 alerts in window")
	}
}

func TestMaintenanceWindowRule(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	a := makeAlert("resource_anomaly", model.SeverityHigh, weekdayNoon)
	a.Context.MaintenanceMode = true
	d := e.Filter(a)

	if !d.Suppress || d.MatchedRule != "maintenance_window" {
		t.Fatalf("maintenance alert not suppressed by rule: %+v", d)
	}
}

func TestNightLowSeverityRule(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	night := time.Date(2025, 3, 5, 2, 0, 0, 0, time.UTC)

	e.Filter(makeAlert("resource_anomaly", model.SeverityLow, night))
	d := e.Filter(makeAlert("resource_anomaly", model.SeverityMedium, night.Add(10*time.Minute)))

	if !d.Suppress || d.MatchedRule != "night_low_severity" {
		t.Fatalf("night alert not suppressed by rule: %+v", d)
	}
}

func TestThresholdMonotonicity(t *testing.T) {
	// crafted context: recent install (0.4) + high load (0.3) + many procs (0.2) = 0.9
	// no patterns → pattern 0.5; single alert → temporal 0.3
	// fp = 0.4*0.5 + 0.3*0.3 + 0.3*0.9 = 0.56
	alert := makeAlert("resource_anomaly", model.SeverityHigh, weekdayNoon)
	alert.Context = model.AlertContext{SystemLoad: 95, ProcessCount: 200, RecentInstall: true}

	lowThreshold := DefaultConfig()
	lowThreshold.ConfidenceThreshold = 0.5
	d := NewEngine(lowThreshold, nil).Filter(alert)
	if !d.Suppress {
		t.Fatalf("fp=%.2f above threshold 0.5 but not suppressed", d.FPProbability)
	}

	highThreshold := DefaultConfig()
	highThreshold.ConfidenceThreshold = 0.6
	d = NewEngine(highThreshold, nil).Filter(alert)
	if d.Suppress {
		t.Fatalf("fp=%.2f below threshold 0.6 but suppressed (%+v)", d.FPProbability, d)
	}
	if d.FPProbability < 0.55 || d.FPProbability > 0.57 {
		t.Fatalf("fp probability = %v, want 0.56", d.FPProbability)
	}
}

func TestContextScoreClamped(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	got := e.contextScore(model.AlertContext{
		SystemLoad:      95,
		ProcessCount:    500,
		RecentInstall:   true,
		MaintenanceMode: true,
	})
	if got != 1.0 {
		t.Fatalf("context score = %v, want clamped 1.0", got)
	}
}

func TestMarkOutcomeNoMatch(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)
	err := e.MarkOutcome(weekdayNoon, true, 0.9)
	if !errors.Is(err, ErrNoMatchingEvent) {
		t.Fatalf("err = %v, want ErrNoMatchingEvent", err)
	}
}

func TestMarkOutcomeBindsNearestWithinWindow(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	// spaced far apart so no rule fires and both stay in the buffer
	first := makeAlert("resource_anomaly", model.SeverityHigh, weekdayNoon)
	second := makeAlert("resource_anomaly", model.SeverityHigh, weekdayNoon.Add(10*time.Minute))
	e.Filter(first)
	e.Filter(second)

	if err := e.MarkOutcome(weekdayNoon.Add(20*time.Second), true, 0.8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e.mu.Lock()
	firstMarked := e.events[0].WasFalsePositive != nil && *e.events[0].WasFalsePositive
	secondMarked := e.events[1].WasFalsePositive != nil
	e.mu.Unlock()

	if !firstMarked {
		t.Fatal("nearest event not marked")
	}
	if secondMarked {
		t.Fatal("far event wrongly marked")
	}

	// 90s away from both events: outside the 60s window
	err := e.MarkOutcome(weekdayNoon.Add(10*time.Minute+90*time.Second), true, 0.8)
	if !errors.Is(err, ErrNoMatchingEvent) {
		t.Fatalf("err = %v, want ErrNoMatchingEvent for out-of-window timestamp", err)
	}
}

func TestLearningRecomputesExactProbability(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecomputeEvery = 12
	e := NewEngine(cfg, nil)

	// 12 confirmed events for one type, 6 of them false positives.
	// Spacing of 10 minutes keeps every rule and the hourly burst quiet.
	var stamps []time.Time
	for i := 0; i < 12; i++ {
		at := weekdayNoon.Add(time.Duration(i) * 10 * time.Minute)
		stamps = append(stamps, at)
		d := e.Filter(makeAlert("resource_anomaly", model.SeverityHigh, at))
		if d.Suppress {
			t.Fatalf("setup alert %d unexpectedly suppressed: %+v", i, d)
		}
	}

	for i, at := range stamps {
		wasFP := i < 6
		if err := e.MarkOutcome(at, wasFP, 0.9); err != nil {
			t.Fatalf("mark outcome %d: %v", i, err)
		}
	}

	patterns := e.Patterns()
	if len(patterns) != 1 {
		t.Fatalf("pattern count = %d, want 1", len(patterns))
	}
	p := patterns[0]
	if p.FPProbability != 0.5 {
		t.Fatalf("fp probability = %v, want exactly 6/12 = 0.5", p.FPProbability)
	}
	if p.Confidence != 12.0/50.0 {
		t.Fatalf("confidence = %v, want 12/50", p.Confidence)
	}
	if p.SampleSize != 12 {
		t.Fatalf("sample size = %d, want 12", p.SampleSize)
	}
	if len(p.Centroid) == 0 {
		t.Fatal("centroid not computed")
	}
}

func TestRecomputeKeepsTypesBelowThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecomputeEvery = 1
	e := NewEngine(cfg, nil)

	existing := model.LearnedPattern{AlertType: "disk_anomaly", Centroid: []float64{1, 2}, FPProbability: 0.8, Confidence: 0.5}
	e.patterns = []model.LearnedPattern{existing}

	// single confirmation is far below the 10-event threshold
	e.Filter(makeAlert("resource_anomaly", model.SeverityHigh, weekdayNoon))
	if err := e.MarkOutcome(weekdayNoon, true, 0.9); err != nil {
		t.Fatalf("mark outcome: %v", err)
	}

	patterns := e.Patterns()
	if len(patterns) != 1 || patterns[0].AlertType != "disk_anomaly" {
		t.Fatalf("existing pattern discarded by recompute: %+v", patterns)
	}
}

type failingStore struct{}

func (failingStore) Load() ([]model.LearnedPattern, error) {
	return nil, errors.New("corrupt model file")
}

func (failingStore) Replace(patterns []model.LearnedPattern) error { return nil }

func TestLoadFailureDegradesToEmptyModel(t *testing.T) {
	e := NewEngine(DefaultConfig(), failingStore{})
	if len(e.Patterns()) != 0 {
		t.Fatal("expected empty pattern set after load failure")
	}

	// engine must still filter normally with the neutral pattern score
	d := e.Filter(makeAlert("resource_anomaly", model.SeverityHigh, weekdayNoon))
	if d.Suppress {
		t.Fatalf("alert suppressed on empty model: %+v", d)
	}
}

func TestSuppressedAlertsStayOutOfLearningBuffer(t *testing.T) {
	e := NewEngine(DefaultConfig(), nil)

	a := makeAlert("resource_anomaly", model.SeverityHigh, weekdayNoon)
	a.Context.MaintenanceMode = true
	d := e.Filter(a)
	if !d.Suppress {
		t.Fatalf("setup: alert not suppressed: %+v", d)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) != 0 {
		t.Fatalf("learning buffer size = %d, want 0", len(e.events))
	}
}
