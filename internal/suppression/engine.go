// Package suppression filters alerts for false-positive noise before they
// reach the central service. The decision blends three signals: similarity to
// learned false-positive patterns, temporal heuristics over recent alert
// history, and host context, plus a set of static veto rules.
//
// The weights are operator-tunable constants, not data-derived invariants.
package suppression

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hostpulse/backend/internal/model"
)

var ErrNoMatchingEvent = errors.New("no alert event near timestamp")

type Config struct {
	// Blend weights. Must sum to 1 for fp_probability to stay in [0,1].
	PatternWeight  float64
	TemporalWeight float64
	ContextWeight  float64

	// ConfidenceThreshold: fp_probability above this suppresses the alert.
	ConfidenceThreshold float64

	// SimilarityThreshold: minimum cosine similarity for a pattern to count.
	SimilarityThreshold float64

	// Burst rule: more than BurstCount same-type alerts within BurstWindow.
	BurstCount  int
	BurstWindow time.Duration

	// Temporal burst heuristic: more than HourlyBurstCount same-type in 1h.
	HourlyBurstCount int

	// Night window [0, NightEndHour).
	NightEndHour int

	// Context thresholds.
	HighLoadPercent  float64
	HighProcessCount int

	// Learning.
	EventBufferSize  int
	RecomputeEvery   int
	MinEventsPerType int
	MinFPPerType     int

	// OutcomeMatchWindow: max distance between a confirmation timestamp and
	// the event it binds to.
	OutcomeMatchWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		PatternWeight:       0.4,
		TemporalWeight:      0.3,
		ContextWeight:       0.3,
		ConfidenceThreshold: 0.7,
		SimilarityThreshold: 0.8,
		BurstCount:          5,
		BurstWindow:         300 * time.Second,
		HourlyBurstCount:    5,
		NightEndHour:        6,
		HighLoadPercent:     80,
		HighProcessCount:    150,
		EventBufferSize:     1000,
		RecomputeEvery:      25,
		MinEventsPerType:    10,
		MinFPPerType:        5,
		OutcomeMatchWindow:  60 * time.Second,
	}
}

// PatternStore persists learned patterns. Replace swaps the whole set.
type PatternStore interface {
	Load() ([]model.LearnedPattern, error)
	Replace(patterns []model.LearnedPattern) error
}

type Engine struct {
	cfg   Config
	rules []Rule
	store PatternStore

	// patterns are mutated only by the batch recompute step; Filter reads a
	// stale-but-consistent snapshot under the read lock.
	patternsMu sync.RWMutex
	patterns   []model.LearnedPattern

	mu            sync.Mutex
	recent        []recordedAlert     // every filtered alert, rule/temporal history
	events        []model.AlertEvent  // learning buffer, non-suppressed only
	confirmations int
}

// NewEngine loads persisted patterns from the store. A load failure degrades
// to an empty pattern set and is never fatal.
func NewEngine(cfg Config, store PatternStore) *Engine {
	e := &Engine{cfg: cfg, rules: defaultRules(cfg), store: store}

	if store != nil {
		patterns, err := store.Load()
		if err != nil {
			log.Printf("[Suppression] Pattern load failed, starting with empty model: %v", err)
		} else {
			e.patterns = patterns
		}
	}
	return e
}

// Patterns returns a copy of the current learned pattern set.
func (e *Engine) Patterns() []model.LearnedPattern {
	e.patternsMu.RLock()
	defer e.patternsMu.RUnlock()
	out := make([]model.LearnedPattern, len(e.patterns))
	copy(out, e.patterns)
	return out
}

// Filter decides whether the alert should be suppressed. Non-suppressed
// alerts enter the learning buffer; every alert enters the rule history.
func (e *Engine) Filter(alert model.Alert) model.SuppressionDecision {
	now := alert.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	features := featureVector(alert)

	e.mu.Lock()
	e.recordAlert(alert, now)
	history := make([]recordedAlert, len(e.recent))
	copy(history, e.recent)
	e.mu.Unlock()

	patternScore := e.patternMatchScore(features)
	temporalScore := e.temporalScore(alert, history, now)
	contextScore := e.contextScore(alert.Context)

	fp := e.cfg.PatternWeight*patternScore +
		e.cfg.TemporalWeight*temporalScore +
		e.cfg.ContextWeight*contextScore

	decision := model.SuppressionDecision{
		FPProbability: fp,
		Reasoning: fmt.Sprintf("pattern=%.2f temporal=%.2f context=%.2f weighted=%.2f",
			patternScore, temporalScore, contextScore, fp),
	}

	for _, rule := range e.rules {
		if rule.Fires(alert, history, now) {
			decision.Suppress = true
			decision.MatchedRule = rule.Name
			decision.Reasoning += "; rule " + rule.Name + " fired"
			break
		}
	}

	if !decision.Suppress && fp > e.cfg.ConfidenceThreshold {
		decision.Suppress = true
		decision.Reasoning += fmt.Sprintf("; fp_probability %.2f > threshold %.2f", fp, e.cfg.ConfidenceThreshold)
	}

	if !decision.Suppress {
		e.mu.Lock()
		e.events = append(e.events, model.AlertEvent{Alert: alert, Features: features})
		if len(e.events) > e.cfg.EventBufferSize {
			e.events = e.events[len(e.events)-e.cfg.EventBufferSize:]
		}
		e.mu.Unlock()
	}

	return decision
}

// MarkOutcome records a human confirmation against the nearest buffered event
// within the match window. This is the only feedback path into learning.
// Every RecomputeEvery-th confirmation triggers a pattern recompute pass.
func (e *Engine) MarkOutcome(alertTimestamp time.Time, wasFalsePositive bool, confidence float64) error {
	e.mu.Lock()

	best := -1
	bestDist := e.cfg.OutcomeMatchWindow
	for i := range e.events {
		dist := absDuration(e.events[i].Alert.Timestamp.Sub(alertTimestamp))
		if dist <= bestDist {
			best = i
			bestDist = dist
		}
	}
	if best < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoMatchingEvent, alertTimestamp.Format(time.RFC3339))
	}

	e.events[best].WasFalsePositive = &wasFalsePositive
	e.events[best].Confidence = confidence
	e.confirmations++
	recompute := e.confirmations%e.cfg.RecomputeEvery == 0

	var confirmed []model.AlertEvent
	if recompute {
		for _, ev := range e.events {
			if ev.WasFalsePositive != nil {
				confirmed = append(confirmed, ev)
			}
		}
	}
	e.mu.Unlock()

	if recompute {
		e.recomputePatterns(confirmed)
	}
	return nil
}

func (e *Engine) recordAlert(alert model.Alert, now time.Time) {
	e.recent = append(e.recent, recordedAlert{
		alertType:   alert.AlertType,
		severity:    alert.Severity,
		maintenance: alert.Context.MaintenanceMode,
		at:          now,
	})
	if len(e.recent) > e.cfg.EventBufferSize {
		e.recent = e.recent[len(e.recent)-e.cfg.EventBufferSize:]
	}
}

// patternMatchScore keeps similarities above the threshold, weights each by
// the pattern's own probability×confidence, and takes the max. With no
// patterns the signal is neutral (0.5).
func (e *Engine) patternMatchScore(features []float64) float64 {
	e.patternsMu.RLock()
	defer e.patternsMu.RUnlock()

	if len(e.patterns) == 0 {
		return 0.5
	}

	best := 0.0
	matched := false
	for _, p := range e.patterns {
		sim := cosineSimilarity(features, p.Centroid)
		if sim <= e.cfg.SimilarityThreshold {
			continue
		}
		matched = true
		weighted := sim * p.FPProbability * p.Confidence
		if weighted > best {
			best = weighted
		}
	}
	if !matched {
		return 0.5
	}
	return best
}

func (e *Engine) temporalScore(alert model.Alert, history []recordedAlert, now time.Time) float64 {
	sameType := 0
	cutoff := now.Add(-time.Hour)
	for _, r := range history {
		if r.alertType == alert.AlertType && !r.at.Before(cutoff) {
			sameType++
		}
	}

	// history always contains the current alert; anything beyond it counts
	// as recent data
	if sameType <= 1 {
		return 0.3
	}

	switch {
	case sameType > e.cfg.HourlyBurstCount:
		return 0.8
	case now.Hour() < e.cfg.NightEndHour:
		return 0.6
	case now.Weekday() == time.Saturday || now.Weekday() == time.Sunday:
		return 0.4
	default:
		return 0.2
	}
}

func (e *Engine) contextScore(ctx model.AlertContext) float64 {
	score := 0.0
	if ctx.SystemLoad > e.cfg.HighLoadPercent {
		score += 0.3
	}
	if ctx.ProcessCount > e.cfg.HighProcessCount {
		score += 0.2
	}
	if ctx.RecentInstall {
		score += 0.4
	}
	if ctx.MaintenanceMode {
		score += 0.6
	}
	return math.Min(score, 1.0)
}

// recomputePatterns rebuilds patterns per alert type from confirmed events.
// Types below the confirmation threshold keep their previous pattern; the
// resulting set replaces the stored one wholesale.
func (e *Engine) recomputePatterns(confirmed []model.AlertEvent) {
	byType := make(map[string][]model.AlertEvent)
	for _, ev := range confirmed {
		byType[ev.Alert.AlertType] = append(byType[ev.Alert.AlertType], ev)
	}

	e.patternsMu.Lock()
	defer e.patternsMu.Unlock()

	merged := make(map[string]model.LearnedPattern, len(e.patterns))
	for _, p := range e.patterns {
		merged[p.AlertType] = p
	}

	for alertType, events := range byType {
		var falsePositives []model.AlertEvent
		for _, ev := range events {
			if *ev.WasFalsePositive {
				falsePositives = append(falsePositives, ev)
			}
		}
		if len(events) < e.cfg.MinEventsPerType || len(falsePositives) < e.cfg.MinFPPerType {
			continue
		}

		merged[alertType] = model.LearnedPattern{
			AlertType:     alertType,
			Centroid:      meanVector(falsePositives),
			FPProbability: float64(len(falsePositives)) / float64(len(events)),
			Confidence:    math.Min(float64(len(events))/50, 1),
			SampleSize:    len(events),
			LastUpdated:   time.Now(),
		}
	}

	updated := make([]model.LearnedPattern, 0, len(merged))
	for _, p := range merged {
		updated = append(updated, p)
	}
	sort.Slice(updated, func(i, j int) bool {
		return strings.Compare(updated[i].AlertType, updated[j].AlertType) < 0
	})
	e.patterns = updated

	if e.store != nil {
		if err := e.store.Replace(updated); err != nil {
			log.Printf("[Suppression] Pattern persist failed, keeping in-memory set: %v", err)
		}
	}
}

func meanVector(events []model.AlertEvent) []float64 {
	if len(events) == 0 {
		return nil
	}
	dim := len(events[0].Features)
	centroid := make([]float64, dim)
	for _, ev := range events {
		for i := 0; i < dim && i < len(ev.Features); i++ {
			centroid[i] += ev.Features[i]
		}
	}
	for i := range centroid {
		centroid[i] /= float64(len(events))
	}
	return centroid
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
