// Package detector computes per-host baselines and z-score based anomaly
// scores. Scoring is normalized against each host's own history rather than
// absolute thresholds, since baseline envelopes vary enormously across
// machines.
package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hostpulse/backend/internal/model"
	"github.com/hostpulse/backend/internal/sampler"
)

var (
	ErrInvalidDuration     = errors.New("invalid baseline duration")
	ErrInsufficientSamples = errors.New("not enough samples for baseline")
	ErrNoBaseline          = errors.New("no baseline established")
)

// Severity thresholds over the clamped [0,100] score.
const (
	thresholdLow    = 25.0
	thresholdMedium = 50.0
	thresholdHigh   = 75.0
)

type Config struct {
	// Duration bounds accepted by EstablishBaseline.
	MinBaselineDuration time.Duration
	MaxBaselineDuration time.Duration

	// SampleCadence is the fixed spacing between baseline samples.
	SampleCadence time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinBaselineDuration: 10 * time.Second,
		MaxBaselineDuration: 300 * time.Second,
		SampleCadence:       time.Second,
	}
}

type Detector struct {
	sampler sampler.Sampler
	cfg     Config
}

func New(s sampler.Sampler, cfg Config) *Detector {
	if cfg.SampleCadence <= 0 {
		cfg.SampleCadence = time.Second
	}
	return &Detector{sampler: s, cfg: cfg}
}

// EstablishBaseline samples at a fixed cadence for the given duration and
// returns per-metric (mean, stdev). The duration must fall inside the
// configured bounds; this is validated before any sampling side effect.
func (d *Detector) EstablishBaseline(ctx context.Context, duration time.Duration) (*model.Baseline, error) {
	if duration < d.cfg.MinBaselineDuration || duration > d.cfg.MaxBaselineDuration {
		return nil, fmt.Errorf("%w: %s not in [%s, %s]",
			ErrInvalidDuration, duration, d.cfg.MinBaselineDuration, d.cfg.MaxBaselineDuration)
	}

	deadline := time.Now().Add(duration)
	var samples []model.Sample

	ticker := time.NewTicker(d.cfg.SampleCadence)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		s, err := d.sampler.Sample(ctx)
		if err == nil {
			samples = append(samples, s)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return ComputeBaseline(samples)
}

// ComputeBaseline derives a baseline from already-collected samples.
// Fails when fewer than 2 samples are available.
func ComputeBaseline(samples []model.Sample) (*model.Baseline, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("%w: got %d, need at least 2", ErrInsufficientSamples, len(samples))
	}

	cpuValues := make([]float64, len(samples))
	memValues := make([]float64, len(samples))
	for i, s := range samples {
		cpuValues[i] = s.CPUPercent
		memValues[i] = s.MemoryPercent
	}

	return &model.Baseline{
		CPU:         stats(cpuValues),
		Memory:      stats(memValues),
		SampleCount: len(samples),
		ComputedAt:  time.Now(),
	}, nil
}

// Score computes the anomaly score of a sample against a baseline.
// score = mean(zCPU, zMem) * 20, clamped to [0,100].
func Score(sample model.Sample, baseline *model.Baseline) (*model.AnomalyResult, error) {
	if baseline == nil {
		return nil, ErrNoBaseline
	}

	zCPU := zScore(sample.CPUPercent, baseline.CPU)
	zMem := zScore(sample.MemoryPercent, baseline.Memory)

	score := (zCPU + zMem) / 2 * 20
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return &model.AnomalyResult{
		Score:    score,
		Severity: Classify(score),
		ZScores: map[string]float64{
			"cpu":    zCPU,
			"memory": zMem,
		},
		Timestamp: sample.Timestamp,
	}, nil
}

// Classify maps a score to a severity with steps at exactly 25/50/75.
func Classify(score float64) model.Severity {
	switch {
	case score < thresholdLow:
		return model.SeverityNormal
	case score < thresholdMedium:
		return model.SeverityLow
	case score < thresholdHigh:
		return model.SeverityMedium
	default:
		return model.SeverityHigh
	}
}

// zScore is |value-mean|/stdev, and exactly 0 when stdev is 0.
func zScore(value float64, s model.MetricStats) float64 {
	if s.Stdev == 0 {
		return 0
	}
	return math.Abs(value-s.Mean) / s.Stdev
}

func stats(values []float64) model.MetricStats {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return model.MetricStats{
		Mean:  mean,
		Stdev: math.Sqrt(sq / float64(len(values))),
	}
}
