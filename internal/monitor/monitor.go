// Package monitor drives the periodic sample → score → alert cycle.
//
// Alerts are delivered over per-subscriber buffered channels instead of
// registered callbacks: a stuck subscriber has its messages dropped and never
// blocks the loop or other subscribers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hostpulse/backend/internal/detector"
	"github.com/hostpulse/backend/internal/model"
	"github.com/hostpulse/backend/internal/sampler"
)

var ErrAlreadyRunning = errors.New("monitoring loop already running")

const (
	defaultInterval     = 5 * time.Second
	defaultHistoryLimit = 1000
	defaultAlertType    = "resource_anomaly"
	subscriberBuffer    = 64
)

type Config struct {
	Interval     time.Duration
	HistoryLimit int
	AlertType    string
}

// Status - 루프 상태 조회 결과
type Status struct {
	Running     bool          `json:"running"`
	Interval    time.Duration `json:"interval"`
	HistorySize int           `json:"history_size"`
	AlertCount  int           `json:"alert_count"`
	LastCheck   time.Time     `json:"last_check"`
}

type subscription struct {
	name    string
	ch      chan model.Alert
	dropped int
}

type Loop struct {
	sampler   sampler.Sampler
	cfg       Config
	contextFn func(model.Sample) model.AlertContext

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
	baseline   *model.Baseline
	history    []model.AnomalyResult
	alertCount int
	lastCheck  time.Time
	subs       []*subscription
}

func NewLoop(s sampler.Sampler, cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.AlertType == "" {
		cfg.AlertType = defaultAlertType
	}
	return &Loop{sampler: s, cfg: cfg}
}

// SetBaseline replaces the scoring reference. Samples observed before this
// call are never rescored.
func (l *Loop) SetBaseline(b *model.Baseline) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.baseline = b
}

// SetContextFunc installs a hook that enriches alerts with host context
// (load, maintenance flags). Must be called before Start.
func (l *Loop) SetContextFunc(fn func(model.Sample) model.AlertContext) {
	l.contextFn = fn
}

// Subscribe registers a named consumer and returns its alert channel.
// Must be called before Start.
func (l *Loop) Subscribe(name string) <-chan model.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	sub := &subscription{name: name, ch: make(chan model.Alert, subscriberBuffer)}
	l.subs = append(l.subs, sub)
	return sub.ch
}

// Start launches the loop. A second Start on a running loop returns
// ErrAlreadyRunning and leaves the first loop untouched.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true

	go l.run(ctx, l.done)
	return nil
}

// Stop cancels the in-flight sleep and waits for the loop goroutine to exit,
// so no alert is published after Stop returns. Stop on a stopped loop is a
// no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	done := l.done
	l.running = false
	l.mu.Unlock()

	cancel()
	<-done
}

func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		Running:     l.running,
		Interval:    l.cfg.Interval,
		HistorySize: len(l.history),
		AlertCount:  l.alertCount,
		LastCheck:   l.lastCheck,
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		l.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	sample, err := l.sampler.Sample(ctx)
	if err != nil {
		log.Printf("[Monitor] Sampling failed, skipping tick: %v", err)
		return
	}

	l.mu.Lock()
	l.lastCheck = time.Now()
	baseline := l.baseline
	l.mu.Unlock()

	result, err := detector.Score(sample, baseline)
	if err != nil {
		// 베이스라인 미설정 등 scoring 실패는 루프를 죽이지 않음
		log.Printf("[Monitor] Scoring failed, skipping tick: %v", err)
		return
	}

	l.mu.Lock()
	l.history = append(l.history, *result)
	if len(l.history) > l.cfg.HistoryLimit {
		l.history = l.history[len(l.history)-l.cfg.HistoryLimit:]
	}
	l.mu.Unlock()

	if result.Severity != model.SeverityMedium && result.Severity != model.SeverityHigh {
		return
	}

	alert := l.buildAlert(sample, result)

	l.mu.Lock()
	l.alertCount++
	for _, sub := range l.subs {
		select {
		case sub.ch <- alert:
		default:
			sub.dropped++
			log.Printf("[Monitor] Subscriber %s buffer full, dropping alert (dropped=%d)", sub.name, sub.dropped)
		}
	}
	l.mu.Unlock()
}

func (l *Loop) buildAlert(sample model.Sample, result *model.AnomalyResult) model.Alert {
	alertCtx := model.AlertContext{ProcessCount: sample.ProcessCount}
	if l.contextFn != nil {
		alertCtx = l.contextFn(sample)
	}

	return model.Alert{
		Timestamp: result.Timestamp,
		Severity:  result.Severity,
		Score:     result.Score,
		AlertType: l.cfg.AlertType,
		Metrics: map[string]float64{
			"cpu_percent":    sample.CPUPercent,
			"memory_percent": sample.MemoryPercent,
			"io_bytes":       float64(sample.IOBytes),
		},
		Message: fmt.Sprintf("resource usage deviates from baseline (score=%.1f, z_cpu=%.2f, z_mem=%.2f)",
			result.Score, result.ZScores["cpu"], result.ZScores["memory"]),
		Context: alertCtx,
	}
}
