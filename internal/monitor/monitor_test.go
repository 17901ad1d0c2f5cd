package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/hostpulse/backend/internal/model"
)

type stubSampler struct {
	sample model.Sample
	err    error
}

func (s *stubSampler) Sample(ctx context.Context) (model.Sample, error) {
	return s.sample, s.err
}

func (s *stubSampler) SystemLoad(ctx context.Context) (float64, error) { return 0, nil }

func anomalousLoop(interval time.Duration) *Loop {
	// baseline cpu=(20,5): cpu=70 → z=10 → score 100 every tick
	l := NewLoop(&stubSampler{sample: model.Sample{
		CPUPercent:    70,
		MemoryPercent: 40,
		Timestamp:     time.Now(),
	}}, Config{Interval: interval})
	l.SetBaseline(&model.Baseline{
		CPU:    model.MetricStats{Mean: 20, Stdev: 5},
		Memory: model.MetricStats{Mean: 40, Stdev: 10},
	})
	return l
}

func TestStartTwice(t *testing.T) {
	l := anomalousLoop(time.Hour)
	if err := l.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	defer l.Stop()

	if err := l.Start(); err != ErrAlreadyRunning {
		t.Fatalf("second start err = %v, want ErrAlreadyRunning", err)
	}
	if !l.Status().Running {
		t.Fatal("loop should still be running after rejected second start")
	}
}

func TestStopIdempotent(t *testing.T) {
	l := anomalousLoop(time.Hour)
	if err := l.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	l.Stop()
	// no-op, must not panic or block
	l.Stop()

	if l.Status().Running {
		t.Fatal("loop reports running after stop")
	}
}

func TestAlertPublication(t *testing.T) {
	l := anomalousLoop(10 * time.Millisecond)
	alerts := l.Subscribe("test")

	if err := l.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer l.Stop()

	select {
	case a := <-alerts:
		if a.Severity != model.SeverityHigh {
			t.Fatalf("severity = %v, want high", a.Severity)
		}
		if a.Score != 100 {
			t.Fatalf("score = %v, want 100", a.Score)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert received")
	}
}

func TestNoAlertAfterStop(t *testing.T) {
	l := anomalousLoop(10 * time.Millisecond)
	alerts := l.Subscribe("test")

	if err := l.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	<-alerts
	l.Stop()

	// drain anything published before Stop returned
	for {
		select {
		case <-alerts:
			continue
		default:
		}
		break
	}

	select {
	case <-alerts:
		t.Fatal("alert published after Stop returned")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	l := anomalousLoop(time.Millisecond)
	// never drained: fills up and starts dropping
	_ = l.Subscribe("slow")
	fast := l.Subscribe("fast")

	if err := l.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer l.Stop()

	deadline := time.After(2 * time.Second)
	for i := 0; i < subscriberBuffer+10; i++ {
		select {
		case <-fast:
		case <-deadline:
			t.Fatalf("fast subscriber starved after %d alerts", i)
		}
	}
}

func TestScoringFailureNonFatal(t *testing.T) {
	// no baseline set: every tick fails scoring, loop must keep running
	l := NewLoop(&stubSampler{sample: model.Sample{CPUPercent: 70}}, Config{Interval: 5 * time.Millisecond})
	if err := l.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer l.Stop()

	time.Sleep(30 * time.Millisecond)
	st := l.Status()
	if !st.Running {
		t.Fatal("loop died on scoring failure")
	}
	if st.HistorySize != 0 {
		t.Fatalf("history size = %d, want 0 when every score fails", st.HistorySize)
	}
	if st.LastCheck.IsZero() {
		t.Fatal("last check never recorded")
	}
}

func TestHistoryBounded(t *testing.T) {
	l := NewLoop(&stubSampler{sample: model.Sample{CPUPercent: 20, MemoryPercent: 40}}, Config{
		Interval:     time.Millisecond,
		HistoryLimit: 5,
	})
	l.SetBaseline(&model.Baseline{
		CPU:    model.MetricStats{Mean: 20, Stdev: 5},
		Memory: model.MetricStats{Mean: 40, Stdev: 10},
	})
	if err := l.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer l.Stop()

	time.Sleep(50 * time.Millisecond)
	if got := l.Status().HistorySize; got > 5 {
		t.Fatalf("history size = %d, want <= 5", got)
	}
}
