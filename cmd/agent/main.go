// 호스트 에이전트 엔트리포인트
//
// 흐름:
//   - baseline 수립 -> 모니터링 루프 시작
//   - 알림은 억제 엔진을 거쳐 통과분만 중앙 서비스로 제출
//   - score >= 90 은 critical로 승격해 제출
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hostpulse/backend/internal/client"
	"github.com/hostpulse/backend/internal/config"
	"github.com/hostpulse/backend/internal/detector"
	"github.com/hostpulse/backend/internal/model"
	"github.com/hostpulse/backend/internal/monitor"
	"github.com/hostpulse/backend/internal/sampler"
	"github.com/hostpulse/backend/internal/suppression"
)

const (
	criticalScore     = 90.0
	heartbeatInterval = 60 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to agent config file")
	flag.Parse()

	settings, err := config.LoadAgent(*configPath)
	if err != nil {
		log.Fatalf("[Agent] config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sys := sampler.NewSystemSampler()

	det := detector.New(sys, detector.Config{
		MinBaselineDuration: 10 * time.Second,
		MaxBaselineDuration: 300 * time.Second,
		SampleCadence:       settings.Baseline.Cadence,
	})

	log.Printf("[Agent] establishing baseline over %s", settings.Baseline.Duration)
	baseline, err := det.EstablishBaseline(ctx, settings.Baseline.Duration)
	if err != nil {
		log.Fatalf("[Agent] baseline failed: %v", err)
	}
	log.Printf("[Agent] baseline ready: cpu %.1f±%.1f mem %.1f±%.1f (%d samples)",
		baseline.CPU.Mean, baseline.CPU.Stdev, baseline.Memory.Mean, baseline.Memory.Stdev, baseline.SampleCount)

	store, err := suppression.NewSQLitePatternStore(settings.Suppression.PatternDB)
	if err != nil {
		log.Fatalf("[Agent] pattern store init failed: %v", err)
	}
	defer store.Close()

	suppressCfg := suppression.DefaultConfig()
	suppressCfg.ConfidenceThreshold = settings.Suppression.ConfidenceThreshold
	suppressCfg.PatternWeight = settings.Suppression.PatternWeight
	suppressCfg.TemporalWeight = settings.Suppression.TemporalWeight
	suppressCfg.ContextWeight = settings.Suppression.ContextWeight
	suppressCfg.SimilarityThreshold = settings.Suppression.SimilarityThreshold
	engine := suppression.NewEngine(suppressCfg, store)

	loop := monitor.NewLoop(sys, monitor.Config{
		Interval:     settings.Monitor.Interval,
		HistoryLimit: settings.Monitor.HistorySize,
	})
	loop.SetBaseline(baseline)
	loop.SetContextFunc(func(sample model.Sample) model.AlertContext {
		loadCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		load, err := sys.SystemLoad(loadCtx)
		if err != nil {
			load = 0
		}
		return model.AlertContext{
			SystemLoad:      load,
			ProcessCount:    sample.ProcessCount,
			MaintenanceMode: os.Getenv("HOSTPULSE_MAINTENANCE") == "1",
		}
	})
	alerts := loop.Subscribe("uplink")

	central := client.NewCentralClient(settings.ServerURL, model.RegisterRequest{
		ClientID: settings.ClientID,
		Type:     "host_agent",
		Hostname: hostname(),
	})
	if err := central.Register(ctx); err != nil {
		log.Fatalf("[Agent] register failed: %v", err)
	}
	log.Printf("[Agent] registered as %s with %s", settings.ClientID, settings.ServerURL)

	if err := loop.Start(); err != nil {
		log.Fatalf("[Agent] monitor start failed: %v", err)
	}
	defer loop.Stop()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Agent] shutting down")
			return

		case <-heartbeat.C:
			if err := central.Heartbeat(ctx); err != nil {
				log.Printf("[Agent] heartbeat failed: %v", err)
			}

		case alert, ok := <-alerts:
			if !ok {
				return
			}
			handleAlert(ctx, central, engine, alert)
		}
	}
}

func handleAlert(ctx context.Context, central *client.CentralClient, engine *suppression.Engine, alert model.Alert) {
	decision := engine.Filter(alert)
	if decision.Suppress {
		log.Printf("[Agent] suppressed %s alert (fp=%.2f): %s",
			alert.AlertType, decision.FPProbability, decision.Reasoning)
		return
	}

	severity := alert.Severity
	if alert.Score >= criticalScore {
		severity = model.SeverityCritical
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[Agent] failed to marshal alert: %v", err)
		return
	}

	resp, err := central.SubmitAnalysis(ctx, model.SubmitAnalysisRequest{
		Type:      alert.AlertType,
		Timestamp: alert.Timestamp,
		Data:      payload,
		Severity:  severity,
	})
	if err != nil {
		log.Printf("[Agent] submit failed: %v", err)
		return
	}
	if resp.IncidentID != nil {
		log.Printf("[Agent] analysis %s linked to incident %s", resp.AnalysisID, *resp.IncidentID)
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
