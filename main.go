package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hostpulse/backend/internal/backup"
	"github.com/hostpulse/backend/internal/config"
	"github.com/hostpulse/backend/internal/crypto"
	"github.com/hostpulse/backend/internal/db"
	"github.com/hostpulse/backend/internal/handler"
	"github.com/hostpulse/backend/internal/model"
	"github.com/hostpulse/backend/internal/service"
	"github.com/hostpulse/backend/internal/ws"
)

const (
	outboxReplayInterval = 30 * time.Second
	outboxRetention      = 24 * time.Hour
	staleSweepInterval   = 5 * time.Minute
	staleAfter           = 10 * time.Minute
	backupInterval       = 24 * time.Hour
)

func main() {
	// .env는 로컬 개발 편의용. 없으면 무시
	if err := godotenv.Load(); err != nil {
		log.Printf("[Main] no .env file loaded: %v", err)
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx)
	if err != nil {
		log.Fatalf("[Main] postgres init failed: %v", err)
	}
	defer pool.Close()
	repo := &db.Postgres{Pool: pool}

	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("[Main] schema init failed: %v", err)
	}

	key, err := crypto.LoadOrCreateKey(cfg.Crypto.KeyFile)
	if err != nil {
		log.Fatalf("[Main] payload key init failed: %v", err)
	}
	box, err := crypto.NewBox(key)
	if err != nil {
		log.Fatalf("[Main] payload cipher init failed: %v", err)
	}

	registry, err := service.NewRegistryService(repo, cfg.Auth)
	if err != nil {
		log.Fatalf("[Main] registry init failed: %v", err)
	}

	hub := ws.NewHub(ctx)
	// 종료 시 허브 버퍼에 남은 이벤트는 outbox로 넘겨 재전송 대상으로 만든다
	hub.SetOutboxSink(func(data []byte) {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.EnqueueOutbox(flushCtx, "incident_update", data); err != nil {
			log.Printf("[Main] outbox flush failed: %v", err)
		}
	})
	webhooks := service.NewWebhookService(repo)
	delivery := service.NewWebhookDeliveryService(repo)
	fanout := service.BroadcastFanout{hub, delivery}
	ingest := service.NewIngestService(repo, box, fanout)
	incidents := service.NewIncidentService(repo, fanout)

	backupEngine, err := backup.NewEngine(repo, model.BackupMode(cfg.Backup.Mode), splitDirs(cfg.Backup.Dirs), nil)
	if err != nil {
		log.Fatalf("[Main] backup init failed: %v", err)
	}

	router := gin.Default()
	router.GET("/", handler.Root)
	router.GET("/ping", handler.Ping)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	registrationHandler := handler.NewRegistrationHandler(registry)
	analysisHandler := handler.NewAnalysisHandler(ingest)
	incidentHandler := handler.NewIncidentHandler(incidents)
	liveHandler := handler.NewLiveHandler(hub)

	api := router.Group("/api/v1")
	api.POST("/register", registrationHandler.Register)
	api.GET("/ws", liveHandler.Subscribe)
	api.GET("/incidents", incidentHandler.List)
	api.GET("/incidents/:id", incidentHandler.Get)
	api.PUT("/incidents/:id", incidentHandler.Update)
	api.GET("/analysis/:id", analysisHandler.Get)

	webhookHandler := handler.NewWebhookHandler(webhooks)
	api.GET("/webhooks", webhookHandler.List)
	api.GET("/webhooks/:id", webhookHandler.Get)
	api.POST("/webhooks", webhookHandler.Create)
	api.PUT("/webhooks/:id", webhookHandler.Update)
	api.DELETE("/webhooks/:id", webhookHandler.Delete)

	agentAPI := api.Group("")
	agentAPI.Use(handler.AgentAuthMiddleware(registry))
	agentAPI.POST("/heartbeat", registrationHandler.Heartbeat)
	agentAPI.POST("/analysis", analysisHandler.Submit)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		hub.Run()
		return nil
	})

	group.Go(func() error {
		log.Printf("[Main] listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 브로드캐스트 실패분 재전송
	group.Go(func() error {
		ticker := time.NewTicker(outboxReplayInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if err := incidents.ReplayOutbox(groupCtx, hub); err != nil {
					log.Printf("[Main] outbox replay failed: %v", err)
				}
				if n, err := incidents.PurgeOutbox(groupCtx, outboxRetention); err != nil {
					log.Printf("[Main] outbox purge failed: %v", err)
				} else if n > 0 {
					log.Printf("[Main] purged %d sent outbox rows", n)
				}
			}
		}
	})

	// heartbeat 끊긴 클라이언트 stale 처리
	group.Go(func() error {
		ticker := time.NewTicker(staleSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if n, err := registry.MarkStale(groupCtx, staleAfter); err != nil {
					log.Printf("[Main] stale sweep failed: %v", err)
				} else if n > 0 {
					log.Printf("[Main] marked %d clients stale", n)
				}
			}
		}
	})

	// 일일 백업
	group.Go(func() error {
		ticker := time.NewTicker(backupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				manifest, err := backupEngine.Run(groupCtx)
				if err != nil {
					log.Printf("[Main] backup failed: %v", err)
					continue
				}
				log.Printf("[Main] backup %s wrote %d copies (%d discarded)",
					manifest.BackupID, len(manifest.Copies), len(manifest.Discarded))
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Main] server shutdown: %v", err)
		}
		hub.Stop()
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("[Main] exited with error: %v", err)
	}
	log.Printf("[Main] shutdown complete")
}

func splitDirs(raw string) []string {
	parts := strings.Split(raw, ",")
	dirs := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			dirs = append(dirs, trimmed)
		}
	}
	return dirs
}
