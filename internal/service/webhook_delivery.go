package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hostpulse/backend/internal/model"
	tmpl "github.com/hostpulse/backend/internal/template"
)

// webhookConfigReader - DB 인터페이스 (delivery 전용)
type webhookConfigReader interface {
	GetWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error)
}

// WebhookDeliveryService - 사용자 설정 Webhook으로 incident 변경을 전송하는 서비스
//
// IncidentBroadcaster를 구현하므로 websocket 허브와 나란히 팬아웃에 끼울 수 있다.
// 개별 config 실패 시 로그만 남기고 나머지는 계속 전송한다
type WebhookDeliveryService struct {
	configDB   webhookConfigReader
	httpClient *http.Client
}

func NewWebhookDeliveryService(configDB webhookConfigReader) *WebhookDeliveryService {
	return &WebhookDeliveryService{
		configDB: configDB,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// BroadcastIncident - 등록된 모든 webhook config에 렌더링된 body를 비동기 전송.
// 전송 실패가 호출측 파이프라인을 막지 않도록 항상 nil을 반환한다
func (s *WebhookDeliveryService) BroadcastIncident(inc model.Incident) error {
	go s.deliver(inc)
	return nil
}

func (s *WebhookDeliveryService) deliver(inc model.Incident) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	configs, err := s.configDB.GetWebhookConfigs(ctx)
	if err != nil {
		log.Printf("[WebhookDelivery] Failed to load webhook configs: %v", err)
		return
	}
	if len(configs) == 0 {
		return
	}

	data := tmpl.IncidentDataFromModel(inc)

	for _, cfg := range configs {
		if cfg.URL == "" {
			log.Printf("[WebhookDelivery] Skipping config id=%d: URL is empty", cfg.ID)
			continue
		}

		rendered := tmpl.RenderBody(cfg.Body, &data)

		if err := s.sendHTTP(ctx, cfg, rendered); err != nil {
			log.Printf("[WebhookDelivery] Failed to deliver to %s (config id=%d): %v", cfg.URL, cfg.ID, err)
		} else {
			log.Printf("[WebhookDelivery] Delivered incident %s to %s (config id=%d)", inc.IncidentID, cfg.URL, cfg.ID)
		}
	}
}

// sendHTTP - 단일 webhook config로 HTTP 요청 전송
func (s *WebhookDeliveryService) sendHTTP(ctx context.Context, cfg model.WebhookConfig, body string) error {
	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bytes.NewBufferString(body))
	if err != nil {
		return err
	}

	// Content-Type 기본값 설정 (없으면 application/json)
	hasContentType := false
	for _, h := range cfg.Headers {
		if h.Key != "" {
			req.Header.Set(h.Key, h.Value)
		}
		if http.CanonicalHeaderKey(h.Key) == "Content-Type" {
			hasContentType = true
		}
	}
	if !hasContentType {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
