// 중앙 서비스와 HTTP 통신하는 에이전트측 클라이언트 정의
//
// 호출 순서:
//   - Register: 토큰 발급 (재시도 포함)
//   - SubmitAnalysis / Heartbeat: Bearer 토큰 첨부
//
// 401 응답을 받으면 토큰을 버리고 재등록 후 한 번 재시도한다

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/hostpulse/backend/internal/model"
)

const (
	registerRetries   = 5
	registerBaseDelay = 2 * time.Second
)

// CentralClient 구조체 정의
type CentralClient struct {
	baseURL    string
	httpClient *http.Client

	identity model.RegisterRequest

	// retryDelay: 재등록 백오프 시작 간격
	retryDelay time.Duration

	mu    sync.Mutex
	token string
}

// CentralClient 객체 생성
func NewCentralClient(baseURL string, identity model.RegisterRequest) *CentralClient {
	return &CentralClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		identity:   identity,
		retryDelay: registerBaseDelay,
	}
}

// POST /api/v1/register - 토큰 발급. 지수 백오프로 재시도
func (c *CentralClient) Register(ctx context.Context) error {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt < registerRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		resp, err := c.register(ctx)
		if err != nil {
			lastErr = err
			log.Printf("[Client] register attempt %d failed: %v", attempt+1, err)
			continue
		}

		c.mu.Lock()
		c.token = resp.Token
		c.mu.Unlock()
		return nil
	}

	return fmt.Errorf("register failed after %d attempts: %w", registerRetries, lastErr)
}

func (c *CentralClient) register(ctx context.Context) (*model.RegisterResponse, error) {
	var resp model.RegisterResponse
	if err := c.postJSON(ctx, "/api/v1/register", "", c.identity, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("server returned empty token")
	}
	return &resp, nil
}

// POST /api/v1/analysis - 분석 레코드 제출
func (c *CentralClient) SubmitAnalysis(ctx context.Context, req model.SubmitAnalysisRequest) (*model.SubmitAnalysisResponse, error) {
	var resp model.SubmitAnalysisResponse
	if err := c.authorizedPost(ctx, "/api/v1/analysis", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// POST /api/v1/heartbeat - 생존 신호
func (c *CentralClient) Heartbeat(ctx context.Context) error {
	return c.authorizedPost(ctx, "/api/v1/heartbeat", struct{}{}, nil)
}

// authorizedPost - 토큰 첨부 요청. 만료(401) 시 재등록 후 1회 재시도
func (c *CentralClient) authorizedPost(ctx context.Context, path string, body, out any) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		if err := c.Register(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		token = c.token
		c.mu.Unlock()
	}

	err := c.postJSON(ctx, path, token, body, out)
	if err == nil {
		return nil
	}
	if !isUnauthorized(err) {
		return err
	}

	log.Printf("[Client] token rejected, re-registering")
	if err := c.Register(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	token = c.token
	c.mu.Unlock()

	return c.postJSON(ctx, path, token, body, out)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.code, e.body)
}

func isUnauthorized(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusUnauthorized
}

func (c *CentralClient) postJSON(ctx context.Context, path, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode, body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
