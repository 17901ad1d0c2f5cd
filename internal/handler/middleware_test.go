package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hostpulse/backend/internal/config"
	"github.com/hostpulse/backend/internal/model"
	"github.com/hostpulse/backend/internal/service"
	"github.com/jackc/pgx/v5"
)

type stubRegistryRepo struct{}

func (stubRegistryRepo) UpsertClient(context.Context, model.Client) error { return nil }
func (stubRegistryRepo) GetClient(context.Context, string) (*model.Client, error) {
	return nil, pgx.ErrNoRows
}
func (stubRegistryRepo) TouchClient(context.Context, string) error { return nil }
func (stubRegistryRepo) MarkStaleClients(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

const testSecret = "handler-test-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *bool) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := service.NewRegistryService(stubRegistryRepo{}, config.AuthConfig{
		JWTSecret: testSecret,
		TokenTTL:  "24h",
	})
	if err != nil {
		t.Fatalf("NewRegistryService: %v", err)
	}

	reached := false
	router := gin.New()
	protected := router.Group("/api/v1")
	protected.Use(AgentAuthMiddleware(registry))
	protected.POST("/analysis", func(c *gin.Context) {
		reached = true
		principal := GetAgentPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"client_id": principal.ClientID})
	})

	return router, &reached
}

func signToken(t *testing.T, secret string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":        "host-1",
		"clientType": "host_agent",
		"iat":        time.Now().Add(-time.Minute).Unix(),
		"exp":        expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	router, reached := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if *reached {
		t.Fatal("handler must not run without a token")
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	router, reached := newTestRouter(t)

	token := signToken(t, testSecret, time.Now().Add(-time.Hour))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if *reached {
		t.Fatal("expired token must not reach the handler")
	}
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	router, reached := newTestRouter(t)

	token := signToken(t, testSecret, time.Now().Add(time.Hour))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if !*reached {
		t.Fatal("valid token should reach the handler")
	}
}
