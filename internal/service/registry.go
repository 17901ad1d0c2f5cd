package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hostpulse/backend/internal/config"
	"github.com/hostpulse/backend/internal/db"
	"github.com/hostpulse/backend/internal/model"
)

const (
	minClientIDLength = 3
	maxClientIDLength = 128

	clientCacheSize = 1024
	clientCacheTTL  = 5 * time.Minute
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrMisconfigured = errors.New("service config invalid")
)

// RegistryRepo - 등록/heartbeat이 쓰는 저장소 표면. *db.Postgres가 구현
type RegistryRepo interface {
	UpsertClient(ctx context.Context, c model.Client) error
	GetClient(ctx context.Context, clientID string) (*model.Client, error)
	TouchClient(ctx context.Context, clientID string) error
	MarkStaleClients(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RegistryService - 클라이언트 등록과 에이전트 토큰 발급/검증
type RegistryService struct {
	repo      RegistryRepo
	jwtSecret []byte
	tokenTTL  time.Duration

	// clients: 요청마다 DB를 치지 않기 위한 단기 캐시
	clients *expirable.LRU[string, *model.Client]
}

type agentClaims struct {
	ClientType string `json:"clientType"`
	jwt.RegisteredClaims
}

func NewRegistryService(repo RegistryRepo, cfg config.AuthConfig) (*RegistryService, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required", ErrMisconfigured)
	}

	tokenTTL, err := time.ParseDuration(cfg.TokenTTL)
	if err != nil || tokenTTL <= 0 {
		return nil, fmt.Errorf("%w: invalid AGENT_TOKEN_TTL", ErrMisconfigured)
	}

	return &RegistryService{
		repo:      repo,
		jwtSecret: []byte(cfg.JWTSecret),
		tokenTTL:  tokenTTL,
		clients:   expirable.NewLRU[string, *model.Client](clientCacheSize, nil, clientCacheTTL),
	}, nil
}

// Register - 클라이언트 upsert 후 토큰 발급. 재등록은 항상 새 토큰을 반환
func (s *RegistryService) Register(ctx context.Context, req model.RegisterRequest) (*model.RegisterResponse, error) {
	if err := validateClientID(req.ClientID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Type) == "" {
		return nil, fmt.Errorf("%w: type is required", ErrInvalidInput)
	}

	client := model.Client{
		ClientID: req.ClientID,
		Type:     req.Type,
		Hostname: req.Hostname,
		Address:  req.Address,
		Version:  req.Version,
		Status:   "active",
	}
	if err := s.repo.UpsertClient(ctx, client); err != nil {
		return nil, err
	}
	s.clients.Remove(req.ClientID)

	token, expiresIn, err := s.generateToken(req.ClientID, req.Type)
	if err != nil {
		return nil, err
	}

	return &model.RegisterResponse{
		Token:     token,
		ExpiresIn: expiresIn,
	}, nil
}

// Heartbeat - last_seen 갱신. 미등록 클라이언트는 거부
func (s *RegistryService) Heartbeat(ctx context.Context, clientID string) error {
	if _, err := s.getClient(ctx, clientID); err != nil {
		return err
	}
	return s.repo.TouchClient(ctx, clientID)
}

// ParseToken - 토큰 검증 후 클라이언트 신원 복원
// 만료/위조 토큰은 ErrUnauthorized. DB 부작용 없음
func (s *RegistryService) ParseToken(tokenStr string) (*model.AgentPrincipal, error) {
	claims := &agentClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	if claims.Subject == "" {
		return nil, ErrUnauthorized
	}

	return &model.AgentPrincipal{
		ClientID:   claims.Subject,
		ClientType: claims.ClientType,
	}, nil
}

// MarkStale - heartbeat이 끊긴 클라이언트를 stale 처리. 주기 작업에서 호출
func (s *RegistryService) MarkStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.repo.MarkStaleClients(ctx, olderThan)
}

func (s *RegistryService) getClient(ctx context.Context, clientID string) (*model.Client, error) {
	if cached, ok := s.clients.Get(clientID); ok {
		return cached, nil
	}

	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	s.clients.Add(clientID, client)
	return client, nil
}

func (s *RegistryService) generateToken(clientID, clientType string) (string, int64, error) {
	now := time.Now()
	claims := agentClaims{
		ClientType: clientType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(s.tokenTTL.Seconds()), nil
}

func validateClientID(clientID string) error {
	clientID = strings.TrimSpace(clientID)
	if len(clientID) < minClientIDLength || len(clientID) > maxClientIDLength {
		return fmt.Errorf("%w: client_id must be %d-%d chars", ErrInvalidInput, minClientIDLength, maxClientIDLength)
	}
	return nil
}
