package model

import "time"

// Client - 등록된 모니터링 대상 호스트. 등록/heartbeat 시 upsert
type Client struct {
	ClientID string    `json:"client_id"`
	Type     string    `json:"type"`
	Hostname string    `json:"hostname"`
	Address  string    `json:"address"`
	Version  string    `json:"version"`
	LastSeen time.Time `json:"last_seen"`
	Status   string    `json:"status"` // active, stale
}

// RegisterRequest - POST /api/v1/register 요청 구조체
type RegisterRequest struct {
	ClientID string `json:"client_id" binding:"required"`
	Type     string `json:"type" binding:"required"`
	Hostname string `json:"hostname"`
	Address  string `json:"address"`
	Version  string `json:"version"`
}

// RegisterResponse - POST /api/v1/register 응답 구조체
type RegisterResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// AgentPrincipal - 검증된 토큰에서 복원한 클라이언트 신원
type AgentPrincipal struct {
	ClientID   string
	ClientType string
}
