package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hostpulse/backend/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 대시보드 출처 검증은 CORS 계층에서 처리
	CheckOrigin: func(r *http.Request) bool { return true },
}

type LiveHandler struct {
	hub *ws.Hub
}

func NewLiveHandler(hub *ws.Hub) *LiveHandler {
	return &LiveHandler{hub: hub}
}

// Subscribe - incident 실시간 구독 (GET /api/v1/ws)
func (h *LiveHandler) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Live] upgrade failed: %v", err)
		return
	}

	// 업그레이드 후 연결 수명은 허브가 관리한다. 요청 컨텍스트는 핸들러 반환 시 취소되므로 쓰지 않는다
	sub := ws.NewSubscriber(context.Background(), h.hub, conn, uuid.NewString())
	sub.Attach()
}
