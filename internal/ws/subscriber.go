package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second

	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// 구독자는 구독 해지 외에 보낼 것이 없다
	maxMessageSize = 4 * 1024

	sendBufferSize = 64
)

// Subscriber - 웹소켓 연결 하나. ReadPump/WritePump을 각각 고루틴으로 돌린다
type Subscriber struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	ctx    context.Context
	cancel context.CancelFunc

	id string
}

func NewSubscriber(ctx context.Context, hub *Hub, conn *websocket.Conn, id string) *Subscriber {
	subCtx, cancel := context.WithCancel(ctx)
	return &Subscriber{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		hub:    hub,
		ctx:    subCtx,
		cancel: cancel,
		id:     id,
	}
}

// Attach - 허브에 등록하고 펌프를 시작. 허브가 이미 종료됐으면 연결을 닫는다
func (s *Subscriber) Attach() {
	select {
	case s.hub.register <- s:
	case <-s.hub.ctx.Done():
		s.conn.Close()
		return
	}
	go s.writePump()
	go s.readPump()
}

// readPump - pong 응답 감시와 애플리케이션 레벨 ping 처리. 읽기 실패 시 구독 해지
func (s *Subscriber) readPump() {
	defer func() {
		// 허브가 이미 종료됐으면 받는 쪽이 없으므로 대기하지 않는다
		select {
		case s.hub.unregister <- s:
		case <-s.hub.ctx.Done():
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] subscriber %s read error: %v", s.id, err)
			}
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(message, &envelope) == nil && envelope.Type == "ping" {
			select {
			case s.send <- []byte(`{"type":"pong"}`):
			default:
				// send 버퍼가 가득 차면 pong은 버린다
			}
		}
	}
}

func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return

		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Subscriber) Close() {
	s.cancel()
}
