// 운영자 대시보드용 incident 실시간 브로드캐스트 허브
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/hostpulse/backend/internal/metrics"
	"github.com/hostpulse/backend/internal/model"
)

var ErrHubClosed = errors.New("hub closed")

// Hub - 구독자 집합 관리와 incident 이벤트 팬아웃.
// 느린 구독자는 전체를 막지 않는다: 버퍼가 가득 차면 해당 구독자를 끊는다
type Hub struct {
	subscribers map[*Subscriber]bool

	broadcast   chan []byte
	register    chan *Subscriber
	unregister  chan *Subscriber

	mu sync.RWMutex

	// sink: 종료 시점에 아직 팬아웃되지 않은 이벤트를 넘겨받는 대피처 (outbox)
	sink func([]byte)

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(ctx context.Context) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		ctx:         hubCtx,
		cancel:      cancel,
	}
}

// SetOutboxSink - 종료 시 버퍼 잔량을 받을 싱크를 등록한다. Run 시작 전에 호출할 것
func (h *Hub) SetOutboxSink(fn func([]byte)) {
	h.sink = fn
}

func (h *Hub) Run() {
	for {
		// 종료 신호는 대기 중인 broadcast보다 먼저 확인한다
		select {
		case <-h.ctx.Done():
			h.flushPending()
			return
		default:
		}

		select {
		case <-h.ctx.Done():
			h.flushPending()
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub] = true
			h.mu.Unlock()

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for sub := range h.subscribers {
				select {
				case sub.send <- message:
				default:
					// 버퍼 가득 참: 이 구독자만 제거
					metrics.BroadcastsDropped.Inc()
					close(sub.send)
					delete(h.subscribers, sub)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()

	// Run이 아직 소비하지 못한 이벤트는 유실하지 않고 싱크로 넘긴다
	h.flushPending()

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		close(sub.send)
		delete(h.subscribers, sub)
	}
}

// flushPending - broadcast 버퍼 잔량을 싱크로 배출한다.
// Run과 Stop 양쪽에서 호출해도 각 이벤트는 한 번만 소비된다
func (h *Hub) flushPending() {
	for {
		select {
		case message := <-h.broadcast:
			if h.sink != nil {
				h.sink(message)
			} else {
				metrics.BroadcastsDropped.Inc()
			}
		default:
			return
		}
	}
}

// BroadcastIncident - incident 변경 이벤트를 모든 구독자에 전달.
// 허브가 종료된 경우 ErrHubClosed를 반환하며, 호출측에서 outbox로 우회한다
func (h *Hub) BroadcastIncident(inc model.Incident) error {
	event := model.IncidentUpdateEvent{
		Type:      "incident_update",
		Incident:  inc,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.BroadcastRaw(data)
}

// BroadcastRaw - 직렬화된 이벤트 전달. outbox 재전송 경로에서도 사용
func (h *Hub) BroadcastRaw(data []byte) error {
	// 종료된 허브의 버퍼에 쌓이지 않도록 먼저 확인
	select {
	case <-h.ctx.Done():
		return ErrHubClosed
	default:
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
