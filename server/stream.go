package server

import "sync"

// StreamEvent 推送给订阅者的事件帧。
type StreamEvent struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Hub 一个轻量事件分发器：落盘事件与裁决实时推给 WebSocket 订阅者。
// 慢订阅者丢帧，不阻塞请求路径。
type Hub struct {
	mu   sync.Mutex
	subs map[chan StreamEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan StreamEvent]struct{})}
}

// Subscribe 返回事件通道；用完必须 Unsubscribe。
func (h *Hub) Subscribe() chan StreamEvent {
	ch := make(chan StreamEvent, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan StreamEvent) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Publish(ev StreamEvent) {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// Len 当前订阅数。
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
