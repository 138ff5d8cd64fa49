package service

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/BerniceZTT/edulead_crm/utils"

	"github.com/gorilla/websocket"
)

// 推送给浏览器的事件类型
const (
	EventNewLead        = "new_lead"
	EventSessionEnded   = "session_ended"
	EventRefreshed      = "refreshed"
	EventReminderDigest = "reminder_digest"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = 20 * time.Second
)

// LiveEvent 推送事件
type LiveEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Broadcaster 事件广播
type Broadcaster interface {
	Broadcast(event LiveEvent) int
}

// Hub 浏览器端 WebSocket 连接的广播中心，写失败的连接直接移除
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub 创建广播中心；checkOrigin 为 nil 时允许所有来源
func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		clients:  make(map[*websocket.Conn]bool),
	}
}

// Serve 升级连接并保持到客户端断开
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()
	utils.Logger.Info().Int("clients", total).Msg("看板客户端已连接")

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(conn, done)

	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(hubPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(conn)
	utils.Logger.Info().Int("clients", h.Count()).Msg("看板客户端已断开")
	return nil
}

// Broadcast 向所有客户端发送事件，返回成功发送的数量
func (h *Hub) Broadcast(event LiveEvent) int {
	payload, err := json.Marshal(event)
	if err != nil {
		utils.Logger.Error().Err(err).Str("type", event.Type).Msg("序列化推送事件失败")
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			utils.Logger.Warn().Err(err).Msg("推送失败，移除客户端")
			_ = conn.Close()
			delete(h.clients, conn)
			continue
		}
		sent++
	}
	utils.Logger.Debug().Str("type", event.Type).Int("clients", sent).Msg("已广播事件")
	return sent
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
		_ = conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(hubPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(hubWriteWait))
			h.mu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[conn] {
		delete(h.clients, conn)
	}
	_ = conn.Close()
}
