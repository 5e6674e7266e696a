package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	broadcastBuffer = 64
	clientBuffer    = 16
	writeWait       = 5 * time.Second
)

// client 一个看板连接；只有 writeLoop 向 conn 写数据
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub 维护看板的 WebSocket 连接并推送订单状态
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	stopped    chan struct{} // Run 退出后关闭
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		stopped:    make(chan struct{}),
		logger:     logger.With("component", "ws-hub"),
	}
}

// Run 处理连接注册和广播，done 关闭后断开所有连接
func (h *Hub) Run(done <-chan struct{}) {
	defer close(h.stopped)
	for {
		select {
		case <-done:
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// 客户端跟不上推送速度
					h.logger.Warn("看板连接积压，断开", "remote", c.conn.RemoteAddr().String())
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop 调用方持有 mu
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// BroadcastState 推送一次全量状态；通道已满时丢弃，下一次变化会带上完整状态
func (h *Hub) BroadcastState(state interface{}) {
	msg, err := json.Marshal(state)
	if err != nil {
		h.logger.Error("序列化状态失败", "error", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("广播通道已满，丢弃一次状态推送")
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs 升级连接，先推送 snapshot 的全量状态，再接收后续广播
func (h *Hub) ServeWs(snapshot func() interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("升级 WebSocket 失败", "error", err)
			return
		}
		c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
		if snapshot != nil {
			msg, err := json.Marshal(snapshot())
			if err != nil {
				h.logger.Error("序列化状态失败", "error", err)
				conn.Close()
				return
			}
			c.send <- msg
		}

		select {
		case h.register <- c:
		case <-h.stopped:
			conn.Close()
			return
		}
		go h.writeLoop(c)
		go h.readLoop(c)
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Warn("写入 WebSocket 失败", "error", err)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// readLoop 看板不发送数据，读循环只用于发现断开
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			select {
			case h.unregister <- c:
			case <-h.stopped:
			}
			return
		}
	}
}
