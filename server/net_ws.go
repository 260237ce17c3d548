package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // 必须小于 pongWait
	maxMessageSize = 64 * 1024
)

// ClientConn WebSocket 连接的发送端：有界发送队列 + 独立写协程
type ClientConn struct {
	id        ConnID
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClientConn(id ConnID, ws *websocket.Conn, queue int) *ClientConn {
	if queue <= 0 {
		queue = 64
	}
	return &ClientConn{
		id:   id,
		ws:   ws,
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

func (c *ClientConn) ID() ConnID { return c.id }

// Enqueue 将要发送的消息压入队列（非阻塞）
func (c *ClientConn) Enqueue(b []byte) error {
	select {
	case <-c.done:
		return ErrPeerClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close 关闭底层连接；读写协程随之退出。可重复调用
func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定时发送 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端事件交给会话处理；退出时执行一次断线流程
func (c *ClientConn) readPump(sess *Session) {
	defer sess.Close()
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				Log.Debugw("read error", "conn", c.id, "err", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		sess.HandleRaw(payload)
	}
}

// ServeWS WebSocket 接入：升级成功后分配连接 ID 并启动读写协程
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade failed", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"), "err", err)
		return
	}

	client := NewClientConn(ConnID(uuid.NewString()), ws, h.cfg.SendQueue)
	sess := h.Connect(client)
	Log.Infow("client connected", "conn", client.ID(), "remote", r.RemoteAddr, "rooms", h.rooms.Len())

	go client.writePump()
	go client.readPump(sess)
}
