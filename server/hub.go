package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub 持有一个服务进程的全部共享状态：连接注册表、房间目录、计数与审计日志。
// 生命周期与进程一致：NewHub 于启动时创建，Close 于退出时调用。
type Hub struct {
	cfg      Config
	peers    *Registry
	rooms    *Directory
	metrics  *Metrics
	journal  *Journal
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[ConnID]*Session
}

func NewHub(cfg Config) (*Hub, error) {
	m := &Metrics{}
	j, err := OpenJournal(cfg.Journal.Dir, m)
	if err != nil {
		return nil, err
	}
	peers := NewRegistry(m)
	h := &Hub{
		cfg:      cfg,
		peers:    peers,
		rooms:    NewDirectory(cfg.RoomCapacity, peers),
		metrics:  m,
		journal:  j,
		sessions: make(map[ConnID]*Session),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.cfg.CheckOrigin(r) },
	}
	return h, nil
}

func (h *Hub) Rooms() *Directory { return h.rooms }
func (h *Hub) Peers() *Registry  { return h.peers }
func (h *Hub) Metrics() *Metrics { return h.metrics }
func (h *Hub) Journal() *Journal { return h.journal }

// Connect 登记一条新连接并返回其会话；连接关闭时必须调用 Session.Close
func (h *Hub) Connect(p Peer) *Session {
	h.peers.Register(p)
	h.metrics.IncConnectionsOpened()
	s := &Session{hub: h, id: p.ID()}
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	s.reply(HelloMsg{ID: p.ID()})
	Log.Debugw("connection opened", "conn", p.ID())
	return s
}

func (h *Hub) forget(id ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

// Close 关闭所有连接，并在当前协程内执行每个会话的断线流程
// （读协程随后的 Close 是空操作），最后关闭审计日志。
// 返回时离开/删除房间的日志条目都已写入。
func (h *Hub) Close() error {
	h.peers.CloseAll()

	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return h.journal.Close()
}
