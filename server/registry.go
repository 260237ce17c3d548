package server

import (
	"errors"
	"sync"
)

// Peer 一条客户端连接的发送端
type Peer interface {
	ID() ConnID
	// Enqueue 非阻塞入队。连接已关闭返回 ErrPeerClosed，队列已满返回 ErrSendQueueFull
	Enqueue(payload []byte) error
	// Close 可能在房间锁内被调用，不得阻塞，也不得回调会话
	Close()
}

// Registry 连接注册表：连接 ID → Peer，不含任何游戏逻辑
type Registry struct {
	mu      sync.RWMutex
	peers   map[ConnID]Peer
	metrics *Metrics
}

func NewRegistry(m *Metrics) *Registry {
	if m == nil {
		m = &Metrics{}
	}
	return &Registry{
		peers:   make(map[ConnID]Peer),
		metrics: m,
	}
}

func (r *Registry) Register(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID()] = p
}

func (r *Registry) Unregister(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

func (r *Registry) Lookup(id ConnID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Deliver 向连接投递消息。发送队列满的连接直接关闭：它会走断线流程，
// 重新加入时拿到完整快照，而不是带着缺失的事件继续运行。
func (r *Registry) Deliver(to ConnID, payload []byte) {
	p, ok := r.Lookup(to)
	if !ok {
		return
	}
	switch err := p.Enqueue(payload); {
	case err == nil:
		r.metrics.IncMessagesOut()
		return
	case errors.Is(err, ErrPeerClosed):
		// 断线流程稍后由读协程执行
		return
	}
	r.metrics.IncSlowPeersClosed()
	Log.Warnw("send queue full, closing connection", "conn", to)
	p.Close()
}

// CloseAll 关闭所有连接（进程退出时）
func (r *Registry) CloseAll() {
	r.mu.RLock()
	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.RUnlock()

	for _, p := range peers {
		p.Close()
	}
}
