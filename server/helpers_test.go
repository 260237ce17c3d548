package server

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// fakePeer 记录收到的消息，用于不经网络的协议测试
type fakePeer struct {
	id ConnID

	mu     sync.Mutex
	msgs   []envelope
	full   bool
	closed bool
}

func newFakePeer(id string) *fakePeer { return &fakePeer{id: ConnID(id)} }

func (p *fakePeer) ID() ConnID { return p.id }

func (p *fakePeer) Enqueue(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}
	if p.full {
		return ErrSendQueueFull
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		panic(err)
	}
	p.msgs = append(p.msgs, env)
	return nil
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// types 按接收顺序返回消息类型
func (p *fakePeer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Type)
	}
	return out
}

func (p *fakePeer) count(typ string) int {
	n := 0
	for _, t := range p.types() {
		if t == typ {
			n++
		}
	}
	return n
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = nil
}

// last 把最近一条 typ 类型消息的 data 解到 v
func (p *fakePeer) last(t *testing.T, typ string, v any) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.msgs) - 1; i >= 0; i-- {
		if p.msgs[i].Type == typ {
			require.NoError(t, json.Unmarshal(p.msgs[i].Data, v))
			return
		}
	}
	t.Fatalf("peer %s: no %q message, got %v", p.id, typ, p.typesLocked())
}

func (p *fakePeer) typesLocked() []string {
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Type)
	}
	return out
}

func useTestLogger(t *testing.T) {
	t.Helper()
	prev := Log
	Log = zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)).Sugar()
	t.Cleanup(func() { Log = prev })
}

func newTestHub(t *testing.T, capacity int) *Hub {
	t.Helper()
	useTestLogger(t)
	cfg := DefaultConfig()
	cfg.RoomCapacity = capacity
	hub, err := NewHub(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hub.Close() })
	return hub
}

func connect(hub *Hub, id string) (*Session, *fakePeer) {
	p := newFakePeer(id)
	return hub.Connect(p), p
}

// createRoom 让 s 创建房间并返回房间 ID
func createRoom(t *testing.T, s *Session, p *fakePeer, name string) string {
	t.Helper()
	s.Handle(CreateRoomMsg{Name: name})
	var created RoomCreatedMsg
	p.last(t, TypeRoomCreated, &created)
	require.NotEmpty(t, created.RoomID)
	return created.RoomID
}
