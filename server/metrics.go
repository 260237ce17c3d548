package server

import (
	"sync/atomic"
)

// Metrics 进程级运行计数（监控与调试用）
type Metrics struct {
	ConnectionsOpened int64 // 已建立的连接数
	ConnectionsClosed int64 // 已断开的连接数
	RoomsCreated      int64
	RoomsDeleted      int64
	JoinsNotFound     int64 // 因房间不存在被拒绝的加入
	JoinsFull         int64 // 因满员被拒绝的加入
	MessagesIn        int64 // 通过校验的入站消息
	MessagesOut       int64 // 成功入队的出站消息
	MalformedDropped  int64 // 无法解析或未通过 schema 的入站消息
	StaleDropped      int64 // 指向非当前房间的移动/编辑
	SlowPeersClosed   int64 // 发送队列满被关闭的连接
	BlocksAdded       int64
	BlocksRemoved     int64
	JournalDropped    int64 // 日志队列满被丢弃的条目
}

func (m *Metrics) IncConnectionsOpened()  { atomic.AddInt64(&m.ConnectionsOpened, 1) }
func (m *Metrics) IncConnectionsClosed()  { atomic.AddInt64(&m.ConnectionsClosed, 1) }
func (m *Metrics) IncRoomsCreated()       { atomic.AddInt64(&m.RoomsCreated, 1) }
func (m *Metrics) IncRoomsDeleted()       { atomic.AddInt64(&m.RoomsDeleted, 1) }
func (m *Metrics) IncJoinsNotFound()      { atomic.AddInt64(&m.JoinsNotFound, 1) }
func (m *Metrics) IncJoinsFull()          { atomic.AddInt64(&m.JoinsFull, 1) }
func (m *Metrics) IncMessagesIn()         { atomic.AddInt64(&m.MessagesIn, 1) }
func (m *Metrics) IncMessagesOut()        { atomic.AddInt64(&m.MessagesOut, 1) }
func (m *Metrics) IncMalformedDropped()   { atomic.AddInt64(&m.MalformedDropped, 1) }
func (m *Metrics) IncStaleDropped()       { atomic.AddInt64(&m.StaleDropped, 1) }
func (m *Metrics) IncSlowPeersClosed()    { atomic.AddInt64(&m.SlowPeersClosed, 1) }
func (m *Metrics) IncJournalDropped()     { atomic.AddInt64(&m.JournalDropped, 1) }
func (m *Metrics) AddBlocksAdded(n int)   { atomic.AddInt64(&m.BlocksAdded, int64(n)) }
func (m *Metrics) AddBlocksRemoved(n int) { atomic.AddInt64(&m.BlocksRemoved, int64(n)) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"connections_opened": atomic.LoadInt64(&m.ConnectionsOpened),
		"connections_closed": atomic.LoadInt64(&m.ConnectionsClosed),
		"rooms_created":      atomic.LoadInt64(&m.RoomsCreated),
		"rooms_deleted":      atomic.LoadInt64(&m.RoomsDeleted),
		"joins_not_found":    atomic.LoadInt64(&m.JoinsNotFound),
		"joins_full":         atomic.LoadInt64(&m.JoinsFull),
		"messages_in":        atomic.LoadInt64(&m.MessagesIn),
		"messages_out":       atomic.LoadInt64(&m.MessagesOut),
		"malformed_dropped":  atomic.LoadInt64(&m.MalformedDropped),
		"stale_dropped":      atomic.LoadInt64(&m.StaleDropped),
		"slow_peers_closed":  atomic.LoadInt64(&m.SlowPeersClosed),
		"blocks_added":       atomic.LoadInt64(&m.BlocksAdded),
		"blocks_removed":     atomic.LoadInt64(&m.BlocksRemoved),
		"journal_dropped":    atomic.LoadInt64(&m.JournalDropped),
	}
}
