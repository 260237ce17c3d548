package server

import (
	"errors"
	"strings"
	"sync"
)

// SessionState 每条连接的协议状态
type SessionState int

const (
	StateUnjoined SessionState = iota
	StateInRoom
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const defaultPlayerName = "player"

// Session 单条连接的事件分发器：校验入站事件、修改目标房间、决定谁收到什么。
// room 是对所在房间的非拥有引用，断线清理因此无需扫描目录。
type Session struct {
	hub *Hub
	id  ConnID

	mu     sync.Mutex
	room   *Room
	closed bool
}

func (s *Session) ID() ConnID { return s.id }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return StateClosed
	case s.room != nil:
		return StateInRoom
	default:
		return StateUnjoined
	}
}

// RoomID 当前所在房间，未加入时为空
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return ""
	}
	return s.room.ID
}

// HandleRaw 解码并处理一帧消息。畸形消息计数后丢弃；
// 单条消息处理中的 panic 被拦截，不影响其他连接与房间。
func (s *Session) HandleRaw(b []byte) {
	defer func() {
		if r := recover(); r != nil {
			Log.Errorw("panic while handling message", "conn", s.id, "panic", r)
		}
	}()
	msg, err := DecodeInbound(b)
	if err != nil {
		s.hub.metrics.IncMalformedDropped()
		Log.Debugw("drop malformed message", "conn", s.id, "err", err)
		return
	}
	s.hub.metrics.IncMessagesIn()
	s.Handle(msg)
}

// Handle 处理一条已解码的入站事件
func (s *Session) Handle(msg Inbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch m := msg.(type) {
	case CreateRoomMsg:
		s.createRoom(m)
	case JoinRoomMsg:
		s.joinRoom(m)
	case LeaveRoomMsg:
		s.leaveLocked()
	case PlayerMoveMsg:
		s.playerMove(m)
	case BlockUpdateMsg:
		s.blockUpdate(m)
	default:
		Log.Warnw("unhandled inbound type", "conn", s.id, "type", msg.inboundType())
	}
}

// Close 断线流程：恰好执行一次，未加入房间时同样安全
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.leaveLocked()
	s.hub.peers.Unregister(s.id)
	s.hub.forget(s.id)
	s.hub.metrics.IncConnectionsClosed()
	Log.Debugw("connection closed", "conn", s.id)
}

func (s *Session) createRoom(m CreateRoomMsg) {
	if s.room != nil {
		s.reject(ErrAlreadyInRoom)
		return
	}
	spawn := playerInit(m.Position, m.Rotation, m.Name)
	room, err := s.hub.rooms.CreateRoom(func(tx *RoomTx) error {
		if err := tx.AddPlayer(s.id, spawn); err != nil {
			return err
		}
		tx.Send(s.id, RoomCreatedMsg{RoomID: tx.RoomID()})
		s.hub.journal.Record(JournalEntry{Kind: JournalCreate, Room: tx.RoomID(), Conn: s.id, Name: spawn.Name})
		return nil
	})
	if err != nil {
		Log.Errorw("create room failed", "conn", s.id, "err", err)
		s.reject(err)
		return
	}
	s.room = room
	s.hub.metrics.IncRoomsCreated()
	Log.Infow("room created", "room", room.ID, "conn", s.id, "rooms", s.hub.rooms.Len())
}

func (s *Session) joinRoom(m JoinRoomMsg) {
	if s.room != nil {
		s.reject(ErrAlreadyInRoom)
		return
	}
	room, ok := s.hub.rooms.GetRoom(m.RoomID)
	if !ok {
		s.reject(ErrRoomNotFound)
		return
	}
	spawn := playerInit(m.Position, m.Rotation, m.Name)
	err := room.Update(func(tx *RoomTx) error {
		// 快照取自加入之前：新玩家收到的是房间里其他人的状态
		snap := tx.Snapshot()
		if err := tx.AddPlayer(s.id, spawn); err != nil {
			return err
		}
		p, _ := tx.Player(s.id)
		tx.Send(s.id, JoinedRoomMsg{RoomID: room.ID, State: snap})
		tx.Broadcast(s.id, PlayerJoinedMsg{Player: p})
		s.hub.journal.Record(JournalEntry{Kind: JournalJoin, Room: room.ID, Conn: s.id, Name: spawn.Name})
		return nil
	})
	if err != nil {
		s.reject(err)
		return
	}
	s.room = room
	Log.Infow("player joined", "room", room.ID, "conn", s.id)
}

func (s *Session) playerMove(m PlayerMoveMsg) {
	room := s.current(m.RoomID, TypePlayerMove)
	if room == nil {
		return
	}
	moved := false
	_ = room.Update(func(tx *RoomTx) error {
		if !tx.MovePlayer(s.id, m.Position, m.Rotation) {
			return nil
		}
		moved = true
		tx.Broadcast(s.id, PlayerMovedMsg{ID: s.id, Position: m.Position, Rotation: m.Rotation})
		return nil
	})
	if !moved {
		s.stale(m.RoomID, TypePlayerMove)
	}
}

func (s *Session) blockUpdate(m BlockUpdateMsg) {
	room := s.current(m.RoomID, TypeBlockUpdate)
	if room == nil {
		return
	}
	member := false
	removed := 0
	_ = room.Update(func(tx *RoomTx) error {
		if _, ok := tx.Player(s.id); !ok {
			return nil
		}
		member = true
		switch m.Action {
		case BlockAdd:
			b := m.Block
			tx.AddBlock(b)
			tx.Broadcast(s.id, BlockAddedMsg{Block: b})
			s.hub.journal.Record(JournalEntry{Kind: JournalBlockAdd, Room: room.ID, Conn: s.id, Block: &b})
		case BlockRemove:
			pos := m.Block.Position
			removed = tx.RemoveBlock(pos)
			tx.Broadcast(s.id, BlockRemovedMsg{Position: pos})
			s.hub.journal.Record(JournalEntry{Kind: JournalBlockRemove, Room: room.ID, Conn: s.id, Position: &pos, Removed: removed})
		}
		return nil
	})
	if !member {
		s.stale(m.RoomID, TypeBlockUpdate)
		return
	}
	switch m.Action {
	case BlockAdd:
		s.hub.metrics.AddBlocksAdded(1)
	case BlockRemove:
		s.hub.metrics.AddBlocksRemoved(removed)
	}
}

// leaveLocked 离开当前房间；房间清空时从目录删除。调用方持有 s.mu
func (s *Session) leaveLocked() {
	room := s.room
	if room == nil {
		return
	}
	s.room = nil

	empty := false
	_ = room.Update(func(tx *RoomTx) error {
		if !tx.RemovePlayer(s.id) {
			return nil
		}
		empty = tx.Closed()
		tx.Broadcast(s.id, PlayerLeftMsg{ID: s.id})
		s.hub.journal.Record(JournalEntry{Kind: JournalLeave, Room: room.ID, Conn: s.id})
		return nil
	})
	Log.Infow("player left", "room", room.ID, "conn", s.id)
	if !empty {
		return
	}
	if s.hub.rooms.Remove(room) {
		s.hub.metrics.IncRoomsDeleted()
		s.hub.journal.Record(JournalEntry{Kind: JournalDelete, Room: room.ID})
		Log.Infow("removing empty room", "room", room.ID, "rooms", s.hub.rooms.Len())
	}
}

// current 返回 roomID 对应的当前房间；不是当前房间则视为过期引用
func (s *Session) current(roomID, typ string) *Room {
	if s.room == nil || s.room.ID != roomID {
		s.stale(roomID, typ)
		return nil
	}
	return s.room
}

func (s *Session) stale(roomID, typ string) {
	s.hub.metrics.IncStaleDropped()
	Log.Debugw("drop stale reference", "conn", s.id, "room", roomID, "type", typ)
}

func (s *Session) reject(err error) {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		s.hub.metrics.IncJoinsNotFound()
	case errors.Is(err, ErrRoomFull):
		s.hub.metrics.IncJoinsFull()
	}
	s.reply(RoomErrorMsg{Message: clientMessage(err)})
}

// reply 直接发给本连接（不经过房间）
func (s *Session) reply(msg Outbound) {
	payload, err := Encode(msg)
	if err != nil {
		Log.Errorw("encode reply failed", "conn", s.id, "err", err)
		return
	}
	s.hub.peers.Deliver(s.id, payload)
}

func playerInit(pos, rot Vec3, name string) PlayerInit {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultPlayerName
	}
	return PlayerInit{Position: pos, Rotation: rot, Name: name}
}
