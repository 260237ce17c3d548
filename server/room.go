package server

import (
	"sort"
	"sync"
	"time"
)

// DefaultRoomCapacity 每个房间的默认人数上限
const DefaultRoomCapacity = 4

// Outbox 将已编码的消息投递给某个连接（非阻塞）
type Outbox interface {
	Deliver(to ConnID, payload []byte)
}

// Snapshot 房间某一时刻的一致副本，用于新加入者同步
type Snapshot struct {
	Players []Player `json:"players"`
	Blocks  []Block  `json:"blocks"`
}

// RoomInfo 房间概要（管理接口使用）
type RoomInfo struct {
	ID        string    `json:"roomId"`
	Players   int       `json:"players"`
	Blocks    int       `json:"blocks"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"createdAt"`
}

// Room 一致性边界：玩家名册 + 方块序列，由房间自己的互斥锁保护。
// 不同房间之间没有共享锁。
type Room struct {
	ID        string
	capacity  int
	createdAt time.Time
	out       Outbox

	mu      sync.Mutex
	players map[ConnID]*Player
	blocks  []Block
	closed  bool // 最后一名玩家离开后置位，之后不再接受加入
}

// NewRoom 创建空房间
func NewRoom(id string, capacity int, out Outbox) *Room {
	if capacity <= 0 {
		capacity = DefaultRoomCapacity
	}
	return &Room{
		ID:        id,
		capacity:  capacity,
		createdAt: time.Now(),
		out:       out,
		players:   make(map[ConnID]*Player),
	}
}

// Update 在房间锁内执行 fn。fn 通过 tx 修改状态并登记要发送的消息；
// fn 返回 nil 时，登记的消息在释放锁之前按顺序入队，因此同一房间内
// 转发顺序与应用顺序一致。fn 返回错误时丢弃登记的消息，fn 应在修改状态前返回错误。
func (r *Room) Update(fn func(tx *RoomTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &RoomTx{room: r}
	if err := fn(tx); err != nil {
		return err
	}
	tx.flush()
	return nil
}

// AddPlayer 加入玩家；满员返回 ErrRoomFull
func (r *Room) AddPlayer(id ConnID, spawn PlayerInit) error {
	return r.Update(func(tx *RoomTx) error {
		return tx.AddPlayer(id, spawn)
	})
}

// RemovePlayer 移除玩家，幂等
func (r *Room) RemovePlayer(id ConnID) {
	_ = r.Update(func(tx *RoomTx) error {
		tx.RemovePlayer(id)
		return nil
	})
}

// AddBlock 无条件追加方块
func (r *Room) AddBlock(b Block) {
	_ = r.Update(func(tx *RoomTx) error {
		tx.AddBlock(b)
		return nil
	})
}

// RemoveBlock 删除所有位置完全相同的方块，返回删除数量
func (r *Room) RemoveBlock(pos Vec3) int {
	var n int
	_ = r.Update(func(tx *RoomTx) error {
		n = tx.RemoveBlock(pos)
		return nil
	})
	return n
}

func (r *Room) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players) >= r.capacity
}

func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

func (r *Room) Capacity() int { return r.capacity }

// Snapshot 在房间锁内复制当前玩家与方块
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{
		ID:        r.ID,
		Players:   len(r.players),
		Blocks:    len(r.blocks),
		Capacity:  r.capacity,
		CreatedAt: r.createdAt,
	}
}

func (r *Room) snapshotLocked() Snapshot {
	players := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, *p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })

	blocks := make([]Block, len(r.blocks))
	copy(blocks, r.blocks)
	return Snapshot{Players: players, Blocks: blocks}
}

// RoomTx 房间事务句柄，只在 Update 回调内有效
type RoomTx struct {
	room  *Room
	sends []delivery
}

type delivery struct {
	to  []ConnID
	msg Outbound
}

func (tx *RoomTx) RoomID() string { return tx.room.ID }

// Closed 房间是否已因清空而关闭
func (tx *RoomTx) Closed() bool { return tx.room.closed }

func (tx *RoomTx) IsFull() bool { return len(tx.room.players) >= tx.room.capacity }

func (tx *RoomTx) PlayerCount() int { return len(tx.room.players) }

func (tx *RoomTx) AddPlayer(id ConnID, spawn PlayerInit) error {
	r := tx.room
	if r.closed {
		return ErrRoomNotFound
	}
	if _, ok := r.players[id]; ok {
		return ErrPlayerExists
	}
	if len(r.players) >= r.capacity {
		return ErrRoomFull
	}
	r.players[id] = &Player{
		ID:       id,
		Position: spawn.Position,
		Rotation: spawn.Rotation,
		Name:     spawn.Name,
	}
	return nil
}

// RemovePlayer 移除玩家；最后一名玩家离开时房间关闭
func (tx *RoomTx) RemovePlayer(id ConnID) bool {
	r := tx.room
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	if len(r.players) == 0 {
		r.closed = true
	}
	return true
}

func (tx *RoomTx) Player(id ConnID) (Player, bool) {
	p, ok := tx.room.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// MovePlayer 原地更新位置与旋转；玩家不在房间时返回 false
func (tx *RoomTx) MovePlayer(id ConnID, pos, rot Vec3) bool {
	p, ok := tx.room.players[id]
	if !ok {
		return false
	}
	p.Position = pos
	p.Rotation = rot
	return true
}

func (tx *RoomTx) AddBlock(b Block) {
	tx.room.blocks = append(tx.room.blocks, b)
}

// RemoveBlock 按位置过滤，堆叠在同一位置的方块全部删除
func (tx *RoomTx) RemoveBlock(pos Vec3) int {
	r := tx.room
	kept := r.blocks[:0]
	for _, b := range r.blocks {
		if b.Position != pos {
			kept = append(kept, b)
		}
	}
	removed := len(r.blocks) - len(kept)
	// 清掉尾部残留，避免底层数组持有旧值
	for i := len(kept); i < len(r.blocks); i++ {
		r.blocks[i] = Block{}
	}
	r.blocks = kept
	return removed
}

func (tx *RoomTx) Snapshot() Snapshot { return tx.room.snapshotLocked() }

// Send 登记一条发给单个连接的消息
func (tx *RoomTx) Send(to ConnID, msg Outbound) {
	tx.sends = append(tx.sends, delivery{to: []ConnID{to}, msg: msg})
}

// Broadcast 登记一条发给房间内除 except 以外所有玩家的消息；
// 接收者集合在调用时确定
func (tx *RoomTx) Broadcast(except ConnID, msg Outbound) {
	to := make([]ConnID, 0, len(tx.room.players))
	for id := range tx.room.players {
		if id != except {
			to = append(to, id)
		}
	}
	if len(to) == 0 {
		return
	}
	tx.sends = append(tx.sends, delivery{to: to, msg: msg})
}

func (tx *RoomTx) flush() {
	if tx.room.out == nil {
		return
	}
	for _, d := range tx.sends {
		payload, err := Encode(d.msg)
		if err != nil {
			Log.Errorw("encode outbound failed", "room", tx.room.ID, "type", d.msg.outboundType(), "err", err)
			continue
		}
		for _, id := range d.to {
			tx.room.out.Deliver(id, payload)
		}
	}
}
