package server

import (
	"crypto/rand"
	"fmt"
	"io"
	"sort"
	"sync"
)

const (
	roomIDLength   = 6
	roomIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	// maxIDAttempts 连续碰撞这么多次视为 ID 空间耗尽
	maxIDAttempts = 16
)

// Directory 进程级房间目录：roomID → Room。
// 目录锁只保护映射本身，房间内容由各自的房间锁保护。
// 加锁顺序：目录锁 → 房间锁，反向从不发生。
type Directory struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	capacity int
	out      Outbox
	newID    func() (string, error)
}

// NewDirectory 创建空目录；capacity 为新房间的人数上限，out 为房间广播出口
func NewDirectory(capacity int, out Outbox) *Directory {
	return &Directory{
		rooms:    make(map[string]*Room),
		capacity: capacity,
		out:      out,
		newID:    newRoomID,
	}
}

// CreateRoom 生成不冲突的 ID 并登记房间。seed 非空时在房间对外可见之前
// 于房间锁内执行（用于放入创建者），因此房间不会以零玩家状态被他人寻址到。
func (d *Directory) CreateRoom(seed func(tx *RoomTx) error) (*Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, err := d.freeIDLocked()
	if err != nil {
		return nil, err
	}
	room := NewRoom(id, d.capacity, d.out)
	if seed != nil {
		if err := room.Update(seed); err != nil {
			return nil, err
		}
	}
	d.rooms[id] = room
	return room, nil
}

func (d *Directory) freeIDLocked() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id, err := d.newID()
		if err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		if _, taken := d.rooms[id]; !taken {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

// GetRoom 查找房间，不做任何修改
func (d *Directory) GetRoom(id string) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[id]
	return r, ok
}

// DeleteRoom 删除房间；不存在时无操作
func (d *Directory) DeleteRoom(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rooms, id)
}

// Remove 仅当目录中登记的仍是 room 这个实例时才删除
func (d *Directory) Remove(room *Room) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.rooms[room.ID]; ok && cur == room {
		delete(d.rooms, room.ID)
		return true
	}
	return false
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// List 返回按 ID 排序的房间概要
func (d *Directory) List() []RoomInfo {
	d.mu.RLock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// newRoomID 生成 6 位小写 base36 房间码
func newRoomID() (string, error) {
	return roomIDFrom(rand.Reader)
}

// roomIDFrom 拒绝采样：丢弃 >= unbiasedLimit 的字节，保证每个字符等概率
func roomIDFrom(src io.Reader) (string, error) {
	const unbiasedLimit = 256 - 256%len(roomIDAlphabet)

	out := make([]byte, 0, roomIDLength)
	buf := make([]byte, roomIDLength*2)
	for len(out) < roomIDLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= unbiasedLimit {
				continue
			}
			out = append(out, roomIDAlphabet[int(b)%len(roomIDAlphabet)])
			if len(out) == roomIDLength {
				break
			}
		}
	}
	return string(out), nil
}
