package server

import (
	"bytes"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roomIDPattern = regexp.MustCompile(`^[a-z0-9]{6}$`)

func TestDirectory_CreateAndGet(t *testing.T) {
	d := NewDirectory(4, nil)

	room, err := d.CreateRoom(nil)
	require.NoError(t, err)
	assert.Regexp(t, roomIDPattern, room.ID)
	assert.Equal(t, 4, room.Capacity())

	got, ok := d.GetRoom(room.ID)
	require.True(t, ok)
	assert.Same(t, room, got)

	_, ok = d.GetRoom("nope00")
	assert.False(t, ok)
	assert.Equal(t, 1, d.Len())
}

func TestDirectory_UniqueIDs(t *testing.T) {
	d := NewDirectory(4, nil)
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		room, err := d.CreateRoom(nil)
		require.NoError(t, err)
		require.False(t, seen[room.ID], "duplicate id %s", room.ID)
		seen[room.ID] = true
	}
	assert.Equal(t, 500, d.Len())
}

func TestDirectory_CollisionRetries(t *testing.T) {
	d := NewDirectory(4, nil)
	ids := []string{"aaaaaa", "aaaaaa", "aaaaaa", "bbbbbb"}
	d.newID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}

	first, err := d.CreateRoom(nil)
	require.NoError(t, err)
	assert.Equal(t, "aaaaaa", first.ID)

	second, err := d.CreateRoom(nil)
	require.NoError(t, err)
	assert.Equal(t, "bbbbbb", second.ID)
}

func TestDirectory_IDExhausted(t *testing.T) {
	d := NewDirectory(4, nil)
	d.newID = func() (string, error) { return "aaaaaa", nil }

	_, err := d.CreateRoom(nil)
	require.NoError(t, err)

	_, err = d.CreateRoom(nil)
	assert.ErrorIs(t, err, ErrIDExhausted)
	assert.Equal(t, 1, d.Len())
}

func TestDirectory_IDSourceError(t *testing.T) {
	d := NewDirectory(4, nil)
	boom := errors.New("entropy unavailable")
	d.newID = func() (string, error) { return "", boom }

	_, err := d.CreateRoom(nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, d.Len())
}

func TestDirectory_SeedRunsBeforeRegistration(t *testing.T) {
	d := NewDirectory(4, nil)

	room, err := d.CreateRoom(func(tx *RoomTx) error {
		// 种子执行时房间尚不可寻址
		_, visible := d.rooms[tx.RoomID()]
		assert.False(t, visible)
		return tx.AddPlayer("creator", PlayerInit{Name: "alice"})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, room.PlayerCount())

	_, err = d.CreateRoom(func(tx *RoomTx) error { return ErrRoomFull })
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, 1, d.Len())
}

func TestDirectory_DeleteRoom(t *testing.T) {
	d := NewDirectory(4, nil)
	room, err := d.CreateRoom(nil)
	require.NoError(t, err)

	d.DeleteRoom(room.ID)
	_, ok := d.GetRoom(room.ID)
	assert.False(t, ok)

	// 不存在的房间：无操作
	d.DeleteRoom(room.ID)
	d.DeleteRoom("zzzzzz")
	assert.Equal(t, 0, d.Len())
}

func TestDirectory_RemoveOnlySameInstance(t *testing.T) {
	d := NewDirectory(4, nil)
	d.newID = func() (string, error) { return "aaaaaa", nil }

	old, err := d.CreateRoom(nil)
	require.NoError(t, err)
	d.DeleteRoom(old.ID)

	fresh, err := d.CreateRoom(nil)
	require.NoError(t, err)
	require.Equal(t, old.ID, fresh.ID)

	assert.False(t, d.Remove(old))
	got, ok := d.GetRoom("aaaaaa")
	require.True(t, ok)
	assert.Same(t, fresh, got)

	assert.True(t, d.Remove(fresh))
	assert.False(t, d.Remove(fresh))
}

func TestDirectory_List(t *testing.T) {
	d := NewDirectory(4, nil)
	ids := []string{"cccccc", "aaaaaa", "bbbbbb"}
	d.newID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
	for i := 0; i < 3; i++ {
		_, err := d.CreateRoom(func(tx *RoomTx) error {
			return tx.AddPlayer("p", PlayerInit{})
		})
		require.NoError(t, err)
	}

	list := d.List()
	require.Len(t, list, 3)
	assert.Equal(t, "aaaaaa", list[0].ID)
	assert.Equal(t, "bbbbbb", list[1].ID)
	assert.Equal(t, "cccccc", list[2].ID)
	for _, info := range list {
		assert.Equal(t, 1, info.Players)
		assert.Equal(t, 4, info.Capacity)
	}
}

func TestDirectory_ConcurrentCreateAndDelete(t *testing.T) {
	d := NewDirectory(4, nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				room, err := d.CreateRoom(nil)
				if !assert.NoError(t, err) {
					return
				}
				_, ok := d.GetRoom(room.ID)
				assert.True(t, ok)
				if i%2 == 0 {
					assert.True(t, d.Remove(room))
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8*25, d.Len())
}

func TestNewRoomID(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := newRoomID()
		require.NoError(t, err)
		assert.Regexp(t, roomIDPattern, id)
	}
}

func TestRoomIDFrom_RejectsBiasedBytes(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
		want string
	}{
		{
			name: "plain",
			src:  []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
			want: "abcdef",
		},
		{
			name: "skips bytes 252..255",
			src:  []byte{255, 252, 0, 1, 253, 2, 3, 4, 5, 254, 6, 7},
			want: "abcdef",
		},
		{
			name: "wraps at alphabet length",
			src:  []byte{36, 71, 251, 25, 26, 35, 0, 0, 0, 0, 0, 0},
			want: "a99z09",
		},
		{
			name: "reads again when a chunk is mostly rejected",
			src: append(
				[]byte{252, 253, 254, 255, 252, 253, 254, 255, 252, 253, 254, 0},
				[]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}...,
			),
			want: "abcdef",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := roomIDFrom(bytes.NewReader(tt.src))
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}

	_, err := roomIDFrom(bytes.NewReader([]byte{255, 255, 255}))
	assert.Error(t, err)
}
