package server

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_CloseRunsDisconnectBeforeJournalClose(t *testing.T) {
	useTestLogger(t)
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Journal.Dir = dir
	hub, err := NewHub(cfg)
	require.NoError(t, err)

	a, pa := connect(hub, "A")
	b, pb := connect(hub, "B")
	roomID := createRoom(t, a, pa, "alice")
	b.Handle(JoinRoomMsg{RoomID: roomID, Name: "bob"})

	// 会话都没有自行关闭，Hub.Close 负责
	require.NoError(t, hub.Close())

	assert.True(t, pa.isClosed())
	assert.True(t, pb.isClosed())
	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, hub.Rooms().Len())
	assert.Equal(t, 0, hub.Peers().Len())
	assert.Equal(t, int64(2), hub.Metrics().ConnectionsClosed)
	assert.Equal(t, int64(0), hub.Metrics().JournalDropped)

	files, err := filepath.Glob(filepath.Join(dir, "rooms-*.jsonl.zst"))
	require.NoError(t, err)
	var kinds []string
	for _, f := range files {
		for _, e := range readJournal(t, f) {
			kinds = append(kinds, e.Kind)
		}
	}
	require.Len(t, kinds, 5)
	assert.Equal(t, []string{JournalCreate, JournalJoin}, kinds[:2])
	assert.Equal(t, []string{JournalLeave, JournalLeave}, kinds[2:4])
	assert.Equal(t, JournalDelete, kinds[4])

	// 读协程之后的 Close 是空操作
	a.Close()
	assert.Equal(t, int64(2), hub.Metrics().ConnectionsClosed)
	require.NoError(t, hub.Close())
}
