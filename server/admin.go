package server

import (
	"encoding/json"
	"net/http"
)

// HandleRooms 房间查询
// GET /admin/rooms            返回全部房间概要
// GET /admin/rooms?id=abc123  返回该房间快照
func (h *Hub) HandleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := r.URL.Query().Get("id")
	if roomID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"rooms": h.rooms.List()})
		return
	}

	room, ok := h.rooms.GetRoom(roomID)
	if !ok {
		writeJSON(w, http.StatusNotFound, RoomErrorMsg{Message: clientMessage(ErrRoomNotFound)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":  room.Info(),
		"state": room.Snapshot(),
	})
}

// HandleMetrics 输出运行指标
// GET /metrics
func (h *Hub) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rooms":       h.rooms.Len(),
		"connections": h.peers.Len(),
		"metrics":     h.metrics.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
