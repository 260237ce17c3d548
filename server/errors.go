package server

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	ErrAlreadyInRoom  = errors.New("already in a room")
	ErrPlayerExists   = errors.New("player already in room")
	ErrIDExhausted    = errors.New("room id space exhausted")
	ErrUnknownType    = errors.New("unknown message type")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrPeerClosed     = errors.New("connection closed")
	ErrSendQueueFull  = errors.New("send queue full")
)

// clientMessage 将领域错误映射为发给客户端的 roomError 文案
func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, ErrRoomFull):
		return "Room is full"
	case errors.Is(err, ErrAlreadyInRoom), errors.Is(err, ErrPlayerExists):
		return "Already in a room"
	default:
		return "Internal error"
	}
}
