package server

import (
	"encoding/json"
	"fmt"
)

// 入站消息类型（客户端 → 服务端）
const (
	TypeCreateRoom  = "createRoom"
	TypeJoinRoom    = "joinRoom"
	TypeLeaveRoom   = "leaveRoom"
	TypePlayerMove  = "playerMove"
	TypeBlockUpdate = "blockUpdate"
)

// 出站消息类型（服务端 → 客户端）
const (
	TypeHello        = "hello"
	TypeRoomCreated  = "roomCreated"
	TypeJoinedRoom   = "joinedRoom"
	TypeRoomError    = "roomError"
	TypePlayerJoined = "playerJoined"
	TypePlayerMoved  = "playerMoved"
	TypePlayerLeft   = "playerLeft"
	TypeBlockAdded   = "blockAdded"
	TypeBlockRemoved = "blockRemoved"
)

// envelope 每个 WebSocket 文本帧一条：{"type":"joinRoom","data":{...}}
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound 入站消息的封闭变体，每种事件一个结构体
type Inbound interface {
	inboundType() string
}

type CreateRoomMsg struct {
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
	Name     string `json:"name"`
}

type JoinRoomMsg struct {
	RoomID   string `json:"roomId"`
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
	Name     string `json:"name"`
}

type LeaveRoomMsg struct{}

type PlayerMoveMsg struct {
	RoomID   string `json:"roomId"`
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
}

// BlockAction 方块编辑动作
type BlockAction string

const (
	BlockAdd    BlockAction = "add"
	BlockRemove BlockAction = "remove"
)

type BlockUpdateMsg struct {
	RoomID string      `json:"roomId"`
	Action BlockAction `json:"action"`
	Block  Block       `json:"block"`
}

func (CreateRoomMsg) inboundType() string  { return TypeCreateRoom }
func (JoinRoomMsg) inboundType() string    { return TypeJoinRoom }
func (LeaveRoomMsg) inboundType() string   { return TypeLeaveRoom }
func (PlayerMoveMsg) inboundType() string  { return TypePlayerMove }
func (BlockUpdateMsg) inboundType() string { return TypeBlockUpdate }

// DecodeInbound 按 type 路由并校验载荷；未知类型或不符合 schema 的消息返回错误
func DecodeInbound(b []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		env.Data = json.RawMessage("{}")
	}

	var msg Inbound
	switch env.Type {
	case TypeCreateRoom:
		var m CreateRoomMsg
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case TypeJoinRoom:
		var m JoinRoomMsg
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case TypeLeaveRoom:
		if err := validatePayload(env.Type, env.Data); err != nil {
			return nil, err
		}
		msg = LeaveRoomMsg{}
	case TypePlayerMove:
		var m PlayerMoveMsg
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		msg = m
	case TypeBlockUpdate:
		var m BlockUpdateMsg
		if err := decodePayload(env, &m); err != nil {
			return nil, err
		}
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return msg, nil
}

func decodePayload(env envelope, v any) error {
	if err := validatePayload(env.Type, env.Data); err != nil {
		return err
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
	}
	return nil
}

// Outbound 出站消息的封闭变体
type Outbound interface {
	outboundType() string
}

// HelloMsg 连接建立后立即下发，告知客户端自己的连接 ID
type HelloMsg struct {
	ID ConnID `json:"id"`
}

type RoomCreatedMsg struct {
	RoomID string `json:"roomId"`
}

type JoinedRoomMsg struct {
	RoomID string   `json:"roomId"`
	State  Snapshot `json:"state"`
}

type RoomErrorMsg struct {
	Message string `json:"message"`
}

type PlayerJoinedMsg struct {
	Player
}

type PlayerMovedMsg struct {
	ID       ConnID `json:"id"`
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
}

type PlayerLeftMsg struct {
	ID ConnID `json:"id"`
}

type BlockAddedMsg struct {
	Block
}

type BlockRemovedMsg struct {
	Position Vec3 `json:"position"`
}

func (HelloMsg) outboundType() string        { return TypeHello }
func (RoomCreatedMsg) outboundType() string  { return TypeRoomCreated }
func (JoinedRoomMsg) outboundType() string   { return TypeJoinedRoom }
func (RoomErrorMsg) outboundType() string    { return TypeRoomError }
func (PlayerJoinedMsg) outboundType() string { return TypePlayerJoined }
func (PlayerMovedMsg) outboundType() string  { return TypePlayerMoved }
func (PlayerLeftMsg) outboundType() string   { return TypePlayerLeft }
func (BlockAddedMsg) outboundType() string   { return TypeBlockAdded }
func (BlockRemovedMsg) outboundType() string { return TypeBlockRemoved }

// Encode 序列化为带 type 的信封
func Encode(m Outbound) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: m.outboundType(), Data: data})
}
