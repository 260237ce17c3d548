package server

// ConnID 连接的不透明标识，连接建立时分配，生命周期内不变
type ConnID string

// Vec3 三维坐标（位置或欧拉角旋转）
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Player 房间内的玩家化身，ID 即连接 ID
type Player struct {
	ID       ConnID `json:"id"`
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
	Name     string `json:"name"`
}

// PlayerInit 加入或创建房间时客户端提供的初始状态
type PlayerInit struct {
	Position Vec3
	Rotation Vec3
	Name     string
}

// Block 已放置的方块。服务端不分配 ID，删除时按位置精确匹配
type Block struct {
	Type     int  `json:"type"`
	Position Vec3 `json:"position"`
}
