package network

// 客户端 -> 服务器
const (
	MsgTypeHeartbeat    = 1
	MsgTypeJoinRoom     = 101
	MsgTypeLeaveRoom    = 102
	MsgTypeBuyRequest   = 201
	MsgTypeSell         = 202
	MsgTypeStealStart   = 203
	MsgTypeStealBlocked = 204
)

// 服务器 -> 客户端
const (
	MsgTypeRoomUpdate         = 301
	MsgTypeBuyResult          = 302
	MsgTypeSellResult         = 303
	MsgTypeWalkerSpawn        = 304
	MsgTypeWalkerRemove       = 305
	MsgTypeStealStartNotify   = 306
	MsgTypeStealSuccessNotify = 307
	MsgTypeStealBlockedNotify = 308
	MsgTypeStealFailedNotify  = 309
)
