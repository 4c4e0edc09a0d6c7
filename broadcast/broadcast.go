// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"

	"github.com/wfunc/walkerserver/logger"
	"github.com/wfunc/walkerserver/network"
	"github.com/wfunc/walkerserver/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// 基于会话的广播器，玩家 ID 即会话 ID
type RoomBroadcaster struct {
	sessionManager *session.Manager
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
	}
}

// BroadcastRoom 先发事件，再给每个玩家发带自己 ID 的快照
func (b *RoomBroadcaster) BroadcastRoom(update network.RoomUpdate, events ...network.Event) {
	encoded := make([][]byte, len(events))
	for i, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			logger.Log.Errorf("Failed to encode message %d for room %s: %v", e.MsgID(), update.Room, err)
			continue
		}
		encoded[i] = data
	}

	for playerID := range update.Players {
		for i, e := range events {
			if encoded[i] == nil {
				continue
			}
			b.deliver(playerID, e.MsgID(), encoded[i])
		}

		personal := update
		personal.You = playerID
		data, err := json.Marshal(personal)
		if err != nil {
			logger.Log.Errorf("Failed to encode room update for %s: %v", playerID, err)
			continue
		}
		b.deliver(playerID, network.MsgTypeRoomUpdate, data)
	}
}

// SendTo 单播
func (b *RoomBroadcaster) SendTo(playerID string, event network.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Log.Errorf("Failed to encode message %d for %s: %v", event.MsgID(), playerID, err)
		return
	}
	b.deliver(playerID, event.MsgID(), data)
}

// deliver 发送失败只记录日志，断线由连接处理器负责清理
func (b *RoomBroadcaster) deliver(playerID string, msgID uint16, data []byte) {
	if err := b.send(playerID, msgID, data); err != nil {
		logger.Log.Debugf("Dropped message %d for %s: %v", msgID, playerID, err)
	}
}

func (b *RoomBroadcaster) send(sessionID string, msgID uint16, data []byte) error {
	s, exists := b.sessionManager.Get(sessionID)
	if !exists {
		return ErrSessionNotFound
	}
	return s.Send(msgID, data)
}
