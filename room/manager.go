// room/manager.go
package room

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/walkerserver/logger"
)

// DefaultRoomCode is used when a join names no room.
const DefaultRoomCode = "lobby"

// Manager 管理所有房间：首个玩家加入时创建，最后一个离开时销毁
type Manager struct {
	rooms       map[string]*Room
	cfg         Config
	broadcaster Broadcaster
	recorder    Recorder
	rng         *rand.Rand
	mutex       sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(cfg Config, broadcaster Broadcaster, recorder Recorder) *Manager {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Manager{
		rooms:       make(map[string]*Room),
		cfg:         cfg.withDefaults(),
		broadcaster: broadcaster,
		recorder:    recorder,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Join attaches a player to the room, creating the room first when the code
// is unseen. A non-negative startingBalance overrides the configured default.
func (m *Manager) Join(code, playerID, username string, startingBalance *int64) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if code == "" {
		code = DefaultRoomCode
	}
	if username == "" {
		username = fmt.Sprintf("player%d", m.rng.Intn(10000))
	}
	balance := m.cfg.StartingBalance
	if startingBalance != nil && *startingBalance >= 0 {
		balance = *startingBalance
	}

	room, exists := m.rooms[code]
	if !exists {
		room = NewRoom(code, m.cfg, m.broadcaster, m.recorder)
		m.rooms[code] = room
		m.recorder.SetActiveRooms(len(m.rooms))
		logger.Log.Infof("Room %s created", code)
	}

	if room.join(playerID, username, balance) {
		m.recorder.IncOnlinePlayers()
	}
	return room
}

// Leave detaches a player and discards the room once it is empty.
// Unknown rooms and players are ignored.
func (m *Manager) Leave(code, playerID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room, exists := m.rooms[code]
	if !exists {
		return
	}

	removed, empty := room.leave(playerID)
	if removed {
		m.recorder.DecOnlinePlayers()
	}
	if empty {
		delete(m.rooms, code)
		m.recorder.SetActiveRooms(len(m.rooms))
	}
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[code]
	return room, exists
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Rooms summarizes every live room, ordered by code.
func (m *Manager) Rooms() []Info {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	infos := make([]Info, 0, len(m.rooms))
	for _, room := range m.rooms {
		infos = append(infos, room.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Code < infos[j].Code })
	return infos
}

// Shutdown closes every room.
func (m *Manager) Shutdown() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for code, room := range m.rooms {
		room.Close()
		delete(m.rooms, code)
	}
	m.recorder.SetActiveRooms(0)
}
