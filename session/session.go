// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/walkerserver/network"
)

// DefaultSendQueue 每个会话的待发消息上限
const DefaultSendQueue = 256

var (
	ErrClosed        = errors.New("session closed")
	ErrSendQueueFull = errors.New("session send queue full")
)

type outbound struct {
	msgID uint16
	data  []byte
}

// Session is the transport handle for one connection. The game core only
// ever sees its ID; Send never blocks so it is safe under a room lock.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	roomID     string
	lastActive time.Time
	sendQueue  chan outbound
	closed     chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	return NewSessionWithQueue(id, conn, DefaultSendQueue)
}

func NewSessionWithQueue(id string, conn network.Connection, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultSendQueue
	}
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		sendQueue:  make(chan outbound, queueSize),
		closed:     make(chan struct{}),
	}
}

// Send enqueues a message for the write loop.
func (s *Session) Send(msgID uint16, data []byte) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	select {
	case s.sendQueue <- outbound{msgID: msgID, data: data}:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// WriteLoop drains the send queue into the connection until the session is
// closed or a write fails.
func (s *Session) WriteLoop() {
	for {
		select {
		case msg := <-s.sendQueue:
			if err := s.Conn.Send(msg.msgID, msg.data); err != nil {
				s.Close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) RoomID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID
}

func (s *Session) SetRoomID(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.roomID = roomID
}

// Touch records inbound activity.
func (s *Session) Touch() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastActive = time.Now()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

// Close stops the write loop and closes the connection once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.Conn.Close()
	})
	return err
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll closes every session. Their connection handlers clean up when
// the pending read fails.
func (m *Manager) CloseAll() {
	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mutex.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}
