package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wfunc/walkerserver/logger"
	"github.com/wfunc/walkerserver/network"
	"github.com/wfunc/walkerserver/room"
	"github.com/wfunc/walkerserver/session"
)

// Recorder receives transport level metrics.
type Recorder interface {
	IncMessagesReceived()
	MessageDropped(reason string)
	ObserveMessageLatency(duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) IncMessagesReceived()                {}
func (nopRecorder) MessageDropped(string)               {}
func (nopRecorder) ObserveMessageLatency(time.Duration) {}

// Options 连接层参数
type Options struct {
	Addr              string
	ReadLimit         int64
	SendQueue         int
	MessagesPerSecond float64
	MessageBurst      int
	Heartbeat         time.Duration
}

type GameServer struct {
	opts           Options
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	recorder       Recorder
	httpServer     *http.Server
	shutdownChan   chan struct{}
	shutdownOnce   sync.Once
	mutex          sync.Mutex
}

func NewGameServer(opts Options, roomManager *room.Manager, sessionManager *session.Manager, recorder Recorder) *GameServer {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &GameServer{
		opts:           opts,
		roomManager:    roomManager,
		sessionManager: sessionManager,
		recorder:       recorder,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
}

// Handler routes /ws to the game connection handler.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start blocks serving HTTP until Shutdown.
func (s *GameServer) Start() error {
	s.mutex.Lock()
	s.httpServer = &http.Server{Addr: s.opts.Addr, Handler: s.Handler()}
	srv := s.httpServer
	s.mutex.Unlock()

	logger.Log.Infof("Game server listening on %s", s.opts.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes every live session.
func (s *GameServer) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })

	s.mutex.Lock()
	srv := s.httpServer
	s.mutex.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	// 升级后的连接不受 http.Server 管理，需要单独关闭
	s.sessionManager.CloseAll()
	return err
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) newLimiter() *rate.Limiter {
	if s.opts.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := s.opts.MessageBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), burst)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	if s.opts.ReadLimit > 0 {
		wsConn.SetReadLimit(s.opts.ReadLimit)
	}
	if s.opts.Heartbeat > 0 {
		wsConn.SetHeartbeat(s.opts.Heartbeat)
	}

	sess := session.NewSessionWithQueue(uuid.New().String(), wsConn, s.opts.SendQueue)
	s.sessionManager.Add(sess)
	go sess.WriteLoop()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	// 断线只在这里处理一次
	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		if code := sess.RoomID(); code != "" {
			s.roomManager.Leave(code, sess.GetID())
		}
		s.sessionManager.Remove(sess.GetID())
		sess.Close()
	}()

	limiter := s.newLimiter()
	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}

		packet, err := wsConn.ReadPacket()
		if errors.Is(err, io.ErrShortBuffer) {
			s.recorder.MessageDropped("malformed")
			logger.Log.Debugf("Session %s sent a truncated packet", sess.GetID())
			continue
		}
		if err != nil {
			return
		}
		if !limiter.Allow() {
			s.recorder.MessageDropped("rate_limited")
			continue
		}
		s.handlePacket(sess, packet)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.recorder.IncMessagesReceived()
	sess.Touch()

	cmd, err := network.DecodeCommand(packet)
	if err != nil {
		s.recorder.MessageDropped("malformed")
		logger.Log.Debugf("Session %s: dropped message: %v", sess.GetID(), err)
		return
	}

	s.dispatch(sess, cmd)
	s.recorder.ObserveMessageLatency(time.Since(start))
}

func (s *GameServer) dispatch(sess *session.Session, cmd network.Command) {
	switch c := cmd.(type) {
	case network.Heartbeat:
		// Touch already recorded the activity.
	case network.JoinRoom:
		s.handleJoinRoom(sess, c)
	case network.LeaveRoom:
		s.handleLeaveRoom(sess)
	case network.BuyRequest:
		if r := s.currentRoom(sess); r != nil {
			r.Buy(sess.GetID(), c.WalkerID)
		}
	case network.Sell:
		if r := s.currentRoom(sess); r != nil {
			r.Sell(sess.GetID(), c.Slot)
		}
	case network.StealStart:
		if r := s.currentRoom(sess); r != nil {
			r.StealStart(sess.GetID(), c.VictimID, c.Slot)
		}
	case network.StealBlock:
		// 只有被偷的人才能阻止
		if c.VictimID != sess.GetID() {
			logger.Log.Debugf("Session %s tried to block a steal on %s", sess.GetID(), c.VictimID)
			return
		}
		if r := s.currentRoom(sess); r != nil {
			r.StealBlocked(sess.GetID(), c.Slot)
		}
	}
}

func (s *GameServer) handleJoinRoom(sess *session.Session, cmd network.JoinRoom) {
	code := cmd.RoomCode
	if code == "" {
		code = room.DefaultRoomCode
	}
	if current := sess.RoomID(); current != "" && current != code {
		s.roomManager.Leave(current, sess.GetID())
	}

	r := s.roomManager.Join(code, sess.GetID(), cmd.Username, cmd.StartingBalance)
	sess.SetRoomID(r.Code)
	logger.Log.Infof("Session %s joined room %s", sess.GetID(), r.Code)
}

func (s *GameServer) handleLeaveRoom(sess *session.Session) {
	code := sess.RoomID()
	if code == "" {
		return
	}
	s.roomManager.Leave(code, sess.GetID())
	sess.SetRoomID("")
}

// currentRoom returns the session's room; commands outside a room are ignored.
func (s *GameServer) currentRoom(sess *session.Session) *room.Room {
	code := sess.RoomID()
	if code == "" {
		logger.Log.Debugf("Session %s sent a game command outside a room", sess.GetID())
		return nil
	}
	r, exists := s.roomManager.GetRoom(code)
	if !exists {
		return nil
	}
	return r
}
