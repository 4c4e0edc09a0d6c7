package rpc

import (
	"encoding/json"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/walkerserver/logger"
	"github.com/wfunc/walkerserver/room"
)

var ErrRoomNotFound = errors.New("room not found")

// Server manages the admin RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers the given services on a private
// rpc.Server, so several servers can coexist in one process.
func NewServer(addr string, services ...interface{}) (*Server, error) {
	srv := rpc.NewServer()
	for _, svc := range services {
		if err := srv.Register(svc); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
		rpc:      srv,
	}, nil
}

// Addr returns the bound address, useful when addr had port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomService exposes read-only room inspection over net/rpc.
type RoomService struct {
	rooms *room.Manager
}

func NewRoomService(rooms *room.Manager) *RoomService {
	return &RoomService{rooms: rooms}
}

type ListRoomsArgs struct{}

type RoomInfo struct {
	Code         string
	Players      int
	Walkers      int
	Negotiations int
	CreatedAt    time.Time
}

type ListRoomsReply struct {
	Rooms []RoomInfo
}

// ListRooms returns a summary of every live room ordered by code.
func (rs *RoomService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	infos := rs.rooms.Rooms()
	reply.Rooms = make([]RoomInfo, len(infos))
	for i, info := range infos {
		reply.Rooms[i] = RoomInfo(info)
	}
	return nil
}

type GetRoomArgs struct {
	Code string
}

// GetRoomReply carries the snapshot as JSON; gob rejects the nil entries
// that mark empty collection slots.
type GetRoomReply struct {
	Snapshot []byte
}

// GetRoom returns the full snapshot of one room.
func (rs *RoomService) GetRoom(args *GetRoomArgs, reply *GetRoomReply) error {
	r, exists := rs.rooms.GetRoom(args.Code)
	if !exists {
		return ErrRoomNotFound
	}
	data, err := json.Marshal(r.Snapshot())
	if err != nil {
		return err
	}
	reply.Snapshot = data
	return nil
}
