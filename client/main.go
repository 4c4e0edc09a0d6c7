package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/walkerserver/network"
)

var (
	addr     = flag.String("addr", "localhost:8080", "server address")
	roomCode = flag.String("room", "", "room code to join")
	username = flag.String("name", "", "username")
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	var data []byte
	if v != nil {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return err
		}
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

// selfID is learned from the first room update.
type selfID struct {
	mu sync.Mutex
	id string
}

func (s *selfID) set(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}

func (s *selfID) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// parseCommand turns a console line into a message id and payload.
func parseCommand(line string, me string) (uint16, interface{}, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, nil, false
	}
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	slot := func(i int) (int, bool) {
		n, err := strconv.Atoi(arg(i))
		return n, err == nil
	}

	switch fields[0] {
	case "join":
		return network.MsgTypeJoinRoom, network.JoinRoom{RoomCode: arg(1), Username: arg(2)}, true
	case "leave":
		return network.MsgTypeLeaveRoom, nil, true
	case "buy":
		return network.MsgTypeBuyRequest, network.BuyRequest{WalkerID: arg(1)}, arg(1) != ""
	case "sell":
		n, ok := slot(1)
		return network.MsgTypeSell, network.Sell{Slot: n}, ok
	case "steal":
		n, ok := slot(2)
		return network.MsgTypeStealStart, network.StealStart{VictimID: arg(1), Slot: n}, ok && arg(1) != ""
	case "block":
		n, ok := slot(1)
		return network.MsgTypeStealBlocked, network.StealBlock{VictimID: me, Slot: n}, ok && me != ""
	}
	return 0, nil, false
}

func main() {
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	me := &selfID{}

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			p, err := network.DecodePacket(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			if p.MsgID == network.MsgTypeRoomUpdate {
				var update network.RoomUpdate
				if err := json.Unmarshal(p.Data, &update); err == nil && update.You != "" {
					me.set(update.You)
				}
			}
			log.Printf("<- RECV (ID: %d): %s", p.MsgID, string(p.Data))
		}
	}()

	// Heartbeat
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := send(c, network.MsgTypeHeartbeat, nil); err != nil {
					return
				}
			}
		}
	}()

	log.Println("Sending join request...")
	if err := send(c, network.MsgTypeJoinRoom, network.JoinRoom{RoomCode: *roomCode, Username: *username}); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Commands: join <room> [name] | leave | buy <walkerId> | sell <slot> | steal <victimId> <slot> | block <slot>")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line := <-lines:
			msgID, payload, ok := parseCommand(line, me.get())
			if !ok {
				log.Printf("Cannot parse %q", line)
				continue
			}
			if err := send(c, msgID, payload); err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> SENT (ID: %d)", msgID)
		}
	}
}
