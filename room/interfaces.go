package room

import (
	"github.com/wfunc/walkerserver/network"
)

// Broadcaster delivers room output. It is called with the room lock held,
// so implementations must not block on network I/O.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	// BroadcastRoom sends events, then the snapshot personalized per player, to every player in update.
	BroadcastRoom(update network.RoomUpdate, events ...network.Event)
	// SendTo delivers an event to a single player.
	SendTo(playerID string, event network.Event)
}

// Recorder receives room activity for metrics.
type Recorder interface {
	IncOnlinePlayers()
	DecOnlinePlayers()
	SetActiveRooms(count int)
	WalkerSpawned(rarity string)
	WalkerExpired()
	BuyOutcome(outcome string)
	SellOutcome(outcome string)
	StealOutcome(outcome string)
	IncomeCredited(amount int64)
}

type nopRecorder struct{}

func (nopRecorder) IncOnlinePlayers()    {}
func (nopRecorder) DecOnlinePlayers()    {}
func (nopRecorder) SetActiveRooms(int)   {}
func (nopRecorder) WalkerSpawned(string) {}
func (nopRecorder) WalkerExpired()       {}
func (nopRecorder) BuyOutcome(string)    {}
func (nopRecorder) SellOutcome(string)   {}
func (nopRecorder) StealOutcome(string)  {}
func (nopRecorder) IncomeCredited(int64) {}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastRoom(network.RoomUpdate, ...network.Event) {}
func (nopBroadcaster) SendTo(string, network.Event)                       {}
