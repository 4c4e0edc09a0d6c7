package network

import (
	"github.com/wfunc/walkerserver/models"
)

// Event is any server-to-client payload with its message id.
type Event interface {
	MsgID() uint16
}

type PlayerView struct {
	Username   string         `json:"username"`
	Collection []*models.Item `json:"collection"`
	Balance    int64          `json:"balance"`
}

type WalkerView struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Rarity    string `json:"rarity"`
	Cost      int64  `json:"cost"`
	Mps       int64  `json:"mps"`
	SpawnedAt int64  `json:"spawnedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// NewWalkerView converts a walker, with times in unix milliseconds.
func NewWalkerView(w *models.Walker) WalkerView {
	return WalkerView{
		ID:        w.ID,
		Kind:      w.Kind,
		Rarity:    w.Rarity,
		Cost:      w.Cost,
		Mps:       w.IncomeRate,
		SpawnedAt: w.SpawnedAt.UnixMilli(),
		ExpiresAt: w.ExpiresAt.UnixMilli(),
	}
}

// RoomUpdate 房间快照；You 在发送时按接收者填写
type RoomUpdate struct {
	Room    string                `json:"room"`
	Players map[string]PlayerView `json:"players"`
	Walkers []WalkerView          `json:"walkers"`
	You     string                `json:"you"`
}

func (RoomUpdate) MsgID() uint16 { return MsgTypeRoomUpdate }

type BuyResult struct {
	Success bool         `json:"success"`
	Slot    *int         `json:"slot,omitempty"`
	Item    *models.Item `json:"item,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

func (BuyResult) MsgID() uint16 { return MsgTypeBuyResult }

type SellResult struct {
	Success bool   `json:"success"`
	Slot    int    `json:"slot"`
	Refund  int64  `json:"refund,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (SellResult) MsgID() uint16 { return MsgTypeSellResult }

type WalkerSpawn struct {
	Walker WalkerView `json:"walker"`
}

func (WalkerSpawn) MsgID() uint16 { return MsgTypeWalkerSpawn }

type WalkerRemove struct {
	ID string `json:"id"`
}

func (WalkerRemove) MsgID() uint16 { return MsgTypeWalkerRemove }

// StealEvent carries no item data so the outcome is not revealed early.
type StealEvent struct {
	ThiefID  string `json:"thiefId"`
	VictimID string `json:"victimId"`
	Slot     int    `json:"slot"`
}

type StealStarted struct{ StealEvent }

func (StealStarted) MsgID() uint16 { return MsgTypeStealStartNotify }

type StealSuccess struct{ StealEvent }

func (StealSuccess) MsgID() uint16 { return MsgTypeStealSuccessNotify }

type StealBlocked struct{ StealEvent }

func (StealBlocked) MsgID() uint16 { return MsgTypeStealBlockedNotify }

type StealFailed struct {
	StealEvent
	Reason string `json:"reason"`
}

func (StealFailed) MsgID() uint16 { return MsgTypeStealFailedNotify }
