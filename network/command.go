package network

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownMessage = errors.New("unknown message type")
	ErrMissingField   = errors.New("missing required field")
)

// Command is the closed set of messages a session may send.
type Command interface {
	command()
}

type Heartbeat struct{}

type JoinRoom struct {
	RoomCode        string `json:"roomCode"`
	Username        string `json:"username"`
	StartingBalance *int64 `json:"startingBalance,omitempty"`
}

type LeaveRoom struct{}

type BuyRequest struct {
	WalkerID string `json:"walkerId"`
}

type Sell struct {
	Slot int `json:"slot"`
}

type StealStart struct {
	VictimID string `json:"victimId"`
	Slot     int    `json:"slot"`
}

type StealBlock struct {
	VictimID string `json:"victimId"`
	Slot     int    `json:"slot"`
}

func (Heartbeat) command()  {}
func (JoinRoom) command()   {}
func (LeaveRoom) command()  {}
func (BuyRequest) command() {}
func (Sell) command()       {}
func (StealStart) command() {}
func (StealBlock) command() {}

// slotPayload detects a missing slot, which a plain int would read as 0.
type slotPayload struct {
	VictimID string `json:"victimId"`
	Slot     *int   `json:"slot"`
}

// DecodeCommand turns a packet into a Command.
func DecodeCommand(p *Packet) (Command, error) {
	switch p.MsgID {
	case MsgTypeHeartbeat:
		return Heartbeat{}, nil

	case MsgTypeLeaveRoom:
		return LeaveRoom{}, nil

	case MsgTypeJoinRoom:
		var cmd JoinRoom
		if len(p.Data) > 0 {
			if err := json.Unmarshal(p.Data, &cmd); err != nil {
				return nil, fmt.Errorf("decode joinRoom: %w", err)
			}
		}
		return cmd, nil

	case MsgTypeBuyRequest:
		var cmd BuyRequest
		if err := json.Unmarshal(p.Data, &cmd); err != nil {
			return nil, fmt.Errorf("decode buyRequest: %w", err)
		}
		if cmd.WalkerID == "" {
			return nil, fmt.Errorf("buyRequest walkerId: %w", ErrMissingField)
		}
		return cmd, nil

	case MsgTypeSell:
		var payload slotPayload
		if err := json.Unmarshal(p.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode sell: %w", err)
		}
		if payload.Slot == nil {
			return nil, fmt.Errorf("sell slot: %w", ErrMissingField)
		}
		return Sell{Slot: *payload.Slot}, nil

	case MsgTypeStealStart, MsgTypeStealBlocked:
		var payload slotPayload
		if err := json.Unmarshal(p.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode steal message %d: %w", p.MsgID, err)
		}
		if payload.VictimID == "" || payload.Slot == nil {
			return nil, fmt.Errorf("steal message %d: %w", p.MsgID, ErrMissingField)
		}
		if p.MsgID == MsgTypeStealStart {
			return StealStart{VictimID: payload.VictimID, Slot: *payload.Slot}, nil
		}
		return StealBlock{VictimID: payload.VictimID, Slot: *payload.Slot}, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, p.MsgID)
}
