// room/steal.go
package room

import (
	"sort"
	"time"

	"github.com/wfunc/walkerserver/logger"
	"github.com/wfunc/walkerserver/network"
	"github.com/wfunc/walkerserver/services"
	"github.com/wfunc/walkerserver/state"
)

// stealKey identifies a negotiation by the targeted slot, so the victim can
// block without knowing the thief.
type stealKey struct {
	victimID string
	slot     int
}

type negotiation struct {
	key      stealKey
	thiefID  string
	deadline time.Time
	timerID  int64
	phase    *state.BaseStateMachine
}

func (n *negotiation) event() network.StealEvent {
	return network.StealEvent{ThiefID: n.thiefID, VictimID: n.key.victimID, Slot: n.key.slot}
}

// StealStart opens a negotiation on the victim's slot. It is a silent no-op
// when either player is missing, the slot is out of range, or the slot is
// already being stolen.
func (r *Room) StealStart(thiefID, victimID string, slot int) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed || thiefID == victimID {
		return false
	}
	if _, exists := r.players[thiefID]; !exists {
		return false
	}
	victim, exists := r.players[victimID]
	if !exists || !victim.ValidSlot(slot) {
		return false
	}

	key := stealKey{victimID: victimID, slot: slot}
	if _, exists := r.negotiations[key]; exists {
		return false
	}

	n := &negotiation{
		key:      key,
		thiefID:  thiefID,
		deadline: r.now().Add(r.cfg.StealTimeout),
		phase:    state.NewNegotiationMachine(),
	}
	if err := n.phase.ChangeState(state.Pending); err != nil {
		logger.Log.Errorf("Negotiation on %s/%d in room %s: %v", victimID, slot, r.Code, err)
		return false
	}
	r.negotiations[key] = n
	n.timerID = r.timers.After(r.cfg.StealTimeout, func() { r.resolveSteal(n) })
	r.recorder.StealOutcome(state.Pending.String())

	r.broadcastLocked(network.StealStarted{StealEvent: n.event()})
	return true
}

// StealBlocked cancels the pending negotiation on the victim's slot.
// Without one it is a silent no-op.
func (r *Room) StealBlocked(victimID string, slot int) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return false
	}
	key := stealKey{victimID: victimID, slot: slot}
	n, exists := r.negotiations[key]
	if !exists {
		return false
	}

	// The timer may already be firing; resolveSteal will find the entry gone.
	delete(r.negotiations, key)
	r.timers.RemoveTimer(n.timerID)
	r.finishLocked(n, state.Blocked)

	r.broadcastLocked(network.StealBlocked{StealEvent: n.event()})
	return true
}

// resolveSteal runs when the negotiation deadline passes. Everything is
// re-validated because the room may have changed since the steal started.
func (r *Room) resolveSteal(n *negotiation) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed || r.negotiations[n.key] != n {
		return
	}
	delete(r.negotiations, n.key)

	// leave voids a negotiation together with its player, so both are present
	thief := r.players[n.thiefID]
	victim := r.players[n.key.victimID]

	reason := ""
	switch {
	case victim.Collection[n.key.slot] == nil:
		reason = services.ReasonEmpty
	case thief.FirstFreeSlot() < 0:
		reason = services.ReasonNoSpace
	}
	if reason != "" {
		r.finishLocked(n, state.Void)
		r.broadcastLocked(network.StealFailed{StealEvent: n.event(), Reason: reason})
		return
	}

	free := thief.FirstFreeSlot()
	thief.Collection[free] = victim.Collection[n.key.slot]
	victim.Collection[n.key.slot] = nil
	r.finishLocked(n, state.Completed)
	logger.Log.Debugf("Player %s stole slot %d from %s in room %s", n.thiefID, n.key.slot, n.key.victimID, r.Code)

	r.broadcastLocked(network.StealSuccess{StealEvent: n.event()})
}

// voidNegotiationsLocked drops every pending negotiation involving the player
// and returns a stealFailed(gone) event for each, ordered by victim and slot.
func (r *Room) voidNegotiationsLocked(playerID string) []network.Event {
	var voided []*negotiation
	for key, n := range r.negotiations {
		if key.victimID != playerID && n.thiefID != playerID {
			continue
		}
		delete(r.negotiations, key)
		r.timers.RemoveTimer(n.timerID)
		r.finishLocked(n, state.Void)
		voided = append(voided, n)
	}
	sort.Slice(voided, func(i, j int) bool {
		if voided[i].key.victimID != voided[j].key.victimID {
			return voided[i].key.victimID < voided[j].key.victimID
		}
		return voided[i].key.slot < voided[j].key.slot
	})

	events := make([]network.Event, 0, len(voided))
	for _, n := range voided {
		events = append(events, network.StealFailed{StealEvent: n.event(), Reason: services.ReasonGone})
	}
	return events
}

func (r *Room) finishLocked(n *negotiation, phase state.Phase) {
	if err := n.phase.ChangeState(phase); err != nil {
		logger.Log.Warnf("Negotiation on %s/%d in room %s: %s -> %s: %v",
			n.key.victimID, n.key.slot, r.Code, n.phase.GetCurrentState(), phase, err)
		return
	}
	r.recorder.StealOutcome(phase.String())
}
