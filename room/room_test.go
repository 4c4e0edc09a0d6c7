package room

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/walkerserver/models"
	"github.com/wfunc/walkerserver/network"
	"github.com/wfunc/walkerserver/services"
)

// MockBroadcaster records everything a room sends.
type MockBroadcaster struct {
	mu      sync.Mutex
	updates []network.RoomUpdate
	events  []network.Event
	direct  map[string][]network.Event
}

func newMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{direct: make(map[string][]network.Event)}
}

func (m *MockBroadcaster) BroadcastRoom(update network.RoomUpdate, events ...network.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, update)
	m.events = append(m.events, events...)
}

func (m *MockBroadcaster) SendTo(playerID string, event network.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direct[playerID] = append(m.direct[playerID], event)
}

func (m *MockBroadcaster) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

func (m *MockBroadcaster) lastUpdate() network.RoomUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates[len(m.updates)-1]
}

func (m *MockBroadcaster) countEvents(msgID uint16) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.MsgID() == msgID {
			n++
		}
	}
	return n
}

func (m *MockBroadcaster) findEvent(msgID uint16) (network.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.MsgID() == msgID {
			return e, true
		}
	}
	return nil, false
}

func (m *MockBroadcaster) eventsOf(msgID uint16) []network.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []network.Event
	for _, e := range m.events {
		if e.MsgID() == msgID {
			out = append(out, e)
		}
	}
	return out
}

func (m *MockBroadcaster) directTo(playerID string) []network.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]network.Event(nil), m.direct[playerID]...)
}

// quietConfig keeps the spawner and ticker out of the way so tests drive them directly.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.SpawnInterval = time.Hour
	cfg.IncomeInterval = time.Hour
	cfg.WalkerLifetime = time.Hour
	cfg.TimerResolution = 5 * time.Millisecond
	cfg.Seed = 42
	return cfg
}

func newTestManager(cfg Config) (*Manager, *MockBroadcaster) {
	b := newMockBroadcaster()
	return NewRoomManager(cfg, b, nil), b
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// addWalker inserts a walker with fixed economics.
func addWalker(r *Room, cost, income int64) string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	w := &models.Walker{Kind: "bellbob", Rarity: "Rare", Cost: cost, IncomeRate: income}
	r.insertWalkerLocked(w)
	return w.ID
}

// giveItem places an item directly into a player's slot.
func giveItem(r *Room, playerID string, slot int, income int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.players[playerID].Collection[slot] = &models.Item{Kind: "spermbob", Rarity: "Common", Cost: 10, IncomeRate: income}
}

func fillCollection(r *Room, playerID string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	p := r.players[playerID]
	for i := range p.Collection {
		p.Collection[i] = &models.Item{IncomeRate: 1}
	}
}

func mustPlayer(t *testing.T, r *Room, id string) models.Player {
	t.Helper()
	p, ok := r.Player(id)
	if !ok {
		t.Fatalf("player %s not in room", id)
	}
	return p
}

func TestRoom_BuyScenario(t *testing.T) {
	m, b := newTestManager(quietConfig())
	r := m.Join("r1", "alice", "alice", nil)
	m.Join("r1", "bob", "bob", nil)
	defer m.Shutdown()

	walkerID := addWalker(r, 25, 3)

	res := r.Buy("alice", walkerID)
	if !res.Success || res.Slot != 0 {
		t.Fatalf("expected success into slot 0, got %+v", res)
	}
	alice := mustPlayer(t, r, "alice")
	if alice.Balance != 5 {
		t.Errorf("expected balance 5, got %d", alice.Balance)
	}
	if alice.Collection[0] == nil || alice.Collection[0].IncomeRate != 3 {
		t.Errorf("slot 0 should hold the item, got %+v", alice.Collection[0])
	}
	if r.HasWalker(walkerID) {
		t.Error("walker should be removed from the room")
	}

	res = r.Buy("bob", walkerID)
	if res.Success || res.Reason != services.ReasonInvalid {
		t.Errorf("second buy should fail with invalid, got %+v", res)
	}

	direct := b.directTo("alice")
	if len(direct) != 1 {
		t.Fatalf("expected one buyResult for alice, got %d", len(direct))
	}
	result := direct[0].(network.BuyResult)
	if !result.Success || result.Slot == nil || *result.Slot != 0 || result.Item == nil {
		t.Errorf("unexpected buyResult %+v", result)
	}
	bobResult := b.directTo("bob")[0].(network.BuyResult)
	if bobResult.Success || bobResult.Reason != services.ReasonInvalid {
		t.Errorf("unexpected buyResult for bob %+v", bobResult)
	}
	if b.countEvents(network.MsgTypeWalkerRemove) != 1 {
		t.Error("expected exactly one walkerRemove broadcast")
	}

	// The purchased item is immune to the walker's expiry.
	if r.expireWalker(walkerID) {
		t.Error("expiry of a bought walker should be a no-op")
	}
	if mustPlayer(t, r, "alice").Collection[0] == nil {
		t.Error("item vanished after walker expiry")
	}
}

func TestRoom_BuyNoMoney(t *testing.T) {
	m, _ := newTestManager(quietConfig())
	balance := int64(5)
	r := m.Join("r1", "alice", "alice", &balance)
	defer m.Shutdown()

	walkerID := addWalker(r, 25, 3)
	res := r.Buy("alice", walkerID)
	if res.Success || res.Reason != services.ReasonNoMoney {
		t.Fatalf("expected no_money, got %+v", res)
	}
	if p := mustPlayer(t, r, "alice"); p.Balance != 5 {
		t.Errorf("expected balance 5, got %d", p.Balance)
	}
	if !r.HasWalker(walkerID) {
		t.Error("walker should still be purchasable")
	}
}

func TestRoom_ConcurrentBuysSingleWinner(t *testing.T) {
	m, _ := newTestManager(quietConfig())
	var r *Room
	players := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	for _, id := range players {
		r = m.Join("r1", id, id, nil)
	}
	defer m.Shutdown()

	walkerID := addWalker(r, 10, 1)

	var wg sync.WaitGroup
	results := make(chan services.BuyResult, len(players))
	for _, id := range players {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			results <- r.Buy(id, walkerID)
		}(id)
	}
	wg.Wait()
	close(results)

	wins := 0
	for res := range results {
		if res.Success {
			wins++
		} else if res.Reason != services.ReasonInvalid {
			t.Errorf("losers should see invalid, got %q", res.Reason)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful buy, got %d", wins)
	}
	for _, id := range players {
		if p := mustPlayer(t, r, id); p.Balance < 0 {
			t.Errorf("player %s balance went negative: %d", id, p.Balance)
		}
	}
}

func TestRoom_BuyVersusExpiryExactlyOnce(t *testing.T) {
	m, b := newTestManager(quietConfig())
	r := m.Join("r1", "alice", "alice", nil)
	defer m.Shutdown()

	for i := 0; i < 20; i++ {
		walkerID := addWalker(r, 1, 0)
		before := b.countEvents(network.MsgTypeWalkerRemove)

		var wg sync.WaitGroup
		var bought services.BuyResult
		var expired bool
		wg.Add(2)
		go func() { defer wg.Done(); bought = r.Buy("alice", walkerID) }()
		go func() { defer wg.Done(); expired = r.expireWalker(walkerID) }()
		wg.Wait()

		if bought.Success == expired {
			t.Fatalf("iteration %d: expected exactly one of buy/expiry to win (bought=%v expired=%v)", i, bought.Success, expired)
		}
		if got := b.countEvents(network.MsgTypeWalkerRemove) - before; got != 1 {
			t.Fatalf("iteration %d: expected one walkerRemove, got %d", i, got)
		}

		r.Sell("alice", 0)
	}
}

func TestRoom_WalkerExpiresAfterLifetime(t *testing.T) {
	cfg := quietConfig()
	cfg.WalkerLifetime = 30 * time.Millisecond
	m, b := newTestManager(cfg)
	r := m.Join("r1", "alice", "alice", nil)
	defer m.Shutdown()

	walkerID := addWalker(r, 10, 1)
	if !r.HasWalker(walkerID) {
		t.Fatal("walker should be live right after spawn")
	}

	waitFor(t, time.Second, func() bool { return !r.HasWalker(walkerID) })
	if b.countEvents(network.MsgTypeWalkerRemove) != 1 {
		t.Error("expected one walkerRemove after expiry")
	}
	if res := r.Buy("alice", walkerID); res.Reason != services.ReasonInvalid {
		t.Errorf("expired walker must not be purchasable, got %+v", res)
	}
	if r.expireWalker(walkerID) {
		t.Error("second expiry should be a no-op")
	}
}

func TestRoom_SpawnTick(t *testing.T) {
	m, b := newTestManager(quietConfig())
	r := m.Join("r1", "alice", "alice", nil)
	defer m.Shutdown()

	for i := 0; i < 5; i++ {
		r.spawnTick()
	}

	snap := r.Snapshot()
	if len(snap.Walkers) != 5 {
		t.Fatalf("expected 5 walkers, got %d", len(snap.Walkers))
	}
	seen := make(map[string]bool)
	for _, w := range snap.Walkers {
		if seen[w.ID] {
			t.Errorf("duplicate walker id %s", w.ID)
		}
		seen[w.ID] = true
		if w.Kind != "spermbob" && w.Kind != "bellbob" {
			t.Errorf("unexpected kind %q", w.Kind)
		}
		found := false
		for _, tier := range models.DefaultRarities() {
			if tier.Name == w.Rarity {
				found = true
				if w.Cost != tier.Cost || w.Mps != tier.Income {
					t.Errorf("walker %s economics %d/%d do not match tier %s", w.ID, w.Cost, w.Mps, tier.Name)
				}
			}
		}
		if !found {
			t.Errorf("unknown rarity %q", w.Rarity)
		}
		if w.ExpiresAt-w.SpawnedAt != time.Hour.Milliseconds() {
			t.Errorf("walker %s lifetime is %dms", w.ID, w.ExpiresAt-w.SpawnedAt)
		}
	}
	if b.countEvents(network.MsgTypeWalkerSpawn) != 5 {
		t.Errorf("expected 5 walkerSpawn events, got %d", b.countEvents(network.MsgTypeWalkerSpawn))
	}
}

func TestRoom_SpawnRespectsMaxWalkers(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxWalkers = 2
	m, _ := newTestManager(cfg)
	r := m.Join("r1", "alice", "alice", nil)
	defer m.Shutdown()

	for i := 0; i < 5; i++ {
		r.spawnTick()
	}
	if got := r.Info().Walkers; got != 2 {
		t.Errorf("expected spawner capped at 2 walkers, got %d", got)
	}
}

func TestRoom_SpawnerRunsOnItsOwn(t *testing.T) {
	cfg := quietConfig()
	cfg.SpawnInterval = 10 * time.Millisecond
	m, b := newTestManager(cfg)
	m.Join("r1", "alice", "alice", nil)
	defer m.Shutdown()

	waitFor(t, time.Second, func() bool { return b.countEvents(network.MsgTypeWalkerSpawn) >= 3 })
}

func TestRoom_Sell(t *testing.T) {
	m, b := newTestManager(quietConfig())
	r := m.Join("r1", "alice", "alice", nil)
	defer m.Shutdown()

	giveItem(r, "alice", 3, 4)
	res := r.Sell("alice", 3)
	if !res.Success || res.Refund != 20 {
		t.Fatalf("expected refund 20, got %+v", res)
	}
	p := mustPlayer(t, r, "alice")
	if p.Balance != 50 || p.Collection[3] != nil {
		t.Errorf("expected balance 50 and empty slot, got %d / %+v", p.Balance, p.Collection[3])
	}

	if res := r.Sell("alice", 3); res.Reason != services.ReasonEmpty {
		t.Errorf("selling an empty slot should fail with empty, got %+v", res)
	}

	direct := b.directTo("alice")
	if len(direct) != 2 {
		t.Fatalf("expected two sellResults, got %d", len(direct))
	}
	if sr := direct[1].(network.SellResult); sr.Success || sr.Reason != services.ReasonEmpty {
		t.Errorf("unexpected second sellResult %+v", sr)
	}
}

func TestRoom_StealBlockedBeforeDeadline(t *testing.T) {
	cfg := quietConfig()
	cfg.StealTimeout = 60 * time.Millisecond
	m, b := newTestManager(cfg)
	r := m.Join("r1", "thief", "thief", nil)
	m.Join("r1", "victim", "victim", nil)
	defer m.Shutdown()

	giveItem(r, "victim", 0, 4)
	if !r.StealStart("thief", "victim", 0) {
		t.Fatal("steal should start")
	}
	if !r.StealBlocked("victim", 0) {
		t.Fatal("block should find the pending negotiation")
	}

	time.Sleep(3 * cfg.StealTimeout)

	if mustPlayer(t, r, "victim").Collection[0] == nil {
		t.Error("victim lost the item despite blocking")
	}
	thief := mustPlayer(t, r, "thief")
	if thief.FirstFreeSlot() != 0 {
		t.Error("thief received an item despite the block")
	}
	if b.countEvents(network.MsgTypeStealSuccessNotify) != 0 {
		t.Error("stealSuccess must not fire after a block")
	}
	e, ok := b.findEvent(network.MsgTypeStealBlockedNotify)
	if !ok {
		t.Fatal("expected a stealBlocked event")
	}
	if blocked := e.(network.StealBlocked); blocked.ThiefID != "thief" || blocked.VictimID != "victim" || blocked.Slot != 0 {
		t.Errorf("stealBlocked should name the original thief, got %+v", blocked)
	}
	if r.StealBlocked("victim", 0) {
		t.Error("second block should be a no-op")
	}
}

func TestRoom_StealCompletesAtDeadline(t *testing.T) {
	cfg := quietConfig()
	cfg.StealTimeout = 30 * time.Millisecond
	m, b := newTestManager(cfg)
	r := m.Join("r1", "thief", "thief", nil)
	m.Join("r1", "victim", "victim", nil)
	defer m.Shutdown()

	giveItem(r, "thief", 0, 1)
	giveItem(r, "victim", 0, 4)
	if !r.StealStart("thief", "victim", 0) {
		t.Fatal("steal should start")
	}
	if e, ok := b.findEvent(network.MsgTypeStealStartNotify); !ok || e.(network.StealStarted).ThiefID != "thief" {
		t.Fatal("expected a stealStart event naming the thief")
	}

	waitFor(t, time.Second, func() bool { return b.countEvents(network.MsgTypeStealSuccessNotify) == 1 })

	thief := mustPlayer(t, r, "thief")
	if thief.Collection[1] == nil || thief.Collection[1].IncomeRate != 4 {
		t.Errorf("stolen item should land in thief's first free slot, got %+v", thief.Collection)
	}
	if mustPlayer(t, r, "victim").Collection[0] != nil {
		t.Error("victim's slot should be empty after the steal")
	}
	e, _ := b.findEvent(network.MsgTypeStealSuccessNotify)
	if success := e.(network.StealSuccess); success.ThiefID != "thief" || success.VictimID != "victim" {
		t.Errorf("unexpected stealSuccess %+v", success)
	}
	if r.Info().Negotiations != 0 {
		t.Error("completed negotiation should be removed")
	}
	if r.StealBlocked("victim", 0) {
		t.Error("blocking a completed steal should be a no-op")
	}
}

func TestRoom_StealUniquePerSlot(t *testing.T) {
	m, _ := newTestManager(quietConfig())
	r := m.Join("r1", "a", "a", nil)
	m.Join("r1", "b", "b", nil)
	m.Join("r1", "c", "c", nil)
	defer m.Shutdown()

	if !r.StealStart("a", "b", 0) {
		t.Fatal("first steal should start")
	}
	if r.StealStart("a", "b", 0) {
		t.Error("repeat steal on the same slot should be ignored")
	}
	if r.StealStart("c", "b", 0) {
		t.Error("another thief on the same slot should be ignored")
	}
	if !r.StealStart("c", "b", 1) {
		t.Error("a different slot is a different negotiation")
	}
	if r.Info().Negotiations != 2 {
		t.Errorf("expected 2 negotiations, got %d", r.Info().Negotiations)
	}
}

func TestRoom_StealStartRejections(t *testing.T) {
	m, _ := newTestManager(quietConfig())
	r := m.Join("r1", "a", "a", nil)
	m.Join("r1", "b", "b", nil)
	defer m.Shutdown()

	cases := []struct {
		name          string
		thief, victim string
		slot          int
	}{
		{"unknown victim", "a", "ghost", 0},
		{"unknown thief", "ghost", "b", 0},
		{"self steal", "a", "a", 0},
		{"slot out of range", "a", "b", 8},
		{"negative slot", "a", "b", -1},
	}
	for _, c := range cases {
		if r.StealStart(c.thief, c.victim, c.slot) {
			t.Errorf("%s: steal should not start", c.name)
		}
	}
	if r.StealBlocked("b", 0) {
		t.Error("block without a negotiation should be a no-op")
	}
}

func TestRoom_StealFireAfterBlockIsNoop(t *testing.T) {
	m, b := newTestManager(quietConfig())
	r := m.Join("r1", "thief", "thief", nil)
	m.Join("r1", "victim", "victim", nil)
	defer m.Shutdown()

	giveItem(r, "victim", 2, 3)
	r.StealStart("thief", "victim", 2)

	r.mutex.Lock()
	n := r.negotiations[stealKey{victimID: "victim", slot: 2}]
	r.mutex.Unlock()

	r.StealBlocked("victim", 2)
	// Simulate the timer callback losing the race to the block.
	r.resolveSteal(n)
	r.resolveSteal(n)

	if mustPlayer(t, r, "victim").Collection[2] == nil {
		t.Error("late timer fire transferred a blocked item")
	}
	if b.countEvents(network.MsgTypeStealSuccessNotify)+b.countEvents(network.MsgTypeStealFailedNotify) != 0 {
		t.Error("late timer fire should not broadcast an outcome")
	}
}

func TestRoom_StealVoidCases(t *testing.T) {
	t.Run("slot emptied before deadline", func(t *testing.T) {
		m, b := newTestManager(quietConfig())
		r := m.Join("r1", "thief", "thief", nil)
		m.Join("r1", "victim", "victim", nil)
		defer m.Shutdown()

		giveItem(r, "victim", 0, 3)
		r.StealStart("thief", "victim", 0)
		r.mutex.Lock()
		n := r.negotiations[stealKey{victimID: "victim", slot: 0}]
		r.mutex.Unlock()

		r.Sell("victim", 0)
		r.resolveSteal(n)

		e, ok := b.findEvent(network.MsgTypeStealFailedNotify)
		if !ok || e.(network.StealFailed).Reason != services.ReasonEmpty {
			t.Fatalf("expected stealFailed with reason empty, got %+v", e)
		}
		thief := mustPlayer(t, r, "thief")
		if thief.FirstFreeSlot() != 0 {
			t.Error("thief should receive nothing")
		}
	})

	t.Run("thief has no space", func(t *testing.T) {
		m, b := newTestManager(quietConfig())
		r := m.Join("r1", "thief", "thief", nil)
		m.Join("r1", "victim", "victim", nil)
		defer m.Shutdown()

		giveItem(r, "victim", 0, 3)
		fillCollection(r, "thief")
		r.StealStart("thief", "victim", 0)
		r.mutex.Lock()
		n := r.negotiations[stealKey{victimID: "victim", slot: 0}]
		r.mutex.Unlock()
		r.resolveSteal(n)

		e, ok := b.findEvent(network.MsgTypeStealFailedNotify)
		if !ok || e.(network.StealFailed).Reason != services.ReasonNoSpace {
			t.Fatalf("expected stealFailed with reason no_space, got %+v", e)
		}
		if mustPlayer(t, r, "victim").Collection[0] == nil {
			t.Error("victim should keep the item")
		}
		if r.Info().Negotiations != 0 {
			t.Error("void negotiation should be removed")
		}
	})
}

func TestRoom_LeaveVoidsNegotiations(t *testing.T) {
	m, b := newTestManager(quietConfig())
	r := m.Join("r1", "thief", "thief", nil)
	m.Join("r1", "victim", "victim", nil)
	m.Join("r1", "bystander", "bystander", nil)
	defer m.Shutdown()

	r.StealStart("thief", "victim", 0)
	r.StealStart("victim", "bystander", 1)
	r.StealStart("bystander", "victim", 2)

	m.Leave("r1", "thief")
	if got := r.Info().Negotiations; got != 2 {
		t.Fatalf("expected only the thief's negotiation voided, got %d left", got)
	}
	failed := b.eventsOf(network.MsgTypeStealFailedNotify)
	if len(failed) != 1 {
		t.Fatalf("expected one stealFailed after the thief left, got %d", len(failed))
	}
	want := network.StealFailed{
		StealEvent: network.StealEvent{ThiefID: "thief", VictimID: "victim", Slot: 0},
		Reason:     services.ReasonGone,
	}
	if failed[0] != want {
		t.Errorf("expected %+v, got %+v", want, failed[0])
	}
	if _, inSnapshot := b.lastUpdate().Players["thief"]; inSnapshot {
		t.Error("snapshot sent with the void should no longer list the thief")
	}

	m.Leave("r1", "victim")
	if got := r.Info().Negotiations; got != 0 {
		t.Errorf("expected every negotiation involving the victim voided, got %d left", got)
	}
	failed = b.eventsOf(network.MsgTypeStealFailedNotify)
	if len(failed) != 3 {
		t.Fatalf("expected two more stealFailed after the victim left, got %d total", len(failed))
	}
	for _, e := range failed[1:] {
		if f := e.(network.StealFailed); f.Reason != services.ReasonGone {
			t.Errorf("voided steal should report gone, got %+v", f)
		}
	}

	time.Sleep(20 * time.Millisecond)
	if b.countEvents(network.MsgTypeStealSuccessNotify) != 0 {
		t.Error("no steal should complete")
	}
	if got := len(b.eventsOf(network.MsgTypeStealFailedNotify)); got != 3 {
		t.Errorf("voided timers must not fire later, got %d stealFailed", got)
	}
}

func TestManager_RejoinRecreatesRoom(t *testing.T) {
	m, _ := newTestManager(quietConfig())
	defer m.Shutdown()

	old := m.Join("r1", "a", "a", nil)
	m.Join("r1", "b", "b", nil)
	addWalker(old, 10, 1)
	giveItem(old, "b", 0, 2)
	if !old.StealStart("a", "b", 0) {
		t.Fatal("steal should start")
	}

	m.Leave("r1", "a")
	m.Leave("r1", "b")
	if !old.Closed() {
		t.Error("room should be closed once the last player leaves")
	}
	if _, exists := m.GetRoom("r1"); exists {
		t.Fatal("empty room should be discarded")
	}

	fresh := m.Join("r1", "a", "a", nil)
	if fresh == old {
		t.Fatal("rejoin should create a new room instance")
	}
	if fresh.Closed() {
		t.Error("new room should be open")
	}
	info := fresh.Info()
	if info.Players != 1 || info.Walkers != 0 || info.Negotiations != 0 {
		t.Errorf("new room should start clean, got %+v", info)
	}
	if p := mustPlayer(t, fresh, "a"); p.Balance != 30 || p.Collection[0] != nil {
		t.Errorf("player should start fresh, got %+v", p)
	}
	if m.Count() != 1 {
		t.Errorf("expected one live room, got %d", m.Count())
	}
}

func TestRoom_BalanceNeverNegative(t *testing.T) {
	m, _ := newTestManager(quietConfig())
	defer m.Shutdown()
	zero := int64(0)
	r := m.Join("r1", "a", "a", &zero)
	m.Join("r1", "b", "b", nil)
	m.Join("r1", "c", "c", nil)
	ids := []string{"a", "b", "c"}
	slots := DefaultConfig().CollectionSlots

	rng := rand.New(rand.NewSource(7))
	for step := 0; step < 2000; step++ {
		player := ids[rng.Intn(len(ids))]
		switch rng.Intn(5) {
		case 0:
			r.spawnTick()
		case 1:
			snap := r.Snapshot()
			if len(snap.Walkers) > 0 {
				r.Buy(player, snap.Walkers[rng.Intn(len(snap.Walkers))].ID)
			}
		case 2:
			r.Sell(player, rng.Intn(slots+1)-1)
		case 3:
			victim := ids[rng.Intn(len(ids))]
			slot := rng.Intn(slots)
			if r.StealStart(player, victim, slot) {
				r.mutex.Lock()
				n := r.negotiations[stealKey{victimID: victim, slot: slot}]
				r.mutex.Unlock()
				r.resolveSteal(n)
			}
		case 4:
			r.incomeTick()
		}

		for _, id := range ids {
			if p := mustPlayer(t, r, id); p.Balance < 0 {
				t.Fatalf("step %d: %s balance went negative: %d", step, id, p.Balance)
			}
		}
	}
}

func TestRoom_IncomeTick(t *testing.T) {
	m, b := newTestManager(quietConfig())
	r := m.Join("r1", "a", "a", nil)
	m.Join("r1", "b", "b", nil)
	m.Join("r1", "c", "c", nil)
	defer m.Shutdown()

	giveItem(r, "a", 0, 3)
	giveItem(r, "b", 4, 5)

	before := b.updateCount()
	r.incomeTick()

	if p := mustPlayer(t, r, "a"); p.Balance != 33 {
		t.Errorf("expected a balance 33, got %d", p.Balance)
	}
	if p := mustPlayer(t, r, "b"); p.Balance != 35 {
		t.Errorf("expected b balance 35, got %d", p.Balance)
	}
	if p := mustPlayer(t, r, "c"); p.Balance != 30 {
		t.Errorf("expected c balance unchanged at 30, got %d", p.Balance)
	}
	if got := b.updateCount() - before; got != 1 {
		t.Errorf("expected one snapshot per income tick, got %d", got)
	}
}

func TestRoom_IncomeTickIdleIsQuiet(t *testing.T) {
	m, b := newTestManager(quietConfig())
	r := m.Join("r1", "a", "a", nil)
	defer m.Shutdown()

	before := b.updateCount()
	r.incomeTick()
	if b.updateCount() != before {
		t.Error("idle income tick should not broadcast")
	}
}

func TestRoom_SnapshotIsDetached(t *testing.T) {
	m, _ := newTestManager(quietConfig())
	r := m.Join("r1", "a", "a", nil)
	defer m.Shutdown()

	giveItem(r, "a", 0, 3)
	snap := r.Snapshot()
	snap.Players["a"].Collection[0].IncomeRate = 100

	if p := mustPlayer(t, r, "a"); p.Collection[0].IncomeRate != 3 {
		t.Error("mutating a snapshot changed room state")
	}
	if snap.Room != "r1" || snap.You != "" {
		t.Errorf("unexpected snapshot header %q/%q", snap.Room, snap.You)
	}
}

func TestRoom_ClosedRoomIgnoresCommands(t *testing.T) {
	m, _ := newTestManager(quietConfig())
	r := m.Join("r1", "a", "a", nil)
	m.Join("r1", "b", "b", nil)
	walkerID := addWalker(r, 1, 1)
	r.Close()

	if res := r.Buy("a", walkerID); res.Success {
		t.Error("buy succeeded on a closed room")
	}
	if r.StealStart("a", "b", 0) {
		t.Error("steal started on a closed room")
	}
	if r.expireWalker(walkerID) {
		t.Error("expiry ran on a closed room")
	}
	r.spawnTick()
	r.incomeTick()
	m.Shutdown()
}
