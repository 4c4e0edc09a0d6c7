// room/spawner.go
package room

import (
	"fmt"

	"github.com/wfunc/walkerserver/logger"
	"github.com/wfunc/walkerserver/models"
	"github.com/wfunc/walkerserver/network"
)

// spawnTick 每个刷新周期生成一个 walker
func (r *Room) spawnTick() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return
	}
	if r.cfg.MaxWalkers > 0 && len(r.walkers) >= r.cfg.MaxWalkers {
		return
	}
	r.insertWalkerLocked(r.drawWalkerLocked())
}

// drawWalkerLocked picks rarity by weight and kind uniformly.
func (r *Room) drawWalkerLocked() *models.Walker {
	rarity := r.cfg.Rarities.Draw(r.rng.Float64())
	kind := r.cfg.Kinds[r.rng.Intn(len(r.cfg.Kinds))]
	now := r.now()

	return &models.Walker{
		Kind:       kind,
		Rarity:     rarity.Name,
		Cost:       rarity.Cost,
		IncomeRate: rarity.Income,
		SpawnedAt:  now,
		ExpiresAt:  now.Add(r.cfg.WalkerLifetime),
	}
}

// insertWalkerLocked assigns a never-reused id, schedules expiry and announces the walker.
func (r *Room) insertWalkerLocked(w *models.Walker) {
	r.walkerSeq++
	w.ID = fmt.Sprintf("w%d", r.walkerSeq)
	if w.SpawnedAt.IsZero() {
		w.SpawnedAt = r.now()
		w.ExpiresAt = w.SpawnedAt.Add(r.cfg.WalkerLifetime)
	}
	r.walkers[w.ID] = w

	id := w.ID
	r.expiries[id] = r.timers.After(r.cfg.WalkerLifetime, func() { r.expireWalker(id) })
	r.recorder.WalkerSpawned(w.Rarity)

	r.broadcastLocked(network.WalkerSpawn{Walker: network.NewWalkerView(w)})
}

// expireWalker removes a walker whose lifetime ended. A walker that was
// already bought is left alone; the return value reports a removal.
func (r *Room) expireWalker(walkerID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return false
	}
	delete(r.expiries, walkerID)
	if _, exists := r.walkers[walkerID]; !exists {
		return false
	}

	delete(r.walkers, walkerID)
	r.recorder.WalkerExpired()
	logger.Log.Debugf("Walker %s expired in room %s", walkerID, r.Code)

	r.broadcastLocked(network.WalkerRemove{ID: walkerID})
	return true
}
