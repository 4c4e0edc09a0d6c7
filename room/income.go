// room/income.go
package room

// incomeTick 按持有物品的 mps 给每个玩家加钱，有变化才同步
func (r *Room) incomeTick() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return
	}

	changed := false
	for _, p := range r.players {
		income := p.Income()
		if income <= 0 {
			continue
		}
		p.Balance += income
		r.recorder.IncomeCredited(income)
		changed = true
	}

	if changed {
		r.broadcastLocked()
	}
}
