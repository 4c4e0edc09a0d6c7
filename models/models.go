// models/models.go
package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Rarity 稀有度档位，cost 和 income 随档位单调递增
type Rarity struct {
	Name   string  `json:"name" mapstructure:"name"`
	Weight float64 `json:"weight" mapstructure:"weight"`
	Cost   int64   `json:"cost" mapstructure:"cost"`
	Income int64   `json:"income" mapstructure:"income"`
}

// RarityTable is ordered from the most common tier to the rarest.
type RarityTable []Rarity

// DefaultRarities 默认稀有度表
func DefaultRarities() RarityTable {
	return RarityTable{
		{Name: "Common", Weight: 0.5, Cost: 10, Income: 1},
		{Name: "Uncommon", Weight: 0.3, Cost: 20, Income: 2},
		{Name: "Rare", Weight: 0.15, Cost: 40, Income: 4},
		{Name: "Epic", Weight: 0.05, Cost: 80, Income: 8},
	}
}

var ErrInvalidRarityTable = errors.New("invalid rarity table")

// Validate checks that weights sum to 1 and that cost and income never
// decrease from one tier to the next.
func (t RarityTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidRarityTable)
	}
	sum := 0.0
	for i, r := range t {
		if r.Weight <= 0 {
			return fmt.Errorf("%w: tier %q has non-positive weight", ErrInvalidRarityTable, r.Name)
		}
		if r.Cost <= 0 || r.Income < 0 {
			return fmt.Errorf("%w: tier %q has invalid cost or income", ErrInvalidRarityTable, r.Name)
		}
		if i > 0 && (r.Cost < t[i-1].Cost || r.Income < t[i-1].Income) {
			return fmt.Errorf("%w: tier %q is cheaper than %q", ErrInvalidRarityTable, r.Name, t[i-1].Name)
		}
		sum += r.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: weights sum to %v", ErrInvalidRarityTable, sum)
	}
	return nil
}

// Draw returns the first tier whose cumulative weight bucket contains x,
// where x is a uniform draw in [0,1). Rounding overflow lands in the last tier.
func (t RarityTable) Draw(x float64) Rarity {
	cumulative := 0.0
	for _, r := range t {
		cumulative += r.Weight
		if x < cumulative {
			return r
		}
	}
	return t[len(t)-1]
}

// Walker 房间内可购买的临时实体
type Walker struct {
	ID         string
	Kind       string
	Rarity     string
	Cost       int64
	IncomeRate int64
	SpawnedAt  time.Time
	ExpiresAt  time.Time
}

// Item returns the permanent economic copy placed in a collection slot.
func (w *Walker) Item() *Item {
	return &Item{
		Kind:       w.Kind,
		Rarity:     w.Rarity,
		Cost:       w.Cost,
		IncomeRate: w.IncomeRate,
	}
}

// Item 收藏格中的物品
type Item struct {
	Kind       string `json:"kind"`
	Rarity     string `json:"rarity"`
	Cost       int64  `json:"cost"`
	IncomeRate int64  `json:"mps"`
}

// Player 玩家数据，只由房间持有并在房间锁内修改
type Player struct {
	ID         string
	Username   string
	Balance    int64
	Collection []*Item
}

// NewPlayer creates a player with every collection slot empty.
func NewPlayer(id, username string, balance int64, slots int) *Player {
	return &Player{
		ID:         id,
		Username:   username,
		Balance:    balance,
		Collection: make([]*Item, slots),
	}
}

// FirstFreeSlot returns the lowest empty slot index, or -1 when the collection is full.
func (p *Player) FirstFreeSlot() int {
	for i, item := range p.Collection {
		if item == nil {
			return i
		}
	}
	return -1
}

// ValidSlot reports whether slot indexes the collection.
func (p *Player) ValidSlot(slot int) bool {
	return slot >= 0 && slot < len(p.Collection)
}

// Income 所有物品的每跳收益之和
func (p *Player) Income() int64 {
	var total int64
	for _, item := range p.Collection {
		if item != nil {
			total += item.IncomeRate
		}
	}
	return total
}

// CollectionCopy returns a copy of the slots whose items are also copied.
func (p *Player) CollectionCopy() []*Item {
	out := make([]*Item, len(p.Collection))
	for i, item := range p.Collection {
		if item != nil {
			cp := *item
			out[i] = &cp
		}
	}
	return out
}
