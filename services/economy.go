// services/economy.go
package services

import (
	"github.com/wfunc/walkerserver/models"
)

// 拒绝原因，作为结果返回给请求者而不是错误
const (
	ReasonInvalid = "invalid"
	ReasonNoSlot  = "no_slot"
	ReasonNoMoney = "no_money"
	ReasonEmpty   = "empty"
	ReasonNoSpace = "no_space"
	ReasonGone    = "gone"
	OutcomeOK     = "ok"
)

// DefaultRefundMultiplier 卖出退款 = 每跳收益 × 倍数
const DefaultRefundMultiplier = 5

// BuyResult is the outcome of a purchase attempt.
type BuyResult struct {
	Success bool
	Slot    int
	Item    *models.Item
	Walker  *models.Walker
	Reason  string
}

// SellResult is the outcome of a sell attempt.
type SellResult struct {
	Success bool
	Slot    int
	Refund  int64
	Reason  string
}

// Economy 买卖规则。调用方必须持有房间锁，这里不做任何同步
type Economy struct {
	RefundMultiplier int64
}

func NewEconomy(refundMultiplier int64) *Economy {
	if refundMultiplier <= 0 {
		refundMultiplier = DefaultRefundMultiplier
	}
	return &Economy{RefundMultiplier: refundMultiplier}
}

// Buy moves a walker into the player's first free slot.
// Checks run in order and the first failure wins: walker present, free slot, funds.
func (e *Economy) Buy(player *models.Player, walkers map[string]*models.Walker, walkerID string) BuyResult {
	if player == nil {
		return BuyResult{Reason: ReasonInvalid}
	}

	walker, exists := walkers[walkerID]
	if !exists {
		return BuyResult{Reason: ReasonInvalid}
	}

	slot := player.FirstFreeSlot()
	if slot < 0 {
		return BuyResult{Reason: ReasonNoSlot}
	}

	if player.Balance < walker.Cost {
		return BuyResult{Reason: ReasonNoMoney}
	}

	item := walker.Item()
	player.Balance -= walker.Cost
	player.Collection[slot] = item
	delete(walkers, walkerID)

	cp := *item
	return BuyResult{Success: true, Slot: slot, Item: &cp, Walker: walker}
}

// Refund returns what selling item yields; never less than 1.
func (e *Economy) Refund(item *models.Item) int64 {
	refund := item.IncomeRate * e.RefundMultiplier
	if refund < 1 {
		return 1
	}
	return refund
}

// Sell clears a slot and credits the refund.
func (e *Economy) Sell(player *models.Player, slot int) SellResult {
	if player == nil || !player.ValidSlot(slot) {
		return SellResult{Slot: slot, Reason: ReasonInvalid}
	}

	item := player.Collection[slot]
	if item == nil {
		return SellResult{Slot: slot, Reason: ReasonEmpty}
	}

	refund := e.Refund(item)
	player.Balance += refund
	player.Collection[slot] = nil

	return SellResult{Success: true, Slot: slot, Refund: refund}
}
