package state

import (
	"errors"
	"sync"
)

// Phase 偷窃协商的阶段
type Phase int

const (
	Idle Phase = iota
	Pending
	Completed
	Blocked
	Void
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Blocked:
		return "blocked"
	case Void:
		return "void"
	}
	return "unknown"
}

// Terminal reports whether no further transition leaves p.
func (p Phase) Terminal() bool {
	return p == Completed || p == Blocked || p == Void
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// 状态机接口
type StateMachine interface {
	ChangeState(to Phase) error
	GetCurrentState() Phase
	AddTransition(from, to Phase)
}

// 基础状态机实现，只允许显式登记过的转换
type BaseStateMachine struct {
	currentState Phase
	transitions  map[Phase]map[Phase]bool // fromState -> toState
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initial Phase) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initial,
		transitions:  make(map[Phase]map[Phase]bool),
	}
}

// NewNegotiationMachine 创建协商状态机：Idle -> Pending -> Completed | Blocked | Void
func NewNegotiationMachine() *BaseStateMachine {
	sm := NewBaseStateMachine(Idle)
	sm.AddTransition(Idle, Pending)
	sm.AddTransition(Pending, Completed)
	sm.AddTransition(Pending, Blocked)
	sm.AddTransition(Pending, Void)
	return sm
}

func (sm *BaseStateMachine) ChangeState(to Phase) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if !sm.transitions[sm.currentState][to] {
		return ErrTransitionNotAllowed
	}
	sm.currentState = to
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from, to Phase) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]bool)
	}
	sm.transitions[from][to] = true
}
