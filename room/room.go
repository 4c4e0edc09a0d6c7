// room/room.go
package room

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/walkerserver/logger"
	"github.com/wfunc/walkerserver/models"
	"github.com/wfunc/walkerserver/network"
	"github.com/wfunc/walkerserver/services"
	"github.com/wfunc/walkerserver/timer"
)

// Config 房间玩法参数
type Config struct {
	SpawnInterval    time.Duration
	WalkerLifetime   time.Duration
	MaxWalkers       int
	StealTimeout     time.Duration
	IncomeInterval   time.Duration
	CollectionSlots  int
	StartingBalance  int64
	RefundMultiplier int64
	Kinds            []string
	Rarities         models.RarityTable
	TimerResolution  time.Duration

	// Seed fixes the spawn random source; 0 seeds from the clock.
	Seed int64
}

// DefaultConfig returns the stock game rules.
func DefaultConfig() Config {
	return Config{
		SpawnInterval:    time.Second,
		WalkerLifetime:   10 * time.Second,
		StealTimeout:     15 * time.Second,
		IncomeInterval:   time.Second,
		CollectionSlots:  8,
		StartingBalance:  30,
		RefundMultiplier: services.DefaultRefundMultiplier,
		Kinds:            []string{"spermbob", "bellbob"},
		Rarities:         models.DefaultRarities(),
		TimerResolution:  timer.DefaultResolution,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SpawnInterval <= 0 {
		c.SpawnInterval = d.SpawnInterval
	}
	if c.WalkerLifetime <= 0 {
		c.WalkerLifetime = d.WalkerLifetime
	}
	if c.StealTimeout <= 0 {
		c.StealTimeout = d.StealTimeout
	}
	if c.IncomeInterval <= 0 {
		c.IncomeInterval = d.IncomeInterval
	}
	if c.CollectionSlots <= 0 {
		c.CollectionSlots = d.CollectionSlots
	}
	if c.StartingBalance < 0 {
		c.StartingBalance = d.StartingBalance
	}
	if c.RefundMultiplier <= 0 {
		c.RefundMultiplier = d.RefundMultiplier
	}
	if len(c.Kinds) == 0 {
		c.Kinds = d.Kinds
	}
	if len(c.Rarities) == 0 {
		c.Rarities = d.Rarities
	}
	if c.TimerResolution <= 0 {
		c.TimerResolution = d.TimerResolution
	}
	return c
}

// Info is a point-in-time summary of a room.
type Info struct {
	Code         string
	Players      int
	Walkers      int
	Negotiations int
	CreatedAt    time.Time
}

// Room 是游戏房间的核心结构。所有状态由 mutex 保护，
// 定时器回调和玩家命令都必须先拿到这把锁。
type Room struct {
	Code      string
	CreatedAt time.Time

	cfg          Config
	players      map[string]*models.Player // sessionID -> player
	walkers      map[string]*models.Walker
	expiries     map[string]int64 // walkerID -> expiry timer
	negotiations map[stealKey]*negotiation
	walkerSeq    uint64

	economy     *services.Economy
	timers      *timer.TimerManager
	broadcaster Broadcaster
	recorder    Recorder
	rng         *rand.Rand
	now         func() time.Time

	spawnTimer  int64
	incomeTimer int64
	started     bool
	closed      bool
	mutex       sync.Mutex
}

// NewRoom 创建一个新房间；后台任务在第一个玩家加入时启动
func NewRoom(code string, cfg Config, broadcaster Broadcaster, recorder Recorder) *Room {
	cfg = cfg.withDefaults()
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Room{
		Code:         code,
		CreatedAt:    time.Now(),
		cfg:          cfg,
		players:      make(map[string]*models.Player),
		walkers:      make(map[string]*models.Walker),
		expiries:     make(map[string]int64),
		negotiations: make(map[stealKey]*negotiation),
		economy:      services.NewEconomy(cfg.RefundMultiplier),
		timers:       timer.NewTimerManager(cfg.TimerResolution),
		broadcaster:  broadcaster,
		recorder:     recorder,
		rng:          rand.New(rand.NewSource(seed)),
		now:          time.Now,
	}
}

// --- 玩家进出 ---

// join attaches a fresh player and reports whether it was added.
// A player already in the room keeps its state.
func (r *Room) join(playerID, username string, balance int64) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return false
	}
	if _, exists := r.players[playerID]; exists {
		r.broadcastLocked()
		return false
	}

	r.players[playerID] = models.NewPlayer(playerID, username, balance, r.cfg.CollectionSlots)
	if !r.started {
		r.startLocked()
	}
	logger.Log.Infof("Player %s (%s) joined room %s", playerID, username, r.Code)

	r.broadcastLocked()
	return true
}

// leave detaches a player. When the room empties it is closed and
// empty is true.
func (r *Room) leave(playerID string) (removed bool, empty bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.players[playerID]; !exists {
		return false, len(r.players) == 0
	}

	delete(r.players, playerID)
	voided := r.voidNegotiationsLocked(playerID)
	logger.Log.Infof("Player %s left room %s", playerID, r.Code)

	if len(r.players) == 0 {
		r.closeLocked()
		return true, true
	}

	r.broadcastLocked(voided...)
	return true, false
}

// --- 后台任务 ---

func (r *Room) startLocked() {
	r.started = true
	r.spawnTimer = r.timers.Every(r.cfg.SpawnInterval, r.spawnTick)
	r.incomeTimer = r.timers.Every(r.cfg.IncomeInterval, r.incomeTick)
}

// closeLocked stops every timer. Callbacks already in flight see closed and return.
func (r *Room) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true
	r.timers.Stop()
	r.negotiations = make(map[stealKey]*negotiation)
	r.expiries = make(map[string]int64)
	logger.Log.Infof("Room %s closed", r.Code)
}

// Close 关闭房间，停止所有定时器
func (r *Room) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.closeLocked()
}

// Closed reports whether the room has been discarded.
func (r *Room) Closed() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.closed
}

// --- 经济 ---

// Buy 购买 walker。结果单独发给购买者，成功后全房间同步
func (r *Room) Buy(playerID, walkerID string) services.BuyResult {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	player, exists := r.players[playerID]
	if r.closed || !exists {
		return services.BuyResult{Reason: services.ReasonInvalid}
	}

	res := r.economy.Buy(player, r.walkers, walkerID)

	msg := network.BuyResult{Success: res.Success, Reason: res.Reason}
	if res.Success {
		slot := res.Slot
		msg.Slot = &slot
		msg.Item = res.Item
		r.recorder.BuyOutcome(services.OutcomeOK)
		if timerID, ok := r.expiries[walkerID]; ok {
			r.timers.RemoveTimer(timerID)
			delete(r.expiries, walkerID)
		}
	} else {
		r.recorder.BuyOutcome(res.Reason)
	}
	r.broadcaster.SendTo(playerID, msg)

	if res.Success {
		logger.Log.Debugf("Player %s bought %s for %d in room %s", playerID, walkerID, res.Walker.Cost, r.Code)
		r.broadcastLocked(network.WalkerRemove{ID: walkerID})
	}
	return res
}

// Sell 卖出收藏格中的物品
func (r *Room) Sell(playerID string, slot int) services.SellResult {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	player, exists := r.players[playerID]
	if r.closed || !exists {
		return services.SellResult{Slot: slot, Reason: services.ReasonInvalid}
	}

	res := r.economy.Sell(player, slot)
	if res.Success {
		r.recorder.SellOutcome(services.OutcomeOK)
	} else {
		r.recorder.SellOutcome(res.Reason)
	}
	r.broadcaster.SendTo(playerID, network.SellResult{
		Success: res.Success,
		Slot:    res.Slot,
		Refund:  res.Refund,
		Reason:  res.Reason,
	})

	if res.Success {
		r.broadcastLocked()
	}
	return res
}

// --- 同步 ---

// broadcastLocked sends events followed by the current snapshot.
func (r *Room) broadcastLocked(events ...network.Event) {
	r.broadcaster.BroadcastRoom(r.snapshotLocked(), events...)
}

func (r *Room) snapshotLocked() network.RoomUpdate {
	players := make(map[string]network.PlayerView, len(r.players))
	for id, p := range r.players {
		players[id] = network.PlayerView{
			Username:   p.Username,
			Collection: p.CollectionCopy(),
			Balance:    p.Balance,
		}
	}

	walkers := make([]*models.Walker, 0, len(r.walkers))
	for _, w := range r.walkers {
		walkers = append(walkers, w)
	}
	sort.Slice(walkers, func(i, j int) bool {
		if walkers[i].SpawnedAt.Equal(walkers[j].SpawnedAt) {
			return walkers[i].ID < walkers[j].ID
		}
		return walkers[i].SpawnedAt.Before(walkers[j].SpawnedAt)
	})
	views := make([]network.WalkerView, len(walkers))
	for i, w := range walkers {
		views[i] = network.NewWalkerView(w)
	}

	return network.RoomUpdate{Room: r.Code, Players: players, Walkers: views}
}

// Snapshot returns the canonical room state with You unset.
func (r *Room) Snapshot() network.RoomUpdate {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.snapshotLocked()
}

// Player returns a detached copy of a player.
func (r *Room) Player(playerID string) (models.Player, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, exists := r.players[playerID]
	if !exists {
		return models.Player{}, false
	}
	cp := *p
	cp.Collection = p.CollectionCopy()
	return cp, true
}

// HasWalker reports whether a walker is still live in the room.
func (r *Room) HasWalker(walkerID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, exists := r.walkers[walkerID]
	return exists
}

func (r *Room) Info() Info {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return Info{
		Code:         r.Code,
		Players:      len(r.players),
		Walkers:      len(r.walkers),
		Negotiations: len(r.negotiations),
		CreatedAt:    r.CreatedAt,
	}
}
