package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wfunc/walkerserver/models"
	"github.com/wfunc/walkerserver/room"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Game   GameConfig   `mapstructure:"game"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress       string  `mapstructure:"http_address"`
	RPCAddress        string  `mapstructure:"rpc_address"`
	HealthAddress     string  `mapstructure:"health_address"`
	MetricsAddress    string  `mapstructure:"metrics_address"`
	ReadLimit         int64   `mapstructure:"read_limit"`
	SendQueue         int     `mapstructure:"send_queue"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	MessageBurst      int     `mapstructure:"message_burst"`

	// Heartbeat is the idle read deadline; a client silent for twice this long is dropped.
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

type GameConfig struct {
	SpawnInterval    time.Duration      `mapstructure:"spawn_interval"`
	WalkerLifetime   time.Duration      `mapstructure:"walker_lifetime"`
	MaxWalkers       int                `mapstructure:"max_walkers"`
	StealTimeout     time.Duration      `mapstructure:"steal_timeout"`
	IncomeInterval   time.Duration      `mapstructure:"income_interval"`
	CollectionSlots  int                `mapstructure:"collection_slots"`
	StartingBalance  int64              `mapstructure:"starting_balance"`
	RefundMultiplier int64              `mapstructure:"refund_multiplier"`
	Kinds            []string           `mapstructure:"kinds"`
	Rarities         models.RarityTable `mapstructure:"rarities"`
	TimerResolution  time.Duration      `mapstructure:"timer_resolution"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	g := room.DefaultConfig()

	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.health_address", ":8082")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.read_limit", 4096)
	v.SetDefault("server.send_queue", 256)
	v.SetDefault("server.messages_per_second", 20)
	v.SetDefault("server.message_burst", 40)
	v.SetDefault("server.heartbeat", 30*time.Second)

	v.SetDefault("game.spawn_interval", g.SpawnInterval)
	v.SetDefault("game.walker_lifetime", g.WalkerLifetime)
	v.SetDefault("game.max_walkers", 0)
	v.SetDefault("game.steal_timeout", g.StealTimeout)
	v.SetDefault("game.income_interval", g.IncomeInterval)
	v.SetDefault("game.collection_slots", g.CollectionSlots)
	v.SetDefault("game.starting_balance", g.StartingBalance)
	v.SetDefault("game.refund_multiplier", g.RefundMultiplier)
	v.SetDefault("game.kinds", g.Kinds)
	v.SetDefault("game.timer_resolution", g.TimerResolution)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from a directory, or path itself when it
// names a file. A missing file leaves defaults and env overrides in place.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		v.SetConfigFile(path)
	} else {
		if path != "" {
			v.AddConfigPath(path)
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// WALKER_GAME_STEAL_TIMEOUT=5s
	v.SetEnvPrefix("WALKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Game.Rarities) == 0 {
		cfg.Game.Rarities = models.DefaultRarities()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the game cannot run with.
func (c *Config) Validate() error {
	g := c.Game
	durations := map[string]time.Duration{
		"spawn_interval":   g.SpawnInterval,
		"walker_lifetime":  g.WalkerLifetime,
		"steal_timeout":    g.StealTimeout,
		"income_interval":  g.IncomeInterval,
		"timer_resolution": g.TimerResolution,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: game.%s must be positive", ErrInvalidConfig, name)
		}
	}
	if g.CollectionSlots <= 0 {
		return fmt.Errorf("%w: game.collection_slots must be positive", ErrInvalidConfig)
	}
	if g.StartingBalance < 0 {
		return fmt.Errorf("%w: game.starting_balance must not be negative", ErrInvalidConfig)
	}
	if g.RefundMultiplier <= 0 {
		return fmt.Errorf("%w: game.refund_multiplier must be positive", ErrInvalidConfig)
	}
	if g.MaxWalkers < 0 {
		return fmt.Errorf("%w: game.max_walkers must not be negative", ErrInvalidConfig)
	}
	if len(g.Kinds) == 0 {
		return fmt.Errorf("%w: game.kinds is empty", ErrInvalidConfig)
	}
	if err := g.Rarities.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Server.MessagesPerSecond < 0 || c.Server.MessageBurst < 0 {
		return fmt.Errorf("%w: server rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// RoomConfig converts the game section for the room manager.
func (g GameConfig) RoomConfig() room.Config {
	return room.Config{
		SpawnInterval:    g.SpawnInterval,
		WalkerLifetime:   g.WalkerLifetime,
		MaxWalkers:       g.MaxWalkers,
		StealTimeout:     g.StealTimeout,
		IncomeInterval:   g.IncomeInterval,
		CollectionSlots:  g.CollectionSlots,
		StartingBalance:  g.StartingBalance,
		RefundMultiplier: g.RefundMultiplier,
		Kinds:            g.Kinds,
		Rarities:         g.Rarities,
		TimerResolution:  g.TimerResolution,
	}
}
