package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wfunc/walkerserver/broadcast"
	"github.com/wfunc/walkerserver/config"
	"github.com/wfunc/walkerserver/logger"
	"github.com/wfunc/walkerserver/monitor"
	"github.com/wfunc/walkerserver/room"
	"github.com/wfunc/walkerserver/rpc"
	"github.com/wfunc/walkerserver/server"
	"github.com/wfunc/walkerserver/session"
)

const shutdownTimeout = 5 * time.Second

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "walkerd",
	Short:         "Authoritative server for the walker collection game",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the game, admin RPC, health and metrics servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config file or directory containing config.yaml")
	rootCmd.AddCommand(serveCmd)
}

func Execute() {
	ctx := SignalContext(context.Background())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mon := monitor.NewMonitor("walker")
	sessions := session.NewManager()
	rooms := room.NewRoomManager(cfg.Game.RoomConfig(), broadcast.NewRoomBroadcaster(sessions), mon)

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewRoomService(rooms))
	if err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}
	healthServer, err := rpc.NewHealthServer(cfg.Server.HealthAddress)
	if err != nil {
		rpcServer.Stop()
		return fmt.Errorf("start health server: %w", err)
	}

	gameServer := server.NewGameServer(server.Options{
		Addr:              cfg.Server.HTTPAddress,
		ReadLimit:         cfg.Server.ReadLimit,
		SendQueue:         cfg.Server.SendQueue,
		MessagesPerSecond: cfg.Server.MessagesPerSecond,
		MessageBurst:      cfg.Server.MessageBurst,
		Heartbeat:         cfg.Server.Heartbeat,
	}, rooms, sessions, mon)

	go rpcServer.Start()
	go healthServer.Start()
	mon.StartServer(cfg.Server.MetricsAddress)

	errs := make(chan error, 1)
	go func() {
		errs <- gameServer.Start()
		cancel()
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("Game server shutdown failed: %v", err)
	}
	rooms.Shutdown()
	rpcServer.Stop()
	healthServer.Stop()
	if err := mon.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("Metrics server shutdown failed: %v", err)
	}

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		signal.Stop(sigs)
		cancel()
	}()
	return ctx
}
