package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quizbattle/server/internal/api"
	"github.com/quizbattle/server/internal/battle"
	"github.com/quizbattle/server/internal/config"
	"github.com/quizbattle/server/internal/data"
	"github.com/quizbattle/server/internal/match"
	"github.com/quizbattle/server/internal/persist"
	"github.com/quizbattle/server/internal/scripting"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
	recentResults   = 200
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            QuizBattle  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        lane battle · match server         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mServer:\033[0m %s\n\n", serverName)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("QUIZBATTLE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	// 3. Load unit data and combat scripts
	printSection("Data")
	units, err := data.LoadUnitTable(cfg.Data.UnitList)
	if err != nil {
		return fmt.Errorf("unit table: %w", err)
	}
	printStat("Unit types", units.Count())

	var damage battle.DamageFunc
	if cfg.Data.ScriptsDir != "" {
		eng, err := scripting.NewEngine(cfg.Data.ScriptsDir, log)
		if err != nil {
			return fmt.Errorf("lua engine: %w", err)
		}
		defer eng.Close()
		damage = battle.ScriptedDamage(eng)
		printOK("Lua combat formulas loaded")
	}
	fmt.Println()

	// 4. Result storage: PostgreSQL when configured, memory otherwise
	printSection("Results")
	memory := match.NewRecorder(recentResults)
	var sink match.ResultSink = memory
	var store api.ResultStore = memory

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := persist.NewDB(ctx, cfg.Database, log)
	switch {
	case errors.Is(err, persist.ErrDisabled):
		printOK("database disabled, keeping recent results in memory")
	case err != nil:
		return fmt.Errorf("database: %w", err)
	default:
		defer db.Close()
		if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		repo := persist.NewMatchRepo(db)
		sink, store = repo, repo
		printOK("PostgreSQL connected, migrations applied")
	}
	fmt.Println()

	// 5. Match manager
	mgr := match.NewManager(match.ManagerOptions{
		Match:  cfg.Match,
		Lane:   cfg.Lane,
		Units:  units,
		Damage: damage,
		Sink:   resultSink(sink, log),
		Logger: log,
	})
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	managerDone := make(chan struct{})
	go func() {
		mgr.Run(runCtx, sweepInterval)
		close(managerDone)
	}()

	// 6. HTTP bridge
	srv := api.NewServer(cfg.HTTP, mgr, units, store, log)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.BindAddress,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	ln, err := net.Listen("tcp", cfg.HTTP.BindAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 7. Wait for shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	printSection("Ready")
	printReady(fmt.Sprintf("listening on %s", ln.Addr().String()))
	printReady(fmt.Sprintf("match tick %s, up to %d matches", cfg.Match.TickRate, cfg.Match.MaxMatches))
	fmt.Println()

	select {
	case sig := <-shutdownCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serveErr:
		log.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	stopRun()
	<-managerDone
	log.Info("server stopped")
	return nil
}

// resultSink logs every result and forwards it to the store.
func resultSink(store match.ResultSink, log *zap.Logger) match.ResultSink {
	logged := match.LogSink(log)
	return match.SinkFunc(func(ctx context.Context, r battle.Result) error {
		_ = logged.Record(ctx, r)
		return store.Record(ctx, r)
	})
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
