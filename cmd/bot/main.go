package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/trade_engine/internal/config"
	"github.com/vitos/trade_engine/internal/infrastructure/audit"
	"github.com/vitos/trade_engine/internal/infrastructure/broker"
	"github.com/vitos/trade_engine/internal/infrastructure/logger"
	"github.com/vitos/trade_engine/internal/infrastructure/market"
	"github.com/vitos/trade_engine/internal/infrastructure/setup"
	"github.com/vitos/trade_engine/internal/infrastructure/storage"
	"github.com/vitos/trade_engine/internal/usecase"
	"github.com/vitos/trade_engine/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	setupDir := flag.String("setups", "setups", "directory the analysis pipeline writes setups to")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	stateFile := storage.NewStateFile(cfg.Storage.StatePath)

	auditLog, err := audit.NewLog(cfg.Storage.AuditDir)
	if err != nil {
		log.Fatal("Failed to init audit log", zap.Error(err))
	}

	// 4. Init Broker bridge
	bridge := broker.NewBridgeClient(cfg.Broker.RESTEndpoint, cfg.Broker.WSEndpoint, cfg.Broker.AuthToken, log)

	// 5. Calendar (optional: without it the news check is simply skipped)
	var calendar market.Calendar
	if cfg.Calendar.Path != "" {
		cal, err := market.LoadCalendar(cfg.Calendar.Path)
		if err != nil {
			log.Warn("calendar unavailable, news check will be skipped", zap.Error(err))
		} else {
			calendar = cal
		}
	}

	// 6. Snapshot provider, setup source, engine
	provider := market.NewProvider(bridge, bridge, calendar, cfg, log)
	setups := setup.NewFileSource(*setupDir)
	engine := usecase.NewEngine(cfg, bridge, provider, setups, stateFile, auditLog, store, log)

	// 7. Tick stream feeds the spread/tick-rate history; decisions still run
	// without it, just with fewer gate inputs
	if err := bridge.ConnectStream(cfg.Symbols); err != nil {
		log.Warn("tick stream unavailable", zap.Error(err))
	}

	// 8. Web server
	server := web.NewServer(cfg.Server.Port, engine, bridge, store, auditLog, cfg.Symbols, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("web server stopped", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 9. Decision cycle cadence
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Engine.CycleIntervalSec) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, symbol := range cfg.Symbols {
					if _, err := engine.RunCycle(ctx, symbol); err != nil {
						log.Error("cycle failed", zap.String("symbol", symbol), zap.Error(err))
					}
				}
			}
		}
	}()

	// 10. Position lifecycle cadence, independent of the decision loop
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Engine.LifecycleIntervalSec) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.ManagePositions(ctx)
			}
		}
	}()

	// 11. Wait for shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown failed", zap.Error(err))
	}
}
