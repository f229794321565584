package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg-groupguard/internal/bot"
	"tg-groupguard/internal/cache"
	"tg-groupguard/internal/config"
	"tg-groupguard/internal/crash"
	"tg-groupguard/internal/gateway"
	"tg-groupguard/internal/guard"
	"tg-groupguard/internal/handler"
	"tg-groupguard/internal/logger"
	"tg-groupguard/internal/moderation"
	"tg-groupguard/internal/storage"
)

func main() {
	defer crash.RecoverWithStackAndExit("main")

	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Setup(cfg); err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	table, err := moderation.NewEscalationTable(cfg.Moderation.Escalation)
	if err != nil {
		log.Fatalf("Invalid escalation configuration: %v", err)
	}

	if err := storage.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	statusCache, err := cache.New(cfg)
	if err != nil {
		logger.Warningf("Redis cache unavailable, continuing without it: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	botService, server, err := bot.Initialize(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize bot: %v", err)
	}

	gw := gateway.NewTelegramGateway(botService.Bot)

	var ledger *moderation.Ledger
	var enforcer *moderation.Enforcer
	if cfg.Database.Enabled {
		warningRepo := storage.NewWarningRepository(storage.GetDB())
		if err := warningRepo.MigrateTable(); err != nil {
			log.Fatalf("Failed to migrate warnings table: %v", err)
		}
		actionRepo := storage.NewActionRepository(storage.GetDB())
		if err := actionRepo.MigrateTable(); err != nil {
			log.Fatalf("Failed to migrate moderation actions table: %v", err)
		}

		expiry := time.Duration(cfg.Moderation.WarningExpiryDays) * 24 * time.Hour
		ledger = moderation.NewLedger(warningRepo, table, expiry)
		enforcer = moderation.NewEnforcer(gw, actionRepo, statusCache)
		logger.Info("Database connection established and repositories initialized")
	} else {
		logger.Info("Database support is disabled. Warnings and restrictions will not be persisted.")
	}

	guardian := guard.New(cfg, gw, ledger, enforcer)
	guardian.Start()

	handler.Initialize(cfg, guardian, gw)

	crash.SafeGoroutine("http-server", func() {
		if err := server.Start(); err != nil {
			logger.Fatalf("HTTP server error: %v", err)
		}
	})

	// Give server time to start
	time.Sleep(500 * time.Millisecond)
	log.Println("HTTP server is ready, starting bot handler...")

	handler.SetupMessageHandlers(botService.Handler, botService.Bot)
	handler.StartStatsLogging(5 * time.Minute)

	crash.SafeGoroutine("bot-handler", func() {
		botService.Start()
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGABRT, syscall.SIGQUIT)

	sig := <-sigChan
	logger.Infof("Received signal: %v, shutting down...", sig)

	botService.Stop()

	// Fire remaining scheduled deletions before exiting so tracked messages
	// do not linger in chats.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	guardian.Stop(drainCtx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := statusCache.Close(); err != nil {
		logger.Warningf("Redis close error: %v", err)
	}

	log.Println("Server gracefully stopped")
}
