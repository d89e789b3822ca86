// Package main is the entry point for the chat economy bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"rpg-chat-bot/internal/bot"
	"rpg-chat-bot/internal/chatlog"
	"rpg-chat-bot/internal/command"
	"rpg-chat-bot/internal/config"
	"rpg-chat-bot/internal/handler"
	"rpg-chat-bot/internal/identity"
	"rpg-chat-bot/internal/message"
	"rpg-chat-bot/internal/model"
	"rpg-chat-bot/internal/names"
	"rpg-chat-bot/internal/pkg/db"
	"rpg-chat-bot/internal/pkg/lock"
	"rpg-chat-bot/internal/pkg/metrics"
	"rpg-chat-bot/internal/pkg/queue"
	"rpg-chat-bot/internal/repository"
	"rpg-chat-bot/internal/repository/memstore"
	"rpg-chat-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log)

	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Bot stopped with error")
	}
	log.Info().Msg("Bot stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	if !cfg.Pretty {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.DefaultContextLogger = &log.Logger
}

func run(ctx context.Context, cfg *config.Config) error {
	stores, health, closeStores, err := openStores(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer closeStores()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	telegramBot, err := bot.New(cfg)
	if err != nil {
		return err
	}

	resolver := identity.New(telegramBot.Scheme(), telegramBot)

	// Name directory: persisted file first, then stored user names.
	dir := names.NewDirectory()
	nameStore := names.NewFileStore(cfg.Names.File)
	if err := nameStore.Load(dir); err != nil {
		log.Warn().Err(err).Str("file", nameStore.Path()).Msg("Failed to load name directory")
	}
	if n := dir.Normalize(identity.StripDevice); n > 0 {
		log.Info().Int("entries", n).Msg("Normalized name directory keys")
	}

	userLock := lock.NewUserLock()
	ledger := service.NewLedger(stores, userLock).WithObserver(m)
	accounts := service.NewAccountService(stores.Users, ledger, resolver, dir)
	groups := service.NewGroupService(stores.Groups, cfg.Bot.DefaultPrefix)

	if n, err := accounts.RebuildDirectory(ctx, dir); err != nil {
		log.Warn().Err(err).Msg("Failed to rebuild name directory")
	} else {
		log.Info().Int("names", n).Int("entries", dir.Len()).Msg("Name directory loaded")
	}
	if err := accounts.SeedOwners(ctx, cfg.Admin.Owners); err != nil {
		log.Error().Err(err).Msg("Failed to seed owners")
	}

	registry := command.NewRegistry()
	handler.Register(handler.Deps{
		Accounts: accounts,
		Ledger:   ledger,
		Groups:   groups,
		Ranking:  service.NewRankingService(stores.Stats),
		Resolver: resolver,
		Registry: registry,
	})
	log.Info().
		Int("command_count", registry.Count()).
		Strs("commands", registry.Names()).
		Msg("Commands registered")

	gate := command.NewGate(telegramBot, accounts, resolver)
	dispatcher := command.NewDispatcher(registry, gate, telegramBot).WithObserver(m)

	deps := message.Deps{
		Resolver:   resolver,
		Names:      dir,
		Accounts:   accounts,
		Prefixes:   groups,
		Dispatcher: dispatcher,
		Observer:   m,
	}
	var chatLog *chatlog.Writer
	if cfg.ChatLog.Dir != "" {
		chatLog = chatlog.New(cfg.ChatLog.Dir)
		deps.ChatLog = chatLog
	}
	processor := message.NewProcessor(deps)

	// The queue outlives the signal so the backlog can drain on shutdown.
	events := queue.New[model.Batch](context.WithoutCancel(ctx), processor.HandleBatch, queue.WithObserver(m))
	telegramBot.Attach(events)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return telegramBot.Run(gctx)
	})
	g.Go(func() error {
		return names.NewFlusher(dir, nameStore).Run(gctx, cfg.Names.FlushInterval)
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return metrics.NewServer(cfg.Metrics.Addr, reg, health).Run(gctx)
		})
	}

	log.Info().Msg("Bot is running")
	runErr := g.Wait()

	// Graceful shutdown
	log.Info().Int("pending", events.Len()).Msg("Draining event queue")
	events.Wait()

	if err := nameStore.Save(dir); err != nil {
		log.Error().Err(err).Msg("Failed to save name directory")
	}
	if chatLog != nil {
		if err := chatLog.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close chat log")
		}
	}
	return runErr
}

// openStores connects the configured persistence driver.
func openStores(ctx context.Context, cfg *config.DatabaseConfig) (service.Stores, metrics.Pinger, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory storage, data is lost on exit")
		store := memstore.New()
		return service.Stores{
			Users:   store.Users(),
			Stats:   store.Stats(),
			Entries: store.Entries(),
			Groups:  store.Groups(),
			Tx:      store,
		}, store, func() {}, nil

	case config.DriverPostgres:
		dbPool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return service.Stores{}, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx, dbPool); err != nil {
			dbPool.Close()
			return service.Stores{}, nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}

		closeFn := func() {
			stat := dbPool.Stats()
			log.Info().
				Int32("total_conns", stat.TotalConns()).
				Int64("acquire_count", stat.AcquireCount()).
				Msg("Closing database pool")
			dbPool.Close()
		}
		return service.Stores{
			Users:   repository.NewUserRepository(dbPool.Pool),
			Stats:   repository.NewStatsRepository(dbPool.Pool),
			Entries: repository.NewTransactionRepository(dbPool.Pool),
			Groups:  repository.NewGroupRepository(dbPool.Pool),
			Tx:      repository.NewTransactor(dbPool.Pool),
		}, dbPool, closeFn, nil

	default:
		return service.Stores{}, nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
