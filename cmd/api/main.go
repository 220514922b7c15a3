package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/19niel/Ultra-MIS-Ticketing-System/internal/api/http"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/api/http/handlers"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/auth"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/config"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/observability"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/persistence"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/realtime"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/repository"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/service"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/worker"
)

type stores struct {
	tickets  repository.TicketRepository
	messages repository.TicketMessageRepository
	users    repository.UserRepository
	history  repository.TicketHistoryRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var repos stores
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if _, err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		repos = stores{
			tickets:  repository.NewTicketRepository(pg.Pool),
			messages: repository.NewTicketMessageRepository(pg.Pool),
			users:    repository.NewUserRepository(pg.Pool),
			history:  repository.NewTicketHistoryRepository(pg.Pool),
		}
	} else {
		logger.Warn("running on the in-memory store; data is lost on restart")
		mem := repository.NewMemoryStore()
		seedDevUsers(ctx, mem.Users, logger)
		repos = stores{tickets: mem.Tickets, messages: mem.Messages, users: mem.Users, history: mem.History}
	}

	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer rdb.Close()

	busOpts := events.BusOptions{
		Logger:     logger,
		ReplaySize: cfg.Realtime.ReplaySize,
		Observer:   metrics,
	}
	if rdb.Enabled() {
		busOpts.Sequencer = events.NewRedisSequencer(rdb.Client, cfg.Realtime.SequenceKey)
	}
	bus := events.NewBus(busOpts)
	defer bus.Close()

	if rdb.Enabled() {
		bridge := events.NewRedisBridge(rdb.Client, cfg.Realtime.RedisChannel, bus, logger)
		if err := bridge.Start(ctx); err != nil {
			logger.Error("redis bridge disabled", zap.Error(err))
		}
	}

	directory := service.NewDirectory(repos.users, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  repos.tickets,
		HistoryRepo: repos.history,
		Directory:   directory,
		Dispatcher:  bus,
		Logger:      logger,
	})
	messageService := service.NewMessageService(service.MessageDependencies{
		Tickets:     ticketService,
		MessageRepo: repos.messages,
		Directory:   directory,
		Dispatcher:  bus,
		Logger:      logger,
	})
	statsService := service.NewStatsService(repos.tickets, nil)

	stopNotifications := worker.StartNotificationWorker(service.NewNotificationService(bus, logger, cfg.Notification))
	defer stopNotifications()

	statsWorker := worker.NewStatsWorker(bus, statsService, cfg.Realtime.StatsDebounce, logger)
	go statsWorker.Run(ctx)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	resolver := auth.NewResolver(tokens, repos.users)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    rdb,
		}),
		Tickets:  handlers.NewTicketsHandler(ticketService, statsService),
		Messages: handlers.NewMessagesHandler(messageService),
		Events:   handlers.NewEventsHandler(bus),
		Resolver: resolver,
		Metrics:  metrics,
	})

	gateway := realtime.NewGateway(bus, realtime.Options{
		SendBuffer:     cfg.Realtime.SendBuffer,
		WriteTimeout:   cfg.Realtime.WriteTimeout,
		PingInterval:   cfg.Realtime.PingInterval,
		AllowAnyOrigin: cfg.Realtime.AllowAnyOrigin,
		Authenticate:   resolver.Authenticate,
		Metrics:        metrics,
		Logger:         logger,
	})
	wsServer := realtime.NewServer(cfg.Realtime.Addr(), gateway, logger)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()
	go func() {
		if err := wsServer.Start(); err != nil {
			logger.Fatal("realtime listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("realtime shutdown", zap.Error(err))
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
}

// seedDevUsers gives the in-memory store a directory to authenticate
// against. Tokens for these ids can be minted with `helpdeskctl token`.
func seedDevUsers(ctx context.Context, users repository.UserRepository, logger *zap.Logger) {
	for _, u := range []domain.User{
		{ID: 1, FirstName: "Ada", LastName: "Admin", Role: domain.UserRoleAdmin, Active: true},
		{ID: 2, FirstName: "Sam", LastName: "Support", Role: domain.UserRoleTechSupport, Department: "IT", Active: true},
		{ID: 3, FirstName: "Eve", LastName: "Employee", Role: domain.UserRoleEmployee, Department: "Finance", Active: true},
	} {
		user := u
		if err := users.Create(ctx, &user); err != nil {
			logger.Warn("seed user", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
