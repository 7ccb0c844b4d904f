package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/adapter/handler"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/adapter/messaging"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/adapter/storage"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/auth"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/config"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/core/service"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/logger"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/metrics"
	"github.com/9gkr/nd035-c4-Security-and-DevOps/internal/port"
)

const shutdownTimeout = 10 * time.Second

type eventPublisher interface {
	port.OrderEventPublisher
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Service:   "ecommerce-api",
		Env:       cfg.AppEnv,
		Level:     cfg.LogLevel,
		AddSource: true,
	})
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("bye")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, idem, closeCache, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	publisher := openPublisher(cfg, log)
	defer publisher.Close()

	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	tokens, err := auth.NewTokenIssuer(cfg.Token)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}
	authService, err := service.NewAuthService(store, hasher, tokens, log)
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}
	orderService := service.NewOrderService(store, store, store, idem, cfg.EventQueueSize, log)

	svc := handler.Services{
		Users:  service.NewUserService(store, hasher, log),
		Auth:   authService,
		Items:  service.NewItemService(store, log),
		Carts:  service.NewCartService(store, store, store, locker, log),
		Orders: orderService,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	// Start event worker pool
	var workers sync.WaitGroup
	for i := 0; i < cfg.EventWorkers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			service.RunEventWorker(id, orderService.GetEventQueue(), publisher, log)
		}(i)
	}
	log.Info("started event workers", slog.Int("count", cfg.EventWorkers))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(svc, metrics.NewServerMetrics(), log).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.AuthInterceptor(authService)))
	handler.RegisterShopServer(grpcServer, handler.NewGRPCHandler(svc, log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("grpc server listening", slog.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown error", slog.Any("err", err))
		}
		log.Info("http server stopped")

		grpcServer.GracefulStop()
		log.Info("grpc server stopped")
		return nil
	})

	err = g.Wait()

	// Drain queued order events before closing the publisher
	orderService.Close()
	workers.Wait()
	log.Info("event workers stopped")

	return err
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (port.Store, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemoryStore(storage.SeedItems...), func() {}, nil
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping mysql: %w", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("connected to mysql")

	return adapter, func() { db.Close() }, nil
}

func openCache(ctx context.Context, cfg config.Config, log *slog.Logger) (port.CartLocker, port.IdempotencyStore, func(), error) {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set, cart locks and idempotency keys are process-local")
		return storage.NewMemoryLocker(), storage.NewMemoryIdempotency(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info("connected to redis", slog.String("addr", cfg.RedisAddr))

	adapter := storage.NewRedisAdapter(rdb, cfg.LockTTL, log)
	return adapter, adapter, func() { rdb.Close() }, nil
}

func openPublisher(cfg config.Config, log *slog.Logger) eventPublisher {
	brokers := messaging.ParseBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		log.Info("KAFKA_BROKERS not set, order events are logged only")
		return messaging.NewLogPublisher(log)
	}

	log.Info("publishing order events to kafka",
		slog.Any("brokers", brokers),
		slog.String("topic", cfg.KafkaOrderTopic),
	)
	return messaging.NewKafkaPublisher(brokers, cfg.KafkaOrderTopic)
}
