// Command gotoken-cleanup deletes token records whose lifetime has elapsed.
//
// Configuration comes from the environment (and .env). With DATABASE_URL set the
// PostgreSQL store is swept; otherwise REDIS_ADDR selects the Redis store.
//
//	gotoken-cleanup          # run on TOKEN_CLEANUP_SCHEDULE until interrupted
//	gotoken-cleanup -once    # sweep once and exit
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/cleanup"
	"github.com/MrEthical07/goToken/store/postgres"
	"github.com/MrEthical07/goToken/store/redisstore"
)

func main() {
	once := flag.Bool("once", false, "sweep once and exit")
	envFile := flag.String("env", "", "dotenv file to load instead of .env")
	flag.Parse()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := goToken.LoadConfigFromEnv(files...)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger := goToken.NewLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deleter, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open token store")
	}
	defer closeStore()

	sweeper := cleanup.New(deleter, cfg.Tokens.Lifetimes(), logger, cleanup.WithTimeout(cfg.Cleanup.Timeout))

	if *once {
		sweepCtx, cancel := context.WithTimeout(ctx, cfg.Cleanup.Timeout)
		defer cancel()
		if _, err := sweeper.Sweep(sweepCtx); err != nil {
			logger.WithError(err).Error("Token cleanup failed")
			os.Exit(1)
		}
		return
	}

	c := cron.New()
	if _, err := sweeper.Schedule(c, cfg.Cleanup.Schedule); err != nil {
		logger.WithError(err).WithField("schedule", cfg.Cleanup.Schedule).Fatal("Failed to schedule token cleanup job")
	}
	c.Start()
	logger.WithField("schedule", cfg.Cleanup.Schedule).Info("Token cleanup scheduled")

	<-ctx.Done()
	logger.Info("Shutting down token cleanup")
	<-c.Stop().Done()
}

func openStore(ctx context.Context, cfg goToken.Config, logger logrus.FieldLogger) (cleanup.Deleter, func(), error) {
	switch {
	case cfg.Database.URL != "":
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConnections,
			MinConns:        cfg.Database.MinConnections,
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnectTimeout:  cfg.Database.ConnectTimeout,
			ConnectRetries:  cfg.Database.ConnectRetries,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		st := postgres.New(pool, nil)
		if cfg.Database.AutoMigrate {
			if err := st.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return st, pool.Close, nil

	case cfg.Redis.Addr != "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return redisstore.NewStore(client, cfg.Redis.Prefix, nil), func() { _ = client.Close() }, nil

	default:
		return nil, nil, errors.New("DATABASE_URL or REDIS_ADDR must be set")
	}
}
