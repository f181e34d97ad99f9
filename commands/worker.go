package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"svgass/services"
	"svgass/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume conversion jobs from the Redis queue",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger.Info().Msg("starting svgass conversion worker")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info().Msg("connected to Redis")

	dbSvc, err := services.NewDatabaseService(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dbSvc.Close()
	logger.Info().Msg("connected to database")

	pool := worker.NewPool(cfg, redisClient, newPipeline(), services.NewS3Service(cfg), dbSvc, logger)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			pool.StartWorker(ctx, workerID)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.RecoveryLoop(ctx)
	}()

	logger.Info().
		Int("workers", cfg.WorkerCount).
		Str("queue", cfg.PendingQueue).
		Str("converter", cfg.ConverterCommand).
		Msg("ready to process conversions")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutdown signal received, stopping workers")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all workers stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timeout, forcing exit")
	}
	return nil
}
