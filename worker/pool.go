package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"svgass/config"
	"svgass/models"
	"svgass/pipeline"
	"svgass/services"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	maxRetryDelay  = 30 * time.Second
	staleJobAge    = 5 * time.Minute
	recoveryPeriod = 5 * time.Minute
)

// Runner converts one document.
type Runner interface {
	RunProgram(ctx context.Context, document string, req models.ConversionRequest) (pipeline.Result, error)
}

// DocumentStore holds job inputs and outputs.
type DocumentStore interface {
	FetchDocument(ctx context.Context, s3Path string) (string, error)
	UploadSubtitle(ctx context.Context, s3Path string, fragment string) error
}

// StatusRecorder persists conversion state.
type StatusRecorder interface {
	UpdateConversionStatus(ctx context.Context, conversionID int, status string, outputPath string, metadata map[string]interface{}) error
	UpdateConversionError(ctx context.Context, conversionID int, errorMsg string) error
	IncrementRetryCount(ctx context.Context, conversionID int) error
}

type Pool struct {
	config      *config.Config
	redisClient *redis.Client
	runner      Runner
	store       DocumentStore
	dbSvc       StatusRecorder
	logger      zerolog.Logger
	schedule    func(d time.Duration, f func())
}

func NewPool(cfg *config.Config, redisClient *redis.Client, runner Runner, store DocumentStore, dbSvc StatusRecorder, logger zerolog.Logger) *Pool {
	return &Pool{
		config:      cfg,
		redisClient: redisClient,
		runner:      runner,
		store:       store,
		dbSvc:       dbSvc,
		logger:      logger.With().Str("component", "pool").Logger(),
		schedule:    afterFunc,
	}
}

func afterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

func (p *Pool) StartWorker(ctx context.Context, workerID int) {
	logger := p.logger.With().Int("worker", workerID).Logger()
	logger.Info().Msg("starting")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return
		default:
			// Atomic pop from pending and push to processing
			result, err := p.redisClient.BRPopLPush(
				ctx,
				p.config.PendingQueue,
				p.config.ProcessingQueue,
				30*time.Second,
			).Result()

			if err == redis.Nil {
				continue
			}

			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				logger.Error().Err(err).Msg("redis error")
				time.Sleep(5 * time.Second)
				continue
			}

			var job models.ConversionJob
			if err := json.Unmarshal([]byte(result), &job); err != nil {
				logger.Error().Err(err).Msg("failed to parse job")
				// malformed jobs are dropped from processing
				p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, result)
				continue
			}

			p.markStarted(ctx, &job)
			p.processJob(ctx, logger, &job, result)
		}
	}
}

func (p *Pool) processJob(ctx context.Context, logger zerolog.Logger, job *models.ConversionJob, jobJSON string) {
	logger = logger.With().Int("conversion_id", job.ConversionID).Str("document", job.DocumentGUID).Logger()
	logger.Info().Msg("processing conversion")

	if err := p.dbSvc.UpdateConversionStatus(ctx, job.ConversionID, services.StatusProcessing, "", nil); err != nil {
		logger.Error().Err(err).Msg("failed to update DB status")
	}

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = p.config.ConversionTimeout
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	startTime := time.Now()

	document, err := p.store.FetchDocument(timeoutCtx, job.InputS3Path)
	if err != nil {
		p.handleJobFailure(ctx, logger, job, jobJSON, fmt.Sprintf("S3 download failed: %v", err), true)
		return
	}

	result, err := p.runner.RunProgram(timeoutCtx, document, job.Request)
	if err != nil {
		p.handleJobFailure(ctx, logger, job, jobJSON, fmt.Sprintf("Conversion worker failed: %v", err), true)
		return
	}
	if !result.Success {
		// the engine rejects the same input every time
		p.handleJobFailure(ctx, logger, job, jobJSON, result.Output, false)
		return
	}

	if err := p.store.UploadSubtitle(timeoutCtx, job.OutputS3Path, result.Output); err != nil {
		p.handleJobFailure(ctx, logger, job, jobJSON, fmt.Sprintf("S3 upload failed: %v", err), true)
		return
	}

	duration := time.Since(startTime)
	metadata := map[string]interface{}{
		"duration_ms":       duration.Milliseconds(),
		"compression_level": job.Request.CompressionLevel.String(),
		"input_bytes":       result.Stats.InputBytes,
		"optimized_bytes":   result.Stats.OptimizedBytes,
		"output_bytes":      len(result.Output),
	}

	if err := p.dbSvc.UpdateConversionStatus(ctx, job.ConversionID, services.StatusCompleted, job.OutputS3Path, metadata); err != nil {
		logger.Error().Err(err).Msg("failed to update DB to completed")
	}

	p.redisClient.HSet(ctx, statusKey(job.ConversionID), map[string]interface{}{
		"status":     services.StatusCompleted,
		"updated_at": time.Now().Format(time.RFC3339),
	})

	p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, jobJSON)

	logger.Info().Dur("duration", duration).Msg("conversion completed")
}

func (p *Pool) handleJobFailure(ctx context.Context, logger zerolog.Logger, job *models.ConversionJob, jobJSON string, errorMsg string, retryable bool) {
	logger.Warn().Str("error", errorMsg).Bool("retryable", retryable).Msg("conversion failed")

	p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, jobJSON)

	maxRetries := p.maxRetries(job)
	if retryable && job.RetryCount < maxRetries {
		p.dbSvc.IncrementRetryCount(ctx, job.ConversionID)
		job.RetryCount++
		newJobJSON, _ := json.Marshal(job)

		delay := retryDelay(job.RetryCount)
		retry := job.RetryCount
		p.schedule(delay, func() {
			p.redisClient.LPush(context.Background(), p.config.PendingQueue, newJobJSON)
			logger.Info().
				Int("retry", retry).
				Int("max_retries", maxRetries).
				Dur("delay", delay).
				Msg("scheduled retry")
		})
		return
	}

	p.redisClient.LPush(ctx, p.config.FailedQueue, jobJSON)

	p.dbSvc.UpdateConversionStatus(ctx, job.ConversionID, services.StatusFailed, "", nil)
	p.dbSvc.UpdateConversionError(ctx, job.ConversionID, errorMsg)

	p.redisClient.HSet(ctx, statusKey(job.ConversionID), map[string]interface{}{
		"status":     services.StatusFailed,
		"error":      errorMsg,
		"updated_at": time.Now().Format(time.RFC3339),
	})

	logger.Warn().Int("retries", job.RetryCount).Msg("conversion moved to failed queue")
}

func (p *Pool) RecoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(recoveryPeriod)
	defer ticker.Stop()

	logger := p.logger.With().Str("loop", "recovery").Logger()
	logger.Info().Msg("starting stale job recovery loop")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return
		case <-ticker.C:
			p.recoverStaleJobs(ctx, logger)
		}
	}
}

func (p *Pool) recoverStaleJobs(ctx context.Context, logger zerolog.Logger) {
	jobs, err := p.redisClient.LRange(ctx, p.config.ProcessingQueue, 0, -1).Result()
	if err != nil {
		logger.Error().Err(err).Msg("failed to get processing queue")
		return
	}

	now := time.Now()
	recovered := 0
	for _, jobJSON := range jobs {
		var job models.ConversionJob
		if err := json.Unmarshal([]byte(jobJSON), &job); err != nil {
			continue
		}

		startedAt, ok := p.startedAt(ctx, &job)
		if !ok {
			// popped but never stamped; measure from the first sighting
			p.markStarted(ctx, &job)
			continue
		}
		if !isStale(startedAt, now) {
			continue
		}

		p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, jobJSON)

		if job.RetryCount < p.maxRetries(&job) {
			job.RetryCount++
			newJobJSON, _ := json.Marshal(job)
			p.redisClient.LPush(ctx, p.config.PendingQueue, newJobJSON)
			p.dbSvc.IncrementRetryCount(ctx, job.ConversionID)
			recovered++
		} else {
			p.redisClient.LPush(ctx, p.config.FailedQueue, jobJSON)
			p.dbSvc.UpdateConversionStatus(ctx, job.ConversionID, services.StatusFailed, "", nil)
			p.dbSvc.UpdateConversionError(ctx, job.ConversionID, "Job timeout - exceeded 5 minutes")
		}
	}

	if recovered > 0 {
		logger.Info().Int("recovered", recovered).Msg("recovered stale jobs")
	}
}

// markStarted records when the current attempt of job entered processing.
func (p *Pool) markStarted(ctx context.Context, job *models.ConversionJob) {
	p.redisClient.HSet(ctx, statusKey(job.ConversionID), map[string]interface{}{
		"status":     services.StatusProcessing,
		"attempt":    job.RetryCount,
		"started_at": time.Now().Format(time.RFC3339Nano),
	})
}

// startedAt reports the processing start of job's current attempt. A stamp
// left by an earlier attempt does not count.
func (p *Pool) startedAt(ctx context.Context, job *models.ConversionJob) (time.Time, bool) {
	fields, err := p.redisClient.HGetAll(ctx, statusKey(job.ConversionID)).Result()
	if err != nil {
		return time.Time{}, false
	}
	attempt, err := strconv.Atoi(fields["attempt"])
	if err != nil || attempt != job.RetryCount {
		return time.Time{}, false
	}
	startedAt, err := time.Parse(time.RFC3339Nano, fields["started_at"])
	if err != nil {
		return time.Time{}, false
	}
	return startedAt, true
}

func (p *Pool) maxRetries(job *models.ConversionJob) int {
	if job.MaxRetries > 0 {
		return job.MaxRetries
	}
	return p.config.MaxRetries
}

func statusKey(conversionID int) string {
	return fmt.Sprintf("svgass:status:%d", conversionID)
}

// retryDelay is exponential in the attempt number, capped at maxRetryDelay.
func retryDelay(attempt int) time.Duration {
	if attempt > 16 {
		return maxRetryDelay
	}
	delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func isStale(startedAt, now time.Time) bool {
	return now.Sub(startedAt) > staleJobAge
}
