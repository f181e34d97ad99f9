// Package pipeline sequences optimization, conversion and post-processing
// for a single request.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"svgass/models"
	"svgass/optimizer"
)

// Dispatcher hands a document to a conversion worker and returns its reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, document string, req models.ConversionRequest) (models.WorkerReply, error)
}

// DocumentSource yields the document to convert, typically the host's
// active document.
type DocumentSource interface {
	FetchActiveDocument(ctx context.Context) (string, error)
}

// Result is the outcome of one conversion. Output is the converted
// fragment when Success is set and the engine's diagnostics otherwise.
type Result struct {
	Output  string
	Success bool
	Status  int
	Stats   Stats
}

// Stats describes one run.
type Stats struct {
	InputBytes     int
	OptimizedBytes int
	Duration       time.Duration
}

type Pipeline struct {
	engine     optimizer.Engine
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// New builds a pipeline. engine may be nil, in which case documents reach
// the converter unoptimized.
func New(engine optimizer.Engine, dispatcher Dispatcher, logger zerolog.Logger) *Pipeline {
	return &Pipeline{engine: engine, dispatcher: dispatcher, logger: logger}
}

// RunProgram optimizes document according to req, converts it and
// post-processes the output. A conversion the engine rejects is not an
// error: it comes back with Success unset. The error is reserved for
// failing to get a reply from the worker at all.
func (p *Pipeline) RunProgram(ctx context.Context, document string, req models.ConversionRequest) (Result, error) {
	start := time.Now()
	logger := p.logger.With().
		Str("request_id", uuid.NewString()).
		Str("compression", req.CompressionLevel.String()).
		Logger()

	stats := Stats{InputBytes: len(document), OptimizedBytes: len(document)}
	if req.CompressionLevel != models.CompressionNone {
		profile := optimizer.BuildProfile(req.CompressionLevel)
		document = optimizer.Optimize(ctx, p.engine, document, profile, logger)
		stats.OptimizedBytes = len(document)
	}

	reply, err := p.dispatcher.Dispatch(ctx, document, req)
	if err != nil {
		logger.Error().Err(err).Msg("conversion worker failed")
		return Result{}, fmt.Errorf("conversion dispatch failed: %w", err)
	}
	stats.Duration = time.Since(start)

	result := Result{Status: reply.Status, Stats: stats}
	if reply.Succeeded() {
		result.Success = true
		result.Output = Postprocess(reply.Stdout, req.AddPosTag)
	} else {
		result.Output = strings.Join(reply.Stderr, lineSeparator)
	}

	logger.Info().
		Int("status", reply.Status).
		Int("input_bytes", stats.InputBytes).
		Int("optimized_bytes", stats.OptimizedBytes).
		Dur("duration", stats.Duration).
		Msg("conversion finished")
	return result, nil
}

// Converter is the public entry point: it pulls the active document from
// the host and runs it through the pipeline.
type Converter struct {
	source   DocumentSource
	pipeline *Pipeline
}

func NewConverter(source DocumentSource, pipeline *Pipeline) *Converter {
	return &Converter{source: source, pipeline: pipeline}
}

func (c *Converter) Convert(ctx context.Context, req models.ConversionRequest) (Result, error) {
	document, err := c.source.FetchActiveDocument(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch active document: %w", err)
	}
	return c.pipeline.RunProgram(ctx, document, req)
}
