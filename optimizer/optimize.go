package optimizer

import (
	"context"

	"github.com/rs/zerolog"
)

// Engine runs a profile over an SVG document.
type Engine interface {
	Optimize(ctx context.Context, document string, profile Profile) (Result, error)
}

// Result is what the engine hands back. Data is empty when the engine
// produced nothing usable.
type Result struct {
	Data string
}

// Optimize applies profile through engine. The original document is
// returned unchanged when there is no engine, the engine fails, or its
// output is empty.
func Optimize(ctx context.Context, engine Engine, document string, profile Profile, logger zerolog.Logger) string {
	if engine == nil {
		return document
	}

	result, err := engine.Optimize(ctx, document, profile)
	if err != nil {
		logger.Debug().Err(err).Msg("optimization failed, using original document")
		return document
	}
	if result.Data == "" {
		logger.Debug().Msg("optimizer returned no output, using original document")
		return document
	}
	return result.Data
}
