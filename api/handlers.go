// Package api exposes the conversion pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"svgass/models"
	"svgass/pipeline"
	"svgass/services"
)

const (
	defaultMaxDocumentBytes = 32 * 1024 * 1024
	// StatusHeader carries the conversion worker's exit status.
	StatusHeader = "X-Conversion-Status"
)

// Runner converts one document.
type Runner interface {
	RunProgram(ctx context.Context, document string, req models.ConversionRequest) (pipeline.Result, error)
}

type App struct {
	logger zerolog.Logger
	router *chi.Mux
	runner Runner

	maxDocumentBytes int64
}

func NewApp(logger zerolog.Logger, runner Runner, maxDocumentBytes int64) *App {
	if maxDocumentBytes <= 0 {
		maxDocumentBytes = defaultMaxDocumentBytes
	}

	app := &App{
		logger:           logger.With().Str("component", "api").Logger(),
		router:           chi.NewRouter(),
		runner:           runner,
		maxDocumentBytes: maxDocumentBytes,
	}
	app.registerRoutes()
	return app
}

func (a *App) Router() http.Handler {
	return a.router
}

func (a *App) registerRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(middleware.Recoverer)

	a.router.Post("/convert", a.convert)
	a.router.Get("/healthz", a.health)
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "timestamp": time.Now().Format(time.RFC3339)})
}

// convert reads the SVG from the body and the request fields from the query.
// Missing fields fall back to the form defaults.
func (a *App) convert(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxDocumentBytes))
	if err != nil {
		http.Error(w, "document too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}
	if len(body) == 0 {
		http.Error(w, "document is required", http.StatusBadRequest)
		return
	}

	result, err := a.runner.RunProgram(r.Context(), services.DecodeUTF8(body), req)
	if err != nil {
		a.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("conversion failed")
		http.Error(w, "conversion worker unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(StatusHeader, strconv.Itoa(result.Status))
	if result.Success {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	_, _ = io.WriteString(w, result.Output)
}

func requestFromQuery(r *http.Request) (models.ConversionRequest, error) {
	req := models.DefaultConversionRequest()
	q := r.URL.Query()

	if q.Has("start") {
		req.StartTime = q.Get("start")
	}
	if q.Has("end") {
		req.EndTime = q.Get("end")
	}
	if q.Has("style") {
		req.Style = q.Get("style")
	}
	if q.Has("actor") {
		req.Actor = q.Get("actor")
	}
	if v := q.Get("layer"); v != "" {
		layer, err := strconv.Atoi(v)
		if err != nil {
			return req, &queryError{param: "layer", err: err}
		}
		req.InitialLayer = layer
	}
	if v := q.Get("pos"); v != "" {
		pos, err := strconv.ParseBool(v)
		if err != nil {
			return req, &queryError{param: "pos", err: err}
		}
		req.AddPosTag = pos
	}
	if v := q.Get("level"); v != "" {
		level, err := models.ParseCompressionLevel(v)
		if err != nil {
			return req, &queryError{param: "level", err: err}
		}
		req.CompressionLevel = level
	}
	return req, nil
}

type queryError struct {
	param string
	err   error
}

func (e *queryError) Error() string {
	return "invalid " + e.param + ": " + e.err.Error()
}

func (e *queryError) Unwrap() error {
	return e.err
}
