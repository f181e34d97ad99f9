package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"svgass/models"
)

// ErrNoWorkerReply is returned when a worker process ends without sending
// its reply.
var ErrNoWorkerReply = errors.New("worker exited without a reply")

const defaultExitGrace = 5 * time.Second

// ConverterService runs each conversion in a fresh worker process. The
// worker reads one JSON WorkerMessage on stdin and writes one JSON
// WorkerReply on stdout.
type ConverterService struct {
	command   string
	args      []string
	logger    zerolog.Logger
	exitGrace time.Duration
}

func NewConverterService(command string, args []string, logger zerolog.Logger) *ConverterService {
	return &ConverterService{
		command:   command,
		args:      append([]string(nil), args...),
		logger:    logger.With().Str("component", "converter").Logger(),
		exitGrace: defaultExitGrace,
	}
}

// Dispatch sends document and the request's argument vector to a new worker
// and waits for its single reply. The worker is always reaped before
// Dispatch returns; one that lingers after replying is killed.
func (c *ConverterService) Dispatch(ctx context.Context, document string, req models.ConversionRequest) (models.WorkerReply, error) {
	cmd := exec.CommandContext(ctx, c.command, c.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return models.WorkerReply{}, fmt.Errorf("failed to create worker stdin pipe: %w", err)
	}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return models.WorkerReply{}, fmt.Errorf("failed to start worker: %w", err)
	}
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() {
		waitErr := cmd.Wait()
		_ = pw.Close()
		done <- waitErr
	}()

	go func() {
		msg := models.WorkerMessage{Data: document, Argv: req.Argv()}
		if err := json.NewEncoder(stdin).Encode(msg); err != nil {
			c.logger.Debug().Err(err).Int("pid", pid).Msg("worker stopped reading its message")
		}
		_ = stdin.Close()
	}()

	var reply models.WorkerReply
	decodeErr := json.NewDecoder(pr).Decode(&reply)

	// Anything after the reply is not part of the protocol.
	go func() { _, _ = io.Copy(io.Discard, pr) }()

	if decodeErr != nil {
		_ = cmd.Process.Kill()
		waitErr := <-done
		if ctx.Err() != nil {
			return models.WorkerReply{}, ctx.Err()
		}
		detail := lastLine(stderr.String())
		if detail == "" && waitErr != nil {
			detail = waitErr.Error()
		}
		if errors.Is(decodeErr, io.EOF) {
			return models.WorkerReply{}, fmt.Errorf("%w: %s", ErrNoWorkerReply, detail)
		}
		return models.WorkerReply{}, fmt.Errorf("failed to decode worker reply: %w (%s)", decodeErr, detail)
	}

	select {
	case waitErr := <-done:
		if waitErr != nil {
			c.logger.Debug().Err(waitErr).Int("pid", pid).Msg("worker exited with error after replying")
		}
	case <-time.After(c.exitGrace):
		c.logger.Warn().Int("pid", pid).Dur("grace", c.exitGrace).Msg("worker did not exit after replying, killing it")
		_ = cmd.Process.Kill()
		<-done
	}

	return reply, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
