package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svgass/models"
)

const helperEnv = "SVGASS_HELPER_WORKER"

// TestHelperWorker is not a real test. It is the worker process spawned by
// the converter tests.
func TestHelperWorker(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}

	var msg models.WorkerMessage
	if err := json.NewDecoder(os.Stdin).Decode(&msg); err != nil {
		fmt.Fprintf(os.Stderr, "bad message: %v\n", err)
		os.Exit(2)
	}

	var reply models.WorkerReply
	switch mode {
	case "echo", "linger":
		argv, _ := json.Marshal(msg.Argv)
		reply = models.WorkerReply{Status: 0, Stdout: []string{msg.Data, string(argv)}}
	case "fail":
		reply = models.WorkerReply{Status: 1, Stderr: []string{"err1", "err2"}}
	case "silent":
		fmt.Fprintln(os.Stderr, "svg2ass: unsupported element <filter>")
		os.Exit(3)
	case "garbage":
		fmt.Fprintln(os.Stdout, "Dialogue: not json")
		os.Exit(0)
	}

	_ = json.NewEncoder(os.Stdout).Encode(reply)
	if mode == "linger" {
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

func helperConverter(t *testing.T, mode string) *ConverterService {
	t.Helper()
	t.Setenv(helperEnv, mode)
	return NewConverterService(os.Args[0], []string{"-test.run=^TestHelperWorker$"}, zerolog.Nop())
}

func testRequest() models.ConversionRequest {
	req := models.DefaultConversionRequest()
	req.InitialLayer = 2
	req.Actor = `Sign "quoted"`
	return req
}

func TestConverterService_DispatchSendsDocumentAndArgv(t *testing.T) {
	svc := helperConverter(t, "echo")
	const doc = "<svg>\n<path d=\"M0 0L10 10\"/>\n</svg>"

	reply, err := svc.Dispatch(context.Background(), doc, testRequest())
	require.NoError(t, err)

	assert.True(t, reply.Succeeded())
	require.Len(t, reply.Stdout, 2)
	assert.Equal(t, doc, reply.Stdout[0])
	assert.JSONEq(t, `["-L",2,"-S","0:00:00.00","-E","0:00:01.00","-A","Sign \"quoted\"","-T","Default"]`, reply.Stdout[1])
}

func TestConverterService_DispatchFailureReply(t *testing.T) {
	svc := helperConverter(t, "fail")

	reply, err := svc.Dispatch(context.Background(), "<svg/>", testRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, reply.Status)
	assert.Equal(t, []string{"err1", "err2"}, reply.Stderr)
}

func TestConverterService_DispatchNoReply(t *testing.T) {
	svc := helperConverter(t, "silent")

	_, err := svc.Dispatch(context.Background(), "<svg/>", testRequest())
	require.ErrorIs(t, err, ErrNoWorkerReply)
	assert.Contains(t, err.Error(), "unsupported element")
}

func TestConverterService_DispatchGarbageReply(t *testing.T) {
	svc := helperConverter(t, "garbage")

	_, err := svc.Dispatch(context.Background(), "<svg/>", testRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoWorkerReply)
}

func TestConverterService_KillsLingeringWorker(t *testing.T) {
	svc := helperConverter(t, "linger")
	svc.exitGrace = 50 * time.Millisecond

	start := time.Now()
	reply, err := svc.Dispatch(context.Background(), "<svg/>", testRequest())
	require.NoError(t, err)
	assert.True(t, reply.Succeeded())
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestConverterService_MissingExecutable(t *testing.T) {
	svc := NewConverterService("./definitely-not-a-worker", nil, zerolog.Nop())

	_, err := svc.Dispatch(context.Background(), "<svg/>", testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start worker")
}
