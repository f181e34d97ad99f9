package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svgass/models"
	"svgass/optimizer"
)

type fakeDispatcher struct {
	reply    models.WorkerReply
	err      error
	document string
	req      models.ConversionRequest
	calls    int
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, document string, req models.ConversionRequest) (models.WorkerReply, error) {
	f.calls++
	f.document = document
	f.req = req
	return f.reply, f.err
}

type fakeEngine struct {
	data    string
	err     error
	profile optimizer.Profile
	calls   int
}

func (f *fakeEngine) Optimize(ctx context.Context, document string, profile optimizer.Profile) (optimizer.Result, error) {
	f.calls++
	f.profile = profile
	return optimizer.Result{Data: f.data}, f.err
}

type fakeSource struct {
	document string
	err      error
}

func (f fakeSource) FetchActiveDocument(ctx context.Context) (string, error) {
	return f.document, f.err
}

const inputDoc = `<svg xmlns="http://www.w3.org/2000/svg"><path d="M0.1234 0.5678 L10 10"/></svg>`

func TestPostprocess(t *testing.T) {
	lines := []string{"a,,{b", "c"}

	assert.Equal(t, "a,,{\\pos(0,0)b\r\nc", Postprocess(lines, true))
	assert.Equal(t, "a,,{b\r\nc", Postprocess(lines, false))
	assert.Equal(t, "x,,{\\pos(0,0)1,,{\\pos(0,0)2", Postprocess([]string{"x,,{1,,{2"}, true))
	assert.Equal(t, "", Postprocess(nil, true))
}

func TestRunProgram_Success(t *testing.T) {
	dispatcher := &fakeDispatcher{reply: models.WorkerReply{Status: 0, Stdout: []string{"a,,{b", "c"}}}
	engine := &fakeEngine{data: "<svg/>"}
	p := New(engine, dispatcher, zerolog.Nop())

	req := models.DefaultConversionRequest()
	result, err := p.RunProgram(context.Background(), inputDoc, req)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "a,,{\\pos(0,0)b\r\nc", result.Output)
	assert.Equal(t, "<svg/>", dispatcher.document)
	assert.Equal(t, req, dispatcher.req)
	assert.Equal(t, len(inputDoc), result.Stats.InputBytes)
	assert.Equal(t, len("<svg/>"), result.Stats.OptimizedBytes)
	assert.Equal(t, optimizer.BuildProfile(models.CompressionMedium), engine.profile)
}

func TestRunProgram_NoPosTag(t *testing.T) {
	dispatcher := &fakeDispatcher{reply: models.WorkerReply{Status: 0, Stdout: []string{"a,,{b", "c"}}}
	p := New(nil, dispatcher, zerolog.Nop())

	req := models.DefaultConversionRequest()
	req.AddPosTag = false
	result, err := p.RunProgram(context.Background(), inputDoc, req)
	require.NoError(t, err)

	assert.Equal(t, "a,,{b\r\nc", result.Output)
}

func TestRunProgram_EngineFailureReturnsDiagnostics(t *testing.T) {
	dispatcher := &fakeDispatcher{reply: models.WorkerReply{Status: 1, Stderr: []string{"err1", "err2"}, Stdout: []string{"ignored"}}}
	p := New(nil, dispatcher, zerolog.Nop())

	result, err := p.RunProgram(context.Background(), inputDoc, models.DefaultConversionRequest())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Status)
	assert.Equal(t, "err1\r\nerr2", result.Output)
}

func TestRunProgram_OptimizerWithoutOutputPassesDocumentThrough(t *testing.T) {
	for name, engine := range map[string]*fakeEngine{
		"empty":  {},
		"failed": {data: "<svg/>", err: errors.New("boom")},
	} {
		t.Run(name, func(t *testing.T) {
			dispatcher := &fakeDispatcher{reply: models.WorkerReply{Status: 0}}
			p := New(engine, dispatcher, zerolog.Nop())

			_, err := p.RunProgram(context.Background(), inputDoc, models.DefaultConversionRequest())
			require.NoError(t, err)
			assert.Equal(t, inputDoc, dispatcher.document)
			assert.Equal(t, 1, engine.calls)
		})
	}
}

func TestRunProgram_NoCompressionSkipsOptimizer(t *testing.T) {
	engine := &fakeEngine{data: "<svg/>"}
	dispatcher := &fakeDispatcher{reply: models.WorkerReply{Status: 0}}
	p := New(engine, dispatcher, zerolog.Nop())

	req := models.DefaultConversionRequest()
	req.CompressionLevel = models.CompressionNone
	_, err := p.RunProgram(context.Background(), inputDoc, req)
	require.NoError(t, err)

	assert.Zero(t, engine.calls)
	assert.Equal(t, inputDoc, dispatcher.document)
}

func TestRunProgram_CompatibilityProfile(t *testing.T) {
	engine := &fakeEngine{data: "<svg/>"}
	p := New(engine, &fakeDispatcher{}, zerolog.Nop())

	req := models.DefaultConversionRequest()
	req.CompressionLevel = models.CompressionCompatibilityOnly
	_, err := p.RunProgram(context.Background(), inputDoc, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"inlineStyles", "convertStyleToAttrs"}, engine.profile.Active())
}

func TestRunProgram_DispatchError(t *testing.T) {
	dispatcher := &fakeDispatcher{err: errors.New("worker crashed")}
	p := New(nil, dispatcher, zerolog.Nop())

	_, err := p.RunProgram(context.Background(), inputDoc, models.DefaultConversionRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker crashed")
}

func TestConverter_Convert(t *testing.T) {
	dispatcher := &fakeDispatcher{reply: models.WorkerReply{Status: 0, Stdout: []string{"Dialogue: 0,0:00:00.00,0:00:01.00,Default,Sign,0,0,0,,{\\p1}m 0 0 l 10 10"}}}
	p := New(nil, dispatcher, zerolog.Nop())

	conv := NewConverter(fakeSource{document: inputDoc}, p)
	result, err := conv.Convert(context.Background(), models.DefaultConversionRequest())
	require.NoError(t, err)
	assert.Equal(t, inputDoc, dispatcher.document)
	assert.Contains(t, result.Output, ",,{\\pos(0,0)\\p1}")

	failing := NewConverter(fakeSource{err: context.Canceled}, p)
	_, err = failing.Convert(context.Background(), models.DefaultConversionRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, dispatcher.calls)
}
