package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversionRequestArgv(t *testing.T) {
	req := ConversionRequest{
		StartTime:    "0:00:05.00",
		EndTime:      "0:00:07.50",
		InitialLayer: 3,
		Style:        "Sign; Top",
		Actor:        "",
	}

	argv := req.Argv()

	require.Len(t, argv, 10)
	assert.Equal(t, []any{
		"-L", 3,
		"-S", "0:00:05.00",
		"-E", "0:00:07.50",
		"-A", "",
		"-T", "Sign; Top",
	}, argv)
}

func TestDefaultConversionRequest(t *testing.T) {
	req := DefaultConversionRequest()

	assert.Equal(t, CompressionMedium, req.CompressionLevel)
	assert.True(t, req.AddPosTag)
	assert.Equal(t, "Sign", req.Actor)
	assert.Equal(t, "Default", req.Style)
}

func TestParseCompressionLevel(t *testing.T) {
	cases := map[string]CompressionLevel{
		"0":              CompressionNone,
		"1":              CompressionCompatibilityOnly,
		"4":              CompressionStrong,
		"Medium":         CompressionMedium,
		" compatibility": CompressionCompatibilityOnly,
	}
	for in, want := range cases {
		got, err := ParseCompressionLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"5", "-1", "ultra"} {
		_, err := ParseCompressionLevel(in)
		assert.Error(t, err, in)
	}
}

func TestWorkerReplySucceeded(t *testing.T) {
	assert.True(t, WorkerReply{Status: 0}.Succeeded())
	assert.False(t, WorkerReply{Status: 2}.Succeeded())
}
