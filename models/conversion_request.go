package models

import (
	"fmt"
	"strconv"
	"strings"
)

// CompressionLevel selects how aggressively a document is simplified before
// conversion. Values match the selector exposed to users.
type CompressionLevel int

const (
	// CompressionNone skips the optimization pass entirely.
	CompressionNone CompressionLevel = iota
	// CompressionCompatibilityOnly runs only the steps the converter needs.
	CompressionCompatibilityOnly
	CompressionSmall
	CompressionMedium
	CompressionStrong
)

var compressionLevelNames = map[CompressionLevel]string{
	CompressionNone:              "none",
	CompressionCompatibilityOnly: "compatibility",
	CompressionSmall:             "small",
	CompressionMedium:            "medium",
	CompressionStrong:            "strong",
}

func (l CompressionLevel) String() string {
	if name, ok := compressionLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the declared levels.
func (l CompressionLevel) Valid() bool {
	_, ok := compressionLevelNames[l]
	return ok
}

// ParseCompressionLevel accepts either the numeric selector or a level name.
func ParseCompressionLevel(s string) (CompressionLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		level := CompressionLevel(n)
		if !level.Valid() {
			return 0, fmt.Errorf("compression level %d out of range", n)
		}
		return level, nil
	}
	for level, name := range compressionLevelNames {
		if name == s {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown compression level %q", s)
}

// ConversionRequest carries the user-supplied parameters of one conversion.
// Values are forwarded to the conversion engine without validation.
type ConversionRequest struct {
	StartTime        string           `json:"startTime"`
	EndTime          string           `json:"endTime"`
	InitialLayer     int              `json:"initialLayer"`
	Style            string           `json:"style"`
	Actor            string           `json:"actor"`
	AddPosTag        bool             `json:"addPosTag"`
	CompressionLevel CompressionLevel `json:"compressionLevel"`
}

// DefaultConversionRequest returns the parameters a fresh form starts with.
func DefaultConversionRequest() ConversionRequest {
	return ConversionRequest{
		StartTime:        "0:00:00.00",
		EndTime:          "0:00:01.00",
		InitialLayer:     0,
		Style:            "Default",
		Actor:            "Sign",
		AddPosTag:        true,
		CompressionLevel: CompressionMedium,
	}
}

// Argv builds the worker argument vector. The order is part of the
// conversion engine's contract.
func (r ConversionRequest) Argv() []any {
	return []any{
		"-L", r.InitialLayer,
		"-S", r.StartTime,
		"-E", r.EndTime,
		"-A", r.Actor,
		"-T", r.Style,
	}
}
