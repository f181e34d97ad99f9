package models

import "time"

// ConversionJob is the queue payload for a batch conversion: an SVG stored
// in S3 converted into an ASS fragment written back to S3.
type ConversionJob struct {
	ConversionID int               `json:"conversionId"`
	DocumentGUID string            `json:"documentGuid"`
	InputS3Path  string            `json:"inputS3Path"`
	OutputS3Path string            `json:"outputS3Path"`
	Request      ConversionRequest `json:"request"`
	RetryCount   int               `json:"retryCount"`
	MaxRetries   int               `json:"maxRetries"`
	CreatedAt    time.Time         `json:"createdAt"`
	Timeout      int               `json:"timeout"`
}
