package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"svgass/optimizer"
)

// OptimizerService talks to an HTTP optimization service that accepts an
// SVG plus a step profile and answers with the optimized SVG.
type OptimizerService struct {
	baseURL string
	client  *http.Client
}

var _ optimizer.Engine = (*OptimizerService)(nil)

func NewOptimizerService(baseURL string) *OptimizerService {
	return &OptimizerService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 0, // Use context timeout instead
		},
	}
}

func (o *OptimizerService) Optimize(ctx context.Context, document string, profile optimizer.Profile) (optimizer.Result, error) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return optimizer.Result{}, fmt.Errorf("failed to encode profile: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("files", "document.svg")
	if err != nil {
		return optimizer.Result{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.WriteString(part, document); err != nil {
		return optimizer.Result{}, fmt.Errorf("failed to write document: %w", err)
	}

	if err := writer.WriteField("profile", string(profileJSON)); err != nil {
		return optimizer.Result{}, fmt.Errorf("failed to write profile: %w", err)
	}

	if err := writer.Close(); err != nil {
		return optimizer.Result{}, fmt.Errorf("failed to close writer: %w", err)
	}

	url := fmt.Sprintf("%s/optimize", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return optimizer.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		return optimizer.Result{}, fmt.Errorf("optimizer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return optimizer.Result{}, fmt.Errorf("optimizer returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return optimizer.Result{}, fmt.Errorf("failed to read optimizer response: %w", err)
	}
	return optimizer.Result{Data: string(data)}, nil
}
