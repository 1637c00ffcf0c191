package generate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/shannn1/echolab-final/logger"
)

// audioToAudioPath is the provider's audio-to-audio endpoint.
const audioToAudioPath = "/v2beta/audio/stable-audio-2/audio-to-audio"

// maxErrorDetail caps how much of a provider error body is retained.
const maxErrorDetail = 2048

// ClientConfig is the explicit configuration of a provider client. There is
// no ambient global state; every service holds its own constructed client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Timeout must stay generous: generation routinely takes tens of
	// seconds and must not be confused with a hung connection.
	Timeout time.Duration
}

// Client calls the external audio generation provider.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a provider client. A zero Timeout defaults to two minutes.
func NewClient(config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Generate forwards the sample and parameters to the provider and returns the
// synthesized audio bytes. Provider failures come back as *GenerationError
// with stage "provider"; the provider credential never appears in errors.
func (c *Client) Generate(ctx context.Context, req *Request) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio form part: %w", err)
	}
	if _, err := part.Write(req.AudioData); err != nil {
		return nil, fmt.Errorf("failed to write audio form part: %w", err)
	}

	fields := map[string]string{
		"prompt":        req.Prompt,
		"duration":      strconv.Itoa(req.Duration),
		"output_format": req.OutputFormat,
		"steps":         strconv.Itoa(req.Steps),
		"cfg_scale":     strconv.FormatFloat(req.CfgScale, 'f', -1, 64),
		"strength":      strconv.FormatFloat(req.Strength, 'f', -1, 64),
	}
	if req.Seed != "" {
		fields["seed"] = req.Seed
	}
	for key, val := range fields {
		if err := writer.WriteField(key, val); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+audioToAudioPath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Accept", "audio/*")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GenerationError{Stage: StageProvider, Detail: "provider request failed", cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorDetail))
		logger.Error("[Generate] provider returned error",
			logger.Int("status", resp.StatusCode),
			logger.String("detail", string(detail)))
		return nil, &GenerationError{
			Stage:  StageProvider,
			Status: resp.StatusCode,
			Detail: string(detail),
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GenerationError{Stage: StageProvider, Detail: "failed to read provider response", cause: err}
	}
	return audio, nil
}
