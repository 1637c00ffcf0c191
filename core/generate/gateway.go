package generate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shannn1/echolab-final/logger"

	"github.com/google/uuid"
)

// Generation parameter defaults, matching what the web client sends.
const (
	DefaultDuration     = 30
	DefaultOutputFormat = "mp3"
	DefaultSteps        = 50
	DefaultCfgScale     = 7.0
	DefaultStrength     = 0.75
)

// ErrInvalidInput is returned before any provider call when the request is
// missing its audio sample or prompt.
var ErrInvalidInput = errors.New("audio sample and prompt are required")

// GenerationError stages, kept for diagnostics. Callers see a single
// failure kind either way.
const (
	StageProvider = "provider"
	StageStorage  = "storage"
)

// GenerationError reports a failed generation attempt. Stage distinguishes
// provider from storage failures for logging; HTTP handlers map both to the
// same user-facing error.
type GenerationError struct {
	Stage  string
	Status int
	Detail string
	cause  error
}

func (e *GenerationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("generation failed at %s stage: status %d", e.Stage, e.Status)
	}
	return fmt.Sprintf("generation failed at %s stage: %s", e.Stage, e.Detail)
}

func (e *GenerationError) Unwrap() error {
	return e.cause
}

// Request carries one generation call's sample and parameters.
type Request struct {
	AudioData    []byte
	Filename     string
	Prompt       string
	Duration     int
	OutputFormat string
	Steps        int
	CfgScale     float64
	Strength     float64
	Seed         string
}

// ApplyDefaults fills unset numeric parameters with the client defaults.
func (r *Request) ApplyDefaults() {
	if r.Duration <= 0 {
		r.Duration = DefaultDuration
	}
	if r.OutputFormat == "" {
		r.OutputFormat = DefaultOutputFormat
	}
	if r.Steps <= 0 {
		r.Steps = DefaultSteps
	}
	if r.CfgScale <= 0 {
		r.CfgScale = DefaultCfgScale
	}
	if r.Strength <= 0 {
		r.Strength = DefaultStrength
	}
	if r.Filename == "" {
		r.Filename = "sample.mp3"
	}
}

// Uploader stores a generated artifact and returns its public URL.
// *storage.Store satisfies this.
type Uploader interface {
	UploadAudio(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error)
}

// Provider produces audio from a sample and parameters. *Client satisfies
// this; tests substitute fakes.
type Provider interface {
	Generate(ctx context.Context, req *Request) ([]byte, error)
}

// Gateway orchestrates a generation round trip: validate, call the provider,
// persist the result to object storage, hand back the location. It performs
// no signal processing of its own.
type Gateway struct {
	provider Provider
	store    Uploader
	prefix   string
}

// NewGateway wires a provider and an object store together.
func NewGateway(provider Provider, store Uploader, prefix string) *Gateway {
	if prefix == "" {
		prefix = "generated"
	}
	return &Gateway{provider: provider, store: store, prefix: prefix}
}

// Generate runs one generation and returns the stored artifact's public URL.
// Validation failures return ErrInvalidInput without contacting the provider.
// Partial failure (provider succeeded, upload failed) is reported as failure;
// the caller must not treat it as success.
func (g *Gateway) Generate(ctx context.Context, req *Request) (string, error) {
	if len(req.AudioData) == 0 || req.Prompt == "" {
		return "", ErrInvalidInput
	}
	req.ApplyDefaults()

	audio, err := g.provider.Generate(ctx, req)
	if err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("%s/%d-%s.%s", g.prefix, time.Now().UnixMilli(), uuid.NewString(), req.OutputFormat)
	contentType := "audio/mpeg"
	if req.OutputFormat == "wav" {
		contentType = "audio/wav"
	}

	url, err := g.store.UploadAudio(ctx, objectName, bytes.NewReader(audio), int64(len(audio)), contentType)
	if err != nil {
		logger.Error("[Generate] storing generated audio failed",
			logger.String("object", objectName),
			logger.ErrorField(err))
		return "", &GenerationError{Stage: StageStorage, Detail: "failed to store generated audio", cause: err}
	}

	logger.Info("[Generate] generation complete",
		logger.String("object", objectName),
		logger.Int("bytes", len(audio)))
	return url, nil
}
