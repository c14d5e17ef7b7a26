package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/storegen/backend/internal/domain/store"
)

// TranscodeRequest asks the media backend for one variant of one source
type TranscodeRequest struct {
	SourceURL string          `json:"source_url"`
	Kind      store.AssetKind `json:"kind"`
	Format    string          `json:"format"`
	Width     int             `json:"width"`
	Quality   int             `json:"quality"`
}

// TranscodeResult carries the derived payload and the measured sizes
type TranscodeResult struct {
	Payload     []byte
	SourceBytes int64
	ContentType string
}

// Transcoder converts a source asset into one derived variant. The
// backend is an external, rate-limited service; calls carry the
// caller's context so per-call timeouts apply.
type Transcoder interface {
	Transcode(ctx context.Context, req TranscodeRequest) (*TranscodeResult, error)
}

// HTTPTranscoderConfig holds the media backend connection settings
type HTTPTranscoderConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTPTranscoder calls a remote transcoding service over HTTP
type HTTPTranscoder struct {
	config HTTPTranscoderConfig
	client *http.Client
}

// NewHTTPTranscoder creates a transcoder client
func NewHTTPTranscoder(cfg HTTPTranscoderConfig) *HTTPTranscoder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &HTTPTranscoder{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Transcode posts the variant spec and returns the derived payload.
// The backend reports the source size in X-Source-Bytes so callers can
// measure compression without re-fetching the source.
func (t *HTTPTranscoder) Transcode(ctx context.Context, req TranscodeRequest) (*TranscodeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.Endpoint+"/v1/transcode", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("transcode backend returned %d: %s", resp.StatusCode, string(detail))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading transcode payload: %w", err)
	}

	var sourceBytes int64
	fmt.Sscanf(resp.Header.Get("X-Source-Bytes"), "%d", &sourceBytes)

	return &TranscodeResult{
		Payload:     payload,
		SourceBytes: sourceBytes,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
