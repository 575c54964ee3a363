// Package museapi is a thin client for the Muse generation API. Submission
// returns a correlation id; results arrive later through the callback URL or
// through Status polling. The client deliberately knows nothing about track
// records — it translates wire payloads and nothing else.
package museapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tunesmith/internal/infra"
)

// Options controls how the Muse client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client provides access to the Muse generation endpoints.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// SubmitRequest describes one generation submission.
type SubmitRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	Instrumental bool   `json:"instrumental,omitempty"`
	CallbackURL  string `json:"callback_url,omitempty"`
}

// SubmitResponse carries the provider correlation id for a submission.
type SubmitResponse struct {
	GenerationID string `json:"generation_id"`
}

// TrackResult is one produced output inside a status response.
type TrackResult struct {
	AudioURL string  `json:"audio_url"`
	Title    string  `json:"title"`
	Tags     string  `json:"tags"`
	Duration float64 `json:"duration"`
}

// StatusResponse is the provider's coarse view of a generation.
type StatusResponse struct {
	GenerationID string        `json:"generation_id"`
	State        string        `json:"state"`
	Tracks       []TrackResult `json:"tracks"`
	AssetURL     string        `json:"asset_url"`
	ErrorMessage string        `json:"error"`
}

// Provider states observed in status responses.
const (
	StateComplete   = "complete"
	StateProcessing = "processing"
	StatePending    = "pending"
	StateFailed     = "failed"
	StateRejected   = "rejected"
)

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Muse client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.museapi.dev/v2"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}, nil
}

// Submit enqueues one generation and returns its correlation id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.invoke(ctx, http.MethodPost, "/generate", req, &resp); err != nil {
		return nil, err
	}
	if resp.GenerationID == "" {
		return nil, fmt.Errorf("muse: submission returned no generation id")
	}
	c.logger.Debug().Str("generation_id", resp.GenerationID).Msg("muse: submitted generation")
	return &resp, nil
}

// Status queries the current coarse state of a generation.
func (c *Client) Status(ctx context.Context, generationID string) (*StatusResponse, error) {
	if strings.TrimSpace(generationID) == "" {
		return nil, fmt.Errorf("muse: generation id is required")
	}
	var resp StatusResponse
	path := "/generate/" + url.PathEscape(generationID)
	if err := c.invoke(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.GenerationID == "" {
		resp.GenerationID = generationID
	}
	return &resp, nil
}

func (c *Client) invoke(ctx context.Context, method, path string, payload, out any) error {
	endpoint := c.baseURL + path

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("muse: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("muse: create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("muse: invoke %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("muse: status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("muse: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("muse: status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("muse: decode response: %w", err)
	}
	return nil
}
