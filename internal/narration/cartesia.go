package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/valvoice/internal/config"
	"github.com/book-expert/valvoice/internal/core"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAPIKey      = "X-API-Key"
	headerVersion     = "Cartesia-Version"
	contentTypeJSON   = "application/json"
)

const (
	voiceModeID     = "id"
	readChunkSize   = 8 * 1024
	maxErrorBodyLen = 512
)

// CartesiaClient synthesizes speech with one HTTPS round trip per request.
type CartesiaClient struct {
	httpClient *http.Client
	baseURL    string
	path       string
	version    string
	modelID    string
	language   string

	mu     sync.RWMutex
	apiKey string
}

// ClientOption configures a CartesiaClient.
type ClientOption func(*CartesiaClient)

// WithBaseURL replaces the scheme and authority derived from host and port.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *CartesiaClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client. Its timeout takes precedence.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *CartesiaClient) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets the initial credential.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *CartesiaClient) {
		c.apiKey = apiKey
	}
}

// cartesiaRequest is the JSON body of /tts/bytes.
type cartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        cartesiaVoice        `json:"voice"`
	OutputFormat cartesiaOutputFormat `json:"output_format"`
	Language     string               `json:"language"`
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate"`
}

// NewCartesiaClient creates a client for the service described by cfg. The
// network timeout applies to the whole exchange, including reading the body.
func NewCartesiaClient(cfg config.CartesiaConfig, opts ...ClientOption) *CartesiaClient {
	client := &CartesiaClient{
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		baseURL:    "https://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		path:       cfg.Path,
		version:    cfg.Version,
		modelID:    cfg.ModelID,
		language:   cfg.Language,
		apiKey:     cfg.APIKey,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// SetAPIKey replaces the credential used by subsequent requests.
func (c *CartesiaClient) SetAPIKey(apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.apiKey = strings.TrimSpace(apiKey)
}

// Ready returns ErrMissingCredential when no API key is set.
func (c *CartesiaClient) Ready() error {
	if c.key() == "" {
		return ErrMissingCredential
	}

	return nil
}

func (c *CartesiaClient) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.apiKey
}

// Synthesize posts req to the service and returns the audio body. No request
// is sent for empty text, a missing key or a voice without an ID.
func (c *CartesiaClient) Synthesize(ctx context.Context, req core.NarrationRequest) (core.AudioPayload, error) {
	if strings.TrimSpace(req.Text) == "" {
		return core.AudioPayload{}, ErrEmptyInput
	}

	apiKey := c.key()
	if apiKey == "" {
		return core.AudioPayload{}, ErrMissingCredential
	}

	if req.Voice.ID == "" {
		return core.AudioPayload{}, fmt.Errorf("%w: %q has no voice id", ErrUnknownVoice, req.Voice.Name)
	}

	httpReq, err := c.newRequest(ctx, req, apiKey)
	if err != nil {
		return core.AudioPayload{}, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.AudioPayload{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.AudioPayload{}, statusError(resp)
	}

	data, err := readBody(resp.Body)
	if err != nil {
		return core.AudioPayload{}, err
	}

	if len(data) == 0 {
		return core.AudioPayload{}, ErrEmptyResponse
	}

	return core.AudioPayload{Data: data, Format: req.Format}, nil
}

func (c *CartesiaClient) newRequest(ctx context.Context, req core.NarrationRequest, apiKey string) (*http.Request, error) {
	body, err := json.Marshal(cartesiaRequest{
		ModelID:    c.modelID,
		Transcript: req.Text,
		Voice:      cartesiaVoice{Mode: voiceModeID, ID: req.Voice.ID},
		OutputFormat: cartesiaOutputFormat{
			Container:  req.Format.Container,
			Encoding:   req.Format.Encoding,
			SampleRate: req.Format.SampleRate,
		},
		Language: c.language,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %w", ErrRequestFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrRequestFailed, err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerVersion, c.version)
	httpReq.Header.Set(headerAPIKey, apiKey)

	return httpReq, nil
}

// readBody accumulates the response chunk by chunk until EOF. The size is not
// known in advance.
func readBody(body io.Reader) ([]byte, error) {
	var (
		buffer bytes.Buffer
		chunk  = make([]byte, readChunkSize)
	)

	for {
		n, readErr := body.Read(chunk)
		if n > 0 {
			buffer.Write(chunk[:n])
		}

		if errors.Is(readErr, io.EOF) {
			return buffer.Bytes(), nil
		}

		if readErr != nil {
			return nil, fmt.Errorf("%w: failed to read audio after %d bytes: %w", ErrRequestFailed, buffer.Len(), readErr)
		}
	}
}

// statusError keeps a bounded excerpt of the body for diagnostics.
func statusError(resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))

	return &HTTPStatusError{
		Code: resp.StatusCode,
		Body: strings.TrimSpace(string(excerpt)),
	}
}

// HealthCheck verifies that the service host accepts connections.
func (c *CartesiaClient) HealthCheck(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}

	closeErr := resp.Body.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to close health check response: %w", closeErr)
	}

	return nil
}
