package narration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/book-expert/valvoice/internal/audio"
	"github.com/book-expert/valvoice/internal/core"
	"github.com/book-expert/valvoice/internal/narration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method  string
	path    string
	apiKey  string
	version string
	ctype   string
	body    map[string]any
}

func newCartesiaServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func jetVoice() core.VoiceDescriptor {
	return core.VoiceDescriptor{Name: "JetVoice", ID: "voice-jet", Rate: 4, Backend: core.BackendRemote}
}

func TestCartesiaClient_Synthesize_Success(t *testing.T) {
	t.Parallel()

	captured := make(chan capturedRequest, 1)

	server, calls := newCartesiaServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		captured <- capturedRequest{
			method:  r.Method,
			path:    r.URL.Path,
			apiKey:  r.Header.Get("X-API-Key"),
			version: r.Header.Get("Cartesia-Version"),
			ctype:   r.Header.Get("Content-Type"),
			body:    body,
		}

		w.WriteHeader(http.StatusOK)

		for _, chunk := range []string{"RIFF", "----", "WAVE"} {
			_, _ = w.Write([]byte(chunk))
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	})

	client := narration.NewCartesiaClient(testCartesiaConfig(t, "sk-test"), narration.WithBaseURL(server.URL))

	payload, err := client.Synthesize(context.Background(), core.NarrationRequest{
		Text:   "Rotate B, they are pushing",
		Voice:  jetVoice(),
		Format: audio.DefaultFormat(),
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("RIFF----WAVE"), payload.Data)
	assert.Equal(t, audio.DefaultFormat(), payload.Format)
	assert.Equal(t, int32(1), calls.Load())

	req := <-captured
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/tts/bytes", req.path)
	assert.Equal(t, "sk-test", req.apiKey)
	assert.Equal(t, "2024-06-10", req.version)
	assert.Equal(t, "application/json", req.ctype)
	assert.Equal(t, "sonic-english", req.body["model_id"])
	assert.Equal(t, "Rotate B, they are pushing", req.body["transcript"])
	assert.Equal(t, "en", req.body["language"])
	assert.Equal(t, map[string]any{"mode": "id", "id": "voice-jet"}, req.body["voice"])
	assert.Equal(t, map[string]any{
		"container":   "wav",
		"encoding":    "pcm_f32le",
		"sample_rate": float64(44100),
	}, req.body["output_format"])
}

func TestCartesiaClient_Synthesize_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		apiKey    string
		text      string
		voice     core.VoiceDescriptor
		handler   http.HandlerFunc
		target    error
		wantCalls int32
	}{
		{
			name:   "zero byte body",
			apiKey: "sk-test",
			text:   "hello",
			voice:  jetVoice(),
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			target:    narration.ErrEmptyResponse,
			wantCalls: 1,
		},
		{
			name:   "unauthorized",
			apiKey: "sk-bad",
			text:   "hello",
			voice:  jetVoice(),
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
			},
			target:    narration.ErrHTTPStatus,
			wantCalls: 1,
		},
		{
			name:      "whitespace text",
			apiKey:    "sk-test",
			text:      " \t\n ",
			voice:     jetVoice(),
			handler:   func(http.ResponseWriter, *http.Request) {},
			target:    narration.ErrEmptyInput,
			wantCalls: 0,
		},
		{
			name:      "missing credential",
			apiKey:    "",
			text:      "hello",
			voice:     jetVoice(),
			handler:   func(http.ResponseWriter, *http.Request) {},
			target:    narration.ErrMissingCredential,
			wantCalls: 0,
		},
		{
			name:      "voice without id",
			apiKey:    "sk-test",
			text:      "hello",
			voice:     core.VoiceDescriptor{Name: "Nobody"},
			handler:   func(http.ResponseWriter, *http.Request) {},
			target:    narration.ErrUnknownVoice,
			wantCalls: 0,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server, calls := newCartesiaServer(t, testCase.handler)
			client := narration.NewCartesiaClient(testCartesiaConfig(t, testCase.apiKey), narration.WithBaseURL(server.URL))

			_, err := client.Synthesize(context.Background(), core.NarrationRequest{
				Text:   testCase.text,
				Voice:  testCase.voice,
				Format: audio.DefaultFormat(),
			})
			require.ErrorIs(t, err, testCase.target)
			assert.Equal(t, testCase.wantCalls, calls.Load())
		})
	}
}

func TestCartesiaClient_StatusCodeCarried(t *testing.T) {
	t.Parallel()

	server, _ := newCartesiaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	client := narration.NewCartesiaClient(testCartesiaConfig(t, "sk-test"), narration.WithBaseURL(server.URL))

	_, err := client.Synthesize(context.Background(), core.NarrationRequest{
		Text: "hello", Voice: jetVoice(), Format: audio.DefaultFormat(),
	})

	var statusErr *narration.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
	assert.Equal(t, "http_status", narration.Kind(err))
}

func TestCartesiaClient_ConnectionFailed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client := narration.NewCartesiaClient(testCartesiaConfig(t, "sk-test"), narration.WithBaseURL(baseURL))

	_, err := client.Synthesize(context.Background(), core.NarrationRequest{
		Text: "hello", Voice: jetVoice(), Format: audio.DefaultFormat(),
	})
	require.ErrorIs(t, err, narration.ErrConnectionFailed)
}

func TestCartesiaClient_SetAPIKey(t *testing.T) {
	t.Parallel()

	client := narration.NewCartesiaClient(testCartesiaConfig(t, ""))
	require.ErrorIs(t, client.Ready(), narration.ErrMissingCredential)

	client.SetAPIKey("  sk-new  ")
	require.NoError(t, client.Ready())

	client.SetAPIKey("   ")
	require.ErrorIs(t, client.Ready(), narration.ErrMissingCredential)
}
