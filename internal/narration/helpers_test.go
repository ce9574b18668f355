package narration_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/valvoice/internal/config"
	"github.com/stretchr/testify/require"
)

var errMockPlayback = errors.New("mock playback error")

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = log.Close()
	})

	return log
}

func testCartesiaConfig(t *testing.T, apiKey string) config.CartesiaConfig {
	t.Helper()

	var cfg config.Config

	cfg.Paths.DataDir = t.TempDir()
	cfg.Cartesia.APIKey = apiKey
	cfg.Cartesia.DefaultVoiceID = "voice-default"
	cfg.ApplyDefaults()

	return cfg.Cartesia
}

// recordingPlayer remembers every file it was asked to play and whether the
// file existed at that moment.
type recordingPlayer struct {
	mu          sync.Mutex
	shouldFail  bool
	played      []string
	contents    [][]byte
	existedPlay []bool
}

func (p *recordingPlayer) Play(_ context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := os.ReadFile(path)
	p.played = append(p.played, path)
	p.contents = append(p.contents, data)
	p.existedPlay = append(p.existedPlay, err == nil)

	if p.shouldFail {
		return errMockPlayback
	}

	return nil
}

func (p *recordingPlayer) snapshot() ([]string, [][]byte, []bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.played...), append([][]byte(nil), p.contents...), append([]bool(nil), p.existedPlay...)
}
