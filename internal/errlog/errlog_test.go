package errlog_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/valvoice/internal/errlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLine(t *testing.T) {
	t.Parallel()

	stamp := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.Local)

	line := errlog.FormatLine(stamp, "Cartesia TTS", "HTTP status 401")
	assert.Equal(t, "[2024-3-5 7:8:9] Cartesia TTS: HTTP status 401\n", line)
}

func TestRecord_Appends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "TTS_ErrorLog.txt")
	stamp := time.Date(2025, time.December, 31, 23, 59, 58, 0, time.Local)
	log := errlog.NewWithClock(path, func() time.Time { return stamp })

	require.NoError(t, log.Record("first", "one"))
	require.NoError(t, log.RecordError("second", errors.New("two")))
	require.NoError(t, log.RecordError("ignored", nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t,
		"[2025-12-31 23:59:58] first: one\n[2025-12-31 23:59:58] second: two\n",
		string(data))
}

func TestRecord_Concurrent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "log.txt")
	log := errlog.New(path)

	const writers = 20

	var waitGroup sync.WaitGroup

	for range writers {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			assert.NoError(t, log.Record("worker", "failed"))
		}()
	}

	waitGroup.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, writers)

	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, "] worker: failed"), line)
	}
}
