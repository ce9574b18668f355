package narration_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/valvoice/internal/core"
	"github.com/book-expert/valvoice/internal/errlog"
	"github.com/book-expert/valvoice/internal/narration"
	"github.com/book-expert/valvoice/internal/observe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockOpen = errors.New("mock open error")

type spoken struct {
	index int
	rate  int
	text  string
}

// fakeDriver is an in-memory speech engine.
type fakeDriver struct {
	mu         sync.Mutex
	openErr    error
	voices     []string
	opens      int
	closes     int
	utterances []spoken
}

func (d *fakeDriver) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.opens++

	return d.openErr
}

func (d *fakeDriver) Voices() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.voices...), nil
}

func (d *fakeDriver) Speak(_ context.Context, index, rate int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.utterances = append(d.utterances, spoken{index: index, rate: rate, text: text})

	return nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closes++

	return nil
}

func (d *fakeDriver) said() []spoken {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]spoken(nil), d.utterances...)
}

func newEngine(t *testing.T, driver narration.Driver) (*narration.LocalEngine, string) {
	t.Helper()

	logPath := filepath.Join(t.TempDir(), "TTS_ErrorLog.txt")
	engine := narration.NewLocalEngine(driver, 0, errlog.New(logPath), observe.Discard(), newTestLogger(t))

	return engine, logPath
}

func TestLocalEngine_InitializeIsIdempotent(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{voices: []string{"Microsoft David"}}
	engine, _ := newEngine(t, driver)

	require.NoError(t, engine.Initialize())
	require.NoError(t, engine.Initialize())
	assert.Equal(t, 1, driver.opens)
}

func TestLocalEngine_InitializeFailure(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{openErr: errMockOpen}
	engine, logPath := newEngine(t, driver)

	err := engine.Initialize()
	require.ErrorIs(t, err, narration.ErrEngineUnavailable)
	require.ErrorIs(t, err, errMockOpen)

	require.ErrorIs(t, engine.Speak(context.Background(), "hello"), narration.ErrEngineUnavailable)

	data, readErr := os.ReadFile(logPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "Local TTS: ")
}

func TestLocalEngine_EnumerateVoicesReplacesList(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{voices: []string{"Microsoft David", "Microsoft Zira"}}
	engine, _ := newEngine(t, driver)
	require.NoError(t, engine.Initialize())

	voices, err := engine.EnumerateVoices()
	require.NoError(t, err)
	require.Len(t, voices, 2)
	assert.Equal(t, core.VoiceDescriptor{Name: "Microsoft David", ID: "0", Backend: core.BackendLocal}, voices[0])

	driver.mu.Lock()
	driver.voices = []string{"Microsoft Hazel"}
	driver.mu.Unlock()

	voices, err = engine.EnumerateVoices()
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "Microsoft Hazel", voices[0].Name)
	assert.Len(t, engine.Voices(), 1)
}

func TestLocalEngine_EnumerateVoicesFollowsSelectedName(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{voices: []string{"Microsoft David", "Microsoft Zira"}}
	engine, _ := newEngine(t, driver)
	require.NoError(t, engine.Initialize())

	_, err := engine.EnumerateVoices()
	require.NoError(t, err)
	require.NoError(t, engine.SelectVoice(1))

	driver.mu.Lock()
	driver.voices = []string{"Microsoft Hazel", "Microsoft David", "Microsoft Zira"}
	driver.mu.Unlock()

	_, err = engine.EnumerateVoices()
	require.NoError(t, err)
	assert.Equal(t, 2, engine.Selected())

	driver.mu.Lock()
	driver.voices = []string{"Microsoft Hazel", "Microsoft Mark", "Microsoft David"}
	driver.mu.Unlock()

	_, err = engine.EnumerateVoices()
	require.NoError(t, err)
	assert.Equal(t, -1, engine.Selected())

	require.NoError(t, engine.Speak(context.Background(), "hi"))
	assert.Equal(t, 0, driver.said()[0].index)
}

func TestLocalEngine_SelectVoiceOutOfRange(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{voices: []string{"A", "B", "C"}}
	engine, _ := newEngine(t, driver)
	require.NoError(t, engine.Initialize())

	_, err := engine.EnumerateVoices()
	require.NoError(t, err)

	require.NoError(t, engine.SelectVoice(1))

	for _, index := range []int{-1, 3, 42} {
		require.ErrorIs(t, engine.SelectVoice(index), narration.ErrIndexOutOfRange)
		assert.Equal(t, 1, engine.Selected(), "active voice must be unchanged")
	}

	require.NoError(t, engine.Speak(context.Background(), "hello"))
	assert.Equal(t, 1, driver.said()[0].index)
}

func TestLocalEngine_SpeakFallsBackToFirstVoice(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{voices: []string{"A", "B"}}
	engine, _ := newEngine(t, driver)
	require.NoError(t, engine.Initialize())

	_, err := engine.EnumerateVoices()
	require.NoError(t, err)

	engine.SetRate(25)
	require.NoError(t, engine.Speak(context.Background(), "rotate"))

	said := driver.said()
	require.Len(t, said, 1)
	assert.Equal(t, spoken{index: 0, rate: 10, text: "rotate"}, said[0])
}

func TestLocalEngine_ZeroVoices(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{}
	engine, _ := newEngine(t, driver)
	require.NoError(t, engine.Initialize())

	voices, err := engine.EnumerateVoices()
	require.NoError(t, err)
	assert.Empty(t, voices)
	assert.NotNil(t, voices)

	assert.NotPanics(t, func() {
		speakErr := engine.Speak(context.Background(), "hi")
		require.ErrorIs(t, speakErr, narration.ErrNoVoiceSelected)
	})

	require.ErrorIs(t, engine.SelectVoice(0), narration.ErrIndexOutOfRange)
}

func TestLocalEngine_SpeakEmptyInput(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, &fakeDriver{voices: []string{"A"}})

	require.ErrorIs(t, engine.Speak(context.Background(), "  "), narration.ErrEmptyInput)

	_, err := engine.SpeakAsync("")
	require.ErrorIs(t, err, narration.ErrEmptyInput)
}

func TestLocalEngine_SpeakAsync(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{voices: []string{"A"}}
	engine, _ := newEngine(t, driver)
	require.NoError(t, engine.Initialize())

	_, err := engine.EnumerateVoices()
	require.NoError(t, err)

	task, err := engine.SpeakAsync("eco round")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	require.NoError(t, task.Wait(ctx))
	assert.Equal(t, "eco round", driver.said()[0].text)
}

func TestLocalEngine_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	driver := &fakeDriver{voices: []string{"A"}}
	engine, _ := newEngine(t, driver)

	engine.Shutdown()
	assert.Equal(t, 0, driver.closes, "shutdown before initialize must not touch the driver")

	require.NoError(t, engine.Initialize())

	_, err := engine.EnumerateVoices()
	require.NoError(t, err)

	engine.Shutdown()
	engine.Shutdown()
	assert.Equal(t, 1, driver.closes)
	assert.Empty(t, engine.Voices())
	require.ErrorIs(t, engine.Speak(context.Background(), "hello"), narration.ErrEngineUnavailable)

	require.NoError(t, engine.Initialize())
	assert.Equal(t, 2, driver.opens)
}

func TestRateConversions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -10, narration.ClampRate(-50))
	assert.Equal(t, 10, narration.ClampRate(11))
	assert.Equal(t, 3, narration.ClampRate(3))

	assert.Equal(t, -10, narration.RateFromPercent(0))
	assert.Equal(t, 0, narration.RateFromPercent(50))
	assert.Equal(t, 10, narration.RateFromPercent(100))
	assert.Equal(t, 10, narration.RateFromPercent(150))
}

func writeFakeEspeak(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	script := `#!/bin/sh
if [ "$1" = "--voices" ]; then
  echo "Pty Language       Age/Gender VoiceName          File                 Other Languages"
  echo " 5  en-gb           --/M      English_(Great_Britain) gmw/en      (en 2)"
  echo " 5  en-us           --/M      English_(America)  gmw/en-US            (en 3)"
  exit 0
fi
printf '%s\n' "$@" > ` + argsFile + `
`
	binary := filepath.Join(dir, "espeak-ng")
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o700))

	return binary, argsFile
}

func TestEspeakDriver(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX shell script")
	}

	binary, argsFile := writeFakeEspeak(t)
	engine, _ := newEngine(t, narration.NewEspeakDriver(binary))
	require.NoError(t, engine.Initialize())

	voices, err := engine.EnumerateVoices()
	require.NoError(t, err)
	require.Len(t, voices, 2)
	assert.Equal(t, "English (Great Britain) (en-gb)", voices[0].Name)
	assert.Equal(t, "English (America) (en-us)", voices[1].Name)

	require.NoError(t, engine.SelectVoice(1))
	engine.SetRate(-2)
	require.NoError(t, engine.Speak(context.Background(), "plant the spike"))

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)

	args := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{"-v", "en-us", "-s", "155", "--", "plant the spike"}, args)

	engine.Shutdown()
}

func TestEspeakDriver_MissingBinary(t *testing.T) {
	t.Parallel()

	engine, _ := newEngine(t, narration.NewEspeakDriver(filepath.Join(t.TempDir(), "absent")))
	require.ErrorIs(t, engine.Initialize(), narration.ErrEngineUnavailable)
}

func TestSAPIDriverOutsideWindows(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("SAPI is available")
	}

	engine, _ := newEngine(t, narration.NewSAPIDriver())
	require.ErrorIs(t, engine.Initialize(), narration.ErrEngineUnavailable)
}
