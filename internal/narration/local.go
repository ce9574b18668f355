package narration

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/valvoice/internal/core"
	"github.com/book-expert/valvoice/internal/errlog"
	"github.com/book-expert/valvoice/internal/observe"
)

const logContextLocal = "Local TTS"

// SAPI rate scale.
const (
	minRate = -10
	maxRate = 10
)

// Driver is a platform speech engine.
type Driver interface {
	// Open acquires the engine.
	Open() error
	// Voices returns the description of every installed voice, in engine order.
	Voices() ([]string, error)
	// Speak synthesizes text with the voice at index and blocks until done.
	// rate uses the SAPI scale, -10 (slowest) to 10 (fastest).
	Speak(ctx context.Context, index, rate int, text string) error
	// Close releases the engine.
	Close() error
}

// LocalEngine narrates through the operating system speech engine.
// States: uninitialized, initialized, and initialized with a selected voice.
// Shutdown returns to uninitialized. All methods are safe for concurrent
// use; speech calls are serialized.
type LocalEngine struct {
	mu       sync.Mutex
	driver   Driver
	active   bool
	voices   []core.VoiceDescriptor
	selected int
	rate     int
	errors   *errlog.Log
	metrics  *observe.Metrics
	log      *logger.Logger
}

// NewLocalEngine wraps driver. rate is the default speech rate, -10..10.
func NewLocalEngine(driver Driver, rate int, errorLog *errlog.Log, metrics *observe.Metrics, log *logger.Logger) *LocalEngine {
	return &LocalEngine{
		driver:   driver,
		selected: -1,
		rate:     ClampRate(rate),
		errors:   errorLog,
		metrics:  metrics,
		log:      log,
	}
}

// Initialize opens the driver once. Later calls are no-ops.
func (e *LocalEngine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return nil
	}

	err := e.driver.Open()
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
		e.record(wrapped)

		return wrapped
	}

	e.active = true
	e.log.Info("Local speech engine initialized")

	return nil
}

// EnumerateVoices reloads the installed voices, replacing the previous list.
// The selected voice is found again by name; when it is gone nothing is
// selected.
func (e *LocalEngine) EnumerateVoices() ([]core.VoiceDescriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return nil, ErrEngineUnavailable
	}

	descriptions, err := e.driver.Voices()
	if err != nil {
		wrapped := fmt.Errorf("%w: failed to enumerate voices: %w", ErrEngineUnavailable, err)
		e.record(wrapped)

		return nil, wrapped
	}

	voices := make([]core.VoiceDescriptor, 0, len(descriptions))
	for i, description := range descriptions {
		voices = append(voices, core.VoiceDescriptor{
			Name:    strings.TrimSpace(description),
			ID:      strconv.Itoa(i),
			Rate:    e.rate,
			Backend: core.BackendLocal,
		})
	}

	e.selected = reselect(e.voices, e.selected, voices)
	e.voices = voices

	return e.voicesLocked(), nil
}

// reselect returns the index in next of the voice selected in previous, or -1.
func reselect(previous []core.VoiceDescriptor, selected int, next []core.VoiceDescriptor) int {
	if selected < 0 || selected >= len(previous) {
		return -1
	}

	name := previous[selected].Name
	for i, voice := range next {
		if voice.Name == name {
			return i
		}
	}

	return -1
}

// Voices returns a copy of the last enumerated list.
func (e *LocalEngine) Voices() []core.VoiceDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.voicesLocked()
}

func (e *LocalEngine) voicesLocked() []core.VoiceDescriptor {
	out := make([]core.VoiceDescriptor, len(e.voices))
	copy(out, e.voices)

	return out
}

// SelectVoice makes the voice at index active. On failure the active voice is
// unchanged.
func (e *LocalEngine) SelectVoice(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.voices) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(e.voices))
	}

	e.selected = index

	return nil
}

// Selected returns the active voice index, or -1 when none was chosen.
func (e *LocalEngine) Selected() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.selected
}

// SetRate changes the default speech rate, clamped to -10..10.
func (e *LocalEngine) SetRate(rate int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rate = ClampRate(rate)
	for i := range e.voices {
		e.voices[i].Rate = e.rate
	}
}

// Speak synthesizes text with the selected voice, or the first voice when none
// was selected, and blocks until the engine finishes. The call cannot be
// cancelled once handed to the engine.
func (e *LocalEngine) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return ErrEngineUnavailable
	}

	if len(e.voices) == 0 {
		return ErrNoVoiceSelected
	}

	index := e.selected
	if index < 0 {
		index = 0
	}

	start := time.Now()
	err := e.driver.Speak(ctx, index, e.rate, text)
	e.metrics.RecordNarration(ctx, string(core.BackendLocal), time.Since(start), 0, Kind(err), err)

	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
		e.record(wrapped)

		return wrapped
	}

	return nil
}

// SpeakAsync runs Speak in the background.
func (e *LocalEngine) SpeakAsync(text string) (*Task, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	return Go(func() error {
		return e.Speak(context.Background(), text)
	}), nil
}

// Shutdown releases the driver. It is safe to call in any state and more than
// once.
func (e *LocalEngine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return
	}

	closeErr := e.driver.Close()
	if closeErr != nil {
		e.log.Warn("Failed to close local speech engine: %v", closeErr)
	}

	e.active = false
	e.voices = nil
	e.selected = -1
}

func (e *LocalEngine) record(err error) {
	e.log.Error("%s: %v", logContextLocal, err)

	recordErr := e.errors.RecordError(logContextLocal, err)
	if recordErr != nil {
		e.log.Warn("Failed to write error log: %v", recordErr)
	}
}

// ClampRate limits rate to the SAPI range -10..10.
func ClampRate(rate int) int {
	return max(minRate, min(maxRate, rate))
}

// RateFromPercent maps a 0..100 slider value onto -10..10.
func RateFromPercent(percent int) int {
	percent = max(0, min(100, percent))

	return percent/5 - 10
}
