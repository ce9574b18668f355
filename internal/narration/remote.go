package narration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/valvoice/internal/audio"
	"github.com/book-expert/valvoice/internal/core"
	"github.com/book-expert/valvoice/internal/errlog"
	"github.com/book-expert/valvoice/internal/observe"
)

// Error log contexts.
const (
	logContextRemote   = "Cartesia TTS"
	logContextFile     = "Audio file"
	logContextPlayback = "Playback"
)

const (
	logFmtSynthesized   = "Synthesized %d bytes for voice %s in %s"
	logFmtPlayed        = "Played %s"
	logFmtRemoveFailed  = "Failed to remove audio file '%s': %v"
	logFmtNarrateFailed = "Narration failed for voice %s: %v"
)

// RemoteNarrator runs the full remote pipeline for one utterance: synthesize,
// write a transient file, play it, delete it.
type RemoteNarrator struct {
	synth    core.Synthesizer
	player   core.Player
	format   audio.OutputFormat
	audioDir string
	errors   *errlog.Log
	metrics  *observe.Metrics
	log      *logger.Logger
}

// NewRemoteNarrator wires a narrator. errorLog and metrics may be nil.
func NewRemoteNarrator(
	synth core.Synthesizer,
	player core.Player,
	format audio.OutputFormat,
	audioDir string,
	errorLog *errlog.Log,
	metrics *observe.Metrics,
	log *logger.Logger,
) *RemoteNarrator {
	return &RemoteNarrator{
		synth:    synth,
		player:   player,
		format:   format,
		audioDir: audioDir,
		errors:   errorLog,
		metrics:  metrics,
		log:      log,
	}
}

// Speak validates text and the credential on the calling goroutine, then runs
// the pipeline in the background. The returned Task reports the outcome.
// Synthesis cannot be cancelled once started.
func (n *RemoteNarrator) Speak(text string, voice core.VoiceDescriptor) (*Task, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	readyErr := n.synth.Ready()
	if readyErr != nil {
		n.record(logContextRemote, readyErr)

		return nil, readyErr
	}

	if voice.ID == "" {
		return nil, fmt.Errorf("%w: %q has no voice id", ErrUnknownVoice, voice.Name)
	}

	req := core.NarrationRequest{Text: text, Voice: voice, Format: n.format}

	return Go(func() error {
		return n.Narrate(context.Background(), req)
	}), nil
}

// Narrate runs the pipeline synchronously.
func (n *RemoteNarrator) Narrate(ctx context.Context, req core.NarrationRequest) error {
	payload, err := n.Synthesize(ctx, req)
	if err != nil {
		return err
	}

	return n.Play(ctx, payload)
}

// Synthesize performs the network exchange and records its outcome.
func (n *RemoteNarrator) Synthesize(ctx context.Context, req core.NarrationRequest) (core.AudioPayload, error) {
	if req.Format == (audio.OutputFormat{}) {
		req.Format = n.format
	}

	start := time.Now()
	payload, err := n.synth.Synthesize(ctx, req)
	elapsed := time.Since(start)

	n.metrics.RecordNarration(ctx, string(core.BackendRemote), elapsed, len(payload.Data), Kind(err), err)

	if err != nil {
		n.log.Error(logFmtNarrateFailed, req.Voice.Name, err)
		n.record(logContextRemote, err)

		return core.AudioPayload{}, err
	}

	n.log.Info(logFmtSynthesized, len(payload.Data), req.Voice.Name, elapsed.Round(time.Millisecond))

	return payload, nil
}

// Play writes payload to a file unique to this call, plays it to completion
// and deletes it.
func (n *RemoteNarrator) Play(ctx context.Context, payload core.AudioPayload) error {
	format := payload.Format
	if format == (audio.OutputFormat{}) {
		format = n.format
	}

	path, err := audio.WriteTemp(n.audioDir, format, payload.Data)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrFileWriteFailed, err)
		n.record(logContextFile, wrapped)

		return wrapped
	}

	defer func() {
		removeErr := os.Remove(path)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			n.log.Warn(logFmtRemoveFailed, path, removeErr)
		}
	}()

	playErr := n.player.Play(ctx, path)
	if playErr != nil {
		wrapped := fmt.Errorf("%w: %w", ErrPlaybackFailed, playErr)
		n.record(logContextPlayback, wrapped)

		return wrapped
	}

	n.log.Info(logFmtPlayed, path)

	return nil
}

func (n *RemoteNarrator) record(logContext string, err error) {
	recordErr := n.errors.RecordError(logContext, err)
	if recordErr != nil {
		n.log.Warn("Failed to write error log: %v", recordErr)
	}
}
