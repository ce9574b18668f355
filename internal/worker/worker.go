// Package worker narrates chat lines delivered over NATS.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/valvoice/internal/audio"
	"github.com/book-expert/valvoice/internal/core"
	"github.com/book-expert/valvoice/internal/observe"
	"github.com/book-expert/valvoice/internal/text"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const handleMessageTimeout = 30 * time.Second

// Reasons a request is dropped before synthesis.
const (
	DropBlocked  = "blocked"
	DropEmpty    = "empty"
	DropInvalid  = "invalid"
	DropNoVoice  = "unknown_voice"
	DropDownload = "download"
)

var (
	// ErrSubjectEmpty indicates that no subject was configured.
	ErrSubjectEmpty = errors.New("narration subject cannot be empty")
	// ErrNarratorMissing indicates that no narrator was supplied.
	ErrNarratorMissing = errors.New("narrator cannot be nil")
	// ErrVoicesMissing indicates that no voice resolver was supplied.
	ErrVoicesMissing = errors.New("voice resolver cannot be nil")
	// ErrSenderBlocked indicates that the sender is on the block list.
	ErrSenderBlocked = errors.New("sender is blocked")
	// ErrNothingToSay indicates that the text was empty after preparation.
	ErrNothingToSay = errors.New("nothing to narrate")
	// ErrMissingTextKey indicates an event without a text key.
	ErrMissingTextKey = errors.New("event has no text key")
)

// Narrator synthesizes audio and optionally plays it on this machine.
type Narrator interface {
	Synthesize(ctx context.Context, req core.NarrationRequest) (core.AudioPayload, error)
	Play(ctx context.Context, payload core.AudioPayload) error
}

// Blocker reports whether a sender must not be narrated.
type Blocker interface {
	Contains(id string) bool
}

// VoiceResolver maps a voice name to a voice. An empty name selects the
// default voice.
type VoiceResolver func(name string) (core.VoiceDescriptor, error)

// Config holds the worker settings.
type Config struct {
	Subject string
	Format  audio.OutputFormat
	// Play also plays every synthesized clip on this machine.
	Play bool
}

// NatsWorker answers narration requests on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	cfg            Config
	store          core.ObjectStore
	narrator       Narrator
	voices         VoiceResolver
	blocked        Blocker
	preparer       *text.Preparer
	metrics        *observe.Metrics
	log            *logger.Logger
}

// NewNatsWorker creates a worker. blocked and metrics may be nil.
func NewNatsWorker(
	natsConnection *nats.Conn,
	cfg Config,
	store core.ObjectStore,
	narrator Narrator,
	voices VoiceResolver,
	blocked Blocker,
	metrics *observe.Metrics,
	log *logger.Logger,
) (*NatsWorker, error) {
	if cfg.Subject == "" {
		return nil, ErrSubjectEmpty
	}

	if narrator == nil {
		return nil, ErrNarratorMissing
	}

	if voices == nil {
		return nil, ErrVoicesMissing
	}

	if cfg.Format == (audio.OutputFormat{}) {
		cfg.Format = audio.DefaultFormat()
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		cfg:            cfg,
		store:          store,
		narrator:       narrator,
		voices:         voices,
		blocked:        blocked,
		preparer:       text.NewPreparer(),
		metrics:        metrics,
		log:            log,
	}, nil
}

// Run subscribes and blocks until ctx ends, then drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.cfg.Subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.cfg.Subject, err)
	}

	w.log.Info("Listening for narration requests on %s", w.cfg.Subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.metrics.RecordDropped(ctx, DropInvalid)
		w.log.Error("Failed to parse narration request: %v", err)

		return
	}

	audioKey, err := w.narrate(ctx, event)
	if err != nil {
		w.log.Error("Failed to narrate request for workflow %s: %v", event.Header.WorkflowID, err)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// narrate downloads the text, synthesizes it and uploads the audio.
func (w *NatsWorker) narrate(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	sender := event.Header.UserID
	if w.blocked != nil && w.blocked.Contains(sender) {
		w.metrics.RecordDropped(ctx, DropBlocked)

		return "", fmt.Errorf("%w: %s", ErrSenderBlocked, sender)
	}

	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		w.metrics.RecordDropped(ctx, DropDownload)

		return "", fmt.Errorf("failed to download text for key '%s': %w", event.TextKey, err)
	}

	prepared := w.preparer.Prepare(string(textData))
	if prepared == "" {
		w.metrics.RecordDropped(ctx, DropEmpty)

		return "", fmt.Errorf("%w: key '%s'", ErrNothingToSay, event.TextKey)
	}

	voice, err := w.voices(event.Voice)
	if err != nil {
		w.metrics.RecordDropped(ctx, DropNoVoice)

		return "", fmt.Errorf("failed to resolve voice '%s': %w", event.Voice, err)
	}

	payload, err := w.narrator.Synthesize(ctx, core.NarrationRequest{Text: prepared, Voice: voice, Format: w.cfg.Format})
	if err != nil {
		return "", fmt.Errorf("failed to synthesize: %w", err)
	}

	if payload.Format == (audio.OutputFormat{}) {
		payload.Format = w.cfg.Format
	}

	audioKey := uuid.NewString() + payload.Format.Extension()

	err = w.store.Upload(ctx, audioKey, payload.Data)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio for key '%s': %w", audioKey, err)
	}

	if w.cfg.Play {
		playErr := w.narrator.Play(ctx, payload)
		if playErr != nil {
			w.log.Warn("Local playback of %s failed: %v", audioKey, playErr)
		}
	}

	return audioKey, nil
}

func publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrMissingTextKey
	}

	return &event, nil
}
