// Package core defines the shared types and interfaces of the narration pipeline.
package core

import (
	"context"

	"github.com/book-expert/valvoice/internal/audio"
)

// Backend names the narration component a voice belongs to.
type Backend string

const (
	// BackendRemote is the cloud text-to-speech service.
	BackendRemote Backend = "remote"
	// BackendLocal is the operating system speech engine.
	BackendLocal Backend = "local"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// VoiceDescriptor identifies one selectable voice.
// Remote voices carry the service voice ID; local voices carry the engine
// description in Name and their position in the engine list in ID.
type VoiceDescriptor struct {
	Name    string
	ID      string
	Rate    int
	Backend Backend
}

// NarrationRequest is one utterance to be voiced.
type NarrationRequest struct {
	Text   string
	Voice  VoiceDescriptor
	Format audio.OutputFormat
}

// AudioPayload is the binary audio returned for a NarrationRequest.
type AudioPayload struct {
	Data   []byte
	Format audio.OutputFormat
}

// Synthesizer turns a NarrationRequest into audio.
type Synthesizer interface {
	// Ready reports whether a request can be sent without touching the network.
	Ready() error
	Synthesize(ctx context.Context, req NarrationRequest) (AudioPayload, error)
}

// Player plays an audio file and returns once playback has finished.
type Player interface {
	Play(ctx context.Context, path string) error
}
