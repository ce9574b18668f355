// Package audio provides the output format descriptor, transient audio files
// and playback for narrated speech.
package audio

import (
	"errors"
	"fmt"
	"slices"
)

// Default output format requested from the remote service.
const (
	DefaultContainer  = "wav"
	DefaultEncoding   = "pcm_f32le"
	DefaultSampleRate = 44100
)

// Validation limits.
const (
	minSampleRate = 8000
	maxSampleRate = 192000
)

const (
	errFmtUnsupportedContainer = "%w: unsupported container %q"
	errFmtUnsupportedEncoding  = "%w: unsupported encoding %q for container %q"
	errFmtSampleRateRange      = "%w: sample rate must be between %d and %d Hz, got %d"
)

// ErrInvalidFormat is returned when an OutputFormat cannot be requested.
var ErrInvalidFormat = errors.New("invalid output format")

var (
	supportedContainers = []string{"wav", "raw", "mp3"}
	pcmEncodings        = []string{"pcm_f32le", "pcm_s16le", "pcm_mulaw", "pcm_alaw"}
)

// OutputFormat describes the audio the remote service should return.
type OutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate"`
}

// DefaultFormat returns 44.1 kHz float PCM in a WAV container.
func DefaultFormat() OutputFormat {
	return OutputFormat{
		Container:  DefaultContainer,
		Encoding:   DefaultEncoding,
		SampleRate: DefaultSampleRate,
	}
}

// Validate checks the container, encoding and sample rate combination.
func (f OutputFormat) Validate() error {
	if !slices.Contains(supportedContainers, f.Container) {
		return fmt.Errorf(errFmtUnsupportedContainer, ErrInvalidFormat, f.Container)
	}

	// mp3 carries its own encoding; the PCM containers need one of ours.
	if f.Container != "mp3" && !slices.Contains(pcmEncodings, f.Encoding) {
		return fmt.Errorf(errFmtUnsupportedEncoding, ErrInvalidFormat, f.Encoding, f.Container)
	}

	if f.SampleRate < minSampleRate || f.SampleRate > maxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidFormat, minSampleRate, maxSampleRate, f.SampleRate)
	}

	return nil
}

// Extension returns the file extension, including the dot, for the container.
func (f OutputFormat) Extension() string {
	if f.Container == "raw" {
		return ".pcm"
	}

	return "." + f.Container
}
