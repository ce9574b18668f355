package narration

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/book-expert/valvoice/internal/config"
	"github.com/book-expert/valvoice/internal/core"
)

// Local driver names.
const (
	DriverSAPI   = "sapi"
	DriverEspeak = "espeak"
)

// ErrUnknownDriver is returned for a driver name NewDriver does not know.
var ErrUnknownDriver = errors.New("unknown local speech driver")

// AgentProfile is a built-in remote voice persona and its speech rate.
type AgentProfile struct {
	Name string
	Rate int
}

// AgentProfiles are offered when no remote voices are configured.
var AgentProfiles = []AgentProfile{
	{Name: "JetVoice", Rate: 4},
	{Name: "SovaVoice", Rate: 0},
	{Name: "BrimGuy", Rate: -2},
	{Name: "ReynaVoice", Rate: 2},
}

// RemoteCatalog returns the remote voices in cfg. Without configured voices
// the agent profiles are backed by the default voice ID, as is any configured
// voice without an ID.
func RemoteCatalog(cfg config.CartesiaConfig) []core.VoiceDescriptor {
	if len(cfg.Voices) > 0 {
		voices := make([]core.VoiceDescriptor, 0, len(cfg.Voices))
		for _, voice := range cfg.Voices {
			id := voice.ID
			if id == "" {
				id = cfg.DefaultVoiceID
			}

			voices = append(voices, core.VoiceDescriptor{
				Name:    voice.Name,
				ID:      id,
				Rate:    ClampRate(voice.Rate),
				Backend: core.BackendRemote,
			})
		}

		return voices
	}

	voices := make([]core.VoiceDescriptor, 0, len(AgentProfiles))
	for _, profile := range AgentProfiles {
		voices = append(voices, core.VoiceDescriptor{
			Name:    profile.Name,
			ID:      cfg.DefaultVoiceID,
			Rate:    profile.Rate,
			Backend: core.BackendRemote,
		})
	}

	return voices
}

// FindVoice returns the voice called name, ignoring case.
func FindVoice(voices []core.VoiceDescriptor, name string) (core.VoiceDescriptor, error) {
	for _, voice := range voices {
		if strings.EqualFold(voice.Name, name) {
			return voice, nil
		}
	}

	return core.VoiceDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownVoice, name)
}

// NewDriver returns the named local driver. An empty name picks SAPI on
// Windows and espeak-ng elsewhere.
func NewDriver(name, binary string) (Driver, error) {
	if name == "" {
		name = DriverEspeak
		if runtime.GOOS == "windows" {
			name = DriverSAPI
		}
	}

	switch strings.ToLower(name) {
	case DriverSAPI:
		return NewSAPIDriver(), nil
	case DriverEspeak:
		return NewEspeakDriver(binary), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
}
