// Package session is the narration state of one signed-in user: their
// settings, block list, daily quota, and the backend and voice currently
// chosen.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/valvoice/internal/core"
	"github.com/book-expert/valvoice/internal/narration"
	"github.com/book-expert/valvoice/internal/quota"
	"github.com/book-expert/valvoice/internal/settings"
	"github.com/book-expert/valvoice/internal/text"
)

var (
	// ErrSenderBlocked is returned by SpeakFrom for a blocked sender.
	ErrSenderBlocked = errors.New("sender is blocked")
	// ErrMissingDependency is returned by New when a required part is nil.
	ErrMissingDependency = errors.New("session dependency missing")
	// ErrUnknownBackend is returned by SetBackend for an unknown name.
	ErrUnknownBackend = errors.New("unknown narration backend")
)

// CredentialSetter accepts a new remote API key at runtime.
type CredentialSetter interface {
	SetAPIKey(apiKey string)
}

// Deps are the parts a Session coordinates. Local may be nil when no
// operating system engine is available.
type Deps struct {
	Settings    *settings.Store
	BlockList   *settings.BlockList
	Quota       *quota.Tracker
	Remote      *narration.RemoteNarrator
	Credentials CredentialSetter
	Local       *narration.LocalEngine
	Catalog     []core.VoiceDescriptor
	Backend     core.Backend
	Log         *logger.Logger
}

// Session is safe for concurrent use.
type Session struct {
	deps     Deps
	preparer *text.Preparer

	mu       sync.Mutex
	current  settings.Settings
	backend  core.Backend
	voice    core.VoiceDescriptor
	hasVoice bool
}

// New loads the stored settings and applies them. When the configured local
// engine cannot start, the session narrates with the remote backend instead.
func New(deps Deps) (*Session, error) {
	if deps.Settings == nil || deps.BlockList == nil || deps.Quota == nil || deps.Remote == nil ||
		deps.Log == nil {
		return nil, ErrMissingDependency
	}

	if deps.Backend == "" {
		deps.Backend = core.BackendRemote
	}

	sess := &Session{deps: deps, preparer: text.NewPreparer()}

	loaded, err := deps.Settings.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	sess.applyLocked(loaded)

	err = sess.SetBackend(deps.Backend)
	if err != nil {
		if deps.Backend != core.BackendLocal {
			return nil, err
		}

		deps.Log.Warn("Local speech engine unavailable, narrating with %s: %v", core.BackendRemote, err)

		err = sess.SetBackend(core.BackendRemote)
		if err != nil {
			return nil, err
		}
	}

	return sess, nil
}

// Speak prepares text, charges the quota and hands the result to the active
// backend. The returned Task reports the narration outcome.
func (s *Session) Speak(raw string) (*narration.Task, error) {
	prepared := s.preparer.Prepare(raw)
	if prepared == "" {
		return nil, narration.ErrEmptyInput
	}

	s.mu.Lock()
	backend := s.backend
	voice, hasVoice := s.voice, s.hasVoice
	s.mu.Unlock()

	if backend == core.BackendLocal && len(s.deps.Local.Voices()) == 0 {
		return nil, narration.ErrNoVoiceSelected
	}

	chars := utf8.RuneCountInString(prepared)

	err := s.deps.Quota.Allow(chars)
	if err != nil {
		return nil, err
	}

	var task *narration.Task

	switch backend {
	case core.BackendLocal:
		task, err = s.deps.Local.SpeakAsync(prepared)
	default:
		if !hasVoice {
			err = narration.ErrNoVoiceSelected

			break
		}

		task, err = s.deps.Remote.Speak(prepared, voice)
	}

	if err != nil {
		s.deps.Quota.Refund(chars)

		return nil, err
	}

	return task, nil
}

// SpeakFrom narrates a chat line unless its sender is blocked.
func (s *Session) SpeakFrom(senderID, raw string) (*narration.Task, error) {
	if !s.Allowed(senderID) {
		return nil, fmt.Errorf("%w: %s", ErrSenderBlocked, senderID)
	}

	return s.Speak(raw)
}

// Backend returns the active backend.
func (s *Session) Backend() core.Backend {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.backend
}

// SetBackend switches backends. Switching to local initializes the engine and
// enumerates its voices on first use.
func (s *Session) SetBackend(backend core.Backend) error {
	switch backend {
	case core.BackendRemote:
	case core.BackendLocal:
		if s.deps.Local == nil {
			return narration.ErrEngineUnavailable
		}

		err := s.deps.Local.Initialize()
		if err != nil {
			return err
		}

		if len(s.deps.Local.Voices()) == 0 {
			_, err = s.deps.Local.EnumerateVoices()
			if err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}

	s.mu.Lock()
	s.backend = backend
	s.mu.Unlock()

	s.deps.Log.Info("Narration backend set to %s", backend)

	return nil
}

// Voices lists the voices of the active backend.
func (s *Session) Voices() []core.VoiceDescriptor {
	if s.Backend() == core.BackendLocal {
		return s.deps.Local.Voices()
	}

	return append([]core.VoiceDescriptor(nil), s.deps.Catalog...)
}

// Voice returns the selected voice of the active backend.
func (s *Session) Voice() (core.VoiceDescriptor, bool) {
	if s.Backend() == core.BackendLocal {
		voices := s.deps.Local.Voices()

		index := max(0, s.deps.Local.Selected())
		if index >= len(voices) {
			return core.VoiceDescriptor{}, false
		}

		return voices[index], true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.voice, s.hasVoice
}

// SelectVoice chooses a voice of the active backend by name. A remote choice
// is remembered in the settings file.
func (s *Session) SelectVoice(name string) error {
	if s.Backend() == core.BackendLocal {
		voice, err := narration.FindVoice(s.deps.Local.Voices(), name)
		if err != nil {
			return err
		}

		index, err := strconv.Atoi(voice.ID)
		if err != nil {
			return fmt.Errorf("%w: %q", narration.ErrUnknownVoice, name)
		}

		return s.deps.Local.SelectVoice(index)
	}

	voice, err := narration.FindVoice(s.deps.Catalog, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	next := s.current
	s.mu.Unlock()

	next.Voice = voice.Name

	return s.UpdateSettings(next)
}

// Settings returns the current settings.
func (s *Session) Settings() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// UpdateSettings persists next and applies it: the API key, the premium flag
// and the remembered voice take effect immediately.
func (s *Session) UpdateSettings(next settings.Settings) error {
	err := s.deps.Settings.Save(next)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	s.mu.Lock()
	s.applyLocked(next)
	s.mu.Unlock()

	return nil
}

// Reload re-reads the settings file after another process changed it.
func (s *Session) Reload() error {
	loaded, err := s.deps.Settings.Load()
	if err != nil {
		return fmt.Errorf("failed to reload settings: %w", err)
	}

	s.mu.Lock()
	s.applyLocked(loaded)
	s.mu.Unlock()

	s.deps.Log.Info("Settings reloaded from %s", s.deps.Settings.Path())

	return nil
}

// Block adds id to the block list.
func (s *Session) Block(id string) error {
	return s.deps.BlockList.Add(id)
}

// Unblock removes id from the block list.
func (s *Session) Unblock(id string) error {
	return s.deps.BlockList.Remove(id)
}

// Allowed reports whether messages from id may be narrated.
func (s *Session) Allowed(id string) bool {
	return !s.deps.BlockList.Contains(id)
}

// Quota returns today's usage.
func (s *Session) Quota() quota.Stats {
	return s.deps.Quota.Stats()
}

// Close releases the local engine.
func (s *Session) Close() {
	if s.deps.Local != nil {
		s.deps.Local.Shutdown()
	}
}

func (s *Session) applyLocked(next settings.Settings) {
	s.current = next
	s.deps.Quota.SetPremium(next.Premium)

	if next.APIKey != "" && s.deps.Credentials != nil {
		s.deps.Credentials.SetAPIKey(next.APIKey)
	}

	s.voice, s.hasVoice = core.VoiceDescriptor{}, false

	if next.Voice != "" {
		voice, err := narration.FindVoice(s.deps.Catalog, next.Voice)
		if err == nil {
			s.voice, s.hasVoice = voice, true

			return
		}

		s.deps.Log.Warn("Stored voice %q is not available, using the default", next.Voice)
	}

	if len(s.deps.Catalog) > 0 {
		s.voice, s.hasVoice = s.deps.Catalog[0], true
	}
}
