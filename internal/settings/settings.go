// Package settings persists user settings and the block list as flat text
// files shared with the settings window.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/book-expert/valvoice/internal/fileutil"
)

// Recognized keys.
const (
	KeyUserID  = "UserID"
	KeyPremium = "Premium"
	KeyPTTKey  = "PTTKey"
	KeyAPIKey  = "CartesiaApiKey"
	KeyVoice   = "Voice"
)

// DefaultPTTKey is the push-to-talk key used when none is stored.
const DefaultPTTKey = 'V'

// ErrUnknownKey is returned by Set for a key this package does not persist.
var ErrUnknownKey = errors.New("unknown settings key")

// Settings is the content of ValVoiceSettings.txt.
type Settings struct {
	UserID  string
	Premium bool
	PTTKey  rune
	APIKey  string
	Voice   string
}

// Defaults returns the settings used when no file exists.
func Defaults() Settings {
	return Settings{PTTKey: DefaultPTTKey}
}

// Parse reads Key=Value lines. Unknown keys and malformed lines are ignored.
func Parse(data []byte) (Settings, error) {
	text, err := decodeText(data)
	if err != nil {
		return Settings{}, err
	}

	settings := Defaults()

	for _, line := range lines(text) {
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		// Values are free-form; Set only fails on unknown keys.
		_ = settings.Set(strings.TrimSpace(key), value)
	}

	return settings, nil
}

// Set assigns one key from its file representation. Values are kept
// verbatim, so a value read back from the file equals the one saved.
func (s *Settings) Set(key, value string) error {
	switch key {
	case KeyUserID:
		s.UserID = value
	case KeyPremium:
		s.Premium = strings.TrimSpace(value) == "1"
	case KeyPTTKey:
		r, size := utf8.DecodeRuneInString(value)
		if size > 0 && r != utf8.RuneError {
			s.PTTKey = r
		}
	case KeyAPIKey:
		s.APIKey = value
	case KeyVoice:
		s.Voice = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	return nil
}

// Get returns the file representation of key.
func (s Settings) Get(key string) (string, error) {
	switch key {
	case KeyUserID:
		return s.UserID, nil
	case KeyPremium:
		return premiumValue(s.Premium), nil
	case KeyPTTKey:
		return string(s.pttKey()), nil
	case KeyAPIKey:
		return s.APIKey, nil
	case KeyVoice:
		return s.Voice, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
}

// Keys lists the persisted keys in file order.
func Keys() []string {
	return []string{KeyUserID, KeyPremium, KeyPTTKey, KeyAPIKey, KeyVoice}
}

// Encode renders the settings as UTF-8 Key=Value lines.
func (s Settings) Encode() []byte {
	var builder strings.Builder

	for _, key := range Keys() {
		value, _ := s.Get(key)
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(value)
		builder.WriteByte('\n')
	}

	return []byte(builder.String())
}

func (s Settings) pttKey() rune {
	if s.PTTKey == 0 {
		return DefaultPTTKey
	}

	return s.PTTKey
}

func premiumValue(premium bool) string {
	if premium {
		return "1"
	}

	return "0"
}

// Store reads and writes one settings file.
type Store struct {
	path string
}

// NewStore returns a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the file. A missing file yields Defaults.
func (s *Store) Load() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}

	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings %s: %w", s.path, err)
	}

	settings, err := Parse(data)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings %s: %w", s.path, err)
	}

	return settings, nil
}

// Save replaces the file atomically.
func (s *Store) Save(settings Settings) error {
	err := fileutil.WriteFileAtomic(s.path, settings.Encode())
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	return nil
}
