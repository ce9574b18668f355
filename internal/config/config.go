// Package config provides the configuration structure for valvoice.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/valvoice/internal/audio"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Defaults applied to unset fields.
const (
	DefaultCartesiaHost    = "api.cartesia.ai"
	DefaultCartesiaPort    = 443
	DefaultCartesiaPath    = "/tts/bytes"
	DefaultCartesiaVersion = "2024-06-10"
	DefaultModelID         = "sonic-english"
	DefaultLanguage        = "en"
	DefaultVoiceID         = "a0e99841-438c-4a64-b679-ae501e7d6091"
	DefaultTimeoutSeconds  = 30
	DefaultDailyLimit      = 20
	DefaultNarrationSubj   = "narration.requested"
	DefaultAudioBucket     = "NARRATION_AUDIO"
	DefaultSettingsFile    = "ValVoiceSettings.txt"
	DefaultBlockListFile   = "BlockedIds.txt"
	DefaultErrorLogFile    = "TTS_ErrorLog.txt"
	appDirName             = "valvoice"
	maxPort                = 65535
)

var (
	// ErrInvalidPort indicates a port outside 1..65535.
	ErrInvalidPort = errors.New("port must be between 1 and 65535")
	// ErrInvalidTimeout indicates a non-positive network timeout.
	ErrInvalidTimeout = errors.New("timeout_seconds must be positive")
	// ErrInvalidLimit indicates a negative daily limit.
	ErrInvalidLimit = errors.New("daily_limit must not be negative")
	// ErrInvalidBackend indicates an unknown narration backend.
	ErrInvalidBackend = errors.New("backend must be \"remote\" or \"local\"")
	// ErrInvalidRate indicates a speech rate outside -10..10.
	ErrInvalidRate = errors.New("rate must be between -10 and 10")
	// ErrMissingVoiceID indicates a remote voice with no Cartesia voice id.
	ErrMissingVoiceID = errors.New("voice has no id and default_voice_id is empty")
)

// VoiceConfig names one remote voice.
type VoiceConfig struct {
	Name string `toml:"name"`
	ID   string `toml:"id"`
	Rate int    `toml:"rate"`
}

// CartesiaConfig holds the remote text-to-speech settings.
type CartesiaConfig struct {
	APIKey         string        `toml:"api_key"         env:"CARTESIA_API_KEY"`
	Host           string        `toml:"host"            env:"CARTESIA_HOST"`
	Port           int           `toml:"port"            env:"CARTESIA_PORT"`
	Path           string        `toml:"path"`
	Version        string        `toml:"version"         env:"CARTESIA_VERSION"`
	ModelID        string        `toml:"model_id"        env:"CARTESIA_MODEL_ID"`
	Language       string        `toml:"language"`
	Container      string        `toml:"container"`
	Encoding       string        `toml:"encoding"`
	SampleRate     int           `toml:"sample_rate"`
	TimeoutSeconds int           `toml:"timeout_seconds" env:"CARTESIA_TIMEOUT_SECONDS"`
	DefaultVoiceID string        `toml:"default_voice_id" env:"CARTESIA_VOICE_ID"`
	Voices         []VoiceConfig `toml:"voices"`
}

// LocalConfig holds the operating system speech engine settings.
type LocalConfig struct {
	Driver string `toml:"driver" env:"VALVOICE_LOCAL_DRIVER"`
	Binary string `toml:"binary"`
	Rate   int    `toml:"rate"`
}

// PlayerConfig overrides the platform audio player.
type PlayerConfig struct {
	Command string   `toml:"command" env:"VALVOICE_PLAYER"`
	Args    []string `toml:"args"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"                       env:"NATS_URL"`
	NarrationSubject       string `toml:"narration_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	Play                   bool   `toml:"play"`
}

// QuotaConfig holds the daily message budget.
type QuotaConfig struct {
	DailyLimit int `toml:"daily_limit"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir   string `toml:"base_logs_dir" env:"VALVOICE_LOGS_DIR"`
	DataDir       string `toml:"data_dir"      env:"VALVOICE_DATA_DIR"`
	AudioDir      string `toml:"audio_dir"`
	SettingsFile  string `toml:"settings_file"`
	BlockListFile string `toml:"block_list_file"`
	ErrorLogFile  string `toml:"error_log_file"`
}

// Config is the root configuration structure.
type Config struct {
	Backend  string         `toml:"backend" env:"VALVOICE_BACKEND"`
	Cartesia CartesiaConfig `toml:"cartesia"`
	Local    LocalConfig    `toml:"local"`
	Player   PlayerConfig   `toml:"player"`
	NATS     NATSConfig     `toml:"nats"`
	Quota    QuotaConfig    `toml:"quota"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration through the central configurator, then applies
// environment overrides and defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile decodes the TOML file at path. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if len(data) > 0 {
		decodeErr := toml.Unmarshal(data, &cfg)
		if decodeErr != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, decodeErr)
		}
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	envErr := env.Parse(cfg)
	if envErr != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", envErr)
	}

	cfg.ApplyDefaults()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "remote"
	}

	c.Cartesia.applyDefaults()

	if c.NATS.NarrationSubject == "" {
		c.NATS.NarrationSubject = DefaultNarrationSubj
	}

	if c.NATS.AudioObjectStoreBucket == "" {
		c.NATS.AudioObjectStoreBucket = DefaultAudioBucket
	}

	if c.Quota.DailyLimit == 0 {
		c.Quota.DailyLimit = DefaultDailyLimit
	}

	c.Paths.applyDefaults()
}

func (c *CartesiaConfig) applyDefaults() {
	setString(&c.Host, DefaultCartesiaHost)
	setString(&c.Path, DefaultCartesiaPath)
	setString(&c.Version, DefaultCartesiaVersion)
	setString(&c.ModelID, DefaultModelID)
	setString(&c.Language, DefaultLanguage)
	setString(&c.DefaultVoiceID, DefaultVoiceID)
	setString(&c.Container, audio.DefaultContainer)
	setString(&c.Encoding, audio.DefaultEncoding)

	if c.Port == 0 {
		c.Port = DefaultCartesiaPort
	}

	if c.SampleRate == 0 {
		c.SampleRate = audio.DefaultSampleRate
	}

	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
}

func (p *PathsConfig) applyDefaults() {
	if p.DataDir == "" {
		p.DataDir = defaultDataDir()
	}

	if p.BaseLogsDir == "" {
		p.BaseLogsDir = filepath.Join(p.DataDir, "logs")
	}

	if p.AudioDir == "" {
		p.AudioDir = filepath.Join(os.TempDir(), appDirName)
	}

	setString(&p.SettingsFile, DefaultSettingsFile)
	setString(&p.BlockListFile, DefaultBlockListFile)
	setString(&p.ErrorLogFile, DefaultErrorLogFile)
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.Backend != "remote" && c.Backend != "local" {
		return fmt.Errorf("%w: got %q", ErrInvalidBackend, c.Backend)
	}

	if c.Cartesia.Port < 1 || c.Cartesia.Port > maxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Cartesia.Port)
	}

	if c.Cartesia.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTimeout, c.Cartesia.TimeoutSeconds)
	}

	formatErr := c.Cartesia.Format().Validate()
	if formatErr != nil {
		return fmt.Errorf("invalid cartesia output format: %w", formatErr)
	}

	if c.Quota.DailyLimit < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLimit, c.Quota.DailyLimit)
	}

	if !validRate(c.Local.Rate) {
		return fmt.Errorf("local: %w: got %d", ErrInvalidRate, c.Local.Rate)
	}

	if len(c.Cartesia.Voices) == 0 && c.Cartesia.DefaultVoiceID == "" {
		return ErrMissingVoiceID
	}

	for _, voice := range c.Cartesia.Voices {
		if !validRate(voice.Rate) {
			return fmt.Errorf("voice %s: %w: got %d", voice.Name, ErrInvalidRate, voice.Rate)
		}

		if voice.ID == "" && c.Cartesia.DefaultVoiceID == "" {
			return fmt.Errorf("voice %s: %w", voice.Name, ErrMissingVoiceID)
		}
	}

	return nil
}

// Format returns the requested output format.
func (c CartesiaConfig) Format() audio.OutputFormat {
	return audio.OutputFormat{
		Container:  c.Container,
		Encoding:   c.Encoding,
		SampleRate: c.SampleRate,
	}
}

// Timeout returns the network timeout as a duration.
func (c CartesiaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SettingsPath returns the absolute settings file path.
func (p PathsConfig) SettingsPath() string {
	return filepath.Join(p.DataDir, p.SettingsFile)
}

// BlockListPath returns the absolute block list file path.
func (p PathsConfig) BlockListPath() string {
	return filepath.Join(p.DataDir, p.BlockListFile)
}

// ErrorLogPath returns the absolute error log path.
func (p PathsConfig) ErrorLogPath() string {
	return filepath.Join(p.DataDir, p.ErrorLogFile)
}

func defaultDataDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName)
	}

	return filepath.Join(configDir, appDirName)
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func validRate(rate int) bool {
	return rate >= -10 && rate <= 10
}
