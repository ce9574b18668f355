package narration

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

const (
	defaultEspeakBinary = "espeak-ng"
	espeakBaseWPM       = 175
	espeakWPMPerStep    = 10
	espeakMinFields     = 5
)

var errEspeakNotOpen = errors.New("espeak driver is not open")

// EspeakDriver speaks through the espeak-ng command line program.
type EspeakDriver struct {
	binary string

	mu     sync.Mutex
	path   string
	voices []espeakVoice
}

type espeakVoice struct {
	language string
	name     string
}

// NewEspeakDriver returns a driver for binary, or espeak-ng when empty.
func NewEspeakDriver(binary string) *EspeakDriver {
	if binary == "" {
		binary = defaultEspeakBinary
	}

	return &EspeakDriver{binary: binary}
}

// Open resolves the binary on PATH.
func (d *EspeakDriver) Open() error {
	path, err := exec.LookPath(d.binary)
	if err != nil {
		return fmt.Errorf("failed to find %s: %w", d.binary, err)
	}

	d.mu.Lock()
	d.path = path
	d.mu.Unlock()

	return nil
}

// Voices lists the installed voices as "Name (language)".
func (d *EspeakDriver) Voices() ([]string, error) {
	path, err := d.resolved()
	if err != nil {
		return nil, err
	}

	// #nosec G204 -- the binary comes from local configuration
	output, err := exec.Command(path, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("%s --voices failed: %w", d.binary, err)
	}

	voices := parseEspeakVoices(output)

	d.mu.Lock()
	d.voices = voices
	d.mu.Unlock()

	descriptions := make([]string, len(voices))
	for i, voice := range voices {
		descriptions[i] = fmt.Sprintf("%s (%s)", voice.name, voice.language)
	}

	return descriptions, nil
}

// Speak runs espeak-ng for text and waits for it to exit.
func (d *EspeakDriver) Speak(ctx context.Context, index, rate int, text string) error {
	path, err := d.resolved()
	if err != nil {
		return err
	}

	d.mu.Lock()
	if index < 0 || index >= len(d.voices) {
		d.mu.Unlock()

		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	voice := d.voices[index]
	d.mu.Unlock()

	args := []string{
		"-v", voice.language,
		"-s", strconv.Itoa(espeakWPM(rate)),
		"--", text,
	}

	// #nosec G204 -- text is passed as a single argument after "--"
	cmd := exec.CommandContext(ctx, path, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s execution failed: %w - output: %s", d.binary, err, strings.TrimSpace(string(output)))
	}

	return nil
}

// Close forgets the resolved binary.
func (d *EspeakDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.path = ""
	d.voices = nil

	return nil
}

func (d *EspeakDriver) resolved() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.path == "" {
		return "", errEspeakNotOpen
	}

	return d.path, nil
}

// parseEspeakVoices reads the table printed by --voices:
//
//	Pty Language       Age/Gender VoiceName          File          Other Languages
//	 5  en-gb           --/M      English_(Great_Britain) gmw/en   (en 2)
func parseEspeakVoices(output []byte) []espeakVoice {
	var voices []espeakVoice

	scanner := bufio.NewScanner(bytes.NewReader(output))
	header := true

	for scanner.Scan() {
		if header {
			header = false

			continue
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) < espeakMinFields {
			continue
		}

		voices = append(voices, espeakVoice{
			language: fields[1],
			name:     strings.ReplaceAll(fields[3], "_", " "),
		})
	}

	return voices
}

// espeakWPM maps the SAPI rate scale onto words per minute.
func espeakWPM(rate int) int {
	return espeakBaseWPM + ClampRate(rate)*espeakWPMPerStep
}
