package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

const (
	// filePlaceholder is replaced by the audio path in player arguments.
	filePlaceholder = "{file}"
	// FileEnv names the environment variable holding the audio path while the
	// player runs.
	FileEnv = "VALVOICE_AUDIO_FILE"
)

// ErrNoPlayerCommand is returned when no playback command is configured or known.
var ErrNoPlayerCommand = errors.New("no audio player command for this platform")

// CommandPlayer plays files by running an external program and waiting for it.
type CommandPlayer struct {
	command string
	args    []string
	// appendPath adds the path as a final argument when no argument holds
	// the placeholder.
	appendPath bool
}

// NewCommandPlayer returns a player for command. Any argument containing
// "{file}" has it replaced with the path being played; when none does, the
// path is appended. The path is also exported to the player as FileEnv. An
// empty command selects the platform default.
func NewCommandPlayer(command string, args []string) (*CommandPlayer, error) {
	if command == "" {
		return defaultPlayer(runtime.GOOS)
	}

	return &CommandPlayer{command: command, args: args, appendPath: true}, nil
}

// Play blocks until the player process exits.
func (p *CommandPlayer) Play(ctx context.Context, path string) error {
	args := p.expandArgs(path)

	// #nosec G204 -- the command comes from local configuration
	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Env = append(os.Environ(), FileEnv+"="+path)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("audio player %s failed: %w - output: %s", p.command, err, strings.TrimSpace(string(output)))
	}

	return nil
}

func (p *CommandPlayer) expandArgs(path string) []string {
	expanded := make([]string, 0, len(p.args)+1)
	substituted := false

	for _, arg := range p.args {
		if strings.Contains(arg, filePlaceholder) {
			arg = strings.ReplaceAll(arg, filePlaceholder, path)
			substituted = true
		}

		expanded = append(expanded, arg)
	}

	if !substituted && p.appendPath {
		expanded = append(expanded, path)
	}

	return expanded
}

// defaultPlayer returns the platform player. The Windows player reads the
// path from FileEnv because PowerShell parses every -Command argument as
// script text.
func defaultPlayer(goos string) (*CommandPlayer, error) {
	switch goos {
	case "windows":
		return &CommandPlayer{
			command: "powershell",
			args: []string{
				"-NoProfile", "-NonInteractive", "-Command",
				"(New-Object Media.SoundPlayer $env:" + FileEnv + ").PlaySync()",
			},
		}, nil
	case "darwin":
		return &CommandPlayer{command: "afplay", appendPath: true}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return &CommandPlayer{command: "aplay", args: []string{"-q"}, appendPath: true}, nil
	default:
		return nil, ErrNoPlayerCommand
	}
}

// NoopPlayer discards playback. It is used when the host has no audio output.
type NoopPlayer struct{}

// Play returns immediately.
func (NoopPlayer) Play(context.Context, string) error {
	return nil
}
