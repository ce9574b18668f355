package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	tempFilePrefix  = "tts_output"
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// ErrNoAudio is returned when there is nothing to write.
var ErrNoAudio = errors.New("audio data is empty")

// WriteTemp stores data in dir under a name unique to this call and returns
// the path. The caller owns the file and must remove it.
func WriteTemp(dir string, format OutputFormat, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrNoAudio
	}

	if dir == "" {
		dir = os.TempDir()
	}

	mkdirErr := os.MkdirAll(dir, dirPermissions)
	if mkdirErr != nil {
		return "", fmt.Errorf("failed to create audio directory %s: %w", dir, mkdirErr)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s%s", tempFilePrefix, uuid.NewString(), format.Extension()))

	writeErr := os.WriteFile(path, data, filePermissions)
	if writeErr != nil {
		return "", fmt.Errorf("failed to write audio file %s: %w", path, writeErr)
	}

	return path, nil
}
