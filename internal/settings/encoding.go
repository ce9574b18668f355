package settings

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeText converts file content to UTF-8. A UTF-16 or UTF-8 byte order
// mark selects the encoding; without one the content is read as UTF-8.
func decodeText(data []byte) (string, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", fmt.Errorf("failed to decode text: %w", err)
	}

	return string(decoded), nil
}

// lines splits text on LF or CRLF. Line content is returned unchanged and
// has no length limit.
func lines(text string) []string {
	split := strings.Split(text, "\n")
	for i, line := range split {
		split[i] = strings.TrimSuffix(line, "\r")
	}

	return split
}
