package settings

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/book-expert/valvoice/internal/fileutil"
)

// ErrBlockIndexOutOfRange is returned by RemoveAt for an invalid position.
var ErrBlockIndexOutOfRange = errors.New("block list index out of range")

// BlockList is the set of sender IDs whose messages are never narrated,
// stored one ID per line in insertion order. Every mutation is persisted
// before it returns. It is safe for concurrent use.
type BlockList struct {
	mu   sync.RWMutex
	path string
	ids  []string
}

// OpenBlockList loads the list at path. A missing file is an empty list.
func OpenBlockList(path string) (*BlockList, error) {
	list := &BlockList{path: path}

	err := list.Reload()
	if err != nil {
		return nil, err
	}

	return list, nil
}

// ParseBlockList reads one ID per line, skipping empty lines and duplicates.
func ParseBlockList(data []byte) ([]string, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	var ids []string

	for _, line := range lines(text) {
		line = strings.TrimSpace(line)
		if line == "" || slices.Contains(ids, line) {
			continue
		}

		ids = append(ids, line)
	}

	return ids, nil
}

// Reload replaces the in-memory list with the file content.
func (b *BlockList) Reload() error {
	data, err := os.ReadFile(b.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read block list %s: %w", b.path, err)
	}

	ids, err := ParseBlockList(data)
	if err != nil {
		return fmt.Errorf("failed to parse block list %s: %w", b.path, err)
	}

	b.mu.Lock()
	b.ids = ids
	b.mu.Unlock()

	return nil
}

// Path returns the block list file path.
func (b *BlockList) Path() string {
	return b.path
}

// IDs returns a copy of the list.
func (b *BlockList) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return slices.Clone(b.ids)
}

// Contains reports whether id is blocked.
func (b *BlockList) Contains(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	return slices.Contains(b.ids, id)
}

// Add appends id. Empty and already blocked IDs are ignored.
func (b *BlockList) Add(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if slices.Contains(b.ids, id) {
		return nil
	}

	return b.commitLocked(append(slices.Clone(b.ids), id))
}

// Remove deletes id. Unknown IDs are ignored.
func (b *BlockList) Remove(id string) error {
	id = strings.TrimSpace(id)

	b.mu.Lock()
	defer b.mu.Unlock()

	index := slices.Index(b.ids, id)
	if index < 0 {
		return nil
	}

	return b.commitLocked(slices.Delete(slices.Clone(b.ids), index, index+1))
}

// RemoveAt deletes the ID at index, the way the settings window removes the
// selected row.
func (b *BlockList) RemoveAt(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if index < 0 || index >= len(b.ids) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrBlockIndexOutOfRange, index, len(b.ids))
	}

	return b.commitLocked(slices.Delete(slices.Clone(b.ids), index, index+1))
}

// Save writes the current list.
func (b *BlockList) Save() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.commitLocked(b.ids)
}

// commitLocked persists ids and adopts them only when the write succeeded.
func (b *BlockList) commitLocked(ids []string) error {
	var builder strings.Builder
	for _, id := range ids {
		builder.WriteString(id)
		builder.WriteByte('\n')
	}

	err := fileutil.WriteFileAtomic(b.path, []byte(builder.String()))
	if err != nil {
		return fmt.Errorf("failed to save block list: %w", err)
	}

	b.ids = ids

	return nil
}
