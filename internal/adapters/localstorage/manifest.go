package localstorage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ytdownloader/internal/core/domain"
)

const (
	lockWait  = 5 * time.Second
	lockStale = 30 * time.Second
)

// Manifest is the JSON array of produced videos, newest first.
type Manifest struct {
	Path string
}

// NewManifest creates a Manifest stored at path.
func NewManifest(path string) *Manifest {
	return &Manifest{Path: path}
}

// Prepend inserts record at index 0 and rewrites the file. Existing content
// that is missing or unreadable counts as an empty list.
func (m *Manifest) Prepend(ctx context.Context, record domain.VideoRecord) error {
	if err := os.MkdirAll(filepath.Dir(m.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	lock, err := acquireLock(m.Path+".lock", lockWait, lockStale)
	if err != nil {
		return err
	}
	defer lock.release()

	existing := m.readRaw()

	entry, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	entries := make([]json.RawMessage, 0, len(existing)+1)
	entries = append(entries, entry)
	entries = append(entries, existing...)

	data, err := encodeEntries(entries)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(m.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", m.Path, err)
	}
	return nil
}

// Load returns the records currently in the manifest. Entries that are not
// objects are skipped.
func (m *Manifest) Load(ctx context.Context) ([]domain.VideoRecord, error) {
	raw := m.readRaw()
	records := make([]domain.VideoRecord, 0, len(raw))
	for _, r := range raw {
		var rec domain.VideoRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// readRaw keeps entries as raw JSON so fields this program does not know
// about survive a rewrite.
func (m *Manifest) readRaw() []json.RawMessage {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

func encodeEntries(entries []json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}
