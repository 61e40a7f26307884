package server

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	lferrors "github.com/logflow/alphaflow/pkg/errors"
	"github.com/logflow/alphaflow/pkg/parser"
)

// LogEntry is an event log known to the server.
type LogEntry struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Format     string    `json:"format"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`

	// Watched logs live outside the store directory and are never deleted
	// from disk.
	Watched bool `json:"watched,omitempty"`
}

// LogStore keeps uploaded logs in a directory with a JSON index.
type LogStore struct {
	mu    sync.RWMutex
	dir   string
	index string
	logs  map[string]*LogEntry
}

// NewLogStore opens the store in dir, loading an existing index.
func NewLogStore(dir string) (*LogStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	s := &LogStore{
		dir:   dir,
		index: filepath.Join(dir, "index.json"),
		logs:  make(map[string]*LogEntry),
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// Add copies r into the store under a new ID. Only event-log extensions are
// accepted, and at most limit bytes are read when limit > 0.
func (s *LogStore) Add(name string, r io.Reader, limit int64) (*LogEntry, error) {
	format, err := parser.DetectFormat(name)
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeInvalidFormat, "unsupported log file").WithContext("name", name)
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, id+filepath.Ext(name))
	out, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	size, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && limit > 0 && size > limit {
		err = lferrors.Newf(lferrors.CodeInvalidFormat, "log exceeds %d bytes", limit)
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	entry := &LogEntry{
		ID:         id,
		Name:       filepath.Base(name),
		Path:       path,
		Format:     format.String(),
		Size:       size,
		UploadedAt: time.Now().UTC(),
	}
	return entry, s.put(entry)
}

// Register adds a log that stays where it is, as used by watch mode.
// Registering the same path again refreshes and returns its entry.
func (s *LogStore) Register(path string) (*LogEntry, error) {
	format, err := parser.DetectFormat(path)
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeInvalidFormat, "unsupported log file").WithContext("path", path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, lferrors.FileNotFound(path)
	}

	id := uuid.NewString()
	s.mu.RLock()
	for _, e := range s.logs {
		if e.Watched && e.Path == path {
			id = e.ID
			break
		}
	}
	s.mu.RUnlock()

	entry := &LogEntry{
		ID:         id,
		Name:       filepath.Base(path),
		Path:       path,
		Format:     format.String(),
		Size:       stat.Size(),
		UploadedAt: time.Now().UTC(),
		Watched:    true,
	}
	return entry, s.put(entry)
}

func (s *LogStore) put(entry *LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[entry.ID] = entry
	return s.saveLocked()
}

// Get retrieves a log by ID.
func (s *LogStore) Get(id string) (*LogEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.logs[id]
	return entry, ok
}

// List returns all logs, newest first.
func (s *LogStore) List() []*LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*LogEntry, 0, len(s.logs))
	for _, entry := range s.logs {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Delete removes a log and, unless it is watched, its file.
func (s *LogStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.logs[id]
	if !ok {
		return false
	}
	delete(s.logs, id)
	if !entry.Watched {
		os.Remove(entry.Path)
	}
	s.saveLocked()
	return true
}

// Count returns the number of logs.
func (s *LogStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}

func (s *LogStore) saveLocked() error {
	data, err := json.MarshalIndent(s.logs, "", "  ")
	if err != nil {
		return err
	}

	// Write atomically
	tmpPath := s.index + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.index); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *LogStore) load() error {
	data, err := os.ReadFile(s.index)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.logs)
}
