// Package cache stores rendered discovery results keyed by log content and
// discovery options.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/logflow/alphaflow/pkg/discovery"
	lferrors "github.com/logflow/alphaflow/pkg/errors"
	"github.com/logflow/alphaflow/pkg/render"
)

// Entry is one cached discovery result.
type Entry struct {
	Format               string    `json:"format"`
	Body                 []byte    `json:"body"`
	MaxTraceWeight       int64     `json:"max_trace_weight"`
	MaxActivityFrequency int64     `json:"max_activity_frequency"`
	Activities           int       `json:"activities"`
	Gateways             int       `json:"gateways"`
	Arcs                 int       `json:"arcs"`
	CreatedAt            time.Time `json:"created_at"`
}

// Cache is a result store. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, e *Entry) error
	Close() error
}

// Key derives a cache key from the unique traces of a log, the discovery
// options, the output format and the render options that change the
// document. The traces must come in TraceIndex order so the same log always
// hashes the same.
func Key(traces []discovery.WeightedTrace, opts discovery.Options, format string, ropts render.Options) string {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(v int64) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeString := func(s string) {
		writeInt(int64(len(s)))
		h.Write([]byte(s))
	}

	writeInt(int64(len(traces)))
	for _, t := range traces {
		writeInt(t.Count)
		writeInt(int64(len(t.Activities)))
		for _, a := range t.Activities {
			writeString(a)
		}
	}
	writeInt(opts.Thresholds.Node)
	writeInt(opts.Thresholds.Edge)
	writeString(opts.StartName)
	writeString(opts.EndName)
	writeString(format)
	writeString(ropts.Name)
	if ropts.BoundaryLabels {
		writeInt(1)
	} else {
		writeInt(0)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func encode(e *Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeCache, "failed to marshal cache entry")
	}
	return data, nil
}

func decode(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeCache, "failed to unmarshal cache entry")
	}
	return &e, nil
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (*Entry, error) { return nil, nil }
func (Noop) Set(context.Context, string, *Entry) error { return nil }
func (Noop) Close() error { return nil }

// Memory is an in-process cache with optional expiry, used by tests and by
// the server when Redis is disabled.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items map[string]memoryItem
}

type memoryItem struct {
	data    []byte
	expires time.Time
}

// NewMemory creates a memory cache. ttl <= 0 keeps entries forever.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, items: make(map[string]memoryItem)}
}

func (m *Memory) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	item, ok := m.items[key]
	if ok && !item.expires.IsZero() && !m.now().Before(item.expires) {
		delete(m.items, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return decode(item.data)
}

func (m *Memory) Set(_ context.Context, key string, e *Entry) error {
	data, err := encode(e)
	if err != nil {
		return err
	}
	item := memoryItem{data: data}
	if m.ttl > 0 {
		item.expires = m.now().Add(m.ttl)
	}

	m.mu.Lock()
	m.items[key] = item
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
