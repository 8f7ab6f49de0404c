package kv

import (
	"bytes"
	"context"
	"iter"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-memory Store. It is safe for concurrent use and
// intended for tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
	opts *Options
}

// NewMemory creates an empty in-memory Store. Pass nil for default
// options.
func NewMemory(opts *Options) *Memory {
	return &Memory{data: make(map[string][]byte), opts: opts}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	k, err := m.opts.encode(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	v, ok := m.data[string(k)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *Memory) Set(ctx context.Context, key Key, value []byte) error {
	return m.BatchSet(ctx, []Entry{{Key: key, Value: value}})
}

func (m *Memory) Delete(ctx context.Context, key Key) error {
	return m.BatchDelete(ctx, []Key{key})
}

func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p, err := m.opts.listPrefix(prefix)
	if err != nil {
		return errSeq(err)
	}
	m.mu.RLock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, string(p)) {
			keys = append(keys, k)
		}
	}
	entries := make([]Entry, 0, len(keys))
	slices.Sort(keys)
	for _, k := range keys {
		entries = append(entries, Entry{Key: m.opts.decode([]byte(k)), Value: bytes.Clone(m.data[k])})
	}
	m.mu.RUnlock()

	return func(yield func(Entry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *Memory) BatchSet(_ context.Context, entries []Entry) error {
	enc := make([]string, len(entries))
	for i, e := range entries {
		k, err := m.opts.encode(e.Key)
		if err != nil {
			return err
		}
		enc[i] = string(k)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range entries {
		m.data[enc[i]] = bytes.Clone(e.Value)
	}
	return nil
}

func (m *Memory) BatchDelete(_ context.Context, keys []Key) error {
	enc := make([]string, len(keys))
	for i, key := range keys {
		k, err := m.opts.encode(key)
		if err != nil {
			return err
		}
		enc[i] = string(k)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range enc {
		delete(m.data, k)
	}
	return nil
}

func (m *Memory) Close() error { return nil }
