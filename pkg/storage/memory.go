package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Memory is an in-process FileStore.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

func (m *Memory) Read(_ context.Context, path string) (io.ReadCloser, error) {
	c, err := Clean(path)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[c]
	if !ok {
		return nil, fmt.Errorf("storage: read %s: %w", path, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Write(_ context.Context, path string) (io.WriteCloser, error) {
	c, err := Clean(path)
	if err != nil {
		return nil, err
	}
	return &memWriter{m: m, path: c}, nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	c, err := Clean(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, c)
	return nil
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	c, err := Clean(path)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[c]
	return ok, nil
}

type memWriter struct {
	bytes.Buffer
	m      *Memory
	path   string
	closed bool
}

func (w *memWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	w.m.files[w.path] = bytes.Clone(w.Bytes())
	return nil
}

func (w *memWriter) Abort() error {
	w.closed = true
	return nil
}

var _ FileStore = (*Memory)(nil)
