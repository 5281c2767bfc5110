// Package session persists the small JSON documents that carry correction
// state across process restarts: the prefilled form, the correction callback
// and the mass correction queue.
package session

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Well-known document keys.
const (
	PrefilledContactKey = "prefilledContactData"
	CorrectionCallback  = "correction-callback"
	MassCorrectionQueue = "mass-correction-queue"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// Backend stores opaque documents by key. Load returns nil, nil for a key
// that was never saved or has been cleared.
type Backend interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Clear(key string) error
}

type InMemoryBackend struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{docs: map[string][]byte{}}
}

func (b *InMemoryBackend) Load(key string) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.docs[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (b *InMemoryBackend) Save(key string, data []byte) error {
	if b == nil {
		return nil
	}
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[key] = append([]byte(nil), data...)
	return nil
}

func (b *InMemoryBackend) Clear(key string) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.docs, key)
	return nil
}

// Keys lists the stored keys in sorted order.
func (b *InMemoryBackend) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.docs))
	for key := range b.docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// JSONFileBackend keeps every document in a single JSON object on disk.
type JSONFileBackend struct {
	Path string

	mu sync.Mutex
}

func NewJSONFileBackend(path string) *JSONFileBackend {
	return &JSONFileBackend{Path: strings.TrimSpace(path)}
}

func (b *JSONFileBackend) Load(key string) ([]byte, error) {
	if b == nil || b.Path == "" {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	docs, err := b.readLocked()
	if err != nil {
		return nil, err
	}
	data, ok := docs[key]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (b *JSONFileBackend) Save(key string, data []byte) error {
	if b == nil || b.Path == "" {
		return nil
	}
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	docs, err := b.readLocked()
	if err != nil {
		return err
	}
	docs[key] = append([]byte(nil), data...)
	return b.writeLocked(docs)
}

func (b *JSONFileBackend) Clear(key string) error {
	if b == nil || b.Path == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	docs, err := b.readLocked()
	if err != nil {
		return err
	}
	if _, ok := docs[key]; !ok {
		return nil
	}
	delete(docs, key)
	return b.writeLocked(docs)
}

func (b *JSONFileBackend) readLocked() (map[string][]byte, error) {
	raw, err := os.ReadFile(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string][]byte{}, nil
		}
		return nil, err
	}
	return decodeDocuments(raw)
}

func (b *JSONFileBackend) writeLocked(docs map[string][]byte) error {
	data, err := encodeDocuments(docs)
	if err != nil {
		return err
	}
	dir := filepath.Dir(b.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return writeFileAtomic(b.Path, data, 0o644)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
