package session

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

type BackendFactory func(dsn string) (Backend, error)

var backendFactoryRegistry = struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}{
	factories: map[string]BackendFactory{},
}

// RegisterBackendFactory makes BuildBackendFromDSN route scheme to factory.
// Registered factories take precedence over the built-in schemes.
func RegisterBackendFactory(scheme string, factory BackendFactory) {
	scheme = normalizeBackendScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	backendFactoryRegistry.mu.Lock()
	defer backendFactoryRegistry.mu.Unlock()
	backendFactoryRegistry.factories[scheme] = factory
}

func lookupBackendFactory(scheme string) (BackendFactory, bool) {
	scheme = normalizeBackendScheme(scheme)
	backendFactoryRegistry.mu.RLock()
	defer backendFactoryRegistry.mu.RUnlock()
	factory, ok := backendFactoryRegistry.factories[scheme]
	return factory, ok
}

func normalizeBackendScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

// BuildBackendFromDSN returns the session backend for dsn. An empty dsn
// yields an in-memory backend.
func BuildBackendFromDSN(dsn string) (Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewInMemoryBackend(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeBackendScheme(parsed.Scheme)
	if factory, ok := lookupBackendFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewJSONFileBackend(path), nil
	case "memory", "mem", "inmem":
		return NewInMemoryBackend(), nil
	case "postgres", "postgresql":
		backend, err := NewPostgresBackend(dsn)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "sqlite", "sqlite3":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		backend, err := NewSQLiteBackend(path)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "mysql":
		return nil, fmt.Errorf("%w: session backend %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported session backend scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	// file://relative/path parses "relative" as the host
	path := strings.TrimSpace(parsed.Host + parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}

func decodeDocuments(raw []byte) (map[string][]byte, error) {
	docs := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("decode session file: %w", err)
		}
	}
	out := make(map[string][]byte, len(docs))
	for key, doc := range docs {
		out[key] = []byte(doc)
	}
	return out, nil
}

func encodeDocuments(docs map[string][]byte) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(docs))
	for key, doc := range docs {
		if !json.Valid(doc) {
			return nil, fmt.Errorf("%w: session document %q is not JSON", ErrInvalidInput, key)
		}
		out[key] = json.RawMessage(doc)
	}
	return json.MarshalIndent(out, "", "  ")
}
