package live

import (
	"fmt"
	"io"

	"walkforward/internal/core"
)

// OpenStore builds the state backend named in configuration. The returned
// closer is a no-op for backends without resources.
func OpenStore(backend, path string) (core.StateStore, io.Closer, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nopCloser{}, nil
	case "json":
		return NewJSONStore(path), nopCloser{}, nil
	case "sqlite":
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
