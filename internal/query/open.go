package query

import (
	"context"
	"fmt"

	"github.com/rescale/livelist/internal/config"
)

// MemoryIdentity is the identity field of the memory backend Open creates.
const MemoryIdentity = "id"

// Open creates the backend selected by backend.Kind.
func Open(ctx context.Context, backend config.BackendConfig, proxy config.ProxyConfig) (Backend, error) {
	if err := backend.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %q backend: %w", backend.Kind, err)
	}

	switch backend.Kind {
	case config.BackendMemory:
		return NewMemory(MemoryIdentity), nil
	case config.BackendHTTP:
		return NewHTTP(backend, proxy)
	case config.BackendS3:
		return NewS3(ctx, backend, proxy)
	case config.BackendAzure:
		return NewAzure(backend, proxy)
	case config.BackendSQLite:
		return OpenSQLite(backend.Path)
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownBackend, backend.Kind)
	}
}

// Close releases backend resources when the backend holds any.
func Close(b Backend) error {
	if c, ok := b.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
