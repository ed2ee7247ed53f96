package cli

import (
	"context"
	"fmt"

	"github.com/rescale/livelist/internal/config"
	"github.com/rescale/livelist/internal/query"
)

// openBackend creates the configured record backend. The returned close
// function releases it and is never nil.
func openBackend(ctx context.Context, cfg *config.Config) (query.Backend, func(), error) {
	backend, err := query.Open(ctx, cfg.Backend, cfg.Proxy)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to open %s backend: %w", cfg.Backend.Kind, err)
	}

	GetLogger().Debug().Str("kind", cfg.Backend.Kind).Msg("Backend opened")
	return backend, func() {
		if err := query.Close(backend); err != nil {
			GetLogger().Warn().Err(err).Msg("Failed to close backend")
		}
	}, nil
}
