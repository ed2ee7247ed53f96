// Package query defines the record backend contract list instances fetch
// through and ships the backends selectable from configuration.
package query

import (
	"context"
	"fmt"

	"github.com/rescale/livelist/internal/api"
	"github.com/rescale/livelist/internal/config"
	"github.com/rescale/livelist/internal/models"
)

// Request describes one fetch.
type Request struct {
	// Expr selects the records. A false expression yields nothing.
	Expr models.Expr
	// Detail is a backend-defined fetch granularity.
	Detail string
	// Sources selects where records come from, such as prefixes or collections.
	Sources []string
	// Kinds restricts the record kind, such as a table name.
	Kinds []string
	// OrderBy names the field records are ordered by, when supported.
	OrderBy string
	// Offset skips that many matching records.
	Offset int
	// Limit caps the result size. Zero means no limit.
	Limit int
}

// Paged reports whether the request asks for a window of the result.
func (r Request) Paged() bool {
	return r.Offset > 0 || r.Limit > 0
}

// Backend returns the ordered records matching a request.
type Backend interface {
	Query(ctx context.Context, req Request) ([]models.Record, error)
}

// Func adapts a function to Backend.
type Func func(ctx context.Context, req Request) ([]models.Record, error)

// Query calls f.
func (f Func) Query(ctx context.Context, req Request) ([]models.Record, error) {
	return f(ctx, req)
}

// Window applies offset and limit to records already in order.
func Window(records []models.Record, offset, limit int) []models.Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

// HTTP queries a remote record service.
type HTTP struct {
	client *api.Client
}

// NewHTTP creates an HTTP backend.
func NewHTTP(backend config.BackendConfig, proxy config.ProxyConfig) (*HTTP, error) {
	client, err := api.NewClient(backend, proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return &HTTP{client: client}, nil
}

// Query posts the request to the service. A false expression is answered
// locally.
func (h *HTTP) Query(ctx context.Context, req Request) ([]models.Record, error) {
	if req.Expr.IsFalse() {
		return nil, nil
	}
	return h.client.Query(ctx, api.QueryBody{
		Expr:    req.Expr,
		Detail:  req.Detail,
		Sources: req.Sources,
		Kinds:   req.Kinds,
		OrderBy: req.OrderBy,
		Offset:  req.Offset,
		Limit:   req.Limit,
	})
}

// Client returns the underlying API client.
func (h *HTTP) Client() *api.Client {
	return h.client
}
