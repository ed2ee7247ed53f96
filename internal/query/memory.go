package query

import (
	"context"
	"sort"
	"sync"

	"github.com/rescale/livelist/internal/models"
)

// Memory is an in-process backend holding ordered record collections keyed
// by kind. It is used by the demo command and by tests.
// Thread-safe for concurrent access.
type Memory struct {
	mu       sync.RWMutex
	identity string
	kinds    map[string][]models.Record
	calls    int
	requests []Request
	fail     error
}

// NewMemory creates an empty backend. identity names the field Put and
// Delete match records by.
func NewMemory(identity string) *Memory {
	return &Memory{
		identity: identity,
		kinds:    make(map[string][]models.Record),
	}
}

// Put inserts or replaces records of kind by identity. New records are
// appended in argument order.
func (m *Memory) Put(kind string, records ...models.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.kinds[kind]
	for _, r := range records {
		id, _ := r.Identity(m.identity)
		replaced := false
		for i, existing := range list {
			if eid, _ := existing.Identity(m.identity); id != "" && eid == id {
				list[i] = r.Clone()
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, r.Clone())
		}
	}
	m.kinds[kind] = list
}

// Set replaces every record of kind.
func (m *Memory) Set(kind string, records []models.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := make([]models.Record, len(records))
	for i, r := range records {
		list[i] = r.Clone()
	}
	m.kinds[kind] = list
}

// Delete removes records of kind by identity.
func (m *Memory) Delete(kind string, ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	list := m.kinds[kind][:0]
	for _, r := range m.kinds[kind] {
		if id, _ := r.Identity(m.identity); !drop[id] {
			list = append(list, r)
		}
	}
	m.kinds[kind] = list
}

// Update applies fn to the record of kind with identity id. It reports
// whether the record exists.
func (m *Memory) Update(kind, id string, fn func(fields map[string]any)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.kinds[kind] {
		if rid, _ := r.Identity(m.identity); rid == id {
			next := r.Clone()
			fn(next.Fields)
			m.kinds[kind][i] = next
			return true
		}
	}
	return false
}

// Sort orders the records of kind by less.
func (m *Memory) Sort(kind string, less func(a, b models.Record) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.kinds[kind]
	sort.SliceStable(list, func(i, j int) bool { return less(list[i], list[j]) })
}

// Records returns a copy of the records of kind.
func (m *Memory) Records(kind string) []models.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Record, len(m.kinds[kind]))
	for i, r := range m.kinds[kind] {
		out[i] = r.Clone()
	}
	return out
}

// FailWith makes every following Query return err until cleared with nil.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Calls returns the number of Query calls, including failed ones.
func (m *Memory) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Requests returns every request received, in order.
func (m *Memory) Requests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Query returns clones of the matching records of the requested kinds, in
// stored order. With no kinds every kind is searched in name order. The
// Detail level is not interpreted.
func (m *Memory) Query(ctx context.Context, req Request) ([]models.Record, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	fail := m.fail
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail != nil {
		return nil, fail
	}
	if req.Expr.IsFalse() {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	kinds := req.Kinds
	if len(kinds) == 0 {
		for k := range m.kinds {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
	}

	var matched []models.Record
	for _, kind := range kinds {
		for _, r := range m.kinds[kind] {
			if req.Expr.Match(r) {
				matched = append(matched, r.Clone())
			}
		}
	}

	if req.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return compareValues(matched[i].Fields[req.OrderBy], matched[j].Fields[req.OrderBy]) < 0
		})
	}

	return Window(matched, req.Offset, req.Limit), nil
}

// compareValues orders numbers numerically and everything else by its
// display string.
func compareValues(a, b any) int {
	na, aok := models.Number(a)
	nb, bok := models.Number(b)
	if aok && bok {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	}
	sa, sb := models.ValueString(a), models.ValueString(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}
