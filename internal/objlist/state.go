package objlist

import (
	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/state"
)

const (
	keyFilter   = "filter"
	keySelected = "selected"
	keyRecords  = "records"
	keyOrder    = "order"
)

// listState is the persisted view state of a list: its filter, its
// selected identity and the records of the last cycle with their order.
type listState struct {
	store state.Store
}

func (s listState) filter() models.Filter {
	if s.store == nil {
		return nil
	}
	f, _ := s.store.Load(keyFilter, models.Filter(nil)).(models.Filter)
	return f.Clone()
}

func (s listState) saveFilter(f models.Filter) {
	if s.store != nil {
		s.store.Save(keyFilter, f.Clone())
	}
}

func (s listState) selected() string {
	if s.store == nil {
		return ""
	}
	id, _ := s.store.Load(keySelected, "").(string)
	return id
}

func (s listState) saveSelected(id string) {
	if s.store != nil {
		s.store.Save(keySelected, id)
	}
}

// records returns the records saved by the last cycle keyed by identity.
func (s listState) records() map[string]models.Record {
	if s.store == nil {
		return nil
	}
	m, _ := s.store.Load(keyRecords, map[string]models.Record(nil)).(map[string]models.Record)
	return m
}

// order returns the identities of the saved records in render order.
func (s listState) order() []string {
	if s.store == nil {
		return nil
	}
	ids, _ := s.store.Load(keyOrder, []string(nil)).([]string)
	return ids
}

func (s listState) saveRecords(m map[string]models.Record, order []string) {
	if s.store != nil {
		s.store.Save(keyRecords, m)
		s.store.Save(keyOrder, append([]string(nil), order...))
	}
}

func (s listState) clear() {
	if s.store != nil {
		s.store.Clear()
	}
}
