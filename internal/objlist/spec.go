// Package objlist implements live object lists: render trees kept in sync
// with repeated snapshot fetches of a record backend.
//
// An Instance owns one list. Each fetch cycle queries the backend with the
// list's filter, reconciles the result against the rendered items by
// identity (create, patch changed fields, remove), then moves nodes to the
// backend order with as few swaps as possible. Lists can be linked so that
// selecting an item in one filters another.
//
// Every Instance method must run on the scheduler thread of its Deps.
package objlist

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rescale/livelist/internal/constants"
)

// Display selects how a field value is rendered.
type Display int

const (
	// DisplayText renders the value, optionally transformed, as text.
	DisplayText Display = iota
	// DisplayProgress renders the value as a 0-100 percentage.
	DisplayProgress
)

// String returns the configuration name of the display.
func (d Display) String() string {
	switch d {
	case DisplayText:
		return "text"
	case DisplayProgress:
		return "progress"
	default:
		return fmt.Sprintf("display(%d)", int(d))
	}
}

// ParseDisplay parses a configuration display name. Empty means text.
func ParseDisplay(s string) (Display, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return DisplayText, nil
	case "progress":
		return DisplayProgress, nil
	default:
		return 0, fmt.Errorf("%w: unknown display %q", ErrInvalidSpec, s)
	}
}

// Mode selects the fetch strategy of a list.
type Mode int

const (
	// ModeContinuous refetches the whole matching set every refresh interval.
	ModeContinuous Mode = iota
	// ModeChunked loads the matching set once, chunk by chunk.
	ModeChunked
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeContinuous:
		return "continuous"
	case ModeChunked:
		return "chunked"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses a configuration mode name. Empty means continuous.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continuous":
		return ModeContinuous, nil
	case "chunked":
		return ModeChunked, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidSpec, s)
	}
}

// Transform converts a raw field value to its displayed text. An error
// marks the record malformed.
type Transform func(v any) (string, error)

// Field describes one displayed column.
type Field struct {
	Name      string
	Title     string
	Display   Display
	Weight    float64
	Transform Transform
	Style     string
}

// Action is a per-item action icon.
type Action struct {
	Name  string
	Title string
	Icon  string
	// Handler runs when the icon is clicked, with the action name and the
	// item's object reference.
	Handler func(action, ref string)
}

// ActionFilter decides whether an action is shown for a record.
type ActionFilter func(action, ref string, fields map[string]any) bool

// Spec is the immutable configuration of a list.
type Spec struct {
	// Name scopes persisted state and tags events and logs.
	Name  string
	Title string

	// Identity names the field records are matched by.
	Identity string
	// Primary names the field used as item label. Defaults to the first field.
	Primary string
	Fields  []Field

	// FilterFields are the fields SetFilter values are matched against.
	// A list with filter fields shows nothing until a filter is set.
	FilterFields []string

	// Link is the list filtered by this list's selection, using the values
	// of LinkFields from the selected record.
	Link       *Instance
	LinkFields []string

	Actions      []Action
	ActionFilter ActionFilter

	Mode Mode
	// ChunkSize is the chunked mode page size. Zero loads everything at once.
	ChunkSize int
	// DeferFirstFetch makes the first chunked cycle after Start fetch nothing.
	DeferFirstFetch bool
	// RefreshInterval is the continuous mode period.
	RefreshInterval time.Duration

	Detail  string
	Sources []string
	Kinds   []string
	OrderBy string

	// ItemEvents registers extra handlers on every item, keyed by event.
	ItemEvents map[string]func(*Item)
	// ItemDrop makes items drop targets receiving the dropped reference.
	ItemDrop func(item *Item, ref string)
	// ListDrop makes the list body a drop target.
	ListDrop func(ref string)
}

var (
	// ErrInvalidSpec is returned for inconsistent list configuration.
	ErrInvalidSpec = errors.New("invalid list spec")
	// ErrBusy is returned when a fetch is already in flight.
	ErrBusy = errors.New("list is busy")
	// ErrDisposed is returned by operations on a disposed list.
	ErrDisposed = errors.New("list is disposed")
	// ErrUnknownItem is returned when selecting an identity with no item.
	ErrUnknownItem = errors.New("unknown item")
)

// Validate checks the spec for inconsistencies.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Identity) == "" {
		return fmt.Errorf("%w: identity field is required", ErrInvalidSpec)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: at least one field is required", ErrInvalidSpec)
	}

	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: field without a name", ErrInvalidSpec)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidSpec, f.Name)
		}
		seen[f.Name] = true
		if _, ok := patchers[f.Display]; !ok {
			return fmt.Errorf("%w: field %q has unknown display %s", ErrInvalidSpec, f.Name, f.Display)
		}
	}

	if s.Primary != "" && !seen[s.Primary] {
		return fmt.Errorf("%w: primary field %q is not displayed", ErrInvalidSpec, s.Primary)
	}
	if s.Link != nil && len(s.LinkFields) == 0 {
		return fmt.Errorf("%w: link without link fields", ErrInvalidSpec)
	}
	if s.ChunkSize < 0 {
		return fmt.Errorf("%w: negative chunk size %d", ErrInvalidSpec, s.ChunkSize)
	}
	if s.Mode != ModeContinuous && s.Mode != ModeChunked {
		return fmt.Errorf("%w: unknown mode %s", ErrInvalidSpec, s.Mode)
	}

	actions := make(map[string]bool, len(s.Actions))
	for _, a := range s.Actions {
		if a.Name == "" || actions[a.Name] {
			return fmt.Errorf("%w: action names must be unique and non-empty", ErrInvalidSpec)
		}
		actions[a.Name] = true
	}
	return nil
}

// withDefaults returns a copy with the primary field and refresh interval
// filled in.
func (s Spec) withDefaults() Spec {
	if s.Primary == "" && len(s.Fields) > 0 {
		s.Primary = s.Fields[0].Name
	}
	if s.RefreshInterval <= 0 {
		s.RefreshInterval = constants.DefaultRefreshInterval
	}
	if s.RefreshInterval < constants.MinRefreshInterval {
		s.RefreshInterval = constants.MinRefreshInterval
	}
	return s
}

// field returns the displayed field called name.
func (s *Spec) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// checkRecord runs every field transform over fields so a record that
// cannot be displayed is rejected before anything is rendered. It returns
// the transformed text by field name for the cells to reuse.
func (s *Spec) checkRecord(fields map[string]any) (map[string]string, error) {
	var texts map[string]string
	for _, f := range s.Fields {
		if f.Transform == nil {
			continue
		}
		text, err := f.Transform(fields[f.Name])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if texts == nil {
			texts = make(map[string]string)
		}
		texts[f.Name] = text
	}
	return texts, nil
}
