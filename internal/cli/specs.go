package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rescale/livelist/internal/config"
	"github.com/rescale/livelist/internal/events"
	"github.com/rescale/livelist/internal/logging"
	"github.com/rescale/livelist/internal/loop"
	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/objlist"
	"github.com/rescale/livelist/internal/query"
	"github.com/rescale/livelist/internal/render"
	"github.com/rescale/livelist/internal/state"
)

// ErrLinkCycle is returned when lists link to each other in a loop.
var ErrLinkCycle = errors.New("lists link to each other in a cycle")

// transforms are the value transforms field configurations can name.
var transforms = map[string]objlist.Transform{
	"upper": func(v any) (string, error) {
		return strings.ToUpper(models.ValueString(v)), nil
	},
	"lower": func(v any) (string, error) {
		return strings.ToLower(models.ValueString(v)), nil
	},
	"number": func(v any) (string, error) {
		if v == nil {
			return "", nil
		}
		n, ok := models.Number(v)
		if !ok {
			return "", fmt.Errorf("%v is not a number", v)
		}
		return models.ValueString(n), nil
	},
	"bytes": func(v any) (string, error) {
		if v == nil {
			return "", nil
		}
		n, ok := models.Number(v)
		if !ok || n < 0 {
			return "", fmt.Errorf("%v is not a size", v)
		}
		return formatBytes(n), nil
	},
	"seconds": func(v any) (string, error) {
		if v == nil {
			return "", nil
		}
		n, ok := models.Number(v)
		if !ok {
			return "", fmt.Errorf("%v is not a duration", v)
		}
		return (time.Duration(n * float64(time.Second))).Round(time.Second).String(), nil
	},
	"date": func(v any) (string, error) {
		switch x := v.(type) {
		case nil:
			return "", nil
		case time.Time:
			return x.Format("2006-01-02 15:04"), nil
		default:
			t, err := time.Parse(time.RFC3339, models.ValueString(v))
			if err != nil {
				return "", fmt.Errorf("%v is not an RFC 3339 time", v)
			}
			return t.Format("2006-01-02 15:04"), nil
		}
	},
}

// TransformNames returns the names field configurations can use.
func TransformNames() []string {
	names := make([]string, 0, len(transforms))
	for name := range transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatBytes(n float64) string {
	units := []string{"B", "KiB", "MiB", "GiB", "TiB"}
	i := 0
	for n >= 1024 && i < len(units)-1 {
		n /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d %s", int64(n), units[i])
	}
	return fmt.Sprintf("%.1f %s", n, units[i])
}

// specFor converts a list configuration to a list spec. link is the
// instance the list filters on selection, or nil.
func specFor(lc config.ListConfig, link *objlist.Instance, onAction func(list, action, ref string)) (objlist.Spec, error) {
	spec := objlist.Spec{
		Name:            lc.Name,
		Title:           lc.Title,
		Identity:        lc.Identity,
		Primary:         lc.Primary,
		FilterFields:    lc.Filter,
		ChunkSize:       lc.ChunkSize,
		DeferFirstFetch: lc.DeferFirstFetch,
		RefreshInterval: time.Duration(lc.RefreshMS) * time.Millisecond,
		Detail:          lc.Detail,
		Sources:         lc.Sources,
		Kinds:           lc.Kinds,
		OrderBy:         lc.OrderBy,
	}
	if len(spec.Kinds) == 0 {
		spec.Kinds = []string{lc.Name}
	}
	if link != nil {
		spec.Link = link
		spec.LinkFields = lc.LinkFields
	}

	mode, err := objlist.ParseMode(lc.Mode)
	if err != nil {
		return objlist.Spec{}, err
	}
	spec.Mode = mode

	for _, fc := range lc.Fields {
		display, err := objlist.ParseDisplay(fc.Display)
		if err != nil {
			return objlist.Spec{}, fmt.Errorf("field %s: %w", fc.Name, err)
		}
		f := objlist.Field{
			Name:    fc.Name,
			Title:   fc.Title,
			Display: display,
			Weight:  float64(fc.Weight),
		}
		if fc.Transform != "" {
			tf, ok := transforms[fc.Transform]
			if !ok {
				return objlist.Spec{}, fmt.Errorf("%w: field %s names unknown transform %q (known: %s)",
					objlist.ErrInvalidSpec, fc.Name, fc.Transform, strings.Join(TransformNames(), ", "))
			}
			f.Transform = tf
		}
		spec.Fields = append(spec.Fields, f)
	}

	// Actions are "name" or "name:field"; the second form only shows the
	// icon on records where field is set.
	guards := make(map[string]string)
	for _, a := range lc.Actions {
		name, field, _ := strings.Cut(strings.TrimSpace(a), ":")
		if name == "" {
			continue
		}
		action := objlist.Action{Name: name, Title: name}
		if onAction != nil {
			listName := lc.Name
			action.Handler = func(action, ref string) { onAction(listName, action, ref) }
		}
		spec.Actions = append(spec.Actions, action)
		if field != "" {
			guards[name] = field
		}
	}
	if len(guards) > 0 {
		spec.ActionFilter = func(action, ref string, fields map[string]any) bool {
			field, ok := guards[action]
			if !ok {
				return true
			}
			return truthy(fields[field])
		}
	}

	return spec, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	if n, ok := models.Number(v); ok {
		return n != 0
	}
	s := strings.ToLower(models.ValueString(v))
	return s != "" && s != "false" && s != "no"
}

// listBuilder creates list instances from configuration.
type listBuilder struct {
	cfg      *config.Config
	backend  query.Backend
	tree     render.Tree
	sched    loop.Scheduler
	session  *state.Session
	logger   *logging.Logger
	bus      *events.EventBus
	onAction func(list, action, ref string)

	// overrides applied to every built list
	mode      string
	chunkSize int
	interval  time.Duration
}

// build creates the named lists, or every configured list when names is
// empty, and appends them to parent in the requested order. A link to a
// list outside the built set is ignored.
func (b *listBuilder) build(names []string, parent render.Node) ([]*objlist.Instance, error) {
	if len(names) == 0 {
		for _, lc := range b.cfg.Lists {
			names = append(names, lc.Name)
		}
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := b.cfg.List(name); !ok {
			return nil, fmt.Errorf("unknown list %q", name)
		}
		wanted[name] = true
	}

	built := make(map[string]*objlist.Instance, len(names))
	visiting := make(map[string]bool)

	var create func(name string) (*objlist.Instance, error)
	create = func(name string) (*objlist.Instance, error) {
		if inst, ok := built[name]; ok {
			return inst, nil
		}
		if visiting[name] {
			return nil, fmt.Errorf("%w: %s", ErrLinkCycle, name)
		}
		visiting[name] = true
		defer delete(visiting, name)

		lc, _ := b.cfg.List(name)
		var link *objlist.Instance
		if lc.Link != "" && wanted[lc.Link] {
			target, err := create(lc.Link)
			if err != nil {
				return nil, err
			}
			link = target
		}
		if b.mode != "" {
			lc.Mode = b.mode
		}
		if b.chunkSize > 0 {
			lc.ChunkSize = b.chunkSize
		}
		if b.interval > 0 {
			lc.RefreshMS = int(b.interval / time.Millisecond)
		}

		spec, err := specFor(lc, link, b.onAction)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", name, err)
		}

		deps := objlist.Deps{
			Tree:      b.tree,
			Backend:   b.backend,
			Scheduler: b.sched,
			Logger:    b.logger,
			Bus:       b.bus,
		}
		if b.session != nil {
			deps.Store = b.session.Scope(name)
		}
		inst, err := objlist.New(spec, deps)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", name, err)
		}
		built[name] = inst
		return inst, nil
	}

	lists := make([]*objlist.Instance, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		inst, err := create(name)
		if err != nil {
			for _, l := range built {
				l.Dispose()
			}
			return nil, err
		}
		lists = append(lists, inst)
	}

	if parent != nil {
		for _, l := range lists {
			b.tree.Append(parent, l.Node())
		}
	}
	return lists, nil
}
