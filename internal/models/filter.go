package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Filter is the active filter of a list: one value per filter field.
type Filter map[string]any

// Equal reports whether two filters hold the same values.
func (f Filter) Equal(other Filter) bool {
	if len(f) != len(other) {
		return false
	}
	for k, v := range f {
		ov, ok := other[k]
		if !ok || !ValuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the filter.
func (f Filter) Clone() Filter {
	if f == nil {
		return nil
	}
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Expr builds the conjunction of equality conditions over fields, in the
// given field order. Fields missing from the filter compare against nil.
func (f Filter) Expr(fields []string) Expr {
	terms := make([]Expr, 0, len(fields))
	for _, field := range fields {
		terms = append(terms, Eq(field, f[field]))
	}
	return And(terms...)
}

// Op identifies the kind of an expression node.
type Op string

const (
	OpAll   Op = "all"
	OpFalse Op = "false"
	OpEq    Op = "eq"
	OpAnd   Op = "and"
)

// Expr is a filter expression passed to record backends. The zero value
// matches everything.
type Expr struct {
	op    Op
	field string
	value any
	args  []Expr
}

// All matches every record.
func All() Expr { return Expr{op: OpAll} }

// False matches nothing. Backends return an empty result for it without
// doing any work.
func False() Expr { return Expr{op: OpFalse} }

// Eq matches records whose field equals value.
func Eq(field string, value any) Expr {
	return Expr{op: OpEq, field: field, value: value}
}

// And matches records matched by every argument. Nested conjunctions are
// flattened, All arguments dropped, and any False argument makes the whole
// expression False.
func And(args ...Expr) Expr {
	flat := make([]Expr, 0, len(args))
	for _, a := range args {
		switch a.Op() {
		case OpFalse:
			return False()
		case OpAll:
			continue
		case OpAnd:
			flat = append(flat, a.args...)
		default:
			flat = append(flat, a)
		}
	}
	switch len(flat) {
	case 0:
		return All()
	case 1:
		return flat[0]
	}
	return Expr{op: OpAnd, args: flat}
}

// Op returns the node kind.
func (e Expr) Op() Op {
	if e.op == "" {
		return OpAll
	}
	return e.op
}

// Field returns the field of an equality node.
func (e Expr) Field() string { return e.field }

// Value returns the value of an equality node.
func (e Expr) Value() any { return e.value }

// Args returns the operands of a conjunction.
func (e Expr) Args() []Expr { return e.args }

// IsFalse reports whether the expression can never match.
func (e Expr) IsFalse() bool { return e.Op() == OpFalse }

// Match evaluates the expression against a record. Equality compares the
// displayed form of both values so numbers match regardless of how a
// backend decoded them.
func (e Expr) Match(r Record) bool {
	switch e.Op() {
	case OpAll:
		return true
	case OpFalse:
		return false
	case OpEq:
		v, ok := r.Fields[e.field]
		if !ok || v == nil {
			return e.value == nil
		}
		if e.value == nil {
			return false
		}
		return ValueString(v) == ValueString(e.value)
	case OpAnd:
		for _, a := range e.args {
			if !a.Match(r) {
				return false
			}
		}
		return true
	}
	return false
}

// Fields returns the field names referenced by the expression, sorted and
// without duplicates.
func (e Expr) Fields() []string {
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(x Expr) {
		switch x.Op() {
		case OpEq:
			seen[x.field] = true
		case OpAnd:
			for _, a := range x.args {
				walk(a)
			}
		}
	}
	walk(e)

	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (e Expr) String() string {
	switch e.Op() {
	case OpAll:
		return "true"
	case OpFalse:
		return "false"
	case OpEq:
		return fmt.Sprintf("%s == %q", e.field, ValueString(e.value))
	case OpAnd:
		parts := make([]string, len(e.args))
		for i, a := range e.args {
			parts[i] = a.String()
		}
		return strings.Join(parts, " && ")
	}
	return "?"
}

type exprJSON struct {
	Op    Op         `json:"op"`
	Field string     `json:"field,omitempty"`
	Value any        `json:"value"`
	Args  []exprJSON `json:"args,omitempty"`
}

func (e Expr) toJSON() exprJSON {
	out := exprJSON{Op: e.Op(), Field: e.field, Value: e.value}
	for _, a := range e.args {
		out.Args = append(out.Args, a.toJSON())
	}
	return out
}

func (j exprJSON) toExpr() (Expr, error) {
	switch j.Op {
	case OpAll, "":
		return All(), nil
	case OpFalse:
		return False(), nil
	case OpEq:
		if j.Field == "" {
			return Expr{}, fmt.Errorf("eq expression without field")
		}
		return Eq(j.Field, j.Value), nil
	case OpAnd:
		args := make([]Expr, 0, len(j.Args))
		for _, a := range j.Args {
			x, err := a.toExpr()
			if err != nil {
				return Expr{}, err
			}
			args = append(args, x)
		}
		return And(args...), nil
	}
	return Expr{}, fmt.Errorf("unknown expression op %q", j.Op)
}

// MarshalJSON encodes the expression as a tree of {"op", "field", "value", "args"} nodes.
func (e Expr) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.toJSON())
}

// UnmarshalJSON decodes the form produced by MarshalJSON.
func (e *Expr) UnmarshalJSON(data []byte) error {
	var j exprJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	x, err := j.toExpr()
	if err != nil {
		return err
	}
	*e = x
	return nil
}
