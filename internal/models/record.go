// Package models defines the records, filters and filter expressions shared
// by list instances and record backends.
package models

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// ErrMalformedRecord is returned when a record cannot be reconciled, for
// example because its identity field is missing.
var ErrMalformedRecord = errors.New("malformed record")

// Record is one backend object: an opaque reference used for drag and drop
// and action dispatch, plus its field values.
type Record struct {
	Ref    string         `json:"ref"`
	Fields map[string]any `json:"fields"`
}

// NewRecord builds a record from a reference and field map.
func NewRecord(ref string, fields map[string]any) Record {
	if fields == nil {
		fields = make(map[string]any)
	}
	return Record{Ref: ref, Fields: fields}
}

// Get returns a field value and whether it is present.
func (r Record) Get(field string) (any, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// Identity extracts the identity value through the given field. Missing,
// nil and empty values are malformed.
func (r Record) Identity(field string) (string, error) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: identity field %q missing", ErrMalformedRecord, field)
	}
	id := ValueString(v)
	if id == "" {
		return "", fmt.Errorf("%w: identity field %q empty", ErrMalformedRecord, field)
	}
	return id, nil
}

// Clone returns a copy whose field map can be mutated independently.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{Ref: r.Ref, Fields: fields}
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValueString renders a field value the way it is displayed and compared.
// Integral floats drop their fraction so that 2 decoded from JSON and 2
// scanned from SQLite both read "2".
func ValueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// Number coerces a field value to a float. Strings are parsed; anything
// else that is not numeric reports false.
func Number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	case []byte:
		return Number(string(x))
	default:
		return 0, false
	}
}

// ValuesEqual compares two field values. Numbers compare by value whatever
// their Go type; everything else must be deeply equal.
func ValuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	_, aStr := a.(string)
	_, bStr := b.(string)
	if aStr || bStr {
		return false
	}
	fa, okA := Number(a)
	fb, okB := Number(b)
	return okA && okB && fa == fb
}

// ChangedFields returns the fields of fresh whose values differ from prior,
// in sorted order. Fields present only in prior are not reported; skip
// names fields that are never reported.
func ChangedFields(prior, fresh Record, skip ...string) []string {
	var changed []string
	for _, k := range fresh.Keys() {
		if contains(skip, k) {
			continue
		}
		old, ok := prior.Fields[k]
		if ok && ValuesEqual(old, fresh.Fields[k]) {
			continue
		}
		changed = append(changed, k)
	}
	return changed
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
