package models

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestRecord_Identity(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]any
		want    string
		wantErr bool
	}{
		{"string", map[string]any{"id": "a1"}, "a1", false},
		{"json number", map[string]any{"id": float64(2)}, "2", false},
		{"sqlite integer", map[string]any{"id": int64(2)}, "2", false},
		{"missing", map[string]any{"name": "x"}, "", true},
		{"nil", map[string]any{"id": nil}, "", true},
		{"empty", map[string]any{"id": ""}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRecord("ref", tt.fields).Identity("id")
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedRecord) {
					t.Errorf("expected ErrMalformedRecord, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		a, b any
		want bool
	}{
		{"x", "x", true},
		{"x", "y", false},
		{float64(2), int64(2), true},
		{float64(2), float64(2.5), false},
		{"2", float64(2), false},
		{nil, nil, true},
		{nil, "x", false},
		{true, true, true},
	}
	for _, tt := range tests {
		if got := ValuesEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("ValuesEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestChangedFields(t *testing.T) {
	prior := NewRecord("r", map[string]any{"id": 2, "name": "B", "plays": 10, "gone": "x"})
	fresh := NewRecord("r", map[string]any{"id": 2, "name": "B2", "plays": float64(10), "new": 1})

	got := ChangedFields(prior, fresh, "id")
	want := []string{"name", "new"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if changed := ChangedFields(fresh, fresh.Clone(), "id"); len(changed) != 0 {
		t.Errorf("expected no changes against a clone, got %v", changed)
	}
}

func TestNumber(t *testing.T) {
	if v, ok := Number("42.5"); !ok || v != 42.5 {
		t.Errorf("expected 42.5, got %v %v", v, ok)
	}
	if _, ok := Number("abc"); ok {
		t.Error("expected non-numeric string to fail")
	}
	if _, ok := Number(nil); ok {
		t.Error("expected nil to fail")
	}
}

func TestAnd_Simplification(t *testing.T) {
	if And().Op() != OpAll {
		t.Error("empty conjunction should be All")
	}
	if !And(Eq("a", 1), False()).IsFalse() {
		t.Error("conjunction with False should be False")
	}
	single := And(All(), Eq("a", 1))
	if single.Op() != OpEq || single.Field() != "a" {
		t.Errorf("expected single eq, got %s", single)
	}
	nested := And(And(Eq("a", 1), Eq("b", 2)), Eq("c", 3))
	if nested.Op() != OpAnd || len(nested.Args()) != 3 {
		t.Errorf("expected flattened conjunction of 3, got %s", nested)
	}
}

func TestExpr_Match(t *testing.T) {
	r := NewRecord("r", map[string]any{"artist": "X", "year": float64(1999)})

	tests := []struct {
		name string
		expr Expr
		want bool
	}{
		{"zero value", Expr{}, true},
		{"all", All(), true},
		{"false", False(), false},
		{"eq", Eq("artist", "X"), true},
		{"eq number across types", Eq("year", int64(1999)), true},
		{"eq mismatch", Eq("artist", "Y"), false},
		{"eq missing against nil", Eq("label", nil), true},
		{"and", And(Eq("artist", "X"), Eq("year", 1999)), true},
		{"and mismatch", And(Eq("artist", "X"), Eq("year", 2000)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.expr.Match(r); got != tt.want {
				t.Errorf("%s.Match = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestFilter_Expr(t *testing.T) {
	f := Filter{"artist": "X", "year": 1999}

	expr := f.Expr([]string{"artist", "year"})
	if expr.String() != `artist == "X" && year == "1999"` {
		t.Errorf("unexpected expression %s", expr)
	}
	if !reflect.DeepEqual(expr.Fields(), []string{"artist", "year"}) {
		t.Errorf("unexpected fields %v", expr.Fields())
	}

	if !f.Equal(Filter{"artist": "X", "year": float64(1999)}) {
		t.Error("filters with equal numbers should be equal")
	}
	if f.Equal(Filter{"artist": "X"}) {
		t.Error("filters of different sizes should differ")
	}
}

func TestExpr_JSON(t *testing.T) {
	expr := And(Eq("artist", "X"), Eq("year", float64(1999)))

	data, err := json.Marshal(expr)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Expr
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.String() != expr.String() {
		t.Errorf("expected %s, got %s", expr, decoded)
	}

	if err := json.Unmarshal([]byte(`{"op":"or"}`), &decoded); err == nil {
		t.Error("expected error for unknown op")
	}
}
