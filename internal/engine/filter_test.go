package engine

import (
	"reflect"
	"testing"
	"time"

	"panel-runtime/internal/metadata"
)

var filterColumns = []metadata.GridColumn{
	{Field: "title", Type: metadata.TypeString},
	{Field: "code", Type: metadata.TypeString, Accurate: true},
	{Field: "status", Type: metadata.TypeString, Enumable: true},
	{Field: "state", Type: metadata.TypeString, Enumable: true, Accurate: true},
	{Field: "amount", Type: metadata.TypeNumber, FilterRange: true},
	{Field: "qty", Type: metadata.TypeNumber},
	{Field: "active", Type: metadata.TypeBoolean},
	{Field: "created_at", Type: metadata.TypeDate},
	{Field: "period", Type: metadata.TypeDate, Display: metadata.DisplayDateRange},
	{Field: "customer_id", Type: metadata.TypeNumber, ModelSelect: true, ModelSelectAPI: "customers"},
	{Field: metadata.ActionsColumn},
}

func TestCompileFilters(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	endOfDay := time.Date(2024, 3, 5, 23, 59, 59, int(999*time.Millisecond), time.UTC)

	tests := []struct {
		name  string
		field string
		in    any
		want  any
	}{
		{"string becomes insensitive contains", "title", "abc",
			map[string]any{OpContains: "abc", OpMode: ModeInsensitive}},
		{"single-element array is flattened", "title", []any{"abc"},
			map[string]any{OpContains: "abc", OpMode: ModeInsensitive}},
		{"multi-element string array is membership", "title", []any{"a", "b"},
			map[string]any{OpIn: []any{"a", "b"}}},
		{"accurate string is equality", "code", "X-1", "X-1"},
		{"enumable string still matches by contains", "status", "abc",
			map[string]any{OpContains: "abc", OpMode: ModeInsensitive}},
		{"accurate enumable string is equality", "state", "open", "open"},
		{"boolean ignores number coercion", "active", float64(1), true},
		{"numeric range drops zero lower bound", "amount", []any{float64(0), float64(100)},
			map[string]any{OpLte: float64(100)}},
		{"numeric range with open upper bound", "amount", []any{float64(100), nil},
			map[string]any{OpGte: float64(100)}},
		{"plain number is coerced", "qty", "7", float64(7)},
		{"boolean is coerced", "active", "true", true},
		{"date becomes whole-day range", "created_at", "2024-03-05",
			map[string]any{OpGte: day, OpLte: endOfDay}},
		{"range display date takes both bounds", "period", []any{"2024-03-05", "2024-03-05"},
			map[string]any{OpGte: day, OpLte: endOfDay}},
		{"model select flattens option objects", "customer_id",
			[]any{map[string]any{"value": float64(1)}, map[string]any{"value": float64(2)}, ""},
			[]any{float64(1), float64(2)}},
		{"model select single id", "customer_id", float64(3), []any{float64(3)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompileFilters(map[string]any{tt.field: tt.in}, filterColumns, nil)
			if !reflect.DeepEqual(got[tt.field], tt.want) {
				t.Fatalf("CompileFilters(%s=%v) = %#v, want %#v", tt.field, tt.in, got[tt.field], tt.want)
			}
		})
	}
}

func TestCompileFilters_DropsUnusableValues(t *testing.T) {
	raw := map[string]any{
		"title":       "  ",
		"qty":         "abc",
		"amount":      []any{float64(0), nil},
		"created_at":  "not a date",
		"customer_id": []any{},
		"unknown":     "x",
		"_action":     "y",
		"active":      nil,
	}
	if got := CompileFilters(raw, filterColumns, nil); len(got) != 0 {
		t.Fatalf("expected every value dropped, got %#v", got)
	}
}

func TestCompileFilters_StaticOverrides(t *testing.T) {
	got := CompileFilters(
		map[string]any{"title": "abc", "qty": float64(2)},
		filterColumns,
		map[string]any{"title": "fixed", "tenant": "t1"},
	)
	if got["title"] != "fixed" {
		t.Fatalf("expected static value to win, got %#v", got["title"])
	}
	if got["tenant"] != "t1" {
		t.Fatalf("expected static-only key kept, got %#v", got["tenant"])
	}
	if got["qty"] != float64(2) {
		t.Fatalf("expected qty compiled, got %#v", got["qty"])
	}
}

func TestMissingRequiredFilters(t *testing.T) {
	cols := []metadata.GridColumn{
		{Field: "region", Type: metadata.TypeString, Required: true},
		{Field: "shop", Type: metadata.TypeString, Required: true},
		{Field: "title", Type: metadata.TypeString},
	}
	missing := MissingRequiredFilters(map[string]any{"region": "eu", "shop": ""}, cols)
	if !reflect.DeepEqual(missing, []string{"shop"}) {
		t.Fatalf("expected [shop], got %v", missing)
	}
	if got := MissingRequiredFilters(map[string]any{"region": "eu", "shop": []any{"s1"}}, cols); len(got) != 0 {
		t.Fatalf("expected nothing missing, got %v", got)
	}
}
