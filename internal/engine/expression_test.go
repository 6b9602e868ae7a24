package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestSubstitute(t *testing.T) {
	row := map[string]any{"x": 5, "name": "Ada", "ids": []any{float64(1), float64(2)}}
	query := map[string]string{"tenant": "t1"}

	tests := []struct {
		template string
		want     string
	}{
		{"#x#", "5"},
		{"#name# in @tenant@", "Ada in t1"},
		{"#ids#", "1,2"},
		{"#missing#", "#missing#"},
		{"# > 1", "# > 1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Substitute(tt.template, row, query); got != tt.want {
			t.Errorf("Substitute(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestEvaluateBool(t *testing.T) {
	e := NewEvaluator(DefaultFallbackPolicy(true))
	row := map[string]any{"x": 5, "status": "active"}

	tests := []struct {
		template string
		want     bool
	}{
		{"#x# > 3", true},
		{"#x# > 10", false},
		{"'#status#' == 'active'", true},
		{"'#status#' === 'active'", true},
		{"'#status#' !== 'active'", false},
		{"#x# > 3 && '@mode@' == 'edit'", true},
		{"0", false},
		{"'text'", true},
	}
	for _, tt := range tests {
		got, err := e.EvaluateBool(tt.template, row, map[string]string{"mode": "edit"})
		if err != nil {
			t.Fatalf("EvaluateBool(%q): %v", tt.template, err)
		}
		if got != tt.want {
			t.Errorf("EvaluateBool(%q) = %v, want %v", tt.template, got, tt.want)
		}
	}
}

func TestEvaluate_Errors(t *testing.T) {
	e := NewEvaluator(DefaultFallbackPolicy(true))
	for _, template := range []string{"oops", "#missing# > 1", "1 +", "   "} {
		_, err := e.Evaluate(template, map[string]any{}, nil)
		if err == nil {
			t.Fatalf("expected error for %q", template)
		}
		if !errors.Is(err, ErrEvaluation) {
			t.Fatalf("expected ErrEvaluation for %q, got %v", template, err)
		}
		var evalErr *EvalError
		if !errors.As(err, &evalErr) || evalErr.Template != template {
			t.Fatalf("expected *EvalError carrying template %q, got %#v", template, err)
		}
	}
}

func TestEvaluator_Fallbacks(t *testing.T) {
	row := map[string]any{}

	on := NewEvaluator(DefaultFallbackPolicy(true))
	if on.Hidden("oops", row, nil) {
		t.Fatal("failed hideExpression must not hide")
	}
	if on.Satisfied("oops", row, nil) {
		t.Fatal("failed condition must not render")
	}
	if !on.Disabled("oops", row, nil) {
		t.Fatal("failed disableExpression must disable when disableOnError is set")
	}

	off := NewEvaluator(DefaultFallbackPolicy(false))
	if off.Disabled("oops", row, nil) {
		t.Fatal("failed disableExpression must enable when disableOnError is unset")
	}
}

func TestEvaluator_EmptyExpressions(t *testing.T) {
	e := NewEvaluator(DefaultFallbackPolicy(true))
	if e.Hidden("", nil, nil) || e.Disabled("", nil, nil) || !e.Satisfied("", nil, nil) {
		t.Fatal("empty expressions must leave the button visible and enabled")
	}
}

func TestSubstitute_ValuesAreNotRescanned(t *testing.T) {
	row := map[string]any{"a": "#b#", "b": "secret"}
	if got := Substitute("/x/#a#/#b#", row, map[string]string{"q": "@q@"}); got != "/x/#b#/secret" {
		t.Fatalf("Substitute = %q", got)
	}
	if got := Substitute("@q@", nil, map[string]string{"q": "#a#"}); got != "#a#" {
		t.Fatalf("Substitute = %q", got)
	}
}

func TestEvaluate_RowValuesCannotChangeTheExpression(t *testing.T) {
	e := NewEvaluator(DefaultFallbackPolicy(true))
	tests := []struct {
		template string
		row      map[string]any
		want     bool
	}{
		{"#x# == 1", map[string]any{"x": "1 || true"}, false},
		{"#x# == 'a'", map[string]any{"x": "a' || 'b"}, false},
		{"'#x#' == 'a'", map[string]any{"x": "a' || 'b"}, false},
		{"'#x#' == '#y#'", map[string]any{"x": "#y#", "y": "z"}, false},
		{"#x# > 3", map[string]any{"x": "5"}, true},
		{"#flag#", map[string]any{"flag": "false"}, false},
		{"'#name#-x' == 'Ada-x'", map[string]any{"name": "Ada"}, true},
	}
	for _, tt := range tests {
		got, err := e.EvaluateBool(tt.template, tt.row, nil)
		if err != nil {
			t.Fatalf("EvaluateBool(%q, %v): %v", tt.template, tt.row, err)
		}
		if got != tt.want {
			t.Errorf("EvaluateBool(%q, %v) = %v, want %v", tt.template, tt.row, got, tt.want)
		}
	}

	if _, err := e.Evaluate("#x# > 3", map[string]any{"x": "oops"}, nil); !errors.Is(err, ErrEvaluation) {
		t.Fatalf("expected evaluation error for non-numeric value, got %v", err)
	}
}

func TestEvaluator_CachesPerTemplate(t *testing.T) {
	e := NewEvaluator(DefaultFallbackPolicy(true))
	for i := 0; i < 1000; i++ {
		if e.Hidden("#x# > 3", map[string]any{"x": float64(i)}, nil) != (i > 3) {
			t.Fatalf("wrong result for x=%d", i)
		}
		e.Disabled("'#status#' == 'locked'", map[string]any{"status": fmt.Sprint("s", i)}, nil)
	}
	if n := e.CachedTemplates(); n != 2 {
		t.Fatalf("expected one compiled program per template, got %d", n)
	}
}
