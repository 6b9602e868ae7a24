package engine

import (
	"panel-runtime/internal/metadata"
)

// Predicate operators understood by backends. A bare value means equality and
// a bare array means membership.
const (
	OpContains = "contains"
	OpMode     = "mode"
	OpIn       = "in"
	OpGte      = "gte"
	OpLte      = "lte"

	ModeInsensitive = "insensitive"
)

// CompileFilters turns raw UI filter values into a backend predicate. Strings
// match by case-insensitive contains unless the column is accurate; enumable
// alone does not make a match exact. Values for unknown fields and nil values
// are dropped. Keys in static are assigned
// last and override computed ones.
func CompileFilters(raw map[string]any, columns []metadata.GridColumn, static map[string]any) map[string]any {
	byField := make(map[string]metadata.GridColumn, len(columns))
	for _, c := range columns {
		if !c.IsActions() {
			byField[c.Field] = c
		}
	}

	out := make(map[string]any, len(raw)+len(static))
	for field, value := range raw {
		col, ok := byField[field]
		if !ok || value == nil {
			continue
		}
		if pred, ok := compileValue(col, value); ok {
			out[field] = pred
		}
	}
	for k, v := range static {
		out[k] = v
	}
	return out
}

func compileValue(col metadata.GridColumn, value any) (any, bool) {
	if col.ModelSelect {
		ids := foreignIDs(value)
		if len(ids) == 0 {
			return nil, false
		}
		return ids, true
	}

	switch col.Type {
	case metadata.TypeString:
		return compileString(col, value)
	case metadata.TypeNumber:
		return compileNumber(col, value)
	case metadata.TypeBoolean:
		// Booleans are coerced to bool rather than to a number, and filterRange
		// does not apply: a backend boolean column compares against true/false.
		b, ok := toBool(single(value))
		return b, ok
	case metadata.TypeDate:
		return compileDate(col, value)
	default:
		return containsPredicate(single(value))
	}
}

// foreignIDs normalizes a model-select filter value to a flat id list.
// Select controls may hand over {value, label} objects instead of raw ids.
func foreignIDs(value any) []any {
	items, ok := asSlice(value)
	if !ok {
		items = []any{value}
	}
	ids := make([]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			item = obj["value"]
		}
		if !isBlank(item) {
			ids = append(ids, item)
		}
	}
	return ids
}

// single flattens a one-element array, which column filter dropdowns produce.
func single(value any) any {
	if arr, ok := asSlice(value); ok && len(arr) == 1 {
		return arr[0]
	}
	return value
}

func compileString(col metadata.GridColumn, value any) (any, bool) {
	value = single(value)
	if arr, ok := asSlice(value); ok {
		if len(arr) == 0 {
			return nil, false
		}
		return map[string]any{OpIn: arr}, true
	}
	if isBlank(value) {
		return nil, false
	}
	if col.Accurate {
		return value, true
	}
	return containsPredicate(value)
}

func containsPredicate(value any) (any, bool) {
	if isBlank(value) {
		return nil, false
	}
	return map[string]any{OpContains: metadata.Stringify(value), OpMode: ModeInsensitive}, true
}

func compileNumber(col metadata.GridColumn, value any) (any, bool) {
	if arr, ok := asSlice(value); ok && col.FilterRange && len(arr) == 2 {
		pred := map[string]any{}
		if n, ok := toNumber(arr[0]); ok && truthy(n) {
			pred[OpGte] = n
		}
		if n, ok := toNumber(arr[1]); ok && truthy(n) {
			pred[OpLte] = n
		}
		if len(pred) == 0 {
			return nil, false
		}
		return pred, true
	}
	n, ok := toNumber(single(value))
	return n, ok
}

func compileDate(col metadata.GridColumn, value any) (any, bool) {
	if arr, ok := asSlice(value); ok && (col.FilterRange || col.IsRangeDisplay()) && len(arr) == 2 {
		pred := map[string]any{}
		if t, ok := parseDate(arr[0]); ok && truthy(arr[0]) {
			pred[OpGte] = startOfDay(t)
		}
		if t, ok := parseDate(arr[1]); ok && truthy(arr[1]) {
			pred[OpLte] = endOfDay(t)
		}
		if len(pred) == 0 {
			return nil, false
		}
		return pred, true
	}
	t, ok := parseDate(single(value))
	if !ok {
		return nil, false
	}
	return map[string]any{OpGte: startOfDay(t), OpLte: endOfDay(t)}, true
}

// MissingRequiredFilters returns the required grid fields that have no
// usable value in filters. A fetch must not be issued while any are missing.
func MissingRequiredFilters(filters map[string]any, columns []metadata.GridColumn) []string {
	var missing []string
	for _, c := range columns {
		if !c.Required || c.IsActions() {
			continue
		}
		if isBlank(filters[c.Field]) {
			missing = append(missing, c.Field)
		}
	}
	return missing
}
