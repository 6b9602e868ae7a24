package engine

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"panel-runtime/internal/instrument"
	"panel-runtime/internal/metadata"
)

// LabelLookup holds the foreign records fetched for one model-select column.
type LabelLookup struct {
	Field      string           `json:"field"`
	LabelField string           `json:"labelField"`
	Records    []map[string]any `json:"records"`
}

// Find returns the record whose id matches id, scanning linearly.
func (l *LabelLookup) Find(id any) map[string]any {
	if l == nil {
		return nil
	}
	want := metadata.Stringify(id)
	for _, r := range l.Records {
		if metadata.Stringify(r["id"]) == want {
			return r
		}
	}
	return nil
}

// Label returns the display label for id.
func (l *LabelLookup) Label(id any) (string, bool) {
	r := l.Find(id)
	if r == nil {
		return "", false
	}
	label, ok := r[l.LabelField]
	if !ok || label == nil {
		return "", false
	}
	return metadata.Stringify(label), true
}

// CollectForeignIDs returns the distinct ids referenced by field across rows,
// in first-seen order. Array cells contribute each element.
func CollectForeignIDs(rows []map[string]any, field string) []any {
	seen := make(map[string]bool)
	var ids []any
	add := func(v any) {
		if isBlank(v) {
			return
		}
		key := metadata.Stringify(v)
		if seen[key] {
			return
		}
		seen[key] = true
		ids = append(ids, v)
	}
	for _, row := range rows {
		v := row[field]
		if arr, ok := asSlice(v); ok {
			for _, item := range arr {
				add(item)
			}
			continue
		}
		add(v)
	}
	return ids
}

// LookupRequest is the payload of one batched model-select lookup.
func LookupRequest(ids []any) FetchRequest {
	return FetchRequest{
		Skip:   0,
		Limit:  len(ids),
		Sort:   []map[string]string{{"id": SortDesc}},
		Filter: map[string]any{"id": ids},
	}
}

// Resolver batches model-select lookups: one call per column with values,
// all columns fetched concurrently.
type Resolver struct {
	ops            Operations
	maxConcurrency int
	metrics        *instrument.Metrics
}

func NewResolver(ops Operations, maxConcurrency int) *Resolver {
	return &Resolver{ops: ops, maxConcurrency: maxConcurrency}
}

// Resolve returns a lookup per model-select column of page that has at least
// one value in rows. A failed lookup is logged and left out, so its cells keep
// showing raw ids.
func (r *Resolver) Resolve(ctx context.Context, page *metadata.PageDefinition, rows []map[string]any) map[string]*LabelLookup {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "resolver", "labels.resolve")
	defer span.End()
	span.SetPage(page.ID, "")

	columns := page.ModelSelectColumns()
	lookups := make([]*LabelLookup, len(columns))

	var g errgroup.Group
	if r.maxConcurrency > 0 {
		g.SetLimit(r.maxConcurrency)
	}
	calls := 0
	for i, col := range columns {
		ids := CollectForeignIDs(rows, col.Field)
		if len(ids) == 0 {
			continue
		}
		calls++
		g.Go(func() error {
			res, err := r.ops.Call(ctx, page, col.ModelSelectAPI, LookupRequest(ids))
			if err != nil {
				log.Printf("WARN: lookup %s for %s.%s: %v", col.ModelSelectAPI, page.ID, col.Field, err)
				r.metrics.RecordLookup(page.ID, "error")
				return nil
			}
			if !res.OK() {
				log.Printf("WARN: lookup %s for %s.%s failed: %s", col.ModelSelectAPI, page.ID, col.Field, res.Message)
				r.metrics.RecordLookup(page.ID, "failed")
				return nil
			}
			r.metrics.RecordLookup(page.ID, "ok")
			records, _ := extractList(res.Data)
			lookups[i] = &LabelLookup{Field: col.Field, LabelField: col.LabelField(), Records: records}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*LabelLookup, len(columns))
	for _, l := range lookups {
		if l != nil {
			out[l.Field] = l
		}
	}
	span.SetMetadata("calls", calls)
	span.SetMetadata("resolved", len(out))
	span.SetStatus("ok")
	return out
}

// extractList pulls the row list and total out of a list operation's data.
// Backends answer with a bare array or an object holding the list under one
// of a few conventional keys.
func extractList(data any) ([]map[string]any, int) {
	var items []any
	total := -1
	switch v := data.(type) {
	case []any:
		items = v
	case []map[string]any:
		return v, len(v)
	case map[string]any:
		for _, key := range []string{"list", "data", "rows", "records", "items"} {
			if arr, ok := v[key].([]any); ok {
				items = arr
				break
			}
			if arr, ok := v[key].([]map[string]any); ok {
				rows := arr
				total = len(rows)
				if n, ok := totalOf(v); ok {
					total = n
				}
				return rows, total
			}
		}
		if n, ok := totalOf(v); ok {
			total = n
		}
	}
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	if total < 0 {
		total = len(rows)
	}
	return rows, total
}

func totalOf(v map[string]any) (int, bool) {
	for _, key := range []string{"total", "count"} {
		if n, ok := toNumber(v[key]); ok {
			return int(n), true
		}
	}
	return 0, false
}
