package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"panel-runtime/internal/instrument"
	"panel-runtime/internal/metadata"
)

// PageResolver returns a page definition by id. metadata.Registry implements it.
type PageResolver interface {
	ResolvePage(ctx context.Context, id string) (*metadata.PageDefinition, error)
}

// Options tunes a Runtime.
type Options struct {
	OverflowThreshold int
	DefaultPageSize   int
	MaxConcurrency    int
	DisableOnError    bool
	BaseURL           string // used to build report URLs
	TaskPath          string
	Metrics           *instrument.Metrics
}

// Runtime turns a page definition and live rows into a working screen.
type Runtime struct {
	pages       PageResolver
	ops         Operations
	states      TableStateStore
	gate        *ButtonGate
	resolver    *Resolver
	dispatcher  *Dispatcher
	coordinator *Coordinator
	pageSize    int
	metrics     *instrument.Metrics
}

func NewRuntime(pages PageResolver, ops Operations, states TableStateStore, opts Options) *Runtime {
	if states == nil {
		states = NewMemoryTableStates()
	}
	if opts.TaskPath == "" {
		opts.TaskPath = "/tasks"
	}
	eval := NewEvaluator(DefaultFallbackPolicy(opts.DisableOnError))
	gate := NewButtonGate(eval, opts.OverflowThreshold)
	resolver := NewResolver(ops, opts.MaxConcurrency)
	resolver.metrics = opts.Metrics
	dispatcher := NewDispatcher(ops, gate, opts.BaseURL, opts.TaskPath)
	dispatcher.metrics = opts.Metrics
	return &Runtime{
		pages:       pages,
		ops:         ops,
		states:      states,
		gate:        gate,
		resolver:    resolver,
		dispatcher:  dispatcher,
		coordinator: NewCoordinator(),
		pageSize:    opts.DefaultPageSize,
		metrics:     opts.Metrics,
	}
}

// Page resolves a page definition, mapping a miss to PAGE_NOT_FOUND.
func (rt *Runtime) Page(ctx context.Context, id string) (*metadata.PageDefinition, error) {
	page, err := rt.pages.ResolvePage(ctx, id)
	if errors.Is(err, metadata.ErrPageNotFound) || (err == nil && page == nil) {
		return nil, PageNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve page %s: %w", id, err)
	}
	return page, nil
}

// Toolbar returns the toolbar and batch buttons user may see on page.
func (rt *Runtime) Toolbar(page *metadata.PageDefinition, user *metadata.UserContext, query map[string]string) []ButtonView {
	return rt.gate.Toolbar(page, user, query)
}

// States exposes the table state store.
func (rt *Runtime) States() TableStateStore { return rt.states }

// ListRequest asks for one page of rows.
type ListRequest struct {
	Resource string // table-state key; also the unit of latest-wins coalescing
	Change   TableChange
	Static   map[string]any
	Query    map[string]string
	User     *metadata.UserContext
}

type ListMeta struct {
	Skip           int      `json:"skip"`
	Limit          int      `json:"limit"`
	Total          int      `json:"total"`
	Pages          int      `json:"pages"`
	MissingFilters []string `json:"missingFilters,omitempty"`
}

// ListResult is rows plus everything needed to render them.
type ListResult struct {
	Data    []map[string]any        `json:"data"`
	Cells   []map[string]Cell       `json:"cells"`
	Labels  map[string]*LabelLookup `json:"labels"`
	Toolbar []ButtonView            `json:"toolbar"`
	Meta    ListMeta                `json:"meta"`
}

// List fetches, resolves and renders one page of rows. Missing required
// filters yield an empty result without a fetch.
func (rt *Runtime) List(ctx context.Context, pageID string, req ListRequest) (*ListResult, error) {
	page, err := rt.Page(ctx, pageID)
	if err != nil {
		return nil, err
	}

	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "bridge", "table.list")
	defer span.End()
	span.SetPage(page.ID, "")
	start := time.Now()

	change := req.Change
	if change.Pagination.PageSize <= 0 {
		change.Pagination.PageSize = page.Settings.PageSize
	}
	if change.Pagination.PageSize <= 0 {
		change.Pagination.PageSize = rt.pageSize
	}
	columns := page.DataColumns()
	fetch := OnTableChange(change, columns, req.Static)

	result := &ListResult{
		Data:    []map[string]any{},
		Cells:   []map[string]Cell{},
		Labels:  map[string]*LabelLookup{},
		Toolbar: rt.gate.Toolbar(page, req.User, req.Query),
		Meta:    ListMeta{Skip: fetch.Skip, Limit: fetch.Limit},
	}

	if missing := MissingRequiredFilters(mergeMaps(change.RawFilters(), req.Static), columns); len(missing) > 0 {
		result.Meta.MissingFilters = missing
		span.SetStatus("ok")
		span.SetMetadata("skipped", "missing required filters")
		rt.metrics.ObserveList(page.ID, "skipped", time.Since(start))
		return result, nil
	}

	// Rows are resolved and rendered inside the coordinated call so a fetch
	// superseded during its lookups is discarded too.
	var out *ListResult
	load := func(ctx context.Context) error {
		res, err := rt.ops.Call(ctx, page, page.Read, fetch)
		if err != nil {
			return OperationFailedError(err.Error())
		}
		if !res.OK() {
			return OperationFailedError(res.Message)
		}
		data, err := applyListPath(page.Settings.ListPath, res.Data)
		if err != nil {
			return OperationFailedError(err.Error())
		}
		rows, total := extractList(data)
		if rows == nil {
			rows = []map[string]any{}
		}
		labels := rt.resolver.Resolve(ctx, page, rows)

		out = &ListResult{
			Data:    rows,
			Cells:   rt.renderRows(page, rows, labels, req),
			Labels:  labels,
			Toolbar: result.Toolbar,
			Meta:    result.Meta,
		}
		out.Meta.Total = total
		out.Meta.Pages = PageCount(total, fetch.Limit)
		return nil
	}
	if req.Resource != "" {
		err = rt.coordinator.DoAndCommit(ctx, req.Resource, load, func() {
			if err := rt.states.Set(ctx, req.Resource, change); err != nil {
				log.Printf("WARN: save table state %s: %v", req.Resource, err)
			}
		})
	} else {
		err = load(ctx)
	}
	if err != nil {
		status := "error"
		if errors.Is(err, ErrSuperseded) {
			status = "superseded"
		}
		span.SetStatus(status)
		rt.metrics.ObserveList(page.ID, status, time.Since(start))
		return nil, err
	}

	span.SetMetadata("rows", len(out.Data))
	span.SetStatus("ok")
	rt.metrics.ObserveList(page.ID, "ok", time.Since(start))
	return out, nil
}

func (rt *Runtime) renderRows(page *metadata.PageDefinition, rows []map[string]any, labels map[string]*LabelLookup, req ListRequest) []map[string]Cell {
	cells := make([]map[string]Cell, len(rows))
	for i, row := range rows {
		rc := make(map[string]Cell, len(page.Grid))
		for _, col := range page.Grid {
			switch {
			case col.IsActions():
				rc[col.Field] = rt.gate.ActionsCell(page, req.User, row, req.Query)
			case col.ModelSelect:
				rc[col.Field] = RenderLabel(row[col.Field], col, labels[col.Field])
			default:
				cell := RenderValue(row[col.Field], col)
				if buttons := rt.gate.ColumnButtons(page, col.Field, req.User, row, req.Query); len(buttons) > 0 {
					cell.Kind = CellButtons
					cell.Buttons = buttons
				}
				rc[col.Field] = cell
			}
		}
		cells[i] = rc
	}
	return cells
}

// Dispatch performs a button action on page.
func (rt *Runtime) Dispatch(ctx context.Context, pageID string, req DispatchRequest) (*Outcome, error) {
	page, err := rt.Page(ctx, pageID)
	if err != nil {
		return nil, err
	}
	return rt.dispatcher.Dispatch(ctx, page, req)
}
