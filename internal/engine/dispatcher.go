package engine

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"strings"
	"sync"

	"panel-runtime/internal/instrument"
	"panel-runtime/internal/metadata"
)

// Outcome effects.
const (
	EffectNone     = "none"
	EffectCall     = "call"
	EffectNavigate = "navigate"
	EffectModal    = "modal"
	EffectReport   = "report"
	EffectTask     = "task"
	EffectConfirm  = "confirm" // confirmation pending, nothing ran
	EffectAborted  = "aborted" // confirmation declined
)

// Screens a dispatch can come from.
const (
	ScreenList   = "list"
	ScreenDetail = "detail"
)

// ReportFormat is appended to report URLs.
const ReportFormat = "xlsx"

// modalControls maps a modalType to the nested control opened for it.
var modalControls = map[string]string{
	"form":   "page-form",
	"table":  "page-table",
	"detail": "page-detail",
}

// Status is reported to ActionContext.OnStatus after a remote call.
type Status struct {
	Button  string `json:"button"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ConfirmFunc shows text and reports whether the user accepted.
type ConfirmFunc func(ctx context.Context, text string) bool

// ActionContext is everything a dispatch needs from its caller.
type ActionContext struct {
	User   *metadata.UserContext
	Query  map[string]string // page query parameters, substituted for @key@
	Embed  map[string]any    // payload embedded by the host page
	Screen string
	// Confirm is asked before confirmed calls. When nil, a confirmed call
	// returns an EffectConfirm outcome carrying the text instead of running.
	Confirm  ConfirmFunc
	OnStatus func(Status)
}

// DispatchRequest addresses one button of a page.
type DispatchRequest struct {
	Button string           // key or index
	Row    map[string]any   // row buttons
	Rows   []map[string]any // batch buttons
	Value  any              // new value for switches
	Ctx    ActionContext
}

// Modal describes a nested control to open.
type Modal struct {
	Type          string         `json:"type"`
	Control       string         `json:"control"`
	Query         map[string]any `json:"query"`
	ReloadOnClose bool           `json:"reloadOnClose"`
}

// Outcome tells the host what to do after a dispatch.
type Outcome struct {
	Effect  string `json:"effect"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Confirm string `json:"confirm,omitempty"`
	Target  string `json:"target,omitempty"`
	Modal   *Modal `json:"modal,omitempty"`
	Data    any    `json:"data,omitempty"`
	Reload  bool   `json:"reload"`
	Back    bool   `json:"back"`
}

// Dispatcher performs button actions. Concurrent dispatches of the same
// button on the same row are refused while one is running.
type Dispatcher struct {
	ops      Operations
	gate     *ButtonGate
	baseURL  string
	taskPath string
	inFlight sync.Map
	metrics  *instrument.Metrics
}

func NewDispatcher(ops Operations, gate *ButtonGate, baseURL, taskPath string) *Dispatcher {
	return &Dispatcher{ops: ops, gate: gate, baseURL: baseURL, taskPath: taskPath}
}

// Dispatch re-checks the button against the row, then performs its action.
// Failed remote calls are reported in the Outcome, not as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, page *metadata.PageDefinition, req DispatchRequest) (*Outcome, error) {
	b := page.FindButton(req.Button)
	if b == nil {
		return nil, UnknownButtonError(page.ID, req.Button)
	}
	req.Button = canonicalRef(page, b)
	row := req.Row
	if row == nil {
		row = map[string]any{}
	}
	ac := req.Ctx

	vis, disabled := d.gate.Check(*b, ac.User, row, ac.Query)
	switch {
	case vis == Unauthorized:
		return nil, ForbiddenError("You are not allowed to use " + b.Title)
	case vis != Visible:
		return nil, ActionUnavailableError(b.Title, vis.String())
	case disabled:
		return nil, ActionUnavailableError(b.Title, "disabled")
	}

	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "dispatcher", "action.dispatch")
	defer span.End()
	rowID := metadata.Stringify(row[page.RowKey()])
	span.SetPage(page.ID, rowID)
	span.SetMetadata("button", req.Button)

	var out *Outcome
	var err error
	switch {
	case b.IsSwitch():
		out, err = d.toggle(ctx, page, b, row, req)
	case b.Action == metadata.ActionAPI && b.EffectiveMode() == metadata.ModeBatch:
		out, err = d.batch(ctx, page, b, req)
	case b.Action == metadata.ActionAPI:
		out, err = d.call(ctx, page, b, row, req)
	case b.Action == metadata.ActionURL:
		out = &Outcome{Effect: EffectNavigate, Success: true, Target: BuildURL(b.URL, row, page.RowKey(), ac.Query)}
	case b.Action == metadata.ActionFormModal:
		out, err = openModal(b, row, ac.Query)
	case b.Action == metadata.ActionReport:
		out = d.report(page, b, ac)
	default:
		out = &Outcome{Effect: EffectNone, Success: true}
	}
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}
	span.SetMetadata("effect", out.Effect)
	d.metrics.RecordAction(page.ID, out.Effect, out.Success)
	if out.Success {
		span.SetStatus("ok")
	} else {
		span.SetStatus("error")
	}
	return out, nil
}

// canonicalRef returns the key-or-index ref of b so the same button is
// addressed the same way whichever ref the caller used.
func canonicalRef(page *metadata.PageDefinition, b *metadata.ButtonDefinition) string {
	for i := range page.Buttons {
		if &page.Buttons[i] == b {
			return b.Ref(i)
		}
	}
	return b.Key
}

// BuildURL fills a url template: $ becomes the row id when the row has one,
// then #field# and @key@ are substituted.
func BuildURL(template string, row map[string]any, rowKey string, query map[string]string) string {
	target := template
	if id, ok := row[rowKey]; ok && id != nil {
		target = strings.ReplaceAll(target, "$", metadata.Stringify(id))
	}
	return Substitute(target, row, query)
}

func openModal(b *metadata.ButtonDefinition, row map[string]any, query map[string]string) (*Outcome, error) {
	text := Substitute(b.ModalQuery, row, query)
	var q map[string]any
	if err := json.Unmarshal([]byte(text), &q); err != nil || q == nil {
		return nil, InvalidDefinitionError("modalQuery of "+b.Title+" is not a JSON object after substitution",
			[]ErrorDetail{{Field: "modalQuery", Message: text}})
	}
	modalType, _ := q["modalType"].(string)
	if modalType == "" {
		modalType = "form"
		q["modalType"] = modalType
	}
	control, ok := modalControls[modalType]
	if !ok {
		return nil, InvalidDefinitionError("unknown modalType "+modalType,
			[]ErrorDetail{{Field: "modalQuery.modalType", Message: modalType}})
	}
	return &Outcome{
		Effect:  EffectModal,
		Success: true,
		Modal:   &Modal{Type: modalType, Control: control, Query: q, ReloadOnClose: true},
	}, nil
}

func (d *Dispatcher) report(page *metadata.PageDefinition, b *metadata.ButtonDefinition, ac ActionContext) *Outcome {
	target := PageAPIURL(d.baseURL, page, b.API)
	if strings.Contains(target, "?") {
		target += "&format=" + ReportFormat
	} else {
		target += "?format=" + ReportFormat
	}
	if page.Settings.ReportTask && ac.Screen != ScreenDetail {
		return &Outcome{Effect: EffectTask, Success: true, Target: d.taskPath + "?report=" + url.QueryEscape(target)}
	}
	return &Outcome{Effect: EffectReport, Success: true, Target: target}
}

// confirm resolves the button's confirmation. ok is false when the caller
// must stop and return out.
func confirm(ctx context.Context, b *metadata.ButtonDefinition, row map[string]any, ac ActionContext) (out *Outcome, ok bool) {
	if b.Confirm == "" {
		return nil, true
	}
	text := Substitute(b.Confirm, row, ac.Query)
	if ac.Confirm == nil {
		return &Outcome{Effect: EffectConfirm, Confirm: text}, false
	}
	if !ac.Confirm(ctx, text) {
		return &Outcome{Effect: EffectAborted}, false
	}
	return nil, true
}

func (d *Dispatcher) call(ctx context.Context, page *metadata.PageDefinition, b *metadata.ButtonDefinition, row map[string]any, req DispatchRequest) (*Outcome, error) {
	payload := cloneRow(row)
	if b.EmbedURL {
		payload = mergeMaps(payload, req.Ctx.Embed)
	}
	if out, ok := confirm(ctx, b, row, req.Ctx); !ok {
		return out, nil
	}
	return d.invoke(ctx, page, b, req, metadata.Stringify(row[page.RowKey()]), payload, b.BackOnDone)
}

func (d *Dispatcher) batch(ctx context.Context, page *metadata.PageDefinition, b *metadata.ButtonDefinition, req DispatchRequest) (*Outcome, error) {
	if len(req.Rows) == 0 {
		return nil, InvalidPayloadError("Select at least one row for " + b.Title)
	}
	ids := make([]any, 0, len(req.Rows))
	for _, r := range req.Rows {
		if id, ok := r[page.RowKey()]; ok && id != nil {
			ids = append(ids, id)
		}
	}
	payload := map[string]any{"ids": ids}
	if b.EmbedURL {
		payload = mergeMaps(payload, req.Ctx.Embed)
	}
	if out, ok := confirm(ctx, b, map[string]any{"count": len(ids)}, req.Ctx); !ok {
		return out, nil
	}
	return d.invoke(ctx, page, b, req, "batch", payload, b.BackOnDone)
}

func (d *Dispatcher) toggle(ctx context.Context, page *metadata.PageDefinition, b *metadata.ButtonDefinition, row map[string]any, req DispatchRequest) (*Outcome, error) {
	payload := map[string]any{
		"id":     row[page.RowKey()],
		b.Column: req.Value,
	}
	return d.invoke(ctx, page, b, req, metadata.Stringify(row[page.RowKey()]), payload, false)
}

// invoke runs the remote call under the in-flight guard and reports status.
// The table is reloaded whatever the result.
func (d *Dispatcher) invoke(ctx context.Context, page *metadata.PageDefinition, b *metadata.ButtonDefinition, req DispatchRequest, instance string, payload map[string]any, back bool) (*Outcome, error) {
	key := page.ID + "/" + req.Button + "/" + instance
	if _, busy := d.inFlight.LoadOrStore(key, struct{}{}); busy {
		return nil, ActionInFlightError(b.Title)
	}
	defer d.inFlight.Delete(key)

	out := &Outcome{Effect: EffectCall, Reload: true}
	res, err := d.ops.Call(ctx, page, b.API, payload)
	switch {
	case err != nil:
		log.Printf("WARN: action %s on %s: %v", b.API, page.ID, err)
		out.Message = err.Error()
	case !res.OK():
		out.Message = res.Message
		if out.Message == "" {
			out.Message = "Operation failed"
		}
	default:
		out.Success = true
		out.Message = res.Message
		out.Data = res.Data
		out.Back = back
	}

	instrument.GetInstrumenter(ctx).EmitActionEvent(ctx, b.API, page.ID, instance, map[string]any{
		"button":  req.Button,
		"success": out.Success,
	})
	if req.Ctx.OnStatus != nil {
		req.Ctx.OnStatus(Status{Button: req.Button, Success: out.Success, Message: out.Message})
	}
	return out, nil
}
