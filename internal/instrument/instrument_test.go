package instrument

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"panel-runtime/internal/config"
	"panel-runtime/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func TestGetInstrumenter_DefaultsToNoop(t *testing.T) {
	inst := GetInstrumenter(context.Background())
	if _, ok := inst.(*NoopInstrumenter); !ok {
		t.Fatalf("expected NoopInstrumenter, got %T", inst)
	}
	_, span := inst.StartSpan(context.Background(), "engine", "bridge", "fetch")
	span.End()
	if span.TraceID() != "" {
		t.Fatal("noop span must not carry a trace id")
	}
}

func TestSpans_FlushAndTrace(t *testing.T) {
	s := newTestStore(t)
	buf := NewEventBuffer(s.DB, s.Dialect, 100, 60000)
	defer buf.Stop()

	inst := NewInstrumenter(buf)
	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "u1")

	ctx, root := inst.StartSpan(ctx, "http", "handler", "request")
	childCtx, child := inst.StartSpan(ctx, "engine", "resolver", "resolve")
	child.SetPage("orders", "")
	child.SetStatus("ok")
	child.End()
	child.End()
	inst.EmitActionEvent(childCtx, "approve", "orders", "42", map[string]any{"button": "approve"})
	root.SetStatus("ok")
	root.End()

	if got := buf.Pending(); got != 3 {
		t.Fatalf("expected 3 pending events, got %d", got)
	}
	buf.Flush()
	if got := buf.Pending(); got != 0 {
		t.Fatalf("expected empty buffer after flush, got %d", got)
	}

	app := fiber.New()
	RegisterRoutes(app, NewEventHandler(s.DB, s.Dialect))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/_events/trace/trace-1", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	var out struct {
		Data struct {
			Spans    int            `json:"spans"`
			RootSpan map[string]any `json:"root_span"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Data.Spans != 3 {
		t.Fatalf("expected 3 spans, got %d", out.Data.Spans)
	}
	if out.Data.RootSpan["span_id"] != root.SpanID() {
		t.Fatalf("expected root span %s, got %v", root.SpanID(), out.Data.RootSpan["span_id"])
	}
	children, _ := out.Data.RootSpan["children"].([]any)
	if len(children) != 1 {
		t.Fatalf("expected 1 child under root, got %d", len(children))
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/api/_events?event_type=action&page=1", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	var list struct {
		Data       []map[string]any `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Pagination.Total != 1 || list.Data[0]["row_id"] != "42" {
		t.Fatalf("expected one action event for row 42, got %+v", list)
	}
}

func TestGetTrace_NotFound(t *testing.T) {
	s := newTestStore(t)
	app := fiber.New()
	RegisterRoutes(app, NewEventHandler(s.DB, s.Dialect))
	resp, err := app.Test(httptest.NewRequest("GET", "/api/_events/trace/missing", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMiddleware_SetsTraceHeader(t *testing.T) {
	s := newTestStore(t)
	buf := NewEventBuffer(s.DB, s.Dialect, 100, 60000)
	defer buf.Stop()

	app := fiber.New()
	app.Use(Middleware(config.InstrumentationConfig{Enabled: true, SamplingRate: 1}, buf))
	app.Get("/ping", func(c *fiber.Ctx) error {
		if GetTraceID(c.UserContext()) != "abc" {
			t.Errorf("expected propagated trace id")
		}
		return c.SendString("pong")
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Trace-ID", "abc")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.Header.Get("X-Trace-ID") != "abc" {
		t.Fatalf("expected trace header echoed, got %q", resp.Header.Get("X-Trace-ID"))
	}
	if buf.Pending() != 1 {
		t.Fatalf("expected root span enqueued, got %d", buf.Pending())
	}
}
