package instrument

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordAction("p", "call", true)
	m.ObserveList("p", "ok", time.Millisecond)
	m.RecordLookup("p", "ok")
	m.RecordRequest("GET", 200)
	m.RecordDropped(3)
}

func TestMetrics_RecordAndServe(t *testing.T) {
	m := NewMetrics("panel")
	m.RecordAction("orders", "call", true)
	m.RecordAction("orders", "call", true)
	m.RecordLookup("orders", "failed")
	m.RecordDropped(0)
	m.RecordDropped(2)

	if got := testutil.ToFloat64(m.Actions.WithLabelValues("orders", "call", "true")); got != 2 {
		t.Fatalf("expected 2 actions, got %v", got)
	}
	if got := testutil.ToFloat64(m.EventsDropped); got != 2 {
		t.Fatalf("expected 2 dropped events, got %v", got)
	}

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `panel_lookups_total{page="orders",status="failed"} 1`) {
		t.Fatalf("expected lookup counter in scrape output:\n%s", body)
	}
}

type codedError struct{ code int }

func (e codedError) Error() string   { return "coded" }
func (e codedError) StatusCode() int { return e.code }

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetrics("panel")
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		var ce codedError
		if errors.As(err, &ce) {
			return c.SendStatus(ce.code)
		}
		return fiber.DefaultErrorHandler(c, err)
	}})
	app.Use(MetricsMiddleware(m))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/gone", func(c *fiber.Ctx) error { return codedError{code: http.StatusGone} })
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(http.StatusTeapot) })

	for _, path := range []string{"/ok", "/gone", "/teapot", "/missing"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
	}

	for code, want := range map[string]float64{"200": 1, "410": 1, "418": 1, "404": 1} {
		if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", code)); got != want {
			t.Errorf("status %s: got %v, want %v", code, got, want)
		}
	}
}
