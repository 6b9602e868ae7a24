package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"panel-runtime/internal/config"
	"panel-runtime/internal/engine"
	"panel-runtime/internal/metadata"
	"panel-runtime/internal/store"
)

const ordersPage = `{
	"id": "orders",
	"read": "list",
	"grid": [{"field": "id", "type": "number"}, {"field": "title", "type": "string"}],
	"buttons": [{"key": "edit", "title": "Edit", "action": "url", "url": "/orders/$"}]
}`

func newAdminApp(t *testing.T, pagesDir string) (*fiber.App, *metadata.Registry) {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	reg := metadata.NewRegistry()
	if err := metadata.LoadAll(ctx, s.DB, pagesDir, reg); err != nil {
		t.Fatalf("load pages: %v", err)
	}
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	RegisterAdminRoutes(app, NewHandler(s, reg, pagesDir))
	return app, reg
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("%s %s: invalid JSON %q", method, path, raw)
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestAdmin_PageLifecycle(t *testing.T) {
	app, reg := newAdminApp(t, "")

	status, body := doJSON(t, app, "POST", "/api/_admin/pages", ordersPage)
	if status != fiber.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %v", status, body)
	}
	if reg.GetPage("orders") == nil {
		t.Fatal("expected registry reloaded with orders")
	}

	status, body = doJSON(t, app, "POST", "/api/_admin/pages", ordersPage)
	if status != fiber.StatusConflict || errorCode(body) != "CONFLICT" {
		t.Fatalf("duplicate: expected 409 CONFLICT, got %d %v", status, body)
	}

	status, body = doJSON(t, app, "GET", "/api/_admin/pages/orders", "")
	if status != fiber.StatusOK {
		t.Fatalf("get: expected 200, got %d", status)
	}
	data := body["data"].(map[string]any)
	if data["read"] != "list" {
		t.Fatalf("unexpected page %v", data)
	}

	updated := strings.Replace(ordersPage, `"read": "list"`, `"read": "search"`, 1)
	status, body = doJSON(t, app, "PUT", "/api/_admin/pages/orders", updated)
	if status != fiber.StatusOK {
		t.Fatalf("update: expected 200, got %d: %v", status, body)
	}
	if reg.GetPage("orders").Read != "search" {
		t.Fatal("expected registry to serve the updated definition")
	}

	status, body = doJSON(t, app, "GET", "/api/_admin/pages", "")
	if status != fiber.StatusOK || len(body["data"].([]any)) != 1 {
		t.Fatalf("list: unexpected %d %v", status, body)
	}

	status, _ = doJSON(t, app, "DELETE", "/api/_admin/pages/orders", "")
	if status != fiber.StatusOK {
		t.Fatalf("delete: expected 200, got %d", status)
	}
	if reg.GetPage("orders") != nil {
		t.Fatal("expected orders removed from registry")
	}
	status, body = doJSON(t, app, "DELETE", "/api/_admin/pages/orders", "")
	if status != fiber.StatusNotFound || errorCode(body) != "PAGE_NOT_FOUND" {
		t.Fatalf("second delete: expected 404 PAGE_NOT_FOUND, got %d %v", status, body)
	}
}

func TestAdmin_RejectsInvalidDefinitions(t *testing.T) {
	app, _ := newAdminApp(t, "")

	status, body := doJSON(t, app, "POST", "/api/_admin/pages", `{"id": "bad", "grid": [{"field": "a"}, {"field": "a"}]}`)
	if status != fiber.StatusUnprocessableEntity || errorCode(body) != "INVALID_DEFINITION" {
		t.Fatalf("expected 422 INVALID_DEFINITION, got %d %v", status, body)
	}

	status, body = doJSON(t, app, "POST", "/api/_admin/pages", `{"grid": []}`)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("missing id: expected 422, got %d %v", status, body)
	}

	status, body = doJSON(t, app, "POST", "/api/_admin/pages", `{not json`)
	if status != fiber.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d %v", status, body)
	}

	status, body = doJSON(t, app, "PUT", "/api/_admin/pages/ghost", ordersPage)
	if status != fiber.StatusNotFound {
		t.Fatalf("update unknown: expected 404, got %d %v", status, body)
	}
}

func TestAdmin_ValidateAndReload(t *testing.T) {
	dir := t.TempDir()
	app, reg := newAdminApp(t, dir)

	status, body := doJSON(t, app, "POST", "/api/_admin/pages/_validate",
		`{"id": "x", "buttons": [{"title": "go", "action": "url"}]}`)
	if status != fiber.StatusOK {
		t.Fatalf("validate: expected 200, got %d", status)
	}
	data := body["data"].(map[string]any)
	if data["valid"] != false || len(data["issues"].([]any)) != 1 {
		t.Fatalf("expected one issue, got %v", data)
	}

	if err := os.WriteFile(filepath.Join(dir, "orders.json"), []byte(ordersPage), 0o644); err != nil {
		t.Fatal(err)
	}
	if reg.GetPage("orders") != nil {
		t.Fatal("file should not be visible before reload")
	}
	status, body = doJSON(t, app, "POST", "/api/_admin/reload", "")
	if status != fiber.StatusOK {
		t.Fatalf("reload: expected 200, got %d", status)
	}
	if body["data"].(map[string]any)["pages"] != float64(1) || reg.GetPage("orders") == nil {
		t.Fatalf("expected orders loaded from file, got %v", body)
	}
}
