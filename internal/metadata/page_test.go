package metadata

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const orderPageJSON = `{
	"id": "orders",
	"name": "order",
	"read": "list",
	"grid": [
		{"field": "id", "name": "ID", "type": "number", "sorter": true},
		{"field": "title", "name": "Title", "type": "string", "filterable": true},
		{"field": "customer_id", "name": "Customer", "type": "number", "modelSelect": true, "modelSelectApi": "customers"},
		{"field": "_action", "name": "Actions"}
	],
	"buttons": [
		{"key": "edit", "title": "Edit", "action": "url", "url": "/form?id=$"},
		{"title": "Export", "mode": "toolbar", "action": "report", "api": "export"}
	],
	"settings": {"table": "orders", "operations": {"customers": {"kind": "list", "table": "customers"}}}
}`

func TestParsePage_Valid(t *testing.T) {
	page, err := ParsePage([]byte(orderPageJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if page.ID != "orders" || page.Read != "list" {
		t.Fatalf("unexpected page header: %+v", page)
	}
	if len(page.DataColumns()) != 3 {
		t.Fatalf("expected 3 data columns, got %d", len(page.DataColumns()))
	}
	if cols := page.ModelSelectColumns(); len(cols) != 1 || cols[0].Field != "customer_id" {
		t.Fatalf("expected customer_id model-select column, got %+v", cols)
	}
	if page.RowKey() != "id" {
		t.Fatalf("expected default row key id, got %s", page.RowKey())
	}
	if page.GetColumn("customer_id").LabelField() != "name" {
		t.Fatal("expected default label field name")
	}
}

func TestPage_FindButton(t *testing.T) {
	page, err := ParsePage([]byte(orderPageJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if b := page.FindButton("edit"); b == nil || b.Title != "Edit" {
		t.Fatalf("expected edit button by key, got %+v", b)
	}
	if b := page.FindButton("1"); b == nil || b.Title != "Export" {
		t.Fatalf("expected export button by index, got %+v", b)
	}
	if b := page.FindButton("missing"); b != nil {
		t.Fatalf("expected nil for unknown button, got %+v", b)
	}
	if m := page.FindButton("edit").EffectiveMode(); m != ModeRow {
		t.Fatalf("expected edit to be a row button, got %q", m)
	}
}

func TestPage_LocalOperation(t *testing.T) {
	page, err := ParsePage([]byte(orderPageJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	spec, ok := page.LocalOperation("list")
	if !ok || spec.Kind != OperationList || spec.Table != "orders" {
		t.Fatalf("expected read op served from orders table, got %+v %v", spec, ok)
	}
	spec, ok = page.LocalOperation("customers")
	if !ok || spec.Table != "customers" {
		t.Fatalf("expected declared customers op, got %+v %v", spec, ok)
	}
	if _, ok := page.LocalOperation("export"); ok {
		t.Fatal("export is not served locally")
	}
}

func TestValidate_Invariants(t *testing.T) {
	page := &PageDefinition{
		ID: "bad",
		Grid: []GridColumn{
			{Field: "a"},
			{Field: "a"},
			{Field: ActionsColumn},
			{Field: ActionsColumn},
			{Field: "ref", ModelSelect: true},
		},
		Buttons: []ButtonDefinition{
			{Title: "go", Action: ActionURL},
			{Title: "modal", Action: ActionFormModal},
			{Title: "toggle", Type: ButtonTypeSwitch},
		},
	}
	issues := Validate(page)
	want := []string{
		"duplicate field",
		"actions column may appear at most once",
		"requires modelSelectApi",
		"url action requires url",
		"formModal action requires modalQuery",
		"switch button requires api and column",
	}
	if len(issues) != len(want) {
		t.Fatalf("expected %d issues, got %d: %+v", len(want), len(issues), issues)
	}
	for i, w := range want {
		if !strings.Contains(issues[i].Message, w) {
			t.Fatalf("issue %d: expected %q, got %q", i, w, issues[i].Message)
		}
	}
}

func TestLoadDir_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "orders.json"), []byte(orderPageJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	yamlPage := `
name: customer
read: list
grid:
  - field: id
    name: ID
    type: number
  - field: name
    name: Name
    type: string
`
	if err := os.WriteFile(filepath.Join(dir, "customers.yaml"), []byte(yamlPage), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"grid": [{"field": "x"}, {"field": "x"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	pages, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages (broken skipped), got %d", len(pages))
	}

	reg := NewRegistry()
	reg.Load(pages)
	customers := reg.GetPage("customers")
	if customers == nil {
		t.Fatal("expected yaml page id to default to file name")
	}
	if len(customers.Grid) != 2 || customers.Grid[1].Type != TypeString {
		t.Fatalf("unexpected yaml grid: %+v", customers.Grid)
	}
	if _, err := reg.ResolvePage(context.Background(), "nope"); err != ErrPageNotFound {
		t.Fatalf("expected ErrPageNotFound, got %v", err)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{float64(5), "5"},
		{2.5, "2.5"},
		{true, "true"},
		{"x", "x"},
		{[]any{float64(1), "b"}, "1,b"},
	}
	for _, tt := range tests {
		if got := Stringify(tt.in); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate_ListPath(t *testing.T) {
	page := &PageDefinition{ID: "p", Settings: Settings{ListPath: ".result | {list: .items"}}
	issues := Validate(page)
	if len(issues) != 1 || issues[0].Path != "settings.listPath" {
		t.Fatalf("expected listPath issue, got %+v", issues)
	}
	page.Settings.ListPath = ".result | {list: .items, total: .count}"
	if issues := Validate(page); len(issues) != 0 {
		t.Fatalf("expected valid listPath, got %+v", issues)
	}
}

func TestUserContext_Roles(t *testing.T) {
	u := &UserContext{ID: "op-1", Roles: []string{"Admin", "editor"}}
	if !u.IsAdmin() {
		t.Fatal("role names compare case-insensitively")
	}
	if u.HasAnyRole([]string{"viewer"}) {
		t.Fatal("unexpected match for a role the user lacks")
	}
	var nobody *UserContext
	if nobody.HasAnyRole([]string{"admin"}) || nobody.IsAdmin() {
		t.Fatal("a nil user holds no roles")
	}
}
