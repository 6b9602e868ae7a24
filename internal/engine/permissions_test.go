package engine

import (
	"testing"

	"panel-runtime/internal/metadata"
)

func rowButtons(n int) []metadata.ButtonDefinition {
	out := make([]metadata.ButtonDefinition, n)
	for i := range out {
		out[i] = metadata.ButtonDefinition{Title: "b", Action: metadata.ActionAPI, API: "op"}
	}
	return out
}

func TestActionsCell_Overflow(t *testing.T) {
	gate := NewButtonGate(NewEvaluator(DefaultFallbackPolicy(true)), 4)

	page := &metadata.PageDefinition{ID: "p", Buttons: rowButtons(6)}
	cell := gate.ActionsCell(page, nil, map[string]any{"id": 1}, nil)
	if cell.Overflow == nil || len(cell.Overflow.Buttons) != 6 || cell.Buttons != nil {
		t.Fatalf("expected 6 buttons grouped into the overflow menu, got %+v", cell)
	}

	page = &metadata.PageDefinition{ID: "p", Buttons: rowButtons(3)}
	cell = gate.ActionsCell(page, nil, map[string]any{"id": 1}, nil)
	if cell.Overflow != nil || len(cell.Buttons) != 3 {
		t.Fatalf("expected 3 inline buttons, got %+v", cell)
	}

	page.Settings.OverflowThreshold = 3
	cell = gate.ActionsCell(page, nil, map[string]any{"id": 1}, nil)
	if cell.Overflow == nil {
		t.Fatal("expected page threshold to override the default")
	}
}

func TestActionsCell_CountsOnlyVisibleButtons(t *testing.T) {
	gate := NewButtonGate(NewEvaluator(DefaultFallbackPolicy(true)), 4)
	buttons := rowButtons(5)
	buttons[0].HideExpression = "true"
	buttons[1].Roles = []string{"admin"}
	page := &metadata.PageDefinition{ID: "p", Buttons: buttons}

	cell := gate.ActionsCell(page, testUser("viewer"), map[string]any{}, nil)
	if cell.Overflow != nil || len(cell.Buttons) != 3 {
		t.Fatalf("expected 3 inline buttons, got %+v", cell)
	}
	if cell.Buttons[0].Ref != "2" {
		t.Fatalf("expected refs to keep definition indexes, got %s", cell.Buttons[0].Ref)
	}
}

func TestButtonGate_PlacementAndSwitchValue(t *testing.T) {
	gate := NewButtonGate(NewEvaluator(DefaultFallbackPolicy(false)), 4)
	page := &metadata.PageDefinition{ID: "p", Buttons: []metadata.ButtonDefinition{
		{Key: "toggle", Title: "On", Type: metadata.ButtonTypeSwitch, API: "set", Column: "enabled"},
		{Key: "row", Title: "Row"},
		{Key: "new", Title: "New", Mode: metadata.ModeToolbar},
		{Key: "bulk", Title: "Bulk", Mode: metadata.ModeBatch, DisableExpression: "oops"},
		{Key: "save", Title: "Save", Mode: metadata.ModeForm},
	}}
	row := map[string]any{"id": 1, "enabled": true}

	inCol := gate.ColumnButtons(page, "enabled", nil, row, nil)
	if len(inCol) != 1 || inCol[0].Value != true {
		t.Fatalf("expected switch with current value in its column, got %+v", inCol)
	}
	cell := gate.ActionsCell(page, nil, row, nil)
	if len(cell.Buttons) != 1 || cell.Buttons[0].Ref != "row" {
		t.Fatalf("expected only the plain row button in the actions cell, got %+v", cell.Buttons)
	}
	toolbar := gate.Toolbar(page, nil, nil)
	if len(toolbar) != 2 || toolbar[0].Ref != "new" || toolbar[1].Ref != "bulk" {
		t.Fatalf("unexpected toolbar %+v", toolbar)
	}
	if toolbar[1].Disabled {
		t.Fatal("expected failed disableExpression to enable when disableOnError is off")
	}
}

func TestVisibility_String(t *testing.T) {
	if Visible.String() != "visible" || Hidden.String() != "hidden" || ConditionUnmet.String() != "not applicable" {
		t.Fatal("unexpected visibility names")
	}
}
