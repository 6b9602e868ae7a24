package engine

import (
	"testing"

	"panel-runtime/internal/metadata"
)

func TestRenderValue(t *testing.T) {
	status := metadata.GridColumn{Field: "status", Enumable: true, Items: []metadata.EnumItem{
		{Value: "open", Label: "Open", Status: "processing"},
		{Value: float64(2), Label: "Two", Color: "red"},
	}}

	tests := []struct {
		name  string
		value any
		col   metadata.GridColumn
		want  Cell
	}{
		{"money", 12.5, metadata.GridColumn{Display: metadata.DisplayMoney},
			Cell{Kind: CellValue, Value: 12.5, Text: "12.50"}},
		{"percent", float64(30), metadata.GridColumn{Display: metadata.DisplayPercent},
			Cell{Kind: CellValue, Value: float64(30), Text: "30%"}},
		{"date", "2024-03-05T10:20:30Z", metadata.GridColumn{Display: metadata.DisplayDate},
			Cell{Kind: CellValue, Value: "2024-03-05T10:20:30Z", Text: "2024-03-05"}},
		{"datetime", "2024-03-05T10:20:30Z", metadata.GridColumn{Display: metadata.DisplayDatetime},
			Cell{Kind: CellValue, Value: "2024-03-05T10:20:30Z", Text: "2024-03-05 10:20:30"}},
		{"enumable without display", "open", status,
			Cell{Kind: CellValue, Value: "open", Text: "Open", Status: "processing"}},
		{"enum matches numbers by text", 2, status,
			Cell{Kind: CellValue, Value: 2, Text: "Two", Color: "red"}},
		{"unknown enum value is plain", "gone", status,
			Cell{Kind: CellValue, Value: "gone", Text: "gone"}},
		{"link", "https://example.com", metadata.GridColumn{Display: metadata.DisplayLink},
			Cell{Kind: CellValue, Value: "https://example.com", Text: "https://example.com", Href: "https://example.com"}},
		{"empty date stays empty", "", metadata.GridColumn{Display: metadata.DisplayDate},
			Cell{Kind: CellValue, Value: "", Text: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderValue(tt.value, tt.col)
			if got.Kind != tt.want.Kind || got.Text != tt.want.Text || got.Status != tt.want.Status ||
				got.Color != tt.want.Color || got.Href != tt.want.Href {
				t.Fatalf("RenderValue(%v) = %+v, want %+v", tt.value, got, tt.want)
			}
		})
	}
}

func TestRenderValue_Range(t *testing.T) {
	col := metadata.GridColumn{Display: metadata.DisplayDateRange}
	got := RenderValue([]any{"2024-03-01", "2024-03-31"}, col)
	if got.Text != "2024-03-01 ~ 2024-03-31" {
		t.Fatalf("unexpected range text %q", got.Text)
	}
	got = RenderValue([]any{"2024-03-01", nil}, col)
	if got.Text != "2024-03-01 ~ " {
		t.Fatalf("unexpected open range text %q", got.Text)
	}
}
