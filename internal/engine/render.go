package engine

import (
	"strconv"
	"strings"

	"panel-runtime/internal/metadata"
)

const (
	CellValue   = "value"
	CellLabel   = "label"
	CellButtons = "buttons"
)

// Cell is what the host renders for one row/column pair.
type Cell struct {
	Kind     string        `json:"kind"`
	Value    any           `json:"value,omitempty"`
	Text     string        `json:"text,omitempty"`
	Status   string        `json:"status,omitempty"`
	Color    string        `json:"color,omitempty"`
	Href     string        `json:"href,omitempty"`
	Buttons  []ButtonView  `json:"buttons,omitempty"`
	Overflow *OverflowMenu `json:"overflow,omitempty"`
}

// Renderer formats a raw value for a display hint.
type Renderer func(value any, col metadata.GridColumn) Cell

var renderers = map[string]Renderer{
	metadata.DisplayMoney:         renderMoney,
	metadata.DisplayPercent:       renderPercent,
	metadata.DisplayDate:          renderTime("2006-01-02"),
	metadata.DisplayDatetime:      renderTime("2006-01-02 15:04:05"),
	metadata.DisplayDateRange:     renderRange("2006-01-02"),
	metadata.DisplayDatetimeRange: renderRange("2006-01-02 15:04:05"),
	metadata.DisplayEnum:          renderEnum,
	metadata.DisplayTag:           renderEnum,
	metadata.DisplayLink:          renderLink,
}

// RenderValue formats a plain data cell. Enumable columns without a display
// hint render as enums; everything else falls back to the stringified value.
func RenderValue(value any, col metadata.GridColumn) Cell {
	if r, ok := renderers[col.Display]; ok {
		return r(value, col)
	}
	if col.Enumable {
		return renderEnum(value, col)
	}
	return renderPlain(value, col)
}

func renderPlain(value any, _ metadata.GridColumn) Cell {
	return Cell{Kind: CellValue, Value: value, Text: metadata.Stringify(value)}
}

func renderMoney(value any, col metadata.GridColumn) Cell {
	n, ok := toNumber(value)
	if !ok {
		return renderPlain(value, col)
	}
	return Cell{Kind: CellValue, Value: value, Text: strconv.FormatFloat(n, 'f', 2, 64)}
}

func renderPercent(value any, col metadata.GridColumn) Cell {
	n, ok := toNumber(value)
	if !ok {
		return renderPlain(value, col)
	}
	return Cell{Kind: CellValue, Value: value, Text: strconv.FormatFloat(n, 'f', -1, 64) + "%"}
}

func renderTime(layout string) Renderer {
	return func(value any, col metadata.GridColumn) Cell {
		t, ok := parseDate(value)
		if !ok || !truthy(value) {
			return renderPlain(value, col)
		}
		return Cell{Kind: CellValue, Value: value, Text: t.Format(layout)}
	}
}

func renderRange(layout string) Renderer {
	return func(value any, col metadata.GridColumn) Cell {
		arr, ok := asSlice(value)
		if !ok || len(arr) != 2 {
			return renderTime(layout)(value, col)
		}
		parts := make([]string, 2)
		for i, v := range arr {
			if t, ok := parseDate(v); ok && truthy(v) {
				parts[i] = t.Format(layout)
			}
		}
		return Cell{Kind: CellValue, Value: value, Text: strings.Join(parts, " ~ ")}
	}
}

func renderEnum(value any, col metadata.GridColumn) Cell {
	item := col.FindItem(value)
	if item == nil {
		return renderPlain(value, col)
	}
	return Cell{Kind: CellValue, Value: value, Text: item.Label, Status: item.Status, Color: item.Color}
}

func renderLink(value any, col metadata.GridColumn) Cell {
	s := metadata.Stringify(value)
	return Cell{Kind: CellValue, Value: value, Text: s, Href: s}
}

// RenderLabel renders a model-select cell through its lookup. Ids without a
// resolved label are shown raw.
func RenderLabel(value any, col metadata.GridColumn, lookup *LabelLookup) Cell {
	ids, isArray := asSlice(value)
	if !isArray {
		ids = []any{value}
	}
	labels := make([]string, 0, len(ids))
	resolved := false
	for _, id := range ids {
		if label, ok := lookup.Label(id); ok {
			labels = append(labels, label)
			resolved = true
			continue
		}
		labels = append(labels, metadata.Stringify(id))
	}
	if !resolved {
		return renderPlain(value, col)
	}
	return Cell{Kind: CellLabel, Value: value, Text: strings.Join(labels, ", ")}
}
