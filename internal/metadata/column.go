package metadata

import "strings"

// ActionsColumn is the grid field that marks the row-actions column.
const ActionsColumn = "_action"

const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeDate    = "date"
)

// Display hints understood by the render table.
const (
	DisplayMoney         = "money"
	DisplayPercent       = "percent"
	DisplayDate          = "date"
	DisplayDatetime      = "datetime"
	DisplayDateRange     = "dateRange"
	DisplayDatetimeRange = "datetimeRange"
	DisplayEnum          = "enum"
	DisplayTag           = "tag"
	DisplayLink          = "link"
)

// EnumItem is one member of a closed value set.
type EnumItem struct {
	Value  any    `json:"value"`
	Label  string `json:"label"`
	Status string `json:"status,omitempty"`
	Color  string `json:"color,omitempty"`
}

// GridColumn is one table column.
type GridColumn struct {
	Field            string     `json:"field"`
	Name             string     `json:"name"`
	Type             string     `json:"type"`
	Display          string     `json:"display,omitempty"`
	Filterable       bool       `json:"filterable,omitempty"`
	FilterRange      bool       `json:"filterRange,omitempty"`
	Filters          bool       `json:"filters,omitempty"`
	Accurate         bool       `json:"accurate,omitempty"`
	Required         bool       `json:"required,omitempty"`
	Enumable         bool       `json:"enumable,omitempty"`
	Items            []EnumItem `json:"items,omitempty"`
	ModelSelect      bool       `json:"modelSelect,omitempty"`
	ModelSelectAPI   string     `json:"modelSelectApi,omitempty"`
	ModelSelectField string     `json:"modelSelectField,omitempty"`
	Sorter           bool       `json:"sorter,omitempty"`
	Fixed            string     `json:"fixed,omitempty"`
	Width            int        `json:"width,omitempty"`
	ViewDetail       bool       `json:"viewDetail,omitempty"`
	ViewDetailCtrl   string     `json:"viewDetailCtrl,omitempty"`
}

// IsActions reports whether this is the row-actions column.
func (c GridColumn) IsActions() bool {
	return c.Field == ActionsColumn
}

// IsRangeDisplay reports whether the display hint is a range variant.
func (c GridColumn) IsRangeDisplay() bool {
	return strings.HasSuffix(c.Display, "Range")
}

// LabelField is the foreign record field shown for a model-select value.
func (c GridColumn) LabelField() string {
	if c.ModelSelectField != "" {
		return c.ModelSelectField
	}
	return "name"
}

// FindItem returns the enum item whose value matches v, or nil.
func (c GridColumn) FindItem(v any) *EnumItem {
	for i := range c.Items {
		if Stringify(c.Items[i].Value) == Stringify(v) {
			return &c.Items[i]
		}
	}
	return nil
}
