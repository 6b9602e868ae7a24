package metadata

// PageDefinition describes one administrable resource: its grid, form schema,
// buttons and settings. The runtime treats it as read-only.
type PageDefinition struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Read     string             `json:"read"` // list-fetch operation name
	Grid     []GridColumn       `json:"grid"`
	Schema   []SchemaField      `json:"schema"`
	Buttons  []ButtonDefinition `json:"buttons"`
	Settings Settings           `json:"settings"`
}

// Settings holds page-level runtime knobs.
type Settings struct {
	PageSize          int                      `json:"pageSize,omitempty"`
	OverflowThreshold int                      `json:"overflowThreshold,omitempty"`
	RowKey            string                   `json:"rowKey,omitempty"`     // defaults to "id"
	ReportTask        bool                     `json:"reportTask,omitempty"` // reports go through the task queue
	Table             string                   `json:"table,omitempty"`      // backing table for locally served reads
	ListPath          string                   `json:"listPath,omitempty"`   // jq query locating {list,total} in read replies
	Operations        map[string]OperationSpec `json:"operations,omitempty"`
}

// OperationSpec declares an operation the runtime can serve from its own store
// instead of forwarding it to the remote backend.
type OperationSpec struct {
	Kind  string `json:"kind"` // list, update
	Table string `json:"table"`
}

const (
	OperationList   = "list"
	OperationUpdate = "update"
)

// RowKey returns the field that identifies a row.
func (p *PageDefinition) RowKey() string {
	if p.Settings.RowKey != "" {
		return p.Settings.RowKey
	}
	return "id"
}

// GetColumn returns a pointer to the grid column with the given field, or nil.
func (p *PageDefinition) GetColumn(field string) *GridColumn {
	for i := range p.Grid {
		if p.Grid[i].Field == field {
			return &p.Grid[i]
		}
	}
	return nil
}

// DataColumns returns the grid columns excluding the actions column.
func (p *PageDefinition) DataColumns() []GridColumn {
	cols := make([]GridColumn, 0, len(p.Grid))
	for _, c := range p.Grid {
		if c.IsActions() {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// ModelSelectColumns returns columns resolved through a foreign lookup.
func (p *PageDefinition) ModelSelectColumns() []GridColumn {
	var cols []GridColumn
	for _, c := range p.Grid {
		if c.ModelSelect {
			cols = append(cols, c)
		}
	}
	return cols
}

// FindButton looks a button up by key, falling back to its index in Buttons.
func (p *PageDefinition) FindButton(ref string) *ButtonDefinition {
	for i := range p.Buttons {
		if p.Buttons[i].Key != "" && p.Buttons[i].Key == ref {
			return &p.Buttons[i]
		}
	}
	for i := range p.Buttons {
		if p.Buttons[i].Ref(i) == ref {
			return &p.Buttons[i]
		}
	}
	return nil
}

// LocalOperation returns how op is served locally, if the page declares it.
// The page's read operation is implicitly a list over Settings.Table.
func (p *PageDefinition) LocalOperation(op string) (OperationSpec, bool) {
	if spec, ok := p.Settings.Operations[op]; ok {
		return spec, true
	}
	if op == p.Read && p.Settings.Table != "" {
		return OperationSpec{Kind: OperationList, Table: p.Settings.Table}, true
	}
	return OperationSpec{}, false
}
