package metadata

// SchemaField is one form field. Widget names the concrete input, which the
// host renders.
type SchemaField struct {
	Field          string `json:"field"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Widget         string `json:"widget,omitempty"`
	Required       bool   `json:"required,omitempty"`
	HideExpression string `json:"hideExpression,omitempty"`
	Default        any    `json:"default,omitempty"`
}
