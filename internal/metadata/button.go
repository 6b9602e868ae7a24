package metadata

import "strconv"

// Button modes: where a button is valid.
const (
	ModeRow     = "row"
	ModeToolbar = "toolbar"
	ModeBatch   = "batch"
	ModeForm    = "form"
)

// Button types.
const (
	ButtonTypeButton = "button"
	ButtonTypeSubmit = "submit"
	ButtonTypeSwitch = "switch"
	ButtonTypeIcon   = "icon"
)

// Button actions.
const (
	ActionNone      = ""
	ActionAPI       = "api"
	ActionURL       = "url"
	ActionReport    = "report"
	ActionFormModal = "formModal"
)

// ButtonDefinition is one action a page offers.
type ButtonDefinition struct {
	Key               string   `json:"key,omitempty"`
	Mode              string   `json:"mode,omitempty"`
	Title             string   `json:"title"`
	Type              string   `json:"type,omitempty"`
	Action            string   `json:"action,omitempty"`
	API               string   `json:"api,omitempty"`
	URL               string   `json:"url,omitempty"`
	ModalQuery        string   `json:"modalQuery,omitempty"`
	Column            string   `json:"column,omitempty"` // render inside this grid column
	Condition         string   `json:"condition,omitempty"`
	HideExpression    string   `json:"hideExpression,omitempty"`
	DisableExpression string   `json:"disableExpression,omitempty"`
	Confirm           string   `json:"confirm,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	EmbedURL          bool     `json:"embedUrl,omitempty"`   // merge the embedded query payload into the call
	BackOnDone        bool     `json:"backOnDone,omitempty"` // navigate back after a successful call
}

// EffectiveMode defaults an unset mode to row.
func (b ButtonDefinition) EffectiveMode() string {
	if b.Mode == "" {
		return ModeRow
	}
	return b.Mode
}

// IsSwitch reports whether the button is an inline toggle.
func (b ButtonDefinition) IsSwitch() bool {
	return b.Type == ButtonTypeSwitch
}

// Ref returns the identifier used to address the button: its key, or its index.
func (b ButtonDefinition) Ref(index int) string {
	if b.Key != "" {
		return b.Key
	}
	return strconv.Itoa(index)
}
