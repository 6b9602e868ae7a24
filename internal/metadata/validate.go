package metadata

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// ValidationIssue describes one broken invariant in a page definition.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Validate checks the structural invariants of a page definition.
// Template contents (modalQuery object-ness) are checked at dispatch time,
// after substitution.
func Validate(p *PageDefinition) []ValidationIssue {
	var issues []ValidationIssue

	seen := make(map[string]bool, len(p.Grid))
	for i, c := range p.Grid {
		path := fmt.Sprintf("grid[%d]", i)
		if c.Field == "" {
			issues = append(issues, ValidationIssue{Path: path + ".field", Message: "field is required"})
			continue
		}
		if seen[c.Field] {
			msg := fmt.Sprintf("duplicate field %q", c.Field)
			if c.IsActions() {
				msg = "actions column may appear at most once"
			}
			issues = append(issues, ValidationIssue{Path: path + ".field", Message: msg})
		}
		seen[c.Field] = true
		if c.ModelSelect && c.ModelSelectAPI == "" {
			issues = append(issues, ValidationIssue{Path: path + ".modelSelectApi", Message: "model-select column requires modelSelectApi"})
		}
	}

	for i, b := range p.Buttons {
		path := fmt.Sprintf("buttons[%d]", i)
		switch b.Action {
		case ActionURL:
			if b.URL == "" {
				issues = append(issues, ValidationIssue{Path: path + ".url", Message: "url action requires url"})
			}
		case ActionFormModal:
			if b.ModalQuery == "" {
				issues = append(issues, ValidationIssue{Path: path + ".modalQuery", Message: "formModal action requires modalQuery"})
			}
		case ActionAPI, ActionReport:
			if b.API == "" {
				issues = append(issues, ValidationIssue{Path: path + ".api", Message: b.Action + " action requires api"})
			}
		}
		if b.IsSwitch() && (b.API == "" || b.Column == "") {
			issues = append(issues, ValidationIssue{Path: path, Message: "switch button requires api and column"})
		}
	}
	if p.Settings.ListPath != "" {
		if _, err := gojq.Parse(p.Settings.ListPath); err != nil {
			issues = append(issues, ValidationIssue{Path: "settings.listPath", Message: "invalid jq query: " + err.Error()})
		}
	}
	return issues
}
