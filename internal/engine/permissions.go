package engine

import (
	"panel-runtime/internal/metadata"
)

// ButtonView is a button that passed the role and visibility checks.
type ButtonView struct {
	Ref      string `json:"ref"`
	Title    string `json:"title"`
	Type     string `json:"type,omitempty"`
	Action   string `json:"action,omitempty"`
	Mode     string `json:"mode"`
	Disabled bool   `json:"disabled,omitempty"`
	Value    any    `json:"value,omitempty"` // current column value for switches
}

// OverflowMenu stands in for row buttons once there are too many to inline.
type OverflowMenu struct {
	Buttons []ButtonView `json:"buttons"`
}

// Visibility is the outcome of checking one button against one row.
type Visibility int

const (
	Visible Visibility = iota
	Unauthorized
	Hidden
	ConditionUnmet
)

func (v Visibility) String() string {
	switch v {
	case Visible:
		return "visible"
	case Unauthorized:
		return "not permitted"
	case Hidden:
		return "hidden"
	default:
		return "not applicable"
	}
}

// ButtonGate decides which buttons render and whether they are enabled.
type ButtonGate struct {
	eval              *Evaluator
	overflowThreshold int
}

func NewButtonGate(eval *Evaluator, overflowThreshold int) *ButtonGate {
	return &ButtonGate{eval: eval, overflowThreshold: overflowThreshold}
}

// authorized is true when the button has no role list or the user holds one
// of its roles. The admin role gets no bypass here.
func authorized(user *metadata.UserContext, roles []string) bool {
	return len(roles) == 0 || user.HasAnyRole(roles)
}

// Check runs authorization, hideExpression, condition and disableExpression
// in that order. disabled is only meaningful for a Visible button.
func (g *ButtonGate) Check(b metadata.ButtonDefinition, user *metadata.UserContext, row map[string]any, query map[string]string) (vis Visibility, disabled bool) {
	if !authorized(user, b.Roles) {
		return Unauthorized, false
	}
	if g.eval.Hidden(b.HideExpression, row, query) {
		return Hidden, false
	}
	if !g.eval.Satisfied(b.Condition, row, query) {
		return ConditionUnmet, false
	}
	return Visible, g.eval.Disabled(b.DisableExpression, row, query)
}

// OverflowThreshold returns the page's threshold, else the configured one.
func (g *ButtonGate) OverflowThreshold(page *metadata.PageDefinition) int {
	if page.Settings.OverflowThreshold > 0 {
		return page.Settings.OverflowThreshold
	}
	return g.overflowThreshold
}

func (g *ButtonGate) views(page *metadata.PageDefinition, keep func(metadata.ButtonDefinition) bool, user *metadata.UserContext, row map[string]any, query map[string]string) []ButtonView {
	var out []ButtonView
	for i, b := range page.Buttons {
		if !keep(b) {
			continue
		}
		vis, disabled := g.Check(b, user, row, query)
		if vis != Visible {
			continue
		}
		view := ButtonView{
			Ref:      b.Ref(i),
			Title:    b.Title,
			Type:     b.Type,
			Action:   b.Action,
			Mode:     b.EffectiveMode(),
			Disabled: disabled,
		}
		if b.IsSwitch() && row != nil {
			view.Value = row[b.Column]
		}
		out = append(out, view)
	}
	return out
}

// ActionsCell renders the actions column of one row. When the visible row
// buttons reach the overflow threshold they are grouped into one menu.
func (g *ButtonGate) ActionsCell(page *metadata.PageDefinition, user *metadata.UserContext, row map[string]any, query map[string]string) Cell {
	views := g.views(page, func(b metadata.ButtonDefinition) bool {
		return b.EffectiveMode() == metadata.ModeRow && b.Column == ""
	}, user, row, query)
	if threshold := g.OverflowThreshold(page); threshold > 0 && len(views) >= threshold {
		return Cell{Kind: CellButtons, Overflow: &OverflowMenu{Buttons: views}}
	}
	return Cell{Kind: CellButtons, Buttons: views}
}

// ColumnButtons returns the row buttons placed inside the given grid column.
func (g *ButtonGate) ColumnButtons(page *metadata.PageDefinition, field string, user *metadata.UserContext, row map[string]any, query map[string]string) []ButtonView {
	return g.views(page, func(b metadata.ButtonDefinition) bool {
		return b.EffectiveMode() == metadata.ModeRow && b.Column == field
	}, user, row, query)
}

// Toolbar returns the visible toolbar and batch buttons. They have no row.
func (g *ButtonGate) Toolbar(page *metadata.PageDefinition, user *metadata.UserContext, query map[string]string) []ButtonView {
	return g.views(page, func(b metadata.ButtonDefinition) bool {
		m := b.EffectiveMode()
		return m == metadata.ModeToolbar || m == metadata.ModeBatch
	}, user, nil, query)
}
