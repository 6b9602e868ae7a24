package engine

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"panel-runtime/internal/metadata"
)

// ErrEvaluation matches every *EvalError.
var ErrEvaluation = errors.New("expression evaluation failed")

// EvalError reports a template that did not compile or run.
type EvalError struct {
	Template string
	Code     string // template with placeholders bound to variables
	Err      error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate %q (as %q): %v", e.Template, e.Code, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

func (e *EvalError) Is(target error) bool { return target == ErrEvaluation }

// placeholderAt reports the placeholder starting at s[i]: #field# for a row
// value, @key@ for a page query value. Keys are limited to identifier-like
// characters so expr's own # closures and quoted text never match.
func placeholderAt(s string, i int) (key string, query bool, end int, ok bool) {
	marker := s[i]
	if marker != '#' && marker != '@' {
		return "", false, 0, false
	}
	j := strings.IndexByte(s[i+1:], marker)
	if j <= 0 {
		return "", false, 0, false
	}
	key = s[i+1 : i+1+j]
	for _, r := range key {
		if !(r == '_' || r == '.' || r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "", false, 0, false
		}
	}
	return key, marker == '@', i + j + 2, true
}

// Substitute replaces #field# with row values and @key@ with page query values
// in one pass; substituted text is never scanned again. Placeholders without
// a value are left as written.
func Substitute(template string, row map[string]any, query map[string]string) string {
	if !strings.ContainsAny(template, "#@") {
		return template
	}
	var b strings.Builder
	for i := 0; i < len(template); {
		key, isQuery, end, ok := placeholderAt(template, i)
		if ok {
			if isQuery {
				if v, found := query[key]; found {
					b.WriteString(v)
					i = end
					continue
				}
			} else if v, found := row[key]; found {
				b.WriteString(metadata.Stringify(v))
				i = end
				continue
			}
		}
		b.WriteByte(template[i])
		i++
	}
	return b.String()
}

// FallbackPolicy is the value each call site assumes when its expression fails.
type FallbackPolicy struct {
	Hidden    bool // hideExpression
	Condition bool // condition
	Disabled  bool // disableExpression
}

// DefaultFallbackPolicy renders a button whose hide expression fails, drops
// one whose condition fails, and applies disableOnError to disable expressions.
func DefaultFallbackPolicy(disableOnError bool) FallbackPolicy {
	return FallbackPolicy{Hidden: false, Condition: false, Disabled: disableOnError}
}

// Evaluator compiles each template once with expr, binding its placeholders
// to variables filled per evaluation. Row values never become expression
// text, and any identifier other than a bound placeholder fails to compile.
type Evaluator struct {
	policy FallbackPolicy
	mu     sync.Mutex
	cache  map[string]*compiledTemplate
}

func NewEvaluator(policy FallbackPolicy) *Evaluator {
	return &Evaluator{policy: policy, cache: make(map[string]*compiledTemplate)}
}

func (e *Evaluator) Policy() FallbackPolicy { return e.policy }

// binding is one placeholder of a template. Inside a quoted literal the value
// is spliced in as text; elsewhere it keeps its type.
type binding struct {
	key   string
	query bool
	text  bool
}

type compiledTemplate struct {
	code    string
	vars    []binding
	program *vm.Program
	err     error
}

var operatorAliases = strings.NewReplacer("===", "==", "!==", "!=")

// bindTemplate rewrites placeholders into variables _p0, _p1, ... A quoted
// literal holding placeholders becomes a concatenation, so
// '#status#-x' turns into (_p0 + '-x').
func bindTemplate(template string) (string, []binding) {
	var (
		out   strings.Builder
		vars  []binding
		names = map[binding]string{}
	)
	bind := func(b binding) string {
		if n, ok := names[b]; ok {
			return n
		}
		n := "_p" + strconv.Itoa(len(vars))
		names[b] = n
		vars = append(vars, b)
		return n
	}

	s := template
	for i := 0; i < len(s); {
		c := s[i]
		if c == '\'' || c == '"' || c == '`' {
			last, pieces, bound := scanLiteral(s, i, bind)
			if last < 0 {
				out.WriteString(s[i:])
				break
			}
			if bound {
				out.WriteString("(" + strings.Join(pieces, " + ") + ")")
			} else {
				out.WriteString(s[i : last+1])
			}
			i = last + 1
			continue
		}
		if key, query, end, ok := placeholderAt(s, i); ok {
			out.WriteString(bind(binding{key: key, query: query}))
			i = end
			continue
		}
		out.WriteByte(c)
		i++
	}
	return out.String(), vars
}

// scanLiteral walks the quoted literal opening at s[open] and returns the
// index of its closing quote (-1 when unterminated) and its pieces.
func scanLiteral(s string, open int, bind func(binding) string) (int, []string, bool) {
	quote := s[open]
	var pieces []string
	bound := false
	seg := open + 1
	flush := func(to int) {
		if to > seg {
			pieces = append(pieces, string(quote)+s[seg:to]+string(quote))
		}
	}
	for i := open + 1; i < len(s); {
		switch {
		case s[i] == '\\' && quote != '`':
			i += 2
		case s[i] == quote:
			flush(i)
			return i, pieces, bound
		default:
			if key, query, end, ok := placeholderAt(s, i); ok {
				flush(i)
				pieces = append(pieces, bind(binding{key: key, query: query, text: true}))
				bound = true
				i, seg = end, end
				continue
			}
			i++
		}
	}
	return -1, nil, false
}

// unknownIdents collects identifiers that are not bound placeholders.
type unknownIdents struct {
	bound map[string]bool
	found []string
}

func (u *unknownIdents) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok && !u.bound[id.Value] {
		u.found = append(u.found, id.Value)
	}
}

func compileTemplate(template string) *compiledTemplate {
	code, vars := bindTemplate(template)
	code = operatorAliases.Replace(code)
	ct := &compiledTemplate{code: code, vars: vars}
	if strings.TrimSpace(code) == "" {
		ct.err = errors.New("empty expression")
		return ct
	}

	tree, err := parser.Parse(code)
	if err != nil {
		ct.err = err
		return ct
	}
	check := &unknownIdents{bound: make(map[string]bool, len(vars))}
	for i := range vars {
		check.bound["_p"+strconv.Itoa(i)] = true
	}
	ast.Walk(&tree.Node, check)
	if len(check.found) > 0 {
		ct.err = fmt.Errorf("unknown name %q", check.found[0])
		return ct
	}

	ct.program, ct.err = expr.Compile(code, expr.Env(map[string]any{}), expr.AllowUndefinedVariables())
	return ct
}

// compiled returns the cached program for template. The cache is keyed by the
// template as written, so it is bounded by the page definitions in use.
func (e *Evaluator) compiled(template string) *compiledTemplate {
	e.mu.Lock()
	defer e.mu.Unlock()
	ct, ok := e.cache[template]
	if !ok {
		ct = compileTemplate(template)
		e.cache[template] = ct
	}
	return ct
}

// CachedTemplates is the number of compiled templates held.
func (e *Evaluator) CachedTemplates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

// exprValue types a row value bound outside a quoted literal. Numeric and
// boolean strings compare as numbers and booleans.
func exprValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return n
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}

// Evaluate binds the row and query values to template and runs it.
func (e *Evaluator) Evaluate(template string, row map[string]any, query map[string]string) (any, error) {
	ct := e.compiled(template)
	if ct.err != nil {
		return nil, &EvalError{Template: template, Code: ct.code, Err: ct.err}
	}

	env := make(map[string]any, len(ct.vars))
	for i, b := range ct.vars {
		var v any
		if b.query {
			qv, ok := query[b.key]
			if !ok {
				return nil, &EvalError{Template: template, Code: ct.code, Err: fmt.Errorf("unknown query parameter %q", b.key)}
			}
			v = qv
		} else {
			rv, ok := row[b.key]
			if !ok {
				return nil, &EvalError{Template: template, Code: ct.code, Err: fmt.Errorf("unknown field %q", b.key)}
			}
			v = rv
		}
		if b.text {
			v = metadata.Stringify(v)
		} else {
			v = exprValue(v)
		}
		env["_p"+strconv.Itoa(i)] = v
	}

	out, err := expr.Run(ct.program, env)
	if err != nil {
		return nil, &EvalError{Template: template, Code: ct.code, Err: err}
	}
	return out, nil
}

// EvaluateBool is Evaluate with the result reduced by truthiness.
func (e *Evaluator) EvaluateBool(template string, row map[string]any, query map[string]string) (bool, error) {
	out, err := e.Evaluate(template, row, query)
	if err != nil {
		return false, err
	}
	return truthy(out), nil
}

func (e *Evaluator) boolOr(kind, template string, row map[string]any, query map[string]string, fallback bool) bool {
	b, err := e.EvaluateBool(template, row, query)
	if err != nil {
		log.Printf("WARN: %s fell back to %v: %v", kind, fallback, err)
		return fallback
	}
	return b
}

// Hidden evaluates a hideExpression. An empty expression hides nothing.
func (e *Evaluator) Hidden(template string, row map[string]any, query map[string]string) bool {
	if template == "" {
		return false
	}
	return e.boolOr("hideExpression", template, row, query, e.policy.Hidden)
}

// Satisfied evaluates a condition. An empty condition always holds.
func (e *Evaluator) Satisfied(template string, row map[string]any, query map[string]string) bool {
	if template == "" {
		return true
	}
	return e.boolOr("condition", template, row, query, e.policy.Condition)
}

// Disabled evaluates a disableExpression. An empty expression disables nothing.
func (e *Evaluator) Disabled(template string, row map[string]any, query map[string]string) bool {
	if template == "" {
		return false
	}
	return e.boolOr("disableExpression", template, row, query, e.policy.Disabled)
}
