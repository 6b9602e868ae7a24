package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"panel-runtime/internal/metadata"
	"panel-runtime/internal/store"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QueryPlan is a FetchRequest bound to a table.
type QueryPlan struct {
	Table   string
	Request FetchRequest
}

type QueryResult struct {
	SQL    string
	Params []any
}

func checkIdent(kind, name string) error {
	if !identPattern.MatchString(name) {
		return InvalidPayloadError(fmt.Sprintf("Invalid %s name: %s", kind, name))
	}
	return nil
}

// BuildSelectSQL builds a parameterized SELECT for one page of rows.
func BuildSelectSQL(plan QueryPlan, d store.Dialect) (QueryResult, error) {
	if err := checkIdent("table", plan.Table); err != nil {
		return QueryResult{}, err
	}
	pb := d.NewParamBuilder()
	where, err := buildWhere(plan.Request.Filter, pb, d)
	if err != nil {
		return QueryResult{}, err
	}

	sql := "SELECT * FROM " + plan.Table
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}

	var order []string
	for _, entry := range plan.Request.Sort {
		for _, field := range sortedStringKeys(entry) {
			if err := checkIdent("sort field", field); err != nil {
				return QueryResult{}, err
			}
			dir := "ASC"
			if strings.EqualFold(entry[field], SortDesc) {
				dir = "DESC"
			}
			order = append(order, field+" "+dir)
		}
	}
	if len(order) > 0 {
		sql += " ORDER BY " + strings.Join(order, ", ")
	}

	limit := plan.Request.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(limit), pb.Add(max(plan.Request.Skip, 0)))
	return QueryResult{SQL: sql, Params: pb.Params()}, nil
}

// BuildCountSQL counts the rows matched by the plan's filter.
func BuildCountSQL(plan QueryPlan, d store.Dialect) (QueryResult, error) {
	if err := checkIdent("table", plan.Table); err != nil {
		return QueryResult{}, err
	}
	pb := d.NewParamBuilder()
	where, err := buildWhere(plan.Request.Filter, pb, d)
	if err != nil {
		return QueryResult{}, err
	}
	sql := "SELECT COUNT(*) AS count FROM " + plan.Table
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return QueryResult{SQL: sql, Params: pb.Params()}, nil
}

// buildWhere translates a predicate object: bare values compare equal, bare
// arrays test membership, and operator objects (contains, in, gte, lte, gt,
// lt, ne) become the matching comparisons.
func buildWhere(filter map[string]any, pb store.ParamBuilder, d store.Dialect) ([]string, error) {
	var clauses []string
	for _, field := range sortedKeys(filter) {
		if err := checkIdent("filter field", field); err != nil {
			return nil, err
		}
		value := filter[field]
		if value == nil {
			clauses = append(clauses, field+" IS NULL")
			continue
		}
		if arr, ok := asSlice(value); ok {
			clauses = append(clauses, d.InExpr(field, pb, bindAll(arr, d)))
			continue
		}
		ops, ok := value.(map[string]any)
		if !ok {
			clauses = append(clauses, fmt.Sprintf("%s = %s", field, pb.Add(bind(value, d))))
			continue
		}
		for _, op := range sortedKeys(ops) {
			arg := ops[op]
			switch op {
			case OpMode:
			case OpContains:
				clauses = append(clauses, d.ContainsExpr(field, pb, metadata.Stringify(arg)))
			case OpIn:
				arr, _ := asSlice(arg)
				clauses = append(clauses, d.InExpr(field, pb, bindAll(arr, d)))
			case OpGte:
				clauses = append(clauses, fmt.Sprintf("%s >= %s", field, pb.Add(bind(arg, d))))
			case OpLte:
				clauses = append(clauses, fmt.Sprintf("%s <= %s", field, pb.Add(bind(arg, d))))
			case "gt":
				clauses = append(clauses, fmt.Sprintf("%s > %s", field, pb.Add(bind(arg, d))))
			case "lt":
				clauses = append(clauses, fmt.Sprintf("%s < %s", field, pb.Add(bind(arg, d))))
			case "ne":
				clauses = append(clauses, fmt.Sprintf("%s != %s", field, pb.Add(bind(arg, d))))
			case "eq":
				clauses = append(clauses, fmt.Sprintf("%s = %s", field, pb.Add(bind(arg, d))))
			default:
				return nil, InvalidPayloadError(fmt.Sprintf("Unknown filter operator %s on %s", op, field))
			}
		}
	}
	return clauses, nil
}

// bind adapts a predicate value to the driver. SQLite stores timestamps as
// text, so times are compared in the same text form.
func bind(v any, d store.Dialect) any {
	if t, ok := v.(time.Time); ok && d.Name() == "sqlite" {
		return t.UTC().Format("2006-01-02 15:04:05.999")
	}
	return v
}

func bindAll(values []any, d store.Dialect) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = bind(v, d)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
