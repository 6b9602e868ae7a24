package instrument

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"panel-runtime/internal/store"
)

const eventSelect = "SELECT id, trace_id, span_id, parent_span_id, event_type, source, component, action, page, row_id, user_id, duration_ms, status, metadata, created_at FROM _events"

// EventHandler serves the recorded traces.
type EventHandler struct {
	db      *sql.DB
	dialect store.Dialect
}

func NewEventHandler(db *sql.DB, dialect store.Dialect) *EventHandler {
	return &EventHandler{db: db, dialect: dialect}
}

// query parameter -> column
var eventFilters = []struct{ param, column, op string }{
	{"source", "source", "="},
	{"component", "component", "="},
	{"action", "action", "="},
	{"page_id", "page", "="},
	{"event_type", "event_type", "="},
	{"trace_id", "trace_id", "="},
	{"user_id", "user_id", "="},
	{"status", "status", "="},
	{"from", "created_at", ">="},
	{"to", "created_at", "<="},
}

// List handles GET /api/_events.
func (h *EventHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var conditions []string
	var args []any
	for _, f := range eventFilters {
		if v := c.Query(f.param); v != "" {
			args = append(args, v)
			conditions = append(conditions, fmt.Sprintf("%s %s %s", f.column, f.op, h.dialect.Placeholder(len(args))))
		}
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}

	orderBy := "created_at DESC, id DESC"
	if c.Query("sort") == "created_at" {
		orderBy = "created_at ASC, id ASC"
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	countRow, err := store.QueryRow(ctx, h.db, "SELECT COUNT(*) AS count FROM _events"+where, args...)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}

	dataSQL := fmt.Sprintf("%s%s ORDER BY %s LIMIT %s OFFSET %s", eventSelect, where, orderBy,
		h.dialect.Placeholder(len(args)+1), h.dialect.Placeholder(len(args)+2))
	rows, err := store.QueryRows(ctx, h.db, dataSQL, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    toInt(countRow["count"]),
		},
	})
}

// GetTrace handles GET /api/_events/trace/:traceId and returns the spans of
// one trace with children nested under their parents.
func (h *EventHandler) GetTrace(c *fiber.Ctx) error {
	traceID := c.Params("traceId")
	rows, err := store.QueryRows(c.UserContext(), h.db,
		fmt.Sprintf("%s WHERE trace_id = %s ORDER BY created_at ASC, id ASC", eventSelect, h.dialect.Placeholder(1)),
		traceID)
	if err != nil {
		return fmt.Errorf("get trace: %w", err)
	}
	if len(rows) == 0 {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Trace not found: " + traceID}})
	}

	bySpan := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		row["children"] = []map[string]any{}
		id, _ := row["span_id"].(string)
		bySpan[id] = row
	}

	var root map[string]any
	for _, row := range rows {
		parentID, _ := row["parent_span_id"].(string)
		if parent, ok := bySpan[parentID]; ok && parentID != "" {
			parent["children"] = append(parent["children"].([]map[string]any), row)
			continue
		}
		if root == nil {
			root = row
		}
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"trace_id":          traceID,
			"root_span":         root,
			"spans":             len(rows),
			"total_duration_ms": root["duration_ms"],
		},
	})
}

// RegisterRoutes mounts the event endpoints behind the given middleware.
func RegisterRoutes(app *fiber.App, h *EventHandler, middleware ...fiber.Handler) {
	g := app.Group("/api/_events", middleware...)
	g.Get("/", h.List)
	g.Get("/trace/:traceId", h.GetTrace)
}

func toInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int32:
		return int(val)
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		n, _ := strconv.Atoi(val)
		return n
	default:
		return 0
	}
}
