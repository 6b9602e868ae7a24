package engine

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"panel-runtime/internal/metadata"
)

type Handler struct {
	rt *Runtime
}

func NewHandler(rt *Runtime) *Handler {
	return &Handler{rt: rt}
}

// GetPage handles GET /api/pages/:id
func (h *Handler) GetPage(c *fiber.Ctx) error {
	page, err := h.rt.Page(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data":    page,
		"toolbar": h.rt.Toolbar(page, getUser(c), c.Queries()),
	})
}

type listBody struct {
	Resource   string            `json:"resource"`
	Pagination Pagination        `json:"pagination"`
	Filters    map[string]any    `json:"filters"`
	Search     map[string]any    `json:"search"`
	Sorter     []Sorter          `json:"sorter"`
	Static     map[string]any    `json:"static"`
	Query      map[string]string `json:"query"`
}

// List handles POST /api/pages/:id/list
func (h *Handler) List(c *fiber.Ctx) error {
	var body listBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return InvalidPayloadError("Invalid request body")
		}
	}
	res, err := h.rt.List(c.UserContext(), c.Params("id"), ListRequest{
		Resource: body.Resource,
		Change: TableChange{
			Pagination: body.Pagination,
			Filters:    body.Filters,
			Search:     body.Search,
			Sorter:     body.Sorter,
		},
		Static: body.Static,
		Query:  body.Query,
		User:   getUser(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(res)
}

type dispatchBody struct {
	Row       map[string]any    `json:"row"`
	Rows      []map[string]any  `json:"rows"`
	Value     any               `json:"value"`
	Confirmed bool              `json:"confirmed"`
	Embed     map[string]any    `json:"embed"`
	Query     map[string]string `json:"query"`
	Screen    string            `json:"screen"`
}

// Dispatch handles POST /api/pages/:id/actions/:button. A button with a
// confirmation answers effect=confirm until the request says confirmed.
func (h *Handler) Dispatch(c *fiber.Ctx) error {
	var body dispatchBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return InvalidPayloadError("Invalid request body")
		}
	}
	ac := ActionContext{
		User:   getUser(c),
		Query:  body.Query,
		Embed:  body.Embed,
		Screen: body.Screen,
	}
	if body.Confirmed {
		ac.Confirm = func(_ context.Context, _ string) bool { return true }
	}
	out, err := h.rt.Dispatch(c.UserContext(), c.Params("id"), DispatchRequest{
		Button: c.Params("button"),
		Row:    body.Row,
		Rows:   body.Rows,
		Value:  body.Value,
		Ctx:    ac,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": out})
}

// GetTableState handles GET /api/table-state/:resource
func (h *Handler) GetTableState(c *fiber.Ctx) error {
	state, ok, err := h.rt.States().Get(c.UserContext(), c.Params("resource"))
	if err != nil {
		return err
	}
	if !ok {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": state})
}

// PutTableState handles PUT /api/table-state/:resource
func (h *Handler) PutTableState(c *fiber.Ctx) error {
	var state TableChange
	if err := c.BodyParser(&state); err != nil {
		return InvalidPayloadError("Invalid request body")
	}
	if err := h.rt.States().Set(c.UserContext(), c.Params("resource"), state); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": state})
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

// ErrorHandler renders AppErrors with their status and hides everything else
// behind a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}
	if errors.Is(err, ErrSuperseded) {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: &AppError{
			Code:    "SUPERSEDED",
			Message: "A newer request for this table replaced this one",
		}})
	}

	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{Error: &AppError{
			Code:    "HTTP_ERROR",
			Message: fiberErr.Message,
		}})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(ErrorResponse{Error: &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
	}})
}
