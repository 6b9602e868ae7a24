package admin

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"panel-runtime/internal/engine"
	"panel-runtime/internal/metadata"
	"panel-runtime/internal/store"
)

// Handler manages page definitions stored in _pages. Every write reloads the
// registry, so the runtime serves the new definition on the next request.
type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	pagesDir string
}

func NewHandler(s *store.Store, reg *metadata.Registry, pagesDir string) *Handler {
	return &Handler{store: s, registry: reg, pagesDir: pagesDir}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/pages", h.ListPages)
	admin.Get("/pages/:id", h.GetPage)
	admin.Post("/pages", h.CreatePage)
	admin.Put("/pages/:id", h.UpdatePage)
	admin.Delete("/pages/:id", h.DeletePage)
	admin.Post("/pages/_validate", h.ValidatePage)
	admin.Post("/reload", h.Reload)
}

func (h *Handler) ListPages(c *fiber.Ctx) error {
	pages := h.registry.AllPages()
	return c.JSON(fiber.Map{"data": pages})
}

func (h *Handler) GetPage(c *fiber.Ctx) error {
	id := c.Params("id")
	page := h.registry.GetPage(id)
	if page == nil {
		return engine.PageNotFoundError(id)
	}
	return c.JSON(fiber.Map{"data": page})
}

func (h *Handler) CreatePage(c *fiber.Ctx) error {
	page, err := parseBody(c)
	if err != nil {
		return err
	}
	if page.ID == "" {
		return engine.InvalidDefinitionError("Page id is required", []engine.ErrorDetail{{Field: "id", Message: "required"}})
	}
	if h.registry.GetPage(page.ID) != nil {
		return engine.NewAppError("CONFLICT", fiber.StatusConflict, "Page already exists: "+page.ID)
	}

	defJSON, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("INSERT INTO _pages (id, definition) VALUES (%s, %s)", pb.Add(page.ID), pb.Add(string(defJSON)))
	if _, err := store.Exec(c.UserContext(), h.store.DB, sqlStr, pb.Params()...); err != nil {
		err = store.MapError(h.store.Dialect, err)
		if errors.Is(err, store.ErrUniqueViolation) {
			return engine.NewAppError("CONFLICT", fiber.StatusConflict, "Page already exists: "+page.ID)
		}
		return fmt.Errorf("insert page %s: %w", page.ID, err)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": page})
}

// UpdatePage replaces the stored definition, inserting it when the page so far
// only came from a file. A file with the same id still wins on reload.
func (h *Handler) UpdatePage(c *fiber.Ctx) error {
	id := c.Params("id")
	if h.registry.GetPage(id) == nil {
		return engine.PageNotFoundError(id)
	}
	page, err := parseBody(c)
	if err != nil {
		return err
	}
	page.ID = id

	defJSON, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}
	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(`INSERT INTO _pages (id, definition) VALUES (%s, %s)
ON CONFLICT (id) DO UPDATE SET definition = excluded.definition, updated_at = %s`,
		pb.Add(id), pb.Add(string(defJSON)), h.store.Dialect.NowExpr())
	if _, err := store.Exec(c.UserContext(), h.store.DB, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("update page %s: %w", id, err)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": page})
}

func (h *Handler) DeletePage(c *fiber.Ctx) error {
	id := c.Params("id")
	pb := h.store.Dialect.NewParamBuilder()
	n, err := store.Exec(c.UserContext(), h.store.DB, "DELETE FROM _pages WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete page %s: %w", id, err)
	}
	if n == 0 {
		return engine.PageNotFoundError(id)
	}
	if err := h.reload(c); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

// ValidatePage reports every broken invariant of a definition without storing it.
func (h *Handler) ValidatePage(c *fiber.Ctx) error {
	var page metadata.PageDefinition
	if err := json.Unmarshal(c.Body(), &page); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	issues := metadata.Validate(&page)
	if issues == nil {
		issues = []metadata.ValidationIssue{}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"valid": len(issues) == 0, "issues": issues}})
}

func (h *Handler) Reload(c *fiber.Ctx) error {
	if err := h.reload(c); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"pages": len(h.registry.AllPages())}})
}

func (h *Handler) reload(c *fiber.Ctx) error {
	if err := metadata.Reload(c.UserContext(), h.store.DB, h.pagesDir, h.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	return nil
}

func parseBody(c *fiber.Ctx) (*metadata.PageDefinition, error) {
	var page metadata.PageDefinition
	if err := json.Unmarshal(c.Body(), &page); err != nil {
		return nil, engine.InvalidPayloadError("Invalid JSON body")
	}
	if issues := metadata.Validate(&page); len(issues) > 0 {
		details := make([]engine.ErrorDetail, len(issues))
		for i, is := range issues {
			details[i] = engine.ErrorDetail{Field: is.Path, Message: is.Message}
		}
		return nil, engine.InvalidDefinitionError("Page definition is invalid", details)
	}
	return &page, nil
}
