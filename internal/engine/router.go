package engine

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	pages := app.Group("/api/pages", middleware...)
	pages.Get("/:id", h.GetPage)
	pages.Post("/:id/list", h.List)
	pages.Post("/:id/actions/:button", h.Dispatch)

	states := app.Group("/api/table-state", middleware...)
	states.Get("/:resource", h.GetTableState)
	states.Put("/:resource", h.PutTableState)
}
