package instrument

import (
	"errors"
	"math/rand"

	"github.com/gofiber/fiber/v2"

	"panel-runtime/internal/config"
	"panel-runtime/internal/metadata"
)

// Middleware opens a root span per request, propagating or generating the
// X-Trace-ID header, and puts the instrumenter on the request context.
func Middleware(cfg config.InstrumentationConfig, buffer *EventBuffer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled || buffer == nil {
			return c.Next()
		}
		if cfg.SamplingRate < 1.0 && rand.Float64() > cfg.SamplingRate {
			return c.Next()
		}

		traceID := c.Get("X-Trace-ID")
		if traceID == "" {
			traceID = newUUID()
		}

		inst := NewInstrumenter(buffer)
		ctx := WithInstrumenter(WithTraceID(c.UserContext(), traceID), inst)
		ctx, span := inst.StartSpan(ctx, "http", "handler", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		c.SetUserContext(ctx)
		c.Set("X-Trace-ID", traceID)

		err := c.Next()

		// Auth runs downstream, so the user is only known now.
		if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
			span.SetMetadata("user_id", user.ID)
		}
		status := c.Response().StatusCode()
		span.SetMetadata("status_code", status)
		if status >= 400 || err != nil {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()
		return err
	}
}

// MetricsMiddleware counts every request by method and final status code.
func MetricsMiddleware(m *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			var coded interface{ StatusCode() int }
			if errors.As(err, &fe) {
				status = fe.Code
			} else if errors.As(err, &coded) {
				status = coded.StatusCode()
			}
		}
		m.RecordRequest(c.Method(), status)
		return err
	}
}
