package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"panel-runtime/internal/engine"
	"panel-runtime/internal/store"
)

// Handler signs operators in against the _operators table.
type Handler struct {
	store  *store.Store
	tokens *Tokens
}

func NewHandler(s *store.Store, tokens *Tokens) *Handler {
	return &Handler{store: s, tokens: tokens}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	op, err := h.findOperator(c.UserContext(), body.Email)
	if err != nil {
		return engine.UnauthorizedError("Invalid email or password")
	}
	if active, _ := op["active"].(bool); !active {
		return engine.UnauthorizedError("Account is disabled")
	}
	hash, _ := op["password_hash"].(string)
	if !CheckPassword(body.Password, hash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	id, _ := op["id"].(string)
	roles := extractRoles(op["roles"])
	token, err := h.tokens.Issue(id, body.Email, roles)
	if err != nil {
		return engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"access_token": token, "roles": roles}})
}

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Post("/api/auth/login", h.Login)
}

func (h *Handler) findOperator(ctx context.Context, email string) (map[string]any, error) {
	row, err := store.QueryRow(ctx, h.store.DB,
		fmt.Sprintf("SELECT id, email, password_hash, roles, active FROM _operators WHERE email = %s", h.store.Dialect.Placeholder(1)),
		email)
	if err != nil {
		return nil, err
	}
	store.NormalizeRows(h.store.Dialect, []map[string]any{row}, []string{"active"})
	return row, nil
}

// EnsureOperator creates an active operator with the given roles unless one
// with the email already exists.
func EnsureOperator(ctx context.Context, s *store.Store, email, password string, roles []string) error {
	_, err := store.QueryRow(ctx, s.DB,
		fmt.Sprintf("SELECT id FROM _operators WHERE email = %s", s.Dialect.Placeholder(1)), email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("look up operator %s: %w", email, err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	rolesJSON, _ := json.Marshal(roles)
	pb := s.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, s.DB,
		fmt.Sprintf("INSERT INTO _operators (id, email, password_hash, roles) VALUES (%s, %s, %s, %s)",
			pb.Add(uuid.New().String()), pb.Add(email), pb.Add(hash), pb.Add(string(rolesJSON))),
		pb.Params()...)
	if err != nil {
		return fmt.Errorf("create operator %s: %w", email, store.MapError(s.Dialect, err))
	}
	log.Printf("Created operator %s", email)
	return nil
}

// extractRoles reads the roles column, a JSON array stored as JSONB or text.
func extractRoles(v any) []string {
	switch roles := v.(type) {
	case []string:
		return roles
	case []any:
		out := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(roles), &out); err == nil {
			return out
		}
	case []byte:
		return extractRoles(string(roles))
	}
	return []string{}
}
