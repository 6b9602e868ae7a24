package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"panel-runtime/internal/config"
	"panel-runtime/internal/metadata"
)

var errEmptyPassword = errors.New("password must not be empty")

// OperatorClaims identify a signed-in panel operator. Roles feed the button
// role checks of every page the operator opens.
type OperatorClaims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles"`
}

// Operator returns the request-scoped user the runtime checks roles against.
func (c *OperatorClaims) Operator() *metadata.UserContext {
	return &metadata.UserContext{ID: c.Subject, Roles: c.Roles}
}

// Tokens issues and verifies operator tokens for one secret and issuer.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, cfg config.AuthConfig) *Tokens {
	return &Tokens{
		secret: []byte(secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL(),
		now:    time.Now,
	}
}

// Issue signs an HS256 token for the operator.
func (t *Tokens) Issue(operatorID, email string, roles []string) (string, error) {
	if operatorID == "" {
		return "", errors.New("issue token: operator id is empty")
	}
	now := t.now()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Email: email,
		Roles: roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return signed, nil
}

// Verify parses a token issued by Issue. Tokens from another issuer or
// without an operator id are rejected.
func (t *Tokens) Verify(raw string) (*OperatorClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	token, err := jwt.ParseWithClaims(raw, &OperatorClaims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid operator token")
	}
	if claims.Subject == "" {
		return nil, errors.New("operator token has no subject")
	}
	return claims, nil
}

// HashPassword hashes an operator password with bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
// An operator row without a hash never matches.
func CheckPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
