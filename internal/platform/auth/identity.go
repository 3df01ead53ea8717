// Package auth resolves the caller's identity. The core consumes an
// already-validated (userId, displayName, clinicId) triple; this
// package is the collaborator that produces it from a bearer JWT and
// places it in the request context.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller scope. ClinicID is the tenant
// boundary: every storage key downstream is built from it.
type Identity struct {
	UserID      string
	DisplayName string
	ClinicID    string
}

// Claims are the JWT claims this server understands.
type Claims struct {
	jwt.RegisteredClaims
	ClinicID    string `json:"clinic_id"`
	DisplayName string `json:"display_name"`
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity set by the middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Middleware validates the Authorization bearer token with an HMAC
// secret and stores the resulting identity in the request context.
func Middleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" || claims.ClinicID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token missing subject or clinic")
			}

			id := Identity{
				UserID:      claims.Subject,
				DisplayName: claims.DisplayName,
				ClinicID:    claims.ClinicID,
			}
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

// DevMiddleware injects a fixed identity for local development. Never
// enabled outside ENV=development.
func DevMiddleware(id Identity) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}
