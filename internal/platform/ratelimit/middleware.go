package ratelimit

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinnotes/clinnotes/internal/platform/auth"
)

// Middleware enforces policy per authenticated user, falling back to
// the client IP for unauthenticated routes.
func Middleware(limiter *Limiter, policy Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identifier := c.RealIP()
			if id, ok := auth.FromContext(c.Request().Context()); ok {
				identifier = id.ClinicID + ":" + id.UserID
			}

			err := limiter.Enforce(c.Request().Context(), policy, identifier)
			var exceeded *LimitExceededError
			if errors.As(err, &exceeded) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(exceeded.RetryAfter))
				c.Response().Header().Set("X-RateLimit-Limit", strconv.FormatInt(policy.MaxRequests, 10))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.FormatInt(policy.MaxRequests, 10))
			return next(c)
		}
	}
}
