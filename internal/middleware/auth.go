package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sme-lending/backend/internal/apperr"
	"github.com/sme-lending/backend/internal/auth"
	"github.com/sme-lending/backend/internal/rbac"
	"go.uber.org/zap"
)

const CtxPrincipal = "principal"

func AuthMiddleware(verifier auth.Verifier, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return apperr.Unauthenticated("missing authorization header")
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader || tokenStr == "" {
			return apperr.Unauthenticated("invalid authorization format")
		}

		principal, err := verifier.Verify(c.UserContext(), tokenStr)
		if err != nil {
			log.Debug("token verification failed", zap.Error(err))
			return apperr.Unauthenticated("invalid or expired token")
		}

		c.Locals(CtxPrincipal, principal)
		return c.Next()
	}
}

// GetPrincipal returns the caller set by AuthMiddleware, or nil on public routes.
func GetPrincipal(c *fiber.Ctx) *auth.Principal {
	p, _ := c.Locals(CtxPrincipal).(*auth.Principal)
	return p
}

func GetUserID(c *fiber.Ctx) uuid.UUID {
	if p := GetPrincipal(c); p != nil {
		return p.ID
	}
	return uuid.Nil
}

// RequireRole admits callers holding any of the given roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := GetPrincipal(c)
		if p == nil {
			return apperr.Unauthenticated("authentication required")
		}
		if !p.HasRole(roles...) {
			return apperr.AccessDenied("requires role " + strings.Join(roles, " or "))
		}
		return c.Next()
	}
}

func RequirePermission(perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := GetPrincipal(c)
		if p == nil {
			return apperr.Unauthenticated("authentication required")
		}
		if !rbac.HasPermission(p.Role, perm) {
			return apperr.AccessDenied("missing permission " + perm)
		}
		return c.Next()
	}
}
