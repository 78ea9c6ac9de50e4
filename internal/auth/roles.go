package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/assetdesk/ticket-lifecycle/internal/domain"
	apperrors "github.com/assetdesk/ticket-lifecycle/pkg/util"
)

// RequireStaffRole ensures the staff principal has one of the allowed roles.
func RequireStaffRole(allowed ...domain.StaffRole) fiber.Handler {
	allowedSet := make(map[domain.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Engineer == nil {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Engineer.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireDispatcher admits dispatchers and admins.
func RequireDispatcher() fiber.Handler {
	return RequireStaffRole(domain.StaffRoleDispatcher, domain.StaffRoleAdmin)
}
