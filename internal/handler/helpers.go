package handler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/codelab-api/internal/utils"
)

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	raw := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(parsed), nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func isStaff(role string) bool {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "faculty", "teacher", "admin":
		return true
	default:
		return false
	}
}

// requireStaff rejects the request unless the caller carries a staff role.
// Returns true when the request may proceed.
func requireStaff(c *fiber.Ctx) bool {
	if isStaff(userRoleFromContext(c)) {
		return true
	}
	_ = utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	return false
}
