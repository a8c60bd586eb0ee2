package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}

// actorFromLocals reads the caller set by the auth middleware.
func actorFromLocals(c *fiber.Ctx) (int64, string, error) {
	userIDStr, ok := c.Locals("user_id").(string)
	if !ok {
		return 0, "", strconv.ErrSyntax
	}
	role, ok := c.Locals("role").(string)
	if !ok {
		return 0, "", strconv.ErrSyntax
	}
	userID, err := parseUserID(userIDStr)
	if err != nil {
		return 0, "", err
	}
	return userID, role, nil
}

func parsePeerID(c *fiber.Ctx) (int64, error) {
	return parseUserID(c.Params("peerId"))
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
