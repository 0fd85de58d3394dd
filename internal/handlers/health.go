package handlers

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler reports process and database liveness.
func HealthHandler(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := db.PingContext(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
