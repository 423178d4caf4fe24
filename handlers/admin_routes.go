// handlers/admin_routes.go
package handlers

import (
	"time"

	"fortune-entitlements-service/middleware"
	"fortune-entitlements-service/models"
	"fortune-entitlements-service/services"
	"fortune-entitlements-service/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SetupAdminRoutes wires the operational surface: the manual trial sweep,
// ledger reconciliation and badge catalog management.
func SetupAdminRoutes(
	app *fiber.App,
	accounts *services.AccountService,
	trials *services.TrialService,
	badges *services.BadgeService,
) {
	admin := app.Group("/s/admin", middleware.UserContextMiddleware())

	admin.Post("/trials/sweep", func(c *fiber.Ctx) error {
		expired, err := trials.AutoExpireTrials(c.Context(), time.Now().UTC())
		if err != nil {
			return fail(c, err, nil)
		}
		return ok(c, fiber.Map{"expired": expired})
	})

	admin.Get("/accounts/:id/reconcile", func(c *fiber.Ctx) error {
		accountID := c.Params("id")
		if _, err := uuid.Parse(accountID); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "invalid account ID",
			})
		}
		report, err := accounts.Reconcile(c.Context(), accountID)
		if err != nil {
			return fail(c, err, nil)
		}
		return ok(c, report)
	})

	admin.Post("/badges/catalog", func(c *fiber.Ctx) error {
		badgeKey := c.FormValue("badge_key")
		rule, known := models.RuleForKey(badgeKey)
		if !known {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "badge_key does not match any badge rule",
			})
		}

		entry := models.BadgeCatalogEntry{
			ID:          uuid.NewString(),
			BadgeKey:    rule.Key,
			Name:        c.FormValue("name", rule.Name),
			Description: c.FormValue("description", rule.Description),
		}

		if icon, err := c.FormFile("icon"); err == nil {
			url, err := utils.UploadBadgeIcon(icon, rule.Key)
			if err != nil {
				return fail(c, err, nil)
			}
			entry.IconURL = url
		}

		saved, err := badges.Store.UpsertBadgeCatalogEntry(c.Context(), entry)
		if err != nil {
			return fail(c, err, nil)
		}
		return ok(c, saved)
	})
}
