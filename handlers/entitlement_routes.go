// handlers/entitlement_routes.go
package handlers

import (
	"errors"
	"time"

	"fortune-entitlements-service/middleware"
	"fortune-entitlements-service/services"

	"github.com/gofiber/fiber/v2"
)

// ok wraps a successful payload in the {success, data} envelope.
func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

// fail translates an engine error into the {success, error, code} envelope,
// optionally attaching the unchanged-state payload (e.g. the existing claim
// on ALREADY_CLAIMED_TODAY).
func fail(c *fiber.Ctx, err error, data interface{}) error {
	code := services.CodeOf(err)
	status := statusForCode(code)
	if !services.IsTerminal(err) && errors.Is(err, services.ErrRecordNotFound) {
		status = fiber.StatusNotFound
	}
	body := fiber.Map{"success": false, "error": err.Error(), "code": code}
	if data != nil {
		body["data"] = data
	}
	return c.Status(status).JSON(body)
}

func statusForCode(code services.ErrorCode) int {
	switch code {
	case services.CodeAlreadyClaimedToday,
		services.CodeTrialAlreadyActive,
		services.CodeTrialAlreadyUsed,
		services.CodeReferralAlreadyUsed,
		services.CodeStorageConflict:
		return fiber.StatusConflict
	case services.CodeInvalidReferralCodeSelf:
		return fiber.StatusBadRequest
	case services.CodeReferralCodeNotFound:
		return fiber.StatusNotFound
	case services.CodeTransientIO:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// SetupEntitlementRoutes wires the user-facing engine surface. All routes
// sit behind the gateway token; the /user group additionally requires the
// forwarded user context.
func SetupEntitlementRoutes(
	app *fiber.App,
	accounts *services.AccountService,
	ledger *services.RewardLedgerService,
	trials *services.TrialService,
	referrals *services.ReferralService,
	badges *services.BadgeService,
) {
	// Public (gateway-auth only): badge catalog for display.
	app.Get("/badges/catalog", func(c *fiber.Ctx) error {
		entries, err := badges.Store.ListBadgeCatalog(c.Context())
		if err != nil {
			return fail(c, err, nil)
		}
		return ok(c, entries)
	})

	secured := app.Group("/user", middleware.UserContextMiddleware())

	// bootstrap ensures the projection exists before any engine operation.
	bootstrap := func(c *fiber.Ctx) (string, error) {
		userID := c.Locals("user_id").(string)
		username, _ := c.Locals("user_name").(string)
		_, err := accounts.EnsureAccount(c.Context(), userID, username)
		return userID, err
	}

	secured.Post("/rewards/claim", func(c *fiber.Ctx) error {
		userID, err := bootstrap(c)
		if err != nil {
			return fail(c, err, nil)
		}
		result, err := ledger.ClaimDailyReward(c.Context(), userID, time.Now())
		if err != nil {
			if services.CodeOf(err) == services.CodeAlreadyClaimedToday {
				// Same shape, no change: the existing record's data.
				return fail(c, err, result)
			}
			return fail(c, err, nil)
		}
		return ok(c, result)
	})

	secured.Get("/rewards/streak", func(c *fiber.Ctx) error {
		userID, err := bootstrap(c)
		if err != nil {
			return fail(c, err, nil)
		}
		status, err := ledger.GetStreakStatus(c.Context(), userID, time.Now())
		if err != nil {
			return fail(c, err, nil)
		}
		return ok(c, status)
	})

	secured.Get("/trial", func(c *fiber.Ctx) error {
		userID, err := bootstrap(c)
		if err != nil {
			return fail(c, err, nil)
		}
		view, err := trials.CheckStatus(c.Context(), userID, time.Now())
		if err != nil {
			return fail(c, err, nil)
		}
		return ok(c, view)
	})

	secured.Post("/trial/start", func(c *fiber.Ctx) error {
		userID, err := bootstrap(c)
		if err != nil {
			return fail(c, err, nil)
		}
		trial, err := trials.StartTrial(c.Context(), userID, time.Now())
		if err != nil {
			return fail(c, err, nil)
		}
		return ok(c, fiber.Map{"trial_end_date": trial.EndDate})
	})

	secured.Get("/trial/stream", trials.StreamTrialEventsSSE)

	secured.Post("/referral/redeem", func(c *fiber.Ctx) error {
		userID, err := bootstrap(c)
		if err != nil {
			return fail(c, err, nil)
		}
		var req struct {
			Code string `json:"code"`
		}
		if err := c.BodyParser(&req); err != nil || req.Code == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "missing referral code",
			})
		}
		result, err := referrals.RedeemReferralCode(c.Context(), userID, req.Code, time.Now())
		if err != nil {
			return fail(c, err, nil)
		}
		return ok(c, result)
	})

	secured.Post("/badges/evaluate", func(c *fiber.Ctx) error {
		userID, err := bootstrap(c)
		if err != nil {
			return fail(c, err, nil)
		}
		granted, err := badges.EvaluateAll(c.Context(), userID)
		if err != nil {
			return fail(c, err, nil)
		}
		if granted == nil {
			granted = []string{}
		}
		return ok(c, fiber.Map{"granted": granted})
	})

	secured.Get("/badges", func(c *fiber.Ctx) error {
		userID, err := bootstrap(c)
		if err != nil {
			return fail(c, err, nil)
		}
		grants, err := badges.Store.ListBadgeGrants(c.Context(), userID)
		if err != nil {
			return fail(c, err, nil)
		}
		return ok(c, grants)
	})

	secured.Get("/balance", func(c *fiber.Ctx) error {
		userID, err := bootstrap(c)
		if err != nil {
			return fail(c, err, nil)
		}
		acct, _, err := accounts.GetBalance(c.Context(), userID, 0)
		if err != nil {
			return fail(c, err, nil)
		}
		return ok(c, fiber.Map{
			"token_balance": acct.TokenBalance,
			"referral_code": acct.ReferralCode,
		})
	})

	secured.Get("/balance/history", func(c *fiber.Ctx) error {
		userID, err := bootstrap(c)
		if err != nil {
			return fail(c, err, nil)
		}
		limit := c.QueryInt("limit", 50)
		if limit < 1 || limit > 200 {
			limit = 50
		}
		acct, txns, err := accounts.GetBalance(c.Context(), userID, limit)
		if err != nil {
			return fail(c, err, nil)
		}
		return ok(c, fiber.Map{
			"token_balance": acct.TokenBalance,
			"transactions":  txns,
		})
	})
}
