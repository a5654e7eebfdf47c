package controllers

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/env"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/recovery"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/subscriptions"
)

// AdminPaymentsController exposes the operator endpoints: on-demand
// recovery scans, single-payment recovery and the subscription sweep.
type AdminPaymentsController struct {
	scanner *recovery.Scanner
	engine  *subscriptions.Engine
}

// NewAdminPaymentsController wires the admin controller.
func NewAdminPaymentsController(scanner *recovery.Scanner, engine *subscriptions.Engine) *AdminPaymentsController {
	return &AdminPaymentsController{scanner: scanner, engine: engine}
}

// RequireAPIKey guards the admin group with the X-API-Key header.
func RequireAPIKey(c *fiber.Ctx) error {
	expected := env.GetEnv("ADMIN_API_KEY", "")
	if expected == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "admin_api_disabled"})
	}
	got := c.Get("X-API-Key")
	if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.Next()
}

type scanRequest struct {
	MinAgeMinutes int  `json:"min_age_minutes"`
	MaxAgeHours   int  `json:"max_age_hours"`
	Limit         int  `json:"limit"`
	DryRun        bool `json:"dry_run"`
}

// HandleRecoveryScan handles POST /api/v1/admin/recovery/scan.
func (ac *AdminPaymentsController) HandleRecoveryScan(c *fiber.Ctx) error {
	var req scanRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
		}
	}

	opts := recovery.Options{DryRun: req.DryRun, Limit: req.Limit}
	if req.MinAgeMinutes > 0 {
		opts.MinAge = time.Duration(req.MinAgeMinutes) * time.Minute
	}
	if req.MaxAgeHours > 0 {
		opts.MaxAge = time.Duration(req.MaxAgeHours) * time.Hour
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := ac.scanner.Scan(ctx, opts)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "scan_failed", "details": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"scanned":       result.Scanned,
		"recovered":     result.Recovered,
		"failed":        result.Failed,
		"still_pending": result.StillPending,
		"errors":        result.Errors,
		"dry_run":       req.DryRun,
	})
}

// HandleRecoverPayment handles POST /api/v1/admin/recovery/payments/:id.
func (ac *AdminPaymentsController) HandleRecoverPayment(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payment_id"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome, err := ac.scanner.RecoverPayment(ctx, uint(id))
	if err != nil {
		if errors.Is(err, recovery.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment_not_found"})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "recovery_failed", "details": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"payment_id": outcome.PaymentID,
		"verdict":    outcome.Verdict,
		"applied":    outcome.Applied,
	})
}

// HandleSweep handles POST /api/v1/admin/subscriptions/sweep.
func (ac *AdminPaymentsController) HandleSweep(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 200)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := ac.engine.SweepExpired(ctx, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sweep_failed", "details": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"expired":      result.Expired,
		"cancelled":    result.Cancelled,
		"activated":    result.Activated,
		"plan_swapped": result.PlanSwapped,
		"errors":       result.Errors,
	})
}
