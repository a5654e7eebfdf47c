package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/subscriptions"
)

// SubscriptionController exposes the subscription lifecycle operations on
// the admin API group.
type SubscriptionController struct {
	engine *subscriptions.Engine
}

// NewSubscriptionController wires the subscription controller.
func NewSubscriptionController(engine *subscriptions.Engine) *SubscriptionController {
	return &SubscriptionController{engine: engine}
}

// HandlePause handles POST /api/v1/admin/subscriptions/:id/pause.
func (sc *SubscriptionController) HandlePause(c *fiber.Ctx) error {
	id, err := subscriptionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_subscription_id"})
	}
	ctx, cancel := lifecycleContext()
	defer cancel()

	if err := sc.engine.Pause(ctx, id); err != nil {
		return sc.lifecycleError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleResume handles POST /api/v1/admin/subscriptions/:id/resume.
func (sc *SubscriptionController) HandleResume(c *fiber.Ctx) error {
	id, err := subscriptionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_subscription_id"})
	}
	ctx, cancel := lifecycleContext()
	defer cancel()

	if err := sc.engine.Resume(ctx, id); err != nil {
		return sc.lifecycleError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

type cancelRequest struct {
	Reason      string `json:"reason"`
	AtPeriodEnd bool   `json:"at_period_end"`
}

// HandleCancel handles POST /api/v1/admin/subscriptions/:id/cancel.
func (sc *SubscriptionController) HandleCancel(c *fiber.Ctx) error {
	id, err := subscriptionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_subscription_id"})
	}
	var req cancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
		}
	}
	ctx, cancel := lifecycleContext()
	defer cancel()

	if err := sc.engine.Cancel(ctx, id, req.Reason, req.AtPeriodEnd); err != nil {
		return sc.lifecycleError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "at_period_end": req.AtPeriodEnd})
}

type changePlanRequest struct {
	PlanID    uint `json:"plan_id"`
	Immediate bool `json:"immediate"`
}

// HandleChangePlan handles POST /api/v1/admin/subscriptions/:id/plan.
func (sc *SubscriptionController) HandleChangePlan(c *fiber.Ctx) error {
	id, err := subscriptionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_subscription_id"})
	}
	var req changePlanRequest
	if err := c.BodyParser(&req); err != nil || req.PlanID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	ctx, cancel := lifecycleContext()
	defer cancel()

	proration, err := sc.engine.ChangePlan(ctx, id, req.PlanID, req.Immediate)
	if err != nil {
		return sc.lifecycleError(c, err)
	}
	body := fiber.Map{"ok": true, "immediate": req.Immediate}
	if proration != nil {
		body["proration"] = fiber.Map{
			"remaining_days": proration.RemainingDays,
			"daily_rate":     proration.DailyRate,
			"amount":         proration.Amount,
		}
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

func (sc *SubscriptionController) lifecycleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, subscriptions.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "subscription_not_found"})
	case errors.Is(err, subscriptions.ErrNotPausable),
		errors.Is(err, subscriptions.ErrNotPaused),
		errors.Is(err, subscriptions.ErrTerminal):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "operation_failed"})
	}
}

func subscriptionID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}

func lifecycleContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}
