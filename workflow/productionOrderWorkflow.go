package workflow

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/mmdatafocus/mfg_backend/models"
	"github.com/mmdatafocus/mfg_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Production order lifecycle:
//
//	pending --first step completion--> in_progress --all steps done--> completed
//	pending | in_progress --cancel--> cancelled
//
// completed and cancelled are terminal. Order completion is the single point
// where production feeds back into inventory: every reservation the order
// holds converts to consumption in one all-or-nothing transaction.

// CreateProductionOrder instantiates an order from an MMR version (the active
// one when input.MmrVersion is nil), deep-copies the MMR's steps/sub-steps onto
// the order, scales each ingredient requirement by quantity/baseQuantity
// (rounded half-up to the ledger precision) and reserves it. Reservations are
// acquired in ascending SKU order across all callers; if any SKU is short the
// whole transaction rolls back, so no partial holds survive a failure.
func CreateProductionOrder(ctx context.Context, input *models.NewProductionOrder) (*models.ProductionOrder, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if !input.Quantity.IsPositive() {
		return nil, utils.NewError(utils.KindValidation, "order quantity must be positive, got %s", input.Quantity)
	}

	var orderId int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mmr, err := models.ResolveMmr(tx, input.ProductSku, input.MmrVersion)
		if err != nil {
			return err
		}

		order := models.ProductionOrder{
			ProductSku: mmr.ProductSku,
			MmrVersion: mmr.Version,
			Quantity:   utils.RoundQuantity(input.Quantity),
			Status:     models.OrderStatusPending,
			CreatedBy:  input.CreatedBy,
			Steps:      copyMmrSteps(mmr),
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		orderId = order.ID

		ratio := order.Quantity.Div(mmr.BaseQuantity)
		for _, ing := range sortedIngredients(mmr.Ingredients) {
			scaled := utils.RoundQuantity(ing.Quantity.Mul(ratio))
			if !scaled.IsPositive() {
				continue
			}
			if _, err := ReserveStock(tx, logger, ing.IngredientSku, scaled, &order.ID); err != nil {
				if utils.IsKind(err, utils.KindInsufficientStock) {
					// Rolling back the transaction releases every hold taken so
					// far; callers never clean up after us.
					return utils.WrapError(utils.KindInsufficientStock, err,
						"cannot create order for %s: ingredient %s is short", mmr.ProductSku, ing.IngredientSku)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return models.GetProductionOrder(ctx, orderId)
}

// copyMmrSteps deep-copies the MMR's procedure into order-scoped rows. The
// order carries its own snapshot, not foreign keys into the catalog.
func copyMmrSteps(mmr *models.Mmr) []models.ProductionStep {
	subsByStep := make(map[int][]models.ProductionSubStep)
	for _, sub := range mmr.SubSteps {
		subsByStep[sub.MainStepNumber] = append(subsByStep[sub.MainStepNumber], models.ProductionSubStep{
			SubStepNumber: sub.SubStepNumber,
			StepType:      sub.StepType,
			Description:   sub.Description,
			Completed:     utils.NewFalse(),
		})
	}

	steps := make([]models.ProductionStep, 0, len(mmr.Steps))
	for _, step := range mmr.Steps {
		steps = append(steps, models.ProductionStep{
			StepNumber:    step.StepNumber,
			Description:   step.Description,
			QualityChecks: step.QualityChecks,
			Completed:     utils.NewFalse(),
			SubSteps:      subsByStep[step.StepNumber],
		})
	}
	return steps
}

func sortedIngredients(ingredients []models.MmrIngredient) []models.MmrIngredient {
	sorted := make([]models.MmrIngredient, len(ingredients))
	copy(sorted, ingredients)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].IngredientSku < sorted[j].IngredientSku
	})
	return sorted
}

// CompleteProductionSubStep marks one sub-step done. No downstream effects.
func CompleteProductionSubStep(ctx context.Context, orderId int, stepId int, subStepId int, completedBy string) error {
	db := config.GetDB()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := models.GetProductionOrderForUpdate(tx, orderId)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return utils.NewError(utils.KindInvalidState,
				"production order %d is %s", orderId, order.Status)
		}

		step, err := getOrderStep(tx, orderId, stepId)
		if err != nil {
			return err
		}

		var subStep models.ProductionSubStep
		err = tx.Where("id = ? AND production_step_id = ?", subStepId, step.ID).
			First(&subStep).Error
		if err != nil {
			return mapOrderChildNotFound(err, "sub-step %d does not belong to step %d", subStepId, stepId)
		}
		if utils.DereferencePtr(subStep.Completed) {
			return utils.NewError(utils.KindConflict, "sub-step %d is already completed", subStepId)
		}

		now := time.Now()
		return tx.Model(&models.ProductionSubStep{}).
			Where("id = ?", subStep.ID).
			Updates(map[string]any{
				"completed":    true,
				"completed_by": completedBy,
				"completed_at": now,
			}).Error
	})
}

// CompleteProductionStep marks a step done once all of its sub-steps are done.
// The first completed step moves the order from pending to in_progress.
func CompleteProductionStep(ctx context.Context, orderId int, stepId int, completedBy string) error {
	db := config.GetDB()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := models.GetProductionOrderForUpdate(tx, orderId)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return utils.NewError(utils.KindInvalidState,
				"production order %d is %s", orderId, order.Status)
		}

		step, err := getOrderStep(tx, orderId, stepId)
		if err != nil {
			return err
		}
		if utils.DereferencePtr(step.Completed) {
			return utils.NewError(utils.KindConflict, "step %d is already completed", stepId)
		}

		var openSubSteps int64
		err = tx.Model(&models.ProductionSubStep{}).
			Where("production_step_id = ? AND completed = ?", step.ID, false).
			Count(&openSubSteps).Error
		if err != nil {
			return err
		}
		if openSubSteps > 0 {
			return utils.NewError(utils.KindIncompleteSubSteps,
				"step %d has %d incomplete sub-steps", stepId, openSubSteps)
		}

		now := time.Now()
		err = tx.Model(&models.ProductionStep{}).
			Where("id = ?", step.ID).
			Updates(map[string]any{
				"completed":    true,
				"completed_by": completedBy,
				"completed_at": now,
			}).Error
		if err != nil {
			return err
		}

		if order.Status == models.OrderStatusPending {
			return tx.Model(&models.ProductionOrder{}).
				Where("id = ?", order.ID).
				Update("status", models.OrderStatusInProgress).Error
		}
		return nil
	})
}

// CompleteProductionOrder converts every reservation the order holds into
// consumption and flips the status, atomically. A yield differing from the
// ordered quantity is recorded as-is; the variance never blocks completion.
func CompleteProductionOrder(ctx context.Context, orderId int, actualYield decimal.Decimal, completedBy string) error {
	db := config.GetDB()
	logger := config.GetLogger()

	if actualYield.IsNegative() {
		return utils.NewError(utils.KindValidation, "actual yield must not be negative, got %s", actualYield)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireOrderPostingLock(tx, orderId); err != nil {
			return err
		}
		defer ReleaseOrderPostingLock(tx, orderId)

		order, err := models.GetProductionOrderForUpdate(tx, orderId)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return utils.NewError(utils.KindInvalidState,
				"production order %d is %s", orderId, order.Status)
		}

		var openSteps int64
		err = tx.Model(&models.ProductionStep{}).
			Where("production_order_id = ? AND completed = ?", orderId, false).
			Count(&openSteps).Error
		if err != nil {
			return err
		}
		if openSteps > 0 {
			return utils.NewError(utils.KindIncompleteSteps,
				"production order %d has %d incomplete steps", orderId, openSteps)
		}

		reservations, err := models.GetOrderReservations(tx, orderId, models.ReservationStateActive)
		if err != nil {
			return err
		}
		for _, reservation := range reservations {
			if err := ConsumeReservation(tx, logger, reservation.ID); err != nil {
				return err
			}
		}

		actualYield = utils.RoundQuantity(actualYield)
		if !actualYield.Equal(order.Quantity) {
			logger.WithFields(logrus.Fields{
				"module":        "workflow",
				"orderId":       orderId,
				"ordered":       order.Quantity,
				"actualYield":   actualYield,
				"yieldVariance": actualYield.Sub(order.Quantity),
			}).Info("production order completed with yield variance")
		}

		now := time.Now()
		return tx.Model(&models.ProductionOrder{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{
				"status":       models.OrderStatusCompleted,
				"actual_yield": actualYield,
				"completed_by": completedBy,
				"completed_at": now,
			}).Error
	})
}

// CancelProductionOrder releases every outstanding reservation and parks the
// order in the terminal cancelled state. Stock levels are untouched.
func CancelProductionOrder(ctx context.Context, orderId int, reason string) error {
	db := config.GetDB()
	logger := config.GetLogger()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireOrderPostingLock(tx, orderId); err != nil {
			return err
		}
		defer ReleaseOrderPostingLock(tx, orderId)

		order, err := models.GetProductionOrderForUpdate(tx, orderId)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return utils.NewError(utils.KindInvalidState,
				"production order %d is %s", orderId, order.Status)
		}

		reservations, err := models.GetOrderReservations(tx, orderId, models.ReservationStateActive)
		if err != nil {
			return err
		}
		for _, reservation := range reservations {
			if err := ReleaseReservation(tx, logger, reservation.ID); err != nil {
				return err
			}
		}

		return tx.Model(&models.ProductionOrder{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{
				"status":        models.OrderStatusCancelled,
				"cancel_reason": reason,
			}).Error
	})
}

func getOrderStep(tx *gorm.DB, orderId int, stepId int) (*models.ProductionStep, error) {
	var step models.ProductionStep
	err := tx.Where("id = ? AND production_order_id = ?", stepId, orderId).
		First(&step).Error
	if err != nil {
		return nil, mapOrderChildNotFound(err, "step %d does not belong to order %d", stepId, orderId)
	}
	return &step, nil
}

func mapOrderChildNotFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewError(utils.KindNotFound, format, args...)
	}
	return err
}
