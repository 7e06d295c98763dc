package workflow_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/mfg_backend/models"
	"github.com/mmdatafocus/mfg_backend/utils"
	"github.com/mmdatafocus/mfg_backend/workflow"
	"github.com/shopspring/decimal"
)

func seedMmr(t *testing.T, productSku string, baseQty string, ingredients []models.NewMmrIngredient) *models.Mmr {
	t.Helper()

	mmr, err := models.CreateMmrVersion(context.Background(), &models.NewMmrVersion{
		ProductSku:   productSku,
		BaseQuantity: mustDecimal(t, baseQty),
		CreatedBy:    "tester",
		Steps: []models.NewMmrStep{
			{StepNumber: 1, Description: "Weigh ingredients", QualityChecks: []string{"scale calibrated"}},
			{StepNumber: 2, Description: "Blend"},
			{StepNumber: 3, Description: "Package"},
		},
		SubSteps: []models.NewMmrSubStep{
			{MainStepNumber: 2, SubStepNumber: 1, StepType: "process", Description: "Load blender"},
			{MainStepNumber: 2, SubStepNumber: 2, StepType: "qc", Description: "Check homogeneity"},
		},
		Ingredients: ingredients,
		Equipment:   []string{"Blender 3000"},
	})
	if err != nil {
		t.Fatalf("seed MMR %s: %v", productSku, err)
	}
	return mmr
}

func TestCreateOrderScalesIngredientsByBatchRatio(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// MMR FG-2001 v1: base quantity 10, needs 5 of RAW-2. An order for 20
	// reserves exactly 10.
	seedItem(t, "RAW-2", "raw_ingredient", mustDecimal(t, "100"))
	seedItem(t, "FG-2001", "finished_good", mustDecimal(t, "0"))
	seedMmr(t, "FG-2001", "10", []models.NewMmrIngredient{
		{IngredientSku: "RAW-2", Quantity: mustDecimal(t, "5"), Unit: "kg"},
	})

	order, err := workflow.CreateProductionOrder(ctx, &models.NewProductionOrder{
		ProductSku: "FG-2001",
		Quantity:   mustDecimal(t, "20"),
		CreatedBy:  "tester",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != models.OrderStatusPending {
		t.Fatalf("status = %s, want pending", order.Status)
	}
	if order.MmrVersion != 1 {
		t.Fatalf("mmr version = %d, want 1", order.MmrVersion)
	}
	if len(order.Steps) != 3 {
		t.Fatalf("steps copied = %d, want 3", len(order.Steps))
	}
	if len(order.Steps[1].SubSteps) != 2 {
		t.Fatalf("sub-steps under step 2 = %d, want 2", len(order.Steps[1].SubSteps))
	}

	reservations, err := models.GetOrderReservations(db, order.ID, models.ReservationStateActive)
	if err != nil {
		t.Fatalf("load reservations: %v", err)
	}
	if len(reservations) != 1 {
		t.Fatalf("reservations = %d, want 1", len(reservations))
	}
	if !reservations[0].Quantity.Equal(mustDecimal(t, "10")) {
		t.Fatalf("reserved qty = %s, want 10", reservations[0].Quantity)
	}
}

func TestCreateOrderRoundsScaledQuantityHalfUp(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedItem(t, "RAW-7", "raw_ingredient", mustDecimal(t, "100"))
	seedItem(t, "FG-2002", "finished_good", mustDecimal(t, "0"))
	// 1 per base 3: ordering 1 needs 0.33333..., which rounds half-up at the
	// fourth decimal to 0.3333.
	seedMmr(t, "FG-2002", "3", []models.NewMmrIngredient{
		{IngredientSku: "RAW-7", Quantity: mustDecimal(t, "1"), Unit: "kg"},
	})

	order, err := workflow.CreateProductionOrder(ctx, &models.NewProductionOrder{
		ProductSku: "FG-2002",
		Quantity:   mustDecimal(t, "1"),
		CreatedBy:  "tester",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	reservations, err := models.GetOrderReservations(db, order.ID, models.ReservationStateActive)
	if err != nil {
		t.Fatalf("load reservations: %v", err)
	}
	if !reservations[0].Quantity.Equal(mustDecimal(t, "0.3333")) {
		t.Fatalf("reserved qty = %s, want 0.3333", reservations[0].Quantity)
	}
}

func TestCreateOrderUnwindsReservationsOnShortage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// RAW-20 has plenty, RAW-21 is short. Ascending SKU order reserves
	// RAW-20 first; the failure must take its hold down with it.
	seedItem(t, "RAW-20", "raw_ingredient", mustDecimal(t, "100"))
	seedItem(t, "RAW-21", "raw_ingredient", mustDecimal(t, "1"))
	seedItem(t, "FG-2003", "finished_good", mustDecimal(t, "0"))
	seedMmr(t, "FG-2003", "1", []models.NewMmrIngredient{
		{IngredientSku: "RAW-20", Quantity: mustDecimal(t, "2"), Unit: "kg"},
		{IngredientSku: "RAW-21", Quantity: mustDecimal(t, "2"), Unit: "kg"},
	})

	_, err := workflow.CreateProductionOrder(ctx, &models.NewProductionOrder{
		ProductSku: "FG-2003",
		Quantity:   mustDecimal(t, "1"),
		CreatedBy:  "tester",
	})
	if !utils.IsKind(err, utils.KindInsufficientStock) {
		t.Fatalf("create order error = %v, want InsufficientStock", err)
	}

	var activeCount int64
	if err := db.Model(&models.StockReservation{}).
		Where("state = ?", models.ReservationStateActive).
		Count(&activeCount).Error; err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if activeCount != 0 {
		t.Fatalf("active reservations after failed create = %d, want 0", activeCount)
	}

	var orderCount int64
	if err := db.Model(&models.ProductionOrder{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("orders persisted after failed create = %d, want 0", orderCount)
	}
}

func TestOrderSnapshotSurvivesMmrEdit(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	seedItem(t, "RAW-30", "raw_ingredient", mustDecimal(t, "100"))
	seedItem(t, "FG-2004", "finished_good", mustDecimal(t, "0"))
	seedMmr(t, "FG-2004", "10", []models.NewMmrIngredient{
		{IngredientSku: "RAW-30", Quantity: mustDecimal(t, "5"), Unit: "kg"},
	})

	order, err := workflow.CreateProductionOrder(ctx, &models.NewProductionOrder{
		ProductSku: "FG-2004",
		Quantity:   mustDecimal(t, "10"),
		CreatedBy:  "tester",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// "Edit" the MMR: version 2 appears with a different procedure and takes
	// the active flag.
	_, err = models.CreateMmrVersion(ctx, &models.NewMmrVersion{
		ProductSku:   "FG-2004",
		BaseQuantity: mustDecimal(t, "10"),
		CreatedBy:    "tester",
		Steps: []models.NewMmrStep{
			{StepNumber: 1, Description: "Completely new procedure"},
		},
	})
	if err != nil {
		t.Fatalf("create v2: %v", err)
	}

	// Version 1 is untouched and the in-flight order still reflects it.
	v1, err := models.GetMmrVersion(ctx, "FG-2004", 1)
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if len(v1.Steps) != 3 || len(v1.Ingredients) != 1 {
		t.Fatalf("v1 mutated: %d steps, %d ingredients", len(v1.Steps), len(v1.Ingredients))
	}

	reloaded, err := models.GetProductionOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.MmrVersion != 1 {
		t.Fatalf("order mmr version = %d, want 1", reloaded.MmrVersion)
	}
	if len(reloaded.Steps) != 3 {
		t.Fatalf("order steps = %d, want the v1 snapshot of 3", len(reloaded.Steps))
	}

	active, err := models.GetActiveMmr(ctx, "FG-2004")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.Version != 2 {
		t.Fatalf("active version = %d, want 2", active.Version)
	}
}

func TestStepCompletionGatesAndStatusFlip(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	seedItem(t, "RAW-40", "raw_ingredient", mustDecimal(t, "100"))
	seedItem(t, "FG-2005", "finished_good", mustDecimal(t, "0"))
	seedMmr(t, "FG-2005", "10", []models.NewMmrIngredient{
		{IngredientSku: "RAW-40", Quantity: mustDecimal(t, "5"), Unit: "kg"},
	})

	order, err := workflow.CreateProductionOrder(ctx, &models.NewProductionOrder{
		ProductSku: "FG-2005",
		Quantity:   mustDecimal(t, "10"),
		CreatedBy:  "tester",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	step2 := order.Steps[1]
	if step2.StepNumber != 2 {
		t.Fatalf("unexpected step ordering: step[1] is %d", step2.StepNumber)
	}

	// Step 2 carries sub-steps; completing it early is rejected.
	err = workflow.CompleteProductionStep(ctx, order.ID, step2.ID, "operator")
	if !utils.IsKind(err, utils.KindIncompleteSubSteps) {
		t.Fatalf("complete step error = %v, want IncompleteSubSteps", err)
	}

	for _, sub := range step2.SubSteps {
		if err := workflow.CompleteProductionSubStep(ctx, order.ID, step2.ID, sub.ID, "operator"); err != nil {
			t.Fatalf("complete sub-step %d: %v", sub.SubStepNumber, err)
		}
	}
	if err := workflow.CompleteProductionStep(ctx, order.ID, step2.ID, "operator"); err != nil {
		t.Fatalf("complete step 2: %v", err)
	}

	// First completed step flips pending -> in_progress.
	reloaded, err := models.GetProductionOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != models.OrderStatusInProgress {
		t.Fatalf("status = %s, want in_progress", reloaded.Status)
	}

	// Foreign step ids are rejected.
	err = workflow.CompleteProductionStep(ctx, order.ID, 99999, "operator")
	if !utils.IsKind(err, utils.KindNotFound) {
		t.Fatalf("foreign step error = %v, want NotFound", err)
	}

	// Completing the same step twice is a conflict.
	err = workflow.CompleteProductionStep(ctx, order.ID, step2.ID, "operator")
	if !utils.IsKind(err, utils.KindConflict) {
		t.Fatalf("repeat completion error = %v, want Conflict", err)
	}
}

func completeAllSteps(t *testing.T, orderId int) {
	t.Helper()
	ctx := context.Background()

	order, err := models.GetProductionOrder(ctx, orderId)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	for _, step := range order.Steps {
		if utils.DereferencePtr(step.Completed) {
			continue
		}
		for _, sub := range step.SubSteps {
			if utils.DereferencePtr(sub.Completed) {
				continue
			}
			if err := workflow.CompleteProductionSubStep(ctx, orderId, step.ID, sub.ID, "operator"); err != nil {
				t.Fatalf("complete sub-step: %v", err)
			}
		}
		if err := workflow.CompleteProductionStep(ctx, orderId, step.ID, "operator"); err != nil {
			t.Fatalf("complete step %d: %v", step.StepNumber, err)
		}
	}
}

func TestCompleteOrderRequiresAllStepsAndKeepsHolds(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedItem(t, "RAW-50", "raw_ingredient", mustDecimal(t, "100"))
	seedItem(t, "FG-2006", "finished_good", mustDecimal(t, "0"))
	seedMmr(t, "FG-2006", "10", []models.NewMmrIngredient{
		{IngredientSku: "RAW-50", Quantity: mustDecimal(t, "5"), Unit: "kg"},
	})

	order, err := workflow.CreateProductionOrder(ctx, &models.NewProductionOrder{
		ProductSku: "FG-2006",
		Quantity:   mustDecimal(t, "10"),
		CreatedBy:  "tester",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	err = workflow.CompleteProductionOrder(ctx, order.ID, mustDecimal(t, "10"), "supervisor")
	if !utils.IsKind(err, utils.KindIncompleteSteps) {
		t.Fatalf("premature completion error = %v, want IncompleteSteps", err)
	}

	// The refused completion left every reservation in place.
	reservations, err := models.GetOrderReservations(db, order.ID, models.ReservationStateActive)
	if err != nil {
		t.Fatalf("load reservations: %v", err)
	}
	if len(reservations) != 1 {
		t.Fatalf("active reservations = %d, want 1", len(reservations))
	}
}

func TestCompleteOrderConsumesAndRecordsYield(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedItem(t, "RAW-60", "raw_ingredient", mustDecimal(t, "100"))
	seedItem(t, "FG-2007", "finished_good", mustDecimal(t, "0"))
	seedMmr(t, "FG-2007", "10", []models.NewMmrIngredient{
		{IngredientSku: "RAW-60", Quantity: mustDecimal(t, "5"), Unit: "kg"},
	})

	order, err := workflow.CreateProductionOrder(ctx, &models.NewProductionOrder{
		ProductSku: "FG-2007",
		Quantity:   mustDecimal(t, "20"),
		CreatedBy:  "tester",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	completeAllSteps(t, order.ID)

	// Actual yield differs from the ordered 20; that is recorded, not refused.
	if err := workflow.CompleteProductionOrder(ctx, order.ID, mustDecimal(t, "18.5"), "supervisor"); err != nil {
		t.Fatalf("complete order: %v", err)
	}

	reloaded, err := models.GetProductionOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != models.OrderStatusCompleted {
		t.Fatalf("status = %s, want completed", reloaded.Status)
	}
	if !reloaded.ActualYield.Equal(mustDecimal(t, "18.5")) {
		t.Fatalf("actual yield = %s, want 18.5", reloaded.ActualYield)
	}
	if reloaded.CompletedBy != "supervisor" || reloaded.CompletedAt == nil {
		t.Fatalf("completion stamp missing: by=%q at=%v", reloaded.CompletedBy, reloaded.CompletedAt)
	}

	// The 10 reserved units of RAW-60 were consumed, no more, no less.
	stock, err := models.GetStock(ctx, "RAW-60")
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	if !stock.Equal(mustDecimal(t, "90")) {
		t.Fatalf("RAW-60 stock = %s, want 90", stock)
	}
	remaining, err := models.GetOrderReservations(db, order.ID, models.ReservationStateActive)
	if err != nil {
		t.Fatalf("load reservations: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("active reservations after completion = %d, want 0", len(remaining))
	}

	// Completed is terminal.
	err = workflow.CancelProductionOrder(ctx, order.ID, "changed my mind")
	if !utils.IsKind(err, utils.KindInvalidState) {
		t.Fatalf("cancel after completion error = %v, want InvalidState", err)
	}
	err = workflow.CompleteProductionOrder(ctx, order.ID, decimal.Zero, "supervisor")
	if !utils.IsKind(err, utils.KindInvalidState) {
		t.Fatalf("repeat completion error = %v, want InvalidState", err)
	}
}

func TestCancelReleasesEverything(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedItem(t, "RAW-70", "raw_ingredient", mustDecimal(t, "100"))
	seedItem(t, "FG-2008", "finished_good", mustDecimal(t, "0"))
	seedMmr(t, "FG-2008", "10", []models.NewMmrIngredient{
		{IngredientSku: "RAW-70", Quantity: mustDecimal(t, "5"), Unit: "kg"},
	})

	order, err := workflow.CreateProductionOrder(ctx, &models.NewProductionOrder{
		ProductSku: "FG-2008",
		Quantity:   mustDecimal(t, "10"),
		CreatedBy:  "tester",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := workflow.CancelProductionOrder(ctx, order.ID, "line down"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	reloaded, err := models.GetProductionOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != models.OrderStatusCancelled {
		t.Fatalf("status = %s, want cancelled", reloaded.Status)
	}
	if reloaded.CancelReason != "line down" {
		t.Fatalf("cancel reason = %q", reloaded.CancelReason)
	}

	// Availability is fully restored, stock untouched.
	if avail := availableFor(t, db, "RAW-70"); !avail.Equal(mustDecimal(t, "100")) {
		t.Fatalf("available after cancel = %s, want 100", avail)
	}

	// Cancelled is terminal: no step work, no completion.
	err = workflow.CompleteProductionStep(ctx, order.ID, reloaded.Steps[0].ID, "operator")
	if !utils.IsKind(err, utils.KindInvalidState) {
		t.Fatalf("step after cancel error = %v, want InvalidState", err)
	}
}

func TestCreateOrderUnknownMmr(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	seedItem(t, "FG-2009", "finished_good", mustDecimal(t, "0"))

	_, err := workflow.CreateProductionOrder(ctx, &models.NewProductionOrder{
		ProductSku: "FG-2009",
		Quantity:   mustDecimal(t, "1"),
		CreatedBy:  "tester",
	})
	if !utils.IsKind(err, utils.KindNotFound) {
		t.Fatalf("create order error = %v, want NotFound", err)
	}
}
