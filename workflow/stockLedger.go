package workflow

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/mmdatafocus/mfg_backend/models"
	"github.com/mmdatafocus/mfg_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Stock ledger primitives. Every function here runs inside the caller's
// transaction and serializes per SKU by locking the item row first, so two
// orders contending for the same ingredient observe a consistent availability
// figure. Multi-SKU callers must lock in ascending SKU order (see
// CreateProductionOrder) to stay deadlock-free.

// StockOnHand computes the authoritative stock for an already-loaded item:
// batch sum when batches exist, else the item-level fallback.
func StockOnHand(tx *gorm.DB, item *models.InventoryItem) (decimal.Decimal, error) {
	sum, count, err := models.BatchStockSum(tx, item.Sku)
	if err != nil {
		return decimal.Zero, err
	}
	if count > 0 {
		return sum, nil
	}
	return item.StockLevel, nil
}

// AvailableStock is stock on hand minus active reservations. The item row must
// already be locked by the caller when the result feeds a mutation.
func AvailableStock(tx *gorm.DB, item *models.InventoryItem) (decimal.Decimal, error) {
	onHand, err := StockOnHand(tx, item)
	if err != nil {
		return decimal.Zero, err
	}
	reserved, err := models.ActiveReservedSum(tx, item.Sku)
	if err != nil {
		return decimal.Zero, err
	}
	return onHand.Sub(reserved), nil
}

// ReserveStock places a hold on available stock. The hold does not change the
// displayed stock level but reduces availability for later reservations.
func ReserveStock(tx *gorm.DB, logger *logrus.Logger, sku string, quantity decimal.Decimal, productionOrderId *int) (*models.StockReservation, error) {
	if !quantity.IsPositive() {
		return nil, utils.NewError(utils.KindValidation, "reserve quantity must be positive, got %s", quantity)
	}

	item, err := models.GetInventoryItemForUpdate(tx, sku)
	if err != nil {
		return nil, mapLockTimeout(err)
	}

	available, err := AvailableStock(tx, item)
	if err != nil {
		return nil, err
	}
	if available.LessThan(quantity) {
		return nil, utils.NewError(utils.KindInsufficientStock,
			"insufficient stock for %s: requested %s, available %s", sku, quantity, available)
	}

	reservation := models.StockReservation{
		ID:                uuid.NewString(),
		Sku:               sku,
		Quantity:          utils.RoundQuantity(quantity),
		State:             models.ReservationStateActive,
		ProductionOrderId: productionOrderId,
	}
	if err := tx.Create(&reservation).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// ConsumeReservation converts a hold into an actual stock decrement, draining
// the SKU's batches oldest-first until the reserved quantity is exhausted.
func ConsumeReservation(tx *gorm.DB, logger *logrus.Logger, token string) error {
	reservation, err := getActiveReservationForUpdate(tx, token)
	if err != nil {
		return err
	}

	item, err := models.GetInventoryItemForUpdate(tx, reservation.Sku)
	if err != nil {
		return mapLockTimeout(err)
	}

	batches, err := models.GetBatchesForUpdate(tx, reservation.Sku)
	if err != nil {
		return err
	}

	remaining := reservation.Quantity
	if len(batches) > 0 {
		for i := range batches {
			if !remaining.IsPositive() {
				break
			}
			take := decimal.Min(batches[i].StockLevel, remaining)
			if !take.IsPositive() {
				continue
			}
			batches[i].StockLevel = batches[i].StockLevel.Sub(take)
			remaining = remaining.Sub(take)
			if err := tx.Model(&models.InventoryBatch{}).
				Where("id = ?", batches[i].ID).
				Update("stock_level", batches[i].StockLevel).Error; err != nil {
				return err
			}
		}
		if remaining.IsPositive() {
			// Reservations never exceed availability, so batch stock cannot run
			// out mid-drain unless the ledger was mutated outside this package.
			config.LogError(logger, "workflow", "ConsumeReservation",
				"batch drain underflow", reservation, utils.NewError(utils.KindConflict, "batch stock exhausted"))
			return utils.NewError(utils.KindConflict,
				"batch stock for %s short by %s while consuming reservation %s",
				reservation.Sku, remaining, reservation.ID)
		}
	} else {
		newLevel := item.StockLevel.Sub(remaining)
		if newLevel.IsNegative() {
			return utils.NewError(utils.KindConflict,
				"stock for %s would go negative consuming reservation %s", reservation.Sku, reservation.ID)
		}
		if err := tx.Model(&models.InventoryItem{}).
			Where("id = ?", item.ID).
			Update("stock_level", newLevel).Error; err != nil {
			return err
		}
	}

	if err := tx.Model(&models.StockReservation{}).
		Where("id = ?", reservation.ID).
		Update("state", models.ReservationStateConsumed).Error; err != nil {
		return err
	}

	return pruneEmptyBatches(tx, reservation.Sku)
}

// ReleaseReservation cancels a hold without touching stock.
func ReleaseReservation(tx *gorm.DB, logger *logrus.Logger, token string) error {
	reservation, err := getActiveReservationForUpdate(tx, token)
	if err != nil {
		return err
	}
	return tx.Model(&models.StockReservation{}).
		Where("id = ?", reservation.ID).
		Update("state", models.ReservationStateReleased).Error
}

// ReceiveStock increases stock, either into the named batch (created on first
// receipt) or directly on the item when no batch number is given.
func ReceiveStock(tx *gorm.DB, logger *logrus.Logger, sku string, quantity decimal.Decimal, batchNumber *string) error {
	if !quantity.IsPositive() {
		return utils.NewError(utils.KindValidation, "receive quantity must be positive, got %s", quantity)
	}

	item, err := models.GetInventoryItemForUpdate(tx, sku)
	if err != nil {
		return mapLockTimeout(err)
	}

	quantity = utils.RoundQuantity(quantity)

	batch := utils.DereferencePtr(batchNumber)
	if strings.TrimSpace(batch) != "" {
		row := models.InventoryBatch{Sku: sku, BatchNumber: batch}
		result := models.LockForUpdate(tx).
			Where("sku = ? AND batch_number = ?", sku, batch).
			FirstOrCreate(&row)
		if result.Error != nil {
			return result.Error
		}
		return tx.Model(&models.InventoryBatch{}).
			Where("id = ?", row.ID).
			Update("stock_level", row.StockLevel.Add(quantity)).Error
	}

	return tx.Model(&models.InventoryItem{}).
		Where("id = ?", item.ID).
		Update("stock_level", item.StockLevel.Add(quantity)).Error
}

func getActiveReservationForUpdate(tx *gorm.DB, token string) (*models.StockReservation, error) {
	var reservation models.StockReservation
	err := models.LockForUpdate(tx).Where("id = ?", token).First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewError(utils.KindInvalidToken, "unknown reservation token %s", token)
		}
		return nil, mapLockTimeout(err)
	}
	if reservation.State != models.ReservationStateActive {
		return nil, utils.NewError(utils.KindInvalidToken,
			"reservation %s is %s, not active", reservation.ID, reservation.State)
	}
	return &reservation, nil
}

// pruneEmptyBatches removes drained batches once no active reservation on the
// SKU could still need them.
func pruneEmptyBatches(tx *gorm.DB, sku string) error {
	hasActive, err := models.HasActiveReservations(tx, sku)
	if err != nil {
		return err
	}
	if hasActive {
		return nil
	}
	return tx.Where("sku = ? AND stock_level = 0", sku).
		Delete(&models.InventoryBatch{}).Error
}

// Context-level entry points. Each wraps one ledger primitive in its own
// transaction; the tx-scoped functions above are for callers composing larger
// atomic flows (order creation, completion, PO receipt).

func ReserveStockQuantity(ctx context.Context, sku string, quantity decimal.Decimal) (*models.StockReservation, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	var reservation *models.StockReservation
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		reservation, err = ReserveStock(tx, logger, sku, quantity, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func ConsumeStockReservation(ctx context.Context, token string) error {
	db := config.GetDB()
	logger := config.GetLogger()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ConsumeReservation(tx, logger, token)
	})
}

func ReleaseStockReservation(ctx context.Context, token string) error {
	db := config.GetDB()
	logger := config.GetLogger()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ReleaseReservation(tx, logger, token)
	})
}

func ReceiveStockQuantity(ctx context.Context, sku string, quantity decimal.Decimal, batchNumber *string) error {
	db := config.GetDB()
	logger := config.GetLogger()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ReceiveStock(tx, logger, sku, quantity, batchNumber)
	})
}

// mapLockTimeout folds the store's lock-wait timeout into the retryable Busy
// kind. MySQL reports it as error 1205.
func mapLockTimeout(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "Lock wait timeout") {
		return utils.WrapError(utils.KindBusy, err, "lock contention")
	}
	return err
}
