package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/mmdatafocus/mfg_backend/models"
	"github.com/mmdatafocus/mfg_backend/utils"
	"gorm.io/gorm"
)

// ReceivePurchaseOrder moves an ordered PO to received and books every line
// into the stock ledger in the same transaction. Lines land in the batch named
// by batchNumber, defaulting to "PO-<id>" so each receipt stays a traceable lot.
func ReceivePurchaseOrder(ctx context.Context, purchaseOrderId int, batchNumber *string, receivedBy string) (*models.PurchaseOrder, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := models.GetPurchaseOrderForUpdate(tx, purchaseOrderId)
		if err != nil {
			return err
		}
		if order.Status != models.PurchaseOrderStatusOrdered {
			return utils.NewError(utils.KindInvalidState,
				"purchase order %d is %s, expected ordered", purchaseOrderId, order.Status)
		}

		var items []models.PurchaseOrderItem
		if err := tx.Where("purchase_order_id = ?", purchaseOrderId).
			Order("sku asc").
			Find(&items).Error; err != nil {
			return err
		}

		batch := strings.TrimSpace(utils.DereferencePtr(batchNumber))
		if batch == "" {
			batch = fmt.Sprintf("PO-%d", purchaseOrderId)
		}

		for _, item := range items {
			if err := ReceiveStock(tx, logger, item.Sku, item.Quantity, &batch); err != nil {
				return err
			}
		}

		now := time.Now()
		return tx.Model(&models.PurchaseOrder{}).
			Where("id = ?", purchaseOrderId).
			Updates(map[string]any{
				"status":      models.PurchaseOrderStatusReceived,
				"received_at": now,
				"received_by": receivedBy,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return models.GetPurchaseOrder(ctx, purchaseOrderId)
}
