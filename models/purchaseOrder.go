package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/mmdatafocus/mfg_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseOrder tracks procurement from a supplier. Receiving it is the only
// path that mutates inventory, and that runs through the stock ledger (see
// workflow.ReceivePurchaseOrder).
type PurchaseOrder struct {
	ID         int                 `gorm:"primary_key" json:"id"`
	SupplierId int                 `gorm:"index;not null" json:"supplier_id"`
	Status     PurchaseOrderStatus `gorm:"size:20;index;default:draft" json:"status"`
	OrderDate  *time.Time          `json:"order_date"`
	ReceivedAt *time.Time          `json:"received_at"`
	ReceivedBy string              `gorm:"size:100" json:"received_by"`
	Notes      string              `gorm:"type:text" json:"notes"`
	CreatedAt  time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time           `gorm:"autoUpdateTime" json:"updated_at"`

	Items []PurchaseOrderItem `gorm:"foreignKey:PurchaseOrderId" json:"items"`
}

type PurchaseOrderItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	Sku             string          `gorm:"size:100;not null" json:"sku"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
}

type NewPurchaseOrderItem struct {
	Sku      string          `json:"sku" validate:"required,max=100"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type NewPurchaseOrder struct {
	SupplierId int                    `json:"supplier_id" validate:"required,min=1"`
	Notes      string                 `json:"notes"`
	Items      []NewPurchaseOrderItem `json:"items" validate:"required,min=1,dive"`
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	db := config.GetDB()

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if _, err := GetSupplier(ctx, input.SupplierId); err != nil {
		return nil, err
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return nil, utils.NewError(utils.KindValidation,
				"purchase quantity for %s must be positive, got %s", item.Sku, item.Quantity)
		}
		if _, err := GetInventoryItem(ctx, item.Sku); err != nil {
			return nil, err
		}
	}

	order := PurchaseOrder{
		SupplierId: input.SupplierId,
		Status:     PurchaseOrderStatusDraft,
		Notes:      input.Notes,
	}
	for _, item := range input.Items {
		order.Items = append(order.Items, PurchaseOrderItem{
			Sku:      item.Sku,
			Quantity: utils.RoundQuantity(item.Quantity),
			UnitCost: item.UnitCost,
		})
	}
	if err := db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	var order PurchaseOrder
	err := db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, mapGormError(err, "purchase order %d not found", id)
	}
	return &order, nil
}

// MarkPurchaseOrderOrdered moves draft -> ordered and stamps the order date.
func MarkPurchaseOrderOrdered(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := GetPurchaseOrderForUpdate(tx, id)
		if err != nil {
			return err
		}
		if order.Status != PurchaseOrderStatusDraft {
			return utils.NewError(utils.KindInvalidState,
				"purchase order %d is %s, expected draft", id, order.Status)
		}
		now := time.Now()
		return tx.Model(&PurchaseOrder{}).Where("id = ?", id).
			Updates(map[string]any{
				"status":     PurchaseOrderStatusOrdered,
				"order_date": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPurchaseOrder(ctx, id)
}

// CancelPurchaseOrder cancels a draft or ordered PO. Received is terminal.
func CancelPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	db := config.GetDB()

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := GetPurchaseOrderForUpdate(tx, id)
		if err != nil {
			return err
		}
		if order.Status != PurchaseOrderStatusDraft && order.Status != PurchaseOrderStatusOrdered {
			return utils.NewError(utils.KindInvalidState,
				"purchase order %d is %s and cannot be cancelled", id, order.Status)
		}
		return tx.Model(&PurchaseOrder{}).Where("id = ?", id).
			Update("status", PurchaseOrderStatusCancelled).Error
	})
	if err != nil {
		return nil, err
	}
	return GetPurchaseOrder(ctx, id)
}

// GetPurchaseOrderForUpdate loads the order row under a row lock.
func GetPurchaseOrderForUpdate(tx *gorm.DB, id int) (*PurchaseOrder, error) {
	var order PurchaseOrder
	err := LockForUpdate(tx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, mapGormError(err, "purchase order %d not found", id)
	}
	return &order, nil
}
