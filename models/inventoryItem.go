package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/mmdatafocus/mfg_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InventoryItem struct {
	ID           int             `gorm:"primary_key" json:"id"`
	Sku          string          `gorm:"size:100;uniqueIndex;not null" json:"sku"`
	Name         string          `gorm:"size:255;not null" json:"name"`
	Category     ItemCategory    `gorm:"size:30;not null" json:"category"`
	Unit         string          `gorm:"size:30;not null" json:"unit"`
	StockLevel   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"stock_level"`
	MinimumLevel decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"minimum_level"`
	IsActive     *bool           `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInventoryItem struct {
	Sku          string          `json:"sku" validate:"required,max=100"`
	Name         string          `json:"name" validate:"required,max=255"`
	Category     string          `json:"category" validate:"required"`
	Unit         string          `json:"unit" validate:"required,max=30"`
	StockLevel   decimal.Decimal `json:"stock_level"`
	MinimumLevel decimal.Decimal `json:"minimum_level"`
}

func CreateInventoryItem(ctx context.Context, input *NewInventoryItem) (*InventoryItem, error) {
	db := config.GetDB()

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	category, ok := NormalizeItemCategory(input.Category)
	if !ok {
		return nil, utils.NewError(utils.KindValidation, "unknown item category %q", input.Category)
	}
	if input.StockLevel.IsNegative() || input.MinimumLevel.IsNegative() {
		return nil, utils.NewError(utils.KindValidation, "stock levels must not be negative")
	}

	item := InventoryItem{
		Sku:          input.Sku,
		Name:         input.Name,
		Category:     category,
		Unit:         input.Unit,
		StockLevel:   utils.RoundQuantity(input.StockLevel),
		MinimumLevel: utils.RoundQuantity(input.MinimumLevel),
		IsActive:     utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func GetInventoryItem(ctx context.Context, sku string) (*InventoryItem, error) {
	db := config.GetDB()

	var item InventoryItem
	err := db.WithContext(ctx).Where("sku = ?", sku).First(&item).Error
	if err != nil {
		return nil, mapGormError(err, "inventory item %s not found", sku)
	}
	return &item, nil
}

// DeactivateInventoryItem soft-deactivates an item. Items referenced by MMRs or
// orders are never physically deleted.
func DeactivateInventoryItem(ctx context.Context, sku string) (*InventoryItem, error) {
	db := config.GetDB()

	item, err := GetInventoryItem(ctx, sku)
	if err != nil {
		return nil, err
	}
	item.IsActive = utils.NewFalse()
	if err := db.WithContext(ctx).Model(item).Update("is_active", false).Error; err != nil {
		return nil, err
	}
	return item, nil
}

// GetStock returns the authoritative stock level: the batch sum when any
// batches exist, otherwise the item-level fallback field.
func GetStock(ctx context.Context, sku string) (decimal.Decimal, error) {
	db := config.GetDB()

	item, err := GetInventoryItem(ctx, sku)
	if err != nil {
		return decimal.Zero, err
	}
	sum, count, err := BatchStockSum(db.WithContext(ctx), sku)
	if err != nil {
		return decimal.Zero, err
	}
	if count > 0 {
		return sum, nil
	}
	return item.StockLevel, nil
}

// GetInventoryItemForUpdate loads the item row under a row lock. Every per-SKU
// stock mutation goes through this so concurrent reservations on one SKU
// serialize (see workflow package).
func GetInventoryItemForUpdate(tx *gorm.DB, sku string) (*InventoryItem, error) {
	var item InventoryItem
	err := LockForUpdate(tx).Where("sku = ?", sku).First(&item).Error
	if err != nil {
		return nil, mapGormError(err, "inventory item %s not found", sku)
	}
	return &item, nil
}
