package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryBatch is one receipt lot of stock for an item. When any batches
// exist for a SKU their sum is the authoritative stock level; the item's own
// stock_level field is only a fallback for batch-less items.
type InventoryBatch struct {
	ID          int             `gorm:"primary_key" json:"id"`
	Sku         string          `gorm:"size:100;uniqueIndex:idx_batch_sku_number,priority:1;not null" json:"sku"`
	BatchNumber string          `gorm:"size:100;uniqueIndex:idx_batch_sku_number,priority:2;not null" json:"batch_number"`
	StockLevel  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"stock_level"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BatchStockSum returns the summed batch stock for a SKU and how many batch
// rows exist. A zero count tells the caller to fall back to the item field.
func BatchStockSum(tx *gorm.DB, sku string) (decimal.Decimal, int64, error) {
	var batches []InventoryBatch
	if err := tx.Where("sku = ?", sku).Find(&batches).Error; err != nil {
		return decimal.Zero, 0, err
	}
	sum := decimal.Zero
	for _, b := range batches {
		sum = sum.Add(b.StockLevel)
	}
	return sum, int64(len(batches)), nil
}

// GetBatchesForUpdate loads a SKU's batches oldest-first under a row lock,
// the order FIFO consumption drains them in.
func GetBatchesForUpdate(tx *gorm.DB, sku string) ([]InventoryBatch, error) {
	var batches []InventoryBatch
	err := LockForUpdate(tx).
		Where("sku = ?", sku).
		Order("created_at asc, id asc").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}
