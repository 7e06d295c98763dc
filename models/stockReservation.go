package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockReservation is a durable hold against available stock. It is an explicit
// entity (uuid token, own state column) so a crash between reserve and consume
// leaves an inspectable record instead of a leaked in-memory lock.
type StockReservation struct {
	ID                string           `gorm:"size:36;primary_key" json:"id"` // uuid token
	Sku               string           `gorm:"size:100;index;not null" json:"sku"`
	Quantity          decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"quantity"`
	State             ReservationState `gorm:"size:20;index;default:active" json:"state"`
	ProductionOrderId *int             `gorm:"index" json:"production_order_id"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActiveReservedSum is the quantity currently held by active reservations on a
// SKU. Availability = stock on hand - this sum.
func ActiveReservedSum(tx *gorm.DB, sku string) (decimal.Decimal, error) {
	var reservations []StockReservation
	err := tx.Where("sku = ? AND state = ?", sku, ReservationStateActive).
		Find(&reservations).Error
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, r := range reservations {
		sum = sum.Add(r.Quantity)
	}
	return sum, nil
}

// HasActiveReservations reports whether any active hold exists for a SKU.
// Zero-stock batches are only pruned when this is false.
func HasActiveReservations(tx *gorm.DB, sku string) (bool, error) {
	var count int64
	err := tx.Model(&StockReservation{}).
		Where("sku = ? AND state = ?", sku, ReservationStateActive).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
