package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductionOrder executes one MMR version. The MMR's steps and sub-steps are
// deep-copied onto the order at creation time, so catalog edits never change
// an in-flight order.
type ProductionOrder struct {
	ID           int                   `gorm:"primary_key" json:"id"`
	ProductSku   string                `gorm:"size:100;index;not null" json:"product_sku"`
	MmrVersion   int                   `gorm:"not null" json:"mmr_version"`
	Quantity     decimal.Decimal       `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Status       ProductionOrderStatus `gorm:"size:20;index;default:pending" json:"status"`
	ActualYield  decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"actual_yield"`
	CreatedBy    string                `gorm:"size:100" json:"created_by"`
	CompletedBy  string                `gorm:"size:100" json:"completed_by"`
	CompletedAt  *time.Time            `json:"completed_at"`
	CancelReason string                `gorm:"size:255" json:"cancel_reason"`
	CreatedAt    time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time             `gorm:"autoUpdateTime" json:"updated_at"`

	Steps []ProductionStep `gorm:"foreignKey:ProductionOrderId" json:"steps"`
}

type ProductionStep struct {
	ID                int        `gorm:"primary_key" json:"id"`
	ProductionOrderId int        `gorm:"index;not null" json:"production_order_id"`
	StepNumber        int        `gorm:"not null" json:"step_number"`
	Description       string     `gorm:"type:text" json:"description"`
	QualityChecks     []string   `gorm:"serializer:json" json:"quality_checks"`
	Completed         *bool      `gorm:"default:false" json:"completed"`
	CompletedBy       string     `gorm:"size:100" json:"completed_by"`
	CompletedAt       *time.Time `json:"completed_at"`

	SubSteps []ProductionSubStep `gorm:"foreignKey:ProductionStepId" json:"sub_steps"`
}

type ProductionSubStep struct {
	ID               int        `gorm:"primary_key" json:"id"`
	ProductionStepId int        `gorm:"index;not null" json:"production_step_id"`
	SubStepNumber    int        `gorm:"not null" json:"sub_step_number"`
	StepType         string     `gorm:"size:50" json:"step_type"`
	Description      string     `gorm:"type:text" json:"description"`
	Completed        *bool      `gorm:"default:false" json:"completed"`
	CompletedBy      string     `gorm:"size:100" json:"completed_by"`
	CompletedAt      *time.Time `json:"completed_at"`
}

type NewProductionOrder struct {
	ProductSku string          `json:"product_sku" validate:"required,max=100"`
	Quantity   decimal.Decimal `json:"quantity"`
	MmrVersion *int            `json:"mmr_version"` // nil resolves to the active version
	CreatedBy  string          `json:"created_by" validate:"required,max=100"`
}

func preloadProductionOrder(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_number asc") }).
		Preload("Steps.SubSteps", func(db *gorm.DB) *gorm.DB { return db.Order("sub_step_number asc") })
}

func GetProductionOrder(ctx context.Context, id int) (*ProductionOrder, error) {
	db := config.GetDB()

	var order ProductionOrder
	err := preloadProductionOrder(db.WithContext(ctx)).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, mapGormError(err, "production order %d not found", id)
	}
	return &order, nil
}

func GetProductionOrders(ctx context.Context, status *ProductionOrderStatus) ([]*ProductionOrder, error) {
	db := config.GetDB()

	query := preloadProductionOrder(db.WithContext(ctx)).Order("id asc")
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var orders []*ProductionOrder
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// GetProductionOrderForUpdate loads the order row (without children) under a
// row lock so lifecycle transitions on one order serialize.
func GetProductionOrderForUpdate(tx *gorm.DB, id int) (*ProductionOrder, error) {
	var order ProductionOrder
	err := LockForUpdate(tx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, mapGormError(err, "production order %d not found", id)
	}
	return &order, nil
}

// GetOrderReservations returns the order's reservations in the given state.
func GetOrderReservations(tx *gorm.DB, orderId int, state ReservationState) ([]StockReservation, error) {
	var reservations []StockReservation
	err := tx.Where("production_order_id = ? AND state = ?", orderId, state).
		Order("sku asc").
		Find(&reservations).Error
	if err != nil {
		return nil, err
	}
	return reservations, nil
}
