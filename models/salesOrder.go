package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/mmdatafocus/mfg_backend/utils"
	"github.com/shopspring/decimal"
)

// SalesOrderLine is the read-only feed of historical sales the forecast
// estimator aggregates over. Rows arrive from the channel-sync side; nothing
// in this core mutates them after insert.
type SalesOrderLine struct {
	ID        int             `gorm:"primary_key" json:"id"`
	Sku       string          `gorm:"size:100;index:idx_sales_line_sku_date,priority:1;not null" json:"sku"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	OrderDate time.Time       `gorm:"index:idx_sales_line_sku_date,priority:2;not null" json:"order_date"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewSalesOrderLine struct {
	Sku       string          `json:"sku" validate:"required,max=100"`
	Quantity  decimal.Decimal `json:"quantity"`
	OrderDate time.Time       `json:"order_date" validate:"required"`
}

func RecordSalesOrderLine(ctx context.Context, input *NewSalesOrderLine) (*SalesOrderLine, error) {
	db := config.GetDB()

	if err := utils.ValidateInput(input); err != nil {
		return nil, err
	}
	if !input.Quantity.IsPositive() {
		return nil, utils.NewError(utils.KindValidation, "sold quantity must be positive, got %s", input.Quantity)
	}

	line := SalesOrderLine{
		Sku:       input.Sku,
		Quantity:  utils.RoundQuantity(input.Quantity),
		OrderDate: input.OrderDate,
	}
	if err := db.WithContext(ctx).Create(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

// GetSalesOrderLinesSince returns a SKU's lines with order_date in (since, until].
func GetSalesOrderLinesSince(ctx context.Context, sku string, since time.Time, until time.Time) ([]SalesOrderLine, error) {
	db := config.GetDB()

	var lines []SalesOrderLine
	err := db.WithContext(ctx).
		Where("sku = ? AND order_date > ? AND order_date <= ?", sku, since, until).
		Order("order_date asc").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}
