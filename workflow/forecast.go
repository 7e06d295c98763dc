package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/mfg_backend/models"
	"github.com/mmdatafocus/mfg_backend/utils"
	"github.com/shopspring/decimal"
)

const (
	forecastWindowDays = 30
	forecastWindows    = 3
)

// DefaultGrowthFactor pads projections for expected growth.
var DefaultGrowthFactor = decimal.NewFromFloat(1.10)

// ForecastWindow is one trailing 30-day slice of sales history and the demand
// projected from it.
type ForecastWindow struct {
	Label          string          `json:"label"`
	TotalQty       decimal.Decimal `json:"total_qty"`
	AvgDailyDemand decimal.Decimal `json:"avg_daily_demand"`
	ProjectedQty   decimal.Decimal `json:"projected_qty"`
}

type ForecastResult struct {
	ProductSku   string           `json:"product_sku"`
	HorizonDays  int              `json:"horizon_days"`
	GrowthFactor decimal.Decimal  `json:"growth_factor"`
	Windows      []ForecastWindow `json:"windows"`
}

// EstimateDemand projects demand for a SKU over horizonDays, independently
// from each of the three trailing 30-day sales windows (0-30, 30-60, 60-90
// days back). Growth factor defaults to 1.10 when nil. Fails with NoData when
// the 90-day lookback holds no sales rows; the caller decides whether that
// means zero demand.
func EstimateDemand(ctx context.Context, productSku string, horizonDays int, growthFactor *decimal.Decimal) (*ForecastResult, error) {
	if horizonDays <= 0 {
		return nil, utils.NewError(utils.KindValidation, "horizon must be positive, got %d days", horizonDays)
	}
	growth := utils.DereferencePtr(growthFactor, DefaultGrowthFactor)
	if !growth.IsPositive() {
		return nil, utils.NewError(utils.KindValidation, "growth factor must be positive, got %s", growth)
	}

	now := time.Now()
	lookback := now.AddDate(0, 0, -forecastWindowDays*forecastWindows)
	lines, err := models.GetSalesOrderLinesSince(ctx, productSku, lookback, now)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, utils.NewError(utils.KindNoData,
			"no sales history for %s in the last %d days", productSku, forecastWindowDays*forecastWindows)
	}

	var sums [forecastWindows]decimal.Decimal
	for _, line := range lines {
		daysAgo := int(now.Sub(line.OrderDate).Hours() / 24)
		window := daysAgo / forecastWindowDays
		if window < 0 || window >= forecastWindows {
			continue
		}
		sums[window] = sums[window].Add(line.Quantity)
	}

	return ComputeForecast(productSku, sums, horizonDays, growth), nil
}

// ComputeForecast is the pure projection step: per window, average daily
// demand is sum/30 and the projection is ceil(avg * horizon * growth), rounded
// up because suggested build quantities are whole units.
func ComputeForecast(productSku string, windowSums [forecastWindows]decimal.Decimal, horizonDays int, growth decimal.Decimal) *ForecastResult {
	labels := [forecastWindows]string{"0-30d", "30-60d", "60-90d"}
	days := decimal.NewFromInt(forecastWindowDays)
	horizon := decimal.NewFromInt(int64(horizonDays))

	result := ForecastResult{
		ProductSku:   productSku,
		HorizonDays:  horizonDays,
		GrowthFactor: growth,
		Windows:      make([]ForecastWindow, 0, forecastWindows),
	}
	for i, sum := range windowSums {
		avg := sum.Div(days)
		result.Windows = append(result.Windows, ForecastWindow{
			Label:          labels[i],
			TotalQty:       sum,
			AvgDailyDemand: avg,
			ProjectedQty:   avg.Mul(horizon).Mul(growth).Ceil(),
		})
	}
	return &result
}
