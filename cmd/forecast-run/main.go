package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/mmdatafocus/mfg_backend/utils"
	"github.com/mmdatafocus/mfg_backend/workflow"
	"github.com/shopspring/decimal"
)

// forecast-run prints the three trailing-window demand projections for a SKU,
// the numbers the admin UI shows when suggesting a production quantity.
//
// Example:
//
//	go run ./cmd/forecast-run/ -sku=P-1011 -horizon=30 -growth=1.1
func main() {
	sku := flag.String("sku", "", "Required: product SKU")
	horizon := flag.Int("horizon", 30, "Projection horizon in days")
	growth := flag.String("growth", "", "Growth factor override (default 1.10)")
	flag.Parse()

	if strings.TrimSpace(*sku) == "" {
		fmt.Fprintln(os.Stderr, "--sku is required")
		os.Exit(1)
	}

	var growthFactor *decimal.Decimal
	if strings.TrimSpace(*growth) != "" {
		g, err := utils.ParseDecimal(*growth)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --growth: %v\n", err)
			os.Exit(1)
		}
		growthFactor = &g
	}

	config.ConnectDatabaseWithRetry()

	result, err := workflow.EstimateDemand(context.Background(), *sku, *horizon, growthFactor)
	if err != nil {
		if utils.IsKind(err, utils.KindNoData) {
			fmt.Printf("no sales history for %s in the lookback range\n", *sku)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "estimate: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("forecast for %s over %d days (growth %s):\n",
		result.ProductSku, result.HorizonDays, result.GrowthFactor)
	for _, w := range result.Windows {
		fmt.Printf("  window %-7s sold=%-10s avg/day=%-10s projected=%s\n",
			w.Label, w.TotalQty, w.AvgDailyDemand.Round(4), w.ProjectedQty)
	}
}
