package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/mmdatafocus/mfg_backend/models"
)

// stock-inspect prints the full ledger state for a single SKU (item row, batch
// rows oldest-first, reservations) so you can see exactly where availability
// went. It also flags items whose item-level stock field disagrees with the
// batch sum, a leftover from pre-batch data.
//
// Example:
//
//	go run ./cmd/stock-inspect/ -sku=RAW-1
func main() {
	sku := flag.String("sku", "", "Required: inventory item SKU")
	flag.Parse()

	if strings.TrimSpace(*sku) == "" {
		fmt.Fprintln(os.Stderr, "--sku is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()

	item, err := models.GetInventoryItem(ctx, *sku)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load item: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("item sku=%s name=%q category=%s unit=%s active=%v\n",
		item.Sku, item.Name, item.Category, item.Unit, *item.IsActive)
	fmt.Printf("item-level stock (fallback): %s  minimum: %s\n",
		item.StockLevel, item.MinimumLevel)

	var batches []models.InventoryBatch
	if err := db.Where("sku = ?", *sku).Order("created_at asc, id asc").Find(&batches).Error; err != nil {
		fmt.Fprintf(os.Stderr, "load batches: %v\n", err)
		os.Exit(1)
	}
	batchSum, _, err := models.BatchStockSum(db, *sku)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sum batches: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("batches: %d (sum=%s)\n", len(batches), batchSum)
	for _, b := range batches {
		fmt.Printf("  batch=%s stock=%s created=%s\n", b.BatchNumber, b.StockLevel, b.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if len(batches) > 0 && !batchSum.Equal(item.StockLevel) && !item.StockLevel.IsZero() {
		fmt.Printf("WARNING: item-level stock %s disagrees with batch sum %s (batch sum is authoritative)\n",
			item.StockLevel, batchSum)
	}

	var reservations []models.StockReservation
	if err := db.Where("sku = ?", *sku).Order("created_at asc").Find(&reservations).Error; err != nil {
		fmt.Fprintf(os.Stderr, "load reservations: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("reservations: %d\n", len(reservations))
	for _, r := range reservations {
		orderRef := "-"
		if r.ProductionOrderId != nil {
			orderRef = fmt.Sprintf("order %d", *r.ProductionOrderId)
		}
		fmt.Printf("  token=%s qty=%s state=%s ref=%s\n", r.ID, r.Quantity, r.State, orderRef)
	}

	stock, err := models.GetStock(ctx, *sku)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get stock: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("authoritative stock: %s\n", stock)
}
