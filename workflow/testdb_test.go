package workflow_test

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/mmdatafocus/mfg_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB swaps the global connection for a fresh in-memory SQLite store.
// Capped at one connection so every session sees the same memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	config.SetDB(db)
	return db
}

func seedItem(t *testing.T, sku string, category string, stock decimal.Decimal) *models.InventoryItem {
	t.Helper()

	item, err := models.CreateInventoryItem(context.Background(), &models.NewInventoryItem{
		Sku:        sku,
		Name:       "Test " + sku,
		Category:   category,
		Unit:       "kg",
		StockLevel: stock,
	})
	if err != nil {
		t.Fatalf("seed item %s: %v", sku, err)
	}
	return item
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()

	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func availableFor(t *testing.T, db *gorm.DB, sku string) decimal.Decimal {
	t.Helper()

	stock, err := models.GetStock(context.Background(), sku)
	if err != nil {
		t.Fatalf("get stock %s: %v", sku, err)
	}
	reserved, err := models.ActiveReservedSum(db, sku)
	if err != nil {
		t.Fatalf("reserved sum %s: %v", sku, err)
	}
	return stock.Sub(reserved)
}
