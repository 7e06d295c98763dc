package models_test

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

func seedItem(t *testing.T, sku string, category string) *models.InventoryItem {
	t.Helper()

	item, err := models.CreateInventoryItem(context.Background(), &models.NewInventoryItem{
		Sku:      sku,
		Name:     "Test " + sku,
		Category: category,
		Unit:     "pcs",
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
