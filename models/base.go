package models

import (
	"errors"

	"github.com/mmdatafocus/mfg_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MigrateTable auto-migrates the full schema. Call once from main() (or a
// test fixture) after the DB connection is established.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&InventoryItem{},
		&InventoryBatch{},
		&StockReservation{},
		&Mmr{},
		&MmrStep{},
		&MmrSubStep{},
		&MmrIngredient{},
		&MmrEquipment{},
		&ProductionOrder{},
		&ProductionStep{},
		&ProductionSubStep{},
		&SkuMapping{},
		&SalesOrderLine{},
		&Supplier{},
		&PurchaseOrder{},
		&PurchaseOrderItem{},
	)
}

// LockForUpdate adds a row lock to the query on stores that support it.
// SQLite (tests) is single-writer and rejects FOR UPDATE, so it is skipped there.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// mapGormError folds gorm's not-found sentinel into our kinded error.
func mapGormError(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NewError(utils.KindNotFound, format, args...)
	}
	return err
}
