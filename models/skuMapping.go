package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/mmdatafocus/mfg_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SkuMapping links a sales channel's SKU to an internal one. Many platform
// SKUs may map to the same internal SKU. InternalSku stays null until the
// mapping is at least suggested.
type SkuMapping struct {
	ID          int              `gorm:"primary_key" json:"id"`
	Platform    string           `gorm:"size:50;uniqueIndex:idx_mapping_platform_sku,priority:1;not null" json:"platform"`
	PlatformSku string           `gorm:"size:100;uniqueIndex:idx_mapping_platform_sku,priority:2;not null" json:"platform_sku"`
	InternalSku *string          `gorm:"size:100;index" json:"internal_sku"`
	Confidence  decimal.Decimal  `gorm:"type:decimal(5,4);default:0" json:"confidence"`
	Status      SkuMappingStatus `gorm:"size:20;index;default:unmapped" json:"status"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// UpsertSkuMapping registers a platform SKU sighting. Existing rows keep their
// resolution state.
func UpsertSkuMapping(ctx context.Context, platform string, platformSku string) (*SkuMapping, error) {
	db := config.GetDB()

	if platform == "" || platformSku == "" {
		return nil, utils.NewError(utils.KindValidation, "platform and platform SKU are required")
	}

	mapping := SkuMapping{
		Platform:    platform,
		PlatformSku: platformSku,
		Status:      SkuMappingStatusUnmapped,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&mapping).Error
	if err != nil {
		return nil, err
	}
	return getSkuMapping(db.WithContext(ctx), platform, platformSku)
}

// SuggestSkuMapping records a candidate internal SKU with a confidence score.
// Confirmed mappings are not downgraded.
func SuggestSkuMapping(ctx context.Context, platform string, platformSku string, internalSku string, confidence decimal.Decimal) (*SkuMapping, error) {
	db := config.GetDB()

	if confidence.IsNegative() || confidence.GreaterThan(decimal.NewFromInt(1)) {
		return nil, utils.NewError(utils.KindValidation, "confidence must be in [0,1], got %s", confidence)
	}
	if _, err := GetInventoryItem(ctx, internalSku); err != nil {
		return nil, err
	}

	mapping, err := getSkuMapping(db.WithContext(ctx), platform, platformSku)
	if err != nil {
		return nil, err
	}
	if mapping.Status == SkuMappingStatusConfirmed {
		return nil, utils.NewError(utils.KindConflict,
			"mapping %s/%s is already confirmed", platform, platformSku)
	}

	err = db.WithContext(ctx).Model(mapping).Updates(map[string]any{
		"internal_sku": internalSku,
		"confidence":   confidence,
		"status":       SkuMappingStatusSuggested,
	}).Error
	if err != nil {
		return nil, err
	}
	return getSkuMapping(db.WithContext(ctx), platform, platformSku)
}

// ConfirmSkuMapping pins the mapping to an internal SKU with full confidence.
func ConfirmSkuMapping(ctx context.Context, platform string, platformSku string, internalSku string) (*SkuMapping, error) {
	db := config.GetDB()

	if _, err := GetInventoryItem(ctx, internalSku); err != nil {
		return nil, err
	}
	mapping, err := getSkuMapping(db.WithContext(ctx), platform, platformSku)
	if err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Model(mapping).Updates(map[string]any{
		"internal_sku": internalSku,
		"confidence":   decimal.NewFromInt(1),
		"status":       SkuMappingStatusConfirmed,
	}).Error
	if err != nil {
		return nil, err
	}
	return getSkuMapping(db.WithContext(ctx), platform, platformSku)
}

// ResolveInternalSku returns the confirmed internal SKU for a platform SKU.
func ResolveInternalSku(ctx context.Context, platform string, platformSku string) (string, error) {
	db := config.GetDB()

	mapping, err := getSkuMapping(db.WithContext(ctx), platform, platformSku)
	if err != nil {
		return "", err
	}
	if mapping.Status != SkuMappingStatusConfirmed || mapping.InternalSku == nil {
		return "", utils.NewError(utils.KindNotFound,
			"no confirmed mapping for %s/%s", platform, platformSku)
	}
	return *mapping.InternalSku, nil
}

func getSkuMapping(tx *gorm.DB, platform string, platformSku string) (*SkuMapping, error) {
	var mapping SkuMapping
	err := tx.Where("platform = ? AND platform_sku = ?", platform, platformSku).
		First(&mapping).Error
	if err != nil {
		return nil, mapGormError(err, "no mapping for %s/%s", platform, platformSku)
	}
	return &mapping, nil
}
