package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/mmdatafocus/mfg_backend/config"
	"github.com/mmdatafocus/mfg_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Mmr is one immutable version of a product's Master Manufacturing Record:
// the bill of materials plus procedure. "Editing" an MMR materializes the next
// version; prior versions are never mutated, and at most one version per
// product SKU is active at a time.
type Mmr struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ProductSku   string          `gorm:"size:100;uniqueIndex:idx_mmr_sku_version,priority:1;not null" json:"product_sku"`
	Version      int             `gorm:"uniqueIndex:idx_mmr_sku_version,priority:2;not null" json:"version"`
	BaseQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"base_quantity"`
	IsActive     *bool           `gorm:"default:false;index" json:"is_active"`
	CreatedBy    string          `gorm:"size:100" json:"created_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`

	Steps       []MmrStep       `gorm:"foreignKey:MmrId" json:"steps"`
	SubSteps    []MmrSubStep    `gorm:"foreignKey:MmrId" json:"sub_steps"`
	Ingredients []MmrIngredient `gorm:"foreignKey:MmrId" json:"ingredients"`
	Equipment   []MmrEquipment  `gorm:"foreignKey:MmrId" json:"equipment"`
}

type MmrStep struct {
	ID            int      `gorm:"primary_key" json:"id"`
	MmrId         int      `gorm:"index;not null" json:"mmr_id"`
	StepNumber    int      `gorm:"not null" json:"step_number"`
	Description   string   `gorm:"type:text" json:"description"`
	QualityChecks []string `gorm:"serializer:json" json:"quality_checks"`
}

type MmrSubStep struct {
	ID             int    `gorm:"primary_key" json:"id"`
	MmrId          int    `gorm:"index;not null" json:"mmr_id"`
	MainStepNumber int    `gorm:"not null" json:"main_step_number"`
	SubStepNumber  int    `gorm:"not null" json:"sub_step_number"`
	StepType       string `gorm:"size:50" json:"step_type"`
	Description    string `gorm:"type:text" json:"description"`
}

type MmrIngredient struct {
	ID            int             `gorm:"primary_key" json:"id"`
	MmrId         int             `gorm:"index;not null" json:"mmr_id"`
	IngredientSku string          `gorm:"size:100;not null" json:"ingredient_sku"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Unit          string          `gorm:"size:30" json:"unit"`
}

type MmrEquipment struct {
	ID    int    `gorm:"primary_key" json:"id"`
	MmrId int    `gorm:"index;not null" json:"mmr_id"`
	Name  string `gorm:"size:255;not null" json:"name"`
}

type NewMmrStep struct {
	StepNumber    int      `json:"step_number" validate:"required,min=1"`
	Description   string   `json:"description" validate:"required"`
	QualityChecks []string `json:"quality_checks"`
}

type NewMmrSubStep struct {
	MainStepNumber int    `json:"main_step_number" validate:"required,min=1"`
	SubStepNumber  int    `json:"sub_step_number" validate:"required,min=1"`
	StepType       string `json:"step_type" validate:"required,max=50"`
	Description    string `json:"description"`
}

type NewMmrIngredient struct {
	IngredientSku string          `json:"ingredient_sku" validate:"required,max=100"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit" validate:"max=30"`
}

type NewMmrVersion struct {
	ProductSku   string             `json:"product_sku" validate:"required,max=100"`
	BaseQuantity decimal.Decimal    `json:"base_quantity"`
	CreatedBy    string             `json:"created_by" validate:"required,max=100"`
	Steps        []NewMmrStep       `json:"steps" validate:"required,min=1,dive"`
	SubSteps     []NewMmrSubStep    `json:"sub_steps" validate:"dive"`
	Ingredients  []NewMmrIngredient `json:"ingredients" validate:"dive"`
	Equipment    []string           `json:"equipment"`
}

func (input *NewMmrVersion) validate() error {
	if err := utils.ValidateInput(input); err != nil {
		return err
	}
	if !input.BaseQuantity.IsPositive() {
		return utils.NewError(utils.KindValidation, "base quantity must be positive, got %s", input.BaseQuantity)
	}

	// Step numbers must be exactly 1..N with no duplicates.
	numbers := make([]int, 0, len(input.Steps))
	for _, step := range input.Steps {
		numbers = append(numbers, step.StepNumber)
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			return utils.NewError(utils.KindValidation,
				"step numbers must be sequential starting at 1, got %v", numbers)
		}
	}

	stepSet := make(map[int]struct{}, len(input.Steps))
	for _, step := range input.Steps {
		stepSet[step.StepNumber] = struct{}{}
	}
	subSeen := make(map[[2]int]struct{}, len(input.SubSteps))
	for _, sub := range input.SubSteps {
		if _, ok := stepSet[sub.MainStepNumber]; !ok {
			return utils.NewError(utils.KindValidation,
				"sub-step %d references non-existent main step %d", sub.SubStepNumber, sub.MainStepNumber)
		}
		key := [2]int{sub.MainStepNumber, sub.SubStepNumber}
		if _, dup := subSeen[key]; dup {
			return utils.NewError(utils.KindValidation,
				"duplicate sub-step %d under main step %d", sub.SubStepNumber, sub.MainStepNumber)
		}
		subSeen[key] = struct{}{}
	}

	for _, ing := range input.Ingredients {
		if !ing.Quantity.IsPositive() {
			return utils.NewError(utils.KindValidation,
				"ingredient %s quantity must be positive, got %s", ing.IngredientSku, ing.Quantity)
		}
	}
	return nil
}

// CreateMmrVersion persists a new immutable MMR snapshot as the next version
// for the product SKU and atomically moves the active flag onto it.
func CreateMmrVersion(ctx context.Context, input *NewMmrVersion) (*Mmr, error) {
	db := config.GetDB()

	if err := input.validate(); err != nil {
		return nil, err
	}

	var created *Mmr
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev Mmr
		nextVersion := 1
		err := LockForUpdate(tx).
			Where("product_sku = ?", input.ProductSku).
			Order("version desc").
			First(&prev).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			nextVersion = prev.Version + 1
		}

		// Single transaction: there is never a window with zero or two active versions.
		if err := tx.Model(&Mmr{}).
			Where("product_sku = ? AND is_active = ?", input.ProductSku, true).
			Update("is_active", false).Error; err != nil {
			return err
		}

		mmr := Mmr{
			ProductSku:   input.ProductSku,
			Version:      nextVersion,
			BaseQuantity: utils.RoundQuantity(input.BaseQuantity),
			IsActive:     utils.NewTrue(),
			CreatedBy:    input.CreatedBy,
		}
		for _, step := range input.Steps {
			mmr.Steps = append(mmr.Steps, MmrStep{
				StepNumber:    step.StepNumber,
				Description:   step.Description,
				QualityChecks: step.QualityChecks,
			})
		}
		for _, sub := range input.SubSteps {
			mmr.SubSteps = append(mmr.SubSteps, MmrSubStep{
				MainStepNumber: sub.MainStepNumber,
				SubStepNumber:  sub.SubStepNumber,
				StepType:       sub.StepType,
				Description:    sub.Description,
			})
		}
		for _, ing := range input.Ingredients {
			mmr.Ingredients = append(mmr.Ingredients, MmrIngredient{
				IngredientSku: ing.IngredientSku,
				Quantity:      utils.RoundQuantity(ing.Quantity),
				Unit:          ing.Unit,
			})
		}
		for _, name := range input.Equipment {
			mmr.Equipment = append(mmr.Equipment, MmrEquipment{Name: name})
		}

		if err := tx.Create(&mmr).Error; err != nil {
			return err
		}
		created = &mmr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func preloadMmr(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_number asc") }).
		Preload("SubSteps", func(db *gorm.DB) *gorm.DB { return db.Order("main_step_number asc, sub_step_number asc") }).
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB { return db.Order("ingredient_sku asc") }).
		Preload("Equipment")
}

// ResolveMmr loads the requested version, or the active version when version
// is nil, inside the caller's transaction.
func ResolveMmr(tx *gorm.DB, productSku string, version *int) (*Mmr, error) {
	var mmr Mmr
	query := preloadMmr(tx).Where("product_sku = ?", productSku)
	if version != nil {
		query = query.Where("version = ?", *version)
	} else {
		query = query.Where("is_active = ?", true)
	}
	if err := query.First(&mmr).Error; err != nil {
		if version != nil {
			return nil, mapGormError(err, "MMR %s v%d not found", productSku, *version)
		}
		return nil, mapGormError(err, "no active MMR for %s", productSku)
	}
	return &mmr, nil
}

func GetActiveMmr(ctx context.Context, productSku string) (*Mmr, error) {
	db := config.GetDB()

	var mmr Mmr
	err := preloadMmr(db.WithContext(ctx)).
		Where("product_sku = ? AND is_active = ?", productSku, true).
		First(&mmr).Error
	if err != nil {
		return nil, mapGormError(err, "no active MMR for %s", productSku)
	}
	return &mmr, nil
}

func GetMmrVersion(ctx context.Context, productSku string, version int) (*Mmr, error) {
	db := config.GetDB()

	var mmr Mmr
	err := preloadMmr(db.WithContext(ctx)).
		Where("product_sku = ? AND version = ?", productSku, version).
		First(&mmr).Error
	if err != nil {
		return nil, mapGormError(err, "MMR %s v%d not found", productSku, version)
	}
	return &mmr, nil
}

// DeactivateMmr turns a version's active flag off. The record itself is kept;
// versions are never deleted. Deactivating the only active version requires a
// replacement version activated in the same transaction, so a product cannot
// silently lose its active record.
func DeactivateMmr(ctx context.Context, productSku string, version int, replacementVersion *int) error {
	db := config.GetDB()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target Mmr
		err := LockForUpdate(tx).
			Where("product_sku = ? AND version = ?", productSku, version).
			First(&target).Error
		if err != nil {
			return mapGormError(err, "MMR %s v%d not found", productSku, version)
		}
		if !utils.DereferencePtr(target.IsActive) {
			return nil
		}

		if replacementVersion == nil {
			return utils.NewError(utils.KindConflict,
				"MMR %s v%d is the only active version; supply a replacement", productSku, version)
		}
		var replacement Mmr
		err = LockForUpdate(tx).
			Where("product_sku = ? AND version = ?", productSku, *replacementVersion).
			First(&replacement).Error
		if err != nil {
			return mapGormError(err, "replacement MMR %s v%d not found", productSku, *replacementVersion)
		}
		if replacement.ID == target.ID {
			return utils.NewError(utils.KindValidation,
				"replacement version must differ from the deactivated version")
		}

		if err := tx.Model(&Mmr{}).Where("id = ?", target.ID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&Mmr{}).Where("id = ?", replacement.ID).
			Update("is_active", true).Error
	})
}
