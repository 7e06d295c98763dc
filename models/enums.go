package models

import (
	"strings"
)

// ItemCategory is a closed enumeration, normalized at write time.
// Legacy data carried free-form strings ("Finished Good", "finished good");
// NormalizeItemCategory folds those into the canonical form.
type ItemCategory string

const (
	ItemCategoryRawIngredient ItemCategory = "raw_ingredient"
	ItemCategoryPackaging     ItemCategory = "packaging"
	ItemCategoryLabel         ItemCategory = "label"
	ItemCategoryComponent     ItemCategory = "component"
	ItemCategoryFinishedGood  ItemCategory = "finished_good"
)

func NormalizeItemCategory(raw string) (ItemCategory, bool) {
	folded := strings.ToLower(strings.TrimSpace(raw))
	folded = strings.ReplaceAll(folded, " ", "_")
	folded = strings.ReplaceAll(folded, "-", "_")
	category := ItemCategory(folded)
	switch category {
	case ItemCategoryRawIngredient, ItemCategoryPackaging, ItemCategoryLabel,
		ItemCategoryComponent, ItemCategoryFinishedGood:
		return category, true
	}
	return "", false
}

type ProductionOrderStatus string

const (
	OrderStatusPending    ProductionOrderStatus = "pending"
	OrderStatusInProgress ProductionOrderStatus = "in_progress"
	OrderStatusCompleted  ProductionOrderStatus = "completed"
	OrderStatusCancelled  ProductionOrderStatus = "cancelled"
)

// IsTerminal reports whether no transition may leave the status.
func (s ProductionOrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type ReservationState string

const (
	ReservationStateActive   ReservationState = "active"
	ReservationStateConsumed ReservationState = "consumed"
	ReservationStateReleased ReservationState = "released"
)

type SkuMappingStatus string

const (
	SkuMappingStatusUnmapped  SkuMappingStatus = "unmapped"
	SkuMappingStatusSuggested SkuMappingStatus = "suggested"
	SkuMappingStatusConfirmed SkuMappingStatus = "confirmed"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft     PurchaseOrderStatus = "draft"
	PurchaseOrderStatusOrdered   PurchaseOrderStatus = "ordered"
	PurchaseOrderStatusReceived  PurchaseOrderStatus = "received"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "cancelled"
)
