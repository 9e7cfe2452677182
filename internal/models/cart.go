package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CartItem points at exactly one drug through one of the three category keys.
// FormID is nil while the item is still in the user's pending cart.
type CartItem struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserID   uint   `gorm:"index;not null" json:"user_id"`
	FormID   *uint  `gorm:"index" json:"form_id"`
	CartCode string `gorm:"column:cart_id;size:50;uniqueIndex;not null" json:"cart_id"`

	LpacemakerDrugID *uint `gorm:"index" json:"lpacemaker_drug_id,omitempty"`
	NcapDrugID       *uint `gorm:"index" json:"ncap_drug_id,omitempty"`
	OncologyDrugID   *uint `gorm:"index" json:"oncology_drug_id,omitempty"`

	Name       string          `gorm:"size:200"                              json:"name"`
	Brand      string          `gorm:"size:200"                              json:"brand"`
	DosageForm string          `gorm:"size:200"                              json:"dosage_form"`
	Unit       string          `gorm:"size:200"                              json:"unit"`
	Quantity   int             `gorm:"not null;default:1"                    json:"quantity"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	Subtotal   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"subtotal"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (ci *CartItem) BeforeSave(tx *gorm.DB) error {
	ci.Subtotal = ci.Price.Mul(decimal.NewFromInt(int64(ci.Quantity)))
	return nil
}

func (ci *CartItem) SetDrug(cat Category, id uint) {
	ci.LpacemakerDrugID, ci.NcapDrugID, ci.OncologyDrugID = nil, nil, nil
	switch cat {
	case CategoryLpacemaker:
		ci.LpacemakerDrugID = &id
	case CategoryNcap:
		ci.NcapDrugID = &id
	case CategoryOncology:
		ci.OncologyDrugID = &id
	}
}

// Drug returns the category and id of the referenced drug; ok is false for a dangling item.
func (ci *CartItem) Drug() (Category, uint, bool) {
	switch {
	case ci.LpacemakerDrugID != nil:
		return CategoryLpacemaker, *ci.LpacemakerDrugID, true
	case ci.NcapDrugID != nil:
		return CategoryNcap, *ci.NcapDrugID, true
	case ci.OncologyDrugID != nil:
		return CategoryOncology, *ci.OncologyDrugID, true
	}
	return "", 0, false
}

// DrugColumn is the cart_items column that references drugs of cat.
func DrugColumn(cat Category) string {
	switch cat {
	case CategoryLpacemaker:
		return "lpacemaker_drug_id"
	case CategoryNcap:
		return "ncap_drug_id"
	case CategoryOncology:
		return "oncology_drug_id"
	}
	return ""
}

func SumSubtotals(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total
}
