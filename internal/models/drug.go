package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Category string

const (
	CategoryLpacemaker Category = "lpacemaker"
	CategoryNcap       Category = "ncap"
	CategoryOncology   Category = "oncology"
)

var ErrInvalidCategory = errors.New("invalid drug type")

// Categories is the fixed display order used by every listing.
var Categories = []Category{CategoryLpacemaker, CategoryNcap, CategoryOncology}

func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryLpacemaker:
		return CategoryLpacemaker, nil
	case CategoryNcap:
		return CategoryNcap, nil
	case CategoryOncology:
		return CategoryOncology, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c Category) Table() string {
	switch c {
	case CategoryLpacemaker:
		return "lpacemaker_drugs"
	case CategoryNcap:
		return "ncap_drugs"
	case CategoryOncology:
		return "oncology_drugs"
	}
	return ""
}

func (c Category) Label() string {
	switch c {
	case CategoryLpacemaker:
		return "Lpacemaker"
	case CategoryNcap:
		return "NCAP"
	case CategoryOncology:
		return "Oncology"
	}
	return string(c)
}

// ItemType is the value stored on form items.
func (c Category) ItemType() string { return strings.ToUpper(string(c)) }

var DosageForms = []string{
	"Tablet", "Capsule", "Cream", "Consumable", "Injection", "Infusion", "Inhaler",
	"Suspension", "Syrup", "Eye-drop", "Ear-drop", "Eye-ointment", "Rectal", "Vaginal",
}

var Units = []string{
	"Amp", "Bottle", "Tab", "Tin", "Caps", "Card", "Carton", "Pack", "Packet",
	"Pcs", "Pieces", "Roll", "Vail", "1L", "2L", "4L",
}

var Markups = []int{5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 65, 70, 75, 80, 85, 90, 100}

const DefaultMarkup = 10

func ValidMarkup(m int) bool {
	for _, v := range Markups {
		if v == m {
			return true
		}
	}
	return false
}

func ValidChoice(v string, choices []string) bool {
	if v == "" {
		return true
	}
	for _, c := range choices {
		if c == v {
			return true
		}
	}
	return false
}

// Drug is stored in one table per Category; callers pick the table with db.Table(cat.Table()).
type Drug struct {
	ID         uint            `gorm:"primaryKey"                              json:"id"`
	Name       string          `gorm:"size:200;not null;index"                 json:"name"`
	DosageForm string          `gorm:"size:200"                                json:"dosage_form"`
	Brand      string          `gorm:"size:200"                                json:"brand"`
	Unit       string          `gorm:"size:200"                                json:"unit"`
	Cost       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"   json:"cost"`
	Markup     int             `gorm:"not null;default:10"                     json:"markup"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"   json:"price"`
	Stock      int             `gorm:"not null;default:0"                      json:"stock"`
	ExpDate    *time.Time      `gorm:"type:date"                               json:"exp_date"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`

	Category Category `gorm:"-" json:"type,omitempty"`
}

func (d *Drug) BeforeSave(tx *gorm.DB) error {
	d.Normalize(tx.NowFunc())
	return nil
}

// Normalize applies the pricing and expiry rules that hold for every stored drug.
func (d *Drug) Normalize(now time.Time) {
	if d.IsExpired(now) {
		d.Stock = 0
	}
	if d.Cost.IsPositive() && d.Markup > 0 {
		d.Price = PriceFor(d.Cost, d.Markup)
	}
	if d.Stock < 0 {
		d.Stock = 0
	}
}

func PriceFor(cost decimal.Decimal, markup int) decimal.Decimal {
	factor := decimal.NewFromInt(100 + int64(markup)).Div(decimal.NewFromInt(100))
	return cost.Mul(factor).Round(2)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (d *Drug) IsExpired(now time.Time) bool {
	if d.ExpDate == nil {
		return false
	}
	return dateOf(*d.ExpDate).Before(dateOf(now))
}

func (d *Drug) DaysToExpiry(now time.Time) int {
	if d.ExpDate == nil {
		return 0
	}
	return int(dateOf(*d.ExpDate).Sub(dateOf(now)).Hours() / 24)
}

func (d *Drug) ExpirationStatus(now time.Time) string {
	if d.ExpDate == nil {
		return "No expiry date"
	}
	if d.IsExpired(now) {
		return "Expired on " + d.ExpDate.Format(time.DateOnly)
	}
	days := d.DaysToExpiry(now)
	if days <= 7 {
		return fmt.Sprintf("Expires soon (%d days)", days)
	}
	return "Valid until " + d.ExpDate.Format(time.DateOnly)
}

// StockValue is price times stock.
func (d *Drug) StockValue() decimal.Decimal {
	return d.Price.Mul(decimal.NewFromInt(int64(d.Stock)))
}

func (d *Drug) String() string {
	return strings.TrimSpace(d.Name + " " + d.Brand)
}
