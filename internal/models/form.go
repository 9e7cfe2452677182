package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Form is a dispense receipt. Code is the public "F12345" identifier used in URLs.
type Form struct {
	ID            uint            `gorm:"primaryKey"                                json:"id"`
	Code          string          `gorm:"column:form_id;size:50;uniqueIndex;not null" json:"form_id"`
	BuyerName     string          `gorm:"size:255"                                  json:"buyer_name"`
	HospitalNo    string          `gorm:"size:100"                                  json:"hospital_no"`
	NcapNo        string          `gorm:"size:100"                                  json:"ncap_no"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"     json:"total_amount"`
	Date          time.Time       `gorm:"autoCreateTime;index"                      json:"date"`
	DispensedByID *uint           `gorm:"index"                                     json:"dispensed_by_id"`
	DispensedBy   *User           `gorm:"foreignKey:DispensedByID;constraint:OnDelete:SET NULL" json:"dispensed_by,omitempty"`
	Items         []FormItem      `gorm:"constraint:OnDelete:CASCADE"               json:"items,omitempty"`
}

func (Form) TableName() string { return "pharmacy_form" }

type FormItem struct {
	ID         uint            `gorm:"primaryKey"                            json:"id"`
	FormID     uint            `gorm:"index;not null"                        json:"form_id"`
	DrugName   string          `gorm:"size:255;not null"                     json:"drug_name"`
	DrugBrand  string          `gorm:"size:255"                              json:"drug_brand"`
	DrugType   string          `gorm:"size:50;not null"                      json:"drug_type"`
	DosageForm string          `gorm:"size:200"                              json:"dosage_form"`
	Unit       string          `gorm:"size:50"                               json:"unit"`
	Quantity   int             `gorm:"not null"                              json:"quantity"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null"           json:"price"`
	Subtotal   decimal.Decimal `gorm:"type:decimal(12,2);not null"           json:"subtotal"`
}

func (fi *FormItem) BeforeSave(tx *gorm.DB) error {
	fi.Subtotal = fi.Price.Mul(decimal.NewFromInt(int64(fi.Quantity)))
	return nil
}

var FormItemTypes = []string{"LPACEMAKER", "NCAP", "ONCOLOGY"}
