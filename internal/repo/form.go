package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/neopharm/pharmacy/internal/models"
)

// CreateFormFromCart turns the user's pending cart into a Form with one snapshot item per line
// and links the cart rows to it.
func (r *GormRepo) CreateFormFromCart(ctx context.Context, userID uint, form *models.Form) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lines []models.CartItem
		if err := pending(tx, userID).Clauses(clause.Locking{Strength: "UPDATE"}).Order("id ASC").Find(&lines).Error; err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		code, err := uniqueCode(tx, models.Form{}.TableName(), "form_id", "F")
		if err != nil {
			return err
		}
		form.Code = code
		form.DispensedByID = &userID
		form.TotalAmount = models.SumSubtotals(lines)
		form.Items = make([]models.FormItem, 0, len(lines))
		for _, ln := range lines {
			cat, _, _ := ln.Drug()
			form.Items = append(form.Items, models.FormItem{
				DrugName:   ln.Name,
				DrugBrand:  ln.Brand,
				DrugType:   cat.ItemType(),
				DosageForm: ln.DosageForm,
				Unit:       ln.Unit,
				Quantity:   ln.Quantity,
				Price:      ln.Price,
			})
		}
		if err := tx.Create(form).Error; err != nil {
			return err
		}

		ids := make([]uint, len(lines))
		for i, ln := range lines {
			ids[i] = ln.ID
		}
		return tx.Model(&models.CartItem{}).Where("id IN ?", ids).Update("form_id", form.ID).Error
	})
}

func (r *GormRepo) FormByCode(ctx context.Context, code string) (*models.Form, error) {
	var f models.Form
	err := r.DB.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("DispensedBy.Profile").
		Where("form_id = ?", code).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *GormRepo) ListForms(ctx context.Context, offset, limit int) (int64, []models.Form, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Form{}).Count(&total).Error; err != nil {
		return 0, nil, err
	}
	var list []models.Form
	if err := r.DB.WithContext(ctx).
		Preload("DispensedBy.Profile").
		Order("date DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&list).Error; err != nil {
		return 0, nil, err
	}
	return total, list, nil
}

func (r *GormRepo) UpdateFormBuyer(ctx context.Context, code, buyer, hospitalNo, ncapNo string) (*models.Form, error) {
	res := r.DB.WithContext(ctx).Model(&models.Form{}).Where("form_id = ?", code).
		Updates(map[string]any{"buyer_name": buyer, "hospital_no": hospitalNo, "ncap_no": ncapNo})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FormByCode(ctx, code)
}

func lockForm(tx *gorm.DB, code string) (*models.Form, error) {
	var f models.Form
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("form_id = ?", code).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// recalcTotal stores the sum of the form's item subtotals as its total.
func recalcTotal(tx *gorm.DB, formID uint) error {
	var items []models.FormItem
	if err := tx.Where("form_id = ?", formID).Find(&items).Error; err != nil {
		return err
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return tx.Model(&models.Form{}).Where("id = ?", formID).Update("total_amount", total).Error
}

func (r *GormRepo) AddFormItem(ctx context.Context, code string, item *models.FormItem) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := lockForm(tx, code)
		if err != nil {
			return err
		}
		item.ID = 0
		item.FormID = f.ID
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		return recalcTotal(tx, f.ID)
	})
}

func (r *GormRepo) FormItem(ctx context.Context, code string, itemID uint) (*models.FormItem, error) {
	var it models.FormItem
	err := r.DB.WithContext(ctx).
		Joins("JOIN pharmacy_form ON pharmacy_form.id = form_items.form_id").
		Where("pharmacy_form.form_id = ? AND form_items.id = ?", code, itemID).
		First(&it).Error
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *GormRepo) UpdateFormItem(ctx context.Context, code string, item *models.FormItem) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := lockForm(tx, code)
		if err != nil {
			return err
		}
		var existing models.FormItem
		if err := tx.Where("id = ? AND form_id = ?", item.ID, f.ID).First(&existing).Error; err != nil {
			return err
		}
		item.FormID = f.ID
		if err := tx.Save(item).Error; err != nil {
			return err
		}
		return recalcTotal(tx, f.ID)
	})
}

func (r *GormRepo) DeleteFormItem(ctx context.Context, code string, itemID uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := lockForm(tx, code)
		if err != nil {
			return err
		}
		res := tx.Where("id = ? AND form_id = ?", itemID, f.ID).Delete(&models.FormItem{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return recalcTotal(tx, f.ID)
	})
}

// FormTotals returns the number of forms and their summed totals, optionally since a time.
func (r *GormRepo) FormTotals(ctx context.Context, since *time.Time) (int64, decimal.Decimal, error) {
	q := r.DB.WithContext(ctx).Model(&models.Form{})
	if since != nil {
		q = q.Where("date >= ?", *since)
	}
	var list []models.Form
	if err := q.Select("id", "total_amount").Find(&list).Error; err != nil {
		return 0, decimal.Zero, err
	}
	total := decimal.Zero
	for _, f := range list {
		total = total.Add(f.TotalAmount)
	}
	return int64(len(list)), total, nil
}

// FormsSince returns forms dated at or after since, oldest first, without items.
func (r *GormRepo) FormsSince(ctx context.Context, since time.Time) ([]models.Form, error) {
	var list []models.Form
	if err := r.DB.WithContext(ctx).Where("date >= ?", since).Order("date ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// FormItemsSince returns the items of forms dated at or after since.
func (r *GormRepo) FormItemsSince(ctx context.Context, since time.Time) ([]models.FormItem, error) {
	var list []models.FormItem
	if err := r.DB.WithContext(ctx).
		Joins("JOIN pharmacy_form ON pharmacy_form.id = form_items.form_id").
		Where("pharmacy_form.date >= ?", since).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
