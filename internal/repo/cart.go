package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/neopharm/pharmacy/internal/models"
)

func pending(tx *gorm.DB, userID uint) *gorm.DB {
	return tx.Model(&models.CartItem{}).Where("user_id = ? AND form_id IS NULL", userID)
}

func (r *GormRepo) PendingCart(ctx context.Context, userID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	if err := pending(r.DB.WithContext(ctx), userID).Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) CountPending(ctx context.Context, userID uint) (int64, error) {
	var n int64
	if err := pending(r.DB.WithContext(ctx), userID).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// AddToCart takes qty units of the drug out of stock and puts them in the user's
// pending cart, merging with an existing line for the same drug.
func (r *GormRepo) AddToCart(ctx context.Context, userID uint, cat models.Category, drugID uint, qty int, now time.Time) (*models.Drug, *models.CartItem, error) {
	var (
		drug *models.Drug
		item models.CartItem
	)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := lockDrug(tx, cat, drugID)
		if err != nil {
			return err
		}
		if d.IsExpired(now) {
			return ErrDrugExpired
		}
		if d.Stock < qty {
			return ErrInsufficientStock
		}

		err = pending(tx, userID).Where(models.DrugColumn(cat)+" = ?", drugID).First(&item).Error
		switch {
		case err == nil:
			item.Quantity += qty
			if err := tx.Save(&item).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			code, err := uniqueCode(tx, "cart_items", "cart_id", "CID: ")
			if err != nil {
				return err
			}
			item = models.CartItem{
				UserID:     userID,
				CartCode:   code,
				Name:       d.Name,
				Brand:      d.Brand,
				DosageForm: d.DosageForm,
				Unit:       d.Unit,
				Quantity:   qty,
				Price:      d.Price,
			}
			item.SetDrug(cat, drugID)
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if err := setStock(tx, cat, d, d.Stock-qty, now); err != nil {
			return err
		}
		drug = d
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return drug, &item, nil
}

// UpdateCartQuantity sets a pending line to qty and moves the difference in or out of stock.
// qty <= 0 removes the line and restores its stock.
func (r *GormRepo) UpdateCartQuantity(ctx context.Context, userID, itemID uint, qty int, now time.Time) (*models.CartItem, bool, error) {
	var (
		item    models.CartItem
		removed bool
	)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := pending(tx, userID).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", itemID).First(&item).Error; err != nil {
			return err
		}
		cat, drugID, ok := item.Drug()

		if qty <= 0 {
			if ok {
				if err := restoreLine(tx, cat, drugID, item.Quantity, now); err != nil {
					return err
				}
			}
			removed = true
			return tx.Delete(&item).Error
		}

		if !ok {
			return gorm.ErrRecordNotFound
		}
		d, err := lockDrug(tx, cat, drugID)
		if err != nil {
			return err
		}
		delta := qty - item.Quantity
		if delta > 0 && d.IsExpired(now) {
			return ErrDrugExpired
		}
		if delta > 0 && d.Stock < delta {
			return ErrInsufficientStock
		}
		if delta != 0 {
			if err := setStock(tx, cat, d, d.Stock-delta, now); err != nil {
				return err
			}
		}
		item.Quantity = qty
		return tx.Save(&item).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &item, removed, nil
}

func (r *GormRepo) RemoveCartItem(ctx context.Context, userID, itemID uint, now time.Time) (*models.CartItem, error) {
	var item models.CartItem
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := pending(tx, userID).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", itemID).First(&item).Error; err != nil {
			return err
		}
		if cat, drugID, ok := item.Drug(); ok {
			if err := restoreLine(tx, cat, drugID, item.Quantity, now); err != nil {
				return err
			}
		}
		return tx.Delete(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ClearCart restores stock for every pending line of the user and deletes them.
func (r *GormRepo) ClearCart(ctx context.Context, userID uint, now time.Time) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return clearCart(tx, userID, now, &items)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func clearCart(tx *gorm.DB, userID uint, now time.Time, out *[]models.CartItem) error {
	var items []models.CartItem
	if err := pending(tx, userID).Clauses(clause.Locking{Strength: "UPDATE"}).Find(&items).Error; err != nil {
		return err
	}
	for _, it := range items {
		if cat, drugID, ok := it.Drug(); ok {
			if err := restoreLine(tx, cat, drugID, it.Quantity, now); err != nil {
				return err
			}
		}
	}
	if len(items) > 0 {
		ids := make([]uint, len(items))
		for i, it := range items {
			ids[i] = it.ID
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
	}
	if out != nil {
		*out = items
	}
	return nil
}

// restoreLine puts qty back on the drug; a drug deleted in the meantime is skipped
// and an expired one stays at zero.
func restoreLine(tx *gorm.DB, cat models.Category, drugID uint, qty int, now time.Time) error {
	d, err := lockDrug(tx, cat, drugID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return setStock(tx, cat, d, d.Stock+qty, now)
}
