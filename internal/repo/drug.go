package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/neopharm/pharmacy/internal/models"
)

func tagged(list []models.Drug, cat models.Category) []models.Drug {
	for i := range list {
		list[i].Category = cat
	}
	return list
}

func (r *GormRepo) ListDrugs(ctx context.Context, cat models.Category) ([]models.Drug, error) {
	var list []models.Drug
	if err := drugs(r.DB.WithContext(ctx), cat).Order("name ASC").Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return tagged(list, cat), nil
}

func (r *GormRepo) GetDrug(ctx context.Context, cat models.Category, id uint) (*models.Drug, error) {
	var d models.Drug
	if err := drugs(r.DB.WithContext(ctx), cat).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	d.Category = cat
	return &d, nil
}

func (r *GormRepo) DrugsByIDs(ctx context.Context, cat models.Category, ids []uint) ([]models.Drug, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var list []models.Drug
	if err := drugs(r.DB.WithContext(ctx), cat).Where("id IN ?", ids).Order("name ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return tagged(list, cat), nil
}

func (r *GormRepo) CreateDrug(ctx context.Context, cat models.Category, d *models.Drug) error {
	if err := drugs(r.DB.WithContext(ctx), cat).Create(d).Error; err != nil {
		return err
	}
	d.Category = cat
	return nil
}

func (r *GormRepo) SaveDrug(ctx context.Context, cat models.Category, d *models.Drug) error {
	if err := drugs(r.DB.WithContext(ctx), cat).Save(d).Error; err != nil {
		return err
	}
	d.Category = cat
	return nil
}

// DeleteDrug removes the drug and every cart row that still points at it.
func (r *GormRepo) DeleteDrug(ctx context.Context, cat models.Category, id uint) (*models.Drug, error) {
	var deleted *models.Drug
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := lockDrug(tx, cat, id)
		if err != nil {
			return err
		}
		if err := tx.Where(models.DrugColumn(cat)+" = ?", id).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if err := drugs(tx, cat).Where("id = ?", id).Delete(&models.Drug{}).Error; err != nil {
			return err
		}
		deleted = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *GormRepo) CountDrugs(ctx context.Context, cat models.Category) (int64, error) {
	var n int64
	if err := drugs(r.DB.WithContext(ctx), cat).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// SearchDrugs matches name or brand case-insensitively; an empty query lists the category.
func (r *GormRepo) SearchDrugs(ctx context.Context, cat models.Category, query string, limit int) ([]models.Drug, error) {
	q := drugs(r.DB.WithContext(ctx), cat)
	if query != "" {
		p := likePattern(query)
		q = q.Where("LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(brand) LIKE ? ESCAPE '\\'", p, p)
	}
	var list []models.Drug
	if err := q.Order("name ASC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return tagged(list, cat), nil
}

// ExpiredWithStock returns drugs whose expiry date is before now's date and whose stock is positive.
func (r *GormRepo) ExpiredWithStock(ctx context.Context, cat models.Category, now time.Time) ([]models.Drug, error) {
	var candidates []models.Drug
	if err := drugs(r.DB.WithContext(ctx), cat).
		Where("exp_date IS NOT NULL AND stock > 0").
		Order("name ASC").
		Find(&candidates).Error; err != nil {
		return nil, err
	}
	out := candidates[:0]
	for _, d := range candidates {
		if d.IsExpired(now) {
			out = append(out, d)
		}
	}
	return tagged(out, cat), nil
}

func (r *GormRepo) ZeroStock(ctx context.Context, cat models.Category, ids []uint, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := drugs(r.DB.WithContext(ctx), cat).
		Where("id IN ?", ids).
		Updates(map[string]any{"stock": 0, "updated_at": now})
	return res.RowsAffected, res.Error
}

// AdjustStock adds delta (which may be negative) to the locked row and returns the old and new stock.
func (r *GormRepo) AdjustStock(ctx context.Context, cat models.Category, id uint, delta int, now time.Time) (*models.Drug, int, error) {
	var (
		out *models.Drug
		old int
	)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := lockDrug(tx, cat, id)
		if err != nil {
			return err
		}
		old = d.Stock
		if d.Stock+delta < 0 {
			return ErrNegativeStock
		}
		if err := setStock(tx, cat, d, d.Stock+delta, now); err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, old, nil
}

// ReturnToStock increments stock under the row lock.
func (r *GormRepo) ReturnToStock(ctx context.Context, cat models.Category, id uint, qty int, now time.Time) (*models.Drug, error) {
	d, _, err := r.AdjustStock(ctx, cat, id, qty, now)
	return d, err
}

// setStock writes stock with a bare column update, so it applies the expiry rule itself:
// an expired drug always holds zero.
func setStock(tx *gorm.DB, cat models.Category, d *models.Drug, stock int, now time.Time) error {
	if d.IsExpired(now) {
		stock = 0
	}
	if err := drugs(tx, cat).Where("id = ?", d.ID).
		Updates(map[string]any{"stock": stock, "updated_at": now}).Error; err != nil {
		return err
	}
	d.Stock = stock
	d.UpdatedAt = now
	return nil
}
