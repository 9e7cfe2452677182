package repo

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/neopharm/pharmacy/internal/models"
)

type CategoryStock struct {
	Count      int64
	TotalValue decimal.Decimal
	LowStock   int64
}

// CategoryStock aggregates item count, stock value and low-stock count for one category.
func (r *GormRepo) CategoryStock(ctx context.Context, cat models.Category, lowStockBelow int) (CategoryStock, error) {
	var (
		out   CategoryStock
		value decimal.NullDecimal
	)
	row := drugs(r.DB.WithContext(ctx), cat).
		Select("COUNT(*), SUM(price * stock), SUM(CASE WHEN stock < ? THEN 1 ELSE 0 END)", lowStockBelow).
		Row()
	var low *int64
	if err := row.Scan(&out.Count, &value, &low); err != nil {
		return CategoryStock{}, err
	}
	out.TotalValue = decimal.Zero
	if value.Valid {
		out.TotalValue = value.Decimal.Round(2)
	}
	if low != nil {
		out.LowStock = *low
	}
	return out, nil
}

// LowStock lists drugs under the threshold, lowest stock first.
func (r *GormRepo) LowStock(ctx context.Context, cat models.Category, below, limit int) ([]models.Drug, error) {
	var list []models.Drug
	if err := drugs(r.DB.WithContext(ctx), cat).
		Where("stock < ?", below).
		Order("stock ASC").Order("name ASC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return tagged(list, cat), nil
}
