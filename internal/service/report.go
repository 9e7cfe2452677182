package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/repo"
)

const (
	DefaultLowStock  = 10
	DefaultSalesDays = 30
	lowStockListSize = 20
)

type ReportService struct {
	Repo *repo.GormRepo
	Now  func() time.Time
}

type InventoryRow struct {
	Category   models.Category
	Count      int64
	TotalValue decimal.Decimal
	LowStock   int64
	LowItems   []models.Drug
}

type InventoryReport struct {
	Threshold  int
	Rows       []InventoryRow
	TotalItems int64
	TotalValue decimal.Decimal
	TotalLow   int64
}

func (s *ReportService) Inventory(ctx context.Context, threshold int) (*InventoryReport, error) {
	if threshold <= 0 {
		threshold = DefaultLowStock
	}
	out := &InventoryReport{Threshold: threshold, TotalValue: decimal.Zero}
	for _, cat := range models.Categories {
		st, err := s.Repo.CategoryStock(ctx, cat, threshold)
		if err != nil {
			return nil, err
		}
		low, err := s.Repo.LowStock(ctx, cat, threshold, lowStockListSize)
		if err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, InventoryRow{
			Category:   cat,
			Count:      st.Count,
			TotalValue: st.TotalValue,
			LowStock:   st.LowStock,
			LowItems:   low,
		})
		out.TotalItems += st.Count
		out.TotalValue = out.TotalValue.Add(st.TotalValue)
		out.TotalLow += st.LowStock
	}
	return out, nil
}

type TypeSales struct {
	Type     string
	Quantity int64
	Revenue  decimal.Decimal
}

type DaySales struct {
	Date    string
	Forms   int
	Revenue decimal.Decimal
}

type SalesReport struct {
	Days    int
	Since   time.Time
	Forms   int
	Revenue decimal.Decimal
	ByType  []TypeSales
	Daily   []DaySales
}

// Sales summarises forms of the last days, by drug type and by day.
func (s *ReportService) Sales(ctx context.Context, days int) (*SalesReport, error) {
	if days <= 0 {
		days = DefaultSalesDays
	}
	since := nowOr(s.Now).AddDate(0, 0, -days)

	forms, err := s.Repo.FormsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	items, err := s.Repo.FormItemsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	out := &SalesReport{Days: days, Since: since, Forms: len(forms), Revenue: decimal.Zero}

	byDay := map[string]int{}
	for _, f := range forms {
		out.Revenue = out.Revenue.Add(f.TotalAmount)
		day := f.Date.UTC().Format(time.DateOnly)
		i, ok := byDay[day]
		if !ok {
			i = len(out.Daily)
			byDay[day] = i
			out.Daily = append(out.Daily, DaySales{Date: day, Revenue: decimal.Zero})
		}
		out.Daily[i].Forms++
		out.Daily[i].Revenue = out.Daily[i].Revenue.Add(f.TotalAmount)
	}

	byType := map[string]int{}
	for _, typ := range models.FormItemTypes {
		byType[typ] = len(out.ByType)
		out.ByType = append(out.ByType, TypeSales{Type: typ, Revenue: decimal.Zero})
	}
	for _, it := range items {
		i, ok := byType[it.DrugType]
		if !ok {
			i = len(out.ByType)
			byType[it.DrugType] = i
			out.ByType = append(out.ByType, TypeSales{Type: it.DrugType, Revenue: decimal.Zero})
		}
		out.ByType[i].Quantity += int64(it.Quantity)
		out.ByType[i].Revenue = out.ByType[i].Revenue.Add(it.Subtotal)
	}
	return out, nil
}
