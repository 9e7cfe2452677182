package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neopharm/pharmacy/internal/cache"
	"github.com/neopharm/pharmacy/internal/events"
	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/repo"
	"github.com/neopharm/pharmacy/internal/search"
	"github.com/neopharm/pharmacy/pkg/logging"
)

const indexTimeout = 5 * time.Second

type DrugService struct {
	Repo       *repo.GormRepo
	Events     events.Publisher
	Index      search.Index
	CountCache cache.Counts
	Now        func() time.Time
}

type DrugInput struct {
	Name       string
	DosageForm string
	Brand      string
	Unit       string
	Cost       decimal.Decimal
	Markup     int
	Price      decimal.Decimal
	Stock      int
	ExpDate    *time.Time
}

func (in *DrugInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Brand = strings.TrimSpace(in.Brand)
	if in.Name == "" {
		return fmt.Errorf("name is required: %w", ErrValidation)
	}
	if len(in.Name) > 200 || len(in.Brand) > 200 {
		return fmt.Errorf("name and brand are limited to 200 characters: %w", ErrValidation)
	}
	if in.Markup == 0 {
		in.Markup = models.DefaultMarkup
	}
	if !models.ValidMarkup(in.Markup) {
		return fmt.Errorf("markup %d is not allowed: %w", in.Markup, ErrValidation)
	}
	if in.Stock < 0 {
		return fmt.Errorf("stock cannot be negative: %w", ErrValidation)
	}
	if in.Cost.IsNegative() || in.Price.IsNegative() {
		return fmt.Errorf("cost and price cannot be negative: %w", ErrValidation)
	}
	if !models.ValidChoice(in.DosageForm, models.DosageForms) {
		return fmt.Errorf("unknown dosage form %q: %w", in.DosageForm, ErrValidation)
	}
	if !models.ValidChoice(in.Unit, models.Units) {
		return fmt.Errorf("unknown unit %q: %w", in.Unit, ErrValidation)
	}
	return nil
}

func (in *DrugInput) apply(d *models.Drug) {
	d.Name = in.Name
	d.DosageForm = in.DosageForm
	d.Brand = in.Brand
	d.Unit = in.Unit
	d.Cost = in.Cost
	d.Markup = in.Markup
	d.Price = in.Price
	d.Stock = in.Stock
	d.ExpDate = in.ExpDate
}

// InputFromDrug prefills an edit form.
func InputFromDrug(d *models.Drug) DrugInput {
	return DrugInput{
		Name:       d.Name,
		DosageForm: d.DosageForm,
		Brand:      d.Brand,
		Unit:       d.Unit,
		Cost:       d.Cost,
		Markup:     d.Markup,
		Price:      d.Price,
		Stock:      d.Stock,
		ExpDate:    d.ExpDate,
	}
}

func (s *DrugService) List(ctx context.Context, cat models.Category) ([]models.Drug, error) {
	return s.Repo.ListDrugs(ctx, cat)
}

func (s *DrugService) Get(ctx context.Context, cat models.Category, id uint) (*models.Drug, error) {
	d, err := s.Repo.GetDrug(ctx, cat, id)
	if err != nil {
		return nil, mapRepoErr("get drug", err)
	}
	return d, nil
}

func (s *DrugService) Create(ctx context.Context, cat models.Category, in DrugInput) (*models.Drug, error) {
	l := logging.FromContext(ctx).With("svc", "drug.create", "drug_type", cat)
	if err := in.validate(); err != nil {
		return nil, err
	}
	var d models.Drug
	in.apply(&d)
	if err := s.Repo.CreateDrug(ctx, cat, &d); err != nil {
		l.Error("drug_create_error", "status", 500, "error", err)
		return nil, err
	}
	s.changed(ctx, "drug_created", &d)
	return &d, nil
}

func (s *DrugService) Update(ctx context.Context, cat models.Category, id uint, in DrugInput) (*models.Drug, error) {
	l := logging.FromContext(ctx).With("svc", "drug.update", "drug_type", cat, "drug_id", id)
	if err := in.validate(); err != nil {
		return nil, err
	}
	d, err := s.Get(ctx, cat, id)
	if err != nil {
		return nil, err
	}
	in.apply(d)
	if err := s.Repo.SaveDrug(ctx, cat, d); err != nil {
		l.Error("drug_update_error", "status", 500, "error", err)
		return nil, err
	}
	s.changed(ctx, "drug_updated", d)
	return d, nil
}

// Rename changes only the drug's display name.
func (s *DrugService) Rename(ctx context.Context, cat models.Category, id uint, name string) (*models.Drug, error) {
	d, err := s.Get(ctx, cat, id)
	if err != nil {
		return nil, err
	}
	in := InputFromDrug(d)
	in.Name = name
	if err := in.validate(); err != nil {
		return nil, err
	}
	d.Name = in.Name
	if err := s.Repo.SaveDrug(ctx, cat, d); err != nil {
		return nil, err
	}
	s.changed(ctx, "drug_renamed", d)
	return d, nil
}

func (s *DrugService) Delete(ctx context.Context, cat models.Category, id uint) (*models.Drug, error) {
	d, err := s.Repo.DeleteDrug(ctx, cat, id)
	if err != nil {
		return nil, mapRepoErr("delete drug", err)
	}
	events.Publish(ctx, s.Events, events.TopicInventory, docKey(cat, id), map[string]any{
		"type":      "drug_deleted",
		"drug_type": cat,
		"drug_id":   id,
		"name":      d.Name,
	})
	if s.Index != nil {
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), indexTimeout)
		defer cancel()
		if err := s.Index.Remove(ictx, cat, id); err != nil {
			logging.FromContext(ctx).Warn("search_index_error", "op", "remove", "error", err)
		}
	}
	s.invalidateCounts(ctx)
	return d, nil
}

// AddToCart moves qty units of a drug into the user's pending cart.
func (s *DrugService) AddToCart(ctx context.Context, userID uint, drugType string, id uint, qty int) StockResult {
	l := logging.FromContext(ctx).With("svc", "drug.add_to_cart", "drug_type", drugType, "drug_id", id, "quantity", qty)

	cat, err := models.ParseCategory(drugType)
	if err != nil {
		l.Warn("add_to_cart_error", "status", 404, "error", err)
		return StockResult{Message: "Invalid item", Status: http.StatusNotFound}
	}
	if qty <= 0 {
		return StockResult{Message: "Quantity must be at least 1", Status: http.StatusBadRequest}
	}

	d, item, err := s.Repo.AddToCart(ctx, userID, cat, id, qty, nowOr(s.Now))
	if err != nil {
		err = mapRepoErr("add to cart", err)
		switch {
		case errors.Is(err, ErrNotFound):
			l.Warn("add_to_cart_error", "status", 404, "error", err)
			return StockResult{Message: "Invalid item", Status: http.StatusNotFound}
		case errors.Is(err, ErrInsufficientStock):
			l.Warn("add_to_cart_error", "status", 400, "error", err)
			return StockResult{Message: "Insufficient stock", Status: http.StatusBadRequest}
		case errors.Is(err, ErrExpired):
			l.Warn("add_to_cart_error", "status", 400, "error", err)
			return StockResult{Message: "This item has expired", Status: http.StatusBadRequest}
		}
		l.Error("add_to_cart_error", "status", 500, "error", err)
		return StockResult{Message: err.Error(), Status: http.StatusInternalServerError}
	}

	events.Publish(ctx, s.Events, events.TopicCart, strconv.FormatUint(uint64(userID), 10), map[string]any{
		"type":      "cart_item_added",
		"user_id":   userID,
		"cart_id":   item.CartCode,
		"drug_type": cat,
		"drug_id":   id,
		"quantity":  qty,
		"stock":     d.Stock,
	})
	s.reindex(ctx, d)
	return StockResult{Success: true, Message: fmt.Sprintf("Added %d %s to cart", qty, d.Name), Status: http.StatusOK}
}

// ReturnItem puts qty units back on the shelf.
func (s *DrugService) ReturnItem(ctx context.Context, drugType string, id uint, qty int, reason string) StockResult {
	l := logging.FromContext(ctx).With("svc", "drug.return_item", "drug_type", drugType, "drug_id", id, "quantity", qty)

	cat, err := models.ParseCategory(drugType)
	if err != nil {
		l.Warn("return_item_error", "status", 404, "error", err)
		return StockResult{Message: "Invalid item", Status: http.StatusNotFound}
	}
	if qty <= 0 {
		return StockResult{Message: "Quantity must be at least 1", Status: http.StatusBadRequest}
	}
	if strings.TrimSpace(reason) == "" {
		return StockResult{Message: "A reason is required", Status: http.StatusBadRequest}
	}

	d, err := s.Repo.ReturnToStock(ctx, cat, id, qty, nowOr(s.Now))
	if err != nil {
		err = mapRepoErr("return item", err)
		if errors.Is(err, ErrNotFound) {
			l.Warn("return_item_error", "status", 404, "error", err)
			return StockResult{Message: "Invalid item", Status: http.StatusNotFound}
		}
		l.Error("return_item_error", "status", 500, "error", err)
		return StockResult{Message: err.Error(), Status: http.StatusInternalServerError}
	}

	l.Info("item_returned", "reason", reason, "stock", d.Stock)
	events.Publish(ctx, s.Events, events.TopicInventory, docKey(cat, id), map[string]any{
		"type":      "drug_returned",
		"drug_type": cat,
		"drug_id":   id,
		"quantity":  qty,
		"reason":    reason,
		"stock":     d.Stock,
	})
	s.reindex(ctx, d)
	return StockResult{Success: true, Message: d.Name + " returned successfully!", Status: http.StatusOK}
}

const (
	StockAdd      = "add"
	StockSubtract = "subtract"
)

// UpdateStock adds or subtracts qty and records the change.
func (s *DrugService) UpdateStock(ctx context.Context, cat models.Category, id uint, qty int, op string) (*models.Drug, error) {
	l := logging.FromContext(ctx).With("svc", "drug.update_stock", "drug_type", cat, "drug_id", id)
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", ErrValidation)
	}
	delta := qty
	switch op {
	case StockAdd:
	case StockSubtract:
		delta = -qty
	default:
		return nil, fmt.Errorf("unknown operation %q: %w", op, ErrValidation)
	}

	d, old, err := s.Repo.AdjustStock(ctx, cat, id, delta, nowOr(s.Now))
	if err != nil {
		return nil, mapRepoErr("update stock", err)
	}
	l.Info("stock_updated", "op", op, "quantity", qty, "old", old, "new", d.Stock)
	events.Publish(ctx, s.Events, events.TopicInventory, docKey(cat, id), map[string]any{
		"type":      "stock_adjusted",
		"drug_type": cat,
		"drug_id":   id,
		"old_stock": old,
		"new_stock": d.Stock,
	})
	s.reindex(ctx, d)
	return d, nil
}

// ExpiredItem is one drug found by the expiry sweep.
type ExpiredItem struct {
	Category models.Category
	ID       uint
	Name     string
	Stock    int
	ExpDate  time.Time
}

// ZeroExpired sets stock to zero on every expired drug that still has stock.
// With dryRun it only reports what it would change.
func (s *DrugService) ZeroExpired(ctx context.Context, dryRun bool) ([]ExpiredItem, error) {
	l := logging.FromContext(ctx).With("svc", "drug.zero_expired", "dry_run", dryRun)
	now := nowOr(s.Now)

	var out []ExpiredItem
	for _, cat := range models.Categories {
		list, err := s.Repo.ExpiredWithStock(ctx, cat, now)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			continue
		}
		ids := make([]uint, len(list))
		for i, d := range list {
			ids[i] = d.ID
			out = append(out, ExpiredItem{Category: cat, ID: d.ID, Name: d.Name, Stock: d.Stock, ExpDate: *d.ExpDate})
		}
		if dryRun {
			continue
		}
		n, err := s.Repo.ZeroStock(ctx, cat, ids, now)
		if err != nil {
			return nil, err
		}
		l.Info("expired_stock_zeroed", "drug_type", cat, "count", n)
		for i := range list {
			list[i].Stock = 0
			events.Publish(ctx, s.Events, events.TopicInventory, docKey(cat, list[i].ID), map[string]any{
				"type":      "drug_expired",
				"drug_type": cat,
				"drug_id":   list[i].ID,
				"exp_date":  list[i].ExpDate.Format(time.DateOnly),
			})
			s.reindex(ctx, &list[i])
		}
	}
	if !dryRun && len(out) > 0 {
		s.invalidateCounts(ctx)
	}
	return out, nil
}

// Search matches name or brand. An empty category searches all of them in display order;
// limit applies per category.
func (s *DrugService) Search(ctx context.Context, query string, cat models.Category, limit int) ([]models.Drug, error) {
	query = strings.TrimSpace(query)
	cats := models.Categories
	if cat != "" {
		cats = []models.Category{cat}
	}

	var out []models.Drug
	for _, c := range cats {
		list, err := s.searchOne(ctx, query, c, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

func (s *DrugService) searchOne(ctx context.Context, query string, cat models.Category, limit int) ([]models.Drug, error) {
	if s.Index != nil && query != "" {
		list, err := s.Index.Search(ctx, query, cat, limit)
		if err == nil {
			for i := range list {
				list[i].Category = cat
			}
			return list, nil
		}
		logging.FromContext(ctx).Warn("search_index_error", "op", "search", "error", err)
	}
	return s.Repo.SearchDrugs(ctx, cat, query, limit)
}

// Counts returns the number of drugs per category, cached briefly.
func (s *DrugService) Counts(ctx context.Context) (map[string]int64, error) {
	if s.CountCache != nil {
		if cached, err := s.CountCache.Get(ctx); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			logging.FromContext(ctx).Warn("counts_cache_error", "op", "get", "error", err)
		}
	}

	out := make(map[string]int64, len(models.Categories))
	for _, cat := range models.Categories {
		n, err := s.Repo.CountDrugs(ctx, cat)
		if err != nil {
			return nil, err
		}
		out[string(cat)] = n
	}

	if s.CountCache != nil {
		if err := s.CountCache.Set(ctx, out); err != nil {
			logging.FromContext(ctx).Warn("counts_cache_error", "op", "set", "error", err)
		}
	}
	return out, nil
}

// AllDrugs lists every category for reindexing.
func (s *DrugService) AllDrugs(ctx context.Context) ([]models.Drug, error) {
	var out []models.Drug
	for _, cat := range models.Categories {
		list, err := s.Repo.ListDrugs(ctx, cat)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

func (s *DrugService) changed(ctx context.Context, typ string, d *models.Drug) {
	events.Publish(ctx, s.Events, events.TopicInventory, docKey(d.Category, d.ID), map[string]any{
		"type":      typ,
		"drug_type": d.Category,
		"drug_id":   d.ID,
		"name":      d.Name,
		"price":     d.Price.StringFixed(2),
		"stock":     d.Stock,
	})
	s.reindex(ctx, d)
	s.invalidateCounts(ctx)
}

func (s *DrugService) reindex(ctx context.Context, d *models.Drug) {
	if s.Index == nil {
		return
	}
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), indexTimeout)
	defer cancel()
	if err := s.Index.Put(ictx, d); err != nil {
		logging.FromContext(ctx).Warn("search_index_error", "op", "put", "drug_id", d.ID, "error", err)
	}
}

func (s *DrugService) invalidateCounts(ctx context.Context) {
	if s.CountCache == nil {
		return
	}
	if err := s.CountCache.Invalidate(ctx); err != nil {
		logging.FromContext(ctx).Warn("counts_cache_error", "op", "invalidate", "error", err)
	}
}

func docKey(cat models.Category, id uint) string {
	return string(cat) + "-" + strconv.FormatUint(uint64(id), 10)
}
