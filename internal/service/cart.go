package service

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neopharm/pharmacy/internal/events"
	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/repo"
	"github.com/neopharm/pharmacy/pkg/logging"
)

type CartService struct {
	Repo   *repo.GormRepo
	Events events.Publisher
	Now    func() time.Time
}

type Cart struct {
	Items []models.CartItem
	Total decimal.Decimal
}

func (s *CartService) Pending(ctx context.Context, userID uint) (*Cart, error) {
	items, err := s.Repo.PendingCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Cart{Items: items, Total: models.SumSubtotals(items)}, nil
}

func (s *CartService) Count(ctx context.Context, userID uint) (int64, error) {
	return s.Repo.CountPending(ctx, userID)
}

// UpdateQuantity sets a pending line to qty; qty <= 0 removes it.
// removed reports whether the line is gone.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, itemID uint, qty int) (*models.CartItem, bool, error) {
	l := logging.FromContext(ctx).With("svc", "cart.update_quantity", "item_id", itemID, "quantity", qty)

	item, removed, err := s.Repo.UpdateCartQuantity(ctx, userID, itemID, qty, nowOr(s.Now))
	if err != nil {
		err = mapRepoErr("update cart", err)
		l.Warn("cart_update_error", "error", err)
		return nil, false, err
	}

	typ := "cart_item_updated"
	if removed {
		typ = "cart_item_removed"
	}
	s.publish(ctx, userID, typ, item)
	return item, removed, nil
}

func (s *CartService) Remove(ctx context.Context, userID, itemID uint) (*models.CartItem, error) {
	item, err := s.Repo.RemoveCartItem(ctx, userID, itemID, nowOr(s.Now))
	if err != nil {
		return nil, mapRepoErr("remove from cart", err)
	}
	s.publish(ctx, userID, "cart_item_removed", item)
	return item, nil
}

// Clear returns every pending line to stock.
func (s *CartService) Clear(ctx context.Context, userID uint) (int, error) {
	items, err := s.Repo.ClearCart(ctx, userID, nowOr(s.Now))
	if err != nil {
		return 0, err
	}
	if len(items) > 0 {
		events.Publish(ctx, s.Events, events.TopicCart, strconv.FormatUint(uint64(userID), 10), map[string]any{
			"type":    "cart_cleared",
			"user_id": userID,
			"items":   len(items),
		})
	}
	return len(items), nil
}

func (s *CartService) publish(ctx context.Context, userID uint, typ string, item *models.CartItem) {
	ev := map[string]any{
		"type":     typ,
		"user_id":  userID,
		"cart_id":  item.CartCode,
		"item_id":  item.ID,
		"quantity": item.Quantity,
	}
	if cat, drugID, ok := item.Drug(); ok {
		ev["drug_type"] = cat
		ev["drug_id"] = drugID
	}
	events.Publish(ctx, s.Events, events.TopicCart, strconv.FormatUint(uint64(userID), 10), ev)
}
