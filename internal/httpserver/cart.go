package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/service"
	"github.com/neopharm/pharmacy/internal/transport"
	"github.com/neopharm/pharmacy/pkg/logging"
)

type CartHTTP struct {
	Carts *service.CartService
	Forms *service.FormService
}

func (h *CartHTTP) Cart(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	cart, err := h.Carts.Pending(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "cart", "Cart", map[string]any{"Cart": cart})
}

func (h *CartHTTP) UpdateCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.update")

	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	itemID, err := paramID(c, "pk")
	if err != nil {
		return err
	}

	qty, err := quantityParam(c, 1)
	var (
		item    *models.CartItem
		removed bool
	)
	if err == nil {
		item, removed, err = h.Carts.UpdateQuantity(ctx, userID, itemID, qty)
	}
	if err != nil {
		status := statusOf(err)
		l.Warn("update_cart_error", "status", status, "error", err)
		if wantsJSON(c) {
			return jsonError(c, status, userMessage(err))
		}
		if status == http.StatusInternalServerError {
			return err
		}
		flashError(c, userMessage(err))
		return redirect(c, "/cart")
	}

	if !wantsJSON(c) {
		if removed {
			flashSuccess(c, item.Name+" removed from cart")
		} else {
			flashSuccess(c, "Cart updated")
		}
		return redirect(c, "/cart")
	}

	cart, err := h.Carts.Pending(ctx, userID)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "cannot load cart")
	}
	resp := transport.CartUpdateResponse{Success: true, Action: "updated", Subtotal: item.Subtotal.StringFixed(2), Total: cart.Total.StringFixed(2)}
	if removed {
		resp.Action = "removed"
		resp.Subtotal = "0.00"
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *CartHTTP) RemoveFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove")

	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	itemID, err := paramID(c, "pk")
	if err != nil {
		return err
	}

	item, err := h.Carts.Remove(ctx, userID, itemID)
	if err != nil {
		status := statusOf(err)
		l.Warn("remove_from_cart_error", "status", status, "error", err)
		if wantsJSON(c) {
			return jsonError(c, status, userMessage(err))
		}
		if status == http.StatusInternalServerError {
			return err
		}
		flashError(c, userMessage(err))
		return redirect(c, "/cart")
	}

	msg := item.Name + " removed from cart"
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, transport.StockResponse{Success: true, Message: msg})
	}
	flashSuccess(c, msg)
	return redirect(c, "/cart")
}

func (h *CartHTTP) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	n, err := h.Carts.Clear(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("clear_cart_error", "handler", "cart.clear", "status", 500, "error", err)
		return err
	}
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, map[string]any{"success": true, "removed": n})
	}
	flashSuccess(c, fmt.Sprintf("Cart cleared (%d items returned to stock)", n))
	return redirect(c, "/cart")
}

func (h *CartHTTP) DispensePage(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	cart, err := h.Carts.Pending(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	if len(cart.Items) == 0 {
		flashError(c, "Your cart is empty")
		return redirect(c, "/store")
	}
	return render(c, http.StatusOK, "dispense", "Dispense", map[string]any{"Cart": cart})
}

func (h *CartHTTP) Dispense(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.dispense")

	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	var req transport.BuyerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	form, err := h.Forms.Dispense(ctx, userID, service.BuyerInput{
		BuyerName:  req.BuyerName,
		HospitalNo: req.HospitalNo,
		NcapNo:     req.NcapNo,
	})
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			l.Error("dispense_error", "status", status, "error", err)
			return err
		}
		l.Warn("dispense_error", "status", status, "error", err)
		if errors.Is(err, service.ErrEmptyCart) {
			flashError(c, "Your cart is empty")
			return redirect(c, "/store")
		}
		flashError(c, userMessage(err))
		return redirect(c, "/dispense")
	}

	flashSuccess(c, "Items dispensed, receipt "+form.Code)
	return redirect(c, "/receipt/"+form.Code)
}

// LatestReceipt shows the most recent form.
func (h *CartHTTP) LatestReceipt(c echo.Context) error {
	recent, err := h.Forms.Recent(c.Request().Context(), 1)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		flashError(c, "No receipts yet")
		return redirect(c, "/dashboard")
	}
	return redirect(c, "/receipt/"+recent[0].Code)
}

func (h *CartHTTP) Receipt(c echo.Context) error {
	form, err := h.Forms.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "receipt", "Receipt "+form.Code, map[string]any{"Form": form})
}
