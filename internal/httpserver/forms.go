package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/service"
	"github.com/neopharm/pharmacy/internal/transport"
	"github.com/neopharm/pharmacy/internal/util"
	"github.com/neopharm/pharmacy/pkg/logging"
)

type FormHTTP struct {
	Forms *service.FormService
}

func (h *FormHTTP) List(c echo.Context) error {
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	forms, p, err := h.Forms.List(c.Request().Context(), page, size)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "forms", "Forms", map[string]any{"Forms": forms, "Page": p})
}

func (h *FormHTTP) Detail(c echo.Context) error {
	form, err := h.Forms.Get(c.Request().Context(), c.Param("form_id"))
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "form_detail", "Form "+form.Code, map[string]any{"Form": form})
}

func (h *FormHTTP) EditPage(c echo.Context) error {
	form, err := h.Forms.Get(c.Request().Context(), c.Param("form_id"))
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "form_edit", "Edit "+form.Code, map[string]any{"Form": form})
}

func (h *FormHTTP) Edit(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "forms.edit")

	code := c.Param("form_id")
	var req transport.BuyerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	_, err := h.Forms.UpdateBuyer(ctx, code, service.BuyerInput{
		BuyerName:  req.BuyerName,
		HospitalNo: req.HospitalNo,
		NcapNo:     req.NcapNo,
	})
	if err != nil {
		status := statusOf(err)
		if status != http.StatusBadRequest {
			return err
		}
		l.Warn("edit_form_error", "status", status, "error", err)
		flashError(c, userMessage(err))
		return redirect(c, "/forms/"+code+"/edit")
	}
	flashSuccess(c, "Form "+code+" updated")
	return redirect(c, "/forms/"+code)
}

func formItemInput(req transport.FormItemRequest) (service.FormItemInput, error) {
	price, err := parseMoney("price", req.Price)
	if err != nil {
		return service.FormItemInput{}, err
	}
	return service.FormItemInput{
		DrugName:   req.DrugName,
		DrugBrand:  req.DrugBrand,
		DrugType:   req.DrugType,
		DosageForm: req.DosageForm,
		Unit:       req.Unit,
		Quantity:   req.Quantity,
		Price:      price,
	}, nil
}

func itemFormData(form *models.Form, action string, req transport.FormItemRequest) map[string]any {
	return map[string]any{
		"Form":        form,
		"Action":      action,
		"Item":        req,
		"Types":       models.FormItemTypes,
		"DosageForms": models.DosageForms,
		"Units":       models.Units,
	}
}

func (h *FormHTTP) AddItemPage(c echo.Context) error {
	form, err := h.Forms.Get(c.Request().Context(), c.Param("form_id"))
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "form_item", "Add item to "+form.Code,
		itemFormData(form, c.Request().URL.Path, transport.FormItemRequest{Quantity: 1}))
}

func (h *FormHTTP) AddItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "forms.add_item")

	code := c.Param("form_id")
	var req transport.FormItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	in, err := formItemInput(req)
	if err == nil {
		_, err = h.Forms.AddItem(ctx, code, in)
	}
	if err != nil {
		return h.itemError(c, l, err, code, req)
	}
	flashSuccess(c, req.DrugName+" added to "+code)
	return redirect(c, "/forms/"+code)
}

func (h *FormHTTP) EditItemPage(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("form_id")
	itemID, err := paramID(c, "item_id")
	if err != nil {
		return err
	}
	form, err := h.Forms.Get(ctx, code)
	if err != nil {
		return err
	}
	it, err := h.Forms.Item(ctx, code, itemID)
	if err != nil {
		return err
	}
	req := transport.FormItemRequest{
		DrugName:   it.DrugName,
		DrugBrand:  it.DrugBrand,
		DrugType:   it.DrugType,
		DosageForm: it.DosageForm,
		Unit:       it.Unit,
		Quantity:   it.Quantity,
		Price:      it.Price.StringFixed(2),
	}
	return render(c, http.StatusOK, "form_item", "Edit "+it.DrugName, itemFormData(form, c.Request().URL.Path, req))
}

func (h *FormHTTP) EditItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "forms.edit_item")

	code := c.Param("form_id")
	itemID, err := paramID(c, "item_id")
	if err != nil {
		return err
	}
	var req transport.FormItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	in, err := formItemInput(req)
	if err == nil {
		_, err = h.Forms.UpdateItem(ctx, code, itemID, in)
	}
	if err != nil {
		return h.itemError(c, l, err, code, req)
	}
	flashSuccess(c, req.DrugName+" updated")
	return redirect(c, "/forms/"+code)
}

func (h *FormHTTP) itemError(c echo.Context, l *slog.Logger, err error, code string, req transport.FormItemRequest) error {
	status := statusOf(err)
	if status != http.StatusBadRequest {
		return err
	}
	l.Warn("form_item_error", "status", status, "error", err)
	form, ferr := h.Forms.Get(c.Request().Context(), code)
	if ferr != nil {
		return ferr
	}
	flashError(c, userMessage(err))
	return render(c, status, "form_item", "Form item", itemFormData(form, c.Request().URL.Path, req))
}

func (h *FormHTTP) RemoveItemPage(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("form_id")
	itemID, err := paramID(c, "item_id")
	if err != nil {
		return err
	}
	it, err := h.Forms.Item(ctx, code, itemID)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "confirm_delete", "Remove "+it.DrugName, map[string]any{
		"Object": it.DrugName + " from " + code,
		"Action": c.Request().URL.Path,
		"Cancel": "/forms/" + code,
	})
}

func (h *FormHTTP) RemoveItem(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("form_id")
	itemID, err := paramID(c, "item_id")
	if err != nil {
		return err
	}
	if err := h.Forms.RemoveItem(ctx, code, itemID); err != nil {
		logging.FromContext(ctx).Warn("remove_form_item_error", "handler", "forms.remove_item", "status", statusOf(err), "error", err)
		return err
	}
	flashSuccess(c, "Item removed from "+code)
	return redirect(c, "/forms/"+code)
}
