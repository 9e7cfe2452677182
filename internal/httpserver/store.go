package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/service"
	"github.com/neopharm/pharmacy/internal/transport"
	"github.com/neopharm/pharmacy/pkg/logging"
)

const (
	htmlSearchLimit = 50
	jsonSearchLimit = 10
)

type StoreHTTP struct {
	Drugs *service.DrugService
	Carts *service.CartService
	Forms *service.FormService
}

type categoryDrugs struct {
	Category models.Category
	Drugs    []models.Drug
}

func (h *StoreHTTP) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	counts, err := h.Drugs.Counts(ctx)
	if err != nil {
		return err
	}
	cartCount, err := h.Carts.Count(ctx, userID)
	if err != nil {
		return err
	}
	recent, err := h.Forms.Recent(ctx, 5)
	if err != nil {
		return err
	}
	stats, err := h.Forms.Stats(ctx)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "dashboard", "Dashboard", map[string]any{
		"Categories": models.Categories,
		"Counts":     counts,
		"CartCount":  cartCount,
		"Recent":     recent,
		"Stats":      stats,
	})
}

func (h *StoreHTTP) Store(c echo.Context) error {
	ctx := c.Request().Context()
	var sections []categoryDrugs
	for _, cat := range models.Categories {
		list, err := h.Drugs.List(ctx, cat)
		if err != nil {
			return err
		}
		sections = append(sections, categoryDrugs{Category: cat, Drugs: list})
	}
	return render(c, http.StatusOK, "store", "Store", map[string]any{"Sections": sections})
}

func drugFormData(action string, req transport.DrugRequest, editing bool) map[string]any {
	return map[string]any{
		"Action":      action,
		"Form":        req,
		"Editing":     editing,
		"Categories":  models.Categories,
		"DosageForms": models.DosageForms,
		"Units":       models.Units,
		"Markups":     models.Markups,
	}
}

func drugInput(req transport.DrugRequest) (service.DrugInput, error) {
	cost, err := parseMoney("cost", req.Cost)
	if err != nil {
		return service.DrugInput{}, err
	}
	price, err := parseMoney("price", req.Price)
	if err != nil {
		return service.DrugInput{}, err
	}
	exp, err := parseDate("expiry date", req.ExpDate)
	if err != nil {
		return service.DrugInput{}, err
	}
	return service.DrugInput{
		Name:       req.Name,
		DosageForm: req.DosageForm,
		Brand:      req.Brand,
		Unit:       req.Unit,
		Cost:       cost,
		Markup:     req.Markup,
		Price:      price,
		Stock:      req.Stock,
		ExpDate:    exp,
	}, nil
}

func drugRequest(cat models.Category, d *models.Drug) transport.DrugRequest {
	req := transport.DrugRequest{
		DrugType:   string(cat),
		Name:       d.Name,
		DosageForm: d.DosageForm,
		Brand:      d.Brand,
		Unit:       d.Unit,
		Cost:       d.Cost.StringFixed(2),
		Markup:     d.Markup,
		Price:      d.Price.StringFixed(2),
		Stock:      d.Stock,
	}
	if d.ExpDate != nil {
		req.ExpDate = d.ExpDate.Format("2006-01-02")
	}
	return req
}

func (h *StoreHTTP) AddItemPage(c echo.Context) error {
	req := transport.DrugRequest{DrugType: c.QueryParam("drug_type"), Markup: models.DefaultMarkup}
	return render(c, http.StatusOK, "drug_form", "Add item", drugFormData("/add-item", req, false))
}

func (h *StoreHTTP) AddItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "store.add_item")

	var req transport.DrugRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_item_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	cat, err := models.ParseCategory(req.DrugType)
	if err != nil {
		flashError(c, "Choose a drug type")
		return render(c, http.StatusBadRequest, "drug_form", "Add item", drugFormData("/add-item", req, false))
	}
	in, err := drugInput(req)
	if err == nil {
		var d *models.Drug
		if d, err = h.Drugs.Create(ctx, cat, in); err == nil {
			flashSuccess(c, d.Name+" added to "+cat.Label())
			return redirect(c, "/store")
		}
	}
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		return err
	}
	l.Warn("add_item_error", "status", status, "error", err)
	flashError(c, userMessage(err))
	return render(c, status, "drug_form", "Add item", drugFormData("/add-item", req, false))
}

func (h *StoreHTTP) EditItemPage(c echo.Context) error {
	cat, err := paramCategory(c, "drug_type")
	if err != nil {
		return err
	}
	id, err := paramID(c, "pk")
	if err != nil {
		return err
	}
	d, err := h.Drugs.Get(c.Request().Context(), cat, id)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "drug_form", "Edit "+d.Name, drugFormData(c.Request().URL.Path, drugRequest(cat, d), true))
}

func (h *StoreHTTP) EditItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "store.edit_item")

	cat, err := paramCategory(c, "drug_type")
	if err != nil {
		return err
	}
	id, err := paramID(c, "pk")
	if err != nil {
		return err
	}
	var req transport.DrugRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	req.DrugType = string(cat)

	in, err := drugInput(req)
	if err == nil {
		var d *models.Drug
		if d, err = h.Drugs.Update(ctx, cat, id, in); err == nil {
			flashSuccess(c, d.Name+" updated")
			return redirect(c, "/store")
		}
	}
	status := statusOf(err)
	if status == http.StatusInternalServerError || status == http.StatusNotFound {
		return err
	}
	l.Warn("edit_item_error", "status", status, "error", err)
	flashError(c, userMessage(err))
	return render(c, status, "drug_form", "Edit item", drugFormData(c.Request().URL.Path, req, true))
}

func (h *StoreHTTP) DeleteItemPage(c echo.Context) error {
	cat, err := paramCategory(c, "drug_type")
	if err != nil {
		return err
	}
	id, err := paramID(c, "pk")
	if err != nil {
		return err
	}
	d, err := h.Drugs.Get(c.Request().Context(), cat, id)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "confirm_delete", "Delete "+d.Name, map[string]any{
		"Object": d.String(),
		"Action": c.Request().URL.Path,
		"Cancel": "/store",
	})
}

func (h *StoreHTTP) DeleteItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "store.delete_item")

	cat, err := paramCategory(c, "drug_type")
	if err != nil {
		return err
	}
	id, err := paramID(c, "pk")
	if err != nil {
		return err
	}
	d, err := h.Drugs.Delete(ctx, cat, id)
	if err != nil {
		l.Warn("delete_item_error", "status", statusOf(err), "error", err)
		return err
	}
	flashSuccess(c, d.Name+" deleted")
	return redirect(c, "/store")
}

func (h *StoreHTTP) ReturnPage(c echo.Context) error {
	cat, err := paramCategory(c, "drug_type")
	if err != nil {
		return err
	}
	id, err := paramID(c, "pk")
	if err != nil {
		return err
	}
	d, err := h.Drugs.Get(c.Request().Context(), cat, id)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "return", "Return "+d.Name, map[string]any{"Drug": d, "Category": cat})
}

func (h *StoreHTTP) ReturnItem(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "store.return_item")

	id, err := paramID(c, "pk")
	if err != nil {
		return err
	}
	var req transport.ReturnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	res := h.Drugs.ReturnItem(ctx, c.Param("drug_type"), id, req.Quantity, req.Reason)
	if !res.Success {
		l.Warn("return_item_error", "status", res.Status, "reason", res.Message)
	}
	return h.stockResult(c, res, "/store")
}

func (h *StoreHTTP) UpdateStock(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "store.update_stock")

	cat, err := paramCategory(c, "drug_type")
	if err != nil {
		return err
	}
	id, err := paramID(c, "pk")
	if err != nil {
		return err
	}
	var req transport.StockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	d, err := h.Drugs.UpdateStock(ctx, cat, id, req.Quantity, req.Operation)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			return err
		}
		l.Warn("update_stock_error", "status", status, "error", err)
		return h.stockResult(c, service.StockResult{Message: userMessage(err), Status: status}, "/store")
	}
	return h.stockResult(c, service.StockResult{
		Success: true,
		Message: "Stock for " + d.Name + " is now " + strconv.Itoa(d.Stock),
		Status:  http.StatusOK,
	}, "/store")
}

func (h *StoreHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "store.add_to_cart")

	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	id, err := paramID(c, "pk")
	if err != nil {
		return err
	}
	var res service.StockResult
	if qty, err := quantityParam(c, 1); err != nil {
		res = service.StockResult{Message: userMessage(err), Status: http.StatusBadRequest}
	} else {
		res = h.Drugs.AddToCart(ctx, userID, c.Param("drug_type"), id, qty)
	}
	if !res.Success {
		l.Warn("add_to_cart_error", "status", res.Status, "reason", res.Message)
	}
	return h.stockResult(c, res, back(c, "/store"))
}

// QuickDispense puts one unit in the cart and sends the user to the dispense screen.
func (h *StoreHTTP) QuickDispense(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "store.quick_dispense")

	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	id, err := paramID(c, "pk")
	if err != nil {
		return err
	}
	res := h.Drugs.AddToCart(ctx, userID, c.Param("drug_type"), id, 1)
	if !res.Success {
		l.Warn("quick_dispense_error", "status", res.Status, "reason", res.Message)
		return c.JSON(res.Status, transport.StockResponse{Error: res.Message})
	}
	return c.JSON(http.StatusOK, transport.StockResponse{Success: true, Message: res.Message, RedirectURL: "/dispense"})
}

// stockResult answers XHR callers with JSON and browsers with a flash and a redirect.
func (h *StoreHTTP) stockResult(c echo.Context, res service.StockResult, to string) error {
	if wantsJSON(c) {
		if res.Success {
			return c.JSON(http.StatusOK, transport.StockResponse{Success: true, Message: res.Message})
		}
		return c.JSON(res.Status, transport.StockResponse{Error: res.Message})
	}
	if res.Success {
		flashSuccess(c, res.Message)
	} else {
		if res.Status == http.StatusInternalServerError {
			return echo.NewHTTPError(res.Status, res.Message)
		}
		flashError(c, res.Message)
	}
	return redirect(c, to)
}

func searchCategory(c echo.Context) (models.Category, error) {
	v := strings.TrimSpace(c.QueryParam("category"))
	if v == "" || v == "all" {
		return "", nil
	}
	return models.ParseCategory(v)
}

func (h *StoreHTTP) Search(c echo.Context) error {
	ctx := c.Request().Context()
	q := strings.TrimSpace(c.QueryParam("q"))
	cat, err := searchCategory(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid category")
	}
	var results []models.Drug
	if q != "" {
		if results, err = h.Drugs.Search(ctx, q, cat, htmlSearchLimit); err != nil {
			return err
		}
	}
	return render(c, http.StatusOK, "search", "Search", map[string]any{
		"Query":      q,
		"Category":   string(cat),
		"Categories": models.Categories,
		"Results":    results,
	})
}

func (h *StoreHTTP) SearchItems(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "store.search_items")

	q := strings.TrimSpace(c.QueryParam("q"))
	cat, err := searchCategory(c)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid category")
	}
	results := []transport.SearchResult{}
	if q == "" {
		return c.JSON(http.StatusOK, map[string]any{"results": results})
	}
	list, err := h.Drugs.Search(ctx, q, cat, jsonSearchLimit)
	if err != nil {
		l.Error("search_items_error", "status", 500, "error", err)
		return jsonError(c, http.StatusInternalServerError, "search failed")
	}
	for _, d := range list {
		results = append(results, transport.SearchResult{
			ID:    d.ID,
			Type:  string(d.Category),
			Name:  d.Name,
			Brand: d.Brand,
			Price: d.Price.StringFixed(2),
			Stock: d.Stock,
			Unit:  d.Unit,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

func (h *StoreHTTP) CategoryDrugs(c echo.Context) error {
	ctx := c.Request().Context()
	cat, err := models.ParseCategory(c.QueryParam("category"))
	if err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid category")
	}
	list, err := h.Drugs.List(ctx, cat)
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "cannot list drugs")
	}
	drugs := make([]transport.CategoryDrug, 0, len(list))
	for _, d := range list {
		drugs = append(drugs, transport.CategoryDrug{
			ID:    d.ID,
			Name:  d.Name,
			Brand: d.Brand,
			Price: d.Price.StringFixed(2),
			Stock: d.Stock,
			Unit:  d.Unit,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"drugs": drugs})
}
