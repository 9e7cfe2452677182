package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/neopharm/pharmacy/internal/events"
	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/repo"
	"github.com/neopharm/pharmacy/internal/util"
	"github.com/neopharm/pharmacy/pkg/logging"
)

type FormService struct {
	Repo   *repo.GormRepo
	Events events.Publisher
	Now    func() time.Time
}

type BuyerInput struct {
	BuyerName  string
	HospitalNo string
	NcapNo     string
}

func (in *BuyerInput) validate() error {
	in.BuyerName = strings.TrimSpace(in.BuyerName)
	in.HospitalNo = strings.TrimSpace(in.HospitalNo)
	in.NcapNo = strings.TrimSpace(in.NcapNo)
	if len(in.BuyerName) > 255 || len(in.HospitalNo) > 100 || len(in.NcapNo) > 100 {
		return fmt.Errorf("buyer details are too long: %w", ErrValidation)
	}
	return nil
}

type FormItemInput struct {
	DrugName   string
	DrugBrand  string
	DrugType   string
	DosageForm string
	Unit       string
	Quantity   int
	Price      decimal.Decimal
}

func (in *FormItemInput) validate() error {
	in.DrugName = strings.TrimSpace(in.DrugName)
	in.DrugType = strings.ToUpper(strings.TrimSpace(in.DrugType))
	if in.DrugName == "" {
		return fmt.Errorf("drug name is required: %w", ErrValidation)
	}
	if !slices.Contains(models.FormItemTypes, in.DrugType) {
		return fmt.Errorf("unknown drug type %q: %w", in.DrugType, ErrValidation)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive: %w", ErrValidation)
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("price cannot be negative: %w", ErrValidation)
	}
	return nil
}

func (in *FormItemInput) apply(it *models.FormItem) {
	it.DrugName = in.DrugName
	it.DrugBrand = in.DrugBrand
	it.DrugType = in.DrugType
	it.DosageForm = in.DosageForm
	it.Unit = in.Unit
	it.Quantity = in.Quantity
	it.Price = in.Price
}

// Dispense converts the user's pending cart into a Form.
func (s *FormService) Dispense(ctx context.Context, userID uint, in BuyerInput) (*models.Form, error) {
	l := logging.FromContext(ctx).With("svc", "form.dispense", "user_id", userID)
	if err := in.validate(); err != nil {
		return nil, err
	}

	form := models.Form{BuyerName: in.BuyerName, HospitalNo: in.HospitalNo, NcapNo: in.NcapNo}
	if err := s.Repo.CreateFormFromCart(ctx, userID, &form); err != nil {
		err = mapRepoErr("dispense", err)
		l.Warn("dispense_error", "error", err)
		return nil, err
	}

	l.Info("dispensed", "form_id", form.Code, "items", len(form.Items), "total", form.TotalAmount.StringFixed(2))
	events.Publish(ctx, s.Events, events.TopicForms, form.Code, map[string]any{
		"type":         "form_dispensed",
		"form_id":      form.Code,
		"user_id":      userID,
		"buyer_name":   form.BuyerName,
		"items":        len(form.Items),
		"total_amount": form.TotalAmount.StringFixed(2),
	})
	return &form, nil
}

func (s *FormService) List(ctx context.Context, page, size int) ([]models.Form, util.Page, error) {
	offset, limit := util.Calculate(page, size)
	total, list, err := s.Repo.ListForms(ctx, offset, limit)
	if err != nil {
		return nil, util.Page{}, err
	}
	return list, util.NewPage(page, size, total), nil
}

func (s *FormService) Recent(ctx context.Context, n int) ([]models.Form, error) {
	_, list, err := s.Repo.ListForms(ctx, 0, n)
	return list, err
}

func (s *FormService) Get(ctx context.Context, code string) (*models.Form, error) {
	f, err := s.Repo.FormByCode(ctx, code)
	if err != nil {
		return nil, mapRepoErr("get form", err)
	}
	return f, nil
}

func (s *FormService) UpdateBuyer(ctx context.Context, code string, in BuyerInput) (*models.Form, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	f, err := s.Repo.UpdateFormBuyer(ctx, code, in.BuyerName, in.HospitalNo, in.NcapNo)
	if err != nil {
		return nil, mapRepoErr("update form", err)
	}
	s.publishChange(ctx, "form_updated", f.Code)
	return f, nil
}

func (s *FormService) Item(ctx context.Context, code string, itemID uint) (*models.FormItem, error) {
	it, err := s.Repo.FormItem(ctx, code, itemID)
	if err != nil {
		return nil, mapRepoErr("get form item", err)
	}
	return it, nil
}

func (s *FormService) AddItem(ctx context.Context, code string, in FormItemInput) (*models.FormItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var it models.FormItem
	in.apply(&it)
	if err := s.Repo.AddFormItem(ctx, code, &it); err != nil {
		return nil, mapRepoErr("add form item", err)
	}
	s.publishChange(ctx, "form_item_added", code)
	return &it, nil
}

func (s *FormService) UpdateItem(ctx context.Context, code string, itemID uint, in FormItemInput) (*models.FormItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	it := models.FormItem{ID: itemID}
	in.apply(&it)
	if err := s.Repo.UpdateFormItem(ctx, code, &it); err != nil {
		return nil, mapRepoErr("update form item", err)
	}
	s.publishChange(ctx, "form_item_updated", code)
	return &it, nil
}

func (s *FormService) RemoveItem(ctx context.Context, code string, itemID uint) error {
	if err := s.Repo.DeleteFormItem(ctx, code, itemID); err != nil {
		return mapRepoErr("remove form item", err)
	}
	s.publishChange(ctx, "form_item_removed", code)
	return nil
}

type FormStats struct {
	TotalForms   int64
	RecentForms  int64
	TotalRevenue decimal.Decimal
	Average      decimal.Decimal
}

// Stats summarises all forms and those of the last 30 days.
func (s *FormService) Stats(ctx context.Context) (FormStats, error) {
	total, revenue, err := s.Repo.FormTotals(ctx, nil)
	if err != nil {
		return FormStats{}, err
	}
	since := nowOr(s.Now).AddDate(0, 0, -30)
	recent, _, err := s.Repo.FormTotals(ctx, &since)
	if err != nil {
		return FormStats{}, err
	}
	st := FormStats{TotalForms: total, RecentForms: recent, TotalRevenue: revenue, Average: decimal.Zero}
	if total > 0 {
		st.Average = revenue.Div(decimal.NewFromInt(total)).Round(2)
	}
	return st, nil
}

func (s *FormService) publishChange(ctx context.Context, typ, code string) {
	events.Publish(ctx, s.Events, events.TopicForms, code, map[string]any{
		"type":    typ,
		"form_id": code,
		"at":      strconv.FormatInt(nowOr(s.Now).Unix(), 10),
	})
}
