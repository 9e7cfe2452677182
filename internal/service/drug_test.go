package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neopharm/pharmacy/internal/cache"
	"github.com/neopharm/pharmacy/internal/models"
)

func TestDrugCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   DrugInput
	}{
		{"missing name", DrugInput{Name: "  "}},
		{"bad markup", DrugInput{Name: "A", Markup: 33}},
		{"negative stock", DrugInput{Name: "A", Stock: -1}},
		{"negative cost", DrugInput{Name: "A", Cost: decimal.NewFromInt(-1)}},
		{"unknown unit", DrugInput{Name: "A", Unit: "Barrel"}},
		{"unknown dosage form", DrugInput{Name: "A", DosageForm: "Powder"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.drugs.Create(ctx, models.CategoryNcap, tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestDrugCreate_PriceFromCostAndMarkup(t *testing.T) {
	f := newFixture(t)

	d, err := f.drugs.Create(context.Background(), models.CategoryOncology, DrugInput{
		Name:   "Tamoxifen",
		Cost:   decimal.RequireFromString("10.00"),
		Markup: 25,
		Stock:  4,
	})
	require.NoError(t, err)
	assert.Equal(t, "12.50", d.Price.StringFixed(2))
	assert.Equal(t, models.CategoryOncology, d.Category)
	assert.Contains(t, f.events.Types(), "drug_created")
}

func TestDrugCreate_ExpiredSavedWithZeroStock(t *testing.T) {
	f := newFixture(t)
	past := f.now.AddDate(0, -1, 0)

	d, err := f.drugs.Create(context.Background(), models.CategoryNcap, DrugInput{Name: "Old", Stock: 30, ExpDate: &past})
	require.NoError(t, err)
	assert.Equal(t, 0, d.Stock)
	assert.Equal(t, 0, f.stock(t, models.CategoryNcap, d.ID))
}

func TestDrugUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.drug(t, models.CategoryLpacemaker, "Lead", 3, "100")

	in := InputFromDrug(d)
	in.Stock = 8
	in.Brand = "Medtronic"
	got, err := f.drugs.Update(ctx, models.CategoryLpacemaker, d.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stock)
	assert.Equal(t, "Medtronic", got.Brand)

	_, err = f.drugs.Update(ctx, models.CategoryLpacemaker, 999, in)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.drugs.Delete(ctx, models.CategoryLpacemaker, d.ID)
	require.NoError(t, err)
	_, err = f.drugs.Get(ctx, models.CategoryLpacemaker, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddToCart_Results(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "08030000001", models.UserTypePharmTech)
	d := f.drug(t, models.CategoryNcap, "Paracetamol", 10, "2.50")

	res := f.drugs.AddToCart(ctx, u.ID, "NCAP", d.ID, 4)
	assert.Equal(t, StockResult{Success: true, Message: "Added 4 Paracetamol to cart", Status: http.StatusOK}, res)

	res = f.drugs.AddToCart(ctx, u.ID, "ncap", d.ID, 2)
	assert.True(t, res.Success)
	assert.Equal(t, 4, f.stock(t, models.CategoryNcap, d.ID))

	cart, err := f.carts.Pending(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 6, cart.Items[0].Quantity)
	assert.Equal(t, "15.00", cart.Total.StringFixed(2))

	res = f.drugs.AddToCart(ctx, u.ID, "ncap", d.ID, 5)
	assert.Equal(t, StockResult{Message: "Insufficient stock", Status: http.StatusBadRequest}, res)
	assert.Equal(t, 4, f.stock(t, models.CategoryNcap, d.ID))

	res = f.drugs.AddToCart(ctx, u.ID, "vitamins", d.ID, 1)
	assert.Equal(t, StockResult{Message: "Invalid item", Status: http.StatusNotFound}, res)

	res = f.drugs.AddToCart(ctx, u.ID, "ncap", 4242, 1)
	assert.Equal(t, http.StatusNotFound, res.Status)

	res = f.drugs.AddToCart(ctx, u.ID, "ncap", d.ID, 0)
	assert.Equal(t, http.StatusBadRequest, res.Status)
}

func TestAddToCart_ExpiredDrugRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "08030000002", "")
	d := f.drug(t, models.CategoryOncology, "Cisplatin", 5, "40")

	// the drug expires after it was stocked
	f.now = f.now.AddDate(0, 0, 1)
	expiry := f.now.AddDate(0, 0, -1)
	require.NoError(t, f.repo.DB.Table(models.CategoryOncology.Table()).Where("id = ?", d.ID).Update("exp_date", expiry).Error)

	res := f.drugs.AddToCart(ctx, u.ID, "oncology", d.ID, 1)
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, 5, f.stock(t, models.CategoryOncology, d.ID))
}

func TestReturnItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.drug(t, models.CategoryNcap, "ORS", 2, "0.50")

	res := f.drugs.ReturnItem(ctx, "ncap", d.ID, 3, "customer returned unopened")
	assert.Equal(t, StockResult{Success: true, Message: "ORS returned successfully!", Status: http.StatusOK}, res)
	assert.Equal(t, 5, f.stock(t, models.CategoryNcap, d.ID))

	assert.Equal(t, http.StatusBadRequest, f.drugs.ReturnItem(ctx, "ncap", d.ID, 0, "x").Status)
	assert.Equal(t, http.StatusBadRequest, f.drugs.ReturnItem(ctx, "ncap", d.ID, 1, " ").Status)
	assert.Equal(t, http.StatusNotFound, f.drugs.ReturnItem(ctx, "ncap", 777, 1, "x").Status)
	assert.Equal(t, http.StatusNotFound, f.drugs.ReturnItem(ctx, "bogus", d.ID, 1, "x").Status)
}

func TestUpdateStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.drug(t, models.CategoryLpacemaker, "Battery", 5, "12")

	got, err := f.drugs.UpdateStock(ctx, models.CategoryLpacemaker, d.ID, 3, StockAdd)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stock)

	got, err = f.drugs.UpdateStock(ctx, models.CategoryLpacemaker, d.ID, 8, StockSubtract)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	_, err = f.drugs.UpdateStock(ctx, models.CategoryLpacemaker, d.ID, 1, StockSubtract)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = f.drugs.UpdateStock(ctx, models.CategoryLpacemaker, d.ID, 1, "multiply")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.drugs.UpdateStock(ctx, models.CategoryLpacemaker, d.ID, 0, StockAdd)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStockChangesOnExpiredDrugKeepZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.drug(t, models.CategoryNcap, "Amoxil", 5, "3.00")

	f.now = f.now.AddDate(0, 0, 2)
	expiry := f.now.AddDate(0, 0, -1)
	require.NoError(t, f.repo.DB.Table(models.CategoryNcap.Table()).Where("id = ?", d.ID).Update("exp_date", expiry).Error)

	res := f.drugs.ReturnItem(ctx, "ncap", d.ID, 4, "returned after expiry")
	assert.True(t, res.Success)
	assert.Zero(t, f.stock(t, models.CategoryNcap, d.ID))

	got, err := f.drugs.UpdateStock(ctx, models.CategoryNcap, d.ID, 3, StockAdd)
	require.NoError(t, err)
	assert.Zero(t, got.Stock)
	assert.Zero(t, f.stock(t, models.CategoryNcap, d.ID))
}

func TestZeroExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.drug(t, models.CategoryNcap, "Old Syrup", 7, "3")
	f.drug(t, models.CategoryNcap, "Fresh Syrup", 7, "3")
	expiry := f.now.AddDate(0, 0, -3)
	require.NoError(t, f.repo.DB.Table(models.CategoryNcap.Table()).Where("id = ?", old.ID).Update("exp_date", expiry).Error)

	dry, err := f.drugs.ZeroExpired(ctx, true)
	require.NoError(t, err)
	require.Len(t, dry, 1)
	assert.Equal(t, "Old Syrup", dry[0].Name)
	assert.Equal(t, 7, dry[0].Stock)
	assert.Equal(t, 7, f.stock(t, models.CategoryNcap, old.ID))

	done, err := f.drugs.ZeroExpired(ctx, false)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, 0, f.stock(t, models.CategoryNcap, old.ID))
	assert.Contains(t, f.events.Types(), "drug_expired")

	again, err := f.drugs.ZeroExpired(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, again)
}

type fakeIndex struct {
	hits []models.Drug
	err  error
	puts int
}

func (x *fakeIndex) Put(context.Context, *models.Drug) error             { x.puts++; return nil }
func (x *fakeIndex) Remove(context.Context, models.Category, uint) error { return nil }
func (x *fakeIndex) Search(_ context.Context, _ string, cat models.Category, _ int) ([]models.Drug, error) {
	if x.err != nil {
		return nil, x.err
	}
	var out []models.Drug
	for _, d := range x.hits {
		if d.Category == cat {
			out = append(out, d)
		}
	}
	return out, nil
}

func TestSearch_DatabaseAndIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.drug(t, models.CategoryLpacemaker, "Paracetamol IV", 1, "1")
	f.drug(t, models.CategoryNcap, "Paracetamol", 1, "1")
	f.drug(t, models.CategoryNcap, "Ibuprofen", 1, "1")

	all, err := f.drugs.Search(ctx, "paracet", "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.CategoryLpacemaker, all[0].Category)
	assert.Equal(t, models.CategoryNcap, all[1].Category)

	one, err := f.drugs.Search(ctx, "", models.CategoryNcap, 10)
	require.NoError(t, err)
	assert.Len(t, one, 2)

	idx := &fakeIndex{hits: []models.Drug{{ID: 99, Name: "From Index", Category: models.CategoryOncology}}}
	f.drugs.Index = idx
	got, err := f.drugs.Search(ctx, "index", models.CategoryOncology, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint(99), got[0].ID)

	idx.err = errors.New("cluster red")
	got, err = f.drugs.Search(ctx, "ibu", models.CategoryNcap, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ibuprofen", got[0].Name)

	f.drug(t, models.CategoryNcap, "Zinc", 1, "1")
	assert.Equal(t, 1, idx.puts)
}

type memCounts struct {
	data        map[string]int64
	invalidated int
}

func (m *memCounts) Get(context.Context) (map[string]int64, error) {
	if m.data == nil {
		return nil, cache.ErrMiss
	}
	return m.data, nil
}
func (m *memCounts) Set(_ context.Context, c map[string]int64) error { m.data = c; return nil }

func (m *memCounts) Invalidate(context.Context) error { m.data = nil; m.invalidated++; return nil }

func TestCounts_Cached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mc := &memCounts{}
	f.drugs.CountCache = mc

	f.drug(t, models.CategoryNcap, "A", 1, "1")
	f.drug(t, models.CategoryOncology, "B", 1, "1")

	got, err := f.drugs.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"lpacemaker": 0, "ncap": 1, "oncology": 1}, got)
	assert.NotNil(t, mc.data)

	mc.data["ncap"] = 42
	got, err = f.drugs.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 42, got["ncap"])

	f.drug(t, models.CategoryNcap, "C", 1, "1")
	assert.Nil(t, mc.data)
	got, err = f.drugs.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got["ncap"])
}

func TestRename(t *testing.T) {
	f := newFixture(t)
	d := f.drug(t, models.CategoryNcap, "Paracetmol", 1, "1")

	got, err := f.drugs.Rename(context.Background(), models.CategoryNcap, d.ID, "Paracetamol")
	require.NoError(t, err)
	assert.Equal(t, "Paracetamol", got.Name)

	_, err = f.drugs.Rename(context.Background(), models.CategoryNcap, d.ID, "")
	assert.ErrorIs(t, err, ErrValidation)
}
