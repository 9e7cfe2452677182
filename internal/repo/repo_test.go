package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/neopharm/pharmacy/internal/models"
)

func InitTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	return db
}

func seedDrug(t *testing.T, r *GormRepo, cat models.Category, name string, stock int, price string) *models.Drug {
	t.Helper()
	d := &models.Drug{Name: name, Brand: "Emzor", Unit: "Tab", Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, r.CreateDrug(context.Background(), cat, d))
	return d
}

func seedUser(t *testing.T, r *GormRepo, mobile string) *models.User {
	t.Helper()
	u := &models.User{Username: "u" + mobile, Mobile: mobile, PasswordHash: "x", IsActive: true}
	require.NoError(t, r.CreateUser(context.Background(), u))
	return u
}

func stockOf(t *testing.T, r *GormRepo, cat models.Category, id uint) int {
	t.Helper()
	d, err := r.GetDrug(context.Background(), cat, id)
	require.NoError(t, err)
	return d.Stock
}

func TestAddToCart_MergesAndDecrements(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()
	now := time.Now().UTC()

	u := seedUser(t, r, "0801")
	d := seedDrug(t, r, models.CategoryNcap, "Paracetamol", 10, "2.50")

	_, first, err := r.AddToCart(ctx, u.ID, models.CategoryNcap, d.ID, 3, now)
	require.NoError(t, err)
	assert.Regexp(t, `^CID: \d{5}$`, first.CartCode)

	_, second, err := r.AddToCart(ctx, u.ID, models.CategoryNcap, d.ID, 2, now)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)
	assert.Equal(t, "12.50", second.Subtotal.StringFixed(2))

	items, err := r.PendingCart(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, stockOf(t, r, models.CategoryNcap, d.ID))
}

func TestAddToCart_InsufficientStockLeavesStock(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()

	u := seedUser(t, r, "0802")
	d := seedDrug(t, r, models.CategoryOncology, "Cisplatin", 2, "90.00")

	_, _, err := r.AddToCart(ctx, u.ID, models.CategoryOncology, d.ID, 3, time.Now())
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, stockOf(t, r, models.CategoryOncology, d.ID))

	n, err := r.CountPending(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAddToCart_UnknownDrug(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	u := seedUser(t, r, "0803")

	_, _, err := r.AddToCart(context.Background(), u.ID, models.CategoryLpacemaker, 404, 1, time.Now())
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestUpdateCartQuantity(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()
	now := time.Now()

	u := seedUser(t, r, "0804")
	d := seedDrug(t, r, models.CategoryLpacemaker, "Amoxil", 10, "1.00")
	_, item, err := r.AddToCart(ctx, u.ID, models.CategoryLpacemaker, d.ID, 4, now)
	require.NoError(t, err)

	updated, removed, err := r.UpdateCartQuantity(ctx, u.ID, item.ID, 7, now)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 7, updated.Quantity)
	assert.Equal(t, 3, stockOf(t, r, models.CategoryLpacemaker, d.ID))

	_, _, err = r.UpdateCartQuantity(ctx, u.ID, item.ID, 11, now)
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 3, stockOf(t, r, models.CategoryLpacemaker, d.ID))

	_, _, err = r.UpdateCartQuantity(ctx, u.ID, item.ID, 2, now)
	require.NoError(t, err)
	assert.Equal(t, 8, stockOf(t, r, models.CategoryLpacemaker, d.ID))

	_, removed, err = r.UpdateCartQuantity(ctx, u.ID, item.ID, 0, now)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 10, stockOf(t, r, models.CategoryLpacemaker, d.ID))
}

func TestUpdateCartQuantity_OtherUsersItem(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()

	owner := seedUser(t, r, "0805")
	other := seedUser(t, r, "0806")
	d := seedDrug(t, r, models.CategoryNcap, "Zinc", 5, "1.00")
	_, item, err := r.AddToCart(ctx, owner.ID, models.CategoryNcap, d.ID, 1, time.Now())
	require.NoError(t, err)

	_, _, err = r.UpdateCartQuantity(ctx, other.ID, item.ID, 2, time.Now())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRemoveAndClearRestoreStock(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()
	now := time.Now()

	u := seedUser(t, r, "0807")
	a := seedDrug(t, r, models.CategoryNcap, "ORS", 10, "0.50")
	b := seedDrug(t, r, models.CategoryOncology, "Tamoxifen", 6, "4.00")

	_, itemA, err := r.AddToCart(ctx, u.ID, models.CategoryNcap, a.ID, 4, now)
	require.NoError(t, err)
	_, _, err = r.AddToCart(ctx, u.ID, models.CategoryOncology, b.ID, 6, now)
	require.NoError(t, err)

	_, err = r.RemoveCartItem(ctx, u.ID, itemA.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 10, stockOf(t, r, models.CategoryNcap, a.ID))

	cleared, err := r.ClearCart(ctx, u.ID, now)
	require.NoError(t, err)
	assert.Len(t, cleared, 1)
	assert.Equal(t, 6, stockOf(t, r, models.CategoryOncology, b.ID))

	n, err := r.CountPending(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateFormFromCart(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()
	now := time.Now()

	u := seedUser(t, r, "0808")
	a := seedDrug(t, r, models.CategoryNcap, "ORS", 10, "0.50")
	b := seedDrug(t, r, models.CategoryLpacemaker, "Lead", 3, "120.00")
	_, _, err := r.AddToCart(ctx, u.ID, models.CategoryNcap, a.ID, 4, now)
	require.NoError(t, err)
	_, _, err = r.AddToCart(ctx, u.ID, models.CategoryLpacemaker, b.ID, 1, now)
	require.NoError(t, err)

	form := models.Form{BuyerName: "Chidi", HospitalNo: "H-1"}
	require.NoError(t, r.CreateFormFromCart(ctx, u.ID, &form))
	assert.Regexp(t, `^F\d{5}$`, form.Code)
	assert.Equal(t, "122.00", form.TotalAmount.StringFixed(2))

	n, err := r.CountPending(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := r.FormByCode(ctx, form.Code)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "NCAP", stored.Items[0].DrugType)
	assert.Equal(t, "LPACEMAKER", stored.Items[1].DrugType)
	require.NotNil(t, stored.DispensedBy)
	assert.Equal(t, u.ID, stored.DispensedBy.ID)

	err = r.CreateFormFromCart(ctx, u.ID, &models.Form{})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestFormItemEditsRecomputeTotal(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()

	u := seedUser(t, r, "0809")
	d := seedDrug(t, r, models.CategoryNcap, "ORS", 10, "1.00")
	_, _, err := r.AddToCart(ctx, u.ID, models.CategoryNcap, d.ID, 2, time.Now())
	require.NoError(t, err)
	form := models.Form{}
	require.NoError(t, r.CreateFormFromCart(ctx, u.ID, &form))

	extra := models.FormItem{DrugName: "Gauze", DrugType: "NCAP", Unit: "Roll", Quantity: 3, Price: decimal.RequireFromString("2.00")}
	require.NoError(t, r.AddFormItem(ctx, form.Code, &extra))
	f, err := r.FormByCode(ctx, form.Code)
	require.NoError(t, err)
	assert.Equal(t, "8.00", f.TotalAmount.StringFixed(2))

	extra.Quantity = 1
	require.NoError(t, r.UpdateFormItem(ctx, form.Code, &extra))
	f, err = r.FormByCode(ctx, form.Code)
	require.NoError(t, err)
	assert.Equal(t, "4.00", f.TotalAmount.StringFixed(2))

	require.NoError(t, r.DeleteFormItem(ctx, form.Code, extra.ID))
	f, err = r.FormByCode(ctx, form.Code)
	require.NoError(t, err)
	assert.Equal(t, "2.00", f.TotalAmount.StringFixed(2))

	assert.ErrorIs(t, r.DeleteFormItem(ctx, form.Code, 9999), gorm.ErrRecordNotFound)
}

func TestAdjustStock_NeverNegative(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()
	d := seedDrug(t, r, models.CategoryNcap, "Vitamin C", 3, "0.20")

	_, _, err := r.AdjustStock(ctx, models.CategoryNcap, d.ID, -4, time.Now())
	require.ErrorIs(t, err, ErrNegativeStock)

	got, old, err := r.AdjustStock(ctx, models.CategoryNcap, d.ID, -3, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, old)
	assert.Equal(t, 0, got.Stock)

	got, err = r.ReturnToStock(ctx, models.CategoryNcap, d.ID, 5, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
}

func TestExpiredWithStockAndZero(t *testing.T) {
	db := InitTestDB(t)
	r := &GormRepo{DB: db}
	ctx := context.Background()
	now := time.Now().UTC()

	d := seedDrug(t, r, models.CategoryOncology, "Old", 9, "1.00")
	past := now.AddDate(0, 0, -2)
	// bypass the save hook so the row keeps stock with a past expiry date
	require.NoError(t, db.Table(models.CategoryOncology.Table()).Where("id = ?", d.ID).Update("exp_date", past).Error)
	seedDrug(t, r, models.CategoryOncology, "Fresh", 9, "1.00")

	expired, err := r.ExpiredWithStock(ctx, models.CategoryOncology, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "Old", expired[0].Name)

	n, err := r.ZeroStock(ctx, models.CategoryOncology, []uint{d.ID}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 0, stockOf(t, r, models.CategoryOncology, d.ID))
}

func TestSearchDrugs(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()

	seedDrug(t, r, models.CategoryNcap, "Paracetamol", 1, "1.00")
	seedDrug(t, r, models.CategoryNcap, "Panadol Extra", 1, "1.00")
	seedDrug(t, r, models.CategoryNcap, "100% Glucose", 1, "1.00")

	got, err := r.SearchDrugs(ctx, models.CategoryNcap, "PARA", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.CategoryNcap, got[0].Category)

	got, err = r.SearchDrugs(ctx, models.CategoryNcap, "emzor", 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = r.SearchDrugs(ctx, models.CategoryNcap, "%", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "100% Glucose", got[0].Name)
}

func TestRotateRefreshToken(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()
	now := time.Now()
	u := seedUser(t, r, "0810")

	require.NoError(t, r.AddRefresh(ctx, u.ID, "raw-1", "jti-1", now.Add(time.Hour)))

	uid, err := r.RotateRefreshToken(ctx, "jti-1", "raw-1", "raw-2", "jti-2", now.Add(time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)

	_, err = r.RotateRefreshToken(ctx, "jti-1", "raw-1", "raw-3", "jti-3", now.Add(time.Hour), now)
	assert.ErrorIs(t, err, ErrRefreshRevoked)

	require.NoError(t, r.RevokeRefresh(ctx, "raw-2"))
	_, err = r.RotateRefreshToken(ctx, "jti-2", "raw-2", "raw-4", "jti-4", now.Add(time.Hour), now)
	assert.ErrorIs(t, err, ErrRefreshRevoked)
}

func TestUserAccessAndDelete(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()

	require.NoError(t, r.EnsurePermissions(ctx, models.DefaultPermissions))
	require.NoError(t, r.EnsurePermissions(ctx, models.DefaultPermissions))
	perms, err := r.ListPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, perms, len(models.DefaultPermissions))

	g := models.Group{Name: "Dispensers"}
	require.NoError(t, r.SaveGroup(ctx, &g, []uint{perms[0].ID}))
	assert.ErrorIs(t, r.SaveGroup(ctx, &models.Group{Name: "Dispensers"}, nil), ErrGroupAlreadyExist)

	u := seedUser(t, r, "0811")
	assert.ErrorIs(t, r.CreateUser(ctx, &models.User{Username: "x", Mobile: "0811", PasswordHash: "x"}), ErrUserAlreadyExist)

	require.NoError(t, r.SetUserAccess(ctx, u.ID, []uint{g.ID}, []uint{perms[1].ID}))
	loaded, err := r.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Groups, 1)
	assert.True(t, loaded.HasPerm(perms[0].Codename))
	assert.True(t, loaded.HasPerm(perms[1].Codename))

	members, err := r.GroupMembers(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	d := seedDrug(t, r, models.CategoryNcap, "ORS", 5, "1.00")
	_, _, err = r.AddToCart(ctx, u.ID, models.CategoryNcap, d.ID, 2, time.Now())
	require.NoError(t, err)

	require.NoError(t, r.DeleteUser(ctx, u.ID, time.Now()))
	_, err = r.UserByID(ctx, u.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Equal(t, 5, stockOf(t, r, models.CategoryNcap, d.ID))

	require.NoError(t, r.DeleteGroup(ctx, g.ID))
}

func TestCategoryStock(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()

	empty, err := r.CategoryStock(ctx, models.CategoryOncology, 10)
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.True(t, empty.TotalValue.IsZero())

	seedDrug(t, r, models.CategoryOncology, "A", 2, "10.00")
	seedDrug(t, r, models.CategoryOncology, "B", 20, "1.50")

	got, err := r.CategoryStock(ctx, models.CategoryOncology, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Count)
	assert.Equal(t, "50.00", got.TotalValue.StringFixed(2))
	assert.EqualValues(t, 1, got.LowStock)
}

func TestAddToCart_MergeKeepsLinePrice(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()
	now := time.Now().UTC()

	u := seedUser(t, r, "0809")
	d := seedDrug(t, r, models.CategoryNcap, "Ibuprofen", 10, "1.00")

	_, _, err := r.AddToCart(ctx, u.ID, models.CategoryNcap, d.ID, 2, now)
	require.NoError(t, err)
	require.NoError(t, r.DB.Table(models.CategoryNcap.Table()).Where("id = ?", d.ID).Update("price", "4.00").Error)

	_, line, err := r.AddToCart(ctx, u.ID, models.CategoryNcap, d.ID, 1, now)
	require.NoError(t, err)
	assert.Equal(t, 3, line.Quantity)
	assert.Equal(t, "1.00", line.Price.StringFixed(2))
	assert.Equal(t, "3.00", line.Subtotal.StringFixed(2))
}

func TestStockWrites_ExpiredDrugStaysAtZero(t *testing.T) {
	r := &GormRepo{DB: InitTestDB(t)}
	ctx := context.Background()
	now := time.Now().UTC()
	later := now.AddDate(0, 0, 5)

	exp := now.AddDate(0, 0, 2)
	d := &models.Drug{Name: "Amoxil", Brand: "GSK", Unit: "Cap", Price: decimal.RequireFromString("3.00"), Stock: 10, ExpDate: &exp}
	require.NoError(t, r.CreateDrug(ctx, models.CategoryNcap, d))

	u := seedUser(t, r, "0810")
	_, line, err := r.AddToCart(ctx, u.ID, models.CategoryNcap, d.ID, 4, now)
	require.NoError(t, err)
	require.Equal(t, 6, stockOf(t, r, models.CategoryNcap, d.ID))

	_, _, err = r.UpdateCartQuantity(ctx, u.ID, line.ID, 5, later)
	require.ErrorIs(t, err, ErrDrugExpired)
	assert.Equal(t, 6, stockOf(t, r, models.CategoryNcap, d.ID))

	_, err = r.RemoveCartItem(ctx, u.ID, line.ID, later)
	require.NoError(t, err)
	assert.Zero(t, stockOf(t, r, models.CategoryNcap, d.ID))

	got, err := r.ReturnToStock(ctx, models.CategoryNcap, d.ID, 4, later)
	require.NoError(t, err)
	assert.Zero(t, got.Stock)
	assert.Zero(t, stockOf(t, r, models.CategoryNcap, d.ID))
}
