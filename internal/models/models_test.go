package models

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func day(offset int) *time.Time {
	t := time.Now().UTC().AddDate(0, 0, offset)
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{in: "lpacemaker", want: CategoryLpacemaker},
		{in: "NCAP", want: CategoryNcap},
		{in: " Oncology ", want: CategoryOncology},
		{in: "antibiotics", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCategory)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategoryNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ncap_drugs", CategoryNcap.Table())
	assert.Equal(t, "NCAP", CategoryNcap.Label())
	assert.Equal(t, "ONCOLOGY", CategoryOncology.ItemType())
	assert.Equal(t, "lpacemaker_drug_id", DrugColumn(CategoryLpacemaker))
}

func TestDrugNormalize_RecomputesPrice(t *testing.T) {
	t.Parallel()

	d := Drug{Cost: decimal.RequireFromString("10.00"), Markup: 25, Stock: 4}
	d.Normalize(time.Now())

	assert.Equal(t, "12.50", d.Price.StringFixed(2))
	assert.Equal(t, 4, d.Stock)
}

func TestDrugNormalize_KeepsManualPriceWithoutCost(t *testing.T) {
	t.Parallel()

	d := Drug{Price: decimal.RequireFromString("3.20"), Markup: 10}
	d.Normalize(time.Now())

	assert.Equal(t, "3.20", d.Price.StringFixed(2))
}

func TestDrugNormalize_ZeroesExpiredStock(t *testing.T) {
	t.Parallel()

	d := Drug{Stock: 30, ExpDate: day(-1)}
	d.Normalize(time.Now())
	assert.Equal(t, 0, d.Stock)

	fresh := Drug{Stock: 30, ExpDate: day(0)}
	fresh.Normalize(time.Now())
	assert.Equal(t, 30, fresh.Stock)
}

func TestDrugExpirationStatus(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name string
		exp  *time.Time
		want string
	}{
		{name: "no date", exp: nil, want: "No expiry date"},
		{name: "expired", exp: day(-3), want: "Expired on " + day(-3).Format(time.DateOnly)},
		{name: "soon", exp: day(5), want: "Expires soon (5 days)"},
		{name: "today", exp: day(0), want: "Expires soon (0 days)"},
		{name: "valid", exp: day(30), want: "Valid until " + day(30).Format(time.DateOnly)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Drug{ExpDate: tt.exp}
			assert.Equal(t, tt.want, d.ExpirationStatus(now))
		})
	}
}

func TestCartItemDrugRef(t *testing.T) {
	t.Parallel()

	var ci CartItem
	_, _, ok := ci.Drug()
	assert.False(t, ok)

	ci.SetDrug(CategoryNcap, 9)
	cat, id, ok := ci.Drug()
	require.True(t, ok)
	assert.Equal(t, CategoryNcap, cat)
	assert.Equal(t, uint(9), id)
	assert.Nil(t, ci.LpacemakerDrugID)

	ci.SetDrug(CategoryOncology, 2)
	cat, _, _ = ci.Drug()
	assert.Equal(t, CategoryOncology, cat)
	assert.Nil(t, ci.NcapDrugID)
}

func TestUserRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user User
		want string
	}{
		{name: "superuser", user: User{IsSuperuser: true}, want: RoleAdmin},
		{name: "staff", user: User{IsStaff: true}, want: RoleAdmin},
		{name: "admin type", user: User{Profile: Profile{UserType: UserTypeAdmin}}, want: RoleAdmin},
		{name: "pharmacist", user: User{Profile: Profile{UserType: UserTypePharmacist}}, want: RolePharmacist},
		{name: "tech", user: User{Profile: Profile{UserType: UserTypePharmTech}}, want: RolePharmTech},
		{name: "no type", user: User{}, want: RolePharmTech},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.user.Role())
		})
	}
}

func TestUserHasPerm(t *testing.T) {
	t.Parallel()

	u := User{
		Permissions: []Permission{{Codename: "view_form"}},
		Groups:      []Group{{Name: "Dispensers", Permissions: []Permission{{Codename: "dispense"}}}},
	}
	assert.True(t, u.HasPerm("view_form"))
	assert.True(t, u.HasPerm("dispense"))
	assert.False(t, u.HasPerm("manage_users"))

	root := User{IsSuperuser: true}
	assert.True(t, root.HasPerm("manage_users"))
}

func TestMigrateAndHooks(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Migrate(db))

	u := User{Username: "amaka", Mobile: "0801", PasswordHash: "x", IsActive: true}
	require.NoError(t, db.Create(&u).Error)

	var p Profile
	require.NoError(t, db.Where("user_id = ?", u.ID).First(&p).Error)
	assert.Equal(t, UserTypePharmTech, p.UserType)

	d := Drug{Name: "Paracetamol", Cost: decimal.RequireFromString("100"), Markup: 10, Stock: 5, ExpDate: day(-10)}
	require.NoError(t, db.Table(CategoryNcap.Table()).Create(&d).Error)

	var stored Drug
	require.NoError(t, db.Table(CategoryNcap.Table()).First(&stored, d.ID).Error)
	assert.Equal(t, 0, stored.Stock)
	assert.Equal(t, "110.00", stored.Price.StringFixed(2))

	item := CartItem{UserID: u.ID, CartCode: "CID: 00001", Quantity: 3, Price: decimal.RequireFromString("2.50")}
	item.SetDrug(CategoryNcap, d.ID)
	require.NoError(t, db.Create(&item).Error)
	assert.Equal(t, "7.50", item.Subtotal.StringFixed(2))
}
