package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/pkg/tokens"
)

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "08037777777", models.UserTypePharmacist)

	_, _, err := f.auth.Login(ctx, "08037777777", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.auth.Login(ctx, "08000000000", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.auth.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	pair, got, err := f.auth.Login(ctx, " 08037777777 ", "password123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, models.RolePharmacist, pair.Role)

	claims, err := tokens.AccessClaimsFromToken(pair.AccessToken, f.auth.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, models.RolePharmacist, claims.Role)

	reloaded, err := f.users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastLogin)
}

func TestLogin_InactiveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "08038888888", "")

	_, err := f.users.Update(ctx, u.ID, UserUpdate{Username: u.Username, Mobile: u.Mobile, IsActive: false})
	require.NoError(t, err)

	_, _, err = f.auth.Login(ctx, u.Mobile, "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh_RotatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "08039999999", "")

	pair, _, err := f.auth.Login(ctx, u.Mobile, "password123")
	require.NoError(t, err)

	next, err := f.auth.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	assert.Equal(t, models.RolePharmTech, next.Role)

	_, err = f.auth.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.auth.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, f.auth.LogOut(ctx, next.RefreshToken))
	_, err = f.auth.Refresh(ctx, next.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefresh_PicksUpRoleChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "08030101010", "")

	pair, _, err := f.auth.Login(ctx, u.Mobile, "password123")
	require.NoError(t, err)
	assert.Equal(t, models.RolePharmTech, pair.Role)

	_, err = f.users.Update(ctx, u.ID, UserUpdate{Username: u.Username, Mobile: u.Mobile, IsActive: true, UserType: models.UserTypeAdmin})
	require.NoError(t, err)

	next, err := f.auth.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, next.Role)
}
