package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/neopharm/pharmacy/internal/models"
	jwthelp "github.com/neopharm/pharmacy/pkg/jwt"
)

var ErrRefreshRevoked = errors.New("token expired or revoked")

func (r *GormRepo) AddRefresh(ctx context.Context, userID uint, rawToken, jti string, exp time.Time) error {
	rt := models.RefreshToken{
		Token:     jwthelp.Sha256Hex(rawToken),
		UserID:    userID,
		JTI:       jti,
		ExpiresAt: exp.Unix(),
	}
	return r.DB.WithContext(ctx).Create(&rt).Error
}

func refreshExpiredOrRevoked(tx *gorm.DB, jti, rawToken string, now time.Time) (*models.RefreshToken, error) {
	var rt models.RefreshToken
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("jti = ?", jti).First(&rt).Error; err != nil {
		return nil, err
	}
	if rt.Revoked || rt.ExpiresAt < now.Unix() || rt.Token != jwthelp.Sha256Hex(rawToken) {
		return nil, ErrRefreshRevoked
	}
	return &rt, nil
}

// RotateRefreshToken revokes the old token and stores the new one in one transaction.
// A token that was already used fails with ErrRefreshRevoked.
func (r *GormRepo) RotateRefreshToken(ctx context.Context, oldJTI, oldRaw string, newRaw, newJTI string, newExp, now time.Time) (uint, error) {
	var userID uint
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old, err := refreshExpiredOrRevoked(tx, oldJTI, oldRaw, now)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.RefreshToken{}).Where("id = ?", old.ID).Update("revoked", true).Error; err != nil {
			return err
		}
		userID = old.UserID
		return tx.Create(&models.RefreshToken{
			Token:     jwthelp.Sha256Hex(newRaw),
			UserID:    old.UserID,
			JTI:       newJTI,
			ExpiresAt: newExp.Unix(),
		}).Error
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func (r *GormRepo) RevokeRefresh(ctx context.Context, rawToken string) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ?", jwthelp.Sha256Hex(rawToken)).
		Update("revoked", true).Error
}

func (r *GormRepo) RevokeAllForUser(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}
