package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/neopharm/pharmacy/internal/models"
)

func withAccess(db *gorm.DB) *gorm.DB {
	return db.Preload("Profile").Preload("Groups.Permissions").Preload("Permissions")
}

// CreateUser inserts u unless its mobile or username is taken.
func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("mobile = ? OR username = ?", u.Mobile, u.Username).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrUserAlreadyExist
		}
		return tx.Create(u).Error
	})
}

func (r *GormRepo) UserByMobile(ctx context.Context, mobile string) (*models.User, error) {
	var u models.User
	if err := withAccess(r.DB.WithContext(ctx)).Where("mobile = ?", mobile).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormRepo) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := withAccess(r.DB.WithContext(ctx)).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UserFilter narrows the admin user list.
type UserFilter struct {
	UserType string
	Staff    bool
	Inactive bool
}

func (r *GormRepo) ListUsers(ctx context.Context, f UserFilter) ([]models.User, error) {
	q := r.DB.WithContext(ctx).Model(&models.User{}).Preload("Profile").Preload("Groups")
	if f.UserType != "" {
		q = q.Joins("JOIN profiles ON profiles.user_id = users.id").Where("profiles.user_type = ?", f.UserType)
	}
	if f.Staff {
		q = q.Where("users.is_staff = ?", true)
	}
	if f.Inactive {
		q = q.Where("users.is_active = ?", false)
	}
	var list []models.User
	if err := q.Order("users.username ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// UniqueTaken reports whether another user already owns mobile or username.
func (r *GormRepo) UniqueTaken(ctx context.Context, exceptID uint, mobile, username string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id <> ? AND (mobile = ? OR username = ?)", exceptID, mobile, username).
		Count(&n).Error
	return n > 0, err
}

// SaveUser writes the user row and its profile, leaving group and permission links alone.
func (r *GormRepo) SaveUser(ctx context.Context, u *models.User) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(u).Error; err != nil {
			return err
		}
		u.Profile.UserID = u.ID
		return tx.Save(&u.Profile).Error
	})
}

func (r *GormRepo) UpdatePassword(ctx context.Context, userID uint, hash string) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) TouchLastLogin(ctx context.Context, userID uint, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("last_login", at).Error
}

// DeleteUser returns the user's pending cart to stock and removes the user with
// every link table row, profile and refresh token. Forms keep their totals with no dispenser.
func (r *GormRepo) DeleteUser(ctx context.Context, id uint, now time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.Where("id = ?", id).First(&u).Error; err != nil {
			return err
		}
		if err := clearCart(tx, id, now, nil); err != nil {
			return err
		}
		if err := tx.Model(&u).Association("Groups").Clear(); err != nil {
			return err
		}
		if err := tx.Model(&u).Association("Permissions").Clear(); err != nil {
			return err
		}
		if err := tx.Model(&models.Form{}).Where("dispensed_by_id = ?", id).Update("dispensed_by_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Profile{}).Error; err != nil {
			return err
		}
		return tx.Delete(&u).Error
	})
}

// SetUserAccess replaces the user's groups and direct permissions.
func (r *GormRepo) SetUserAccess(ctx context.Context, userID uint, groupIDs, permIDs []uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		if err := tx.Where("id = ?", userID).First(&u).Error; err != nil {
			return err
		}
		groups, err := findGroups(tx, groupIDs)
		if err != nil {
			return err
		}
		perms, err := findPermissions(tx, permIDs)
		if err != nil {
			return err
		}
		if err := tx.Model(&u).Association("Groups").Replace(groups); err != nil {
			return err
		}
		return tx.Model(&u).Association("Permissions").Replace(perms)
	})
}

// UserCounts is what the admin dashboard shows.
type UserCounts struct {
	Total       int64
	Active      int64
	Staff       int64
	Superusers  int64
	Admins      int64
	Pharmacists int64
	PharmTechs  int64
}

func (r *GormRepo) CountUsers(ctx context.Context) (UserCounts, error) {
	var c UserCounts
	db := r.DB.WithContext(ctx)
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&c.Total, db.Model(&models.User{})},
		{&c.Active, db.Model(&models.User{}).Where("is_active = ?", true)},
		{&c.Staff, db.Model(&models.User{}).Where("is_staff = ?", true)},
		{&c.Superusers, db.Model(&models.User{}).Where("is_superuser = ?", true)},
		{&c.Admins, db.Model(&models.Profile{}).Where("user_type = ?", models.UserTypeAdmin)},
		{&c.Pharmacists, db.Model(&models.Profile{}).Where("user_type = ?", models.UserTypePharmacist)},
		{&c.PharmTechs, db.Model(&models.Profile{}).Where("user_type = ?", models.UserTypePharmTech)},
	}
	for _, q := range counts {
		if err := q.query.Count(q.dst).Error; err != nil {
			return UserCounts{}, err
		}
	}
	return c, nil
}
