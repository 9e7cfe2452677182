package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/neopharm/pharmacy/internal/models"
)

func findGroups(tx *gorm.DB, ids []uint) ([]models.Group, error) {
	groups := []models.Group{}
	if len(ids) == 0 {
		return groups, nil
	}
	if err := tx.Where("id IN ?", ids).Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func findPermissions(tx *gorm.DB, ids []uint) ([]models.Permission, error) {
	perms := []models.Permission{}
	if len(ids) == 0 {
		return perms, nil
	}
	if err := tx.Where("id IN ?", ids).Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *GormRepo) ListGroups(ctx context.Context) ([]models.Group, error) {
	var list []models.Group
	if err := r.DB.WithContext(ctx).Preload("Permissions").Order("name ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *GormRepo) GroupByID(ctx context.Context, id uint) (*models.Group, error) {
	var g models.Group
	if err := r.DB.WithContext(ctx).Preload("Permissions").Where("id = ?", id).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *GormRepo) GroupMembers(ctx context.Context, groupID uint) ([]models.User, error) {
	var list []models.User
	if err := r.DB.WithContext(ctx).
		Preload("Profile").
		Joins("JOIN user_groups ON user_groups.user_id = users.id").
		Where("user_groups.group_id = ?", groupID).
		Order("users.username ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// SaveGroup creates or renames the group and replaces its permissions.
func (r *GormRepo) SaveGroup(ctx context.Context, g *models.Group, permIDs []uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Group{}).Where("name = ? AND id <> ?", g.Name, g.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrGroupAlreadyExist
		}
		perms, err := findPermissions(tx, permIDs)
		if err != nil {
			return err
		}
		g.Permissions = nil
		if err := tx.Omit("Permissions").Save(g).Error; err != nil {
			return err
		}
		if err := tx.Model(g).Association("Permissions").Replace(perms); err != nil {
			return err
		}
		g.Permissions = perms
		return nil
	})
}

func (r *GormRepo) DeleteGroup(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g models.Group
		if err := tx.Where("id = ?", id).First(&g).Error; err != nil {
			return err
		}
		if err := tx.Model(&g).Association("Permissions").Clear(); err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM user_groups WHERE group_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&g).Error
	})
}

func (r *GormRepo) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	var list []models.Permission
	if err := r.DB.WithContext(ctx).Order("codename ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// EnsurePermissions inserts any missing permission by codename.
func (r *GormRepo) EnsurePermissions(ctx context.Context, perms []models.Permission) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range perms {
			p := p
			if err := tx.Where(models.Permission{Codename: p.Codename}).Attrs(models.Permission{Name: p.Name}).FirstOrCreate(&p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormRepo) AnySuperuser(ctx context.Context) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.User{}).Where("is_superuser = ?", true).Count(&n).Error
	return n > 0, err
}
