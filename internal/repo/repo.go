package repo

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/neopharm/pharmacy/internal/models"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDrugExpired       = errors.New("drug expired")
	ErrNegativeStock     = errors.New("stock cannot go negative")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrUserAlreadyExist  = errors.New("user already exist")
	ErrGroupAlreadyExist = errors.New("group already exist")
	ErrCodeExhausted     = errors.New("could not allocate a unique code")
)

type GormRepo struct {
	DB *gorm.DB
}

func drugs(tx *gorm.DB, cat models.Category) *gorm.DB {
	return tx.Table(cat.Table())
}

// lockDrug reads a drug row with SELECT ... FOR UPDATE; the lock lives until tx ends.
func lockDrug(tx *gorm.DB, cat models.Category, id uint) (*models.Drug, error) {
	var d models.Drug
	if err := drugs(tx, cat).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	d.Category = cat
	return &d, nil
}

// uniqueCode draws prefix+5 digits until the value is unused in table.column.
func uniqueCode(tx *gorm.DB, table, column, prefix string) (string, error) {
	for i := 0; i < 20; i++ {
		code := fmt.Sprintf("%s%05d", prefix, rand.IntN(100000))
		var n int64
		if err := tx.Table(table).Where(column+" = ?", code).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

// likePattern builds a case-insensitive contains pattern with LIKE wildcards escaped.
func likePattern(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)
	return "%" + q + "%"
}
