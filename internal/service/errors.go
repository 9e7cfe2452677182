package service

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/neopharm/pharmacy/internal/repo"
)

var (
	ErrValidation         = errors.New("validation")
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrExpired            = errors.New("drug expired")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
)

// StockResult is the outcome of a stock operation as shown to the user.
type StockResult struct {
	Success bool
	Message string
	Status  int
}

// mapRepoErr translates repository errors into service sentinels.
func mapRepoErr(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, repo.ErrInsufficientStock), errors.Is(err, repo.ErrNegativeStock):
		return fmt.Errorf("%s: %w", what, ErrInsufficientStock)
	case errors.Is(err, repo.ErrDrugExpired):
		return fmt.Errorf("%s: %w", what, ErrExpired)
	case errors.Is(err, repo.ErrEmptyCart):
		return fmt.Errorf("%s: %w", what, ErrEmptyCart)
	case errors.Is(err, repo.ErrUserAlreadyExist), errors.Is(err, repo.ErrGroupAlreadyExist):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return err
}

func nowOr(f func() time.Time) time.Time {
	if f != nil {
		return f().UTC()
	}
	return time.Now().UTC()
}
