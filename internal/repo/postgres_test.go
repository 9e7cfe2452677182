package repo

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/pkg/db"
)

// Runs only against a real Postgres, where FOR UPDATE actually serialises writers.
func TestAddToCart_ConcurrentNeverOversells(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	gdb, err := db.Open(ctx, "postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, models.Migrate(gdb))
	r := &GormRepo{DB: gdb}

	const stock, buyers = 10, 25
	d := seedDrug(t, r, models.CategoryNcap, "ORS "+uuid.NewString()[:8], stock, "1.00")

	users := make([]*models.User, buyers)
	for i := range users {
		users[i] = seedUser(t, r, uuid.NewString()[:18])
	}
	t.Cleanup(func() {
		for _, u := range users {
			_ = r.DeleteUser(ctx, u.ID, time.Now())
		}
		_, _ = r.DeleteDrug(ctx, models.CategoryNcap, d.ID)
	})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		refused int
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, _, err := r.AddToCart(ctx, userID, models.CategoryNcap, d.ID, 1, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientStock):
				refused++
			default:
				t.Errorf("add to cart: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	assert.Equal(t, stock, ok)
	assert.Equal(t, buyers-stock, refused)
	assert.Zero(t, stockOf(t, r, models.CategoryNcap, d.ID))
}
