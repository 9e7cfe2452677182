package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/neopharm/pharmacy/internal/service"
)

type fakeZeroer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeZeroer) ZeroExpired(ctx context.Context, dryRun bool) ([]service.ExpiredItem, error) {
	f.calls.Add(1)
	if dryRun {
		return nil, errors.New("worker must not dry run")
	}
	return []service.ExpiredItem{{Name: "ORS"}}, f.err
}

func TestExpiryWorker_RunsUntilCancelled(t *testing.T) {
	z := &fakeZeroer{}
	w := NewExpiryWorker(z, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return z.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestExpiryWorker_KeepsGoingAfterError(t *testing.T) {
	z := &fakeZeroer{err: errors.New("db down")}
	w := NewExpiryWorker(z, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	assert.Eventually(t, func() bool { return z.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}
