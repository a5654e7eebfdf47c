package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/recovery"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/subscriptions"
)

type fakeRecovery struct {
	scans int64
}

func (f *fakeRecovery) Scan(context.Context, recovery.Options) (recovery.Result, error) {
	atomic.AddInt64(&f.scans, 1)
	return recovery.Result{}, nil
}

type fakeSweeper struct {
	sweeps int64
}

func (f *fakeSweeper) SweepExpired(context.Context, int) (subscriptions.SweepResult, error) {
	atomic.AddInt64(&f.sweeps, 1)
	return subscriptions.SweepResult{}, nil
}

func TestSchedulerRunsBothWorkers(t *testing.T) {
	rec := &fakeRecovery{}
	sweep := &fakeSweeper{}
	s := New(rec, sweep)
	s.RecoveryInterval = 10 * time.Millisecond
	s.SweepInterval = 10 * time.Millisecond

	s.Start()
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	assert.Greater(t, atomic.LoadInt64(&rec.scans), int64(0))
	assert.Greater(t, atomic.LoadInt64(&sweep.sweeps), int64(0))
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	s := New(&fakeRecovery{}, &fakeSweeper{})
	s.RecoveryInterval = time.Hour
	s.SweepInterval = time.Hour

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

func TestSchedulerRestart(t *testing.T) {
	rec := &fakeRecovery{}
	s := New(rec, &fakeSweeper{})
	s.RecoveryInterval = 10 * time.Millisecond
	s.SweepInterval = time.Hour

	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	first := atomic.LoadInt64(&rec.scans)
	assert.Greater(t, first, int64(0))

	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	assert.Greater(t, atomic.LoadInt64(&rec.scans), first)
}
