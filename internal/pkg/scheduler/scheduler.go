package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/env"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/recovery"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/subscriptions"
)

// Default intervals for the periodic background tasks. The sweep only
// finalizes boundaries that are already days wide (plan periods, the grace
// window), so once a day is enough.
const (
	DefaultRecoveryInterval = 5 * time.Minute
	DefaultSweepInterval    = 24 * time.Hour
	defaultSweepLimit       = 200
)

// RecoveryRunner is the slice of the recovery scanner the scheduler drives.
type RecoveryRunner interface {
	Scan(ctx context.Context, opts recovery.Options) (recovery.Result, error)
}

// SweepRunner is the slice of the subscription engine the scheduler drives.
type SweepRunner interface {
	SweepExpired(ctx context.Context, limit int) (subscriptions.SweepResult, error)
}

// Scheduler runs the periodic background tasks: the lost-payment recovery
// scan and the subscription expiry sweep.
type Scheduler struct {
	recovery RecoveryRunner
	sweeper  SweepRunner

	RecoveryInterval time.Duration
	SweepInterval    time.Duration
	SweepLimit       int

	recoveryTicker *time.Ticker
	sweepTicker    *time.Ticker
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool
}

// New creates a scheduler with intervals from the environment.
// RECOVERY_SCAN_INTERVAL_MINUTES and SUBSCRIPTION_SWEEP_INTERVAL_MINUTES
// override the defaults.
func New(recoveryRunner RecoveryRunner, sweeper SweepRunner) *Scheduler {
	s := &Scheduler{
		recovery:         recoveryRunner,
		sweeper:          sweeper,
		RecoveryInterval: DefaultRecoveryInterval,
		SweepInterval:    DefaultSweepInterval,
		SweepLimit:       defaultSweepLimit,
	}
	if v, err := strconv.Atoi(env.GetEnv("RECOVERY_SCAN_INTERVAL_MINUTES", "")); err == nil && v > 0 {
		s.RecoveryInterval = time.Duration(v) * time.Minute
	}
	if v, err := strconv.Atoi(env.GetEnv("SUBSCRIPTION_SWEEP_INTERVAL_MINUTES", "")); err == nil && v > 0 {
		s.SweepInterval = time.Duration(v) * time.Minute
	}
	return s
}

// Start launches the background workers. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	// Recreate the stop channel so the scheduler can be restarted safely.
	s.stopCh = make(chan struct{})
	s.running = true
	log.Infof("[Scheduler] Starting background tasks (recovery every %s, sweep every %s)",
		s.RecoveryInterval, s.SweepInterval)

	s.recoveryTicker = time.NewTicker(s.RecoveryInterval)
	s.wg.Add(1)
	go s.recoveryWorker()

	s.sweepTicker = time.NewTicker(s.SweepInterval)
	s.wg.Add(1)
	go s.sweepWorker()
}

// Stop signals the workers and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	log.Info("[Scheduler] Stopping background tasks...")

	if s.recoveryTicker != nil {
		s.recoveryTicker.Stop()
	}
	if s.sweepTicker != nil {
		s.sweepTicker.Stop()
	}

	close(s.stopCh)
	s.running = false

	s.wg.Wait()
	log.Info("[Scheduler] Stopped")
}

func (s *Scheduler) recoveryWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			log.Info("[Scheduler] Recovery worker stopping")
			return
		case <-s.recoveryTicker.C:
			result, err := s.recovery.Scan(context.Background(), recovery.Options{})
			if err != nil {
				log.Errorf("[Scheduler] Recovery scan error: %v", err)
				continue
			}
			if result.Recovered > 0 || result.Failed > 0 {
				log.Infof("[Scheduler] Recovery scan resolved %d payments (%d recovered, %d failed)",
					result.Recovered+result.Failed, result.Recovered, result.Failed)
			}
		}
	}
}

func (s *Scheduler) sweepWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			log.Info("[Scheduler] Sweep worker stopping")
			return
		case <-s.sweepTicker.C:
			result, err := s.sweeper.SweepExpired(context.Background(), s.SweepLimit)
			if err != nil {
				log.Errorf("[Scheduler] Subscription sweep error: %v", err)
				continue
			}
			if result.Expired > 0 || result.Cancelled > 0 || result.Activated > 0 {
				log.Infof("[Scheduler] Sweep finalized %d subscriptions (expired=%d cancelled=%d activated=%d)",
					result.Expired+result.Cancelled+result.Activated, result.Expired, result.Cancelled, result.Activated)
			}
		}
	}
}
