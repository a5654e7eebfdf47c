package accounts

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/abojihad01/central-payment-system-sub002/app/models"
	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/env"
)

// ErrNoAccountAvailable is returned when no active account survives the
// gateway/currency/country/exclusion filters. The checkout must fail closed
// in that case; no payment is created without an owning account.
var ErrNoAccountAvailable = errors.New("accounts: no payment account available")

// DefaultMaxFallbackAttempts bounds how often a caller may re-select with
// the failed account excluded before giving up.
const DefaultMaxFallbackAttempts = 3

// Rotation stores the round_robin pointer per gateway. The production
// implementation lives on Redis so multiple workers share one rotation.
type Rotation interface {
	Next(ctx context.Context, gateway string) (int64, error)
}

// SelectionInput carries the filter parameters for one selection.
type SelectionInput struct {
	Gateway     string
	Currency    string
	Country     string
	ExcludedIDs []uint
}

// Selector picks the payment account that should own a new checkout
// attempt. Selection never mutates usage counters; only the outcome
// recording operations do, so an abandoned checkout does not skew stats.
type Selector struct {
	repo                Repository
	strategy            string
	rotation            Rotation
	MaxFallbackAttempts int

	randIntn func(int) int
}

// NewSelector creates a selector with the given strategy. An empty or
// unknown strategy falls back to least_used.
func NewSelector(repo Repository, strategy string, rotation Rotation) *Selector {
	return &Selector{
		repo:                repo,
		strategy:            normalizeStrategy(strategy),
		rotation:            rotation,
		MaxFallbackAttempts: DefaultMaxFallbackAttempts,
		randIntn:            rand.Intn,
	}
}

// NewSelectorFromEnv reads the strategy from ACCOUNT_SELECTION_STRATEGY.
func NewSelectorFromEnv(repo Repository, rotation Rotation) *Selector {
	s := NewSelector(repo, env.GetEnv("ACCOUNT_SELECTION_STRATEGY", models.StrategyLeastUsed), rotation)
	if v := env.GetEnv("ACCOUNT_MAX_FALLBACK_ATTEMPTS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.MaxFallbackAttempts = n
		}
	}
	return s
}

// Select returns the account that should handle a new payment attempt.
func (s *Selector) Select(ctx context.Context, in SelectionInput) (*models.PaymentAccount, error) {
	candidates, err := s.candidates(in)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoAccountAvailable
	}

	switch s.strategy {
	case models.StrategyRoundRobin:
		return s.pickRoundRobin(ctx, in.Gateway, candidates)
	case models.StrategyWeighted:
		return s.pickWeighted(candidates), nil
	case models.StrategyManual:
		// Candidates are already ordered by priority; first available wins.
		return &candidates[0], nil
	default:
		return pickLeastUsed(candidates), nil
	}
}

// RecordSuccess records a settled payment on the owning account.
func (s *Selector) RecordSuccess(ctx context.Context, accountID uint, amount int64) error {
	_ = ctx
	return s.repo.RecordSuccess(accountID, amount, time.Now())
}

// RecordFailure records a failed settlement attempt on the owning account.
func (s *Selector) RecordFailure(ctx context.Context, accountID uint) error {
	_ = ctx
	return s.repo.RecordFailure(accountID, time.Now())
}

func (s *Selector) candidates(in SelectionInput) ([]models.PaymentAccount, error) {
	all, err := s.repo.ListActiveByGateway(strings.ToLower(strings.TrimSpace(in.Gateway)))
	if err != nil {
		return nil, err
	}

	excluded := make(map[uint]struct{}, len(in.ExcludedIDs))
	for _, id := range in.ExcludedIDs {
		excluded[id] = struct{}{}
	}

	survivors := make([]models.PaymentAccount, 0, len(all))
	for _, account := range all {
		if _, skip := excluded[account.ID]; skip {
			continue
		}
		if !account.SupportsCurrency(in.Currency) || !account.SupportsCountry(in.Country) {
			continue
		}
		survivors = append(survivors, account)
	}
	return survivors, nil
}

// pickLeastUsed spreads load evenly and surfaces new/unused accounts first:
// lowest success count wins, ties broken by oldest last-used (never-used
// accounts sort before everything).
func pickLeastUsed(candidates []models.PaymentAccount) *models.PaymentAccount {
	best := &candidates[0]
	for i := 1; i < len(candidates); i++ {
		c := &candidates[i]
		if c.SuccessfulTransactions < best.SuccessfulTransactions {
			best = c
			continue
		}
		if c.SuccessfulTransactions == best.SuccessfulTransactions && lastUsedBefore(c, best) {
			best = c
		}
	}
	return best
}

func lastUsedBefore(a, b *models.PaymentAccount) bool {
	if a.LastUsedAt == nil {
		return b.LastUsedAt != nil
	}
	if b.LastUsedAt == nil {
		return false
	}
	return a.LastUsedAt.Before(*b.LastUsedAt)
}

func (s *Selector) pickRoundRobin(ctx context.Context, gateway string, candidates []models.PaymentAccount) (*models.PaymentAccount, error) {
	if s.rotation == nil {
		log.Warnf("[Accounts] round_robin strategy without rotation store, falling back to least_used")
		return pickLeastUsed(candidates), nil
	}
	pointer, err := s.rotation.Next(ctx, gateway)
	if err != nil {
		log.Warnf("[Accounts] rotation pointer unavailable, falling back to least_used: %v", err)
		return pickLeastUsed(candidates), nil
	}
	idx := int(pointer % int64(len(candidates)))
	if idx < 0 {
		idx += len(candidates)
	}
	return &candidates[idx], nil
}

func (s *Selector) pickWeighted(candidates []models.PaymentAccount) *models.PaymentAccount {
	total := 0
	for _, c := range candidates {
		if c.Weight > 0 {
			total += c.Weight
		}
	}
	if total <= 0 {
		return pickLeastUsed(candidates)
	}
	roll := s.randIntn(total)
	for i := range candidates {
		w := candidates[i].Weight
		if w <= 0 {
			continue
		}
		if roll < w {
			return &candidates[i]
		}
		roll -= w
	}
	return &candidates[len(candidates)-1]
}

func normalizeStrategy(strategy string) string {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case models.StrategyRoundRobin:
		return models.StrategyRoundRobin
	case models.StrategyWeighted:
		return models.StrategyWeighted
	case models.StrategyManual:
		return models.StrategyManual
	default:
		return models.StrategyLeastUsed
	}
}
