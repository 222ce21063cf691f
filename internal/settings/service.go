package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"budgetapp/internal/core"
	"budgetapp/internal/log"

	"github.com/shopspring/decimal"
)

// Repository persists settings and income plans per user.
type Repository interface {
	LoadSettings(ctx context.Context, user string) (Settings, bool, error)
	SaveSettings(ctx context.Context, user string, s Settings) error
	IncomePlan(ctx context.Context, user, month string) (decimal.Decimal, bool, error)
	SaveIncomePlan(ctx context.Context, user, month string, amount decimal.Decimal) error
}

// Service is the settings store.
type Service struct {
	repo   Repository
	logger *log.Logger
	locks  sync.Map // user -> *sync.Mutex
}

func NewService(repo Repository, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{repo: repo, logger: logger.WithComponent(log.ComponentSettings)}
}

// Load returns the user's settings, or the defaults when none are stored.
func (s *Service) Load(ctx context.Context, user string) (Settings, error) {
	st, ok, err := s.repo.LoadSettings(ctx, user)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return Defaults(), nil
	}
	return st.Normalize(), nil
}

// Save normalizes and stores the settings.
func (s *Service) Save(ctx context.Context, user string, st Settings) (Settings, error) {
	defer s.lock(user)()
	return s.save(ctx, user, st)
}

func (s *Service) save(ctx context.Context, user string, st Settings) (Settings, error) {
	st = st.Normalize()
	if err := s.repo.SaveSettings(ctx, user, st); err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return st, nil
}

// Reset stores and returns the defaults.
func (s *Service) Reset(ctx context.Context, user string) (Settings, error) {
	return s.Save(ctx, user, Defaults())
}

// Execute applies cmd optimistically. The new settings are stored before
// the remote commit; if the commit fails the previous snapshot is stored
// again and the commit error returned alongside it. Commands for one user
// run one at a time, so a rollback never drops another command's change.
func (s *Service) Execute(ctx context.Context, user string, cmd Command) (Settings, error) {
	defer s.lock(user)()

	prev, err := s.Load(ctx, user)
	if err != nil {
		return Settings{}, err
	}
	snapshot := prev.Clone()

	next, err := cmd.Apply(prev)
	if err != nil {
		return snapshot, err
	}
	next, err = s.save(ctx, user, next)
	if err != nil {
		return snapshot, err
	}

	if err := cmd.Commit(ctx); err != nil {
		s.logger.WarnContext(ctx, "Settings change rejected remotely, rolling back",
			log.FieldUser, user, log.FieldError, err)
		if _, rbErr := s.save(ctx, user, snapshot); rbErr != nil {
			return snapshot, errors.Join(fmt.Errorf("commit settings: %w", err), fmt.Errorf("rollback settings: %w", rbErr))
		}
		return snapshot, fmt.Errorf("commit settings: %w", err)
	}
	return next, nil
}

// lock takes the user's settings lock and returns its release.
func (s *Service) lock(user string) func() {
	v, _ := s.locks.LoadOrStore(user, new(sync.Mutex))
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// PlannedIncome returns the user's planned income for month, zero when
// none is set.
func (s *Service) PlannedIncome(ctx context.Context, user, month string) (decimal.Decimal, error) {
	if !core.ValidMonthKey(month) {
		return decimal.Zero, ErrInvalidMonth
	}
	amt, _, err := s.repo.IncomePlan(ctx, user, month)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load income plan: %w", err)
	}
	return amt, nil
}

// SetPlannedIncome stores the planned income for month. Zero clears the
// plan.
func (s *Service) SetPlannedIncome(ctx context.Context, user, month string, amount decimal.Decimal) error {
	if !core.ValidMonthKey(month) {
		return ErrInvalidMonth
	}
	if amount.IsNegative() {
		return ErrNegative
	}
	if err := s.repo.SaveIncomePlan(ctx, user, month, amount); err != nil {
		return fmt.Errorf("save income plan: %w", err)
	}
	s.logger.InfoContext(ctx, "Planned income updated",
		log.FieldUser, user, log.FieldMonth, month, log.FieldAmount, amount.StringFixed(2))
	return nil
}
