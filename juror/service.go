package juror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAddress      = errors.New("juror: address is required")
	ErrStakeTooLow       = errors.New("juror: stake below minimum")
	ErrAlreadyRegistered = errors.New("juror: already registered")
	ErrNotActive         = errors.New("juror: not active")
)

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, j Juror) (bool, error)
	Reactivate(ctx context.Context, address string, stake decimal.Decimal) (bool, error)
	Deactivate(ctx context.Context, address string) (bool, error)
	UpdateStake(ctx context.Context, address string, stake decimal.Decimal) (bool, error)
	Get(ctx context.Context, address string) (Juror, error)
	ListActive(ctx context.Context, limit, offset int) ([]Juror, int, error)
	Top(ctx context.Context, limit int) ([]Juror, error)
	IncrementParticipation(ctx context.Context, addresses []string) error
	IncrementResolved(ctx context.Context, addresses []string) error
	Stats(ctx context.Context) (int, decimal.Decimal, float64, error)
}

// Service manages the juror registry. The minimum stake comes from
// configuration; everything else is fixed policy.
type Service struct {
	store    Store
	minStake decimal.Decimal
	now      func() time.Time
}

func NewService(store Store, minStake int64) *Service {
	return &Service{
		store:    store,
		minStake: decimal.NewFromInt(minStake),
		now:      time.Now,
	}
}

// Register adds a juror with the given stake. An inactive registration is
// reactivated with the new stake; an active one is rejected.
func (s *Service) Register(ctx context.Context, address string, stake decimal.Decimal) (Juror, error) {
	address = NormalizeAddress(address)
	if address == "" {
		return Juror{}, ErrEmptyAddress
	}
	if stake.LessThan(s.minStake) {
		return Juror{}, fmt.Errorf("%w: need at least %s", ErrStakeTooLow, s.minStake)
	}

	now := s.now().UTC()
	inserted, err := s.store.Insert(ctx, Juror{
		Address:      address,
		Stake:        stake,
		Reputation:   DefaultReputation,
		IsActive:     true,
		RegisteredAt: now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Juror{}, err
	}
	if !inserted {
		reactivated, err := s.store.Reactivate(ctx, address, stake)
		if err != nil {
			return Juror{}, err
		}
		if !reactivated {
			return Juror{}, ErrAlreadyRegistered
		}
	}
	return s.store.Get(ctx, address)
}

// Unregister deactivates a juror. The row is kept so stats survive.
func (s *Service) Unregister(ctx context.Context, address string) (Juror, error) {
	address = NormalizeAddress(address)
	if address == "" {
		return Juror{}, ErrEmptyAddress
	}
	ok, err := s.store.Deactivate(ctx, address)
	if err != nil {
		return Juror{}, err
	}
	if !ok {
		if _, err := s.store.Get(ctx, address); errors.Is(err, ErrNotFound) {
			return Juror{}, ErrNotFound
		}
		return Juror{}, ErrNotActive
	}
	return s.store.Get(ctx, address)
}

// UpdateStake replaces an active juror's stake, still subject to the
// minimum.
func (s *Service) UpdateStake(ctx context.Context, address string, stake decimal.Decimal) (Juror, error) {
	address = NormalizeAddress(address)
	if address == "" {
		return Juror{}, ErrEmptyAddress
	}
	if stake.LessThan(s.minStake) {
		return Juror{}, fmt.Errorf("%w: need at least %s", ErrStakeTooLow, s.minStake)
	}
	ok, err := s.store.UpdateStake(ctx, address, stake)
	if err != nil {
		return Juror{}, err
	}
	if !ok {
		if _, err := s.store.Get(ctx, address); errors.Is(err, ErrNotFound) {
			return Juror{}, ErrNotFound
		}
		return Juror{}, ErrNotActive
	}
	return s.store.Get(ctx, address)
}

// Get returns a juror by address.
func (s *Service) Get(ctx context.Context, address string) (Juror, error) {
	address = NormalizeAddress(address)
	if address == "" {
		return Juror{}, ErrEmptyAddress
	}
	return s.store.Get(ctx, address)
}

// ListActive pages through active jurors by reputation.
func (s *Service) ListActive(ctx context.Context, limit, offset int) ([]Juror, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListActive(ctx, limit, offset)
}

// Top returns the highest-reputation active jurors.
func (s *Service) Top(ctx context.Context, limit int) ([]Juror, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.store.Top(ctx, limit)
}

// MarkParticipation records that the given jurors were assigned to a
// dispute.
func (s *Service) MarkParticipation(ctx context.Context, addresses []string) error {
	return s.store.IncrementParticipation(ctx, normalizeAll(addresses))
}

// MarkResolution records that the given jurors voted with the majority on
// a resolved dispute.
func (s *Service) MarkResolution(ctx context.Context, addresses []string) error {
	return s.store.IncrementResolved(ctx, normalizeAll(addresses))
}

// Stats summarizes the registry.
type Stats struct {
	ActiveJurors    int
	TotalStake      decimal.Decimal
	AverageAccuracy float64
	MinimumStake    decimal.Decimal
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	active, stake, accuracy, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		ActiveJurors:    active,
		TotalStake:      stake,
		AverageAccuracy: accuracy,
		MinimumStake:    s.minStake,
	}, nil
}

func normalizeAll(addresses []string) []string {
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if n := NormalizeAddress(a); n != "" {
			out = append(out, n)
		}
	}
	return out
}
