package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Options configures a quota Service.
type Options struct {
	Limit     int
	Retention time.Duration
	Mode      Mode
}

// Service enforces the weekly per-identity generation limit.
type Service struct {
	store  Store
	atomic AtomicStore
	opts   Options
}

// NewService creates a quota Service. ModeAtomic requires a store that
// implements AtomicStore; otherwise the service falls back to optimistic mode.
func NewService(store Store, opts Options) *Service {
	if opts.Limit <= 0 {
		opts.Limit = DefaultWeeklyLimit
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Mode == "" {
		opts.Mode = ModeOptimistic
	}

	s := &Service{store: store, opts: opts}
	if opts.Mode == ModeAtomic {
		if as, ok := store.(AtomicStore); ok {
			s.atomic = as
		} else {
			slog.Warn("quota: store has no atomic increment, using optimistic mode")
			s.opts.Mode = ModeOptimistic
		}
	}
	return s
}

// Limit returns the configured weekly limit.
func (s *Service) Limit() int {
	return s.opts.Limit
}

// Mode returns the effective counting mode.
func (s *Service) Mode() Mode {
	return s.opts.Mode
}

// Reserve consumes one unit for identity in the period containing now.
// When the identity is at or over the limit it returns *ExceededError and
// leaves the counter untouched.
func (s *Service) Reserve(ctx context.Context, identity string, now time.Time) (Usage, error) {
	usage := s.usage(identity, now)
	key := Key(usage.Period, identity)

	if s.atomic != nil {
		count, ok, err := s.atomic.IncrementCapped(ctx, key, s.opts.Limit, s.opts.Retention)
		if err != nil {
			return usage, fmt.Errorf("reserving quota: %w", err)
		}
		usage.Used = count
		if !ok {
			return usage, &ExceededError{Usage: usage}
		}
		return usage, nil
	}

	count, err := s.store.Get(ctx, key)
	if err != nil {
		return usage, fmt.Errorf("reading quota: %w", err)
	}
	usage.Used = count
	if count >= s.opts.Limit {
		return usage, &ExceededError{Usage: usage}
	}

	if err := s.store.Set(ctx, key, count+1, s.opts.Retention); err != nil {
		return usage, fmt.Errorf("writing quota: %w", err)
	}
	usage.Used = count + 1
	return usage, nil
}

// Release gives back one unit previously taken by Reserve.
func (s *Service) Release(ctx context.Context, usage Usage) (Usage, error) {
	key := Key(usage.Period, usage.Identity)

	if s.atomic != nil {
		count, err := s.atomic.Decrement(ctx, key)
		if err != nil {
			return usage, fmt.Errorf("releasing quota: %w", err)
		}
		usage.Used = count
		return usage, nil
	}

	count, err := s.store.Get(ctx, key)
	if err != nil {
		return usage, fmt.Errorf("reading quota: %w", err)
	}
	if count <= 0 {
		usage.Used = 0
		return usage, nil
	}
	if err := s.store.Set(ctx, key, count-1, s.opts.Retention); err != nil {
		return usage, fmt.Errorf("writing quota: %w", err)
	}
	usage.Used = count - 1
	return usage, nil
}

// Status reports current usage without consuming anything.
func (s *Service) Status(ctx context.Context, identity string, now time.Time) (Usage, error) {
	usage := s.usage(identity, now)
	count, err := s.store.Get(ctx, Key(usage.Period, identity))
	if err != nil {
		return usage, fmt.Errorf("reading quota: %w", err)
	}
	usage.Used = count
	return usage, nil
}

func (s *Service) usage(identity string, now time.Time) Usage {
	return Usage{
		Identity: NormalizeIdentity(identity),
		Period:   PeriodLabel(now),
		Limit:    s.opts.Limit,
		ResetsAt: NextReset(now),
	}
}
