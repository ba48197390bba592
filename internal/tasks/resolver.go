package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
	"golang.org/x/time/rate"
)

// RetryPolicy bounds how artist lookups are retried.
//
// The delay before retry n (n >= 1) is min(MaxDelay, BaseDelay * Multiplier^(n-1)),
// then spread by +/- Jitter as a fraction of itself. MaxAttempts 0 retries without bound.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64
}

// DefaultRetryPolicy gives up after six attempts, backing off from 2s towards 80s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   2 * time.Second,
		MaxDelay:    80 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// FixedRetryPolicy retries forever, sleeping delay between attempts.
func FixedRetryPolicy(delay time.Duration) RetryPolicy {
	return RetryPolicy{BaseDelay: delay, MaxDelay: delay, Multiplier: 1}
}

// RetryPolicyFromConfig converts the [resolver] config section.
func RetryPolicyFromConfig(c shared.ResolverConfig) (RetryPolicy, error) {
	base, ceiling, err := c.Delays()
	if err != nil {
		return RetryPolicy{}, err
	}
	return RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   base,
		MaxDelay:    ceiling,
		Multiplier:  c.Multiplier,
		Jitter:      c.Jitter,
	}, nil
}

// Delay returns the pause before retry number retry. rnd yields values in [0, 1); nil disables jitter.
func (p RetryPolicy) Delay(retry int, rnd func() float64) time.Duration {
	if retry < 1 {
		retry = 1
	}

	mult := math.Max(p.Multiplier, 1)
	d := float64(p.BaseDelay) * math.Pow(mult, float64(retry-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	if p.Jitter > 0 && rnd != nil {
		d += d * p.Jitter * (2*rnd() - 1)
	}
	return time.Duration(d)
}

// Sleeper pauses for d, returning early with the context's error when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production [Sleeper].
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ArtistLookup fetches one artist.
type ArtistLookup interface {
	Artist(ctx context.Context, artistID string) (*models.Artist, error)
}

// ResolveState is the per-artist resolver state.
type ResolveState int

const (
	StatePending ResolveState = iota
	StateRequesting
	StateRateLimited
	StateSleeping
	StateDone
	StateFailed
)

func (s ResolveState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRequesting:
		return "requesting"
	case StateRateLimited:
		return "rate_limited"
	case StateSleeping:
		return "sleeping"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return ""
	}
}

// Resolver looks up artist genres, retrying failed lookups per its [RetryPolicy].
type Resolver struct {
	lookup  ArtistLookup
	policy  RetryPolicy
	sleep   Sleeper
	limiter *rate.Limiter
	rand    func() float64
	logger  *log.Logger
	observe func(artistID string, s ResolveState)
}

// ResolverOption configures a [Resolver].
type ResolverOption func(*Resolver)

// WithSleeper replaces [SleepContext].
func WithSleeper(s Sleeper) ResolverOption {
	return func(r *Resolver) { r.sleep = s }
}

// WithLimiter paces every lookup through l.
func WithLimiter(l *rate.Limiter) ResolverOption {
	return func(r *Resolver) { r.limiter = l }
}

// WithRequestsPerSecond paces lookups at rps with a burst of one. rps <= 0 leaves lookups unpaced.
func WithRequestsPerSecond(rps float64) ResolverOption {
	return func(r *Resolver) {
		if rps > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRandom sets the jitter source.
func WithRandom(fn func() float64) ResolverOption {
	return func(r *Resolver) { r.rand = fn }
}

// WithStateObserver receives every state transition. fn must be safe for concurrent use.
func WithStateObserver(fn func(artistID string, s ResolveState)) ResolverOption {
	return func(r *Resolver) { r.observe = fn }
}

// NewResolver creates a resolver over lookup.
func NewResolver(lookup ArtistLookup, policy RetryPolicy, logger *log.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lookup: lookup,
		policy: policy,
		sleep:  SleepContext,
		rand:   rand.Float64,
		logger: orDiscard(logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveGenres returns the artist's genre labels. An empty result is returned as is.
//
// Rate limiting, transient and unclassified failures are retried. Auth failures, unknown
// artists and cancellation end the loop at once. When the attempt budget runs out the last
// failure is returned wrapped in [shared.ErrPermanentUpstream].
func (r *Resolver) ResolveGenres(ctx context.Context, artistID string) ([]string, error) {
	r.transition(artistID, StatePending)

	for attempt := 1; ; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				r.transition(artistID, StateFailed)
				return nil, fmt.Errorf("waiting for request slot: %w", err)
			}
		}

		r.transition(artistID, StateRequesting)
		artist, err := r.lookup.Artist(ctx, artistID)
		if err == nil {
			r.transition(artistID, StateDone)
			genres := artist.Genres
			if genres == nil {
				genres = []string{}
			}
			return genres, nil
		}

		if isTerminal(err) {
			r.transition(artistID, StateFailed)
			return nil, err
		}

		r.transition(artistID, StateRateLimited)
		if r.policy.MaxAttempts > 0 && attempt >= r.policy.MaxAttempts {
			r.transition(artistID, StateFailed)
			return nil, fmt.Errorf("%w: artist %s failed %d times: %w", shared.ErrPermanentUpstream, artistID, attempt, err)
		}

		delay := r.policy.Delay(attempt, r.rand)
		r.logger.Warn("artist lookup failed, backing off", "artist", artistID, "attempt", attempt, "delay", delay, "err", err)

		r.transition(artistID, StateSleeping)
		if err := r.sleep(ctx, delay); err != nil {
			r.transition(artistID, StateFailed)
			return nil, err
		}
	}
}

func (r *Resolver) transition(artistID string, s ResolveState) {
	if r.observe != nil {
		r.observe(artistID, s)
	}
}

func isTerminal(err error) bool {
	for _, target := range []error{
		context.Canceled,
		context.DeadlineExceeded,
		shared.ErrAuthFailed,
		shared.ErrNotAuthenticated,
		shared.ErrMissingCredentials,
		shared.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
