package tasks

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/genrefy/internal/models"
	"github.com/desertthunder/genrefy/internal/shared"
	"golang.org/x/time/rate"
)

type lookupFunc func(ctx context.Context, id string) (*models.Artist, error)

func (f lookupFunc) Artist(ctx context.Context, id string) (*models.Artist, error) {
	return f(ctx, id)
}

// scriptedLookup fails with errs in order, then succeeds with genres.
type scriptedLookup struct {
	mu     sync.Mutex
	errs   []error
	genres []string
	calls  int
}

func (s *scriptedLookup) Artist(ctx context.Context, id string) (*models.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return &models.Artist{ID: id, Genres: s.genres}, nil
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func TestRetryPolicy(t *testing.T) {
	t.Run("Default Delays", func(t *testing.T) {
		p := DefaultRetryPolicy()
		tests := []struct {
			retry int
			want  time.Duration
		}{
			{0, 2 * time.Second},
			{1, 2 * time.Second},
			{2, 4 * time.Second},
			{3, 8 * time.Second},
			{6, 64 * time.Second},
			{7, 80 * time.Second},
			{20, 80 * time.Second},
		}

		for _, tt := range tests {
			if got := p.Delay(tt.retry, nil); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.retry, got, tt.want)
			}
		}
	})

	t.Run("Jitter Bounds", func(t *testing.T) {
		p := DefaultRetryPolicy()

		if got := p.Delay(1, func() float64 { return 0 }); got != 1600*time.Millisecond {
			t.Errorf("low jitter = %v, want 1.6s", got)
		}
		if got := p.Delay(1, func() float64 { return 0.5 }); got != 2*time.Second {
			t.Errorf("centred jitter = %v, want 2s", got)
		}
		if got := p.Delay(1, func() float64 { return 0.999 }); got > 2400*time.Millisecond || got < 2*time.Second {
			t.Errorf("high jitter = %v, want within (2s, 2.4s]", got)
		}
	})

	t.Run("Fixed", func(t *testing.T) {
		p := FixedRetryPolicy(80 * time.Second)
		if p.MaxAttempts != 0 {
			t.Errorf("expected unbounded attempts, got %d", p.MaxAttempts)
		}
		for retry := 1; retry <= 5; retry++ {
			if got := p.Delay(retry, nil); got != 80*time.Second {
				t.Errorf("Delay(%d) = %v, want 80s", retry, got)
			}
		}
	})

	t.Run("Multiplier Below One", func(t *testing.T) {
		p := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 0.5}
		if got := p.Delay(4, nil); got != time.Second {
			t.Errorf("expected the base delay, got %v", got)
		}
	})

	t.Run("From Config", func(t *testing.T) {
		p, err := RetryPolicyFromConfig(shared.DefaultConfig().Resolver)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p != DefaultRetryPolicy() {
			t.Errorf("got %+v, want %+v", p, DefaultRetryPolicy())
		}

		_, err = RetryPolicyFromConfig(shared.ResolverConfig{BaseDelay: "soon", MaxDelay: "1s"})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("Fails Twice Then Succeeds", func(t *testing.T) {
		lookup := &scriptedLookup{
			errs:   []error{shared.ErrRateLimited, shared.ErrTransientUpstream},
			genres: []string{"shoegaze"},
		}
		sleeper := &recordingSleeper{}
		r := NewResolver(lookup, DefaultRetryPolicy(), nil, WithSleeper(sleeper.Sleep), WithRandom(nil))

		genres, err := r.ResolveGenres(ctx, "a1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(genres, []string{"shoegaze"}) {
			t.Errorf("genres = %v", genres)
		}
		if lookup.calls != 3 {
			t.Errorf("expected 3 lookups, got %d", lookup.calls)
		}
		if want := []time.Duration{2 * time.Second, 4 * time.Second}; !slices.Equal(sleeper.delays, want) {
			t.Errorf("sleeps = %v, want %v", sleeper.delays, want)
		}
	})

	t.Run("Sustained Failure Exhausts Budget", func(t *testing.T) {
		errs := make([]error, 10)
		for i := range errs {
			errs[i] = shared.ErrRateLimited
		}
		lookup := &scriptedLookup{errs: errs}
		sleeper := &recordingSleeper{}
		policy := DefaultRetryPolicy()
		policy.MaxAttempts = 3
		r := NewResolver(lookup, policy, nil, WithSleeper(sleeper.Sleep))

		_, err := r.ResolveGenres(ctx, "a1")
		if !errors.Is(err, shared.ErrPermanentUpstream) {
			t.Fatalf("expected ErrPermanentUpstream, got %v", err)
		}
		if !errors.Is(err, shared.ErrRateLimited) {
			t.Errorf("expected the last failure to be wrapped, got %v", err)
		}
		if lookup.calls != 3 {
			t.Errorf("expected 3 lookups, got %d", lookup.calls)
		}
		if len(sleeper.delays) != 2 {
			t.Errorf("expected 2 sleeps, got %d", len(sleeper.delays))
		}
	})

	t.Run("Terminal Errors", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
		}{
			{"not found", shared.ErrNotFound},
			{"auth failed", shared.ErrAuthFailed},
			{"not authenticated", shared.ErrNotAuthenticated},
			{"cancelled", context.Canceled},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				lookup := &scriptedLookup{errs: []error{tt.err}}
				sleeper := &recordingSleeper{}
				r := NewResolver(lookup, DefaultRetryPolicy(), nil, WithSleeper(sleeper.Sleep))

				_, err := r.ResolveGenres(ctx, "a1")
				if !errors.Is(err, tt.err) {
					t.Errorf("expected %v, got %v", tt.err, err)
				}
				if errors.Is(err, shared.ErrPermanentUpstream) {
					t.Error("terminal errors should not be reported as exhausted retries")
				}
				if lookup.calls != 1 || len(sleeper.delays) != 0 {
					t.Errorf("expected 1 lookup and no sleeps, got %d and %d", lookup.calls, len(sleeper.delays))
				}
			})
		}
	})

	t.Run("Unbounded Attempts", func(t *testing.T) {
		errs := make([]error, 25)
		for i := range errs {
			errs[i] = shared.ErrTransientUpstream
		}
		lookup := &scriptedLookup{errs: errs, genres: []string{"dub"}}
		r := NewResolver(lookup, FixedRetryPolicy(time.Minute), nil, WithSleeper(noSleep))

		if _, err := r.ResolveGenres(ctx, "a1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if lookup.calls != 26 {
			t.Errorf("expected 26 lookups, got %d", lookup.calls)
		}
	})

	t.Run("Empty Genres", func(t *testing.T) {
		r := NewResolver(&scriptedLookup{}, DefaultRetryPolicy(), nil)

		genres, err := r.ResolveGenres(ctx, "a1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if genres == nil || len(genres) != 0 {
			t.Errorf("expected an empty non-nil slice, got %#v", genres)
		}
	})

	t.Run("Cancelled During Sleep", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		lookup := lookupFunc(func(context.Context, string) (*models.Artist, error) {
			cancel()
			return nil, shared.ErrRateLimited
		})
		r := NewResolver(lookup, FixedRetryPolicy(time.Hour), nil)

		start := time.Now()
		_, err := r.ResolveGenres(cctx, "a1")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if time.Since(start) > time.Minute {
			t.Error("sleep was not interrupted")
		}
	})

	t.Run("Limiter Honours Cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		lookup := &scriptedLookup{}
		r := NewResolver(lookup, DefaultRetryPolicy(), nil, WithLimiter(rate.NewLimiter(rate.Limit(0.001), 1)))

		if _, err := r.ResolveGenres(cctx, "a1"); err == nil {
			t.Fatal("expected an error")
		}
		if lookup.calls != 0 {
			t.Errorf("expected no lookups, got %d", lookup.calls)
		}
	})

	t.Run("Requests Per Second", func(t *testing.T) {
		r := NewResolver(&scriptedLookup{}, DefaultRetryPolicy(), nil, WithRequestsPerSecond(0))
		if r.limiter != nil {
			t.Error("expected no limiter for 0 rps")
		}

		r = NewResolver(&scriptedLookup{}, DefaultRetryPolicy(), nil, WithRequestsPerSecond(1000))
		if r.limiter == nil {
			t.Fatal("expected a limiter")
		}
		if _, err := r.ResolveGenres(ctx, "a1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("State Transitions", func(t *testing.T) {
		var states []ResolveState
		lookup := &scriptedLookup{errs: []error{shared.ErrRateLimited}}
		r := NewResolver(lookup, DefaultRetryPolicy(), nil,
			WithSleeper(noSleep),
			WithStateObserver(func(_ string, s ResolveState) { states = append(states, s) }),
		)

		if _, err := r.ResolveGenres(ctx, "a1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []ResolveState{StatePending, StateRequesting, StateRateLimited, StateSleeping, StateRequesting, StateDone}
		if !slices.Equal(states, want) {
			t.Errorf("states = %v, want %v", states, want)
		}
	})
}

func TestSleepContext(t *testing.T) {
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
