package synth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/noricha-vr/twitter-video-translator/internal/errs"
	"github.com/noricha-vr/twitter-video-translator/internal/llm"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

// Backoff is exponential with a cap.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 16 * time.Second}
}

// Delay returns min(Base*2^attempt, Max) for a 0-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Gate holds the shared "not before" deadline pushed by rate-limit
// responses. Every worker waits on it before calling the API.
type Gate struct {
	mu        sync.Mutex
	notBefore time.Time
	now       func() time.Time
}

func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// Push moves the deadline to at least now+d.
func (g *Gate) Push(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t := g.now().Add(d); t.After(g.notBefore) {
		g.notBefore = t
	}
}

// Remaining is the time left until the deadline.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.notBefore.Sub(g.now())
}

func (g *Gate) Wait(ctx context.Context, sleep Sleeper) error {
	if d := g.Remaining(); d > 0 {
		return sleep(ctx, d)
	}
	return ctx.Err()
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return &permanentError{err: err}
}

func retryable(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	var status *llm.StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}
	return true
}

func rateLimited(err error) bool {
	var status *llm.StatusError
	return errors.As(err, &status) &&
		(status.StatusCode == http.StatusTooManyRequests || status.StatusCode == http.StatusServiceUnavailable)
}

// Retrier runs a call with a per-attempt timeout and bounded retries.
type Retrier struct {
	Attempts int
	Timeout  time.Duration
	Backoff  Backoff
	Gate     *Gate
	Sleep    Sleeper
}

func NewRetrier(attempts int, timeout time.Duration, backoff Backoff) *Retrier {
	return &Retrier{
		Attempts: attempts,
		Timeout:  timeout,
		Backoff:  backoff,
		Gate:     NewGate(),
		Sleep:    SleepContext,
	}
}

// Do returns nil on the first success. Exhausted or permanent failures
// come back as SynthesisFailed; a done ctx comes back as Canceled.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.DoAs(ctx, errs.SynthesisFailed, "speech synthesis", fn)
}

// DoAs is Do for other callers: exhausted or permanent failures come back
// as kind, and op names the operation in error and log messages.
func (r *Retrier) DoAs(ctx context.Context, kind errs.Kind, op string, fn func(ctx context.Context) error) error {
	attempts := max(r.Attempts, 1)
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if r.Gate != nil {
			if err := r.Gate.Wait(ctx, sleep); err != nil {
				return errs.Wrap(err, errs.Canceled, op+" canceled")
			}
		} else if err := ctx.Err(); err != nil {
			return errs.Wrap(err, errs.Canceled, op+" canceled")
		}

		last = r.call(ctx, fn)
		if last == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errs.Wrap(ctx.Err(), errs.Canceled, op+" canceled")
		}
		if !retryable(last) || attempt == attempts-1 {
			break
		}

		delay := r.Backoff.Delay(attempt)
		log.Debug("%s attempt %d/%d failed: %v (retry in %v)", op, attempt+1, attempts, last, delay)
		if rateLimited(last) && r.Gate != nil {
			r.Gate.Push(delay)
			continue
		}
		if err := sleep(ctx, delay); err != nil {
			return errs.Wrap(err, errs.Canceled, op+" canceled")
		}
	}
	return errs.Wrap(last, kind, op+" failed")
}

func (r *Retrier) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return fn(callCtx)
}
