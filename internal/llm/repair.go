package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/climarisk/internal/jsonout"
)

// ErrDeadline reports a backend call that exceeded its per-call timeout.
// Repair loops treat it like a malformed answer and try again.
var ErrDeadline = errors.New("llm call deadline exceeded")

// ErrSchema marks decoded output that is valid JSON but has the wrong shape.
var ErrSchema = errors.New("model output does not match schema")

// IsRetryable reports whether err is a model-output failure that a repair
// loop may recover from: a decode failure, a schema violation or a deadline.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var de *jsonout.DecodeError
	var se *jsonout.SchemaError
	return errors.As(err, &de) || errors.As(err, &se) || errors.Is(err, ErrSchema) || errors.Is(err, ErrDeadline)
}

// Policy bounds the self-repair loop.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Timeout     time.Duration
}

// Normalize fills zero values.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	if p.Backoff <= 0 {
		return 0
	}
	d := p.Backoff << (attempt - 1)
	if d > p.MaxBackoff || d <= 0 {
		d = p.MaxBackoff
	}
	return d
}

// AttemptsError is returned once every attempt of a repair loop failed.
type AttemptsError struct {
	Stage    Stage
	Attempts int
	Last     error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempt(s): %v", e.Stage, e.Attempts, e.Last)
}

func (e *AttemptsError) Unwrap() error { return e.Last }

// Observer receives one notification per backend call made by a repair loop.
type Observer interface {
	ObserveAttempt(stage Stage, attempt int, err error)
}

// RepairOptions configures Repair.
type RepairOptions[T any] struct {
	Stage    Stage
	Settings ModelSettings
	Policy   Policy
	// Decode turns the assistant text into a value or a validation error.
	Decode func(text string) (T, error)
	// Correction renders the corrective instruction appended after a failure.
	Correction func(err error) string
	Logger     *zap.Logger
	Observer   Observer
}

// Repair sends the conversation and, while the answer fails Decode, appends the
// malformed answer plus a corrective system message and resubmits the whole
// conversation. Transport failures are returned immediately; only decode,
// validation and deadline failures consume attempts. It returns the decoded
// value and the number of backend calls made.
func Repair[T any](ctx context.Context, client Client, messages []Message, opts RepairOptions[T]) (T, int, error) {
	var zero T
	policy := opts.Policy.Normalize()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	conversation := append([]Message(nil), messages...)
	bounded := WithDeadline(client, policy.Timeout)

	var lastErr error
	calls := 0
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if d := policy.delay(attempt - 1); d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
					return zero, calls, ctx.Err()
				}
			}
		}

		calls++
		reply, err := bounded.Converse(ctx, opts.Settings.Request(conversation...))
		if err != nil {
			if opts.Observer != nil {
				opts.Observer.ObserveAttempt(opts.Stage, attempt, err)
			}
			if !errors.Is(err, ErrDeadline) {
				return zero, calls, err
			}
			lastErr = err
			logger.Warn("llm call timed out",
				zap.String("stage", string(opts.Stage)),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", policy.MaxAttempts))
			continue
		}

		value, err := opts.Decode(reply.Content)
		if opts.Observer != nil {
			opts.Observer.ObserveAttempt(opts.Stage, attempt, err)
		}
		if err == nil {
			return value, calls, nil
		}
		if !IsRetryable(err) {
			return zero, calls, err
		}
		lastErr = err
		logger.Warn("model output rejected",
			zap.String("stage", string(opts.Stage)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Error(err))

		conversation = append(conversation, Assistant(reply.Content))
		if opts.Correction != nil {
			conversation = append(conversation, System(opts.Correction(err)))
		}
	}

	logger.Error("self-repair attempts exhausted",
		zap.String("stage", string(opts.Stage)),
		zap.Int("attempts", calls),
		zap.Error(lastErr))
	return zero, calls, &AttemptsError{Stage: opts.Stage, Attempts: calls, Last: lastErr}
}

// WithDeadline bounds every call made through client by timeout. A call that
// runs out of time while the parent context is still live fails with
// ErrDeadline. Requests are validated before the call is made.
func WithDeadline(client Client, timeout time.Duration) Client {
	return ClientFunc(func(ctx context.Context, req Request) (Message, error) {
		if err := req.Validate(); err != nil {
			return Message{}, err
		}
		callCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		reply, err := client.Converse(callCtx, req)
		if err != nil {
			if timeout > 0 && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return Message{}, fmt.Errorf("%w after %s: %v", ErrDeadline, timeout, err)
			}
			return Message{}, err
		}
		return reply, nil
	})
}
