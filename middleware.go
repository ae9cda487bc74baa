package behave

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ValidationMiddleware runs a command's self-validation before submission.
// Commands that do not implement ValidatableCommand pass through untouched.
func ValidationMiddleware() Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			if v, ok := cmd.(ValidatableCommand); ok {
				if err := v.Validate(); err != nil {
					var verr *ValidationError
					if errors.As(err, &verr) {
						return SubmitResult{}, verr
					}
					return SubmitResult{}, &ValidationError{
						CommandType: CommandName(cmd),
						Message:     err.Error(),
						Cause:       err,
					}
				}
			}
			return next(ctx, aggregateID, cmd)
		}
	}
}

// RecoveryMiddleware recovers from panics during submission and returns them
// as *PanicError values with the captured stack.
func RecoveryMiddleware() Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (result SubmitResult, err error) {
			defer func() {
				if r := recover(); r != nil {
					result = SubmitResult{}
					err = NewPanicError(CommandName(cmd), r, string(debug.Stack()))
				}
			}()
			return next(ctx, aggregateID, cmd)
		}
	}
}

// LoggingMiddleware logs command submission.
type LoggingMiddleware struct {
	log Logger
}

// NewLoggingMiddleware creates a LoggingMiddleware writing to logger.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	return &LoggingMiddleware{log: logger}
}

// Middleware returns the middleware function. Every submission logs once on
// the way in and once with the outcome: completed at info, rejected at warn,
// failed at error.
func (m *LoggingMiddleware) Middleware() Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			name := CommandName(cmd)
			m.log.Info("submitting command", "command", name, "aggregateId", aggregateID)

			began := time.Now()
			result, err := next(ctx, aggregateID, cmd)
			elapsed := time.Since(began)

			fields := []any{"command", name, "aggregateId", aggregateID, "duration", elapsed, "error", err}
			switch {
			case IsRejection(err):
				m.log.Warn("command rejected", fields...)
			case err != nil:
				m.log.Error("command failed", fields...)
			default:
				m.log.Info("command completed", "command", name, "aggregateId", aggregateID,
					"duration", elapsed, "events", len(result.Events), "version", result.Version)
			}

			return result, err
		}
	}
}

// TimeoutMiddleware adds a timeout to command submission.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, aggregateID, cmd)
		}
	}
}

// RetryConfig configures RetryMiddleware.
type RetryConfig struct {
	// MaxAttempts caps the total number of tries, first submission included.
	MaxAttempts int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Multiplier scales the delay after every retry.
	Multiplier float64

	// ShouldRetry decides whether err is worth another attempt. When nil,
	// only concurrency conflicts retry. Rejections never retry regardless of
	// this hook: resubmitting a rejected command against the same state
	// decides the same way.
	ShouldRetry func(err error) bool
}

// DefaultRetryConfig returns the stock backoff: three attempts, 100ms
// doubling up to 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2.0}
}

// withDefaults replaces zero or negative fields with safe minimums.
func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 1.0
	}
	return c
}

// RetryMiddleware retries failed submissions with exponential backoff.
func RetryMiddleware(cfg RetryConfig) Middleware {
	cfg = cfg.withDefaults()

	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = func(err error) bool { return errors.Is(err, ErrConcurrencyConflict) }
	}

	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			delay := cfg.InitialDelay

			for attempt := 1; ; attempt++ {
				result, err := next(ctx, aggregateID, cmd)
				if err == nil || attempt == cfg.MaxAttempts {
					return result, err
				}
				if IsRejection(err) || !retryable(err) {
					return result, err
				}

				select {
				case <-ctx.Done():
					return SubmitResult{}, ctx.Err()
				case <-time.After(delay):
				}

				delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
			}
		}
	}
}

// MetricsCollector receives submission measurements.
type MetricsCollector interface {
	// RecordSubmit records one command submission.
	RecordSubmit(cmdType string, duration time.Duration, success bool, err error)
}

// MetricsMiddleware reports every submission to collector.
func MetricsMiddleware(collector MetricsCollector) Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			began := time.Now()
			result, err := next(ctx, aggregateID, cmd)

			collector.RecordSubmit(CommandName(cmd), time.Since(began), err == nil, err)

			return result, err
		}
	}
}

// RateLimitMiddleware throttles submissions through the given limiter.
// Waiting respects the caller's context; a wait the limiter cannot satisfy
// fails with ErrRateLimited.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			if err := limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return SubmitResult{}, ctxErr
				}
				return SubmitResult{}, fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			return next(ctx, aggregateID, cmd)
		}
	}
}

// ContextValueMiddleware injects a fixed key/value pair into the context of
// every submission.
func ContextValueMiddleware(key, value any) Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			return next(context.WithValue(ctx, key, value), aggregateID, cmd)
		}
	}
}

// ConditionalMiddleware gates middleware behind a per-command predicate.
func ConditionalMiddleware(condition func(cmd any) bool, middleware Middleware) Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			if condition(cmd) {
				return middleware(next)(ctx, aggregateID, cmd)
			}
			return next(ctx, aggregateID, cmd)
		}
	}
}

// CommandTypeMiddleware restricts middleware to the named command types.
func CommandTypeMiddleware(types []string, middleware Middleware) Middleware {
	match := make(map[string]bool, len(types))
	for _, name := range types {
		match[name] = true
	}

	pred := func(cmd any) bool { return match[CommandName(cmd)] }
	return ConditionalMiddleware(pred, middleware)
}

type correlationKey struct{}
type causationKey struct{}
type tenantKey struct{}
type userKey struct{}

func ctxString(ctx context.Context, key any) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// CorrelationIDFromContext reads the correlation ID stamped on ctx.
func CorrelationIDFromContext(ctx context.Context) string {
	return ctxString(ctx, correlationKey{})
}

// WithCorrelationID stamps the correlation ID onto ctx.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

// CausationIDFromContext reads the causation ID stamped on ctx.
func CausationIDFromContext(ctx context.Context) string {
	return ctxString(ctx, causationKey{})
}

// WithCausationID stamps the causation ID onto ctx.
func WithCausationID(ctx context.Context, causationID string) context.Context {
	return context.WithValue(ctx, causationKey{}, causationID)
}

// TenantIDFromContext reads the tenant ID stamped on ctx.
func TenantIDFromContext(ctx context.Context) string {
	return ctxString(ctx, tenantKey{})
}

// WithTenantID stamps the tenant ID onto ctx.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// UserIDFromContext reads the user ID stamped on ctx.
func UserIDFromContext(ctx context.Context) string {
	return ctxString(ctx, userKey{})
}

// WithUserID stamps the user ID onto ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// MetadataFromContext assembles event metadata from the context values set
// by the middleware above. Runtimes stamp this onto every append.
func MetadataFromContext(ctx context.Context) Metadata {
	return Metadata{
		CorrelationID: CorrelationIDFromContext(ctx),
		CausationID:   CausationIDFromContext(ctx),
		TenantID:      TenantIDFromContext(ctx),
		UserID:        UserIDFromContext(ctx),
	}
}

// CorrelationIDMiddleware ensures every submission carries a correlation ID,
// generating one when the context has none.
func CorrelationIDMiddleware(generator func() string) Middleware {
	if generator == nil {
		generator = uuid.NewString
	}

	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			if CorrelationIDFromContext(ctx) != "" {
				return next(ctx, aggregateID, cmd)
			}
			return next(WithCorrelationID(ctx, generator()), aggregateID, cmd)
		}
	}
}

// commandCausationID pulls a causation ID off commands that expose one,
// falling back to the command ID.
func commandCausationID(cmd any) string {
	if c, ok := cmd.(interface{ GetCausationID() string }); ok && c.GetCausationID() != "" {
		return c.GetCausationID()
	}
	if c, ok := cmd.(interface{ GetCommandID() string }); ok {
		return c.GetCommandID()
	}
	return ""
}

// CausationIDMiddleware propagates causation IDs. When the context has none,
// the command may provide one through a GetCausationID or GetCommandID
// accessor; otherwise the submission proceeds without.
func CausationIDMiddleware() Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			if CausationIDFromContext(ctx) != "" {
				return next(ctx, aggregateID, cmd)
			}

			if id := commandCausationID(cmd); id != "" {
				ctx = WithCausationID(ctx, id)
			}
			return next(ctx, aggregateID, cmd)
		}
	}
}

// TenantMiddleware extracts and validates the tenant ID.
func TenantMiddleware(extractor func(cmd any) string, required bool) Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			if TenantIDFromContext(ctx) != "" {
				return next(ctx, aggregateID, cmd)
			}

			var tenant string
			if extractor != nil {
				tenant = extractor(cmd)
			}

			switch {
			case tenant == "" && required:
				return SubmitResult{}, NewValidationError(CommandName(cmd), "tenantId", "tenant ID is required")
			case tenant != "":
				ctx = WithTenantID(ctx, tenant)
			}
			return next(ctx, aggregateID, cmd)
		}
	}
}
