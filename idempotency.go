package behave

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/AshkanYarmoradi/go-behave/adapters"
)

// Store-side idempotency types, re-exported from the adapters package.
type (
	IdempotencyStore  = adapters.IdempotencyStore
	IdempotencyRecord = adapters.IdempotencyRecord
)

// ReplayedCommandError reports a command whose idempotency key was already
// recorded with a failure. The recorded outcome is replayed instead of
// reprocessing.
type ReplayedCommandError struct {
	Key     string
	Message string
}

func (re *ReplayedCommandError) Error() string {
	msg := "behave: command already processed with key " + re.Key
	if re.Message != "" {
		msg += ": " + re.Message
	}
	return msg
}

func (re *ReplayedCommandError) Is(target error) bool { return target == ErrCommandAlreadyProcessed }

func (re *ReplayedCommandError) Unwrap() error { return ErrCommandAlreadyProcessed }

// replayEnvelope carries the result fields the idempotency record has no
// columns for.
type replayEnvelope struct {
	Kind    string `json:"kind,omitempty"`
	Created bool   `json:"created,omitempty"`
}

// NewIdempotencyRecord creates an IdempotencyRecord from a submit outcome.
func NewIdempotencyRecord(key, cmdName string, res SubmitResult, submitErr error, ttl time.Duration) *IdempotencyRecord {
	rec := &IdempotencyRecord{
		Key:         key,
		CommandType: cmdName,
		AggregateID: res.AggregateID,
		Version:     res.Version,
		Success:     submitErr == nil,
		ProcessedAt: time.Now(),
	}
	rec.ExpiresAt = rec.ProcessedAt.Add(ttl)

	if submitErr != nil {
		rec.Error = submitErr.Error()
	} else if response, err := json.Marshal(replayEnvelope{Kind: res.Kind, Created: res.Created}); err == nil {
		rec.Response = response
	}

	return rec
}

// IdempotencyRecordToResult reconstructs the submit outcome a record was
// written from. Replayed results carry no event payloads; the events were
// appended when the command first ran.
func IdempotencyRecordToResult(r *IdempotencyRecord) (SubmitResult, error) {
	if !r.Success {
		message := r.Error
		if message == "" {
			message = "unknown error"
		}
		return SubmitResult{}, &ReplayedCommandError{Key: r.Key, Message: message}
	}

	result := SubmitResult{AggregateID: r.AggregateID, Version: r.Version}
	if len(r.Response) > 0 {
		var env replayEnvelope
		if err := json.Unmarshal(r.Response, &env); err == nil {
			result.Kind = env.Kind
			result.Created = env.Created
		}
	}
	return result, nil
}

// GenerateIdempotencyKey derives a key from the command name plus a hash of
// the command's JSON form, so identical submissions map to the same record.
func GenerateIdempotencyKey(cmd any) string {
	name := CommandName(cmd)
	body, err := json.Marshal(cmd)
	if err != nil {
		// Hash the name alone so an unserializable command still keys
		// deterministically.
		sum := sha256.Sum256([]byte(name))
		return name + ":type-only:" + hex.EncodeToString(sum[:16])
	}

	sum := sha256.Sum256(body)
	return name + ":" + hex.EncodeToString(sum[:16])
}

// GetIdempotencyKey resolves the key for a command: the command's own
// IdempotencyKey when it implements IdempotentCommand, a content hash
// otherwise.
func GetIdempotencyKey(cmd any) string {
	if idem, ok := cmd.(IdempotentCommand); ok {
		return idem.IdempotencyKey()
	}
	return GenerateIdempotencyKey(cmd)
}

// IdempotencyConfig configures IdempotencyMiddleware.
type IdempotencyConfig struct {
	// Store persists the processed-command records.
	Store IdempotencyStore

	// TTL bounds how long a record shields against replays. Zero means
	// 24 hours.
	TTL time.Duration

	// KeyGenerator maps a command to its idempotency key. Nil means
	// GetIdempotencyKey.
	KeyGenerator func(cmd any) string

	// StoreErrors also records failed commands, so replaying one returns
	// the recorded error instead of retrying. Off by default, which keeps
	// failures retryable.
	StoreErrors bool

	// SkipCommands lists command types exempt from idempotency checking.
	SkipCommands []string
}

func (c IdempotencyConfig) withDefaults() IdempotencyConfig {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.KeyGenerator == nil {
		c.KeyGenerator = GetIdempotencyKey
	}
	return c
}

// DefaultIdempotencyConfig returns a config with the stock key generator and
// a 24 hour TTL.
func DefaultIdempotencyConfig(s IdempotencyStore) IdempotencyConfig {
	return IdempotencyConfig{Store: s, TTL: 24 * time.Hour, KeyGenerator: GetIdempotencyKey}
}

// IdempotencyMiddleware creates middleware that prevents duplicate command
// processing. A replayed success returns the recorded result without touching
// the journal; rejections are never recorded, so a corrected command can be
// resubmitted under a fresh key.
func IdempotencyMiddleware(cfg IdempotencyConfig) Middleware {
	cfg = cfg.withDefaults()

	skip := make(map[string]bool, len(cfg.SkipCommands))
	for _, name := range cfg.SkipCommands {
		skip[name] = true
	}

	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
			if skip[CommandName(cmd)] {
				return next(ctx, aggregateID, cmd)
			}

			key := cfg.KeyGenerator(cmd)

			// An unreadable store must not block the command path.
			prior, err := cfg.Store.Get(ctx, key)
			if err != nil {
				return next(ctx, aggregateID, cmd)
			}
			if prior != nil && !prior.IsExpired() {
				return IdempotencyRecordToResult(prior)
			}

			result, cmdErr := next(ctx, aggregateID, cmd)

			if cmdErr == nil || (cfg.StoreErrors && !IsRejection(cmdErr)) {
				rec := NewIdempotencyRecord(key, CommandName(cmd), result, cmdErr, cfg.TTL)
				// Best effort: a failed store write must not fail the command.
				_ = cfg.Store.Store(ctx, rec)
			}

			return result, cmdErr
		}
	}
}

// IdempotencyKeyPrefix namespaces generated keys, e.g. per service or tenant.
func IdempotencyKeyPrefix(prefix string) func(any) string {
	return func(cmd any) string { return prefix + ":" + GetIdempotencyKey(cmd) }
}

// IdempotencyKeyFromField keys commands by a caller-chosen field, falling
// back to the content hash when the field is empty.
func IdempotencyKeyFromField(getter func(cmd any) string) func(any) string {
	return func(cmd any) string {
		if key := getter(cmd); key != "" {
			return CommandName(cmd) + ":" + key
		}
		return GenerateIdempotencyKey(cmd)
	}
}
