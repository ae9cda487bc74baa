package behave

import "reflect"

// Commands are opaque values: the engine matches them by Go type and never
// requires an interface. The interfaces below are optional opt-ins that
// middleware and diagnostics recognize.

// Command lets a command name itself. Without it, CommandName falls back to
// the reflected struct name.
type Command interface {
	// CommandType is the name used in logs, metadata, and metrics,
	// for example "PlaceOrder".
	CommandType() string
}

// ValidatableCommand is a command that can check its own well-formedness.
// ValidationMiddleware rejects commands whose Validate returns an error
// before they reach the behavior.
type ValidatableCommand interface {
	// Validate reports whether the command is well formed. A non-nil
	// error stops the command before any journal access.
	Validate() error
}

// IdempotentCommand is a command that supports idempotency.
type IdempotentCommand interface {
	// IdempotencyKey identifies retries of the same logical command.
	// Submissions sharing a key execute once; later ones replay the
	// recorded outcome.
	IdempotencyKey() string
}

// CommandName returns the type name of a command.
// Commands implementing Command name themselves; anything else is named by
// reflection on its struct type.
func CommandName(cmd any) string {
	if cmd == nil {
		return ""
	}
	if c, ok := cmd.(Command); ok {
		if t := c.CommandType(); t != "" {
			return t
		}
	}
	t := reflect.TypeOf(cmd)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
