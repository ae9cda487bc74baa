package behave

import (
	"context"
	"reflect"
)

type creationCommandRule struct {
	name    string
	matches func(cmd any) bool
	action  func(ctx context.Context, cmd any) Outcome
}

type creationEventRule[A Aggregate] struct {
	name    string
	matches func(event any) bool
	fold    func(event any) A
}

type updateCommandRule[A Aggregate] struct {
	name    string
	matches func(cmd any, agg A) bool
	action  func(ctx context.Context, cmd any, agg A) Outcome
}

type updateEventRule[A Aggregate] struct {
	name    string
	matches func(agg A, event any) bool
	fold    func(agg A, event any) A
}

// CreationRules holds the ordered command and event rules for an aggregate's
// creation phase. The zero value is empty and ready to use.
//
// Rules are registered through the package-level helpers so each rule can
// carry its own command or event type:
//
//	rules := behave.NewCreationRules[Product]()
//	rules = behave.HandleCreation(rules, func(ctx context.Context, cmd CreateProduct) behave.Outcome {
//		return behave.Emit(ProductCreated{ID: cmd.ID, Name: cmd.Name})
//	})
//	rules = behave.FoldCreation(rules, func(e ProductCreated) Product {
//		return Product{ID: e.ID, Name: e.Name}
//	})
//
// Registration never mutates the receiver: each helper returns a new value
// with its own backing storage, so a partially built rule set can be branched
// and shared. Rules are tried strictly in registration order and the first
// match wins, which makes the order itself part of the aggregate's contract.
type CreationRules[A Aggregate] struct {
	commands []creationCommandRule
	events   []creationEventRule[A]
}

// NewCreationRules returns an empty creation rule set.
func NewCreationRules[A Aggregate]() CreationRules[A] {
	return CreationRules[A]{}
}

// UpdateRules holds the ordered command and event rules for an aggregate's
// update phase. Update actions and guards see the current aggregate state,
// and update folds transform one state into the next. The zero value is
// empty and ready to use.
type UpdateRules[A Aggregate] struct {
	commands []updateCommandRule[A]
	events   []updateEventRule[A]
}

// NewUpdateRules returns an empty update rule set.
func NewUpdateRules[A Aggregate]() UpdateRules[A] {
	return UpdateRules[A]{}
}

// HandleCreation registers an action for creation commands of type C.
// Matching is by type assertion, so an interface command type acts as a
// wildcard over everything implementing it.
func HandleCreation[A Aggregate, C any](r CreationRules[A], action func(ctx context.Context, cmd C) Outcome) CreationRules[A] {
	return HandleCreationIf(r, nil, action)
}

// HandleCreationIf registers an action guarded by a predicate over the typed
// command. The rule matches only when the command asserts to C and the guard,
// if non-nil, returns true; otherwise later rules are tried.
func HandleCreationIf[A Aggregate, C any](r CreationRules[A], guard func(cmd C) bool, action func(ctx context.Context, cmd C) Outcome) CreationRules[A] {
	rule := creationCommandRule{
		name: typeNameFor[C](),
		matches: func(cmd any) bool {
			c, ok := cmd.(C)
			if !ok {
				return false
			}
			return guard == nil || guard(c)
		},
		action: func(ctx context.Context, cmd any) Outcome {
			return action(ctx, cmd.(C))
		},
	}
	r.commands = appendRule(r.commands, rule)
	return r
}

// FoldCreation registers the seed fold for creation events of type E,
// producing the aggregate's initial state from its first event.
func FoldCreation[A Aggregate, E any](r CreationRules[A], fold func(event E) A) CreationRules[A] {
	rule := creationEventRule[A]{
		name: typeNameFor[E](),
		matches: func(event any) bool {
			_, ok := event.(E)
			return ok
		},
		fold: func(event any) A {
			return fold(event.(E))
		},
	}
	r.events = appendRule(r.events, rule)
	return r
}

// HandleUpdate registers an action for update commands of type C. The action
// receives the current aggregate state alongside the command.
func HandleUpdate[A Aggregate, C any](r UpdateRules[A], action func(ctx context.Context, cmd C, agg A) Outcome) UpdateRules[A] {
	return HandleUpdateIf(r, nil, action)
}

// HandleUpdateIf registers an update action guarded by a predicate over the
// typed command and the current state. Guards let several rules share one
// command type and dispatch on state, with registration order breaking ties.
func HandleUpdateIf[A Aggregate, C any](r UpdateRules[A], guard func(cmd C, agg A) bool, action func(ctx context.Context, cmd C, agg A) Outcome) UpdateRules[A] {
	rule := updateCommandRule[A]{
		name: typeNameFor[C](),
		matches: func(cmd any, agg A) bool {
			c, ok := cmd.(C)
			if !ok {
				return false
			}
			return guard == nil || guard(c, agg)
		},
		action: func(ctx context.Context, cmd any, agg A) Outcome {
			return action(ctx, cmd.(C), agg)
		},
	}
	r.commands = appendRule(r.commands, rule)
	return r
}

// FoldUpdate registers the state transition for update events of type E.
// Folds must be pure; events that match no fold leave the state unchanged.
func FoldUpdate[A Aggregate, E any](r UpdateRules[A], fold func(agg A, event E) A) UpdateRules[A] {
	rule := updateEventRule[A]{
		name: typeNameFor[E](),
		matches: func(_ A, event any) bool {
			_, ok := event.(E)
			return ok
		},
		fold: func(agg A, event any) A {
			return fold(agg, event.(E))
		},
	}
	r.events = appendRule(r.events, rule)
	return r
}

// OnCommand registers an untyped creation command rule. Most callers should
// prefer HandleCreation; OnCommand exists for dynamic matching such as the
// catch-all rejection rules the builder appends.
func (r CreationRules[A]) OnCommand(matches func(cmd any) bool, action func(ctx context.Context, cmd any) Outcome) CreationRules[A] {
	if matches == nil {
		matches = matchAny
	}
	r.commands = appendRule(r.commands, creationCommandRule{name: "custom", matches: matches, action: action})
	return r
}

// OnEvent registers an untyped creation event fold.
func (r CreationRules[A]) OnEvent(matches func(event any) bool, fold func(event any) A) CreationRules[A] {
	if matches == nil {
		matches = matchAny
	}
	r.events = appendRule(r.events, creationEventRule[A]{name: "custom", matches: matches, fold: fold})
	return r
}

// Merge returns a rule set holding the receiver's rules followed by other's,
// preserving order within each operand.
func (r CreationRules[A]) Merge(other CreationRules[A]) CreationRules[A] {
	merged := CreationRules[A]{
		commands: make([]creationCommandRule, 0, len(r.commands)+len(other.commands)),
		events:   make([]creationEventRule[A], 0, len(r.events)+len(other.events)),
	}
	merged.commands = append(append(merged.commands, r.commands...), other.commands...)
	merged.events = append(append(merged.events, r.events...), other.events...)
	return merged
}

// CommandRuleCount reports how many command rules are registered.
func (r CreationRules[A]) CommandRuleCount() int { return len(r.commands) }

// EventRuleCount reports how many event folds are registered.
func (r CreationRules[A]) EventRuleCount() int { return len(r.events) }

// IsEmpty reports whether no rules are registered at all.
func (r CreationRules[A]) IsEmpty() bool {
	return len(r.commands) == 0 && len(r.events) == 0
}

// OnCommand registers an untyped update command rule. The predicate sees the
// current state; pass nil to match every command.
func (r UpdateRules[A]) OnCommand(matches func(cmd any, agg A) bool, action func(ctx context.Context, cmd any, agg A) Outcome) UpdateRules[A] {
	if matches == nil {
		matches = func(any, A) bool { return true }
	}
	r.commands = appendRule(r.commands, updateCommandRule[A]{name: "custom", matches: matches, action: action})
	return r
}

// OnEvent registers an untyped update event fold. Unlike creation folds the
// predicate sees the current state, so a fold can be scoped to a state shape
// as well as an event type.
func (r UpdateRules[A]) OnEvent(matches func(agg A, event any) bool, fold func(agg A, event any) A) UpdateRules[A] {
	if matches == nil {
		matches = func(A, any) bool { return true }
	}
	r.events = appendRule(r.events, updateEventRule[A]{name: "custom", matches: matches, fold: fold})
	return r
}

// Merge returns a rule set holding the receiver's rules followed by other's,
// preserving order within each operand.
func (r UpdateRules[A]) Merge(other UpdateRules[A]) UpdateRules[A] {
	merged := UpdateRules[A]{
		commands: make([]updateCommandRule[A], 0, len(r.commands)+len(other.commands)),
		events:   make([]updateEventRule[A], 0, len(r.events)+len(other.events)),
	}
	merged.commands = append(append(merged.commands, r.commands...), other.commands...)
	merged.events = append(append(merged.events, r.events...), other.events...)
	return merged
}

// CommandRuleCount reports how many command rules are registered.
func (r UpdateRules[A]) CommandRuleCount() int { return len(r.commands) }

// EventRuleCount reports how many event folds are registered.
func (r UpdateRules[A]) EventRuleCount() int { return len(r.events) }

// IsEmpty reports whether no rules are registered at all.
func (r UpdateRules[A]) IsEmpty() bool {
	return len(r.commands) == 0 && len(r.events) == 0
}

func matchAny(any) bool { return true }

// appendRule clones before appending so rule sets keep value semantics.
func appendRule[R any](rules []R, rule R) []R {
	next := make([]R, len(rules), len(rules)+1)
	copy(next, rules)
	return append(next, rule)
}

// typeNameFor names rules after their command or event type for logs.
func typeNameFor[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}
