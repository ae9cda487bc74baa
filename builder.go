package behave

import "context"

// Builder starts the staged construction of a Behavior. Each stage is a
// distinct type, so a behavior cannot be finalized until both the creation
// and the update phase have been supplied, in either order:
//
//	behavior, err := behave.New[Product]("Product").
//		WithCreation(creationRules).
//		WithUpdate(updateRules).
//		Build()
//
// Build appends a terminal catch-all rule to each phase that rejects any
// command the registered rules did not match, which is what makes rejection
// the default and emission the explicit case. Builder values are immutable;
// every stage call returns a new value.
type Builder[A Aggregate] struct {
	kind string
}

// New starts building a behavior for the given aggregate kind. The kind
// names the stream category in stream ids such as "Product-p-1".
func New[A Aggregate](kind string) Builder[A] {
	return Builder[A]{kind: kind}
}

// WithCreation supplies the creation-phase rules.
func (b Builder[A]) WithCreation(rules CreationRules[A]) BuilderWithCreation[A] {
	return BuilderWithCreation[A]{kind: b.kind, creation: rules}
}

// WithUpdate supplies the update-phase rules.
func (b Builder[A]) WithUpdate(rules UpdateRules[A]) BuilderWithUpdate[A] {
	return BuilderWithUpdate[A]{kind: b.kind, update: rules}
}

// BuilderWithCreation is a builder whose creation phase is set and whose
// update phase is still missing.
type BuilderWithCreation[A Aggregate] struct {
	kind     string
	creation CreationRules[A]
}

// WithUpdate supplies the update-phase rules, completing the builder.
func (b BuilderWithCreation[A]) WithUpdate(rules UpdateRules[A]) CompleteBuilder[A] {
	return CompleteBuilder[A]{kind: b.kind, creation: b.creation, update: rules}
}

// BuilderWithUpdate is a builder whose update phase is set and whose
// creation phase is still missing.
type BuilderWithUpdate[A Aggregate] struct {
	kind   string
	update UpdateRules[A]
}

// WithCreation supplies the creation-phase rules, completing the builder.
func (b BuilderWithUpdate[A]) WithCreation(rules CreationRules[A]) CompleteBuilder[A] {
	return CompleteBuilder[A]{kind: b.kind, creation: rules, update: b.update}
}

// CompleteBuilder is a builder with both phases supplied. Only this stage
// exposes Build.
type CompleteBuilder[A Aggregate] struct {
	kind     string
	creation CreationRules[A]
	update   UpdateRules[A]
}

// Build finalizes the behavior. It fails with a *BuildError when the kind is
// empty, when a phase has no command rules, or when the creation phase has no
// event fold. An update phase without folds is allowed: unmatched update
// events fold to the identity, so a behavior whose updates never change state
// is legal, if unusual.
func (b CompleteBuilder[A]) Build() (*Behavior[A], error) {
	var missing []string
	if b.kind == "" {
		missing = append(missing, "kind")
	}
	if b.creation.CommandRuleCount() == 0 {
		missing = append(missing, "creation command rules")
	}
	if b.creation.EventRuleCount() == 0 {
		missing = append(missing, "creation event fold")
	}
	if b.update.CommandRuleCount() == 0 {
		missing = append(missing, "update command rules")
	}
	if len(missing) > 0 {
		return nil, NewBuildError(b.kind, missing...)
	}

	creation := b.creation.OnCommand(nil, func(_ context.Context, cmd any) Outcome {
		return Fail(NewCreationRejection(cmd))
	})
	update := b.update.OnCommand(nil, func(_ context.Context, cmd any, agg A) Outcome {
		return Fail(NewUpdateRejection(cmd, agg.AggregateID()))
	})
	return newBehavior(b.kind, creation, update), nil
}

// MustBuild is like Build but panics on error. It is intended for behaviors
// assembled from static rule sets at program start.
func (b CompleteBuilder[A]) MustBuild() *Behavior[A] {
	behavior, err := b.Build()
	if err != nil {
		panic(err)
	}
	return behavior
}
