package behave

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// importProduct is a command that implements the Command interface, unlike the
// plain struct commands in the shared fixtures.
type importProduct struct {
	ProductID string
	Source    string
}

func (importProduct) CommandType() string { return "catalog.import" }

// ===========================================================================
// Rule Count Tests
// ===========================================================================

func TestRules_Counts(t *testing.T) {
	t.Run("fresh sets are empty", func(t *testing.T) {
		creation := NewCreationRules[Product]()
		assert.True(t, creation.IsEmpty())
		assert.Zero(t, creation.CommandRuleCount())
		assert.Zero(t, creation.EventRuleCount())

		update := NewUpdateRules[Product]()
		assert.True(t, update.IsEmpty())
		assert.Zero(t, update.CommandRuleCount())
		assert.Zero(t, update.EventRuleCount())
	})

	t.Run("registration is counted per kind", func(t *testing.T) {
		creation := productCreationRules()
		assert.Equal(t, 1, creation.CommandRuleCount())
		assert.Equal(t, 1, creation.EventRuleCount())
		assert.False(t, creation.IsEmpty())

		update := productUpdateRules()
		assert.Equal(t, 5, update.CommandRuleCount())
		assert.Equal(t, 3, update.EventRuleCount())
	})
}

// ===========================================================================
// Value Semantics Tests
// ===========================================================================

func TestRules_ValueSemantics(t *testing.T) {
	ctx := context.Background()

	t.Run("registration leaves the original untouched", func(t *testing.T) {
		base := NewCreationRules[Product]()
		grown := HandleCreation(base, func(_ context.Context, cmd CreateProduct) Outcome {
			return Emit(ProductCreated{ProductID: cmd.ProductID})
		})

		assert.Zero(t, base.CommandRuleCount())
		assert.Equal(t, 1, grown.CommandRuleCount())
	})

	t.Run("a partially built set can branch", func(t *testing.T) {
		base := HandleCreation(NewCreationRules[Product](), func(_ context.Context, cmd CreateProduct) Outcome {
			return Emit(ProductCreated{ProductID: cmd.ProductID, Name: "base"})
		})
		base = FoldCreation(base, func(e ProductCreated) Product {
			return Product{ID: e.ProductID, Name: e.Name}
		})

		left := HandleCreation(base, func(_ context.Context, cmd importProduct) Outcome {
			return Emit(ProductCreated{ProductID: cmd.ProductID, Name: "left"})
		})
		right := HandleCreation(base, func(_ context.Context, cmd importProduct) Outcome {
			return Emit(ProductCreated{ProductID: cmd.ProductID, Name: "right"})
		})

		leftBehavior := newBehavior("Product", left, productUpdateRules())
		rightBehavior := newBehavior("Product", right, productUpdateRules())

		event, err := leftBehavior.ValidateCreation(ctx, importProduct{ProductID: "p-1"})
		require.NoError(t, err)
		assert.Equal(t, "left", event.(ProductCreated).Name)

		event, err = rightBehavior.ValidateCreation(ctx, importProduct{ProductID: "p-1"})
		require.NoError(t, err)
		assert.Equal(t, "right", event.(ProductCreated).Name)

		assert.Equal(t, 1, base.CommandRuleCount())
	})
}

// ===========================================================================
// Matching Order Tests
// ===========================================================================

func TestRules_MatchingOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("rules are tried in registration order", func(t *testing.T) {
		var calls []string

		update := NewUpdateRules[Product]()
		update = HandleUpdateIf(update,
			func(cmd ChangePrice, _ Product) bool {
				calls = append(calls, "first-guard")
				return cmd.NewPrice > 100
			},
			func(_ context.Context, cmd ChangePrice, p Product) Outcome {
				return Emit(PriceChanged{ProductID: p.ID, NewPrice: cmd.NewPrice})
			})
		update = HandleUpdateIf(update,
			func(_ ChangePrice, _ Product) bool {
				calls = append(calls, "second-guard")
				return true
			},
			func(_ context.Context, cmd ChangePrice, p Product) Outcome {
				return Emit(PriceChanged{ProductID: p.ID, NewPrice: cmd.NewPrice * 2})
			})

		behavior := newBehavior("Product", productCreationRules(), update)

		events, err := behavior.ValidateUpdate(ctx, ChangePrice{NewPrice: 10}, Product{ID: "p-1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"first-guard", "second-guard"}, calls)
		assert.Equal(t, 20.0, events[0].(PriceChanged).NewPrice)
	})

	t.Run("scan stops at the first match", func(t *testing.T) {
		var secondTried bool

		update := NewUpdateRules[Product]()
		update = HandleUpdate(update, func(_ context.Context, cmd ChangePrice, p Product) Outcome {
			return Emit(PriceChanged{ProductID: p.ID, NewPrice: cmd.NewPrice})
		})
		update = HandleUpdateIf(update,
			func(_ ChangePrice, _ Product) bool {
				secondTried = true
				return true
			},
			func(_ context.Context, cmd ChangePrice, p Product) Outcome {
				return Emit(PriceChanged{ProductID: p.ID, NewPrice: -1})
			})

		behavior := newBehavior("Product", productCreationRules(), update)

		events, err := behavior.ValidateUpdate(ctx, ChangePrice{NewPrice: 10}, Product{ID: "p-1"})
		require.NoError(t, err)
		assert.Equal(t, 10.0, events[0].(PriceChanged).NewPrice)
		assert.False(t, secondTried)
	})

	t.Run("first matching fold wins", func(t *testing.T) {
		creation := HandleCreation(NewCreationRules[Product](), func(_ context.Context, cmd CreateProduct) Outcome {
			return Emit(ProductCreated{ProductID: cmd.ProductID})
		})
		creation = FoldCreation(creation, func(e ProductCreated) Product {
			return Product{ID: e.ProductID, Name: "typed"}
		})
		creation = creation.OnEvent(nil, func(any) Product {
			return Product{Name: "fallback"}
		})

		behavior := newBehavior("Product", creation, productUpdateRules())

		product, err := behavior.ApplyCreation(ProductCreated{ProductID: "p-1"})
		require.NoError(t, err)
		assert.Equal(t, "typed", product.Name)
	})
}

// ===========================================================================
// Guard Tests
// ===========================================================================

func TestRules_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("update guards see the current state", func(t *testing.T) {
		var seen Product

		update := HandleUpdateIf(NewUpdateRules[Product](),
			func(_ ChangePrice, p Product) bool {
				seen = p
				return true
			},
			func(_ context.Context, cmd ChangePrice, p Product) Outcome {
				return Emit(PriceChanged{ProductID: p.ID, NewPrice: cmd.NewPrice})
			})

		behavior := newBehavior("Product", productCreationRules(), update)

		_, err := behavior.ValidateUpdate(ctx, ChangePrice{NewPrice: 10}, Product{ID: "p-7", Name: "Widget"})
		require.NoError(t, err)
		assert.Equal(t, "p-7", seen.ID)
		assert.Equal(t, "Widget", seen.Name)
	})

	t.Run("failed guard means the rule does not match", func(t *testing.T) {
		update := HandleUpdateIf(NewUpdateRules[Product](),
			func(_ ChangePrice, p Product) bool { return !p.Discontinued },
			func(_ context.Context, cmd ChangePrice, p Product) Outcome {
				return Emit(PriceChanged{ProductID: p.ID, NewPrice: cmd.NewPrice})
			})

		behavior := newBehavior("Product", productCreationRules(), update)

		_, err := behavior.ValidateUpdate(ctx, ChangePrice{NewPrice: 10}, Product{ID: "p-1", Discontinued: true})
		require.Error(t, err)

		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, RejectionUnmatchedUpdate, rej.Code)
	})

	t.Run("creation guards dispatch on the command", func(t *testing.T) {
		creation := HandleCreationIf(NewCreationRules[Product](),
			func(cmd CreateProduct) bool { return strings.HasPrefix(cmd.Name, "Pro ") },
			func(_ context.Context, cmd CreateProduct) Outcome {
				return Emit(ProductCreated{ProductID: cmd.ProductID, Name: cmd.Name, Price: cmd.Price * 2})
			})
		creation = HandleCreation(creation, func(_ context.Context, cmd CreateProduct) Outcome {
			return Emit(ProductCreated{ProductID: cmd.ProductID, Name: cmd.Name, Price: cmd.Price})
		})
		creation = FoldCreation(creation, func(e ProductCreated) Product {
			return Product{ID: e.ProductID, Name: e.Name, Price: e.Price}
		})

		behavior := newBehavior("Product", creation, productUpdateRules())

		event, err := behavior.ValidateCreation(ctx, CreateProduct{ProductID: "p-1", Name: "Pro Widget", Price: 10})
		require.NoError(t, err)
		assert.Equal(t, 20.0, event.(ProductCreated).Price)

		event, err = behavior.ValidateCreation(ctx, CreateProduct{ProductID: "p-2", Name: "Widget", Price: 10})
		require.NoError(t, err)
		assert.Equal(t, 10.0, event.(ProductCreated).Price)
	})
}

// ===========================================================================
// Wildcard and Untyped Rule Tests
// ===========================================================================

func TestRules_Wildcards(t *testing.T) {
	ctx := context.Background()

	t.Run("an interface command type matches every implementation", func(t *testing.T) {
		creation := HandleCreation(NewCreationRules[Product](), func(_ context.Context, cmd Command) Outcome {
			return Emit(ProductCreated{Name: cmd.CommandType()})
		})
		creation = FoldCreation(creation, func(e ProductCreated) Product {
			return Product{Name: e.Name}
		})

		behavior := newBehavior("Product", creation, productUpdateRules())

		event, err := behavior.ValidateCreation(ctx, importProduct{ProductID: "p-1"})
		require.NoError(t, err)
		assert.Equal(t, "catalog.import", event.(ProductCreated).Name)

		// Plain structs do not implement Command and fall through.
		_, err = behavior.ValidateCreation(ctx, CreateProduct{ProductID: "p-2"})
		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, RejectionUnmatchedCreation, rej.Code)
	})

	t.Run("OnCommand with a nil matcher catches everything", func(t *testing.T) {
		creation := NewCreationRules[Product]().OnCommand(nil, func(_ context.Context, cmd any) Outcome {
			return Reject("creation disabled, got %s", CommandName(cmd))
		})
		creation = FoldCreation(creation, func(e ProductCreated) Product {
			return Product{ID: e.ProductID}
		})

		behavior := newBehavior("Product", creation, productUpdateRules())

		_, err := behavior.ValidateCreation(ctx, CreateProduct{ProductID: "p-1"})
		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, "creation disabled, got CreateProduct", rej.Reason)
	})

	t.Run("OnCommand with a custom matcher", func(t *testing.T) {
		update := NewUpdateRules[Product]().OnCommand(
			func(cmd any, p Product) bool {
				_, isRename := cmd.(RenameProduct)
				return isRename && p.Discontinued
			},
			func(_ context.Context, _ any, _ Product) Outcome {
				return Reject("discontinued products keep their name")
			})
		update = HandleUpdate(update, func(_ context.Context, cmd RenameProduct, p Product) Outcome {
			return Emit(ProductRenamed{ProductID: p.ID, NewName: cmd.NewName})
		})

		behavior := newBehavior("Product", productCreationRules(), update)

		_, err := behavior.ValidateUpdate(ctx, RenameProduct{NewName: "X"}, Product{ID: "p-1", Discontinued: true})
		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, "discontinued products keep their name", rej.Reason)

		events, err := behavior.ValidateUpdate(ctx, RenameProduct{NewName: "X"}, Product{ID: "p-1"})
		require.NoError(t, err)
		assert.Equal(t, "X", events[0].(ProductRenamed).NewName)
	})

	t.Run("update OnEvent can scope folds to a state shape", func(t *testing.T) {
		update := NewUpdateRules[Product]().OnEvent(
			func(p Product, event any) bool {
				_, isPrice := event.(PriceChanged)
				return isPrice && !p.Discontinued
			},
			func(p Product, event any) Product {
				p.Price = event.(PriceChanged).NewPrice
				return p
			})

		behavior := newBehavior("Product", productCreationRules(), update)

		live := behavior.ApplyUpdate(Product{ID: "p-1", Price: 10}, PriceChanged{NewPrice: 20})
		assert.Equal(t, 20.0, live.Price)

		retired := behavior.ApplyUpdate(Product{ID: "p-1", Price: 10, Discontinued: true}, PriceChanged{NewPrice: 20})
		assert.Equal(t, 10.0, retired.Price)
	})
}

// ===========================================================================
// Merge Tests
// ===========================================================================

func TestRules_Merge(t *testing.T) {
	ctx := context.Background()

	t.Run("merged counts add up", func(t *testing.T) {
		first := productUpdateRules()
		second := HandleUpdate(NewUpdateRules[Product](), func(_ context.Context, cmd importProduct, p Product) Outcome {
			return Emit(ProductRenamed{ProductID: p.ID, NewName: cmd.Source})
		})

		merged := first.Merge(second)
		assert.Equal(t, first.CommandRuleCount()+1, merged.CommandRuleCount())
		assert.Equal(t, first.EventRuleCount(), merged.EventRuleCount())
	})

	t.Run("receiver rules are tried before the merged ones", func(t *testing.T) {
		specific := HandleUpdate(NewUpdateRules[Product](), func(_ context.Context, cmd ChangePrice, p Product) Outcome {
			return Emit(PriceChanged{ProductID: p.ID, NewPrice: cmd.NewPrice})
		})
		general := NewUpdateRules[Product]().OnCommand(nil, func(_ context.Context, cmd any, _ Product) Outcome {
			return Reject("unsupported command %s", CommandName(cmd))
		})

		behavior := newBehavior("Product", productCreationRules(), specific.Merge(general))

		events, err := behavior.ValidateUpdate(ctx, ChangePrice{NewPrice: 15}, Product{ID: "p-1"})
		require.NoError(t, err)
		assert.Equal(t, 15.0, events[0].(PriceChanged).NewPrice)

		_, err = behavior.ValidateUpdate(ctx, RenameProduct{NewName: "X"}, Product{ID: "p-1"})
		rej, ok := AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, "unsupported command RenameProduct", rej.Reason)
	})

	t.Run("merging empty sets is a no-op", func(t *testing.T) {
		creation := productCreationRules()
		merged := creation.Merge(NewCreationRules[Product]())

		assert.Equal(t, creation.CommandRuleCount(), merged.CommandRuleCount())
		assert.Equal(t, creation.EventRuleCount(), merged.EventRuleCount())
	})
}
