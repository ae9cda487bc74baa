// Package behave provides an aggregate behavior engine for event-sourced Go applications.
//
// go-behave models each aggregate kind as an immutable Behavior: a rule table
// that validates commands into events and folds events back into aggregate
// state. Creation (no prior state) and update (prior state exists) are kept as
// separate rule sets, and a staged builder guarantees both are supplied before
// a usable Behavior exists.
//
// # Quick Start
//
// Define events and an aggregate snapshot:
//
//	type ProductCreated struct {
//	    ProductID string  `json:"productId"`
//	    Name      string  `json:"name"`
//	    Price     float64 `json:"price"`
//	}
//
//	type PriceChanged struct {
//	    ProductID string  `json:"productId"`
//	    NewPrice  float64 `json:"newPrice"`
//	}
//
//	type Product struct {
//	    ID    string
//	    Name  string
//	    Price float64
//	}
//
//	func (p Product) AggregateID() string { return p.ID }
//
// Declare how the aggregate reacts to commands and events:
//
//	creation := behave.NewCreationRules[Product]()
//	creation = behave.HandleCreation(creation, func(ctx context.Context, cmd CreateProduct) behave.Outcome {
//	    if cmd.Price <= 0 {
//	        return behave.Reject("price must be positive, got %v", cmd.Price)
//	    }
//	    return behave.Emit(ProductCreated{ProductID: cmd.ProductID, Name: cmd.Name, Price: cmd.Price})
//	})
//	creation = behave.FoldCreation(creation, func(e ProductCreated) Product {
//	    return Product{ID: e.ProductID, Name: e.Name, Price: e.Price}
//	})
//
//	update := behave.NewUpdateRules[Product]()
//	update = behave.HandleUpdate(update, func(ctx context.Context, cmd ChangePrice, p Product) behave.Outcome {
//	    if cmd.NewPrice <= 0 {
//	        return behave.Reject("price must be positive, got %v", cmd.NewPrice)
//	    }
//	    return behave.Emit(PriceChanged{ProductID: p.ID, NewPrice: cmd.NewPrice})
//	})
//	update = behave.FoldUpdate(update, func(p Product, e PriceChanged) Product {
//	    p.Price = e.NewPrice
//	    return p
//	})
//
// Compile the Behavior. The builder is staged: Build only exists once both
// creation and update rules have been supplied.
//
//	product := behave.New[Product]("Product").
//	    WithCreation(creation).
//	    WithUpdate(update).
//	    MustBuild()
//
// Validate commands and fold events:
//
//	event, err := product.ValidateCreation(ctx, CreateProduct{ProductID: "p-1", Name: "Widget", Price: 10})
//	snapshot, err := product.ApplyCreation(event)
//
//	events, err := product.ValidateUpdate(ctx, ChangePrice{NewPrice: 20}, snapshot)
//	for _, e := range events {
//	    snapshot = product.ApplyUpdate(snapshot, e)
//	}
//
// Rejections are typed error values, never panics:
//
//	_, err := product.ValidateUpdate(ctx, ChangePrice{NewPrice: -5}, snapshot)
//	if rej, ok := behave.AsRejection(err); ok {
//	    fmt.Println(rej.Code, rej.Reason)
//	}
//
// # Rule Ordering
//
// Rules are tried strictly in registration order; the first matching rule
// governs. Registration order is part of the observable contract, so a
// catch-all rule registered first shadows every later rule for the commands
// it matches. Unmatched commands always fall through to a terminal rejection
// rule appended when the Behavior is built.
//
// # Fold Asymmetry
//
// Folding an event with no matching update rule returns the aggregate
// unchanged. Folding an event with no matching creation rule is a contract
// violation and surfaces as an UndefinedFoldError. The asymmetry is
// deliberate: update folds must tolerate events introduced by newer behavior
// revisions, while a creation event the behavior cannot fold means the stream
// does not belong to this behavior at all. Use IsCreationEventDefined and
// IsUpdateEventDefined to probe before folding externally-sourced events.
//
// # Replay
//
// Rebuild a snapshot from an ordered event history:
//
//	snapshot, err := product.Replay(history...)
//
// Replay folds the first event through the creation rules and every
// subsequent event through the update rules. It is deterministic: replaying
// the same history always yields the same snapshot.
//
// # Running Behaviors
//
// The Runtime drives a Behavior against a durable Journal, serializing
// submits per aggregate id:
//
//	journal := behave.NewJournal(memory.NewAdapter())
//	journal.RegisterEvents(ProductCreated{}, PriceChanged{})
//
//	rt := behave.NewRuntime(product, journal)
//	res, err := rt.Submit(ctx, "p-1", CreateProduct{ProductID: "p-1", Name: "Widget", Price: 10})
//
// For production, back the journal with the PostgreSQL adapter:
//
//	adapter, err := postgres.NewAdapter(connStr)
//	journal := behave.NewJournal(adapter)
//
// Runtimes accept middleware for cross-cutting concerns (recovery, logging,
// retry on concurrency conflicts, rate limiting, idempotency, metrics):
//
//	rt := behave.NewRuntime(product, journal,
//	    behave.Use[Product](behave.RecoveryMiddleware()),
//	    behave.Use[Product](behave.RetryMiddleware(behave.DefaultRetryConfig())),
//	)
//
// A Router dispatches commands of many kinds through one entry point:
//
//	router := behave.NewRouter()
//	router.Register(rt, CreateProduct{}, ChangePrice{})
//	res, err := router.Submit(ctx, "p-1", ChangePrice{NewPrice: 20})
package behave

// Version returns the library version string.
func Version() string {
	return "0.1.0"
}

// BuildStreamID creates a stream ID from an aggregate kind and ID.
// This follows the convention: "{Kind}-{ID}"
func BuildStreamID(kind, aggregateID string) string {
	return kind + "-" + aggregateID
}
