package behave

// test_helpers_test.go contains shared test doubles and domain fixtures for
// behave package tests. These types are only compiled during testing.

import (
	"context"
	"sync"

	"github.com/AshkanYarmoradi/go-behave/adapters"
)

// ===========================================================================
// Capturing Logger
// ===========================================================================

// capturingLogger implements Logger and keeps every message grouped by level
// so tests can assert on what was logged.
type capturingLogger struct {
	mu      sync.Mutex
	byLevel map[string][]string
}

func newCapturingLogger() *capturingLogger {
	return &capturingLogger{byLevel: make(map[string][]string)}
}

func (cl *capturingLogger) record(level, msg string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.byLevel[level] = append(cl.byLevel[level], msg)
}

func (cl *capturingLogger) Debug(msg string, _ ...any) { cl.record("debug", msg) }
func (cl *capturingLogger) Info(msg string, _ ...any)  { cl.record("info", msg) }
func (cl *capturingLogger) Warn(msg string, _ ...any)  { cl.record("warn", msg) }
func (cl *capturingLogger) Error(msg string, _ ...any) { cl.record("error", msg) }

// messages returns a copy of everything logged at the given level.
func (cl *capturingLogger) messages(level string) []string {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	out := make([]string, len(cl.byLevel[level]))
	copy(out, cl.byLevel[level])
	return out
}

func (cl *capturingLogger) hasWarn(msg string) bool {
	for _, m := range cl.messages("warn") {
		if m == msg {
			return true
		}
	}
	return false
}

// ===========================================================================
// Product Domain Fixtures
// ===========================================================================

// Commands.
type CreateProduct struct {
	ProductID string
	Name      string
	Price     float64
}

type ChangePrice struct {
	ProductID string
	NewPrice  float64
}

type RenameProduct struct {
	ProductID string
	NewName   string
}

type DiscontinueProduct struct {
	ProductID string
	Reason    string
}

// Events.
type ProductCreated struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
}

type PriceChanged struct {
	ProductID string  `json:"productId"`
	NewPrice  float64 `json:"newPrice"`
}

type ProductRenamed struct {
	ProductID string `json:"productId"`
	NewName   string `json:"newName"`
}

type ProductDiscontinued struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

// Product is the aggregate snapshot.
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Discontinued bool    `json:"discontinued"`
}

func (p Product) AggregateID() string { return p.ID }

func productCreationRules() CreationRules[Product] {
	rules := NewCreationRules[Product]()
	rules = HandleCreation(rules, func(_ context.Context, cmd CreateProduct) Outcome {
		if cmd.Name == "" {
			return Reject("product name is required")
		}
		if cmd.Price <= 0 {
			return Reject("price must be positive, got %v", cmd.Price)
		}
		return Emit(ProductCreated{ProductID: cmd.ProductID, Name: cmd.Name, Price: cmd.Price})
	})
	rules = FoldCreation(rules, func(e ProductCreated) Product {
		return Product{ID: e.ProductID, Name: e.Name, Price: e.Price}
	})
	return rules
}

func productUpdateRules() UpdateRules[Product] {
	rules := NewUpdateRules[Product]()

	// Price changes are guarded on the product still being live; the
	// catch-all below turns attempts on a discontinued product into a
	// domain rejection rather than an unmatched command.
	rules = HandleUpdateIf(rules,
		func(_ ChangePrice, p Product) bool { return !p.Discontinued },
		func(_ context.Context, cmd ChangePrice, p Product) Outcome {
			if cmd.NewPrice <= 0 {
				return Reject("price must be positive, got %v", cmd.NewPrice)
			}
			return Emit(PriceChanged{ProductID: p.ID, NewPrice: cmd.NewPrice})
		})
	rules = HandleUpdate(rules, func(_ context.Context, _ ChangePrice, _ Product) Outcome {
		return Reject("cannot change price: product is discontinued")
	})

	rules = HandleUpdate(rules, func(_ context.Context, cmd RenameProduct, p Product) Outcome {
		if cmd.NewName == "" {
			return Reject("product name is required")
		}
		return Emit(ProductRenamed{ProductID: p.ID, NewName: cmd.NewName})
	})

	rules = HandleUpdateIf(rules,
		func(_ DiscontinueProduct, p Product) bool { return !p.Discontinued },
		func(_ context.Context, cmd DiscontinueProduct, p Product) Outcome {
			return Emit(ProductDiscontinued{ProductID: p.ID, Reason: cmd.Reason})
		})
	rules = HandleUpdate(rules, func(_ context.Context, _ DiscontinueProduct, _ Product) Outcome {
		return Reject("product is already discontinued")
	})

	rules = FoldUpdate(rules, func(p Product, e PriceChanged) Product {
		p.Price = e.NewPrice
		return p
	})
	rules = FoldUpdate(rules, func(p Product, e ProductRenamed) Product {
		p.Name = e.NewName
		return p
	})
	rules = FoldUpdate(rules, func(p Product, e ProductDiscontinued) Product {
		p.Discontinued = true
		return p
	})

	return rules
}

func newProductBehavior() *Behavior[Product] {
	return New[Product]("Product").
		WithCreation(productCreationRules()).
		WithUpdate(productUpdateRules()).
		MustBuild()
}

// ===========================================================================
// Plain Journal Adapter (no snapshot support)
// ===========================================================================

// plainAdapter wraps a JournalAdapter and exposes only the core interface,
// hiding any snapshot capability of the wrapped adapter.
type plainAdapter struct {
	inner adapters.JournalAdapter
}

func (p *plainAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	return p.inner.Append(ctx, streamID, events, expectedVersion)
}

func (p *plainAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	return p.inner.Load(ctx, streamID, fromVersion)
}

func (p *plainAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	return p.inner.GetStreamInfo(ctx, streamID)
}

func (p *plainAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	return p.inner.GetLastPosition(ctx)
}

func (p *plainAdapter) Initialize(ctx context.Context) error {
	return p.inner.Initialize(ctx)
}

func (p *plainAdapter) Close() error {
	return p.inner.Close()
}

// ===========================================================================
// Fake Submitter
// ===========================================================================

// fakeSubmitter records submissions for router tests.
type fakeSubmitter struct {
	kind string

	mu        sync.Mutex
	submitted []Submission
	result    SubmitResult
	err       error
}

func newFakeSubmitter(kind string) *fakeSubmitter {
	return &fakeSubmitter{kind: kind, result: SubmitResult{Kind: kind}}
}

func (f *fakeSubmitter) Kind() string { return f.kind }

func (f *fakeSubmitter) Submit(_ context.Context, aggregateID string, cmd any) (SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, Submission{AggregateID: aggregateID, Command: cmd})
	return f.result, f.err
}

func (f *fakeSubmitter) submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Submission, len(f.submitted))
	copy(out, f.submitted)
	return out
}

// ===========================================================================
// Fake Publisher
// ===========================================================================

// fakePublisher records broadcast notifications for a single destination.
type fakePublisher struct {
	destination string

	mu        sync.Mutex
	published []*Notification
	err       error
	closed    bool
}

func newFakePublisher(destination string) *fakePublisher {
	return &fakePublisher{destination: destination}
}

func (fp *fakePublisher) Publish(_ context.Context, notes []*Notification) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.err != nil {
		return fp.err
	}
	fp.published = append(fp.published, notes...)
	return nil
}

func (fp *fakePublisher) Destination() string { return fp.destination }

func (fp *fakePublisher) Close() error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.closed = true
	return nil
}

func (fp *fakePublisher) notifications() []*Notification {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	out := make([]*Notification, len(fp.published))
	copy(out, fp.published)
	return out
}

func (fp *fakePublisher) isClosed() bool {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.closed
}
