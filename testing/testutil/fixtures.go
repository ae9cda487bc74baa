package testutil

import (
	"context"

	"github.com/AshkanYarmoradi/go-behave"
)

// OrderPlaced opens an order stream.
type OrderPlaced struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
}

// OrderItemAdded records one line item.
type OrderItemAdded struct {
	OrderID string  `json:"orderId"`
	SKU     string  `json:"sku"`
	Count   int     `json:"count"`
	Price   float64 `json:"price"`
}

// OrderShipped marks fulfilment with a tracking code.
type OrderShipped struct {
	OrderID  string `json:"orderId"`
	Tracking string `json:"tracking"`
}

// OrderCancelled ends the order and keeps the reason.
type OrderCancelled struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// PlaceOrder creates an order.
type PlaceOrder struct {
	OrderID    string
	CustomerID string
}

// AddOrderItem adds an item to an order.
type AddOrderItem struct {
	OrderID string
	SKU     string
	Count   int
	Price   float64
}

// ShipOrder ships an order.
type ShipOrder struct {
	OrderID  string
	Tracking string
}

// CancelOrder cancels an order.
type CancelOrder struct {
	OrderID string
	Reason  string
}

// Order status values.
const (
	OrderStatusPlaced    = "placed"
	OrderStatusShipped   = "shipped"
	OrderStatusCancelled = "cancelled"
)

// OrderItem is a single order line.
type OrderItem struct {
	SKU   string
	Count int
	Price float64
}

// Order is a test aggregate shared by subpackage tests. It is a plain value
// struct; folds return a new Order rather than mutating the receiver.
type Order struct {
	ID           string
	CustomerID   string
	Items        []OrderItem
	Status       string
	Tracking     string
	CancelReason string
}

// AggregateID implements behave.Aggregate.
func (o Order) AggregateID() string { return o.ID }

// Total sums price times count over all order lines.
func (o Order) Total() float64 {
	var sum float64
	for _, ln := range o.Items {
		sum += ln.Price * float64(ln.Count)
	}
	return sum
}

// withItem returns a copy of the order with one more item. The items slice is
// cloned so folded states never share backing arrays.
func (o Order) withItem(item OrderItem) Order {
	items := make([]OrderItem, len(o.Items), len(o.Items)+1)
	copy(items, o.Items)
	o.Items = append(items, item)
	return o
}

// NewOrderBehavior builds the Order behavior used across test suites.
// Rules for the same command type are registered most-specific first, so
// the catch-all rejection rules only fire when no stateful guard matched.
func NewOrderBehavior() *behave.Behavior[Order] {
	creation := behave.NewCreationRules[Order]()
	creation = behave.HandleCreation(creation, func(ctx context.Context, cmd PlaceOrder) behave.Outcome {
		if cmd.CustomerID == "" {
			return behave.Reject("customer id is required")
		}
		return behave.Emit(OrderPlaced{OrderID: cmd.OrderID, CustomerID: cmd.CustomerID})
	})
	creation = behave.FoldCreation(creation, func(e OrderPlaced) Order {
		return Order{ID: e.OrderID, CustomerID: e.CustomerID, Status: OrderStatusPlaced}
	})

	update := behave.NewUpdateRules[Order]()

	update = behave.HandleUpdateIf(update,
		func(cmd AddOrderItem, agg Order) bool { return agg.Status == OrderStatusPlaced },
		func(ctx context.Context, cmd AddOrderItem, agg Order) behave.Outcome {
			if cmd.Count <= 0 {
				return behave.Reject("quantity must be positive, got %d", cmd.Count)
			}
			return behave.Emit(OrderItemAdded{OrderID: agg.ID, SKU: cmd.SKU, Count: cmd.Count, Price: cmd.Price})
		})
	update = behave.HandleUpdate(update, func(ctx context.Context, cmd AddOrderItem, agg Order) behave.Outcome {
		return behave.Reject("cannot add items: order is %s", agg.Status)
	})

	update = behave.HandleUpdateIf(update,
		func(cmd ShipOrder, agg Order) bool { return agg.Status == OrderStatusPlaced && len(agg.Items) > 0 },
		func(ctx context.Context, cmd ShipOrder, agg Order) behave.Outcome {
			return behave.Emit(OrderShipped{OrderID: agg.ID, Tracking: cmd.Tracking})
		})
	update = behave.HandleUpdateIf(update,
		func(cmd ShipOrder, agg Order) bool { return agg.Status == OrderStatusPlaced },
		func(ctx context.Context, cmd ShipOrder, agg Order) behave.Outcome {
			return behave.Reject("cannot ship an empty order")
		})
	update = behave.HandleUpdate(update, func(ctx context.Context, cmd ShipOrder, agg Order) behave.Outcome {
		return behave.Reject("cannot ship: order is %s", agg.Status)
	})

	update = behave.HandleUpdateIf(update,
		func(cmd CancelOrder, agg Order) bool { return agg.Status == OrderStatusPlaced },
		func(ctx context.Context, cmd CancelOrder, agg Order) behave.Outcome {
			return behave.Emit(OrderCancelled{OrderID: agg.ID, Reason: cmd.Reason})
		})
	update = behave.HandleUpdate(update, func(ctx context.Context, cmd CancelOrder, agg Order) behave.Outcome {
		return behave.Reject("cannot cancel: order is %s", agg.Status)
	})

	update = behave.FoldUpdate(update, func(agg Order, e OrderItemAdded) Order {
		return agg.withItem(OrderItem{SKU: e.SKU, Count: e.Count, Price: e.Price})
	})
	update = behave.FoldUpdate(update, func(agg Order, e OrderShipped) Order {
		agg.Status = OrderStatusShipped
		agg.Tracking = e.Tracking
		return agg
	})
	update = behave.FoldUpdate(update, func(agg Order, e OrderCancelled) Order {
		agg.Status = OrderStatusCancelled
		agg.CancelReason = e.Reason
		return agg
	})

	return behave.New[Order]("Order").
		WithCreation(creation).
		WithUpdate(update).
		MustBuild()
}

// RegisterOrderEvents registers the Order event types with the journal.
func RegisterOrderEvents(journal *behave.Journal) {
	journal.RegisterEvents(OrderPlaced{}, OrderItemAdded{}, OrderShipped{}, OrderCancelled{})
}
