// Package order implements the ownership-gated order resource and its status
// state machine.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions is the complete state machine: created -> in_progress ->
// completed, with cancellation allowed from created and in_progress.
// Completed and cancelled are terminal.
var transitions = map[Status][]Status{
	StatusCreated:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition is defined out of s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Item is a single order line. The json tags double as the JSONB storage
// layout and the API wire shape.
type Item struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

// Order is the ownership-gated resource. Orders are never hard-deleted;
// cancellation is a status value.
type Order struct {
	ID          string
	OwnerID     string
	Items       []Item
	TotalAmount decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Sortable columns for listing. Anything else silently falls back to the
// default to keep dynamic ordering constrained.
const (
	SortByCreatedAt   = "created_at"
	SortByStatus      = "status"
	SortByTotalAmount = "total_amount"
)

// ListParams selects and orders a page of orders. An empty OwnerID means no
// ownership filter (admin view).
type ListParams struct {
	OwnerID  string
	Offset   int
	Limit    int
	SortBy   string
	SortDesc bool
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error

	// GetByID returns ErrNotFound when no order has the given id.
	GetByID(ctx context.Context, id string) (*Order, error)

	// List returns one page of orders plus the total match count.
	List(ctx context.Context, params ListParams) ([]Order, int, error)

	// UpdateStatus moves an order from expected current status from to next as
	// one conditional write. It returns ErrNotFound when no row matched,
	// which callers must disambiguate: either the order does not exist or a
	// concurrent transition already moved it out of from.
	UpdateStatus(ctx context.Context, id string, from, next Status) (*Order, error)
}
