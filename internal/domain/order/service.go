package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avetra/ordergate/pkg/auth"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrNotFound      = fmt.Errorf("order not found")
	ErrForbidden     = fmt.Errorf("access denied")
	ErrEmptyItems    = fmt.Errorf("order must contain at least one item")
	ErrNegativeTotal = fmt.Errorf("total amount must not be negative")
)

// InvalidItemError indicates a malformed order line.
type InvalidItemError struct {
	Index  int
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

// InvalidStatusError indicates a status value outside the lifecycle enum.
type InvalidStatusError struct {
	Status Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("unknown status %q", e.Status)
}

// InvalidTransitionError indicates a status change the state machine forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %q to %q", e.From, e.To)
}

// Policy selects who may perform a privileged order operation.
type Policy string

const (
	PolicyOwner  Policy = "owner"
	PolicyAdmin  Policy = "admin"
	PolicyEither Policy = "either"
)

// Config holds the authorization policy knobs. Who may transition or cancel
// differs per deployment, so both are configuration rather than a hardcoded
// rule.
type Config struct {
	// TransitionPolicy gates non-cancellation status changes. Default admin.
	TransitionPolicy Policy
	// CancelPolicy gates cancellation. Default owner: admins do not override.
	CancelPolicy Policy
}

// Service enforces the ownership gate and the status state machine on top of
// the repository.
type Service struct {
	orders Repository
	cfg    Config
}

// NewService creates an order Service. Zero-value policies fall back to the
// defaults (admin-gated transitions, owner-only cancellation).
func NewService(orders Repository, cfg Config) *Service {
	if cfg.TransitionPolicy == "" {
		cfg.TransitionPolicy = PolicyAdmin
	}
	if cfg.CancelPolicy == "" {
		cfg.CancelPolicy = PolicyOwner
	}
	return &Service{orders: orders, cfg: cfg}
}

// Create validates the input and persists a new order owned by the caller.
// The initial status is always created.
func (s *Service) Create(ctx context.Context, p auth.Principal, items []Item, total decimal.Decimal) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for i, item := range items {
		if strings.TrimSpace(item.Product) == "" {
			return nil, &InvalidItemError{Index: i, Reason: "product name is required"}
		}
		if item.Quantity < 1 {
			return nil, &InvalidItemError{Index: i, Reason: "quantity must be at least 1"}
		}
	}
	if total.IsNegative() {
		return nil, ErrNegativeTotal
	}

	o := &Order{
		ID:          uuid.New().String(),
		OwnerID:     p.UserID,
		Items:       items,
		TotalAmount: total.Round(2),
		Status:      StatusCreated,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}

// Get returns the order if the caller owns it or holds the admin role.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.OwnerID != p.UserID && !p.IsAdmin() {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListQuery is the raw, client-supplied listing input.
type ListQuery struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Normalize clamps the query to the page and limit the listing will actually
// use. Callers that report pagination metadata must build it from the
// normalized values, not the raw client input.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	return q
}

// List returns one page of orders with the total count. Admins see every
// order, everyone else only their own. Unrecognized sort keys or directions
// silently fall back to created_at descending.
func (s *Service) List(ctx context.Context, p auth.Principal, q ListQuery) ([]Order, int, error) {
	q = q.Normalize()

	params := ListParams{
		Offset:   (q.Page - 1) * q.Limit,
		Limit:    q.Limit,
		SortBy:   sanitizeSortKey(q.SortBy),
		SortDesc: sanitizeSortOrder(q.SortOrder),
	}
	if !p.IsAdmin() {
		params.OwnerID = p.UserID
	}

	orders, total, err := s.orders.List(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus moves the order to next, enforcing the role policy and the
// state machine. A transition to cancelled is routed through Cancel so the
// cancellation policy always applies.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id string, next Status) (*Order, error) {
	if !next.Valid() || next == StatusCreated {
		return nil, &InvalidStatusError{Status: next}
	}
	if next == StatusCancelled {
		return nil, ErrUseCancel
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowedBy(s.cfg.TransitionPolicy, p, o) {
		return nil, ErrForbidden
	}

	// The state machine applies regardless of role.
	if !o.Status.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}
	return s.transition(ctx, id, o.Status, next)
}

// ErrUseCancel signals that the caller asked UpdateStatus for a cancellation,
// which has its own policy and entry point.
var ErrUseCancel = fmt.Errorf("cancellation must go through Cancel")

// IsCancellation reports whether an UpdateStatus error means the caller asked
// for a cancellation.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrUseCancel)
}

// Cancel moves the order to cancelled. Terminal orders (completed or already
// cancelled) fail with InvalidTransitionError, so a second cancel of the same
// order is rejected and leaves the status untouched.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowedBy(s.cfg.CancelPolicy, p, o) {
		return nil, ErrForbidden
	}
	if !o.Status.CanTransitionTo(StatusCancelled) {
		return nil, &InvalidTransitionError{From: o.Status, To: StatusCancelled}
	}
	return s.transition(ctx, id, o.Status, StatusCancelled)
}

// transition performs the conditional write and disambiguates a guard miss:
// if the order still exists, a concurrent request already moved it, which is
// an invalid transition from the caller's point of view.
func (s *Service) transition(ctx context.Context, id string, from, next Status) (*Order, error) {
	updated, err := s.orders.UpdateStatus(ctx, id, from, next)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	current, getErr := s.orders.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, &InvalidTransitionError{From: current.Status, To: next}
}

// allowedBy evaluates a policy for the principal against the order's owner.
func allowedBy(policy Policy, p auth.Principal, o *Order) bool {
	isOwner := p.UserID != "" && p.UserID == o.OwnerID
	switch policy {
	case PolicyOwner:
		return isOwner
	case PolicyAdmin:
		return p.IsAdmin()
	case PolicyEither:
		return isOwner || p.IsAdmin()
	}
	return false
}

// sanitizeSortKey maps a client sort key onto the column allow-list.
func sanitizeSortKey(key string) string {
	switch key {
	case SortByStatus, SortByTotalAmount, SortByCreatedAt:
		return key
	case "createdAt":
		return SortByCreatedAt
	case "totalAmount":
		return SortByTotalAmount
	}
	return SortByCreatedAt
}

// sanitizeSortOrder returns true for descending order, the safe default.
func sanitizeSortOrder(order string) bool {
	return !strings.EqualFold(order, "asc")
}
