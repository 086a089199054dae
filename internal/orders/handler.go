package orders

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/avetra/ordergate/internal/domain/order"
	"github.com/avetra/ordergate/pkg/auth"
	"github.com/avetra/ordergate/pkg/httpx"
)

// Handler exposes the order service over HTTP. The gateway strips its route
// prefix, so all paths here are relative to the service root.
type Handler struct {
	orders *order.Service
}

func NewHandler(orders *order.Service) *Handler {
	return &Handler{orders: orders}
}

// Routes registers all order endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /{$}", h.create)
	mux.HandleFunc("GET /{$}", h.list)
	mux.HandleFunc("GET /{id}", h.get)
	mux.HandleFunc("PATCH /{id}/status", h.updateStatus)
	mux.HandleFunc("DELETE /{id}/cancel", h.cancel)
}

// orderResponse is the wire shape of a single order.
type orderResponse struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"ownerId"`
	Items       []order.Item `json:"items"`
	TotalAmount float64      `json:"totalAmount"`
	Status      order.Status `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func toResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		OwnerID:     o.OwnerID,
		Items:       o.Items,
		TotalAmount: o.TotalAmount.InexactFloat64(),
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingIdentity, "no identity")
		return
	}

	req, err := decodeCreateOrder(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationError, "invalid request body")
		return
	}

	o, err := h.orders.Create(r.Context(), p, req.Items, req.Total)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, toResponse(o))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingIdentity, "no identity")
		return
	}

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	q := order.ListQuery{
		Page:      page,
		Limit:     limit,
		SortBy:    query.Get("sortBy"),
		SortOrder: query.Get("sortOrder"),
	}.Normalize()

	list, total, err := h.orders.List(r.Context(), p, q)
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	responses := make([]orderResponse, len(list))
	for i := range list {
		responses[i] = toResponse(&list[i])
	}
	httpx.WritePage(w, http.StatusOK,
		map[string]any{"orders": responses},
		httpx.NewPagination(q.Page, q.Limit, total))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingIdentity, "no identity")
		return
	}

	o, err := h.orders.Get(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, toResponse(o))
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingIdentity, "no identity")
		return
	}

	next, err := decodeUpdateStatus(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationError, "invalid request body")
		return
	}

	id := r.PathValue("id")
	o, err := h.orders.UpdateStatus(r.Context(), p, id, next)
	if order.IsCancellation(err) {
		// PATCH to cancelled is allowed, but it obeys cancellation rules.
		o, err = h.orders.Cancel(r.Context(), p, id)
	}
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, toResponse(o))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingIdentity, "no identity")
		return
	}

	o, err := h.orders.Cancel(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, toResponse(o))
}

// writeOrderError maps domain errors onto the response envelope. Anything
// unrecognized is logged and normalized to internal_error.
func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "order not found")
		return
	case errors.Is(err, order.ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "access denied")
		return
	case errors.Is(err, order.ErrEmptyItems), errors.Is(err, order.ErrNegativeTotal):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationError, err.Error())
		return
	}

	var (
		itemErr   *order.InvalidItemError
		statusErr *order.InvalidStatusError
		transErr  *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &itemErr), errors.As(err, &statusErr):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationError, err.Error())
	case errors.As(err, &transErr):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidTransition, transErr.Error())
	default:
		zctx.From(r.Context()).Error("order operation failed", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternalError, "internal error")
	}
}
