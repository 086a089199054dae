package users

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/avetra/ordergate/internal/domain/user"
	"github.com/avetra/ordergate/pkg/auth"
	"github.com/avetra/ordergate/pkg/httpmiddleware"
	"github.com/avetra/ordergate/pkg/httpx"
)

// Handler exposes the user service over HTTP. The gateway strips the
// /api/v1 prefix, so paths here start at /auth, /users and /admin.
type Handler struct {
	users *user.Service
}

func NewHandler(users *user.Service) *Handler {
	return &Handler{users: users}
}

// Routes registers all user endpoints on mux. Admin endpoints re-check the
// role even though the gateway already gates them; identity headers make the
// check cheap and the service safe to call directly inside the network.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.register)
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("GET /users/me", h.me)
	mux.HandleFunc("PUT /users/me", h.updateMe)

	adminOnly := httpmiddleware.RequireRoles(auth.RoleAdmin)
	mux.Handle("GET /admin/users", adminOnly(http.HandlerFunc(h.adminList)))
	mux.Handle("PUT /admin/users/{id}", adminOnly(http.HandlerFunc(h.adminUpdate)))
}

// userResponse is the wire shape of a user. The password hash never appears
// here.
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toResponse(u *user.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Roles:     u.Roles,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationError, "invalid request body")
		return
	}

	u, err := h.users.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeUserError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, toResponse(u))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationError, "invalid request body")
		return
	}

	u, token, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeUserError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  toResponse(u),
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingIdentity, "no identity")
		return
	}

	u, err := h.users.Get(r.Context(), p.UserID)
	if err != nil {
		writeUserError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, toResponse(u))
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeMissingIdentity, "no identity")
		return
	}

	req, err := decodeUpdate(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationError, "invalid request body")
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), p.UserID, req.Name, req.Email)
	if err != nil {
		writeUserError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, toResponse(u))
}

func (h *Handler) adminList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	page, limit = user.ClampPage(page, limit)

	list, total, err := h.users.List(r.Context(), page, limit, query.Get("email"))
	if err != nil {
		writeUserError(w, r, err)
		return
	}

	responses := make([]userResponse, len(list))
	for i := range list {
		responses[i] = toResponse(&list[i])
	}
	httpx.WritePage(w, http.StatusOK,
		map[string]any{"users": responses},
		httpx.NewPagination(page, limit, total))
}

func (h *Handler) adminUpdate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeUpdate(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationError, "invalid request body")
		return
	}

	u, err := h.users.AdminUpdate(r.Context(), r.PathValue("id"), req.Name, req.Roles)
	if err != nil {
		writeUserError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, toResponse(u))
}

// writeUserError maps domain errors onto the response envelope. Anything
// unrecognized is logged and normalized to internal_error.
func writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, user.ErrInvalidEmail),
		errors.Is(err, user.ErrWeakPassword),
		errors.Is(err, user.ErrEmptyRoles):
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidationError, err.Error())
	case errors.Is(err, user.ErrUserExists):
		httpx.WriteError(w, http.StatusConflict, httpx.CodeUserExists, "email is already registered")
	case errors.Is(err, user.ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeInvalidCredentials, "invalid email or password")
	case errors.Is(err, user.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "user not found")
	default:
		zctx.From(r.Context()).Error("user operation failed", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternalError, "internal error")
	}
}
