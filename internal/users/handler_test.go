package users

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetra/ordergate/internal/domain/user"
	"github.com/avetra/ordergate/pkg/auth"
	"github.com/avetra/ordergate/pkg/httpmiddleware"
)

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*user.User)}
}

func (r *memUserRepo) Create(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return user.ErrUserExists
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *memUserRepo) List(_ context.Context, params user.ListParams) ([]user.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []user.User
	for _, u := range r.users {
		if params.Email != "" && !strings.Contains(u.Email, params.Email) {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	total := len(out)
	if params.Offset >= total {
		return nil, total, nil
	}
	out = out[params.Offset:]
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, total, nil
}

func (r *memUserRepo) Update(_ context.Context, id string, upd user.Update) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	if upd.Email != nil {
		for otherID, other := range r.users {
			if otherID != id && other.Email == *upd.Email {
				return nil, user.ErrUserExists
			}
		}
		u.Email = *upd.Email
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Roles != nil {
		u.Roles = upd.Roles
	}
	cp := *u
	return &cp, nil
}

var testSecret = []byte("users-handler-test-secret")

func newTestHandler(t *testing.T) (http.Handler, *memUserRepo) {
	t.Helper()
	repo := newMemUserRepo()
	issuer := auth.NewTokenIssuer(testSecret, "ordergate-test", time.Hour)
	svc := user.NewService(repo, issuer)

	mux := http.NewServeMux()
	NewHandler(svc).Routes(mux)
	return httpmiddleware.Wrap(mux,
		httpmiddleware.TrustedIdentity("/auth/register", "/auth/login")), repo
}

func doRequest(handler http.Handler, method, path, body, userID, roles string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(auth.HeaderUserID, userID)
		req.Header.Set(auth.HeaderUserRoles, roles)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

type envelopeBody struct {
	Success bool `json:"success"`
	Data    struct {
		ID    string   `json:"id"`
		Email string   `json:"email"`
		Name  string   `json:"name"`
		Roles []string `json:"roles"`
		Token string   `json:"token"`
		User  struct {
			ID    string   `json:"id"`
			Email string   `json:"email"`
			Roles []string `json:"roles"`
		} `json:"user"`
		Users []struct {
			Email string `json:"email"`
		} `json:"users"`
	} `json:"data"`
	Pagination *struct {
		Page       int `json:"page"`
		Limit      int `json:"limit"`
		Total      int `json:"total"`
		TotalPages int `json:"totalPages"`
	} `json:"pagination"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var body envelopeBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func registerTestUser(t *testing.T, handler http.Handler, email string) string {
	t.Helper()
	w := doRequest(handler, http.MethodPost, "/auth/register",
		`{"email":"`+email+`","password":"hunter22","name":"Test"}`, "", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeEnvelope(t, w)
	require.NotEmpty(t, body.Data.ID)
	return body.Data.ID
}

func TestRegister(t *testing.T) {
	handler, _ := newTestHandler(t)

	w := doRequest(handler, http.MethodPost, "/auth/register",
		`{"email":"alice@example.com","password":"hunter22","name":"Alice"}`, "", "")

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeEnvelope(t, w)
	assert.True(t, body.Success)
	assert.Equal(t, "alice@example.com", body.Data.Email)
	assert.Equal(t, []string{"user"}, body.Data.Roles)
	assert.NotContains(t, w.Body.String(), "password", "hash must not leak")
}

func TestRegister_Validation(t *testing.T) {
	handler, _ := newTestHandler(t)

	w := doRequest(handler, http.MethodPost, "/auth/register",
		`{"email":"broken@","password":"hunter22"}`, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeEnvelope(t, w).Error.Code)

	w = doRequest(handler, http.MethodPost, "/auth/register",
		`{"email":"ok@example.com","password":"short"}`, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_Duplicate(t *testing.T) {
	handler, _ := newTestHandler(t)
	registerTestUser(t, handler, "dup@example.com")

	w := doRequest(handler, http.MethodPost, "/auth/register",
		`{"email":"dup@example.com","password":"hunter22"}`, "", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "user_exists", decodeEnvelope(t, w).Error.Code)
}

func TestLogin(t *testing.T) {
	handler, _ := newTestHandler(t)
	id := registerTestUser(t, handler, "bob@example.com")

	w := doRequest(handler, http.MethodPost, "/auth/login",
		`{"email":"bob@example.com","password":"hunter22"}`, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	require.NotEmpty(t, body.Data.Token)
	assert.Equal(t, id, body.Data.User.ID)

	claims, err := auth.NewTokenVerifier(testSecret).Verify(body.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, []string{"user"}, claims.Roles)
}

func TestLogin_BadCredentials(t *testing.T) {
	handler, _ := newTestHandler(t)
	registerTestUser(t, handler, "carol@example.com")

	w := doRequest(handler, http.MethodPost, "/auth/login",
		`{"email":"carol@example.com","password":"wrong"}`, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", decodeEnvelope(t, w).Error.Code)

	w = doRequest(handler, http.MethodPost, "/auth/login",
		`{"email":"ghost@example.com","password":"hunter22"}`, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", decodeEnvelope(t, w).Error.Code)
}

func TestMe(t *testing.T) {
	handler, _ := newTestHandler(t)
	id := registerTestUser(t, handler, "dave@example.com")

	w := doRequest(handler, http.MethodGet, "/users/me", "", id, "user")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dave@example.com", decodeEnvelope(t, w).Data.Email)

	// No identity header means the request bypassed the gateway.
	w = doRequest(handler, http.MethodGet, "/users/me", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_identity", decodeEnvelope(t, w).Error.Code)
}

func TestUpdateMe(t *testing.T) {
	handler, _ := newTestHandler(t)
	id := registerTestUser(t, handler, "erin@example.com")

	w := doRequest(handler, http.MethodPut, "/users/me",
		`{"name":"Erin Updated","email":"erin2@example.com"}`, id, "user")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, "Erin Updated", body.Data.Name)
	assert.Equal(t, "erin2@example.com", body.Data.Email)
}

func TestAdminList(t *testing.T) {
	handler, _ := newTestHandler(t)
	registerTestUser(t, handler, "frank@corp.example.com")
	registerTestUser(t, handler, "grace@other.example.com")

	// Non-admin is rejected by the role check.
	w := doRequest(handler, http.MethodGet, "/admin/users", "", "u-1", "user")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(handler, http.MethodGet, "/admin/users", "", "a-1", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Len(t, body.Data.Users, 2)
	require.NotNil(t, body.Pagination)
	assert.Equal(t, 2, body.Pagination.Total)

	w = doRequest(handler, http.MethodGet, "/admin/users?email=corp", "", "a-1", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeEnvelope(t, w).Data.Users, 1)
}

func TestAdminList_LimitIsClamped(t *testing.T) {
	handler, repo := newTestHandler(t)
	for i := range 120 {
		u := &user.User{
			ID:    fmt.Sprintf("u-%03d", i),
			Email: fmt.Sprintf("user%03d@example.com", i),
			Roles: []string{"user"},
		}
		require.NoError(t, repo.Create(context.Background(), u))
	}

	// The oversized limit is capped; the metadata must describe the page
	// actually served.
	w := doRequest(handler, http.MethodGet, "/admin/users?limit=1000", "", "a-1", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Len(t, body.Data.Users, 100)
	require.NotNil(t, body.Pagination)
	assert.Equal(t, 100, body.Pagination.Limit, "reported limit matches the rows served")
	assert.Equal(t, 120, body.Pagination.Total)
	assert.Equal(t, 2, body.Pagination.TotalPages)
}

func TestAdminUpdate(t *testing.T) {
	handler, _ := newTestHandler(t)
	id := registerTestUser(t, handler, "henry@example.com")

	w := doRequest(handler, http.MethodPut, "/admin/users/"+id,
		`{"roles":["admin","user"]}`, "a-1", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"admin", "user"}, decodeEnvelope(t, w).Data.Roles)

	w = doRequest(handler, http.MethodPut, "/admin/users/"+id,
		`{"roles":[]}`, "a-1", "admin")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeEnvelope(t, w).Error.Code)

	w = doRequest(handler, http.MethodPut, "/admin/users/missing",
		`{"roles":["user"]}`, "a-1", "admin")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(handler, http.MethodPut, "/admin/users/"+id,
		`{"roles":["user"]}`, "u-2", "user")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
