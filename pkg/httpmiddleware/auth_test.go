package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetra/ordergate/pkg/auth"
)

var testSecret = []byte("middleware-test-secret")

func issueToken(t *testing.T, userID string, roles []string) string {
	t.Helper()
	token, err := auth.NewTokenIssuer(testSecret, "test", time.Hour).Issue(userID, "u@example.com", roles)
	require.NoError(t, err)
	return token
}

// principalEcho responds 200 and records the principal it saw.
func principalEcho(captured *auth.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := auth.PrincipalFromContext(r.Context()); ok {
			*captured = p
		}
		w.WriteHeader(http.StatusOK)
	})
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error.Code
}

func TestBearerAuth_MissingHeader(t *testing.T) {
	handler := BearerAuth(auth.NewTokenVerifier(testSecret))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_token", decodeErrorCode(t, w))
}

func TestBearerAuth_NotBearerScheme(t *testing.T) {
	handler := BearerAuth(auth.NewTokenVerifier(testSecret))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_token", decodeErrorCode(t, w))
}

func TestBearerAuth_InvalidToken(t *testing.T) {
	handler := BearerAuth(auth.NewTokenVerifier(testSecret))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_token", decodeErrorCode(t, w))
}

func TestBearerAuth_ValidToken(t *testing.T) {
	var captured auth.Principal
	handler := BearerAuth(auth.NewTokenVerifier(testSecret))(principalEcho(&captured))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, "u-42", []string{"user"}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-42", captured.UserID)
	assert.Equal(t, []string{"user"}, captured.Roles)
}

func TestRequireRoles_NoPrincipal(t *testing.T) {
	handler := RequireRoles("admin")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "forbidden", decodeErrorCode(t, w))
}

func TestRequireRoles_InsufficientRole(t *testing.T) {
	handler := Wrap(okHandler(),
		BearerAuth(auth.NewTokenVerifier(testSecret)),
		RequireRoles("admin"),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, "u-1", []string{"user"}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRoles_MatchingRole(t *testing.T) {
	handler := Wrap(okHandler(),
		BearerAuth(auth.NewTokenVerifier(testSecret)),
		RequireRoles("admin"),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, "u-1", []string{"admin", "user"}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTrustedIdentity_MissingHeader(t *testing.T) {
	handler := TrustedIdentity()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_identity", decodeErrorCode(t, w))
}

func TestTrustedIdentity_BuildsPrincipal(t *testing.T) {
	var captured auth.Principal
	handler := TrustedIdentity()(principalEcho(&captured))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(auth.HeaderUserID, "u-7")
	req.Header.Set(auth.HeaderUserRoles, "user, admin")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-7", captured.UserID)
	assert.Equal(t, []string{"user", "admin"}, captured.Roles)
}

func TestTrustedIdentity_SkipsHealthPaths(t *testing.T) {
	handler := TrustedIdentity("/health")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
