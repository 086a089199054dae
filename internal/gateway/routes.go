package gateway

import (
	"net/http"
	"net/url"

	"github.com/go-faster/errors"

	"github.com/avetra/ordergate/pkg/auth"
	"github.com/avetra/ordergate/pkg/health"
	"github.com/avetra/ordergate/pkg/httpmiddleware"
	"github.com/avetra/ordergate/pkg/httpx"
)

// Routes builds the gateway routing table: which paths are public, which
// require a valid token, which require the admin role, and where each one is
// forwarded.
func Routes(cfg *Config, verifier *auth.TokenVerifier, healthSvc *health.Health) (http.Handler, error) {
	usersURL, err := url.Parse(cfg.UsersURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse users URL")
	}
	ordersURL, err := url.Parse(cfg.OrdersURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse orders URL")
	}

	// Users keep the /auth, /users and /admin path segments; orders serve
	// from their root.
	users := NewForwarder(usersURL, "/api/v1", cfg.UpstreamTimeout)
	orders := NewForwarder(ordersURL, "/api/v1/orders", cfg.UpstreamTimeout)

	authed := httpmiddleware.BearerAuth(verifier)
	adminOnly := httpmiddleware.RequireRoles(auth.RoleAdmin)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)

	// Public: no token exists yet at registration or login time.
	mux.Handle("POST /api/v1/auth/register", users)
	mux.Handle("POST /api/v1/auth/login", users)

	mux.Handle("/api/v1/users/", authed(users))
	mux.Handle("/api/v1/admin/", httpmiddleware.Wrap(users, authed, adminOnly))

	mux.Handle("/api/v1/orders", authed(orders))
	mux.Handle("/api/v1/orders/", authed(orders))

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "no such route")
	})

	return mux, nil
}
