package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/avetra/ordergate/pkg/auth"
	"github.com/avetra/ordergate/pkg/httpmiddleware"
	"github.com/avetra/ordergate/pkg/httpx"
)

// Forwarder reverse-proxies requests to one backend service, stripping a
// route prefix and replacing the identity headers. Upstream responses pass
// through untouched, error status included; only transport failures are
// rewritten, into a 503 envelope.
type Forwarder struct {
	proxy *httputil.ReverseProxy
}

// NewForwarder creates a Forwarder for target. stripPrefix is removed from
// the inbound path before forwarding; a fully stripped path becomes "/".
// timeout bounds the wait for upstream response headers.
func NewForwarder(target *url.URL, stripPrefix string, timeout time.Duration) *Forwarder {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.URL.Path = stripPath(pr.In.URL.Path, stripPrefix)
			pr.Out.Host = target.Host

			// Only the gateway may assert identity: drop whatever the client
			// sent before injecting the verified principal.
			pr.Out.Header.Del(auth.HeaderUserID)
			pr.Out.Header.Del(auth.HeaderUserRoles)
			if p, ok := auth.PrincipalFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set(auth.HeaderUserID, p.UserID)
				pr.Out.Header.Set(auth.HeaderUserRoles, strings.Join(p.Roles, ","))
			}

			if id := httpmiddleware.RequestIDFromContext(pr.In.Context()); id != "" {
				pr.Out.Header.Set(httpmiddleware.HeaderRequestID, id)
			}
		},
		Transport: &http.Transport{
			ResponseHeaderTimeout: timeout,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			zctx.From(r.Context()).Error("upstream unreachable",
				zap.String("path", r.URL.Path), zap.Error(err))
			httpx.WriteError(w, http.StatusServiceUnavailable,
				httpx.CodeServiceUnavailable, "upstream service unavailable")
		},
	}
	return &Forwarder{proxy: proxy}
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.proxy.ServeHTTP(w, r)
}

// stripPath removes prefix from path. The backend serves from its root, so an
// exact prefix match maps to "/".
func stripPath(path, prefix string) string {
	if prefix == "" {
		return path
	}
	stripped := strings.TrimPrefix(path, prefix)
	if stripped == "" || !strings.HasPrefix(stripped, "/") {
		stripped = "/" + stripped
	}
	return stripped
}
