// Package gateway wires the public API gateway: request correlation, rate
// limiting, authentication, role checks and reverse-proxy forwarding to the
// backend services.
package gateway

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the gateway configuration, loadable from environment variables
// (GATEWAY_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"gateway listen address"`
	UsersURL  string `default:"http://localhost:8082" usage:"user service base URL" flag:"users-url"`
	OrdersURL string `default:"http://localhost:8081" usage:"order service base URL" flag:"orders-url"`
	JWTSecret string `usage:"HMAC secret for verifying tokens; must match the users service" flag:"jwt-secret"`

	UpstreamTimeout time.Duration `default:"10s" usage:"max wait for upstream response headers" flag:"upstream-timeout"`

	RateLimit RateLimitConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// RateLimitConfig controls the per-client fixed window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// RedisConfig selects the distributed rate-limit store. Leave Addr empty to
// use the in-memory limiter.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis address for the shared rate-limit window (empty = in-memory)"`
	Password string `default:"" usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "GATEWAY",
		Files:     []string{"gateway.yaml", "/etc/ordergate/gateway.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT secret is required: set GATEWAY_JWT_SECRET")
	}

	return &cfg, nil
}

func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
