// Package orders wires the order backend service: configuration, HTTP
// handlers and the server lifecycle.
package orders

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/avetra/ordergate/internal/domain/order"
)

// Config holds the order service configuration, loadable from environment
// variables (ORDERS_ prefix), flags, or YAML config files.
type Config struct {
	Addr             string `default:"0.0.0.0:8081" usage:"order service listen address"`
	DatabaseURL      string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	TransitionPolicy string `default:"admin" usage:"who may change order status: owner, admin or either" flag:"transition-policy"`
	CancelPolicy     string `default:"owner" usage:"who may cancel an order: owner, admin or either" flag:"cancel-policy"`
	Graceful         GracefulConfig
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
		EnvPrefix: "ORDERS",
		Files:     []string{"orders.yaml", "/etc/ordergate/orders.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
	}
	for _, policy := range []string{cfg.TransitionPolicy, cfg.CancelPolicy} {
		switch order.Policy(policy) {
		case order.PolicyOwner, order.PolicyAdmin, order.PolicyEither:
		default:
			return nil, errors.Errorf("unknown policy %q: want owner, admin or either", policy)
		}
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8081" {
		c.Addr = "0.0.0.0:" + port
	}
}
