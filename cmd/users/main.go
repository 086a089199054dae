package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/avetra/ordergate/internal/users"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := users.LoadConfig()
		if err != nil {
			return err
		}
		return users.Run(ctx, lg, m, cfg)
	})
}
