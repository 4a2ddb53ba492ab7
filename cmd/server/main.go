package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/plotbox/artifact"
	"github.com/isdmx/plotbox/config"
	"github.com/isdmx/plotbox/filter"
	"github.com/isdmx/plotbox/httpapi"
	"github.com/isdmx/plotbox/logger"
	"github.com/isdmx/plotbox/mcpserver"
	"github.com/isdmx/plotbox/sandbox"
	"github.com/isdmx/plotbox/storage"
	"github.com/isdmx/plotbox/storage/sqlite"
	"github.com/isdmx/plotbox/visualize"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.New,
			logger.NewFromConfig,

			// Pipeline
			filter.NewFromConfig,
			sandbox.NewExecutor,
			artifact.NewStoreFromConfig,
			artifact.NewResolverFromConfig,
			fx.Annotate(sqlite.OpenFromConfig, fx.As(new(storage.Store))),
			visualize.NewFromConfig,

			// Surfaces
			func(s *visualize.Service) httpapi.Generator { return s },
			func(s *visualize.Service) mcpserver.Generator { return s },
			httpapi.New,
			mcpserver.New,
		),

		fx.Invoke(register),

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}

// register hooks the servers and the ledger into the application lifecycle.
func register(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, log *zap.Logger,
	store *artifact.Store, ledger storage.Store, api *httpapi.Server, mcp *mcpserver.MCPServer) {
	serve := func(name string, fn func() error) {
		go func() {
			if err := fn(); err != nil {
				log.Error("server stopped", zap.String("server", name), zap.Error(err))
				_ = shutdowner.Shutdown(fx.ExitCode(1))
			}
		}()
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if n, err := store.SweepRuns(); err != nil {
				log.Warn("failed to sweep stale run directories", zap.Error(err))
			} else if n > 0 {
				log.Info("removed stale run directories", zap.Int("count", n))
			}

			serve("http", api.Start)
			switch cfg.Server.Transport {
			case "stdio":
				serve("mcp-stdio", mcp.ServeStdio)
			case "http":
				serve("mcp-http", mcp.ServeHTTP)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := api.Shutdown(ctx)
			if cerr := ledger.Close(); cerr != nil {
				log.Warn("failed to close run ledger", zap.Error(cerr))
			}
			_ = log.Sync()
			return err
		},
	})
}
