package injector

import (
	"errors"
	"fmt"

	"github.com/google/wire"
	"github.com/zeusync/cubenav/internal/config"
	"github.com/zeusync/cubenav/internal/core/events/bus"
	"github.com/zeusync/cubenav/internal/core/observability/log"
	"github.com/zeusync/cubenav/internal/core/world"
	"github.com/zeusync/cubenav/internal/server"
)

// ProviderSet wires a World with its bus, logger and inspector.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	bus.New,
	world.New,
	ProvideInspector,
	wire.Struct(new(App), "*"),
)

// App is everything the server process runs.
type App struct {
	Config *config.Config
	Logger *log.Logger
	Bus    bus.EventBus
	World  *world.World
	// Inspector is nil unless inspect.enabled is set.
	Inspector *server.Inspector
}

func ProvideLogger(cfg *config.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	return log.New(level), nil
}

func ProvideInspector(cfg *config.Config, w *world.World, b bus.EventBus, logger log.Log) (*server.Inspector, error) {
	if !cfg.Inspect.Enabled {
		return nil, nil
	}
	return server.NewInspector(cfg.Inspect, w, b, logger)
}

// Close stops the inspector, detaches the world and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.Inspector != nil {
		errs = append(errs, a.Inspector.Close())
	}
	errs = append(errs, a.World.Close())
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
