package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zeusync/cubenav/internal/config"
	"github.com/zeusync/cubenav/internal/core/observability/log"
	"github.com/zeusync/cubenav/internal/core/tiles"
	"github.com/zeusync/cubenav/internal/core/world"
	"github.com/zeusync/cubenav/internal/injector"
	"github.com/zeusync/cubenav/pkg/sequence"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config (defaults to $"+config.EnvConfigPath+")")
		inspect    = flag.Bool("inspect", false, "serve the websocket inspector regardless of config")
		maxTicks   = flag.Uint64("ticks", 0, "stop after this many ticks, 0 runs until interrupted")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}
	if *inspect {
		cfg.Inspect.Enabled = true
	}

	app, err := injector.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building world:", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "Error closing:", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app, *maxTicks); err != nil {
		app.Logger.Error("Server failed", log.Error(err))
	}
}

func run(ctx context.Context, app *injector.App, maxTicks uint64) error {
	logger := app.Logger.With(log.String("component", "main"))
	w := app.World

	from, to, err := buildDemo(w, app.Config.Graph.GridSize)
	if err != nil {
		return err
	}
	ticks, quiet := w.Settle(64)
	logger.Info("Demo scene settled",
		log.Int("ticks", ticks),
		log.Bool("quiet", quiet),
		log.Uint64("digest", w.Digest()))

	res := w.FindPathResult(from, to)
	logger.Info("Demo route",
		log.Stringer("status", res.Status),
		log.Int("hops", len(res.Path)),
		log.Int("expanded", res.Expanded))

	if app.Inspector != nil {
		if err := app.Inspector.Start(ctx); err != nil {
			return err
		}
		_ = app.Inspector.Refresh()
	}

	rate := app.Config.World.TickRate
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	logger.Info("Ticking", log.Int("tick_rate", rate))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down", log.Uint64("ticks", w.TickCount()))
			return nil
		case <-ticker.C:
			w.Tick()
			if maxTicks > 0 && w.TickCount() >= maxTicks {
				logger.Info("Tick limit reached", log.Uint64("ticks", w.TickCount()))
				return nil
			}
		}
	}
}

// buildDemo lays out two 3x3 cube floors one cube apart with a straight
// connector across the gap, and returns two top faces on opposite sides.
func buildDemo(w *world.World, size float64) (from, to tiles.Handle, err error) {
	var first, last tiles.GroupID
	for _, x0 := range []float64{0, 4 * size} {
		for x := 0.0; x < 3; x++ {
			for z := 0.0; z < 3; z++ {
				g := w.AddCube(mgl64.Vec3{x0 + x*size, 0, z * size}, world.CubeOptions{})
				if first == 0 {
					first = g
				}
				last = g
			}
		}
	}

	// the gap is one cube wide, so the connector sits in its middle at the
	// height of the top faces
	down := mgl64.Vec3{0, -1, 0}
	for z := 0.0; z < 3; z++ {
		pos := mgl64.Vec3{3 * size, size / 2, z * size}
		if _, err := w.AddConnector(pos, mgl64.Vec3{1, 0, 0}, down, down); err != nil {
			return from, to, err
		}
	}

	from, err = topFace(w, first)
	if err != nil {
		return from, to, err
	}
	to, err = topFace(w, last)
	return from, to, err
}

func topFace(w *world.World, g tiles.GroupID) (tiles.Handle, error) {
	h, ok := sequence.From(w.Group(g)).Find(func(h tiles.Handle) bool {
		v, ok := w.Tile(h)
		return ok && v.Position[1] > 0
	})
	if !ok {
		return h, fmt.Errorf("cube %d has no top face", g)
	}
	return h, nil
}
