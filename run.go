package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lautenbacher.net/sagealarm/api"
	"lautenbacher.net/sagealarm/config"
	"lautenbacher.net/sagealarm/controller"
	"lautenbacher.net/sagealarm/logging"
	"lautenbacher.net/sagealarm/platform"
	"lautenbacher.net/sagealarm/playback"
	"lautenbacher.net/sagealarm/scheduler"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the alarm daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, flags)
		},
	}
}

func runDaemon(ctx context.Context, flags *globalFlags) error {
	cfg, err := load(flags, false)
	if err != nil {
		return err
	}
	defer logging.Close()

	alarms, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			slog.Error("Main: closing store failed", "error", err)
		}
	}()

	plat := platform.NewPlatform(cfg)
	if err := plat.Start(); err != nil {
		return err
	}
	defer plat.Stop()

	sched := scheduler.New(nil)
	defer sched.Close()

	coordinator := playback.NewCoordinator(plat.Devices(), cfg.Timing(), nil)
	ctl := controller.New(controller.Options{
		Store:        alarms,
		Scheduler:    sched,
		Runner:       coordinator,
		IntervalUnit: cfg.Ring.IntervalUnit,
		ToneCheck: func(source string) error {
			_, err := platform.LookupTone(source)
			return err
		},
	})
	sched.OnFire(ctl.Trigger)

	n, err := ctl.Rescan(ctx)
	if err != nil {
		slog.Error("Main: boot rescan incomplete", "error", err)
	}
	slog.Info("Main: alarms scheduled", "count", n)

	watcher := config.NewWatcher(cfg)
	watcher.OnReload(applyReload(ctl, plat))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	if cfg.API.Enabled {
		g.Go(func() error {
			return api.Serve(gctx, ctl, api.Options{
				Listen:     cfg.API.Listen,
				RateLimit:  cfg.API.RateLimit,
				ConfigFile: cfg.Configfile,
				Tones:      platform.ToneNames(),
			})
		})
	}

	err = g.Wait()
	slog.Info("Main: shutting down")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// applyReload pushes every runtime setting of a reloaded config to the
// running engine: ring timing, interval unit and device settings.
func applyReload(ctl *controller.Controller, plat platform.Platform) func(*config.Config) {
	return func(c *config.Config) {
		ctl.ApplyTiming(c.Timing())
		ctl.SetIntervalUnit(c.Ring.IntervalUnit)
		plat.Apply(c)
	}
}
