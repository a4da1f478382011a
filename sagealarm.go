package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lautenbacher.net/sagealarm/alarm"
	"lautenbacher.net/sagealarm/config"
	"lautenbacher.net/sagealarm/logging"
	"lautenbacher.net/sagealarm/store"
)

type globalFlags struct {
	configFile string
	realHW     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:          "sagealarm",
		Short:        "Alarm clock daemon with tone, vibration, speech and a tap puzzle",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", config.CONFILE, "configuration file")
	root.PersistentFlags().BoolVar(&flags.realHW, "realhw", false, "Set to true if program runs on the real hardware")

	root.AddCommand(
		newRunCmd(flags),
		newRingCmd(flags),
		newAlarmsCmd(flags),
		newNextCmd(flags),
	)
	return root
}

// load reads the config file and installs the logger.
func load(flags *globalFlags, buffer bool) (*config.Config, error) {
	cfg, err := config.ReadConfig(flags.configFile, flags.realHW)
	if err != nil {
		return nil, err
	}
	err = logging.Init(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Buffer: buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}

// openStore opens the SQLite database, or an in-memory store when no
// database path is configured.
func openStore(cfg *config.Config) (alarm.Store, func() error, error) {
	if cfg.Database.Path == "" {
		return store.NewMemory(), func() error { return nil }, nil
	}
	db, err := store.Open(store.Config{Path: cfg.Database.Path, BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}
