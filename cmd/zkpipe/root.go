package main

import (
	"fmt"

	"github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eon-protocol/zkpipe/config"
	"github.com/eon-protocol/zkpipe/internal/metrics"
	"github.com/eon-protocol/zkpipe/store"
)

type app struct {
	cfgPath     string
	dataDir     string
	logLevel    string
	metricsAddr string

	cfg   *config.Config
	store store.Store
	log   zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "zkpipe",
		Short:         "PLONK proof pipeline over BLS12-381 with native and on-chain verification",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.store != nil {
				return a.store.Close()
			}
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.cfgPath, "config", "c", "", "YAML config file")
	flags.StringVar(&a.dataDir, "data-dir", "", "data directory (overrides data_dir)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (overrides log.level)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	cmd.AddCommand(
		a.compileCmd(),
		a.setupCmd(),
		a.proveCmd(),
		a.verifyCmd(),
		a.infoCmd(),
		a.srsCmd(),
	)
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger.Set(zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: "15:04:05"}).
		With().Timestamp().Logger().Level(cfg.Level()))
	a.log = logger.Logger().With().Str("cmd", cmd.Name()).Logger()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(cmd.Context(), cfg.Metrics.Addr); err != nil {
				a.log.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}
	if a.store, err = cfg.OpenStore(); err != nil {
		return err
	}
	return nil
}

func (a *app) out(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
}
