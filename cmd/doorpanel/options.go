package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.tigermatt.uk/doorpanel"
)

type options struct {
	configFile  string
	logLevel    string
	record      string
	metricsAddr string
	queueDepth  int
	clientName  string
}

func (o *options) bindPersistent(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&o.configFile, "config", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func (o *options) bindRun(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.record, "record", "", "Record all messages to this file")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().IntVar(&o.queueDepth, "queue-depth", doorpanel.DefaultQueueDepth, "Received messages buffered ahead of the translator")
	cmd.Flags().StringVar(&o.clientName, "client-name", doorpanel.DefaultClientName, "Client name announced to the simulator")
}

// config resolves the effective configuration: flags over the positional
// address over the file over defaults.
func (o *options) config(cmd *cobra.Command, args []string) (doorpanel.Config, error) {
	cfg := doorpanel.DefaultConfig()
	if o.configFile != "" {
		var err error
		if cfg, err = doorpanel.LoadConfig(o.configFile); err != nil {
			return doorpanel.Config{}, err
		}
	}

	if len(args) > 0 {
		cfg.Server = args[0]
	}

	flags := cmd.Flags()
	if flags.Changed("record") {
		cfg.RecordFile = o.record
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if flags.Changed("queue-depth") {
		cfg.QueueDepth = o.queueDepth
	}
	if flags.Changed("client-name") {
		cfg.ClientName = o.clientName
	}

	return cfg, cfg.Validate()
}

func (o *options) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", o.logLevel, err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, nil
}
