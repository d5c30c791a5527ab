package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go.tigermatt.uk/doorpanel"
	"go.tigermatt.uk/doorpanel/zusi"
)

var opts options

// dial opens the simulator connection.
var dial = zusi.Dial

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "doorpanel [ADDR]",
		Short:        "Emulate the GT8-100D/2S-M door panel against Zusi",
		Args:         cobra.MaximumNArgs(1),
		RunE:         run,
		SilenceUsage: true,
	}
	opts.bindPersistent(cmd)
	opts.bindRun(cmd)

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := opts.logger()
	if err != nil {
		return err
	}

	cfg, err := opts.config(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := uuid.NewString()
	logger = logger.With("session", session)

	conn, err := dial(ctx, cfg.Server)
	if err != nil {
		return err
	}
	defer conn.Close()

	hctx, cancel := context.WithTimeout(ctx, zusi.HandshakeTimeout)
	defer cancel()

	info, err := conn.Hello(hctx, zusi.HelloRequest{ClientName: cfg.ClientName, ClientVersion: cfg.ClientVersion})
	if err != nil {
		return fmt.Errorf("handshake with %s: %w", cfg.Server, err)
	}
	if err := conn.NeededData(hctx, doorpanel.NeededData()); err != nil {
		return fmt.Errorf("subscribing at %s: %w", cfg.Server, err)
	}
	logger.Info("connected", "addr", cfg.Server, "zusi", info.Version)

	metrics := doorpanel.NewMetrics()
	translator := &doorpanel.Translator{Panel: cfg.Panel, Metrics: metrics, Logger: logger}
	receiver := &doorpanel.Receiver{Source: conn.Reader(), Metrics: metrics, Logger: logger}

	if cfg.RecordFile != "" {
		f, err := os.Create(cfg.RecordFile)
		if err != nil {
			return fmt.Errorf("creating record file: %w", err)
		}
		defer f.Close()

		rec := &doorpanel.Recorder{Dest: f, Session: session}
		receiver.OnReceive = func(n *zusi.Node) {
			if err := rec.Record(doorpanel.Inbound, n); err != nil {
				logger.Warn("recording failed", "error", err)
			}
		}
		translator.Trace = func(n *zusi.Node) {
			if err := rec.Record(doorpanel.Outbound, n); err != nil {
				logger.Warn("recording failed", "error", err)
			}
		}
		logger.Info("recording", "file", cfg.RecordFile)
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsRouter(metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		defer srv.Close()
	}

	err = pump(ctx, conn, receiver, translator, cfg.QueueDepth)
	if ctx.Err() != nil {
		logger.Info("interrupted, shutting down")
		return nil
	}

	return err
}

// pump runs the receiver and the translator until the simulator's input
// ends and the translator has drained it. The connection is closed early
// only when the translator fails or ctx is cancelled; a failed receiver
// leaves the write side open for the drain.
func pump(ctx context.Context, conn *zusi.Conn, r *doorpanel.Receiver, t *doorpanel.Translator, depth int) error {
	msgs := make(chan *zusi.Node, depth)
	rctx, stopReceiver := context.WithCancelCause(ctx)
	defer stopReceiver(nil)

	var g errgroup.Group
	g.Go(func() error {
		err := r.Consume(rctx, msgs)
		if errors.Is(err, doorpanel.ErrConsumerGone) {
			// the translator or ctx already decided the outcome
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := t.Run(ctx, msgs, conn.Writer())
		if err != nil {
			stopReceiver(err)
			conn.Close()
		}
		return err
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	return g.Wait()
}

func metricsRouter(m *doorpanel.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return r
}
