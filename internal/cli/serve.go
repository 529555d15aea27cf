package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/lutwrap/internal/engine"
	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/metrics"
	"github.com/roach88/lutwrap/internal/server"
	"github.com/roach88/lutwrap/internal/store"
)

const (
	shutdownTimeout = 5 * time.Second
	tailInterval    = time.Second
)

// ledgerClock reads the persisted slot on every call so the server follows
// warps made by other processes. It keeps the last good value on error.
type ledgerClock struct {
	store  *store.Store
	last   atomic.Uint64
	logger glog.Logger
}

func (c *ledgerClock) Now() ir.Slot {
	slot, err := c.store.Slot(context.Background())
	if err != nil {
		c.logger.Warn("read ledger slot failed", "error", err)
		return ir.Slot(c.last.Load())
	}
	c.last.Store(uint64(slot))
	return slot
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		Long: `Serve records, tables, the event log and Prometheus metrics over HTTP.

The listen address defaults to server.addr from the configuration.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *RootOptions, addr string) error {
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if addr == "" {
		addr = s.cfg.Server.Addr
	}

	// The server logs regardless of --verbose.
	_, logger := glog.Resolve("lutwrap", nil, nil)
	logger = glog.Ensure(logger)

	clock := &ledgerClock{store: s.store, logger: logger}
	clock.last.Store(uint64(s.clock.Now()))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lutwrap_ledger_slot",
			Help: "Current persisted ledger slot",
		}, func() float64 { return float64(clock.Now()) }),
	)
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}
	tail := &eventTail{store: s.store, recorder: recorder, logger: logger}
	if err := tail.poll(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to read event log", err)
	}
	go tail.run(ctx, tailInterval)

	handler := server.NewHandler(s.store, clock,
		server.WithLogger(logger),
		server.WithCooldowns(s.engine.Policy().CooldownSlots, s.native.Config().DeactivationCooldown),
		server.WithGatherer(reg),
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "db", s.cfg.Database)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return WrapExitError(ExitFailure, "server error", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "server shutdown failed", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

// eventTail feeds committed events into the recorder, so /metrics reflects
// operations applied by any process sharing the database.
type eventTail struct {
	store    *store.Store
	recorder engine.Recorder
	logger   glog.Logger
	after    int64
}

// poll observes every event past the cursor.
func (t *eventTail) poll(ctx context.Context) error {
	for {
		events, err := t.store.Events(ctx, store.EventFilter{After: t.after})
		if err != nil {
			return err
		}
		for _, ev := range events {
			observeEvent(t.recorder, ev)
			t.after = ev.Seq
		}
		if len(events) < store.DefaultEventLimit {
			return nil
		}
	}
}

func (t *eventTail) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.poll(ctx); err != nil && ctx.Err() == nil {
				t.logger.Warn("event tail failed", "after", t.after, "error", err)
			}
		}
	}
}

func observeEvent(r engine.Recorder, ev ir.Event) {
	switch ev.Kind {
	case ir.EventCreated:
		r.ObserveOperation(engine.OpCreate, engine.OutcomeOK)
	case ir.EventExtended:
		r.ObserveOperation(engine.OpExtend, engine.OutcomeOK)
		r.ObserveExtend(ev.Record, int(ev.EntriesAdded), uint64(ev.TotalEntries))
	case ir.EventDeactivated:
		r.ObserveOperation(engine.OpDeactivate, engine.OutcomeOK)
	case ir.EventClosed:
		r.ObserveOperation(engine.OpClose, engine.OutcomeOK)
		r.ForgetRecord(ev.Record)
	}
}
