package cli

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"

	"github.com/roach88/lutwrap/internal/config"
	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/engine"
	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/store"
)

// session bundles what a command needs: configuration, the store, the
// persisted slot clock and an engine wired to the reference program.
type session struct {
	cfg    config.Config
	store  *store.Store
	clock  *engine.Clock
	native *directory.Native
	engine *engine.Engine
	logger glog.Logger
	out    *OutputFormatter
}

// loadConfig reads configuration and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// newLogger returns the lutwrap logger in verbose mode and a no-op logger
// otherwise, keeping command output clean.
func newLogger(opts *RootOptions) glog.Logger {
	if !opts.Verbose {
		return glog.Nop()
	}
	_, logger := glog.Resolve("lutwrap", nil, nil)
	return glog.Ensure(logger)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openSession loads configuration and opens the store. The clock resumes
// from the slot persisted by the last warp.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	wrapperID, directoryID, err := cfg.Programs()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid program id", err)
	}

	logger := newLogger(opts)
	out := newFormatter(opts, cmd)

	out.VerboseLog("opening database %s", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	slot, err := st.Slot(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read ledger slot", err)
	}
	clock := engine.NewClockAt(slot)

	native := directory.NewNative(clock, cfg.NativeConfig())
	eng := engine.New(st, native, clock,
		engine.WithPolicy(cfg.EnginePolicy()),
		engine.WithProgramID(wrapperID),
		engine.WithDirectoryProgramID(directoryID),
		engine.WithLogger(logger),
	)

	return &session{
		cfg:    cfg,
		store:  st,
		clock:  clock,
		native: native,
		engine: eng,
		logger: logger,
		out:    out,
	}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// apply runs req and writes its outcome.
func (s *session) apply(ctx context.Context, req engine.Request, view func(engine.Result) interface{}) error {
	res, err := s.engine.Apply(ctx, req)
	if err != nil {
		return s.out.OperationError(err)
	}
	return s.out.OperationSuccess(res.RequestID, view(res))
}

// recordTable returns the table the caller supplied, or the record's own
// table when the flag was left empty.
func (s *session) recordTable(ctx context.Context, record ir.Address, flag string) (ir.Address, error) {
	if flag != "" {
		return parseAddress("table", flag)
	}
	rec, err := s.store.GetRecord(ctx, record)
	if err != nil {
		// The engine reports a missing record with its own code.
		return ir.Address{}, nil
	}
	return rec.DirectoryAddress, nil
}

func parseAddress(name, value string) (ir.Address, error) {
	a, err := ir.ParseAddress(value)
	if err != nil {
		return ir.Address{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s", name), err)
	}
	return a, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
