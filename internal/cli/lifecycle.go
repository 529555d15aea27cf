package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lutwrap/internal/engine"
	"github.com/roach88/lutwrap/internal/ir"
)

// OperationView is the text and JSON rendering of a lifecycle result.
type OperationView struct {
	Operation string    `json:"operation"`
	Record    ir.Record `json:"record"`
	Slot      ir.Slot   `json:"slot,omitempty"`
	Added     int       `json:"added,omitempty"`
	Total     uint64    `json:"total,omitempty"`
	ReadyAt   ir.Slot   `json:"ready_at,omitempty"`
	NoOp      bool      `json:"noop,omitempty"`
	Reclaimed uint64    `json:"reclaimed_lamports,omitempty"`
	EventSeq  int64     `json:"event_seq,omitempty"`
}

func newOperationView(op engine.Operation, res engine.Result) OperationView {
	v := OperationView{
		Operation: string(op),
		Record:    res.Record,
		Added:     res.Added,
		Total:     res.Total,
		ReadyAt:   res.ReadyAt,
		NoOp:      res.NoOp,
		Reclaimed: res.Reclaimed,
	}
	if res.Event != nil {
		v.Slot = res.Event.Slot
		v.EventSeq = res.Event.Seq
	}
	return v
}

func (v OperationView) String() string {
	var b strings.Builder
	switch engine.Operation(v.Operation) {
	case engine.OpCreate:
		fmt.Fprintf(&b, "✓ Created record %s\n", v.Record.Address)
		fmt.Fprintf(&b, "  Table:      %s\n", v.Record.DirectoryAddress)
		fmt.Fprintf(&b, "  Owner:      %s (id %d)\n", v.Record.Owner, v.Record.ID)
		fmt.Fprintf(&b, "  Ready at:   slot %d", v.ReadyAt)
	case engine.OpExtend:
		if v.NoOp {
			fmt.Fprintf(&b, "✓ No new entries for record %s (total %d)", v.Record.Address, v.Total)
			break
		}
		fmt.Fprintf(&b, "✓ Extended record %s\n", v.Record.Address)
		fmt.Fprintf(&b, "  Added:      %d\n", v.Added)
		fmt.Fprintf(&b, "  Total:      %d/%d\n", v.Total, ir.MaxEntries)
		fmt.Fprintf(&b, "  Ready at:   slot %d", v.ReadyAt)
	case engine.OpDeactivate:
		fmt.Fprintf(&b, "✓ Deactivated table %s at slot %d", v.Record.DirectoryAddress, v.Slot)
	case engine.OpClose:
		fmt.Fprintf(&b, "✓ Closed record %s\n", v.Record.Address)
		fmt.Fprintf(&b, "  Reclaimed:  %d lamports", v.Reclaimed)
	}
	return b.String()
}

// LifecycleOptions holds the flags shared by lifecycle commands.
type LifecycleOptions struct {
	*RootOptions
	Caller string
	Table  string
}

func (o *LifecycleOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Caller, "caller", "", "authenticated caller address (required)")
	cmd.Flags().StringVar(&o.Table, "table", "", "table address (default: the record's table)")
	_ = cmd.MarkFlagRequired("caller")
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	LifecycleOptions
	ID         uint64
	RecentSlot int64 // Negative means now-1
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{LifecycleOptions: LifecycleOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a record and its directory table",
		Long: `Derive the record for (caller, id) and create its directory table.

The table address is derived from the record and the recent slot; if
--table is given it must match the derived address.

Example:
  lutwrap create --caller <owner> --id 0
  lutwrap create --caller <owner> --id 1 --recent-slot 99`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			caller, err := parseAddress("caller", opts.Caller)
			if err != nil {
				return err
			}

			s, err := openSession(ctx, opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			req := engine.CreateRequest{Caller: caller, ID: opts.ID, RecentSlot: ir.Slot(s.clock.Now().SubSat(1))}
			if opts.RecentSlot >= 0 {
				req.RecentSlot = ir.Slot(opts.RecentSlot)
			}
			if opts.Table != "" {
				table, err := parseAddress("table", opts.Table)
				if err != nil {
					return err
				}
				req.Table = &table
			}
			return s.apply(ctx, req, func(res engine.Result) interface{} {
				return newOperationView(engine.OpCreate, res)
			})
		},
	}

	opts.bind(cmd)
	cmd.Flags().Uint64Var(&opts.ID, "id", 0, "record id")
	cmd.Flags().Int64Var(&opts.RecentSlot, "recent-slot", -1, "recent slot the table address is derived from (default: current slot - 1)")

	return cmd
}

// NewExtendCommand creates the extend command.
func NewExtendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LifecycleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "extend <record> <entry>...",
		Short: "Add entries to a record's table",
		Long: `Add the new entries among <entry>... to the record's table.

Entries already in the table and repeats within the batch are dropped.
The record must be out of its cooldown window.

Example:
  lutwrap extend <record> <addr1> <addr2> --caller <owner>`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			caller, err := parseAddress("caller", opts.Caller)
			if err != nil {
				return err
			}
			record, err := parseAddress("record", args[0])
			if err != nil {
				return err
			}
			entries, err := ir.ParseAddresses(args[1:])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid entry", err)
			}

			s, err := openSession(ctx, opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			table, err := s.recordTable(ctx, record, opts.Table)
			if err != nil {
				return err
			}
			req := engine.ExtendRequest{Caller: caller, Record: record, Table: table, Entries: entries}
			return s.apply(ctx, req, func(res engine.Result) interface{} {
				return newOperationView(engine.OpExtend, res)
			})
		},
	}

	opts.bind(cmd)
	return cmd
}

// NewDeactivateCommand creates the deactivate command.
func NewDeactivateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LifecycleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deactivate <record>",
		Short: "Start deactivation of a record's table",
		Long: `Start deactivation of the record's table. The directory program
enforces its own cooldown before the table can be closed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordOperation(cmd, opts, args[0], engine.OpDeactivate)
		},
	}

	opts.bind(cmd)
	return cmd
}

// NewCloseCommand creates the close command.
func NewCloseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LifecycleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "close <record>",
		Short: "Close a deactivated table and its record",
		Long: `Close the record's table once it is fully deactivated and destroy
the record. Rent is returned to the caller.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordOperation(cmd, opts, args[0], engine.OpClose)
		},
	}

	opts.bind(cmd)
	return cmd
}

// runRecordOperation runs deactivate or close, which take only the record.
func runRecordOperation(cmd *cobra.Command, opts *LifecycleOptions, recordArg string, op engine.Operation) error {
	ctx := commandContext(cmd)
	caller, err := parseAddress("caller", opts.Caller)
	if err != nil {
		return err
	}
	record, err := parseAddress("record", recordArg)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	table, err := s.recordTable(ctx, record, opts.Table)
	if err != nil {
		return err
	}

	var req engine.Request = engine.DeactivateRequest{Caller: caller, Record: record, Table: table}
	if op == engine.OpClose {
		req = engine.CloseRequest{Caller: caller, Record: record, Table: table}
	}
	return s.apply(ctx, req, func(res engine.Result) interface{} {
		return newOperationView(op, res)
	})
}
