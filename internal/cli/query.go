package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/engine"
	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/store"
)

// RecordDetail is a record with its readiness and, when the table account
// exists, the decoded table.
type RecordDetail struct {
	Record         ir.Record              `json:"record"`
	Entries        []ir.Address           `json:"entries,omitempty"`
	ReadyAt        ir.Slot                `json:"ready_at"`
	Ready          bool                   `json:"ready"`
	SlotsRemaining uint64                 `json:"slots_remaining"`
	Table          *directory.Table       `json:"table,omitempty"`
	TableStatus    *directory.TableStatus `json:"table_status,omitempty"`
}

func (d RecordDetail) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Record:     %s\n", d.Record.Address)
	fmt.Fprintf(&b, "Owner:      %s (id %d)\n", d.Record.Owner, d.Record.ID)
	fmt.Fprintf(&b, "Table:      %s\n", d.Record.DirectoryAddress)
	fmt.Fprintf(&b, "Entries:    %d/%d\n", d.Record.EntryCount, ir.MaxEntries)
	fmt.Fprintf(&b, "Created:    slot %d\n", d.Record.CreatedAt)
	fmt.Fprintf(&b, "Mutated:    slot %d\n", d.Record.LastMutatedAt)
	if d.Ready {
		fmt.Fprintf(&b, "Ready:      yes (since slot %d)", d.ReadyAt)
	} else {
		fmt.Fprintf(&b, "Ready:      no (slot %d, %d remaining)", d.ReadyAt, d.SlotsRemaining)
	}
	if d.TableStatus != nil {
		fmt.Fprintf(&b, "\nStatus:     %s", d.TableStatus.State)
		if d.TableStatus.RemainingSlots > 0 {
			fmt.Fprintf(&b, " (%d slots until closable)", d.TableStatus.RemainingSlots)
		}
	}
	if d.Table != nil {
		for i, a := range d.Table.Addresses {
			fmt.Fprintf(&b, "\n  [%3d] %s", i, a)
		}
	}
	return b.String()
}

// RecordList is the records of one owner.
type RecordList struct {
	Owner   ir.Address  `json:"owner"`
	Records []ir.Record `json:"records"`
	Count   int         `json:"count"`
}

func (l RecordList) String() string {
	if l.Count == 0 {
		return fmt.Sprintf("No records for %s", l.Owner)
	}
	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.Header("ID", "Record", "Table", "Entries", "Last Mutated")
	for _, rec := range l.Records {
		table.Append(
			fmt.Sprint(rec.ID),
			rec.Address.String(),
			rec.DirectoryAddress.String(),
			fmt.Sprint(rec.EntryCount),
			fmt.Sprint(rec.LastMutatedAt),
		)
	}
	table.Render()
	return strings.TrimRight(b.String(), "\n")
}

// EventList is a page of the event log.
type EventList struct {
	Events   []ir.Event `json:"events"`
	Count    int        `json:"count"`
	Verified *int       `json:"verified,omitempty"`
}

func (l EventList) String() string {
	var b strings.Builder
	if l.Count == 0 {
		b.WriteString("No events")
	} else {
		table := tablewriter.NewWriter(&b)
		table.Header("Seq", "Slot", "Kind", "Record", "Request")
		for _, ev := range l.Events {
			table.Append(
				fmt.Sprint(ev.Seq),
				fmt.Sprint(ev.Slot),
				string(ev.Kind),
				ev.Record.String(),
				ev.RequestID,
			)
		}
		table.Render()
	}
	out := strings.TrimRight(b.String(), "\n")
	if l.Verified != nil {
		out += fmt.Sprintf("\n✓ Verified %d event ids", *l.Verified)
	}
	return out
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "show <record>",
		Short:         "Show a record, its readiness and its table",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			addr, err := parseAddress("record", args[0])
			if err != nil {
				return err
			}

			s, err := openSession(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.store.GetRecord(ctx, addr)
			if errors.Is(err, store.ErrNotFound) {
				s.out.Error(engine.CodeRecordNotFound, fmt.Sprintf("record %s not found", addr), nil)
				return NewExitError(ExitFailure, "record not found").reported()
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read record", err)
			}

			cooldown := s.engine.Policy().CooldownSlots
			now := s.clock.Now()
			detail := RecordDetail{
				Record:         rec,
				Entries:        rec.KnownEntries(),
				ReadyAt:        rec.ReadyAt(cooldown),
				Ready:          rec.IsReady(now, cooldown),
				SlotsRemaining: rec.SlotsUntilReady(now, cooldown),
			}

			data, found, err := s.store.LoadTable(ctx, rec.DirectoryAddress)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read table", err)
			}
			if found {
				tbl, err := directory.DecodeTable(data)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to decode table", err)
				}
				status := tbl.Status(now, s.native.Config().DeactivationCooldown)
				detail.Table = &tbl
				detail.TableStatus = &status
			}
			return s.out.Success(detail)
		},
	}
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list <owner>",
		Short:         "List the records of an owner",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			owner, err := parseAddress("owner", args[0])
			if err != nil {
				return err
			}

			s, err := openSession(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.store.ListRecords(ctx, owner)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list records", err)
			}
			return s.out.Success(RecordList{Owner: owner, Records: recs, Count: len(recs)})
		},
	}
	return cmd
}

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Record string
	After  int64
	Limit  int
	Verify bool
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read the event log",
		Long: `Print events in sequence order.

With --verify, every stored event id is recomputed from its payload
before the page is printed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			if opts.After < 0 {
				return NewExitError(ExitCommandError, "--after must be non-negative")
			}
			if opts.Limit < 0 {
				return NewExitError(ExitCommandError, "--limit must be non-negative")
			}
			filter := store.EventFilter{After: opts.After, Limit: opts.Limit}
			if opts.Record != "" {
				addr, err := parseAddress("record", opts.Record)
				if err != nil {
					return err
				}
				filter.Record = &addr
			}

			s, err := openSession(ctx, opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var list EventList
			if opts.Verify {
				n, err := s.store.VerifyEvents(ctx)
				if err != nil {
					s.out.Error("EVENT_ID_MISMATCH", err.Error(), nil)
					return WrapExitError(ExitFailure, "event log verification failed", err).reported()
				}
				list.Verified = &n
			}

			events, err := s.store.Events(ctx, filter)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read events", err)
			}
			list.Events = events
			list.Count = len(events)
			return s.out.Success(list)
		},
	}

	cmd.Flags().StringVar(&opts.Record, "record", "", "only events of this record")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only events with a sequence number above this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, fmt.Sprintf("maximum number of events (default %d)", store.DefaultEventLimit))
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "recompute and check every event id")

	return cmd
}
