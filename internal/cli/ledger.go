package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/pda"
)

// SlotView reports the persisted ledger slot.
type SlotView struct {
	Slot     ir.Slot `json:"slot"`
	Previous ir.Slot `json:"previous,omitempty"`
}

func (v SlotView) String() string {
	if v.Previous != 0 && v.Previous != v.Slot {
		return fmt.Sprintf("Slot %d (was %d)", v.Slot, v.Previous)
	}
	return fmt.Sprintf("Slot %d", v.Slot)
}

// NewSlotCommand creates the slot command.
func NewSlotCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "slot",
		Short:         "Print the current ledger slot",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(commandContext(cmd), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.out.Success(SlotView{Slot: s.clock.Now()})
		},
	}
}

// NewWarpCommand creates the warp command.
func NewWarpCommand(rootOpts *RootOptions) *cobra.Command {
	var by uint64

	cmd := &cobra.Command{
		Use:   "warp [slot]",
		Short: "Move the ledger clock forward",
		Long: `Move the persisted ledger slot to <slot>, or forward by --by slots.
The clock never moves backwards.

Example:
  lutwrap warp 200
  lutwrap warp --by 15`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (by > 0) {
				return NewExitError(ExitCommandError, "specify either a target slot or --by")
			}
			var target uint64
			if len(args) == 1 {
				v, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid slot", err)
				}
				target = v
			}

			ctx := commandContext(cmd)
			s, err := openSession(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			prev := s.clock.Now()
			if by > 0 {
				s.clock.Advance(by)
			} else if err := s.clock.WarpTo(ir.Slot(target)); err != nil {
				return WrapExitError(ExitCommandError, "warp failed", err)
			}
			now := s.clock.Now()
			if err := s.store.SetSlot(ctx, now); err != nil {
				return WrapExitError(ExitCommandError, "failed to persist slot", err)
			}
			s.logger.Info("ledger warped", "from", uint64(prev), "to", uint64(now))
			return s.out.Success(SlotView{Slot: now, Previous: prev})
		},
	}

	cmd.Flags().Uint64Var(&by, "by", 0, "advance by this many slots")
	return cmd
}

// DeriveView holds the derived addresses of a record and its table.
type DeriveView struct {
	Owner      ir.Address  `json:"owner"`
	ID         uint64      `json:"id"`
	Record     ir.Address  `json:"record"`
	Bump       uint8       `json:"bump"`
	RecentSlot *ir.Slot    `json:"recent_slot,omitempty"`
	Table      *ir.Address `json:"table,omitempty"`
}

func (v DeriveView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Record:     %s (bump %d)", v.Record, v.Bump)
	if v.Table != nil {
		fmt.Fprintf(&b, "\nTable:      %s (recent slot %d)", *v.Table, *v.RecentSlot)
	}
	return b.String()
}

// NewDeriveCommand creates the derive command. It needs no database.
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		owner      string
		id         uint64
		recentSlot int64
	)

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive record and table addresses",
		Long: `Derive the record address for (owner, id) and, with --recent-slot,
the directory table address the record would create.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerAddr, err := parseAddress("owner", owner)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			wrapperID, directoryID, err := cfg.Programs()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid program id", err)
			}

			auth, err := pda.RecordAuthority(wrapperID, ownerAddr, id)
			if err != nil {
				return WrapExitError(ExitFailure, "derivation failed", err)
			}
			view := DeriveView{Owner: ownerAddr, ID: id, Record: auth.Address, Bump: auth.Bump}
			if recentSlot >= 0 {
				slot := ir.Slot(recentSlot)
				table, _, err := pda.TableAddress(directoryID, auth.Address, slot)
				if err != nil {
					return WrapExitError(ExitFailure, "derivation failed", err)
				}
				view.RecentSlot = &slot
				view.Table = &table
			}
			return newFormatter(rootOpts, cmd).Success(view)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner address (required)")
	cmd.Flags().Uint64Var(&id, "id", 0, "record id")
	cmd.Flags().Int64Var(&recentSlot, "recent-slot", -1, "recent slot for the table derivation")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
