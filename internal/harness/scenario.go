package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lutwrap/internal/engine"
)

// DefaultStartSlot is the clock's starting slot when a scenario sets none.
const DefaultStartSlot = 100

// Scenario defines a lifecycle test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// StartSlot is the slot the clock starts at. Zero means DefaultStartSlot.
	StartSlot uint64 `yaml:"start_slot,omitempty"`

	// Policy overrides engine.DefaultPolicy field by field.
	Policy *PolicySpec `yaml:"policy,omitempty"`

	// Directory overrides the reference directory program's tunables.
	Directory *DirectorySpec `yaml:"directory,omitempty"`

	// Steps run in order. Every step's outcome is checked.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state after all steps ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// PolicySpec holds optional policy overrides.
type PolicySpec struct {
	CooldownSlots *uint64 `yaml:"cooldown_slots,omitempty"`
	DedupSource   string  `yaml:"dedup_source,omitempty"`
	EmptyBatch    string  `yaml:"empty_batch,omitempty"`
	MaxEntries    int     `yaml:"max_entries,omitempty"`
}

// DirectorySpec holds optional directory program overrides.
type DirectorySpec struct {
	RecentSlotWindow     uint64 `yaml:"recent_slot_window,omitempty"`
	DeactivationCooldown uint64 `yaml:"deactivation_cooldown,omitempty"`
}

// Step is one operation of a scenario.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// At warps the clock to this slot before the step runs. Required for
	// warp steps.
	At *uint64 `yaml:"at,omitempty"`

	// Caller names the authenticated caller.
	Caller string `yaml:"caller,omitempty"`

	// ID and RecentSlot are create inputs. RecentSlot defaults to now-1.
	ID         uint64  `yaml:"id,omitempty"`
	RecentSlot *uint64 `yaml:"recent_slot,omitempty"`

	// Record names the target record for extend, deactivate and close.
	Record string `yaml:"record,omitempty"`

	// Table names the supplied table. Defaults to the record's table; on
	// create it is only sent when set.
	Table string `yaml:"table,omitempty"`

	// Entries names the extend batch.
	Entries []string `yaml:"entries,omitempty"`

	// Expect specifies the expected outcome. Nil expects success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the outcome of a step.
type Expect struct {
	// Error is the expected error text code. Empty expects success.
	Error string `yaml:"error,omitempty"`

	// DirectoryCode is the expected directory program code of a
	// DELEGATED_CALL_FAILED error.
	DirectoryCode string `yaml:"directory_code,omitempty"`

	// Result fields, checked only when set.
	Added     *int    `yaml:"added,omitempty"`
	Total     *uint64 `yaml:"total,omitempty"`
	ReadyAt   *uint64 `yaml:"ready_at,omitempty"`
	NoOp      *bool   `yaml:"noop,omitempty"`
	Reclaimed *uint64 `yaml:"reclaimed,omitempty"`
}

// Step operations.
const (
	OpWarp       = "warp"
	OpCreate     = "create"
	OpExtend     = "extend"
	OpDeactivate = "deactivate"
	OpClose      = "close"
)

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "record": the record exists, optionally with entry_count and
	//   last_mutated_at
	// - "record_absent": the record does not exist
	// - "table": the table exists with state and, optionally, entries
	// - "table_absent": the table account does not exist
	// - "event_kinds": the event log holds exactly these kinds in order
	Type string `yaml:"type"`

	Record        string   `yaml:"record,omitempty"`
	Table         string   `yaml:"table,omitempty"`
	EntryCount    *uint64  `yaml:"entry_count,omitempty"`
	LastMutatedAt *uint64  `yaml:"last_mutated_at,omitempty"`
	State         string   `yaml:"state,omitempty"`
	Entries       []string `yaml:"entries,omitempty"`
	Kinds         []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertRecord       = "record"
	AssertRecordAbsent = "record_absent"
	AssertTable        = "table"
	AssertTableAbsent  = "table_absent"
	AssertEventKinds   = "event_kinds"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "entry:" vs "entries:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// policy returns the engine policy the scenario runs with.
func (s *Scenario) policy() engine.Policy {
	p := engine.DefaultPolicy()
	if s.Policy == nil {
		return p
	}
	if s.Policy.CooldownSlots != nil {
		p.CooldownSlots = *s.Policy.CooldownSlots
	}
	if s.Policy.DedupSource != "" {
		p.DedupSource = engine.DedupSource(s.Policy.DedupSource)
	}
	if s.Policy.EmptyBatch != "" {
		p.EmptyBatch = engine.EmptyBatchPolicy(s.Policy.EmptyBatch)
	}
	if s.Policy.MaxEntries != 0 {
		p.MaxEntries = s.Policy.MaxEntries
	}
	return p
}

func (s *Scenario) startSlot() uint64 {
	if s.StartSlot == 0 {
		return DefaultStartSlot
	}
	return s.StartSlot
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if err := s.policy().Validate(); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Op {
	case OpWarp:
		if st.At == nil {
			return fmt.Errorf("steps[%d]: at is required for warp", index)
		}
		return nil
	case OpCreate:
	case OpExtend:
		if len(st.Entries) == 0 {
			return fmt.Errorf("steps[%d]: entries is required for extend", index)
		}
		fallthrough
	case OpDeactivate, OpClose:
		if st.Record == "" {
			return fmt.Errorf("steps[%d]: record is required for %s", index, st.Op)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	if st.Caller == "" {
		return fmt.Errorf("steps[%d]: caller is required for %s", index, st.Op)
	}
	if st.Expect != nil && st.Expect.DirectoryCode != "" && st.Expect.Error != engine.CodeDelegatedCallFailed {
		return fmt.Errorf("steps[%d].expect: directory_code requires error %s", index, engine.CodeDelegatedCallFailed)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertRecord, AssertRecordAbsent:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for %s", index, a.Type)
		}
	case AssertTable:
		if a.Table == "" || a.State == "" {
			return fmt.Errorf("assertions[%d]: table and state are required for table", index)
		}
	case AssertTableAbsent:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for table_absent", index)
		}
	case AssertEventKinds:
		if a.Kinds == nil {
			return fmt.Errorf("assertions[%d]: kinds is required for event_kinds", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
