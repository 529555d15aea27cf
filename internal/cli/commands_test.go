package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lutwrap/internal/engine"
	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/testutil"
)

// cliEnv runs commands against one temp database with no config file.
type cliEnv struct {
	t  *testing.T
	db string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return &cliEnv{t: t, db: filepath.Join(t.TempDir(), "lutwrap.db")}
}

func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--db", e.db}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

type jsonResponse struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Error     *CLIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

// runJSON runs args with --format json and decodes data into v when set.
func (e *cliEnv) runJSON(v any, args ...string) (jsonResponse, error) {
	e.t.Helper()
	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	var resp jsonResponse
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if v != nil && resp.Data != nil {
		require.NoError(e.t, json.Unmarshal(resp.Data, v))
	}
	return resp, err
}

func TestCLI_Lifecycle(t *testing.T) {
	env := newCLIEnv(t)
	alice := testutil.NamedAddress("alice").String()
	a := testutil.NamedAddress("a").String()
	b := testutil.NamedAddress("b").String()

	_, err := env.run("warp", "100")
	require.NoError(t, err)

	var created OperationView
	resp, err := env.runJSON(&created, "create", "--caller", alice, "--id", "0")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, ir.Slot(115), created.ReadyAt)
	record := created.Record.Address.String()

	// Still inside the cooldown window.
	resp, err = env.runJSON(nil, "extend", record, a, b, "--caller", alice)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, engine.CodeNotReady, resp.Error.Code)

	_, err = env.run("warp", "--by", "15")
	require.NoError(t, err)

	var extended OperationView
	_, err = env.runJSON(&extended, "extend", record, a, b, a, "--caller", alice)
	require.NoError(t, err)
	assert.Equal(t, 2, extended.Added)
	assert.Equal(t, uint64(2), extended.Total)
	assert.Equal(t, ir.Slot(130), extended.ReadyAt)

	out, err := env.run("show", record)
	require.NoError(t, err)
	assert.Contains(t, out, "Entries:    2/256")
	assert.Contains(t, out, "Status:     activated")
	assert.Contains(t, out, a)

	var list RecordList
	_, err = env.runJSON(&list, "list", alice)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Count)

	bob := testutil.NamedAddress("bob").String()
	resp, err = env.runJSON(nil, "deactivate", record, "--caller", bob)
	require.Error(t, err)
	assert.Equal(t, engine.CodeUnauthorized, resp.Error.Code)

	_, err = env.run("deactivate", record, "--caller", alice)
	require.NoError(t, err)

	resp, err = env.runJSON(nil, "close", record, "--caller", alice)
	require.Error(t, err)
	assert.Equal(t, engine.CodeDelegatedCallFailed, resp.Error.Code)

	_, err = env.run("warp", "628")
	require.NoError(t, err)

	var closed OperationView
	_, err = env.runJSON(&closed, "close", record, "--caller", alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(61087920), closed.Reclaimed)

	var events EventList
	_, err = env.runJSON(&events, "events", "--verify")
	require.NoError(t, err)
	require.NotNil(t, events.Verified)
	assert.Equal(t, 4, *events.Verified)
	kinds := make([]ir.EventKind, 0, len(events.Events))
	for _, ev := range events.Events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []ir.EventKind{ir.EventCreated, ir.EventExtended, ir.EventDeactivated, ir.EventClosed}, kinds)

	resp, err = env.runJSON(nil, "show", record)
	require.Error(t, err)
	assert.Equal(t, engine.CodeRecordNotFound, resp.Error.Code)
}

func TestCLI_CreateTextOutput(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("warp", "50")
	require.NoError(t, err)

	out, err := env.run("create", "--caller", testutil.NamedAddress("alice").String(), "--id", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Created record")
	assert.Contains(t, out, "Ready at:   slot 65")
}

func TestCLI_CreateRejectsStaleRecentSlot(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("warp", "500")
	require.NoError(t, err)

	resp, err := env.runJSON(nil, "create", "--caller", testutil.NamedAddress("alice").String(), "--recent-slot", "100")
	require.Error(t, err)
	assert.Equal(t, engine.CodeDelegatedCallFailed, resp.Error.Code)
}

func TestCLI_DeriveMatchesCreate(t *testing.T) {
	env := newCLIEnv(t)
	alice := testutil.NamedAddress("alice").String()

	_, err := env.run("warp", "100")
	require.NoError(t, err)

	var derived DeriveView
	_, err = env.runJSON(&derived, "derive", "--owner", alice, "--id", "4", "--recent-slot", "99")
	require.NoError(t, err)
	require.NotNil(t, derived.Table)

	var created OperationView
	_, err = env.runJSON(&created, "create", "--caller", alice, "--id", "4", "--table", derived.Table.String())
	require.NoError(t, err)
	assert.Equal(t, derived.Record, created.Record.Address)
	assert.Equal(t, *derived.Table, created.Record.DirectoryAddress)
}

func TestCLI_WarpAndSlot(t *testing.T) {
	env := newCLIEnv(t)

	var slot SlotView
	_, err := env.runJSON(&slot, "slot")
	require.NoError(t, err)
	assert.Equal(t, ir.Slot(0), slot.Slot)

	_, err = env.run("warp", "40")
	require.NoError(t, err)
	out, err := env.run("warp", "--by", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Slot 42 (was 40)")

	_, err = env.runJSON(&slot, "slot")
	require.NoError(t, err)
	assert.Equal(t, ir.Slot(42), slot.Slot)

	_, err = env.run("warp", "10")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = env.run("warp")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCLI_InvalidAddress(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("show", "not-an-address")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid record")
}

func TestCLI_ConfigFile(t *testing.T) {
	env := newCLIEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("policy:\n  cooldown_slots: 2\n"), 0644))
	alice := testutil.NamedAddress("alice").String()

	_, err := env.run("warp", "100")
	require.NoError(t, err)
	var created OperationView
	_, err = env.runJSON(&created, "--config", cfgPath, "create", "--caller", alice)
	require.NoError(t, err)
	assert.Equal(t, ir.Slot(102), created.ReadyAt)

	_, err = env.run("--config", filepath.Join(t.TempDir(), "missing.yaml"), "slot")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func copyScenario(t *testing.T, dir, name string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "scenarios", name))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
}

func TestCLI_TestCommand(t *testing.T) {
	env := newCLIEnv(t)
	dir := t.TempDir()
	copyScenario(t, dir, "lifecycle.yaml")
	copyScenario(t, dir, "mirror_noop.yaml")

	out, err := env.run("test", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 passed, 0 failed, 2 total")

	out, err = env.run("test", dir, "--filter", "life*", "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(golden updated)")

	got, err := os.ReadFile(filepath.Join(dir, "golden", "lifecycle.golden"))
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "golden", "lifecycle.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	out, err = env.run("test", dir)
	require.NoError(t, err, out)

	tampered := strings.Replace(string(got), `"slot":100`, `"slot":101`, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "lifecycle.golden"), []byte(tampered), 0644))
	out, err = env.run("test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestCLI_TestCommandMissingDir(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("test", filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
