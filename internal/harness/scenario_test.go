package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lutwrap/internal/engine"
)

func TestLoadScenario_Lifecycle(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/lifecycle.yaml")
	require.NoError(t, err)

	assert.Equal(t, "lifecycle", s.Name)
	assert.Equal(t, uint64(100), s.startSlot())
	assert.Len(t, s.Steps, 11)
	assert.Equal(t, engine.DefaultPolicy(), s.policy())

	step := s.Steps[5]
	assert.Equal(t, OpClose, step.Op)
	require.NotNil(t, step.At)
	assert.Equal(t, uint64(141), *step.At)
	assert.Equal(t, "DEACTIVATION_COOLDOWN", step.Expect.DirectoryCode)
}

func TestLoadScenario_PolicyOverrides(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/mirror_noop.yaml")
	require.NoError(t, err)

	p := s.policy()
	assert.Equal(t, uint64(150), p.CooldownSlots)
	assert.Equal(t, engine.DedupMirror, p.DedupSource)
	assert.Equal(t, engine.EmptyBatchNoop, p.EmptyBatch)
	assert.Equal(t, 256, p.MaxEntries)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: tiny
description: one create
steps:
  - op: create
    caller: alice
`), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(DefaultStartSlot), s.startSlot())
}

func TestParseScenario_Rejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: y\nstep: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "description: y\nsteps:\n  - {op: create, caller: a}\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\nsteps:\n  - {op: create, caller: a}\n",
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: x\ndescription: y\n",
			want: "steps list is required",
		},
		{
			name: "unknown op",
			yaml: "name: x\ndescription: y\nsteps:\n  - {op: resize, caller: a}\n",
			want: `unknown op "resize"`,
		},
		{
			name: "missing op",
			yaml: "name: x\ndescription: y\nsteps:\n  - {caller: a}\n",
			want: "op is required",
		},
		{
			name: "warp without at",
			yaml: "name: x\ndescription: y\nsteps:\n  - {op: warp}\n",
			want: "at is required for warp",
		},
		{
			name: "extend without entries",
			yaml: "name: x\ndescription: y\nsteps:\n  - {op: extend, caller: a, record: a/0}\n",
			want: "entries is required",
		},
		{
			name: "close without record",
			yaml: "name: x\ndescription: y\nsteps:\n  - {op: close, caller: a}\n",
			want: "record is required for close",
		},
		{
			name: "missing caller",
			yaml: "name: x\ndescription: y\nsteps:\n  - {op: create}\n",
			want: "caller is required",
		},
		{
			name: "directory code without delegated error",
			yaml: "name: x\ndescription: y\nsteps:\n  - {op: create, caller: a, expect: {error: RECORD_EXISTS, directory_code: X}}\n",
			want: "directory_code requires error",
		},
		{
			name: "invalid policy",
			yaml: "name: x\ndescription: y\npolicy: {dedup_source: both}\nsteps:\n  - {op: create, caller: a}\n",
			want: "unknown dedup source",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ndescription: y\nsteps:\n  - {op: create, caller: a}\nassertions:\n  - {type: final_state}\n",
			want: `unknown assertion type "final_state"`,
		},
		{
			name: "table assertion without state",
			yaml: "name: x\ndescription: y\nsteps:\n  - {op: create, caller: a}\nassertions:\n  - {type: table, table: a/0/table}\n",
			want: "table and state are required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
