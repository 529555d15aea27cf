// Package config loads lutwrap settings from defaults, an optional YAML
// file and LUTWRAP_* environment variables, and validates the result
// against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/engine"
	"github.com/roach88/lutwrap/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment override, e.g. LUTWRAP_POLICY_COOLDOWN_SLOTS.
const EnvPrefix = "LUTWRAP"

// Config is the decoded configuration.
type Config struct {
	Database           string          `mapstructure:"database" json:"database"`
	ProgramID          string          `mapstructure:"program_id" json:"program_id"`
	DirectoryProgramID string          `mapstructure:"directory_program_id" json:"directory_program_id"`
	Policy             PolicyConfig    `mapstructure:"policy" json:"policy"`
	Directory          DirectoryConfig `mapstructure:"directory" json:"directory"`
	Server             ServerConfig    `mapstructure:"server" json:"server"`
}

// PolicyConfig mirrors engine.Policy.
type PolicyConfig struct {
	CooldownSlots uint64 `mapstructure:"cooldown_slots" json:"cooldown_slots"`
	DedupSource   string `mapstructure:"dedup_source" json:"dedup_source"`
	EmptyBatch    string `mapstructure:"empty_batch" json:"empty_batch"`
	MaxEntries    int    `mapstructure:"max_entries" json:"max_entries"`
}

// DirectoryConfig mirrors directory.NativeConfig.
type DirectoryConfig struct {
	RecentSlotWindow     uint64 `mapstructure:"recent_slot_window" json:"recent_slot_window"`
	DeactivationCooldown uint64 `mapstructure:"deactivation_cooldown" json:"deactivation_cooldown"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

// SetDefaults registers every key with its default on v. Keys must be
// known to viper for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	p := engine.DefaultPolicy()
	v.SetDefault("database", "lutwrap.db")
	v.SetDefault("program_id", ir.WrapperProgramID.String())
	v.SetDefault("directory_program_id", ir.DirectoryProgramID.String())
	v.SetDefault("policy.cooldown_slots", p.CooldownSlots)
	v.SetDefault("policy.dedup_source", string(p.DedupSource))
	v.SetDefault("policy.empty_batch", string(p.EmptyBatch))
	v.SetDefault("policy.max_entries", p.MaxEntries)
	v.SetDefault("directory.recent_slot_window", directory.DefaultRecentSlotWindow)
	v.SetDefault("directory.deactivation_cooldown", directory.DefaultDeactivationCooldown)
	v.SetDefault("server.addr", ":8080")
}

// New returns a viper instance with defaults, environment binding and the
// config file location applied. An empty path searches
// $HOME/.lutwrap/config.yaml.
func New(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".lutwrap"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. A missing file is an error only when path
// names it explicitly.
func Load(path string) (Config, error) {
	v := New(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the embedded schema and parses the program
// ids.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := schema.Unify(ctx.Encode(c))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, _, err := c.Programs(); err != nil {
		return err
	}
	return nil
}

// Programs parses the wrapper and directory program ids.
func (c Config) Programs() (wrapper, dir ir.Address, err error) {
	wrapper, err = ir.ParseAddress(c.ProgramID)
	if err != nil {
		return ir.Address{}, ir.Address{}, fmt.Errorf("program_id: %w", err)
	}
	dir, err = ir.ParseAddress(c.DirectoryProgramID)
	if err != nil {
		return ir.Address{}, ir.Address{}, fmt.Errorf("directory_program_id: %w", err)
	}
	return wrapper, dir, nil
}

// EnginePolicy converts the policy section.
func (c Config) EnginePolicy() engine.Policy {
	return engine.Policy{
		CooldownSlots: c.Policy.CooldownSlots,
		DedupSource:   engine.DedupSource(c.Policy.DedupSource),
		EmptyBatch:    engine.EmptyBatchPolicy(c.Policy.EmptyBatch),
		MaxEntries:    c.Policy.MaxEntries,
	}
}

// NativeConfig converts the directory section for the reference program.
func (c Config) NativeConfig() directory.NativeConfig {
	_, dir, _ := c.Programs()
	return directory.NativeConfig{
		ProgramID:            dir,
		RecentSlotWindow:     c.Directory.RecentSlotWindow,
		DeactivationCooldown: c.Directory.DeactivationCooldown,
	}
}
