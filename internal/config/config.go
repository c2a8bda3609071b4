// Package config loads and snapshots engine configuration. The snapshot is
// read once at startup and threaded through the engine runtime; nothing in
// the core reads viper (or any other ambient source) directly.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// Config is the immutable configuration snapshot for one engine run.
type Config struct {
	// MaxConcurrency bounds simultaneously running agents (1-10).
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// MaxWorktrees caps the number of distinct worktrees a plan may assign.
	MaxWorktrees int `mapstructure:"max_worktrees"`
	// WorktreeDir is the directory (relative to the repo root) that holds
	// per-epic worktrees.
	WorktreeDir string `mapstructure:"worktree_dir"`
	// TestCommand is the project's test command; empty disables test gating.
	TestCommand string `mapstructure:"test_command"`
	// TestTimeout bounds one test-suite invocation.
	TestTimeout time.Duration `mapstructure:"test_timeout"`
	// HeartbeatInterval is how often running sessions refresh last_heartbeat.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`

	Budget BudgetConfig           `mapstructure:"budget"`
	Models ModelConfig            `mapstructure:"models"`
	Git    GitTimeouts            `mapstructure:"git"`
	Agent  map[string]string      `mapstructure:"agent_models"`
	Prices map[string]TierPricing `mapstructure:"prices"`
}

// BudgetConfig holds the monetary budget for a project, in cents.
type BudgetConfig struct {
	// LimitCents is the total budget; zero means unlimited.
	LimitCents int64 `mapstructure:"limit_cents"`
	// LowWaterCents forces the cheap tier when remaining budget drops below it.
	LowWaterCents int64 `mapstructure:"low_water_cents"`
	// MidWaterCents drops premium recommendations to mid below it.
	MidWaterCents int64 `mapstructure:"mid_water_cents"`
}

// ModelConfig holds selector override tables.
type ModelConfig struct {
	// PriorityOverrides maps task priority to a forced tier,
	// e.g. {1: premium}.
	PriorityOverrides map[int]models.ModelTier `mapstructure:"priority_overrides"`
	// TaskTypeOverrides maps a description keyword to a forced tier,
	// e.g. {"documentation": cheap}.
	TaskTypeOverrides map[string]models.ModelTier `mapstructure:"task_type_overrides"`
}

// TierPricing is the per-million-token price for a tier, in cents.
type TierPricing struct {
	InputCentsPerMTok  int64 `mapstructure:"input_cents_per_mtok"`
	OutputCentsPerMTok int64 `mapstructure:"output_cents_per_mtok"`
}

// GitTimeouts bounds external VCS invocations.
type GitTimeouts struct {
	Read  time.Duration `mapstructure:"read"`
	Write time.Duration `mapstructure:"write"`
	Merge time.Duration `mapstructure:"merge"`
}

// Default per-tier model identifiers for the Anthropic adapter.
var defaultAgentModels = map[string]string{
	string(models.TierCheap):   "claude-haiku-4-5",
	string(models.TierMid):     "claude-sonnet-4-5",
	string(models.TierPremium): "claude-opus-4-1",
}

// Default per-tier pricing, cents per million tokens.
var defaultPrices = map[string]TierPricing{
	string(models.TierCheap):   {InputCentsPerMTok: 100, OutputCentsPerMTok: 500},
	string(models.TierMid):     {InputCentsPerMTok: 300, OutputCentsPerMTok: 1500},
	string(models.TierPremium): {InputCentsPerMTok: 1500, OutputCentsPerMTok: 7500},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_concurrency", 3)
	v.SetDefault("max_worktrees", 4)
	v.SetDefault("worktree_dir", ".worktrees")
	v.SetDefault("test_command", "")
	v.SetDefault("test_timeout", 5*time.Minute)
	v.SetDefault("heartbeat_interval", time.Minute)
	v.SetDefault("budget.limit_cents", int64(0))
	v.SetDefault("budget.low_water_cents", int64(100))
	v.SetDefault("budget.mid_water_cents", int64(500))
	v.SetDefault("git.read", 10*time.Second)
	v.SetDefault("git.write", 60*time.Second)
	v.SetDefault("git.merge", 60*time.Second)
}

// Load reads configuration for a project rooted at workDir. File
// (.yokeflow/config.yaml) and environment (YOKEFLOW_*) sources are
// optional; defaults cover everything.
func Load(workDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(workDir, ".yokeflow"))
	v.SetEnvPrefix("YOKEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, used by tests and by
// callers that have no config file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(&cfg)
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Agent == nil {
		c.Agent = map[string]string{}
	}
	for tier, model := range defaultAgentModels {
		if _, ok := c.Agent[tier]; !ok {
			c.Agent[tier] = model
		}
	}
	if c.Prices == nil {
		c.Prices = map[string]TierPricing{}
	}
	for tier, p := range defaultPrices {
		if _, ok := c.Prices[tier]; !ok {
			c.Prices[tier] = p
		}
	}
}

// Validate rejects out-of-range values rather than silently clamping,
// except MaxConcurrency which is clamped to its documented 1-10 range.
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 1
	}
	if c.MaxConcurrency > 10 {
		c.MaxConcurrency = 10
	}
	if c.MaxWorktrees < 1 {
		return fmt.Errorf("max_worktrees must be at least 1, got %d", c.MaxWorktrees)
	}
	if c.TestTimeout <= 0 {
		return fmt.Errorf("test_timeout must be positive, got %s", c.TestTimeout)
	}
	if c.Budget.LimitCents < 0 {
		return fmt.Errorf("budget.limit_cents must not be negative, got %d", c.Budget.LimitCents)
	}
	return nil
}

// ModelForTier resolves the concrete model identifier for a tier.
func (c *Config) ModelForTier(tier models.ModelTier) string {
	return c.Agent[string(tier)]
}

// PricingForTier resolves pricing for a tier.
func (c *Config) PricingForTier(tier models.ModelTier) TierPricing {
	return c.Prices[string(tier)]
}
