package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the game engine.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Mongo         MongoConfig         `mapstructure:"mongo"`
	Gemini        GeminiConfig        `mapstructure:"gemini"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Contradiction ContradictionConfig `mapstructure:"contradiction"`
	Relationship  RelationshipConfig  `mapstructure:"relationship"`
	Summary       SummaryConfig       `mapstructure:"summary"`
	Phases        PhaseConfig         `mapstructure:"phases"`
	Exploration   ExplorationConfig   `mapstructure:"exploration"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	AllowedOrigins string        `mapstructure:"allowed_origins"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
}

// MongoConfig contains document store settings.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// GeminiConfig contains reasoning service settings.
type GeminiConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// SchedulerConfig contains turn scheduling policy.
type SchedulerConfig struct {
	// SilenceThreshold gates the periodic auto-trigger check.
	SilenceThreshold time.Duration `mapstructure:"silence_threshold"`
	// MinSilenceAtInvoke is the lower bound re-checked at actual invocation
	// time so a scheduler woken late still fires responsively.
	MinSilenceAtInvoke time.Duration `mapstructure:"min_silence_at_invoke"`
	// StarvationRounds is how many consecutive rankings an agent may go
	// without speaking before it is force-promoted to the top.
	StarvationRounds int `mapstructure:"starvation_rounds"`
}

// ContradictionConfig contains contradiction detection and decay policy.
type ContradictionConfig struct {
	MaxPerRun        int           `mapstructure:"max_per_run"`
	MessageWindow    int           `mapstructure:"message_window"`
	MinMessages      int           `mapstructure:"min_messages"`
	UnresolvedCap    int           `mapstructure:"unresolved_cap"`
	DismissAfter     time.Duration `mapstructure:"dismiss_after"`
	LowSeverityAfter time.Duration `mapstructure:"low_severity_after"`
	LowSeverityFloor int           `mapstructure:"low_severity_floor"`
}

// RelationshipConfig contains trust/suspicion tone thresholds.
type RelationshipConfig struct {
	TenseSuspicion int `mapstructure:"tense_suspicion"`
	WarmTrust      int `mapstructure:"warm_trust"`
	ColdTrust      int `mapstructure:"cold_trust"`
}

// SummaryConfig contains discussion summarizer batching and locking policy.
type SummaryConfig struct {
	BatchThreshold    int           `mapstructure:"batch_threshold"`
	MaxMessagesPerRun int           `mapstructure:"max_messages_per_run"`
	LockStaleAfter    time.Duration `mapstructure:"lock_stale_after"`
	SaturatedMentions int           `mapstructure:"saturated_mentions"`
}

// PhaseConfig contains per-phase durations. Zero means untimed.
type PhaseConfig struct {
	Prologue    time.Duration `mapstructure:"prologue"`
	Exploration time.Duration `mapstructure:"exploration"`
	Discussion  time.Duration `mapstructure:"discussion"`
	Voting      time.Duration `mapstructure:"voting"`
	Ending      time.Duration `mapstructure:"ending"`
}

// ExplorationConfig contains exploration phase rules.
type ExplorationConfig struct {
	ActionsPerPhase int `mapstructure:"actions_per_phase"`
}

// Load reads configuration from an optional config file plus DEDUCTION_*
// environment variables, applying defaults for everything unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.heartbeat", 15*time.Second)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "deduction")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.request_timeout", 30*time.Second)
	v.SetDefault("gemini.rate_per_second", 1.0)
	v.SetDefault("gemini.rate_burst", 3)
	v.SetDefault("scheduler.silence_threshold", 60*time.Second)
	v.SetDefault("scheduler.min_silence_at_invoke", 30*time.Second)
	v.SetDefault("scheduler.starvation_rounds", 3)
	v.SetDefault("contradiction.max_per_run", 2)
	v.SetDefault("contradiction.message_window", 20)
	v.SetDefault("contradiction.min_messages", 3)
	v.SetDefault("contradiction.unresolved_cap", 10)
	v.SetDefault("contradiction.dismiss_after", 20*time.Minute)
	v.SetDefault("contradiction.low_severity_after", 10*time.Minute)
	v.SetDefault("contradiction.low_severity_floor", 60)
	v.SetDefault("relationship.tense_suspicion", 70)
	v.SetDefault("relationship.warm_trust", 70)
	v.SetDefault("relationship.cold_trust", 30)
	v.SetDefault("summary.batch_threshold", 10)
	v.SetDefault("summary.max_messages_per_run", 100)
	v.SetDefault("summary.lock_stale_after", 5*time.Minute)
	v.SetDefault("summary.saturated_mentions", 5)
	v.SetDefault("phases.prologue", 2*time.Minute)
	v.SetDefault("phases.exploration", 10*time.Minute)
	v.SetDefault("phases.discussion", 15*time.Minute)
	v.SetDefault("phases.voting", 5*time.Minute)
	v.SetDefault("phases.ending", time.Duration(0))
	v.SetDefault("exploration.actions_per_phase", 2)

	v.SetEnvPrefix("DEDUCTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied and no file
// lookup. Used by tests.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}
