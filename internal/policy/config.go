package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/humotica/intentgate/internal/alert"
	"github.com/humotica/intentgate/internal/model"
)

// RiskConfig holds the weights of the deterministic risk score. The score
// is clamped to [0,1] and an intent is approved iff score >= Threshold.
type RiskConfig struct {
	Threshold           float64            `yaml:"threshold"`
	Base                float64            `yaml:"base"`
	TrustWeight         float64            `yaml:"trust_weight"`
	IntentAdjustments   map[string]float64 `yaml:"intent_adjustments"`
	HistoryWeight       float64            `yaml:"history_weight"`
	LargeAmount         float64            `yaml:"large_amount"`
	LargeAmountPenalty  float64            `yaml:"large_amount_penalty"`
	VerifiedDeviceBonus float64            `yaml:"verified_device_bonus"`
	FirstContactPenalty float64            `yaml:"first_contact_penalty"`
}

// LevelOverride is a config-file override of one trust level's policy
// record. Durations are Go duration strings ("5m", "43800h").
type LevelOverride struct {
	Level              int              `yaml:"level"`
	Label              string           `yaml:"label"`
	PreAuthRequired    bool             `yaml:"pre_auth_required"`
	EncryptionRequired bool             `yaml:"encryption_required"`
	MFARequired        bool             `yaml:"mfa_required"`
	Strictness         model.Strictness `yaml:"strictness"`
	Grace              string           `yaml:"grace"`
	Retention          string           `yaml:"retention"`
	RateLimit          struct {
		MaxIntents int    `yaml:"max_intents"`
		Window     string `yaml:"window"`
	} `yaml:"rate_limit"`
}

// Config holds all configurable gateway parameters: the trust policy
// table, scoring weights, and oversight webhook destinations.
type Config struct {
	Levels []LevelOverride `yaml:"levels"`
	Risk   RiskConfig      `yaml:"risk"`
	Alerts []alert.Config  `yaml:"alerts"`

	table *Table
}

// Table returns the trust policy table with any per-level overrides from
// the config file applied over the defaults.
func (c *Config) Table() *Table {
	return c.table
}

// DefaultConfig returns the built-in reference configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Risk: RiskConfig{
			Threshold:   0.7,
			Base:        0.35,
			TrustWeight: 0.08,
			IntentAdjustments: map[string]float64{
				"emergency": 0.45,
				"urgent":    0.15,
				"personal":  0.10,
				"business":  0.05,
			},
			HistoryWeight:       0.4,
			LargeAmount:         10_000,
			LargeAmountPenalty:  0.15,
			VerifiedDeviceBonus: 0.10,
			FirstContactPenalty: 0.10,
		},
		table: DefaultTable(),
	}
	return cfg
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "intentgate-config.yaml")
	}
	return filepath.Join(home, ".intentgate", "config.yaml")
}

// Load loads gateway configuration from a YAML file. Empty path falls back
// to ~/.intentgate/config.yaml. Missing file returns defaults. Invalid
// YAML or an invalid level override returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads configuration and returns the SHA-256 of the raw
// bytes on disk. The hash is recorded in every continuity entry so a
// decision can be tied to the exact policy that produced it. When no file
// exists (defaults used), the hash is the SHA-256 of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			h := sha256.Sum256(nil)
			return DefaultConfig(), "sha256:" + hex.EncodeToString(h[:]), nil
		}
		return nil, "", fmt.Errorf("read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.applyLevelOverrides(); err != nil {
		return nil, "", err
	}

	h := sha256.Sum256(data)
	return cfg, "sha256:" + hex.EncodeToString(h[:]), nil
}

// applyLevelOverrides merges the config file's level entries over the
// default table. An override replaces the whole level record, so a file
// that loosens one control must restate the rest.
func (c *Config) applyLevelOverrides() error {
	table := DefaultTable()
	for _, lvl := range c.Levels {
		if lvl.Level < MinLevel || lvl.Level > MaxLevel {
			return fmt.Errorf("config level override: %w: %d", model.ErrUnknownLevel, lvl.Level)
		}
		switch lvl.Strictness {
		case model.StrictnessNone, model.StrictnessSoft, model.StrictnessStrict:
		default:
			return fmt.Errorf("config level %d: unknown strictness %q", lvl.Level, lvl.Strictness)
		}
		grace, err := parseDuration(lvl.Grace)
		if err != nil {
			return fmt.Errorf("config level %d: grace: %w", lvl.Level, err)
		}
		retention, err := parseDuration(lvl.Retention)
		if err != nil {
			return fmt.Errorf("config level %d: retention: %w", lvl.Level, err)
		}
		window, err := parseDuration(lvl.RateLimit.Window)
		if err != nil {
			return fmt.Errorf("config level %d: rate limit window: %w", lvl.Level, err)
		}
		table.levels[lvl.Level] = TrustPolicy{
			Level:              lvl.Level,
			Label:              lvl.Label,
			PreAuthRequired:    lvl.PreAuthRequired,
			EncryptionRequired: lvl.EncryptionRequired,
			MFARequired:        lvl.MFARequired,
			Strictness:         lvl.Strictness,
			Grace:              grace,
			Retention:          retention,
			RateLimit:          RateLimit{MaxIntents: lvl.RateLimit.MaxIntents, Window: window},
		}
	}
	c.table = table
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
