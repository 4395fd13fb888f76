// Package config loads and validates the decoding run configuration.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/KyungWonPark/Decoding/internal/trial"
)

// Config represents the complete run configuration
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths" yaml:"paths"`
	Signal   SignalConfig   `mapstructure:"signal" yaml:"signal"`
	Decoding DecodingConfig `mapstructure:"decoding" yaml:"decoding"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// PathsConfig holds input and output locations. Empty paths are derived from BaseDir.
type PathsConfig struct {
	BaseDir      string `mapstructure:"base_dir" yaml:"base_dir"`
	Participants string `mapstructure:"participants" yaml:"participants"`
	OutDir       string `mapstructure:"out_dir" yaml:"out_dir"`
	Registry     string `mapstructure:"registry" yaml:"registry"`
	Metrics      string `mapstructure:"metrics" yaml:"metrics"`
}

// SignalConfig describes the signal matrices. Cleaning parameters are applied upstream and only recorded.
type SignalConfig struct {
	Modality           string  `mapstructure:"modality" yaml:"modality"`
	MaskSeg            string  `mapstructure:"mask_seg" yaml:"mask_seg"`
	MaskIndex          []int   `mapstructure:"mask_index" yaml:"mask_index"`
	SmoothingFWHM      float64 `mapstructure:"smoothing_fwhm" yaml:"smoothing_fwhm"`
	EssentialConfounds bool    `mapstructure:"essential_confounds" yaml:"essential_confounds"`
	Detrend            bool    `mapstructure:"detrend" yaml:"detrend"`
	HighPass           float64 `mapstructure:"high_pass" yaml:"high_pass"`
	PullExtremes       bool    `mapstructure:"pull_extremes" yaml:"pull_extremes"`
	ExtStdThres        float64 `mapstructure:"ext_std_thres" yaml:"ext_std_thres"`
	Standardize        string  `mapstructure:"standardize" yaml:"standardize"`
	Lag                int     `mapstructure:"lag" yaml:"lag"`
	SharedMemory       bool    `mapstructure:"shared_memory" yaml:"shared_memory"`
}

// DecodingConfig holds classification and cross-validation options
type DecodingConfig struct {
	Participant     string `mapstructure:"participant" yaml:"participant"`
	EventFile       string `mapstructure:"event_file" yaml:"event_file"`
	LabelColumn     string `mapstructure:"label_column" yaml:"label_column"`
	Classifier      string `mapstructure:"classifier" yaml:"classifier"`
	NBins           int    `mapstructure:"n_bins" yaml:"n_bins"`
	BalancingOption string `mapstructure:"balancing_option" yaml:"balancing_option"`
	BalanceStrategy string `mapstructure:"balance_strategy" yaml:"balance_strategy"`
	XValSplit       string `mapstructure:"x_val_split" yaml:"x_val_split"`
	Buffering       bool   `mapstructure:"buffering" yaml:"buffering"`
	TestsetBuffer   bool   `mapstructure:"testset_buffer" yaml:"testset_buffer"`
	Perm            bool   `mapstructure:"perm" yaml:"perm"`
	NPerm           int    `mapstructure:"n_perm" yaml:"n_perm"`
	WithinSession   bool   `mapstructure:"within_session" yaml:"within_session"`
	NFoldsWithin    int    `mapstructure:"n_folds_within" yaml:"n_folds_within"`
	Reorganize      bool   `mapstructure:"reorganize" yaml:"reorganize"`
	Seed            int64  `mapstructure:"seed" yaml:"seed"`
	Workers         int    `mapstructure:"workers" yaml:"workers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configuration from file and environment variables. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DAMSON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.base_dir", ".")
	v.SetDefault("paths.participants", "")
	v.SetDefault("paths.out_dir", "")
	v.SetDefault("paths.registry", "")
	v.SetDefault("paths.metrics", "")

	v.SetDefault("signal.modality", "train-raw_test-raw")
	v.SetDefault("signal.mask_seg", "aparcaseg")
	v.SetDefault("signal.mask_index", []int{1024})
	v.SetDefault("signal.smoothing_fwhm", 0.0)
	v.SetDefault("signal.essential_confounds", true)
	v.SetDefault("signal.detrend", true)
	v.SetDefault("signal.high_pass", 1.0/128)
	v.SetDefault("signal.pull_extremes", false)
	v.SetDefault("signal.ext_std_thres", 8.0)
	v.SetDefault("signal.standardize", "zscore")
	v.SetDefault("signal.lag", 2)
	v.SetDefault("signal.shared_memory", false)

	v.SetDefault("decoding.participant", "")
	v.SetDefault("decoding.event_file", "walk-fwd")
	v.SetDefault("decoding.label_column", "")
	v.SetDefault("decoding.classifier", "logreg")
	v.SetDefault("decoding.n_bins", 6)
	v.SetDefault("decoding.balancing_option", "upsample")
	v.SetDefault("decoding.balance_strategy", "longest")
	v.SetDefault("decoding.x_val_split", "fold")
	v.SetDefault("decoding.buffering", false)
	v.SetDefault("decoding.testset_buffer", false)
	v.SetDefault("decoding.perm", false)
	v.SetDefault("decoding.n_perm", 0)
	v.SetDefault("decoding.within_session", false)
	v.SetDefault("decoding.n_folds_within", 4)
	v.SetDefault("decoding.reorganize", false)
	v.SetDefault("decoding.seed", 0)
	v.SetDefault("decoding.workers", 1)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Paths.BaseDir == "" {
		return fmt.Errorf("paths.base_dir is required")
	}

	if len(c.Signal.MaskIndex) == 0 {
		return fmt.Errorf("signal.mask_index must contain at least one label")
	}
	if c.Signal.Lag < 0 {
		return fmt.Errorf("signal.lag must not be negative")
	}
	if c.Signal.PullExtremes && c.Signal.ExtStdThres <= 0 {
		return fmt.Errorf("signal.ext_std_thres must be positive when pull_extremes is on")
	}
	validStandardize := map[string]bool{"zscore": true, "none": true}
	if !validStandardize[c.Signal.Standardize] {
		return fmt.Errorf("signal.standardize must be one of: zscore, none")
	}

	if c.Decoding.Participant == "" {
		return fmt.Errorf("decoding.participant is required")
	}
	if c.Decoding.EventFile == "" {
		return fmt.Errorf("decoding.event_file is required")
	}
	if c.Decoding.NBins < 2 {
		return fmt.Errorf("decoding.n_bins must be at least 2")
	}
	validBalancing := map[string]bool{"none": true, "downsample": true, "upsample": true, "SMOTE": true}
	if !validBalancing[c.Decoding.BalancingOption] {
		return fmt.Errorf("decoding.balancing_option must be one of: none, downsample, upsample, SMOTE")
	}
	validStrategy := map[string]bool{"longest": true, "random": true}
	if !validStrategy[c.Decoding.BalanceStrategy] {
		return fmt.Errorf("decoding.balance_strategy must be one of: longest, random")
	}
	if _, err := trial.ParseSplit(c.Decoding.XValSplit); err != nil {
		return fmt.Errorf("decoding.x_val_split: %w", err)
	}
	if c.Decoding.Perm && c.Decoding.NPerm < 1 {
		return fmt.Errorf("decoding.n_perm must be at least 1 when perm is on")
	}
	if c.Decoding.NFoldsWithin < 2 || c.Decoding.NFoldsWithin > 4 {
		return fmt.Errorf("decoding.n_folds_within must be between 2 and 4")
	}
	if c.Decoding.Workers < 0 {
		return fmt.Errorf("decoding.workers must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Correction records a configuration value replaced during Resolve
type Correction struct {
	Key    string `yaml:"key"`
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Reason string `yaml:"reason"`
}

// Resolve returns a copy of c with incompatible option combinations replaced, and the replacements made.
func (c Config) Resolve() (Config, []Correction) {
	var corrections []Correction

	if c.Decoding.TestsetBuffer && !c.Decoding.Buffering {
		c.Decoding.TestsetBuffer = false
		corrections = append(corrections, Correction{
			Key:    "decoding.testset_buffer",
			From:   "true",
			To:     "false",
			Reason: "cannot combine unbuffered training and buffered testing set",
		})
	}

	if c.Decoding.WithinSession && c.Decoding.XValSplit != string(trial.SplitSubFold) {
		corrections = append(corrections, Correction{
			Key:    "decoding.x_val_split",
			From:   c.Decoding.XValSplit,
			To:     string(trial.SplitSubFold),
			Reason: "within-session decoding needs folds inside one session",
		})
		c.Decoding.XValSplit = string(trial.SplitSubFold)
	}

	c.Signal.MaskIndex = append([]int(nil), c.Signal.MaskIndex...)
	sort.Ints(c.Signal.MaskIndex)

	return c, corrections
}

// Split returns the resolved fold-label axis
func (c *Config) Split() trial.Split {
	return trial.Split(c.Decoding.XValSplit)
}
