package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decode.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
paths:
  base_dir: /data/damson
signal:
  mask_index: [1024, 2024]
decoding:
  participant: sub-older068
  event_file: walk-fwd
  classifier: svm
  balancing_option: SMOTE
  x_val_split: session
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/damson", cfg.Paths.BaseDir)
	assert.Equal(t, []int{1024, 2024}, cfg.Signal.MaskIndex)
	assert.Equal(t, "svm", cfg.Decoding.Classifier)
	assert.Equal(t, "SMOTE", cfg.Decoding.BalancingOption)
	assert.Equal(t, 6, cfg.Decoding.NBins)
	assert.Equal(t, 2, cfg.Signal.Lag)
	assert.Equal(t, "text", cfg.Logging.Format)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("DAMSON_DECODING_PARTICIPANT", "sub-younger001")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sub-younger001", cfg.Decoding.Participant)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)
	base.Decoding.Participant = "sub-01"
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"n_bins":          func(c *Config) { c.Decoding.NBins = 1 },
		"balancing":       func(c *Config) { c.Decoding.BalancingOption = "oversample" },
		"strategy":        func(c *Config) { c.Decoding.BalanceStrategy = "shortest" },
		"x_val_split":     func(c *Config) { c.Decoding.XValSplit = "run" },
		"n_perm":          func(c *Config) { c.Decoding.Perm = true },
		"n_folds_within":  func(c *Config) { c.Decoding.NFoldsWithin = 5 },
		"participant":     func(c *Config) { c.Decoding.Participant = "" },
		"mask_index":      func(c *Config) { c.Signal.MaskIndex = nil },
		"standardize":     func(c *Config) { c.Signal.Standardize = "psc" },
		"logging.level":   func(c *Config) { c.Logging.Level = "trace" },
		"logging.format":  func(c *Config) { c.Logging.Format = "xml" },
		"negative lag":    func(c *Config) { c.Signal.Lag = -1 },
		"ext_std_thres":   func(c *Config) { c.Signal.PullExtremes = true; c.Signal.ExtStdThres = 0 },
		"negative worker": func(c *Config) { c.Decoding.Workers = -2 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			c.Signal.MaskIndex = append([]int(nil), base.Signal.MaskIndex...)
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestResolveCorrections(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Decoding.TestsetBuffer = true
	cfg.Decoding.WithinSession = true
	cfg.Decoding.XValSplit = "fold"
	cfg.Signal.MaskIndex = []int{2024, 1024}

	resolved, corrections := cfg.Resolve()

	require.Len(t, corrections, 2)
	assert.Equal(t, "decoding.testset_buffer", corrections[0].Key)
	assert.Equal(t, "decoding.x_val_split", corrections[1].Key)
	assert.Equal(t, "fold", corrections[1].From)

	assert.False(t, resolved.Decoding.TestsetBuffer)
	assert.Equal(t, "sub_fold", resolved.Decoding.XValSplit)
	assert.Equal(t, []int{1024, 2024}, resolved.Signal.MaskIndex)

	// the input is left as it was
	assert.True(t, cfg.Decoding.TestsetBuffer)
	assert.Equal(t, []int{2024, 1024}, cfg.Signal.MaskIndex)
}

func TestResolveKeepsCompatibleOptions(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Decoding.Buffering = true
	cfg.Decoding.TestsetBuffer = true

	resolved, corrections := cfg.Resolve()
	assert.Empty(t, corrections)
	assert.True(t, resolved.Decoding.TestsetBuffer)
}
