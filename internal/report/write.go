package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KyungWonPark/Decoding/internal/config"
	"github.com/KyungWonPark/Decoding/internal/io"
)

// Manifest describes one participant run next to its tables
type Manifest struct {
	RunID       string              `yaml:"run_id"`
	Participant string              `yaml:"participant"`
	Started     time.Time           `yaml:"started"`
	Finished    time.Time           `yaml:"finished"`
	Seed        int64               `yaml:"seed"`
	Config      config.Config       `yaml:"config"`
	Corrections []config.Correction `yaml:"corrections"`
	Warnings    []string            `yaml:"warnings"`
	Outputs     []string            `yaml:"outputs"`
}

// WriteAll saves the tables of every scope below dir and returns the written paths.
// Call it only once every scope has been assembled.
func WriteAll(dir string, tables []*Tables) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("WriteAll: %w", err)
	}

	var written []string
	for _, t := range tables {
		for _, f := range []struct {
			suffix string
			table  *io.Table
		}{
			{"_pred.tsv", t.Pred},
			{"_acc.tsv", t.Acc},
			{"_eventstats.tsv", t.EventStats},
			{"_conf.tsv", t.Conf},
		} {
			path := filepath.Join(dir, t.Stem+f.suffix)
			if err := io.WriteTable(path, f.table); err != nil {
				return written, err
			}
			written = append(written, path)
		}
	}

	return written, nil
}

// WriteManifest saves m as YAML
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("WriteManifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("WriteManifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("ReadManifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("ReadManifest: %s: %w", path, err)
	}
	return m, nil
}
