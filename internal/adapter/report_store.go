package adapter

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	m "optipy.dev/pkg/optipy/internal/model"
)

const reportFileName = "outcomes.yaml"

// ReportStore persists per-file outcomes so they can be re-displayed or
// consumed by an external report generator.
type ReportStore interface {
	SaveOutcomes(dir m.Path, outcomes []m.Outcome) error
	LoadOutcomes(dir m.Path) ([]m.Outcome, error)
}

// YAMLReportStore stores outcomes as a single YAML document per run.
type YAMLReportStore struct{}

// NewReportStore constructs a YAMLReportStore.
func NewReportStore() *YAMLReportStore {
	return &YAMLReportStore{}
}

type reportDocument struct {
	Outcomes []m.Outcome `yaml:"outcomes"`
}

// SaveOutcomes writes the outcomes into <dir>/outcomes.yaml.
func (s *YAMLReportStore) SaveOutcomes(dir m.Path, outcomes []m.Outcome) error {
	if err := os.MkdirAll(string(dir), 0o750); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}

	data, err := yaml.Marshal(reportDocument{Outcomes: outcomes})
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	target := filepath.Join(string(dir), reportFileName)
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}

	return nil
}

// LoadOutcomes reads a previously saved report document.
func (s *YAMLReportStore) LoadOutcomes(dir m.Path) ([]m.Outcome, error) {
	target := filepath.Join(string(dir), reportFileName)

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}

	var doc reportDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", target, err)
	}

	return doc.Outcomes, nil
}
