package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const manifestFileName = "manifest.yaml"

type manifest struct {
	BatchID  string         `yaml:"batch_id"`
	Created  time.Time      `yaml:"created"`
	Finished time.Time      `yaml:"finished"`
	Type     string         `yaml:"analysis_type"`
	Mode     string         `yaml:"plan_mode,omitempty"`
	Model    string         `yaml:"model"`
	Items    []manifestItem `yaml:"items"`
}

type manifestItem struct {
	Name      string `yaml:"name"`
	Dir       string `yaml:"dir"`
	Status    string `yaml:"status"`
	ErrorKind string `yaml:"error_kind,omitempty"`
	Error     string `yaml:"error,omitempty"`
	Blocks    int    `yaml:"blocks,omitempty"`
	Findings  int    `yaml:"findings,omitempty"`
}

func writeManifest(dir string, m manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	path := filepath.Join(dir, manifestFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}
