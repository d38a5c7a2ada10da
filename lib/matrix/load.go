package matrix

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a matrix document from a YAML or JSON file and normalizes it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read matrix %s: %w", path, err)
	}
	return Parse(data)
}

// Parse normalizes a YAML or JSON matrix document.
func Parse(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse matrix: %w", err)
	}
	return Normalize(doc)
}

// LoadResults reads measured benchmark results from a YAML or JSON file.
func LoadResults(path string) ([]Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results %s: %w", path, err)
	}
	var results []Result
	if err := yaml.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to parse results %s: %w", path, err)
	}
	return results, nil
}
