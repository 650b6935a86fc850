package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines an agreement scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Schemas is inline CUE source declaring the schemas under "schema:".
	Schemas string `yaml:"schemas"`

	// Records maps a model name to the records stored for it. Models are
	// inserted in name order, records in list order.
	Records map[string][]map[string]any `yaml:"records"`

	// Queries are answered by both the backend and the evaluator.
	Queries []QueryCase `yaml:"queries"`
}

// QueryCase is one query of a scenario.
type QueryCase struct {
	Name string `yaml:"name"`

	// Model is the model the query selects.
	Model string `yaml:"model"`

	// Where is the query expression in dict form. Empty selects all.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect lists the ids the query must return, in id order. Nil skips
	// the check; an empty list expects no records.
	Expect []any `yaml:"expect,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "querys:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Schemas == "" {
		return fmt.Errorf("schemas is required")
	}

	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	for model, recs := range s.Records {
		for i, rec := range recs {
			if rec == nil {
				return fmt.Errorf("records.%s[%d]: record is empty", model, i)
			}
		}
	}

	seen := make(map[string]bool, len(s.Queries))
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if seen[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		seen[q.Name] = true
		if q.Model == "" {
			return fmt.Errorf("queries[%d]: model is required", i)
		}
	}

	return nil
}
