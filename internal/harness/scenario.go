package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flexstream/internal/lazy"
	"github.com/roach88/flexstream/internal/query"
)

// Scenario defines one evaluation scenario: input lines, standing queries,
// the optimization level to run them under, and what must come out.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Level is the optimization level. Defaults to aggregate.
	Level string `yaml:"level,omitempty"`

	// Partitions is the dataset partition count. Defaults to 4.
	Partitions int `yaml:"partitions,omitempty"`

	// Lines are the raw input lines of the batch.
	Lines []string `yaml:"lines"`

	Queries []query.Query `yaml:"queries"`

	// Expect maps query id to its published value. Queries not listed are
	// not checked.
	Expect map[string]any `yaml:"expect"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Assertion types.
const (
	AssertTotal       = "total"
	AssertStat        = "stat"
	AssertRootPasses  = "root_passes"
	AssertLevelsAgree = "levels_agree"
)

// Assertion validates a property of the run beyond query values.
type Assertion struct {
	Type string `yaml:"type"`

	// Stat is a lazy.Stats JSON field name (used by stat).
	Stat string `yaml:"stat,omitempty"`

	// Value is the expected statistic (used by stat).
	Value int64 `yaml:"value,omitempty"`

	// Count is the expected total or pass count (used by total, root_passes).
	Count int64 `yaml:"count,omitempty"`
}

// LoadScenario reads and validates a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// level returns the scenario's optimization level.
func (s *Scenario) level() (lazy.Level, error) {
	if s.Level == "" {
		return lazy.LevelAggregate, nil
	}
	return lazy.ParseLevel(s.Level)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := s.level(); err != nil {
		return err
	}
	if s.Partitions < 0 {
		return fmt.Errorf("partitions must be non-negative")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}
	if err := query.ValidateAll(s.Queries); err != nil {
		return err
	}

	known := make(map[string]bool, len(s.Queries))
	for _, q := range s.Queries {
		known[q.ID] = true
	}
	for id, v := range s.Expect {
		if !known[id] {
			return fmt.Errorf("expect: unknown query %q", id)
		}
		if _, err := normalizeValue(v); err != nil {
			return fmt.Errorf("expect[%s]: %w", id, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTotal, AssertRootPasses:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertStat:
		if _, ok := statNames[a.Stat]; !ok {
			return fmt.Errorf("assertions[%d]: unknown stat %q", index, a.Stat)
		}
	case AssertLevelsAgree:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// normalizeValue maps YAML scalars onto published values: integers become
// int64 and null stays nil.
func normalizeValue(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > 1<<63-1 {
			return nil, fmt.Errorf("integer out of range: %d", n)
		}
		return int64(n), nil
	}
	return nil, fmt.Errorf("expected an integer or null, got %T", v)
}
