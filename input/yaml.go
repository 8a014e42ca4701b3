package input

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sublime-security/sublime-cli/api"
	"github.com/sublime-security/sublime-cli/logger"
)

// yamlEntry is one rule or query in a YAML rule file.
type yamlEntry struct {
	Type     string `yaml:"type"`
	Source   string `yaml:"source"`
	Name     string `yaml:"name"`
	Severity string `yaml:"severity"`
}

// yamlDoc is a YAML rule file: either explicit rules/queries lists, or a
// single inline entry.
type yamlDoc struct {
	Rules   []yamlEntry `yaml:"rules"`
	Queries []yamlEntry `yaml:"queries"`

	yamlEntry `yaml:",inline"`
}

// ReadYAML parses a .yml/.yaml rule file into detections and queries.
// A file without rules/queries lists is treated as a single entry, and
// an entry without an explicit type defaults to query.
func ReadYAML(r io.Reader) ([]api.Detection, []api.Query, error) {
	var doc yamlDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("invalid YAML rule file: %w", err)
	}

	rules, queries := doc.Rules, doc.Queries
	if len(rules) == 0 && len(queries) == 0 {
		entry := doc.yamlEntry
		switch entry.Type {
		case "rule":
			rules = []yamlEntry{entry}
		case "query", "":
			queries = []yamlEntry{entry}
		default:
			return nil, nil, fmt.Errorf("invalid rule type %q", entry.Type)
		}
	}

	var detections []api.Detection
	for _, entry := range rules {
		if entry.Source == "" {
			return nil, nil, fmt.Errorf("missing source in rule %q", entry.Name)
		}
		detections = append(detections, api.Detection{
			Name:     entry.Name,
			Source:   entry.Source,
			Severity: entry.Severity,
		})
	}

	var list []api.Query
	for _, entry := range queries {
		if entry.Source == "" {
			return nil, nil, fmt.Errorf("missing source in query %q", entry.Name)
		}
		list = append(list, api.Query{Name: entry.Name, Source: entry.Source})
	}

	return detections, list, nil
}

// LoadYAML loads detections and queries from a .yml/.yaml rule file.
func LoadYAML(path string) ([]api.Detection, []api.Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load YAML rules: %w", err)
	}
	defer f.Close()

	detections, queries, err := ReadYAML(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return detections, queries, nil
}

// LoadYAMLDir loads rules and queries from every .yml/.yaml file under
// dir, recursively. Files that fail to parse are logged and skipped so
// one bad file doesn't sink a whole rule tree.
func LoadYAMLDir(dir string) ([]api.Detection, []api.Query, error) {
	var detections []api.Detection
	var queries []api.Query

	err := walkRuleFiles(dir, []string{".yml", ".yaml"}, func(path string) error {
		loadedRules, loadedQueries, err := LoadYAML(path)
		if err != nil {
			logger.Warn("Skipping invalid YAML rule file", "path", path, "error", err)
			return nil
		}
		detections = append(detections, loadedRules...)
		queries = append(queries, loadedQueries...)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if len(detections) == 0 && len(queries) == 0 {
		logger.Warn("No valid YAML rule files found", "dir", dir)
	}
	return detections, queries, nil
}
