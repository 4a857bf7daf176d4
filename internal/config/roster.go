package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Roster is an explicit identity list, used instead of index ranges when
// session names do not follow the prefix_N pattern.
type Roster struct {
	Identities []string `yaml:"identities"`
}

// LoadRoster reads a YAML roster file. Blank and duplicate names are dropped.
func LoadRoster(path string) ([]string, error) {
	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("reading roster: %w", err)
	}
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}

	seen := make(map[string]bool, len(r.Identities))
	names := make([]string, 0, len(r.Identities))
	for _, name := range r.Identities {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, errors.New("roster lists no identities")
	}
	return names, nil
}

// IndexIdentities synthesises prefix<first> .. prefix<last>, inclusive.
func IndexIdentities(prefix string, first, last int) ([]string, error) {
	if first < 0 || last < 0 {
		return nil, fmt.Errorf("indices must not be negative (got %d..%d)", first, last)
	}
	if last < first {
		return nil, fmt.Errorf("last index %d is before first index %d", last, first)
	}
	names := make([]string, 0, last-first+1)
	for i := first; i <= last; i++ {
		names = append(names, fmt.Sprintf("%s%d", prefix, i))
	}
	return names, nil
}
