package rule

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-errors/errors"
)

// LoadFile reads a rule definition from disk. Files ending in .yaml or .yml are read as
// YAML, anything else as JSON with comments.
func LoadFile(path string, external map[string]interface{}) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not read rule file", 0)
	}

	var r *Rule
	if isYAML(path) {
		r, err = LoadYAML(data, external)
	} else {
		r, err = Load(data, external)
	}

	if err != nil {
		return nil, errors.WrapPrefix(err, filepath.Base(path), 0)
	}

	return r, nil
}

// LoadDir loads every .json, .jsonc, .yaml and .yml file in a directory, ordered by file
// name. Subdirectories are not descended into.
func LoadDir(dir string, external map[string]interface{}) ([]*Rule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not read rules directory", 0)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isRuleFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	rules := make([]*Rule, 0, len(names))
	for _, name := range names {
		r, err := LoadFile(filepath.Join(dir, name), external)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}

	return rules, nil
}

// LoadPath loads a single rule file, or all rule files of a directory
func LoadPath(path string, external map[string]interface{}) ([]*Rule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not stat rules path", 0)
	}

	if info.IsDir() {
		return LoadDir(path, external)
	}

	r, err := LoadFile(path, external)
	if err != nil {
		return nil, err
	}

	return []*Rule{r}, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func isRuleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc", ".yaml", ".yml":
		return true
	}

	return false
}
