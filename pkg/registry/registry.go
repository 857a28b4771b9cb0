package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"helpdesk-workers/internal/models"

	"gopkg.in/yaml.v3"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadRegistry reads and validates a manifest file. Files ending in .yaml or
// .yml are parsed as YAML, anything else as JSON.
func LoadRegistry(path string) (*PolicyRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg PolicyRegistry
	if isYAML(path) {
		err = yaml.Unmarshal(data, &reg)
	} else {
		err = json.Unmarshal(data, &reg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Save writes the manifest back in the format its extension selects, with a
// fresh lastUpdated stamp.
func (r *PolicyRegistry) Save(path string) error {
	r.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(r)
	} else {
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks ids are unique, categories are known and files are set.
func (r *PolicyRegistry) Validate() error {
	seen := make(map[string]bool, len(r.Policies))
	var problems []string
	for i, p := range r.Policies {
		if p.ID == "" {
			problems = append(problems, fmt.Sprintf("policy %d: id is required", i))
		} else if seen[p.ID] {
			problems = append(problems, fmt.Sprintf("policy %s: duplicate id", p.ID))
		}
		seen[p.ID] = true

		if _, ok := models.ParseCategory(p.Category); !ok {
			problems = append(problems, fmt.Sprintf("policy %s: unknown category %q", p.ID, p.Category))
		}
		if strings.TrimSpace(p.File) == "" {
			problems = append(problems, fmt.Sprintf("policy %s: file is required", p.ID))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid policy registry: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ForCategory returns the policies registered for c ordered by priority,
// keeping manifest order for equal priorities.
func (r *PolicyRegistry) ForCategory(c models.Category) []Policy {
	var out []Policy
	for _, p := range r.Policies {
		if cat, ok := models.ParseCategory(p.Category); ok && cat == c {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Upsert replaces the policy with the same id or appends it.
func (r *PolicyRegistry) Upsert(p Policy) {
	for i := range r.Policies {
		if r.Policies[i].ID == p.ID {
			r.Policies[i] = p
			return
		}
	}
	r.Policies = append(r.Policies, p)
}
