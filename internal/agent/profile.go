package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Profile is a named preset for an agent: model, prompts, tool servers and
// cycle limit. Empty fields leave the configured defaults in place.
type Profile struct {
	Name         string   `yaml:"name"`
	Model        string   `yaml:"model"`
	SystemPrompt string   `yaml:"system_prompt"`
	Context      string   `yaml:"context"`
	Servers      []string `yaml:"servers"`
	MaxCycles    *int     `yaml:"max_cycles"`
}

// LoadProfile reads an agent profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	if p.Name == "" {
		base := filepath.Base(path)
		p.Name = base[:len(base)-len(filepath.Ext(base))]
	}

	return &p, nil
}

// FindProfile loads name from dir, trying name.yaml then name.yml.
func FindProfile(dir, name string) (*Profile, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadProfile(path)
		}
	}
	return nil, fmt.Errorf("profile %q not found in %s", name, dir)
}
