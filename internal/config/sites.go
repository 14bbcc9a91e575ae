package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/webarchivist/internal/intercept"
)

// RuleConfig describes one interception rule in the sites file.
type RuleConfig struct {
	Name        string   `yaml:"name"`
	URLPrefixes []string `yaml:"url_prefixes"`
	Contains    string   `yaml:"contains,omitempty"`
	KeyParam    string   `yaml:"key_param,omitempty"`
}

// SitesConfig is the top-level YAML sites file.
type SitesConfig struct {
	Rules []RuleConfig `yaml:"rules"`
}

// LoadSites reads interception rules from a YAML file. A missing file yields
// an error wrapping os.ErrNotExist; callers fall back to built-in rules.
func LoadSites(path string) ([]intercept.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sites config: %w", err)
	}
	var cfg SitesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("sites config: %w", err)
	}
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("sites config: at least one rule is required")
	}
	rules := make([]intercept.Rule, 0, len(cfg.Rules))
	for i, r := range cfg.Rules {
		if r.Name == "" {
			return nil, fmt.Errorf("sites config: rules[%d] missing name", i)
		}
		if len(r.URLPrefixes) == 0 {
			return nil, fmt.Errorf("sites config: rules[%d] (%s) missing url_prefixes", i, r.Name)
		}
		rules = append(rules, intercept.Rule{
			Name:        r.Name,
			URLPrefixes: r.URLPrefixes,
			Contains:    r.Contains,
			KeyParam:    r.KeyParam,
		})
	}
	return rules, nil
}
