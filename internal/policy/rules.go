package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesFile is the optional on-disk supplement to the policy config: extra
// deny-list entries and allowed-domain patterns maintained separately from
// the main config file.
type RulesFile struct {
	AllowedDomains []string `yaml:"allowedDomains"`
	DenyTools      []string `yaml:"denyTools"`
}

// LoadRules reads a YAML rules file and merges its patterns into the
// snapshot, returning the merged copy. A missing file is not an error; the
// snapshot is returned unchanged.
func LoadRules(path string, snap Snapshot) (Snapshot, error) {
	if path == "" {
		return snap, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return snap, fmt.Errorf("read rules file %s: %w", path, err)
	}

	var rules RulesFile
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return snap, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	snap.AllowedDomains = append(append([]string(nil), snap.AllowedDomains...), rules.AllowedDomains...)
	snap.DenyTools = append(append([]string(nil), snap.DenyTools...), rules.DenyTools...)
	return snap, nil
}
