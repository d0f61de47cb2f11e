package loader

import (
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"
)

// ruleGroup is one named group of alerting/recording rules in the official
// rule-file format shared by the Prometheus and Loki rulers.
type ruleGroup struct {
	Name  string     `json:"name"`
	Rules []ruleNode `json:"rules"`
}

// ruleNode is a single rule definition. This is a validation view only: just
// the fields whose presence is checked are typed, and the published payload
// is the original document, so unmodeled fields pass through untouched.
type ruleNode struct {
	Alert  string `json:"alert,omitempty"`
	Record string `json:"record,omitempty"`
	Expr   string `json:"expr"`
}

// ruleFile is the official format: a list of groups.
type ruleFile struct {
	Groups []ruleGroup `json:"groups"`
}

// wrappedRuleFile is the group form built around a single bare rule. The rule
// body is kept as raw JSON so none of its fields are lost.
type wrappedRuleFile struct {
	Groups []wrappedRuleGroup `json:"groups"`
}

type wrappedRuleGroup struct {
	Name  string            `json:"name"`
	Rules []json.RawMessage `json:"rules"`
}

// LoadRules scans root/subpath for rule files and returns one record per
// file. Files in the official `groups:` format are published as-is; files
// holding a single bare rule are wrapped into a group named after the file,
// so every payload reaches the downstream ruler in group form.
func LoadRules(root, subpath string) ([]Record, []FileError, error) {
	return load(root, subpath, ruleFileExtensions, parseRuleFile)
}

func parseRuleFile(relPath string, data []byte) (Record, error) {
	name := RecordName(relPath)

	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return Record{}, fmt.Errorf("not valid YAML: %w", err)
	}

	var file ruleFile
	if err := json.Unmarshal(jsonData, &file); err == nil && len(file.Groups) > 0 {
		for i, group := range file.Groups {
			if err := validateGroup(group); err != nil {
				return Record{}, fmt.Errorf("group %d: %w", i, err)
			}
		}
		// The document is already in group form: publish it untouched.
		return Record{Name: name, Payload: jsonData}, nil
	}

	// Single-rule format: the file body is one rule definition.
	var rule ruleNode
	if err := json.Unmarshal(jsonData, &rule); err != nil {
		return Record{}, fmt.Errorf("neither a rule group file nor a single rule: %w", err)
	}
	groupName := name + "_alerts"
	if err := validateGroup(ruleGroup{Name: groupName, Rules: []ruleNode{rule}}); err != nil {
		return Record{}, err
	}

	payload, err := json.Marshal(wrappedRuleFile{Groups: []wrappedRuleGroup{{
		Name:  groupName,
		Rules: []json.RawMessage{jsonData},
	}}})
	if err != nil {
		return Record{}, err
	}
	return Record{Name: name, Payload: payload}, nil
}

func validateGroup(group ruleGroup) error {
	if group.Name == "" {
		return fmt.Errorf("rule group without a name")
	}
	if len(group.Rules) == 0 {
		return fmt.Errorf("rule group %q has no rules", group.Name)
	}
	for i, rule := range group.Rules {
		if rule.Alert == "" && rule.Record == "" {
			return fmt.Errorf("rule %d in group %q has neither 'alert' nor 'record'", i, group.Name)
		}
		if rule.Alert != "" && rule.Record != "" {
			return fmt.Errorf("rule %d in group %q has both 'alert' and 'record'", i, group.Name)
		}
		if rule.Expr == "" {
			return fmt.Errorf("rule %d in group %q has no 'expr'", i, group.Name)
		}
	}
	return nil
}
