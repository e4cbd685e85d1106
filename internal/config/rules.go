package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ah-its-andy/sparkconvert/internal/formats"
)

// Rule maps a media type to the target watch-mode jobs get by default.
// Match is either an exact media type ("image/jpeg") or a top-level
// wildcard ("audio/*").
type Rule struct {
	Match  string `yaml:"match"`
	Target string `yaml:"target"`
}

// Rules is the watch-mode rules file.
type Rules struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads the rules file at path. An empty path yields no rules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return &Rules{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	r, err := ParseRules(data)
	if err != nil {
		return nil, err
	}
	if problems := r.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid rules file %s: %s", path, strings.Join(problems, "; "))
	}
	return r, nil
}

func ParseRules(data []byte) (*Rules, error) {
	r := &Rules{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i := range r.Rules {
		r.Rules[i].Match = strings.ToLower(strings.TrimSpace(r.Rules[i].Match))
		r.Rules[i].Target = formats.NormalizeExt(r.Rules[i].Target)
	}
	return r, nil
}

// Validate lists every rule that can never apply.
func (r *Rules) Validate() []string {
	var errors []string
	for i, rule := range r.Rules {
		if rule.Match == "" {
			errors = append(errors, fmt.Sprintf("rule %d: match is required", i+1))
			continue
		}
		if rule.Target == "" {
			errors = append(errors, fmt.Sprintf("rule %d: target is required", i+1))
			continue
		}
		if !r.applicable(rule) {
			errors = append(errors, fmt.Sprintf("rule %d: no supported type matching %q converts to %s", i+1, rule.Match, rule.Target))
		}
	}
	return errors
}

func (r *Rules) applicable(rule Rule) bool {
	for _, e := range formats.Table() {
		if matches(rule.Match, e.Source) && formats.Allows(e.Source, rule.Target) {
			return true
		}
	}
	return false
}

// TargetFor returns the first rule target usable for mt, or "".
func (r *Rules) TargetFor(mt formats.MediaType) string {
	if r == nil {
		return ""
	}
	for _, rule := range r.Rules {
		if matches(rule.Match, mt) && formats.Allows(mt, rule.Target) {
			return rule.Target
		}
	}
	return ""
}

func matches(pattern string, mt formats.MediaType) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return strings.HasPrefix(string(mt), prefix+"/")
	}
	return pattern == string(mt)
}
