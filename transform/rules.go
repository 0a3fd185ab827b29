// Package transform implements the page transform pipeline: declarative
// cleanup rules, link fixing, placeholder injection, serialization and
// minification. It consumes the document after the mirror engine has
// rewritten asset attributes.
package transform

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rulesets/*.yaml
var rulesetFS embed.FS

// Action names accepted in a cleanup rule.
const (
	ActionRemove    = "remove"
	ActionStripAttr = "strip_attr"
	ActionSetAttr   = "set_attr"
)

// Rule is one selector→action cleanup entry.
type Rule struct {
	Selector string `yaml:"selector"`
	Action   string `yaml:"action"`
	Attr     string `yaml:"attr,omitempty"`
	Value    string `yaml:"value,omitempty"`
}

// PlaceholderTargets declares where caller-supplied fragments are injected.
type PlaceholderTargets struct {
	// Title is the selector whose text content is replaced.
	Title string `yaml:"title"`
	// Head is the selector the head fragment is appended into.
	Head string `yaml:"head"`
	// Body is the selector the body fragment is appended into.
	Body string `yaml:"body"`
}

// Ruleset is a versioned selector/namespace table. The source site's markup
// has changed over time, so rulesets ship side by side and the caller picks
// one; none is canonical.
type Ruleset struct {
	Version int    `yaml:"version"`
	Name    string `yaml:"name"`
	// Namespaces are the asset path prefixes eligible for mirroring under
	// this variant.
	Namespaces []string `yaml:"namespaces"`
	// ExpectTitle, when set, is a substring the page <title> must contain.
	// A mismatch means the markup-cleanup rules no longer apply and the run
	// aborts.
	ExpectTitle string `yaml:"expect_title,omitempty"`
	// AbsolutizeLinks rewrites same-origin page links that are not mirrored
	// into absolute links back to the original site.
	AbsolutizeLinks bool               `yaml:"absolutize_links"`
	Cleanup         []Rule             `yaml:"cleanup"`
	Placeholders    PlaceholderTargets `yaml:"placeholders"`
}

func (rs *Ruleset) validate() error {
	if rs.Name == "" {
		return fmt.Errorf("ruleset: missing name")
	}
	if len(rs.Namespaces) == 0 {
		return fmt.Errorf("ruleset %s: no namespaces", rs.Name)
	}
	for _, r := range rs.Cleanup {
		switch r.Action {
		case ActionRemove:
		case ActionStripAttr, ActionSetAttr:
			if r.Attr == "" {
				return fmt.Errorf("ruleset %s: %s rule for %q needs attr", rs.Name, r.Action, r.Selector)
			}
		default:
			return fmt.Errorf("ruleset %s: unknown action %q", rs.Name, r.Action)
		}
		if r.Selector == "" {
			return fmt.Errorf("ruleset %s: rule with empty selector", rs.Name)
		}
	}
	return nil
}

// LoadRuleset returns a built-in ruleset by name.
func LoadRuleset(name string) (*Ruleset, error) {
	data, err := rulesetFS.ReadFile("rulesets/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown ruleset %q (available: %s)", name, strings.Join(Rulesets(), ", "))
	}
	return parseRuleset(data)
}

// LoadRulesetFile reads a ruleset from a YAML file on disk, for variants
// maintained outside the binary.
func LoadRulesetFile(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseRuleset(data)
}

// Rulesets lists the built-in ruleset names, sorted.
func Rulesets() []string {
	entries, err := fs.ReadDir(rulesetFS, "rulesets")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

func parseRuleset(data []byte) (*Ruleset, error) {
	rs := &Ruleset{}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("parse ruleset: %w", err)
	}
	if err := rs.validate(); err != nil {
		return nil, err
	}
	return rs, nil
}
