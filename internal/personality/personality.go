// Package personality loads the twin's static personality descriptor and
// renders it as the first, never-truncated context block.
package personality

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Trait is one named trait value in [0,1].
type Trait struct {
	Name  string
	Value float64
}

// Traits preserves the order in which traits were declared.
type Traits []Trait

// UnmarshalYAML reads a mapping while keeping its key order.
func (t *Traits) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: traits must be a mapping", node.Line)
	}
	out := make(Traits, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var v float64
		if err := node.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("trait %q: %w", node.Content[i].Value, err)
		}
		out = append(out, Trait{Name: node.Content[i].Value, Value: v})
	}
	*t = out
	return nil
}

// MarshalYAML writes traits back as an ordered mapping.
func (t Traits) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, tr := range t {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: tr.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: fmt.Sprintf("%g", tr.Value)},
		)
	}
	return node, nil
}

// Get returns a trait value by name.
func (t Traits) Get(name string) (float64, bool) {
	for _, tr := range t {
		if tr.Name == name {
			return tr.Value, true
		}
	}
	return 0, false
}

// Mode is a named context overlay.
type Mode struct {
	Description string             `yaml:"description"`
	Adjustments map[string]float64 `yaml:"adjustments"`
	Topics      []string           `yaml:"topics"`
	Greeting    string             `yaml:"greeting"`
}

// Descriptor is the twin's static personality. It is read once and never
// mutated; ForMode returns a new value.
type Descriptor struct {
	Name               string          `yaml:"name"`
	Traits             Traits          `yaml:"traits"`
	CommunicationStyle string          `yaml:"communication_style"`
	Phrases            []string        `yaml:"phrases"`
	Values             []string        `yaml:"values"`
	Interests          []string        `yaml:"interests"`
	Expertise          []string        `yaml:"expertise"`
	Projects           []string        `yaml:"projects"`
	Quirks             []string        `yaml:"quirks"`
	Modes              map[string]Mode `yaml:"modes"`

	// Active is the mode applied by ForMode, empty for the base descriptor.
	Active string `yaml:"-"`
}

// Load reads a descriptor from a YAML file.
func Load(path string) (*Descriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personality: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML descriptor.
func Parse(b []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse personality: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks trait ranges and mode adjustments.
func (d *Descriptor) Validate() error {
	seen := map[string]bool{}
	for _, tr := range d.Traits {
		if tr.Value < 0 || tr.Value > 1 {
			return fmt.Errorf("trait %q: value %v outside [0,1]", tr.Name, tr.Value)
		}
		if seen[tr.Name] {
			return fmt.Errorf("trait %q declared twice", tr.Name)
		}
		seen[tr.Name] = true
	}
	for name, m := range d.Modes {
		for trait, v := range m.Adjustments {
			if v < 0 || v > 1 {
				return fmt.Errorf("mode %q: trait %q: value %v outside [0,1]", name, trait, v)
			}
		}
	}
	return nil
}

// ModeNames returns the declared mode names, sorted.
func (d *Descriptor) ModeNames() []string {
	names := make([]string, 0, len(d.Modes))
	for n := range d.Modes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ForMode returns a copy with the named mode's trait values applied.
// Adjusted traits keep their position; traits only the mode names are
// appended in sorted order. An unknown or empty mode returns the
// descriptor unchanged.
func (d *Descriptor) ForMode(name string) *Descriptor {
	m, ok := d.Modes[name]
	if name == "" || !ok {
		return d
	}

	out := *d
	out.Active = name
	out.Traits = make(Traits, len(d.Traits))
	copy(out.Traits, d.Traits)

	applied := map[string]bool{}
	for i, tr := range out.Traits {
		if v, ok := m.Adjustments[tr.Name]; ok {
			out.Traits[i].Value = v
			applied[tr.Name] = true
		}
	}
	var extra []string
	for trait := range m.Adjustments {
		if !applied[trait] {
			extra = append(extra, trait)
		}
	}
	sort.Strings(extra)
	for _, trait := range extra {
		out.Traits = append(out.Traits, Trait{Name: trait, Value: m.Adjustments[trait]})
	}
	return &out
}

// Greeting returns the active mode's greeting, if any.
func (d *Descriptor) Greeting() string {
	if d.Active == "" {
		return ""
	}
	return d.Modes[d.Active].Greeting
}

// Render formats the descriptor as a context block.
func (d *Descriptor) Render() string {
	var b strings.Builder
	if d.Name != "" {
		fmt.Fprintf(&b, "You are %s's digital twin.\n", d.Name)
	} else {
		b.WriteString("You are a digital twin.\n")
	}

	if len(d.Traits) > 0 {
		b.WriteString("\nCore traits:\n")
		for _, tr := range d.Traits {
			fmt.Fprintf(&b, "- %s: %.2f\n", tr.Name, tr.Value)
		}
	}
	if d.CommunicationStyle != "" {
		fmt.Fprintf(&b, "\nCommunication style: %s\n", d.CommunicationStyle)
	}
	writeList(&b, "Values", d.Values)
	writeList(&b, "Interests", d.Interests)
	writeList(&b, "Expertise", d.Expertise)
	writeList(&b, "Current projects", d.Projects)
	writeBullets(&b, "Speech patterns", d.Phrases)
	writeBullets(&b, "Quirks", d.Quirks)

	if m, ok := d.Modes[d.Active]; ok && d.Active != "" {
		fmt.Fprintf(&b, "\nCurrent mode: %s\n", d.Active)
		if m.Description != "" {
			b.WriteString(m.Description + "\n")
		}
		writeBullets(&b, "Available topics", m.Topics)
	}

	b.WriteString("\nAlways respond in a way that reflects these traits consistently.")
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, ", "))
}

func writeBullets(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", label)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

// Default is the descriptor used when no file is configured.
func Default() *Descriptor {
	return &Descriptor{
		Traits: Traits{
			{Name: "openness", Value: 0.8},
			{Name: "conscientiousness", Value: 0.7},
			{Name: "extraversion", Value: 0.6},
			{Name: "agreeableness", Value: 0.75},
			{Name: "neuroticism", Value: 0.3},
		},
		CommunicationStyle: "warm and direct",
		Values:             []string{"honesty", "curiosity"},
	}
}
