package prompt

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Type selects which analysis a template drives.
type Type int

const (
	Tuning Type = iota
	CodeReview
)

func (t Type) String() string {
	if t == CodeReview {
		return "review"
	}
	return "tuning"
}

func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "tuning":
		return Tuning, nil
	case "review", "codereview":
		return CodeReview, nil
	}
	return Tuning, fmt.Errorf("invalid analysis type %q: must be \"tuning\" or \"review\"", s)
}

// Template is an instruction preamble for one analysis type. Bodies are
// never modified at assembly time.
type Template struct {
	Name    string
	Type    Type
	Body    string
	Builtin bool
}

const DefaultTemplateName = "default"

// Registry resolves templates by name and type. User definitions override
// built-ins with the same name and type.
type Registry struct {
	templates map[string]Template
}

func templateKey(name string, t Type) string {
	return strings.ToLower(name) + "/" + t.String()
}

func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]Template)}
	for _, t := range builtins {
		r.templates[templateKey(t.Name, t.Type)] = t
	}
	return r
}

// LoadUserFile merges template definitions from a YAML file. A missing
// file is not an error.
func (r *Registry) LoadUserFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading templates %s: %w", path, err)
	}

	var file struct {
		Templates []struct {
			Name string `yaml:"name"`
			Type string `yaml:"type"`
			Body string `yaml:"body"`
		} `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing templates %s: %w", path, err)
	}

	for _, ft := range file.Templates {
		if ft.Name == "" || ft.Body == "" {
			return fmt.Errorf("template in %s missing name or body", path)
		}
		typ, err := ParseType(ft.Type)
		if err != nil {
			return fmt.Errorf("template %q: %w", ft.Name, err)
		}
		r.templates[templateKey(ft.Name, typ)] = Template{Name: ft.Name, Type: typ, Body: ft.Body}
	}
	return nil
}

// Lookup returns the named template for the given analysis type. An empty
// name resolves to the built-in default.
func (r *Registry) Lookup(name string, t Type) (Template, error) {
	if name == "" {
		name = DefaultTemplateName
	}
	tpl, ok := r.templates[templateKey(name, t)]
	if !ok {
		return Template{}, fmt.Errorf("template %q not found for %s analysis", name, t)
	}
	return tpl, nil
}

// List returns all registered templates sorted by type then name.
func (r *Registry) List() []Template {
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}
