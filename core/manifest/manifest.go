// Package manifest loads declarative role manifests.
//
// A manifest names classes, roles and applications in YAML. Method and
// advice bodies are tracing stubs identified by implementation ids: equal
// ids share one implementation, so roles that name the same id for a
// method do not conflict.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the root document.
type Manifest struct {
	Classes      []ClassDef       `yaml:"classes"`
	Roles        []RoleDef        `yaml:"roles"`
	Applications []ApplicationDef `yaml:"applications"`
}

// ClassDef declares a root consumer class.
type ClassDef struct {
	Name    string            `yaml:"name"`
	Methods map[string]string `yaml:"methods"` // method -> implementation id
}

// RoleDef declares a role.
type RoleDef struct {
	Name     string              `yaml:"name"`
	Methods  map[string]string   `yaml:"methods"`
	Requires []string            `yaml:"requires"`
	With     []string            `yaml:"with"`
	Before   map[string][]string `yaml:"before"`
	After    map[string][]string `yaml:"after"`
	Around   map[string][]string `yaml:"around"`
}

// ApplicationDef applies roles to a class or to an earlier application.
type ApplicationDef struct {
	Name  string   `yaml:"name"`
	Class string   `yaml:"class"`
	Roles []string `yaml:"roles"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest and validates its names. Unknown fields are
// rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	classNames := make(map[string]bool)
	for i, c := range m.Classes {
		if c.Name == "" {
			return fmt.Errorf("classes[%d]: name is required", i)
		}
		if classNames[c.Name] {
			return fmt.Errorf("class %q declared twice", c.Name)
		}
		classNames[c.Name] = true
	}

	roleNames := make(map[string]bool)
	for i, r := range m.Roles {
		if r.Name == "" {
			return fmt.Errorf("roles[%d]: name is required", i)
		}
		if roleNames[r.Name] {
			return fmt.Errorf("role %q declared twice", r.Name)
		}
		roleNames[r.Name] = true
	}

	for i, a := range m.Applications {
		if a.Name == "" {
			return fmt.Errorf("applications[%d]: name is required", i)
		}
		if classNames[a.Name] {
			return fmt.Errorf("application %q reuses a class name", a.Name)
		}
		classNames[a.Name] = true
		if a.Class == "" {
			return fmt.Errorf("application %q: class is required", a.Name)
		}
		if len(a.Roles) == 0 {
			return fmt.Errorf("application %q: at least one role is required", a.Name)
		}
	}
	return nil
}
