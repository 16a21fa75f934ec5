// Package timeline loads the object lists declared by a timeline.
//
// The engine only needs the ordered worksheets and the name of each object;
// keyframe curves are evaluated by the external timeline clock and arrive as
// events.
package timeline

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyTimeline is returned when a timeline declares no worksheets.
var ErrEmptyTimeline = errors.New("timeline: no worksheets")

// Object is one timeline-controlled object.
type Object struct {
	Name string `yaml:"name" json:"name"`
}

// Worksheet is an ordered group of objects.
type Worksheet struct {
	Name    string   `yaml:"name" json:"name"`
	Objects []Object `yaml:"objects" json:"objects"`
}

// Data is the parsed timeline.
type Data struct {
	Name       string      `yaml:"name" json:"name"`
	Worksheets []Worksheet `yaml:"worksheets" json:"worksheets"`
}

// ObjectNames returns every non-empty object name in worksheet order,
// keeping the first occurrence of duplicates.
func (d *Data) ObjectNames() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, ws := range d.Worksheets {
		for _, obj := range ws.Objects {
			name := strings.TrimSpace(obj.Name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Load reads a timeline file.
func Load(path string) (*Data, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading timeline: %w", err)
	}
	return Parse(raw)
}

// Parse decodes timeline YAML (JSON is accepted as a YAML subset).
func Parse(raw []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing timeline: %w", err)
	}
	if len(d.Worksheets) == 0 {
		return nil, ErrEmptyTimeline
	}
	return &d, nil
}
