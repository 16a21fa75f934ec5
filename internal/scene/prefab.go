package scene

import (
	"fmt"
	"sort"

	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

// CloneSuffix is appended to the names of instantiated prefabs.
const CloneSuffix = "(Clone)"

// Prefab is a template subtree that can be instantiated.
type Prefab struct {
	name     string
	template *Node
}

// NewPrefab wraps template. The template itself is never placed in a scene.
func NewPrefab(name string, template *Node) *Prefab {
	return &Prefab{name: name, template: template}
}

// Name implements stage.Prefab.
func (p *Prefab) Name() string { return p.name }

// Instantiate implements stage.Prefab. The copy is named after the prefab
// with CloneSuffix appended. It returns nil if the template cannot be copied.
func (p *Prefab) Instantiate() stage.Node {
	inst, err := p.template.Clone()
	if err != nil {
		return nil
	}
	inst.name = p.name + CloneSuffix
	return inst
}

// Library resolves prefabs by asset path (stage.AssetKey.String()) and falls
// back to the bare asset name.
type Library struct {
	byPath map[string]*Prefab
	byName map[string]*Prefab
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		byPath: make(map[string]*Prefab),
		byName: make(map[string]*Prefab),
	}
}

// Add registers p under path and under its name. Existing entries win.
func (l *Library) Add(path string, p *Prefab) {
	if _, ok := l.byPath[path]; !ok && path != "" {
		l.byPath[path] = p
	}
	if _, ok := l.byName[p.name]; !ok {
		l.byName[p.name] = p
	}
}

// ResolvePrefab implements stage.AssetResolver.
func (l *Library) ResolvePrefab(key stage.AssetKey) (stage.Prefab, error) {
	if p, ok := l.byPath[key.String()]; ok {
		return p, nil
	}
	if p, ok := l.byName[key.AssetName]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", stage.ErrAssetUnavailable, key)
}

// Paths returns the registered asset paths, sorted.
func (l *Library) Paths() []string {
	out := make([]string, 0, len(l.byPath))
	for k := range l.byPath {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of distinct prefab names.
func (l *Library) Len() int { return len(l.byName) }
