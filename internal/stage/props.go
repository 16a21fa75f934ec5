package stage

import (
	"sort"
	"sync"
)

// PropIndex tracks spawned prop instances under two keys: the props name and,
// when nonzero, the major id. One instance may appear under both.
//
// Lookups return copies so callers cannot desynchronize the two indexes.
// Every owned instance is destroyed by Teardown.
type PropIndex struct {
	mu      sync.RWMutex
	byName  map[string][]Node
	byMajor map[int][]Node
	owned   []Node
}

// NewPropIndex creates an empty index.
func NewPropIndex() *PropIndex {
	return &PropIndex{
		byName:  make(map[string][]Node),
		byMajor: make(map[int][]Node),
	}
}

// Add indexes an owned instance under propsName and majorID (if > 0).
func (p *PropIndex) Add(propsName string, majorID int, n Node) {
	if n == nil {
		return
	}
	key := NormalizeName(propsName)

	p.mu.Lock()
	defer p.mu.Unlock()

	if key != "" {
		p.byName[key] = append(p.byName[key], n)
	}
	if majorID > 0 {
		p.byMajor[majorID] = append(p.byMajor[majorID], n)
	}
	p.owned = append(p.owned, n)
}

// ByName returns the instances registered under propsName.
func (p *PropIndex) ByName(propsName string) []Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneNodes(p.byName[NormalizeName(propsName)])
}

// ByMajor returns the instances registered under majorID.
func (p *PropIndex) ByMajor(majorID int) []Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneNodes(p.byMajor[majorID])
}

// HasName reports whether any instance is registered under propsName.
func (p *PropIndex) HasName(propsName string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byName[NormalizeName(propsName)]) > 0
}

// SetVisibleByName sets every instance under propsName active or inactive.
// It returns the number of instances touched.
func (p *PropIndex) SetVisibleByName(propsName string, visible bool) int {
	return setActive(p.ByName(propsName), visible)
}

// SetVisibleByMajor sets every instance under majorID active or inactive.
func (p *PropIndex) SetVisibleByMajor(majorID int, visible bool) int {
	return setActive(p.ByMajor(majorID), visible)
}

// Names returns the indexed props names, sorted.
func (p *PropIndex) Names() []string {
	p.mu.RLock()
	out := make([]string, 0, len(p.byName))
	for k := range p.byName {
		out = append(out, k)
	}
	p.mu.RUnlock()
	sort.Strings(out)
	return out
}

// MajorIDs returns the indexed major ids, sorted.
func (p *PropIndex) MajorIDs() []int {
	p.mu.RLock()
	out := make([]int, 0, len(p.byMajor))
	for k := range p.byMajor {
		out = append(out, k)
	}
	p.mu.RUnlock()
	sort.Ints(out)
	return out
}

// Len returns the number of owned instances.
func (p *PropIndex) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.owned)
}

// Teardown destroys every owned instance that implements Destroyer and
// clears both indexes. It returns the number of instances released.
func (p *PropIndex) Teardown() int {
	p.mu.Lock()
	owned := p.owned
	p.owned = nil
	p.byName = make(map[string][]Node)
	p.byMajor = make(map[int][]Node)
	p.mu.Unlock()

	for _, n := range owned {
		if d, ok := n.(Destroyer); ok {
			d.Destroy()
		}
	}
	return len(owned)
}

func cloneNodes(in []Node) []Node {
	if len(in) == 0 {
		return nil
	}
	out := make([]Node, len(in))
	copy(out, in)
	return out
}

func setActive(nodes []Node, visible bool) int {
	for _, n := range nodes {
		n.SetActive(visible)
	}
	return len(nodes)
}
