package stage

import (
	"sort"
	"sync"
)

// UnitTable holds the units built from static configuration.
type UnitTable struct {
	mu    sync.RWMutex
	units map[string]Unit
}

// NewUnitTable creates a table from already-resolved units.
// Later units with a duplicate name are ignored.
func NewUnitTable(units ...Unit) *UnitTable {
	t := &UnitTable{units: make(map[string]Unit, len(units))}
	for _, u := range units {
		key := NormalizeName(u.Name)
		if key == "" {
			continue
		}
		if _, exists := t.units[key]; exists {
			continue
		}
		u.Name = key
		u.Children = cloneNodes(u.Children)
		t.units[key] = u
	}
	return t
}

// BuildUnits resolves each spec's members through resolver and returns the
// table. Unresolved members are reported and left out of the unit.
func BuildUnits(specs []UnitSpec, resolver *Resolver, logger Logger, observer Observer) *UnitTable {
	report := newReporter(logger, observer)
	units := make([]Unit, 0, len(specs))
	for _, spec := range specs {
		if NormalizeName(spec.Name) == "" {
			report.miss(MissSpec, spec.Name, "unit has no name")
			continue
		}
		u := Unit{Name: spec.Name}
		for _, member := range spec.Members {
			res := resolver.Explain(member)
			if !res.Found() {
				report.miss(MissObject, member, "unit member of "+spec.Name, res.Searched...)
				continue
			}
			u.Children = append(u.Children, res.Node)
		}
		units = append(units, u)
	}
	t := NewUnitTable(units...)
	report.logger.Info("stage units built", "units", t.Len())
	return t
}

// Get returns the unit named name.
func (t *UnitTable) Get(name string) (Unit, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.units[NormalizeName(name)]
	if !ok {
		return Unit{}, false
	}
	u.Children = cloneNodes(u.Children)
	return u, true
}

// Names returns the unit names, sorted.
func (t *UnitTable) Names() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.units))
	for k := range t.units {
		out = append(out, k)
	}
	t.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len returns the number of units.
func (t *UnitTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.units)
}
