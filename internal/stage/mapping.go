package stage

import (
	"strings"
	"sync"
)

// Markers and prop identifiers for the two built-in mapping rules.
const (
	// VocalStandMarker appears in timeline objects for the vocal performer's stand position.
	VocalStandMarker = "stand_mic"

	// MicStandPropsName is the props bucket of the microphone stand.
	MicStandPropsName = "003"

	// HandMicMajorID is the hand-held microphone. It is hidden while the stand is shown.
	HandMicMajorID = 1024

	// PercussionMarker appears in timeline objects for the drum kit.
	PercussionMarker = "drum"

	// DrumstickPropsName is the props bucket shared by both drumsticks.
	DrumstickPropsName = "005"

	// DrumstickLeftMajorID and DrumstickRightMajorID are the two drumsticks.
	DrumstickLeftMajorID  = 1031
	DrumstickRightMajorID = 1032
)

// MappingRule produces mapping records for a timeline object name.
type MappingRule interface {
	Name() string

	// Emit returns the records for name, or nil when the rule does not match.
	Emit(name string) []Mapping
}

// MappingTarget is one secondary prop driven by a PatternRule.
type MappingTarget struct {
	MajorID     int    `json:"major_id,omitempty" yaml:"major_id"`
	PropsName   string `json:"props_name,omitempty" yaml:"props_name"`
	Invert      bool   `json:"invert,omitempty" yaml:"invert"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// PatternRule matches timeline object names containing Marker
// (case-insensitive) and emits one record per target, keyed by the matched
// object name.
type PatternRule struct {
	RuleName string          `json:"name" yaml:"name"`
	Marker   string          `json:"marker" yaml:"marker"`
	Targets  []MappingTarget `json:"targets" yaml:"targets"`
}

// Name implements MappingRule.
func (r PatternRule) Name() string { return r.RuleName }

// Emit implements MappingRule.
func (r PatternRule) Emit(name string) []Mapping {
	if r.Marker == "" || !containsFold(name, r.Marker) {
		return nil
	}
	out := make([]Mapping, 0, len(r.Targets))
	for _, t := range r.Targets {
		out = append(out, Mapping{
			TimelineObjectName: name,
			TargetMajorID:      t.MajorID,
			TargetPropsName:    t.PropsName,
			InvertVisibility:   t.Invert,
			Description:        t.Description,
		})
	}
	return out
}

// DefaultRules returns the vocal stand and percussion rules.
func DefaultRules() []MappingRule {
	return []MappingRule{
		PatternRule{
			RuleName: "vocal_stand",
			Marker:   VocalStandMarker,
			Targets: []MappingTarget{
				{PropsName: MicStandPropsName, Description: "mic stand follows the stand object"},
				{MajorID: HandMicMajorID, Invert: true, Description: "hand mic hidden while at the stand"},
			},
		},
		PatternRule{
			RuleName: "percussion",
			Marker:   PercussionMarker,
			Targets: []MappingTarget{
				{MajorID: DrumstickLeftMajorID, PropsName: DrumstickPropsName, Description: "left drumstick follows the drum kit"},
				{MajorID: DrumstickRightMajorID, PropsName: DrumstickPropsName, Description: "right drumstick follows the drum kit"},
			},
		},
	}
}

// MappingTable links timeline object names to secondary props.
// Build replaces the whole table; reads are safe during a rebuild.
type MappingTable struct {
	mu      sync.RWMutex
	rules   []MappingRule
	records []Mapping
	logger  Logger
}

// NewMappingTable creates a table using rules, or DefaultRules when none are given.
func NewMappingTable(logger Logger, rules ...MappingRule) *MappingTable {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &MappingTable{rules: rules, logger: logger}
}

// Rules returns the configured rules.
func (t *MappingTable) Rules() []MappingRule {
	out := make([]MappingRule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Build evaluates every rule against every name independently and replaces
// the table. A name may match several rules; duplicate names are skipped.
func (t *MappingTable) Build(names []string) []Mapping {
	var records []Mapping
	seen := make(map[string]bool)
	for _, raw := range names {
		name := NormalizeName(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		for _, rule := range t.rules {
			recs := rule.Emit(name)
			if len(recs) == 0 {
				continue
			}
			records = append(records, recs...)
			t.logger.Debug("mapping rule matched", "rule", rule.Name(), "object", name, "records", len(recs))
		}
	}

	t.mu.Lock()
	t.records = records
	t.mu.Unlock()

	t.logger.Info("timeline prop mapping built", "objects", len(names), "records", len(records))
	return cloneMappings(records)
}

// Match returns every record whose timeline object name equals source,
// contains it, or is contained in it. Comparison ignores case.
func (t *MappingTable) Match(source string) []Mapping {
	src := strings.ToLower(NormalizeName(source))
	if src == "" {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Mapping
	for _, m := range t.records {
		name := strings.ToLower(m.TimelineObjectName)
		if name == "" {
			continue
		}
		if name == src || strings.Contains(src, name) || strings.Contains(name, src) {
			out = append(out, m)
		}
	}
	return out
}

// Records returns a copy of the current table.
func (t *MappingTable) Records() []Mapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return cloneMappings(t.records)
}

// Len returns the number of records.
func (t *MappingTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

func cloneMappings(in []Mapping) []Mapping {
	if len(in) == 0 {
		return nil
	}
	out := make([]Mapping, len(in))
	copy(out, in)
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
