package stage

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// AttachTarget selects where an object is parented for the current keyframe.
type AttachTarget int

// Attach targets carried by ObjectUpdateEvent.
const (
	// AttachNone restores the parent recorded at registration time.
	AttachNone AttachTarget = iota

	// AttachCharacter parents to a character root (or hand joint for hand fans).
	AttachCharacter

	// AttachCamera parents to the main camera.
	AttachCamera
)

// String returns the wire name of the attach target.
func (a AttachTarget) String() string {
	switch a {
	case AttachNone:
		return "none"
	case AttachCharacter:
		return "character"
	case AttachCamera:
		return "camera"
	default:
		return fmt.Sprintf("attach(%d)", int(a))
	}
}

// ParseAttachTarget parses a wire name. Unknown values map to AttachNone.
func ParseAttachTarget(s string) AttachTarget {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "character", "chara":
		return AttachCharacter
	case "camera":
		return AttachCamera
	default:
		return AttachNone
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a AttachTarget) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AttachTarget) UnmarshalText(b []byte) error {
	*a = ParseAttachTarget(string(b))
	return nil
}

// Channels is the enable-gated local transform carried by keyframe events.
// Rotation is in Euler degrees, applied Z then X then Y.
type Channels struct {
	EnablePosition bool       `json:"enable_position,omitempty"`
	EnableRotate   bool       `json:"enable_rotate,omitempty"`
	EnableScale    bool       `json:"enable_scale,omitempty"`
	Position       mgl64.Vec3 `json:"position"`
	Rotation       mgl64.Vec3 `json:"rotation"`
	Scale          mgl64.Vec3 `json:"scale"`
}

// Quat converts the Euler rotation to a quaternion.
func (c Channels) Quat() mgl64.Quat {
	return EulerToQuat(c.Rotation)
}

// apply writes every enabled channel to n. Disabled channels keep their
// last-set value.
func (c Channels) apply(n Node) {
	if c.EnablePosition {
		n.SetLocalPosition(c.Position)
	}
	if c.EnableRotate {
		n.SetLocalRotation(c.Quat())
	}
	if c.EnableScale {
		n.SetLocalScale(c.Scale)
	}
}

// EulerToQuat converts Euler angles in degrees (x, y, z) to a quaternion.
func EulerToQuat(deg mgl64.Vec3) mgl64.Quat {
	return mgl64.AnglesToQuat(
		mgl64.DegToRad(deg.Y()),
		mgl64.DegToRad(deg.X()),
		mgl64.DegToRad(deg.Z()),
		mgl64.YXZ,
	)
}

// ObjectUpdateEvent is one keyframe for a named timeline object.
type ObjectUpdateEvent struct {
	Name              string       `json:"name"`
	RenderEnable      bool         `json:"render_enable"`
	AttachTarget      AttachTarget `json:"attach_target"`
	CharacterPosition int          `json:"character_position"`
	Channels
}

// TransformUpdateEvent is one keyframe for a unit.
type TransformUpdateEvent struct {
	UnitName string `json:"unit_name"`
	Channels
}

// Condition type values.
const (
	// ConditionCharaPosition restricts a prop to the listed character slots.
	ConditionCharaPosition = "CharaPosition"
)

// Condition is one entry of a prop group's condition set.
type Condition struct {
	Type  string `json:"type" yaml:"type"`
	Value int    `json:"value" yaml:"value"`
}

// PropGroupSpec is authored data describing one prop group.
type PropGroupSpec struct {
	PropsName       string      `json:"props_name" yaml:"props_name"`
	IsCharacterProp bool        `json:"is_character_prop" yaml:"is_character_prop"`
	MajorID         int         `json:"major_id" yaml:"major_id"`
	MinorID         int         `json:"minor_id" yaml:"minor_id"`
	AttachJoints    []string    `json:"attach_joints,omitempty" yaml:"attach_joints"`
	Conditions      []Condition `json:"conditions,omitempty" yaml:"conditions"`
}

// Validate checks required fields.
func (s PropGroupSpec) Validate() error {
	if strings.TrimSpace(s.PropsName) == "" {
		return fmt.Errorf("%w: empty props name", ErrMalformedSpec)
	}
	if s.MajorID < 0 || s.MinorID < 0 {
		return fmt.Errorf("%w: negative id for %q", ErrMalformedSpec, s.PropsName)
	}
	if s.IsCharacterProp && len(s.AttachJoints) == 0 {
		return fmt.Errorf("%w: character prop %q has no attach joints", ErrMalformedSpec, s.PropsName)
	}
	return nil
}

// TargetPositions returns the union of all CharaPosition values, in first-seen
// order. An empty result means every character.
func (s PropGroupSpec) TargetPositions() []int {
	var out []int
	seen := make(map[int]bool)
	for _, c := range s.Conditions {
		if c.Type != ConditionCharaPosition || seen[c.Value] {
			continue
		}
		seen[c.Value] = true
		out = append(out, c.Value)
	}
	return out
}

// Mapping ties a timeline object to a secondary prop.
// TargetMajorID > 0 selects the majorId index, otherwise TargetPropsName is used.
type Mapping struct {
	TimelineObjectName string `json:"timeline_object_name"`
	TargetMajorID      int    `json:"target_major_id,omitempty"`
	TargetPropsName    string `json:"target_props_name,omitempty"`
	InvertVisibility   bool   `json:"invert_visibility"`
	Description        string `json:"description,omitempty"`
}

// Effective returns the visibility this record applies for a raw value.
func (m Mapping) Effective(raw bool) bool {
	if m.InvertVisibility {
		return !raw
	}
	return raw
}

// UnitSpec is static configuration for a unit: its name and member node names.
type UnitSpec struct {
	Name    string   `json:"name" yaml:"name"`
	Members []string `json:"members" yaml:"members"`
}

// Unit is a named group of nodes sharing transform updates.
type Unit struct {
	Name     string
	Children []Node
}

// Tier identifies which propagation tier acted.
type Tier string

// Propagation tiers in precedence order.
const (
	TierNone    Tier = ""
	TierDirect  Tier = "direct"
	TierMapping Tier = "mapping"
	TierLegacy  Tier = "legacy"
)

// PropagationResult describes one propagation call.
type PropagationResult struct {
	Tier     Tier      `json:"tier,omitempty"`
	Affected int       `json:"affected"`
	Records  []Mapping `json:"records,omitempty"`
}

// NodeState is a point-in-time view of a node for diagnostics.
type NodeState struct {
	Name          string     `json:"name"`
	Parent        string     `json:"parent,omitempty"`
	Active        bool       `json:"active"`
	LocalPosition mgl64.Vec3 `json:"local_position"`
	LocalRotation [4]float64 `json:"local_rotation"` // w, x, y, z
	LocalScale    mgl64.Vec3 `json:"local_scale"`
}

// StateOf captures the current state of n.
func StateOf(n Node) NodeState {
	q := n.LocalRotation()
	return NodeState{
		Name:          n.Name(),
		Parent:        nodeName(n.Parent()),
		Active:        n.Active(),
		LocalPosition: n.LocalPosition(),
		LocalRotation: [4]float64{q.W, q.V.X(), q.V.Y(), q.V.Z()},
		LocalScale:    n.LocalScale(),
	}
}

// Result is the outcome of HandleObjectUpdate.
type Result struct {
	// Node is the resolved node name.
	Node string `json:"node"`

	// Strategy is the resolver strategy that found the node.
	Strategy string `json:"strategy"`

	// Reparented reports whether the parent changed.
	Reparented bool `json:"reparented"`

	Propagation PropagationResult `json:"propagation"`
	State       NodeState         `json:"state"`
}
