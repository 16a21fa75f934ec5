package stage

import (
	"fmt"
	"strconv"
)

// ObjectLister supplies the timeline's declared object names in order.
type ObjectLister interface {
	ObjectNames() []string
}

// Options tunes engine behaviour. The zero value is usable.
type Options struct {
	// InvertVisibility flips the render flag applied to the resolved node.
	// Propagation always receives the raw flag.
	InvertVisibility bool

	// HandFanMarker selects objects that attach to the right-hand joint
	// instead of the character root. It must appear as a whole token of the
	// object name (split on non-alphanumerics), ignoring case.
	HandFanMarker string

	// RightHandJoint is the joint used for hand fans.
	RightHandJoint string

	// Naming configures the resolver markers.
	Naming Naming
}

// Default marker and joint for hand-held fans.
const (
	DefaultHandFanMarker  = "fan"
	DefaultRightHandJoint = "Hand_Attach_R"
)

func (o Options) withDefaults() Options {
	if o.HandFanMarker == "" {
		o.HandFanMarker = DefaultHandFanMarker
	}
	if o.RightHandJoint == "" {
		o.RightHandJoint = DefaultRightHandJoint
	}
	o.Naming = o.Naming.withDefaults()
	return o
}

// Deps are the collaborators injected into an Engine.
// Only Registry is required; nil tables are created empty.
type Deps struct {
	Registry  *Registry
	Props     *PropIndex
	Mapping   *MappingTable
	Units     *UnitTable
	Rig       Rig
	Assets    AssetResolver
	StageRoot Node
	Options   Options
	Logger    Logger
	Observer  Observer
}

// Engine applies timeline keyframes to the scene.
//
// It resolves each event's target, sets visibility, propagates it to
// secondary props, reparents, and writes the enabled transform channels.
// Every step sets absolute state, so replaying or rewinding the event stream
// converges to the same result.
//
// Thread Safety: not safe for concurrent use. Serialize all calls.
type Engine struct {
	registry *Registry
	props    *PropIndex
	mapping  *MappingTable
	units    *UnitTable
	rig      Rig
	resolver *Resolver
	attacher *PropAttacher
	legacy   []MappingRule
	opts     Options
	report   reporter
}

// NewEngine creates an engine from deps.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Registry == nil {
		return nil, ErrNoRegistry
	}
	opts := deps.Options.withDefaults()
	report := newReporter(deps.Logger, deps.Observer)

	props := deps.Props
	if props == nil {
		props = NewPropIndex()
	}
	mapping := deps.Mapping
	if mapping == nil {
		mapping = NewMappingTable(report.logger)
	}
	units := deps.Units
	if units == nil {
		units = NewUnitTable()
	}

	return &Engine{
		registry: deps.Registry,
		props:    props,
		mapping:  mapping,
		units:    units,
		rig:      deps.Rig,
		resolver: NewResolver(deps.Registry, opts.Naming),
		attacher: NewPropAttacher(deps.Registry, props, deps.Assets, deps.StageRoot, report.logger, report.observer),
		legacy:   DefaultRules(),
		opts:     opts,
		report:   report,
	}, nil
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Props returns the prop instance index.
func (e *Engine) Props() *PropIndex { return e.props }

// Mapping returns the timeline prop mapping table.
func (e *Engine) Mapping() *MappingTable { return e.mapping }

// Units returns the unit table.
func (e *Engine) Units() *UnitTable { return e.units }

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// HandleObjectUpdate applies one object keyframe.
//
// Returns ErrObjectNotFound when the name does not resolve; in that case no
// state changes. Attach-target misses are reported but the visibility and
// transform parts of the event are still applied.
func (e *Engine) HandleObjectUpdate(ev ObjectUpdateEvent) (Result, error) {
	res := e.resolver.Explain(ev.Name)
	if !res.Found() {
		e.report.miss(MissObject, ev.Name, ErrObjectNotFound.Error(), res.Searched...)
		return Result{}, fmt.Errorf("%w: %q", ErrObjectNotFound, ev.Name)
	}
	node := res.Node

	visible := ev.RenderEnable
	if e.opts.InvertVisibility {
		visible = !visible
	}
	node.SetActive(visible)

	prop := e.Propagate(node.Name(), ev.RenderEnable)

	reparented := false
	if target, ok := e.resolveParent(res.Key, node, ev); ok && node.Parent() != target {
		node.SetParent(target)
		// Scene backends may refuse a parent, e.g. one that would form a cycle.
		if reparented = node.Parent() == target; !reparented {
			e.report.miss(MissAttachTarget, ev.Name, "parent change rejected", nodeName(target))
		}
	}

	ev.Channels.apply(node)

	return Result{
		Node:        node.Name(),
		Strategy:    res.Strategy,
		Reparented:  reparented,
		Propagation: prop,
		State:       StateOf(node),
	}, nil
}

// resolveParent returns the parent node requested by ev. ok is false when the
// target cannot be resolved, in which case the node stays where it is.
func (e *Engine) resolveParent(key string, node Node, ev ObjectUpdateEvent) (Node, bool) {
	switch ev.AttachTarget {
	case AttachCharacter:
		loc := e.locator(ev.CharacterPosition)
		if loc == nil {
			e.report.miss(MissLocator, ev.Name, ErrLocatorNotFound.Error(), strconv.Itoa(ev.CharacterPosition))
			return nil, false
		}
		if hasNameToken(node.Name(), e.opts.HandFanMarker) {
			if hand := loc.Joint(e.opts.RightHandJoint); hand != nil {
				return hand, true
			}
			e.report.miss(MissJoint, ev.Name,
				fmt.Sprintf("%v on character %d, using root", ErrJointNotFound, ev.CharacterPosition),
				e.opts.RightHandJoint)
		}
		root := loc.Root()
		if root == nil {
			e.report.miss(MissAttachTarget, ev.Name, "character has no root", strconv.Itoa(ev.CharacterPosition))
			return nil, false
		}
		return root, true

	case AttachCamera:
		var cam Node
		if e.rig != nil {
			cam = e.rig.Camera()
		}
		if cam == nil {
			e.report.miss(MissAttachTarget, ev.Name, "no main camera", AttachCamera.String())
			return nil, false
		}
		return cam, true

	default:
		return e.registry.OriginalParent(key), true
	}
}

func (e *Engine) locator(position int) CharacterLocator {
	if e.rig == nil {
		return nil
	}
	return e.rig.Locator(position)
}

// Propagate sets the visibility of the secondary props tied to source.
//
// Tiers are tried in order and the first that acts wins:
//  1. direct: source is itself a props name with instances
//  2. mapping: every matching MappingTable record, with inversion applied
//  3. legacy: the built-in vocal stand and percussion pairs
func (e *Engine) Propagate(source string, raw bool) PropagationResult {
	if e.props.HasName(source) {
		return PropagationResult{
			Tier:     TierDirect,
			Affected: e.props.SetVisibleByName(source, raw),
		}
	}

	if records := e.mapping.Match(source); len(records) > 0 {
		return PropagationResult{
			Tier:     TierMapping,
			Affected: e.applyRecords(source, records, raw),
			Records:  records,
		}
	}

	var legacy []Mapping
	for _, rule := range e.legacy {
		legacy = append(legacy, rule.Emit(NormalizeName(source))...)
	}
	if len(legacy) > 0 {
		return PropagationResult{
			Tier:     TierLegacy,
			Affected: e.applyRecords(source, legacy, raw),
			Records:  legacy,
		}
	}
	return PropagationResult{}
}

func (e *Engine) applyRecords(source string, records []Mapping, raw bool) int {
	affected := 0
	for _, m := range records {
		visible := m.Effective(raw)
		var n int
		var target string
		if m.TargetMajorID > 0 {
			n = e.props.SetVisibleByMajor(m.TargetMajorID, visible)
			target = "major:" + strconv.Itoa(m.TargetMajorID)
		} else {
			n = e.props.SetVisibleByName(m.TargetPropsName, visible)
			target = "props:" + m.TargetPropsName
		}
		if n == 0 {
			e.report.miss(MissProp, source, ErrPropNotFound.Error(), target)
		}
		affected += n
	}
	return affected
}

// HandleTransformUpdate applies one unit keyframe to every member that is
// still registered. Only transform channels are touched.
//
// Returns ErrUnitNotFound, without changing anything, for an unknown unit.
func (e *Engine) HandleTransformUpdate(ev TransformUpdateEvent) (int, error) {
	unit, ok := e.units.Get(ev.UnitName)
	if !ok {
		e.report.logger.Debug("transform update for unknown unit", "unit", ev.UnitName)
		return 0, fmt.Errorf("%w: %q", ErrUnitNotFound, ev.UnitName)
	}
	applied := 0
	for _, child := range unit.Children {
		if child == nil || !e.registry.Contains(child.Name()) {
			continue
		}
		ev.Channels.apply(child)
		applied++
	}
	return applied, nil
}

// LoadUnits resolves unit specs against the registry and replaces the unit table.
func (e *Engine) LoadUnits(specs []UnitSpec) int {
	e.units = BuildUnits(specs, e.resolver, e.report.logger, e.report.observer)
	return e.units.Len()
}

// BuildMapping rebuilds the mapping table from the timeline's object names.
func (e *Engine) BuildMapping(data ObjectLister) []Mapping {
	if data == nil {
		return e.mapping.Build(nil)
	}
	return e.mapping.Build(data.ObjectNames())
}

// PrepareTimelineObjects forces every node the timeline references inactive
// before playback. It returns the number of nodes deactivated.
func (e *Engine) PrepareTimelineObjects(data ObjectLister) int {
	if data == nil {
		return 0
	}
	count := 0
	for _, name := range data.ObjectNames() {
		res := e.resolver.Explain(name)
		if !res.Found() {
			e.report.miss(MissObject, name, "timeline object has no scene node", res.Searched...)
			continue
		}
		res.Node.SetActive(false)
		count++
	}
	e.report.logger.Info("timeline objects prepared", "deactivated", count)
	return count
}

// AttachCharacterProps spawns the prop groups described by specs onto the
// engine's rig and stage root.
func (e *Engine) AttachCharacterProps(specs []PropGroupSpec) []Node {
	return e.attacher.AttachCharacterProps(specs, e.rig)
}

// Attacher returns the prop attacher used by AttachCharacterProps.
func (e *Engine) Attacher() *PropAttacher { return e.attacher }

// Explain reports how name resolves without changing any state.
func (e *Engine) Explain(name string) Resolution {
	return e.resolver.Explain(name)
}

// Snapshot returns the current state of the node name resolves to.
func (e *Engine) Snapshot(name string) (NodeState, error) {
	n := e.resolver.Resolve(name)
	if n == nil {
		return NodeState{}, fmt.Errorf("%w: %q", ErrObjectNotFound, name)
	}
	return StateOf(n), nil
}

// Teardown destroys every prop instance the engine spawned.
func (e *Engine) Teardown() int {
	n := e.props.Teardown()
	e.report.logger.Info("stage props released", "count", n)
	return n
}
