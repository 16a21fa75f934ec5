package stage

import (
	"errors"
	"fmt"
	"strconv"
)

// PropAttacher spawns prop instances and indexes them for visibility control.
type PropAttacher struct {
	registry  *Registry
	props     *PropIndex
	assets    AssetResolver
	stageRoot Node
	report    reporter
}

// NewPropAttacher creates an attacher.
//
// Parameters:
//   - registry: receives stage props spawned under stageRoot
//   - props: index that owns every spawned instance
//   - assets: prefab source for AttachCharacterProps (may be nil when only Attach is used)
//   - stageRoot: parent for standalone stage props (may be nil)
func NewPropAttacher(registry *Registry, props *PropIndex, assets AssetResolver, stageRoot Node, logger Logger, observer Observer) *PropAttacher {
	return &PropAttacher{
		registry:  registry,
		props:     props,
		assets:    assets,
		stageRoot: stageRoot,
		report:    newReporter(logger, observer),
	}
}

// Attach clones prefab onto the characters selected by spec.
//
// Target slots are the union of the spec's CharaPosition conditions, or every
// locator when there are none. On each slot the attach joints are tried in
// order; the first one found receives a clone with zeroed local transform and
// unit scale. Each clone is indexed under the props name and, when nonzero,
// the major id, and is left active.
//
// A slot with no matching joint is skipped. A nil prefab aborts the call.
func (a *PropAttacher) Attach(spec PropGroupSpec, prefab Prefab, locators []CharacterLocator) []Node {
	if err := spec.Validate(); err != nil {
		a.report.miss(MissSpec, spec.PropsName, err.Error())
		return nil
	}
	if prefab == nil {
		a.report.miss(MissAsset, spec.PropsName, ErrAssetUnavailable.Error(), PropAssetKey(spec).String())
		return nil
	}

	var spawned []Node
	for _, loc := range a.targets(spec, locators) {
		bone, joint := findJoint(loc, spec.AttachJoints)
		if bone == nil {
			a.report.miss(MissJoint, spec.PropsName,
				fmt.Sprintf("%v on character %d", ErrJointNotFound, loc.Position()),
				spec.AttachJoints...)
			continue
		}

		inst := prefab.Instantiate()
		if inst == nil {
			a.report.miss(MissAsset, spec.PropsName, "prefab produced no instance", prefab.Name())
			return spawned
		}
		inst.SetParent(bone)
		resetLocal(inst)
		inst.SetActive(true)

		a.props.Add(spec.PropsName, spec.MajorID, inst)
		spawned = append(spawned, inst)

		a.report.logger.Debug("character prop attached",
			"props_name", spec.PropsName,
			"major_id", spec.MajorID,
			"character", loc.Position(),
			"joint", joint,
		)
	}
	return spawned
}

// AttachCharacterProps resolves each spec's prefab and spawns it.
// Character props go through Attach; stage props go through attachStage.
// Failures are reported per spec and never stop the remaining specs.
func (a *PropAttacher) AttachCharacterProps(specs []PropGroupSpec, rig Rig) []Node {
	var locators []CharacterLocator
	if rig != nil {
		locators = rig.Locators()
	}

	var spawned []Node
	for _, spec := range specs {
		if !spec.IsCharacterProp {
			if n := a.attachStage(spec); n != nil {
				spawned = append(spawned, n)
			}
			continue
		}

		prefab, err := a.resolvePrefab(spec)
		if err != nil {
			continue
		}
		spawned = append(spawned, a.Attach(spec, prefab, locators)...)
	}

	a.report.logger.Info("props attached", "specs", len(specs), "spawned", len(spawned))
	return spawned
}

// attachStage handles a prop placed on stage rather than worn by a character.
//
// When the scene already has a node under the props name it is forced
// inactive and nothing is spawned. Otherwise a nonzero major id spawns a
// standalone instance under the stage root, registered and inactive.
func (a *PropAttacher) attachStage(spec PropGroupSpec) Node {
	if err := spec.Validate(); err != nil {
		a.report.miss(MissSpec, spec.PropsName, err.Error())
		return nil
	}

	if existing := a.registry.Get(spec.PropsName); existing != nil {
		existing.SetActive(false)
		return nil
	}

	if spec.MajorID <= 0 {
		a.report.miss(MissObject, spec.PropsName, "stage prop has no scene node and no major id", NormalizeName(spec.PropsName))
		return nil
	}

	prefab, err := a.resolvePrefab(spec)
	if err != nil {
		return nil
	}
	inst := prefab.Instantiate()
	if inst == nil {
		a.report.miss(MissAsset, spec.PropsName, "prefab produced no instance", prefab.Name())
		return nil
	}
	if a.stageRoot != nil {
		inst.SetParent(a.stageRoot)
	}
	inst.SetActive(false)

	a.props.Add(spec.PropsName, spec.MajorID, inst)
	a.registry.Register(spec.PropsName, inst, a.stageRoot)
	a.registry.Register(inst.Name(), inst, a.stageRoot)

	a.report.logger.Debug("stage prop spawned",
		"props_name", spec.PropsName,
		"major_id", spec.MajorID,
		"node", inst.Name(),
	)
	return inst
}

func (a *PropAttacher) resolvePrefab(spec PropGroupSpec) (Prefab, error) {
	key := PropAssetKey(spec)
	if a.assets == nil {
		a.report.miss(MissAsset, spec.PropsName, "no asset resolver", key.String())
		return nil, ErrAssetUnavailable
	}
	prefab, err := a.assets.ResolvePrefab(key)
	if err == nil && prefab == nil {
		err = ErrAssetUnavailable
	}
	if err != nil {
		a.report.miss(MissAsset, spec.PropsName, err.Error(), key.String())
		if !errors.Is(err, ErrAssetUnavailable) {
			err = fmt.Errorf("%w: %w", ErrAssetUnavailable, err)
		}
		return nil, err
	}
	return prefab, nil
}

// targets returns the locators selected by spec's conditions.
func (a *PropAttacher) targets(spec PropGroupSpec, locators []CharacterLocator) []CharacterLocator {
	positions := spec.TargetPositions()
	if len(positions) == 0 {
		out := make([]CharacterLocator, 0, len(locators))
		for _, loc := range locators {
			if loc != nil {
				out = append(out, loc)
			}
		}
		return out
	}

	byPos := make(map[int]CharacterLocator, len(locators))
	for _, loc := range locators {
		if loc != nil {
			byPos[loc.Position()] = loc
		}
	}
	out := make([]CharacterLocator, 0, len(positions))
	for _, pos := range positions {
		loc, ok := byPos[pos]
		if !ok {
			a.report.miss(MissLocator, spec.PropsName, ErrLocatorNotFound.Error(), strconv.Itoa(pos))
			continue
		}
		out = append(out, loc)
	}
	return out
}

// findJoint returns the first joint in candidates that exists on loc.
func findJoint(loc CharacterLocator, candidates []string) (Node, string) {
	for _, name := range candidates {
		if bone := loc.Joint(name); bone != nil {
			return bone, name
		}
	}
	return nil, ""
}
