package stage

import "errors"

// Domain errors for the stage package.
//
// None of these are fatal to playback. Engine operations report them to the
// configured Observer and return them so callers can check with errors.Is():
//
//	if errors.Is(err, stage.ErrObjectNotFound) {
//	    // the event had no visible effect
//	}
var (
	// ErrObjectNotFound is returned when no resolver strategy finds a node.
	ErrObjectNotFound = errors.New("stage: object not found")

	// ErrPropNotFound is returned when a prop group has no registered instances.
	ErrPropNotFound = errors.New("stage: prop not found")

	// ErrJointNotFound is returned when none of a prop's attach joints exist on a character.
	ErrJointNotFound = errors.New("stage: joint not found")

	// ErrLocatorNotFound is returned when an event references a character slot with no locator.
	ErrLocatorNotFound = errors.New("stage: locator not found")

	// ErrAssetUnavailable is returned when a prefab cannot be obtained.
	ErrAssetUnavailable = errors.New("stage: asset unavailable")

	// ErrMalformedSpec is returned when authored data is missing required fields.
	ErrMalformedSpec = errors.New("stage: malformed spec")

	// ErrUnitNotFound is returned when a transform event names an unknown unit.
	ErrUnitNotFound = errors.New("stage: unit not found")

	// ErrNoRegistry is returned by NewEngine when Deps.Registry is nil.
	ErrNoRegistry = errors.New("stage: registry is required")
)
