// Package stage resolves timeline-controlled objects to scene nodes and
// applies their visibility, attachment and transform state.
//
// A timeline reports keyframe changes by logical object name. The names come
// from an upstream content pipeline and are not always consistent with the
// names of the nodes in the loaded scene, so every lookup goes through a
// Resolver that tries an ordered list of naming strategies.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                     Engine (engine.go)                       │
//	│  HandleObjectUpdate / HandleTransformUpdate / Propagate      │
//	│  ┌──────────────┐   ┌──────────────┐   ┌──────────────────┐  │
//	│  │   Resolver   │──▶│   Registry   │   │   MappingTable   │  │
//	│  │(resolver.go) │   │(registry.go) │   │   (mapping.go)   │  │
//	│  └──────────────┘   └──────────────┘   └──────────────────┘  │
//	│  ┌──────────────┐   ┌──────────────┐   ┌──────────────────┐  │
//	│  │ PropAttacher │──▶│  PropIndex   │   │    UnitTable     │  │
//	│  │ (attach.go)  │   │  (props.go)  │   │    (units.go)    │  │
//	│  └──────────────┘   └──────────────┘   └──────────────────┘  │
//	└─────────────────────────────────────────────────────────────┘
//
// # Lifecycle
//
//  1. The scene host builds its nodes and calls Registry.Populate once.
//  2. Engine.AttachCharacterProps spawns character-worn props.
//  3. Engine.BuildMapping and Engine.PrepareTimelineObjects run once per timeline.
//  4. Keyframe events flow into HandleObjectUpdate and HandleTransformUpdate.
//
// # Propagation
//
// Some timeline objects drive props that the timeline never names. A mic
// stand object also toggles the hand-held microphone on the performer, with
// inverted visibility. Propagation is resolved in three tiers: a direct
// propsName registration, then the data-driven MappingTable, then a legacy
// fallback for the two historical name patterns.
//
// # Thread Safety
//
// The Engine is single-threaded: callers must deliver events one at a time,
// in order (see internal/playback for the queue that does this). Registry and
// PropIndex guard their maps so diagnostics may enumerate them concurrently.
//
// # Idempotence
//
// Every operation sets absolute state. Replaying an event, or scrubbing the
// timeline backwards and forwards, converges to the same node state as a
// single linear pass.
package stage
