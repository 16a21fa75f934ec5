// Package scene is a minimal in-memory scene graph that hosts the stage engine.
//
// It provides the collaborators the engine consumes at its interface:
// nodes (Node implements stage.Node), a prefab Library keyed by asset path
// (stage.AssetResolver), and a Rig of character locators plus the main camera
// (stage.Rig). A Scene is built from a YAML manifest so the service can run
// without an external engine.
//
// This is not a general scene-graph library. There is no world-space
// transform, no rendering, and no component lifecycle; nodes carry only the
// local state the engine reads and writes.
//
// Thread Safety: nodes are not synchronized. All mutation happens on the
// playback goroutine.
package scene
