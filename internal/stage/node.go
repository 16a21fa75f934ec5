package stage

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Node is a handle to a node in the host scene graph.
//
// The host owns node lifetime. The engine only reads and mutates state, except
// for prop instances cloned by the PropAttacher, which it owns until Teardown.
//
// Parent must return a nil interface (not a typed nil) for root nodes.
// SetParent keeps the node's local transform.
type Node interface {
	Name() string
	Parent() Node
	SetParent(parent Node)
	Children() []Node

	Active() bool
	SetActive(active bool)

	LocalPosition() mgl64.Vec3
	SetLocalPosition(v mgl64.Vec3)
	LocalRotation() mgl64.Quat
	SetLocalRotation(q mgl64.Quat)
	LocalScale() mgl64.Vec3
	SetLocalScale(v mgl64.Vec3)
}

// Destroyer is implemented by nodes that can be removed from the scene.
type Destroyer interface {
	Destroy()
}

// CharacterLocator exposes the bone attachment points of one character slot.
type CharacterLocator interface {
	// Position is the character slot index used by timeline events.
	Position() int

	// Root is the character's root node.
	Root() Node

	// Joint returns the bone node with the given name, or nil.
	Joint(name string) Node
}

// Rig supplies the character locators and the main camera.
type Rig interface {
	// Locator returns the locator at the given slot, or nil.
	Locator(position int) CharacterLocator

	// Locators returns every available locator ordered by position.
	Locators() []CharacterLocator

	// Camera returns the main camera node, or nil.
	Camera() Node
}

// Prefab is a loaded asset that can be instantiated into the scene.
type Prefab interface {
	Name() string

	// Instantiate returns a new, unparented copy of the prefab.
	Instantiate() Node
}

// AssetResolver loads prefabs by structured asset key.
// Implementations return an error wrapping ErrAssetUnavailable when the key
// cannot be resolved.
type AssetResolver interface {
	ResolvePrefab(key AssetKey) (Prefab, error)
}

// AssetKey is a structured asset path: category/subcategory/itemId_variant/assetName.
type AssetKey struct {
	Category    string
	Subcategory string
	ItemID      int
	Variant     int
	AssetName   string
}

// Asset key components used for prop prefabs.
const (
	assetCategoryProp     = "prop"
	assetSubcategoryChara = "chara"
	assetSubcategoryStage = "stage"
	propAssetNameFormat   = "pf_prp_%04d_%02d"
	assetKeyFormat        = "%s/%s/%04d_%02d/%s"
)

// String renders the key as category/subcategory/itemId_variant/assetName.
func (k AssetKey) String() string {
	return fmt.Sprintf(assetKeyFormat, k.Category, k.Subcategory, k.ItemID, k.Variant, k.AssetName)
}

// PropAssetKey returns the asset key of the prefab for a prop group.
func PropAssetKey(spec PropGroupSpec) AssetKey {
	sub := assetSubcategoryChara
	if !spec.IsCharacterProp {
		sub = assetSubcategoryStage
	}
	return AssetKey{
		Category:    assetCategoryProp,
		Subcategory: sub,
		ItemID:      spec.MajorID,
		Variant:     spec.MinorID,
		AssetName:   fmt.Sprintf(propAssetNameFormat, spec.MajorID, spec.MinorID),
	}
}

// nodeName returns the node's name, or "" for a nil node.
func nodeName(n Node) string {
	if n == nil {
		return ""
	}
	return n.Name()
}

// resetLocal zeroes a node's local position and rotation and sets unit scale.
func resetLocal(n Node) {
	n.SetLocalPosition(mgl64.Vec3{})
	n.SetLocalRotation(mgl64.QuatIdent())
	n.SetLocalScale(mgl64.Vec3{1, 1, 1})
}
