package scene

import (
	"sort"

	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

// Character is a performer in one slot. It implements stage.CharacterLocator.
type Character struct {
	position int
	root     *Node
	joints   map[string]*Node
}

// NewCharacter indexes every node below root by name. The first node found
// depth first wins when names repeat.
func NewCharacter(position int, root *Node) *Character {
	c := &Character{position: position, root: root, joints: make(map[string]*Node)}
	for _, child := range root.children {
		child.Walk(func(n *Node) bool {
			if _, ok := c.joints[n.name]; !ok {
				c.joints[n.name] = n
			}
			return true
		})
	}
	return c
}

// Position implements stage.CharacterLocator.
func (c *Character) Position() int { return c.position }

// Root implements stage.CharacterLocator.
func (c *Character) Root() stage.Node { return c.root }

// RootNode returns the concrete root.
func (c *Character) RootNode() *Node { return c.root }

// Joint implements stage.CharacterLocator.
func (c *Character) Joint(name string) stage.Node {
	j, ok := c.joints[name]
	if !ok {
		return nil
	}
	return j
}

// JointNames returns the indexed joint names, sorted.
func (c *Character) JointNames() []string {
	out := make([]string, 0, len(c.joints))
	for k := range c.joints {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Rig holds the characters and the main camera. It implements stage.Rig.
type Rig struct {
	characters []*Character
	camera     *Node
}

// NewRig creates a rig. Characters are ordered by position.
func NewRig(camera *Node, characters ...*Character) *Rig {
	chars := make([]*Character, len(characters))
	copy(chars, characters)
	sort.SliceStable(chars, func(i, j int) bool { return chars[i].position < chars[j].position })
	return &Rig{characters: chars, camera: camera}
}

// Locator implements stage.Rig.
func (r *Rig) Locator(position int) stage.CharacterLocator {
	for _, c := range r.characters {
		if c.position == position {
			return c
		}
	}
	return nil
}

// Locators implements stage.Rig.
func (r *Rig) Locators() []stage.CharacterLocator {
	out := make([]stage.CharacterLocator, len(r.characters))
	for i, c := range r.characters {
		out[i] = c
	}
	return out
}

// Camera implements stage.Rig.
func (r *Rig) Camera() stage.Node {
	if r.camera == nil {
		return nil
	}
	return r.camera
}

// Characters returns the characters ordered by position.
func (r *Rig) Characters() []*Character {
	out := make([]*Character, len(r.characters))
	copy(out, r.characters)
	return out
}
