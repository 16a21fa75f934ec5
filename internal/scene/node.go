package scene

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"

	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

// nodeData is the copyable state of a node. Fields are exported so
// deepcopy can clone it.
type nodeData struct {
	Active     bool
	Position   mgl64.Vec3
	Rotation   mgl64.Quat
	Scale      mgl64.Vec3
	Components map[string]string
}

// Node is a scene graph node.
type Node struct {
	id        uuid.UUID
	name      string
	parent    *Node
	children  []*Node
	data      nodeData
	destroyed bool
}

// NewNode creates an active, unparented node with identity transform.
func NewNode(name string) *Node {
	return &Node{
		id:   uuid.New(),
		name: name,
		data: nodeData{
			Active:   true,
			Rotation: mgl64.QuatIdent(),
			Scale:    mgl64.Vec3{1, 1, 1},
		},
	}
}

// ID returns the node's unique id.
func (n *Node) ID() uuid.UUID { return n.id }

// Name implements stage.Node.
func (n *Node) Name() string { return n.name }

// Parent implements stage.Node. It returns a nil interface for root nodes.
func (n *Node) Parent() stage.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// ParentNode returns the concrete parent, or nil.
func (n *Node) ParentNode() *Node { return n.parent }

// SetParent implements stage.Node. The local transform is kept.
// Parents that are not *Node, or that would create a cycle, are ignored.
func (n *Node) SetParent(p stage.Node) {
	if p == nil {
		n.detach()
		return
	}
	parent, ok := p.(*Node)
	if !ok || parent == nil || parent.isDescendantOf(n) {
		return
	}
	parent.AddChild(n)
}

// AddChild moves child under n, detaching it from its previous parent.
func (n *Node) AddChild(child *Node) {
	if child == nil || child == n || n.isDescendantOf(child) {
		return
	}
	if child.parent == n {
		return
	}
	child.detach()
	child.parent = n
	n.children = append(n.children, child)
}

func (n *Node) detach() {
	if n.parent == nil {
		return
	}
	siblings := n.parent.children
	for i, c := range siblings {
		if c == n {
			n.parent.children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// isDescendantOf reports whether n is anc or below it.
func (n *Node) isDescendantOf(anc *Node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == anc {
			return true
		}
	}
	return false
}

// Children implements stage.Node.
func (n *Node) Children() []stage.Node {
	out := make([]stage.Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

// ChildNodes returns the concrete children.
func (n *Node) ChildNodes() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// Active implements stage.Node.
func (n *Node) Active() bool { return n.data.Active }

// SetActive implements stage.Node.
func (n *Node) SetActive(active bool) { n.data.Active = active }

// LocalPosition implements stage.Node.
func (n *Node) LocalPosition() mgl64.Vec3 { return n.data.Position }

// SetLocalPosition implements stage.Node.
func (n *Node) SetLocalPosition(v mgl64.Vec3) { n.data.Position = v }

// LocalRotation implements stage.Node.
func (n *Node) LocalRotation() mgl64.Quat { return n.data.Rotation }

// SetLocalRotation implements stage.Node.
func (n *Node) SetLocalRotation(q mgl64.Quat) { n.data.Rotation = q }

// LocalScale implements stage.Node.
func (n *Node) LocalScale() mgl64.Vec3 { return n.data.Scale }

// SetLocalScale implements stage.Node.
func (n *Node) SetLocalScale(v mgl64.Vec3) { n.data.Scale = v }

// Component returns a component value.
func (n *Node) Component(key string) (string, bool) {
	v, ok := n.data.Components[key]
	return v, ok
}

// SetComponent sets a component value.
func (n *Node) SetComponent(key, value string) {
	if n.data.Components == nil {
		n.data.Components = make(map[string]string)
	}
	n.data.Components[key] = value
}

// Find returns the first node named name in n's subtree, depth first,
// including n itself.
func (n *Node) Find(name string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if c.name == name {
			found = c
			return false
		}
		return true
	})
	return found
}

// Walk visits n and its descendants depth first until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Path returns the slash-separated names from the root to n.
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.parent {
		parts = append(parts, cur.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// Clone returns an unparented deep copy of n's subtree with fresh ids.
func (n *Node) Clone() (*Node, error) {
	out := &Node{id: uuid.New(), name: n.name}
	if err := deepcopy.Copy(&out.data, n.data); err != nil {
		return nil, err
	}
	for _, c := range n.children {
		cc, err := c.Clone()
		if err != nil {
			return nil, err
		}
		cc.parent = out
		out.children = append(out.children, cc)
	}
	return out, nil
}

// Destroy detaches n and marks its subtree destroyed.
func (n *Node) Destroy() {
	n.detach()
	n.Walk(func(c *Node) bool {
		c.destroyed = true
		return true
	})
}

// Destroyed reports whether Destroy was called on n or an ancestor.
func (n *Node) Destroyed() bool { return n.destroyed }
