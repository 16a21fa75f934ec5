package stage

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// ─── Test Scene ─────────────────────────────────────────────────────────────

// testNode is a minimal in-memory Node.
type testNode struct {
	name      string
	parent    *testNode
	children  []*testNode
	active    bool
	pos       mgl64.Vec3
	rot       mgl64.Quat
	scale     mgl64.Vec3
	destroyed bool
}

func newNode(name string, parent *testNode) *testNode {
	n := &testNode{
		name:   name,
		active: true,
		rot:    mgl64.QuatIdent(),
		scale:  mgl64.Vec3{1, 1, 1},
	}
	if parent != nil {
		n.SetParent(parent)
	}
	return n
}

func (n *testNode) Name() string { return n.name }

func (n *testNode) Parent() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// SetParent ignores parents that would create a cycle, like the scene graph.
func (n *testNode) SetParent(p Node) {
	if tp, ok := p.(*testNode); ok {
		for a := tp; a != nil; a = a.parent {
			if a == n {
				return
			}
		}
	}
	if n.parent != nil {
		kept := n.parent.children[:0]
		for _, c := range n.parent.children {
			if c != n {
				kept = append(kept, c)
			}
		}
		n.parent.children = kept
	}
	n.parent = nil
	if p == nil {
		return
	}
	tp := p.(*testNode)
	n.parent = tp
	tp.children = append(tp.children, n)
}

func (n *testNode) Children() []Node {
	out := make([]Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

func (n *testNode) Active() bool                  { return n.active }
func (n *testNode) SetActive(v bool)              { n.active = v }
func (n *testNode) LocalPosition() mgl64.Vec3     { return n.pos }
func (n *testNode) SetLocalPosition(v mgl64.Vec3) { n.pos = v }
func (n *testNode) LocalRotation() mgl64.Quat     { return n.rot }
func (n *testNode) SetLocalRotation(q mgl64.Quat) { n.rot = q }
func (n *testNode) LocalScale() mgl64.Vec3        { return n.scale }
func (n *testNode) SetLocalScale(v mgl64.Vec3)    { n.scale = v }

func (n *testNode) Destroy() {
	n.destroyed = true
	n.SetParent(nil)
}

// testLocator exposes joints created under a character root.
type testLocator struct {
	position int
	root     *testNode
	joints   map[string]*testNode
}

func newLocator(position int, joints ...string) *testLocator {
	l := &testLocator{
		position: position,
		root:     newNode(fmt.Sprintf("chara_%d", position), nil),
		joints:   make(map[string]*testNode),
	}
	for _, j := range joints {
		l.joints[j] = newNode(j, l.root)
	}
	return l
}

func (l *testLocator) Position() int { return l.position }
func (l *testLocator) Root() Node    { return l.root }

func (l *testLocator) Joint(name string) Node {
	j, ok := l.joints[name]
	if !ok {
		return nil
	}
	return j
}

// testRig holds locators by slot and a camera.
type testRig struct {
	locators []*testLocator
	camera   *testNode
}

func (r *testRig) Locator(position int) CharacterLocator {
	for _, l := range r.locators {
		if l.position == position {
			return l
		}
	}
	return nil
}

func (r *testRig) Locators() []CharacterLocator {
	out := make([]CharacterLocator, len(r.locators))
	for i, l := range r.locators {
		out[i] = l
	}
	return out
}

func (r *testRig) Camera() Node {
	if r.camera == nil {
		return nil
	}
	return r.camera
}

// testPrefab instantiates named nodes and counts instances.
type testPrefab struct {
	name  string
	count int
}

func (p *testPrefab) Name() string { return p.name }

func (p *testPrefab) Instantiate() Node {
	p.count++
	n := newNode(p.name+"(Clone)", nil)
	n.pos = mgl64.Vec3{9, 9, 9}
	n.scale = mgl64.Vec3{3, 3, 3}
	return n
}

// testAssets resolves prefabs by asset name.
type testAssets struct {
	mu      sync.Mutex
	prefabs map[string]*testPrefab
	asked   []string
}

func newTestAssets(names ...string) *testAssets {
	a := &testAssets{prefabs: make(map[string]*testPrefab)}
	for _, n := range names {
		a.prefabs[n] = &testPrefab{name: n}
	}
	return a
}

func (a *testAssets) ResolvePrefab(key AssetKey) (Prefab, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.asked = append(a.asked, key.String())
	p, ok := a.prefabs[key.AssetName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetUnavailable, key)
	}
	return p, nil
}

// missRecorder collects misses.
type missRecorder struct {
	misses []Miss
}

func (m *missRecorder) ObserveMiss(miss Miss) { m.misses = append(m.misses, miss) }

func (m *missRecorder) kinds() []MissKind {
	out := make([]MissKind, len(m.misses))
	for i, x := range m.misses {
		out[i] = x.Kind
	}
	return out
}

func vecEqual(a, b mgl64.Vec3) bool {
	return a.ApproxEqual(b)
}
