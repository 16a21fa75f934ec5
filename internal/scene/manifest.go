package scene

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

// Default names for nodes created by Build.
const (
	WorldName  = "World"
	StageName  = "Stage"
	CameraName = "Main Camera"
)

// ErrInvalidManifest is returned when a manifest fails validation.
var ErrInvalidManifest = errors.New("scene: invalid manifest")

// NodeSpec describes a node and its subtree in a manifest.
// Rotation is in Euler degrees.
type NodeSpec struct {
	Name       string            `yaml:"name"`
	Active     *bool             `yaml:"active,omitempty"`
	Position   [3]float64        `yaml:"position,omitempty"`
	Rotation   [3]float64        `yaml:"rotation,omitempty"`
	Scale      *[3]float64       `yaml:"scale,omitempty"`
	Components map[string]string `yaml:"components,omitempty"`
	Children   []NodeSpec        `yaml:"children,omitempty"`
}

// CharacterSpec describes a performer slot.
type CharacterSpec struct {
	Position int      `yaml:"position"`
	Root     NodeSpec `yaml:"root"`
}

// PrefabSpec describes a prefab template and its asset path.
type PrefabSpec struct {
	Path string   `yaml:"path"`
	Root NodeSpec `yaml:"root"`
}

// Manifest is the YAML description of a scene and its authored stage data.
type Manifest struct {
	Stage      NodeSpec              `yaml:"stage"`
	Camera     *NodeSpec             `yaml:"camera,omitempty"`
	Characters []CharacterSpec       `yaml:"characters"`
	Prefabs    []PrefabSpec          `yaml:"prefabs"`
	Props      []stage.PropGroupSpec `yaml:"props"`
	Units      []stage.UnitSpec      `yaml:"units"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks structural requirements, collecting every problem.
func (m *Manifest) Validate() error {
	var errs []string

	seen := make(map[int]bool)
	for i, c := range m.Characters {
		if seen[c.Position] {
			errs = append(errs, fmt.Sprintf("characters[%d]: duplicate position %d", i, c.Position))
		}
		seen[c.Position] = true
		if strings.TrimSpace(c.Root.Name) == "" {
			errs = append(errs, fmt.Sprintf("characters[%d]: root name is required", i))
		}
	}
	for i, p := range m.Prefabs {
		if strings.TrimSpace(p.Path) == "" {
			errs = append(errs, fmt.Sprintf("prefabs[%d]: path is required", i))
		}
		if strings.TrimSpace(p.Root.Name) == "" {
			errs = append(errs, fmt.Sprintf("prefabs[%d]: root name is required", i))
		}
	}
	for i, u := range m.Units {
		if strings.TrimSpace(u.Name) == "" {
			errs = append(errs, fmt.Sprintf("units[%d]: name is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidManifest, strings.Join(errs, "\n  - "))
	}
	return nil
}

// Scene is a built manifest.
type Scene struct {
	World   *Node
	Stage   *Node
	Camera  *Node
	Rig     *Rig
	Library *Library
	Props   []stage.PropGroupSpec
	Units   []stage.UnitSpec
}

// Build creates the node graph described by m:
//
//	World
//	├── Stage        (stage objects, timeline targets)
//	├── Main Camera
//	└── <character roots>
func Build(m *Manifest) *Scene {
	world := NewNode(WorldName)

	stageSpec := m.Stage
	if stageSpec.Name == "" {
		stageSpec.Name = StageName
	}
	stageRoot := buildNode(stageSpec)
	world.AddChild(stageRoot)

	camSpec := NodeSpec{Name: CameraName}
	if m.Camera != nil {
		camSpec = *m.Camera
		if camSpec.Name == "" {
			camSpec.Name = CameraName
		}
	}
	camera := buildNode(camSpec)
	world.AddChild(camera)

	chars := make([]*Character, 0, len(m.Characters))
	for _, cs := range m.Characters {
		root := buildNode(cs.Root)
		world.AddChild(root)
		chars = append(chars, NewCharacter(cs.Position, root))
	}

	lib := NewLibrary()
	for _, ps := range m.Prefabs {
		lib.Add(ps.Path, NewPrefab(ps.Root.Name, buildNode(ps.Root)))
	}

	return &Scene{
		World:   world,
		Stage:   stageRoot,
		Camera:  camera,
		Rig:     NewRig(camera, chars...),
		Library: lib,
		Props:   m.Props,
		Units:   m.Units,
	}
}

func buildNode(spec NodeSpec) *Node {
	n := NewNode(spec.Name)
	if spec.Active != nil {
		n.SetActive(*spec.Active)
	}
	n.SetLocalPosition(mgl64.Vec3(spec.Position))
	n.SetLocalRotation(stage.EulerToQuat(mgl64.Vec3(spec.Rotation)))
	if spec.Scale != nil {
		n.SetLocalScale(mgl64.Vec3(*spec.Scale))
	}
	for k, v := range spec.Components {
		n.SetComponent(k, v)
	}
	for _, cs := range spec.Children {
		n.AddChild(buildNode(cs))
	}
	return n
}
