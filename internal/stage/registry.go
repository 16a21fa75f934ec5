package stage

import (
	"sort"
	"sync"
)

// Logger defines the logging interface used by the stage package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Entry is one registry record.
type Entry struct {
	Key            string
	Node           Node
	OriginalParent Node
}

// Registry maps normalized node names to scene nodes and the parent each node
// had when it was registered.
//
// The first registration of a key wins. The registry is filled during scene
// construction and afterwards only grows when props are spawned.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	nodes   map[string]Node
	parents map[string]Node
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nodes:   make(map[string]Node),
		parents: make(map[string]Node),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Register records node under name with its original parent.
// It returns false, leaving the existing entry untouched, when the name is
// already present or empty.
func (r *Registry) Register(name string, node Node, parent Node) bool {
	key := NormalizeName(name)
	if key == "" || node == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[key]; exists {
		r.logger.Debug("duplicate stage object ignored", "name", key)
		return false
	}
	r.nodes[key] = node
	if parent != nil {
		r.parents[key] = parent
	}
	return true
}

// Get returns the node registered under name, or nil.
func (r *Registry) Get(name string) Node {
	n, _ := r.Lookup(NormalizeName(name))
	return n
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.Lookup(NormalizeName(name))
	return ok
}

// OriginalParent returns the parent recorded when name was registered.
func (r *Registry) OriginalParent(name string) Node {
	key := NormalizeName(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parents[key]
}

// Lookup implements Index. key must already be normalized.
func (r *Registry) Lookup(key string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[key]
	return n, ok
}

// Scan implements Index. Iteration order is the map's.
// fn runs on a snapshot, so it may call back into the registry.
func (r *Registry) Scan(fn func(key string, n Node) bool) {
	r.mu.RLock()
	keys := make([]string, 0, len(r.nodes))
	nodes := make([]Node, 0, len(r.nodes))
	for k, n := range r.nodes {
		keys = append(keys, k)
		nodes = append(nodes, n)
	}
	r.mu.RUnlock()

	for i := range keys {
		if !fn(keys[i], nodes[i]) {
			return
		}
	}
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Entries returns every record sorted by key. For diagnostics only; the hot
// path uses Get or a Resolver.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.nodes))
	for k, n := range r.nodes {
		out = append(out, Entry{Key: k, Node: n, OriginalParent: r.parents[k]})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Populate registers every descendant of root, depth first in child order,
// with its current parent. root itself is not registered.
// It returns the number of new entries.
func (r *Registry) Populate(root Node) int {
	if root == nil {
		return 0
	}
	added := 0
	var walk func(n Node)
	walk = func(n Node) {
		for _, c := range n.Children() {
			if r.Register(c.Name(), c, n) {
				added++
			}
			walk(c)
		}
	}
	walk(root)
	r.logger.Info("stage registry populated", "root", root.Name(), "added", added, "total", r.Len())
	return added
}
