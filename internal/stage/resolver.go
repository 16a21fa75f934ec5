package stage

import (
	"strings"
)

// Index is the read side of a name-keyed node table.
type Index interface {
	// Lookup returns the node registered under key.
	Lookup(key string) (Node, bool)

	// Scan calls fn for every entry in unspecified order until fn returns false.
	Scan(fn func(key string, n Node) bool)
}

// Query is a name being resolved.
type Query struct {
	// Original is the normalized name as received.
	Original string

	// Cleaned is Original with the clone marker and surrounding whitespace removed.
	Cleaned string
}

// Strategy is one tier of the resolver fallback chain.
type Strategy interface {
	// Name identifies the strategy in diagnostics.
	Name() string

	// Lookup returns the node found for q and the key it was found under,
	// or the key searched when nothing was found. An empty key means the
	// strategy did not apply to q.
	Lookup(idx Index, q Query) (n Node, key string)
}

// ExactMatch looks up the name as received.
type ExactMatch struct{}

// Name implements Strategy.
func (ExactMatch) Name() string { return "exact" }

// Lookup implements Strategy.
func (ExactMatch) Lookup(idx Index, q Query) (Node, string) {
	n, _ := idx.Lookup(q.Original)
	return n, q.Original
}

// CloneSuffix looks up the name with the clone marker stripped.
// The marker itself is configured on the Resolver through Naming.
type CloneSuffix struct{}

// Name implements Strategy.
func (CloneSuffix) Name() string { return "clone_suffix" }

// Lookup implements Strategy.
func (CloneSuffix) Lookup(idx Index, q Query) (Node, string) {
	if q.Cleaned == q.Original || q.Cleaned == "" {
		return nil, ""
	}
	n, _ := idx.Lookup(q.Cleaned)
	return n, q.Cleaned
}

// GroupSuffix looks up the cleaned name with a trailing group suffix removed.
type GroupSuffix struct {
	Suffix string
}

// Name implements Strategy.
func (GroupSuffix) Name() string { return "group_suffix" }

// Lookup implements Strategy.
func (s GroupSuffix) Lookup(idx Index, q Query) (Node, string) {
	if s.Suffix == "" || !strings.HasSuffix(q.Cleaned, s.Suffix) {
		return nil, ""
	}
	key := strings.TrimSuffix(q.Cleaned, s.Suffix)
	if key == "" {
		return nil, ""
	}
	n, _ := idx.Lookup(key)
	return n, key
}

// GeneratedPrefix scans every key when the name carries the generated-prefab
// prefix. The first key that starts with or contains the cleaned name wins.
// The winner depends on Index iteration order when several keys match.
type GeneratedPrefix struct {
	Prefix string
}

// Name implements Strategy.
func (GeneratedPrefix) Name() string { return "generated_prefix" }

// Lookup implements Strategy.
func (s GeneratedPrefix) Lookup(idx Index, q Query) (Node, string) {
	if s.Prefix == "" || !strings.HasPrefix(q.Original, s.Prefix) || q.Cleaned == "" {
		return nil, ""
	}
	var found Node
	foundKey := q.Cleaned + "*"
	idx.Scan(func(key string, n Node) bool {
		if strings.HasPrefix(key, q.Cleaned) || strings.Contains(key, q.Cleaned) {
			found, foundKey = n, key
			return false
		}
		return true
	})
	return found, foundKey
}

// Naming holds the markers used by the default strategies.
type Naming struct {
	CloneSuffix     string
	GroupSuffix     string
	GeneratedPrefix string
}

// DefaultNaming returns the markers produced by the content pipeline.
func DefaultNaming() Naming {
	return Naming{
		CloneSuffix:     "(Clone)",
		GroupSuffix:     "_set",
		GeneratedPrefix: "pf_",
	}
}

// withDefaults fills empty fields from DefaultNaming.
func (n Naming) withDefaults() Naming {
	d := DefaultNaming()
	if n.CloneSuffix == "" {
		n.CloneSuffix = d.CloneSuffix
	}
	if n.GroupSuffix == "" {
		n.GroupSuffix = d.GroupSuffix
	}
	if n.GeneratedPrefix == "" {
		n.GeneratedPrefix = d.GeneratedPrefix
	}
	return n
}

// Strategies returns the standard fallback chain for these markers.
func (n Naming) Strategies() []Strategy {
	return []Strategy{
		ExactMatch{},
		CloneSuffix{},
		GroupSuffix{Suffix: n.GroupSuffix},
		GeneratedPrefix{Prefix: n.GeneratedPrefix},
	}
}

// Resolution is the detailed outcome of a lookup.
type Resolution struct {
	Query    string   `json:"query"`
	Node     Node     `json:"-"`
	Key      string   `json:"key,omitempty"`
	Strategy string   `json:"strategy,omitempty"`
	Searched []string `json:"searched"`
}

// Found reports whether a node was resolved.
func (r Resolution) Found() bool {
	return r.Node != nil
}

// Resolver maps logical names to nodes through an ordered strategy chain.
// It holds no state beyond the index it queries.
type Resolver struct {
	index       Index
	cloneSuffix string
	strategies  []Strategy
}

// NewResolver creates a resolver over idx. When no strategies are given the
// chain from naming is used.
func NewResolver(idx Index, naming Naming, strategies ...Strategy) *Resolver {
	naming = naming.withDefaults()
	if len(strategies) == 0 {
		strategies = naming.Strategies()
	}
	return &Resolver{
		index:       idx,
		cloneSuffix: naming.CloneSuffix,
		strategies:  strategies,
	}
}

// Resolve returns the node for name, or nil.
func (r *Resolver) Resolve(name string) Node {
	return r.Explain(name).Node
}

// Explain runs the chain and records every key searched.
func (r *Resolver) Explain(name string) Resolution {
	q := r.query(name)
	res := Resolution{Query: name}
	if q.Original == "" {
		return res
	}
	for _, s := range r.strategies {
		n, key := s.Lookup(r.index, q)
		if key == "" {
			continue
		}
		res.Searched = append(res.Searched, s.Name()+":"+key)
		if n != nil {
			res.Node = n
			res.Key = key
			res.Strategy = s.Name()
			return res
		}
	}
	return res
}

func (r *Resolver) query(name string) Query {
	original := NormalizeName(name)
	cleaned := original
	if r.cloneSuffix != "" {
		cleaned = strings.TrimSpace(strings.ReplaceAll(original, r.cloneSuffix, ""))
	}
	return Query{Original: original, Cleaned: cleaned}
}
