package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-stage/internal/stage"
	"github.com/nerrad567/gray-logic-stage/internal/stagedata"
)

// RegistryEntry is the JSON view of one registry entry.
type RegistryEntry struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	Parent         string `json:"parent,omitempty"`
	OriginalParent string `json:"original_parent,omitempty"`
	Active         bool   `json:"active"`
}

// ResolveResponse explains how a name resolves.
type ResolveResponse struct {
	stage.Resolution
	Found bool             `json:"found"`
	State *stage.NodeState `json:"state,omitempty"`
}

// PropBucket is the instance count for one prop key.
type PropBucket struct {
	PropsName string `json:"props_name,omitempty"`
	MajorID   int    `json:"major_id,omitempty"`
	Instances int    `json:"instances"`
	Active    int    `json:"active"`
}

// UnitView lists a unit's members and whether each is still registered.
type UnitView struct {
	Name    string       `json:"name"`
	Members []UnitMember `json:"members"`
}

// UnitMember is one member of a unit.
type UnitMember struct {
	Name       string `json:"name"`
	Registered bool   `json:"registered"`
}

func nodeName(n stage.Node) string {
	if n == nil {
		return ""
	}
	return n.Name()
}

// handleListRegistry lists every registered node, optionally filtered by a
// case-insensitive substring in ?q=.
func (s *Server) handleListRegistry(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	ctx, cancel := callContext(r)
	defer cancel()

	var out []RegistryEntry
	err := s.playback.Do(ctx, func(e *stage.Engine) error {
		for _, entry := range e.Registry().Entries() {
			if q != "" && !strings.Contains(strings.ToLower(entry.Key), q) {
				continue
			}
			out = append(out, RegistryEntry{
				Key:            entry.Key,
				Name:           nodeName(entry.Node),
				Parent:         nodeName(entry.Node.Parent()),
				OriginalParent: nodeName(entry.OriginalParent),
				Active:         entry.Node.Active(),
			})
		}
		return nil
	})
	if err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
}

// handleResolve explains how ?name= resolves, with the node state on a hit.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if strings.TrimSpace(name) == "" {
		writeBadRequest(w, "name query parameter is required")
		return
	}

	ctx, cancel := callContext(r)
	defer cancel()

	var resp ResolveResponse
	err := s.playback.Do(ctx, func(e *stage.Engine) error {
		resp.Resolution = e.Explain(name)
		resp.Found = resp.Resolution.Found()
		if resp.Found {
			st := stage.StateOf(resp.Resolution.Node)
			resp.State = &st
		}
		return nil
	})
	if err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListMappings returns the mapping table and its rule names.
func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := callContext(r)
	defer cancel()

	var records []stage.Mapping
	var rules []string
	err := s.playback.Do(ctx, func(e *stage.Engine) error {
		records = e.Mapping().Records()
		for _, rule := range e.Mapping().Rules() {
			rules = append(rules, rule.Name())
		}
		return nil
	})
	if err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":    rules,
		"mappings": records,
		"count":    len(records),
	})
}

// handleListProps returns instance counts by props name and by major ID.
func (s *Server) handleListProps(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := callContext(r)
	defer cancel()

	var byName, byMajor []PropBucket
	err := s.playback.Do(ctx, func(e *stage.Engine) error {
		props := e.Props()
		for _, name := range props.Names() {
			nodes := props.ByName(name)
			byName = append(byName, PropBucket{PropsName: name, Instances: len(nodes), Active: countActive(nodes)})
		}
		for _, id := range props.MajorIDs() {
			nodes := props.ByMajor(id)
			byMajor = append(byMajor, PropBucket{MajorID: id, Instances: len(nodes), Active: countActive(nodes)})
		}
		return nil
	})
	if err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"by_name":  byName,
		"by_major": byMajor,
	})
}

func countActive(nodes []stage.Node) int {
	n := 0
	for _, node := range nodes {
		if node.Active() {
			n++
		}
	}
	return n
}

// handleListUnits lists units and their members.
func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := callContext(r)
	defer cancel()

	var out []UnitView
	err := s.playback.Do(ctx, func(e *stage.Engine) error {
		for _, name := range e.Units().Names() {
			unit, ok := e.Units().Get(name)
			if !ok {
				continue
			}
			view := UnitView{Name: unit.Name, Members: make([]UnitMember, 0, len(unit.Children))}
			for _, child := range unit.Children {
				view.Members = append(view.Members, UnitMember{
					Name:       child.Name(),
					Registered: e.Registry().Contains(child.Name()),
				})
			}
			out = append(out, view)
		}
		return nil
	})
	if err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": out, "count": len(out)})
}

// handleGetNode returns the current state of the node {name} resolves to.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	ctx, cancel := callContext(r)
	defer cancel()

	var st stage.NodeState
	err := s.playback.Do(ctx, func(e *stage.Engine) error {
		var err error
		st, err = e.Snapshot(name)
		return err
	})
	if err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Miss list limits.
const (
	defaultMissLimit = 50
	maxMissLimit     = 500
)

// handleListMisses returns recent resolution misses, newest first.
// ?source=store reads the persisted journal instead of the in-memory log.
func (s *Server) handleListMisses(w http.ResponseWriter, r *http.Request) {
	limit := defaultMissLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxMissLimit)
	}

	source := r.URL.Query().Get("source")
	switch source {
	case "", "memory":
		if s.misses == nil {
			writeJSON(w, http.StatusOK, map[string]any{"misses": []stage.Miss{}, "total": 0})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"misses": s.misses.Recent(limit),
			"total":  s.misses.Total(),
		})
	case "store":
		if s.store == nil {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "miss journal is not configured")
			return
		}
		misses, err := s.store.ListMisses(r.Context(), limit)
		if err != nil {
			s.logger.Error("listing persisted misses", "error", err)
			writeInternalError(w, "failed to list misses")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"misses": misses, "count": len(misses)})
	default:
		writeBadRequest(w, "source must be memory or store")
	}
}

// handleGetAuthored returns the prop groups and units stored in the database.
func (s *Server) handleGetAuthored(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "authored data store is not configured")
		return
	}
	authored, err := stagedata.Load(r.Context(), s.store)
	if err != nil {
		s.logger.Error("loading authored data", "error", err)
		writeInternalError(w, "failed to load authored data")
		return
	}
	writeJSON(w, http.StatusOK, authored)
}
