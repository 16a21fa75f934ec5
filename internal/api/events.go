package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-stage/internal/audit"
	"github.com/nerrad567/gray-logic-stage/internal/stage"
)

// handleObjectEvent applies an object keyframe and returns the result.
// Intended for rehearsal tools; the show clock publishes over MQTT.
func (s *Server) handleObjectEvent(w http.ResponseWriter, r *http.Request) {
	var ev stage.ObjectUpdateEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(ev.Name) == "" {
		writeBadRequest(w, "name is required")
		return
	}

	ctx, cancel := callContext(r)
	defer cancel()

	res, err := s.playback.ApplyObjectUpdate(ctx, ev)
	s.record(r, audit.ActionObjectUpdate, ev.Name, err, map[string]any{
		"render_enable":      ev.RenderEnable,
		"attach_target":      ev.AttachTarget,
		"character_position": ev.CharacterPosition,
		"request_id":         r.Context().Value(ctxKeyRequestID),
	})
	if err != nil {
		writePlaybackError(w, err)
		return
	}
	s.logger.Info("object event injected",
		"name", ev.Name,
		"node", res.Node,
		"subject", r.Context().Value(ctxKeySubject),
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	writeJSON(w, http.StatusOK, res)
}

// handleTransformEvent applies a unit keyframe.
func (s *Server) handleTransformEvent(w http.ResponseWriter, r *http.Request) {
	var ev stage.TransformUpdateEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(ev.UnitName) == "" {
		writeBadRequest(w, "unit_name is required")
		return
	}

	ctx, cancel := callContext(r)
	defer cancel()

	applied, err := s.playback.ApplyTransformUpdate(ctx, ev)
	s.record(r, audit.ActionTransformUpdate, ev.UnitName, err, map[string]any{
		"applied":    applied,
		"request_id": r.Context().Value(ctxKeyRequestID),
	})
	if err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"unit":    ev.UnitName,
		"applied": applied,
	})
}

// record writes an audit entry for an injected event. A failed write is
// logged and never fails the request.
func (s *Server) record(r *http.Request, action, target string, applyErr error, details map[string]any) {
	if s.audit == nil {
		return
	}

	outcome := audit.OutcomeApplied
	switch {
	case errors.Is(applyErr, stage.ErrObjectNotFound), errors.Is(applyErr, stage.ErrUnitNotFound):
		outcome = audit.OutcomeMissed
	case applyErr != nil:
		outcome = audit.OutcomeFailed
		details["error"] = applyErr.Error()
	}

	subject, _ := r.Context().Value(ctxKeySubject).(string) //nolint:errcheck // empty when auth is disabled
	entry := &audit.Entry{
		Action:  action,
		Target:  target,
		Subject: subject,
		Outcome: outcome,
		Details: details,
	}
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Warn("audit write failed", "action", action, "target", target, "error", err)
	}
}

// handleListAudit returns injected events, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		Target:  q.Get("target"),
		Subject: q.Get("subject"),
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, key+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
