package domsnap

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/domsnap/dom"
	"github.com/hazyhaar/domsnap/internal/action"
)

// RegisterHTTP mounts the session surface on a chi router. The HTTP and
// MCP surfaces expose the same operations; agents use whichever transport
// their harness speaks.
func (s *Sessions) RegisterHTTP(r chi.Router) {
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleOpen)
		r.Route("/{target}", func(r chi.Router) {
			r.Delete("/", s.handleRelease)
			r.Get("/dom", s.handleObserve)
			r.Post("/actions", s.handleAct)
			r.Get("/extract", s.handleExtract)
			r.Get("/stats", s.handleStats)
		})
	})
}

func (s *Sessions) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.List()})
}

func (s *Sessions) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetID string `json:"target_id"`
		URL      string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	sess, err := s.Acquire(r.Context(), req.TargetID, req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"target_id": sess.ID(),
		"url":       sess.URL(),
	})
}

func (s *Sessions) handleRelease(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	if err := s.Release(target); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"released": target})
}

func (s *Sessions) handleObserve(w http.ResponseWriter, r *http.Request) {
	sess := s.Get(chi.URLParam(r, "target"))
	if sess == nil {
		writeError(w, http.StatusNotFound, errors.New("no such session"))
		return
	}
	doc, err := sess.Observe(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrAcquireTimeout) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Sessions) handleAct(w http.ResponseWriter, r *http.Request) {
	sess := s.Get(chi.URLParam(r, "target"))
	if sess == nil {
		writeError(w, http.StatusNotFound, errors.New("no such session"))
		return
	}
	var req struct {
		Action string `json:"action"`
		NodeID int    `json:"node_id"`
		Text   string `json:"text"`
		Key    string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res := sess.Act(r.Context(), action.Request{
		Type:   dom.ActionType(req.Action),
		NodeID: req.NodeID,
		Text:   req.Text,
		Key:    req.Key,
	})
	// Failed actions are a structured result, not a transport error.
	writeJSON(w, http.StatusOK, res)
}

func (s *Sessions) handleExtract(w http.ResponseWriter, r *http.Request) {
	sess := s.Get(chi.URLParam(r, "target"))
	if sess == nil {
		writeError(w, http.StatusNotFound, errors.New("no such session"))
		return
	}
	res, err := sess.Extract(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Sessions) handleStats(w http.ResponseWriter, r *http.Request) {
	sess := s.Get(chi.URLParam(r, "target"))
	if sess == nil {
		writeError(w, http.StatusNotFound, errors.New("no such session"))
		return
	}
	writeJSON(w, http.StatusOK, sess.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
