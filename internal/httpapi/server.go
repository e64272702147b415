// Package httpapi exposes the request/response surface: snapshot lifecycle
// management, the share-link viewer page, and the websocket upgrade into the
// hub. Validation happens here, before anything reaches the engine.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Ganesh7742/ShareTheCode/internal/hub"
	"github.com/Ganesh7742/ShareTheCode/internal/snapshot"
)

// Server holds the handlers' shared dependencies.
type Server struct {
	hub     *hub.Hub
	baseURL string
	log     *slog.Logger
}

func NewServer(h *hub.Hub, baseURL string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{hub: h, baseURL: baseURL, log: log}
}

// Router wires all routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/snapshot", s.createSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/snapshot/{id}", s.getSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/snapshot/{id}", s.deleteSnapshot).Methods(http.MethodDelete)
	r.HandleFunc("/s/{id}", s.viewSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.ServeWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type createRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

type createResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Creator string `json:"creator,omitempty"`
}

// createSnapshot saves the current document under a fresh share link. A body
// is optional; name and username both default to empty. A persistence
// failure aborts the request with no broadcast.
func (s *Server) createSnapshot(w http.ResponseWriter, r *http.Request) {
	// An empty or absent body is fine; a malformed one is not.
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sn, err := s.hub.CreateSnapshot(r.Context(), req.Name, req.Username)
	if err != nil {
		s.log.Error("create snapshot", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save snapshot"})
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{
		ID:      sn.ID,
		Name:    sn.Name,
		URL:     s.baseURL + "/s/" + sn.ID,
		Creator: sn.Creator,
	})
}

type getResponse struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sn, err := s.hub.GetSnapshot(r.Context(), id)
	if errors.Is(err, snapshot.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	if err != nil {
		s.log.Error("get snapshot", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load snapshot"})
		return
	}
	writeJSON(w, http.StatusOK, getResponse{ID: sn.ID, Code: sn.Code, Name: sn.Name})
}

func (s *Server) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.hub.DeleteSnapshot(r.Context(), id)
	if errors.Is(err, snapshot.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	if err != nil {
		s.log.Error("delete snapshot", "id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete snapshot"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
