package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mmynk/girandola/internal/auth"
	"github.com/mmynk/girandola/internal/export"
	"github.com/mmynk/girandola/internal/service"
)

func (s *Server) handleListMarkers(w http.ResponseWriter, r *http.Request) {
	markers, err := s.deps.Markers.ListMarkers(r.Context())
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, "Internal error", "failed to list markers")
		return
	}
	writeJSON(w, http.StatusOK, markers)
}

// handleCreateMarker checks the session before looking at the body, so an
// anonymous caller gets 401 whatever it sends.
func (s *Server) handleCreateMarker(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "sign in to save markers")
		return
	}

	var in service.MarkerInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteProblem(w, http.StatusBadRequest, "Bad request", "Invalid payload: lat and lng must be numbers")
		return
	}
	lat, lng, err := in.Coordinates()
	if err != nil {
		WriteProblem(w, http.StatusBadRequest, "Bad request", "Invalid payload: lat and lng must be numbers")
		return
	}

	marker, err := s.deps.Markers.CreateMarker(r.Context(), id, lat, lng)
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "session is no longer valid")
		return
	case err != nil:
		WriteProblem(w, http.StatusInternalServerError, "Internal error", "failed to save marker")
		return
	}
	writeJSON(w, http.StatusCreated, marker)
}

// handleExportMine lists the caller's markers. With ?format=csv the list is
// rendered as a CSV download instead of JSON.
func (s *Server) handleExportMine(w http.ResponseWriter, r *http.Request) {
	markers, err := s.deps.Markers.ExportMine(r.Context(), auth.FromContext(r.Context()))
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "sign in to export markers")
		return
	case err != nil:
		WriteProblem(w, http.StatusInternalServerError, "Internal error", "failed to list markers")
		return
	}

	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, markers)
		return
	}
	if len(markers) == 0 {
		WriteProblem(w, http.StatusNotFound, "No data", export.ErrNoData.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.DefaultFilename+`"`)
	if err := export.WriteCSV(w, markers); err != nil {
		slog.Error("CSV export failed", "error", err)
	}
}

func (s *Server) handleContributors(w http.ResponseWriter, r *http.Request) {
	contributors, err := s.deps.Markers.Contributors(r.Context())
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, "Internal error", "failed to load contributors")
		return
	}
	writeJSON(w, http.StatusOK, contributors)
}
