package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/releasekpi/pkg/kpi"
	"github.com/ethpandaops/releasekpi/pkg/snapshot"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

type releasesResponse struct {
	Project  string   `json:"project"`
	Releases []string `json:"releases"`
}

type recordsResponse struct {
	Project string       `json:"project"`
	Key     string       `json:"key,omitempty"`
	Records []kpi.Record `json:"records"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReleases lists the releases of a project that have snapshots.
func (s *server) handleReleases(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	releases, err := s.store.Releases(r.Context(), project)
	if err != nil {
		s.log.WithError(err).Error("Failed to list releases")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if releases == nil {
		releases = []string{}
	}

	writeJSON(w, http.StatusOK, releasesResponse{
		Project:  project,
		Releases: releases,
	})
}

// handleLast returns the most recent value of a KPI key.
func (s *server) handleLast(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	key := chi.URLParam(r, "key")

	record, err := s.store.Last(r.Context(), project, key)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"no snapshot for key"})

			return
		}

		s.log.WithError(err).Error("Failed to read last snapshot")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleTrend returns every write of a KPI key in write order.
func (s *server) handleTrend(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	key := chi.URLParam(r, "key")

	records, err := s.store.Trend(r.Context(), project, key)
	if err != nil {
		s.log.WithError(err).Error("Failed to read trend")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, recordsResponse{
		Project: project,
		Key:     key,
		Records: records,
	})
}

// handlePanel returns the latest snapshot per key for the newest releases.
// Query parameters: keys (comma separated, repeatable) and max_releases.
func (s *server) handlePanel(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	query := r.URL.Query()

	keys := splitKeys(query["keys"])
	if len(keys) == 0 {
		keys = s.panel.Keys
	}

	if len(keys) == 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"keys is required"})

		return
	}

	maxReleases := s.panel.MaxReleases

	if v := query.Get("max_releases"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"max_releases must be an integer"})

			return
		}

		maxReleases = n
	}

	s.log.WithField("project", project).
		WithField("token", tokenFromContext(r.Context())).
		WithField("keys", len(keys)).
		Debug("Panel query")

	records, err := s.store.Panel(r.Context(), project, keys, maxReleases)
	if err != nil {
		s.log.WithError(err).Error("Failed to build panel")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if records == nil {
		records = []kpi.Record{}
	}

	writeJSON(w, http.StatusOK, recordsResponse{
		Project: project,
		Records: records,
	})
}

// splitKeys flattens repeated and comma separated values, dropping blanks
// and duplicates while keeping first-seen order.
func splitKeys(values []string) []string {
	var (
		out  []string
		seen = make(map[string]struct{}, len(values))
	)

	for _, v := range values {
		for _, k := range strings.Split(v, ",") {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}

			if _, ok := seen[k]; ok {
				continue
			}

			seen[k] = struct{}{}
			out = append(out, k)
		}
	}

	return out
}
