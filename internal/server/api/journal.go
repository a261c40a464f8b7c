package api

import (
	"net/http"

	"github.com/ayusman/yelkiran/internal/store"
)

// JournalHandler serves the flat release and link event logs.
type JournalHandler struct {
	store *store.Store
}

// NewJournalHandler creates a new JournalHandler with the given store.
func NewJournalHandler(s *store.Store) *JournalHandler {
	return &JournalHandler{store: s}
}

// Releases handles GET /api/releases.
func (h *JournalHandler) Releases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	releases, err := h.store.Releases().List(limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list releases")
		return
	}
	if releases == nil {
		releases = []*store.Release{}
	}
	writeJSON(w, http.StatusOK, listReleasesResponse{Releases: releases})
}

// LinkEvents handles GET /api/link-events.
func (h *JournalHandler) LinkEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	events, err := h.store.LinkEvents().List(limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list link events")
		return
	}
	if events == nil {
		events = []*store.LinkEvent{}
	}
	writeJSON(w, http.StatusOK, listLinkEventsResponse{Events: events})
}
