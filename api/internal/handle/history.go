package handle

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"wasteiq/api/internal/store"
)

const maxHistoryLimit = 500

// History lists the caller's classifications newest first; admins see
// every user.
func (h *Handle) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	who, ok := callerFrom(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing X-User-ID")
		return
	}
	if h.logs == nil {
		writeErr(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}

	limit := store.DefaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	uid := who.UID
	if who.Role == RoleAdmin {
		uid = ""
	}
	logs, err := h.logs.History(r.Context(), uid, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "history: "+err.Error())
		return
	}
	writeOK(w, fmt.Sprintf("%d records", len(logs)), logs)
}

// Stats counts classifications per category; admin and municipal callers
// see every user.
func (h *Handle) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	who, ok := callerFrom(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing X-User-ID")
		return
	}
	if h.logs == nil {
		writeErr(w, http.StatusServiceUnavailable, "history store not configured")
		return
	}

	uid := who.UID
	if who.Role == RoleAdmin || who.Role == RoleMunicipal {
		uid = ""
	}
	st, err := h.logs.Stats(r.Context(), uid)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "stats: "+err.Error())
		return
	}
	writeOK(w, "Stats computed", st)
}

// Points returns the caller's gamification profile. Users that never
// earned points get an empty Beginner profile.
func (h *Handle) Points(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	who, ok := callerFrom(r)
	if !ok {
		writeErr(w, http.StatusUnauthorized, "missing X-User-ID")
		return
	}
	if h.points == nil {
		writeErr(w, http.StatusServiceUnavailable, "points store not configured")
		return
	}
	p, err := h.points.Profile(r.Context(), who.UID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		p = store.Profile{UserID: who.UID, Level: store.LevelFor(0)}
	case err != nil:
		writeErr(w, http.StatusInternalServerError, "points: "+err.Error())
		return
	}
	writeOK(w, "Gamification profile", p)
}
