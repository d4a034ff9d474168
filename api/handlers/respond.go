package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"securepatrol/core/auth"
	"securepatrol/core/store"
	"securepatrol/core/utils"
	"securepatrol/core/validation"
)

const (
	SessionCookieName = "securepatrol_session"
	CSRFCookieName    = "securepatrol_csrf"
	jsonBodyMaxBytes  = 1 << 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, jsonBodyMaxBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func currentSession(r *http.Request) *store.SessionRecord {
	sr, ok := auth.FromContext(r.Context())
	if !ok {
		return &store.SessionRecord{}
	}
	return sr
}

// writeServiceError maps service errors onto responses. area prefixes the
// not-found key, e.g. "incidents" -> "incidents.notFound".
func writeServiceError(w http.ResponseWriter, logger *utils.Logger, area string, err error) {
	if ve, ok := validation.As(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, ve)
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, area+".notFound", http.StatusNotFound)
		return
	}
	if logger != nil {
		logger.Errorf("%s: %v", area, err)
	}
	http.Error(w, "server error", http.StatusInternalServerError)
}
