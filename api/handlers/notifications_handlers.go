package handlers

import (
	"net/http"
	"time"

	"securepatrol/core/store"
	"securepatrol/core/utils"
)

const notificationsListLimit = 50

type NotificationsHandler struct {
	store  store.NotificationsStore
	logger *utils.Logger
	now    func() time.Time
}

func NewNotificationsHandler(ns store.NotificationsStore, logger *utils.Logger) *NotificationsHandler {
	return &NotificationsHandler{store: ns, logger: logger, now: utils.NowUTC}
}

// listLimit clamps the requested page size to 1..notificationsListLimit.
func listLimit(raw string) int {
	n := parseIntDefault(raw, notificationsListLimit)
	if n < 1 || n > notificationsListLimit {
		return notificationsListLimit
	}
	return n
}

func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	sr := currentSession(r)
	unread := r.URL.Query().Get("unread")
	items, err := h.store.ListNotifications(r.Context(), sr.UserID, unread == "1" || unread == "true", listLimit(r.URL.Query().Get("limit")))
	if err != nil {
		writeServiceError(w, h.logger, "notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// MarkRead reports success even when the notification is missing, already
// read, or owned by someone else.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	sr := currentSession(r)
	var payload struct {
		NotificationID int64 `json:"notification_id"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.NotificationID > 0 {
		if _, err := h.store.MarkRead(r.Context(), sr.UserID, payload.NotificationID, h.now()); err != nil && h.logger != nil {
			h.logger.Errorf("notifications mark-read user=%d id=%d: %v", sr.UserID, payload.NotificationID, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
