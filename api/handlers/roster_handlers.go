package handlers

import (
	"net/http"

	"securepatrol/core/dashboard"
	"securepatrol/core/roster"
	"securepatrol/core/utils"
)

type TeamsHandler struct {
	svc    *roster.Service
	logger *utils.Logger
}

func NewTeamsHandler(svc *roster.Service, logger *utils.Logger) *TeamsHandler {
	return &TeamsHandler{svc: svc, logger: logger}
}

func (h *TeamsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("active") == "1" {
		items, err := h.svc.ActiveTeams(r.Context())
		if err != nil {
			writeServiceError(w, h.logger, "teams", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": items})
		return
	}
	page, err := h.svc.ListTeams(r.Context(), parseIntDefault(r.URL.Query().Get("page"), 1))
	if err != nil {
		writeServiceError(w, h.logger, "teams", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *TeamsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	team, err := h.svc.GetTeam(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "teams", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team": team})
}

func (h *TeamsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in roster.TeamInput
	if !decodeJSON(w, r, &in) {
		return
	}
	team, err := h.svc.CreateTeam(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, "teams", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"team": team})
}

func (h *TeamsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var in roster.TeamInput
	if !decodeJSON(w, r, &in) {
		return
	}
	team, err := h.svc.UpdateTeam(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, h.logger, "teams", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team": team})
}

func (h *TeamsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteTeam(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, "teams", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type GuardsHandler struct {
	svc    *roster.Service
	logger *utils.Logger
}

func NewGuardsHandler(svc *roster.Service, logger *utils.Logger) *GuardsHandler {
	return &GuardsHandler{svc: svc, logger: logger}
}

func (h *GuardsHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListGuards(r.Context(), parseIntDefault(r.URL.Query().Get("page"), 1))
	if err != nil {
		writeServiceError(w, h.logger, "guards", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Candidates lists users without a guard profile together with the active
// teams, which is what the guard creation form needs.
func (h *GuardsHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Candidates(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "guards", err)
		return
	}
	teams, err := h.svc.ActiveTeams(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "guards", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "teams": teams})
}

func (h *GuardsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	g, err := h.svc.GetGuard(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "guards", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"guard": g})
}

func (h *GuardsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in roster.GuardInput
	if !decodeJSON(w, r, &in) {
		return
	}
	g, err := h.svc.CreateGuard(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, "guards", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"guard": g})
}

func (h *GuardsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var in roster.GuardUpdateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	g, err := h.svc.UpdateGuard(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, h.logger, "guards", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"guard": g})
}

func (h *GuardsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeleteGuard(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, "guards", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type DashboardHandler struct {
	svc    *dashboard.Service
	logger *utils.Logger
}

func NewDashboardHandler(svc *dashboard.Service, logger *utils.Logger) *DashboardHandler {
	return &DashboardHandler{svc: svc, logger: logger}
}

func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	sr := currentSession(r)
	ov, err := h.svc.Overview(r.Context(), sr.UserID)
	if err != nil {
		writeServiceError(w, h.logger, "dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}
