package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"securepatrol/config"
	"securepatrol/core/incidents"
	"securepatrol/core/store"
	"securepatrol/core/utils"
	"securepatrol/core/validation"
)

const multipartMemory = 32 << 20

type IncidentsHandler struct {
	cfg    *config.AppConfig
	svc    *incidents.Service
	logger *utils.Logger
}

func NewIncidentsHandler(cfg *config.AppConfig, svc *incidents.Service, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{cfg: cfg, svc: svc, logger: logger}
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.IncidentFilter{
		Status:   strings.ToLower(strings.TrimSpace(q.Get("status"))),
		Priority: strings.ToLower(strings.TrimSpace(q.Get("priority"))),
		Type:     strings.ToLower(strings.TrimSpace(q.Get("type"))),
		Page:     parseIntDefault(q.Get("page"), 1),
	}
	page, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.logger, "incidents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":         page.Items,
		"current_page": page.CurrentPage,
		"last_page":    page.LastPage,
		"per_page":     page.PerPage,
		"total":        page.Total,
		"filters": map[string]string{
			"status":   filter.Status,
			"priority": filter.Priority,
			"type":     filter.Type,
		},
	})
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	inc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "incidents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": inc})
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	sr := currentSession(r)
	in, uploads, cleanup, ok := h.readCreate(w, r)
	if !ok {
		return
	}
	defer cleanup()
	res, err := h.svc.Create(r.Context(), sr.UserID, in, uploads)
	if err != nil {
		if errors.Is(err, incidents.ErrNotGuard) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": incidents.NotGuardMessage})
			return
		}
		writeServiceError(w, h.logger, "incidents", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *IncidentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var in incidents.UpdateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.svc.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, h.logger, "incidents", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// readCreate accepts either a JSON body or a multipart form whose "media"
// parts carry the attachments.
func (h *IncidentsHandler) readCreate(w http.ResponseWriter, r *http.Request) (incidents.CreateInput, []incidents.Upload, func(), bool) {
	var in incidents.CreateInput
	noop := func() {}
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/") {
		return in, nil, noop, decodeJSON(w, r, &in)
	}
	maxBody := h.cfg.MaxUploadBytes()*16 + multipartMemory
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return in, nil, noop, false
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return in, nil, noop, false
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }
	form := r.MultipartForm
	in.Title = formValue(form, "title")
	in.Description = formValue(form, "description")
	in.Type = formValue(form, "type")
	in.Priority = formValue(form, "priority")
	in.Location = formValue(form, "location")
	in.OccurredAt = formValue(form, "occurred_at")
	in.Latitude = validation.ParseNumber(formValue(form, "latitude"))
	in.Longitude = validation.ParseNumber(formValue(form, "longitude"))
	in.InvolvedParties = formList(form, "involved_parties")
	in.Witnesses = formList(form, "witnesses")
	in.ActionsTaken = formOptional(form, "actions_taken")
	in.FollowUpRequired = formOptional(form, "follow_up_required")

	var uploads []incidents.Upload
	for _, fh := range form.File["media"] {
		fh := fh
		uploads = append(uploads, incidents.Upload{
			Name:         fh.Filename,
			Size:         fh.Size,
			DeclaredType: fh.Header.Get("Content-Type"),
			Open:         func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	return in, uploads, cleanup, true
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func formOptional(form *multipart.Form, key string) *string {
	if _, ok := form.Value[key]; !ok {
		return nil
	}
	v := formValue(form, key)
	return &v
}

// formList reads key[] repeated fields, or a single JSON array in key.
func formList(form *multipart.Form, key string) []string {
	if vals := form.Value[key+"[]"]; len(vals) > 0 {
		return vals
	}
	raw := formValue(form, key)
	if raw == "" {
		return nil
	}
	var out []string
	if strings.HasPrefix(raw, "[") && json.Unmarshal([]byte(raw), &out) == nil {
		return out
	}
	return []string{raw}
}
