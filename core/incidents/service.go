package incidents

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"securepatrol/core/store"
	"securepatrol/core/utils"
	"securepatrol/core/validation"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/sync/errgroup"
)

const defaultUploadConcurrency = 4

var (
	Types      = []string{"theft", "vandalism", "suspicious_activity", "safety_hazard", "medical_emergency", "fire", "other"}
	Priorities = []string{"low", "medium", "high", "critical"}
	Statuses   = []string{store.IncidentStatusOpen, store.IncidentStatusInvestigating, store.IncidentStatusResolved, store.IncidentStatusClosed}
)

type CreateInput struct {
	Title            string            `json:"title" validate:"required,max=255"`
	Description      string            `json:"description" validate:"required"`
	Type             string            `json:"type" validate:"required,oneof=theft vandalism suspicious_activity safety_hazard medical_emergency fire other"`
	Priority         string            `json:"priority" validate:"required,oneof=low medium high critical"`
	Location         string            `json:"location" validate:"required,max=255"`
	Latitude         validation.Number `json:"latitude" validate:"omitempty,number,gte=-90,lte=90"`
	Longitude        validation.Number `json:"longitude" validate:"omitempty,number,gte=-180,lte=180"`
	OccurredAt       string            `json:"occurred_at" validate:"required,datetime_any"`
	InvolvedParties  []string          `json:"involved_parties"`
	Witnesses        []string          `json:"witnesses"`
	ActionsTaken     *string           `json:"actions_taken"`
	FollowUpRequired *string           `json:"follow_up_required"`
}

var createMessages = map[string]string{
	"title.required":       "Incident title is required.",
	"description.required": "Please provide a detailed description of the incident.",
	"type.required":        "Please select an incident type.",
	"priority.required":    "Please select the incident priority.",
	"location.required":    "Location is required.",
	"occurred_at.required": "Please specify when the incident occurred.",
	"latitude.number":      "The latitude must be a number.",
	"latitude.gte":         "The latitude must be between -90 and 90.",
	"latitude.lte":         "The latitude must be between -90 and 90.",
	"longitude.number":     "The longitude must be a number.",
	"longitude.gte":        "The longitude must be between -180 and 180.",
	"longitude.lte":        "The longitude must be between -180 and 180.",
}

type UpdateInput struct {
	Status           string  `json:"status" validate:"required,oneof=open investigating resolved closed"`
	ActionsTaken     *string `json:"actions_taken"`
	FollowUpRequired *string `json:"follow_up_required"`
}

type CreateResult struct {
	Incident          *store.Incident `json:"incident"`
	NotificationsSent int             `json:"notifications_sent"`
	FailedMedia       []string        `json:"failed_media,omitempty"`
}

type UpdateResult struct {
	Incident *store.Incident `json:"incident"`
	Notified bool            `json:"notified"`
}

type Options struct {
	Blobs             BlobStore
	Clock             Clock
	Logger            *utils.Logger
	MaxUploadBytes    int64
	UploadConcurrency int
}

type Service struct {
	incidents     store.IncidentsStore
	guards        store.GuardsStore
	notifications store.NotificationsStore
	blobs         BlobStore
	clock         Clock
	logger        *utils.Logger
	maxUpload     int64
	concurrency   int
}

func NewService(incidents store.IncidentsStore, guards store.GuardsStore, notifications store.NotificationsStore, opts Options) *Service {
	s := &Service{
		incidents:     incidents,
		guards:        guards,
		notifications: notifications,
		blobs:         opts.Blobs,
		clock:         opts.Clock,
		logger:        opts.Logger,
		maxUpload:     opts.MaxUploadBytes,
		concurrency:   opts.UploadConcurrency,
	}
	if s.clock == nil {
		s.clock = utils.NowUTC
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultUploadConcurrency
	}
	if s.logger == nil {
		s.logger = utils.NewNopLogger()
	}
	return s
}

// Create validates the request and its uploads, records the incident for the
// caller's guard profile, stores media and notifies the reporter's teammates.
// Media and notification failures are logged and do not fail the call.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput, uploads []Upload) (*CreateResult, error) {
	verrs := validation.Struct(in, createMessages)
	files := checkUploads(uploads, s.maxUpload, verrs)
	if !verrs.Empty() {
		return nil, verrs
	}
	occurredAt, _ := validation.ParseTime(in.OccurredAt)

	guard, err := s.guards.GetGuardByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve guard: %w", err)
	}
	if guard == nil {
		return nil, ErrNotGuard
	}

	inc := &store.Incident{
		ReportedBy:       guard.ID,
		Title:            in.Title,
		Description:      in.Description,
		Type:             in.Type,
		Priority:         in.Priority,
		Location:         in.Location,
		Latitude:         in.Latitude.Value,
		Longitude:        in.Longitude.Value,
		OccurredAt:       occurredAt,
		InvolvedParties:  in.InvolvedParties,
		Witnesses:        in.Witnesses,
		ActionsTaken:     in.ActionsTaken,
		FollowUpRequired: in.FollowUpRequired,
	}
	if _, err := s.incidents.CreateIncident(ctx, inc, s.clock(), GenerateIncidentNumber); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	inc.Reporter = reporterOf(guard)

	media, failed := s.storeMedia(ctx, inc.ID, files)
	inc.Media = media
	sent := s.notifyTeam(ctx, inc, guard)
	s.logger.Printf("incident %s reported by guard %d media=%d failed_media=%d notified=%d", inc.IncidentNumber, guard.ID, len(media), len(failed), sent)
	return &CreateResult{Incident: inc, NotificationsSent: sent, FailedMedia: failed}, nil
}

func (s *Service) storeMedia(ctx context.Context, incidentID int64, files []checkedUpload) ([]store.IncidentMedia, []string) {
	media := []store.IncidentMedia{}
	var failed []string
	if len(files) == 0 {
		return media, failed
	}
	written := make([]*store.IncidentMedia, len(files))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			m, err := s.writeMedia(ctx, incidentID, f)
			if err != nil {
				s.logger.Errorf("incident %d: store media %q: %v", incidentID, f.Name, err)
				return nil
			}
			written[i] = m
			return nil
		})
	}
	_ = g.Wait()
	for i, m := range written {
		if m == nil {
			failed = append(failed, files[i].Name)
			continue
		}
		if _, err := s.incidents.AddIncidentMedia(ctx, m); err != nil {
			s.logger.Errorf("incident %d: record media %q: %v", incidentID, files[i].Name, err)
			_ = s.blobs.Remove(ctx, m.FilePath)
			failed = append(failed, files[i].Name)
			continue
		}
		media = append(media, *m)
	}
	return media, failed
}

func (s *Service) writeMedia(ctx context.Context, incidentID int64, f checkedUpload) (*store.IncidentMedia, error) {
	if s.blobs == nil {
		return nil, errors.New("no blob store configured")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	filename := id.String() + "." + f.ext
	locator := MediaPath(incidentID, filename)
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	n, err := s.blobs.Put(ctx, locator, r, s.maxUpload)
	if err != nil {
		return nil, err
	}
	return &store.IncidentMedia{
		IncidentID:   incidentID,
		Filename:     filename,
		OriginalName: filepath.Base(f.Name),
		MimeType:     f.mimeType,
		Type:         ClassifyMime(f.mimeType),
		FileSize:     n,
		FilePath:     locator,
		Description:  f.Description,
	}, nil
}

// notifyTeam sends one notification per other guard on the reporter's team.
func (s *Service) notifyTeam(ctx context.Context, inc *store.Incident, reporter *store.Guard) int {
	if reporter.TeamID == nil {
		return 0
	}
	mates, err := s.guards.ListTeammates(ctx, *reporter.TeamID, reporter.ID)
	if err != nil {
		s.logger.Errorf("incident %s: list teammates: %v", inc.IncidentNumber, err)
		return 0
	}
	name := ""
	if reporter.User != nil {
		name = reporter.User.Name
	}
	sent := 0
	for _, mate := range mates {
		n := &store.Notification{
			UserID:     mate.UserID,
			IncidentID: &inc.ID,
			Title:      "New Incident Reported",
			Message:    fmt.Sprintf("New %s priority %s incident reported by %s", inc.Priority, inc.Type, name),
			Type:       store.NotificationIncidentCreated,
			Priority:   NotificationPriority(inc.Priority),
			Metadata:   map[string]any{"incident_number": inc.IncidentNumber},
		}
		if _, err := s.notifications.CreateNotification(ctx, n); err != nil {
			s.logger.Errorf("incident %s: notify user %d: %v", inc.IncidentNumber, mate.UserID, err)
			continue
		}
		sent++
	}
	return sent
}

// NotificationPriority maps an incident priority onto the notification scale.
func NotificationPriority(incidentPriority string) string {
	switch incidentPriority {
	case "critical":
		return store.NotificationPriorityUrgent
	case store.NotificationPriorityLow, store.NotificationPriorityMedium, store.NotificationPriorityHigh:
		return incidentPriority
	}
	return store.NotificationPriorityMedium
}

// Update applies a status change. Any status may follow any other; the reporter
// is notified only when the status actually changes.
func (s *Service) Update(ctx context.Context, incidentID int64, in UpdateInput) (*UpdateResult, error) {
	if verrs := validation.Struct(in, nil); !verrs.Empty() {
		return nil, verrs
	}
	previous, err := s.incidents.UpdateIncident(ctx, incidentID, store.IncidentUpdate{
		Status:           in.Status,
		ActionsTaken:     in.ActionsTaken,
		FollowUpRequired: in.FollowUpRequired,
	}, s.clock())
	if err != nil {
		return nil, err
	}
	inc, err := s.Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	res := &UpdateResult{Incident: inc}
	if previous == in.Status || inc.Reporter == nil {
		return res, nil
	}
	n := &store.Notification{
		UserID:     inc.Reporter.UserID,
		IncidentID: &inc.ID,
		Title:      "Incident Status Updated",
		Message:    fmt.Sprintf("Incident #%s status changed to %s", inc.IncidentNumber, in.Status),
		Type:       store.NotificationIncidentUpdated,
		Priority:   store.NotificationPriorityMedium,
		Metadata:   map[string]any{"previous_status": previous, "status": in.Status},
	}
	if _, err := s.notifications.CreateNotification(ctx, n); err != nil {
		s.logger.Errorf("incident %s: status notification: %v", inc.IncidentNumber, err)
		return res, nil
	}
	res.Notified = true
	return res, nil
}

func (s *Service) Get(ctx context.Context, incidentID int64) (*store.Incident, error) {
	inc, err := s.incidents.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, store.ErrNotFound
	}
	media, err := s.incidents.ListIncidentMedia(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	inc.Media = media
	return inc, nil
}

func (s *Service) List(ctx context.Context, filter store.IncidentFilter) (store.Page[store.Incident], error) {
	page, err := s.incidents.ListIncidents(ctx, filter)
	if err != nil {
		return page, err
	}
	for i := range page.Items {
		media, err := s.incidents.ListIncidentMedia(ctx, page.Items[i].ID)
		if err != nil {
			return page, err
		}
		page.Items[i].Media = media
	}
	return page, nil
}

func reporterOf(g *store.Guard) *store.Reporter {
	return &store.Reporter{
		ID:          g.ID,
		UserID:      g.UserID,
		TeamID:      g.TeamID,
		BadgeNumber: g.BadgeNumber,
		Rank:        g.Rank,
		Status:      g.Status,
		User:        g.User,
		Team:        g.Team,
	}
}
