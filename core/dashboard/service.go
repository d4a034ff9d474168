package dashboard

import (
	"context"

	"securepatrol/core/store"
)

const (
	recentIncidents     = 5
	unreadNotifications = 5
)

type Stats struct {
	store.IncidentStats
	ActiveGuards int `json:"total_guards"`
	ActiveTeams  int `json:"total_teams"`
}

type Overview struct {
	Stats           Stats                `json:"stats"`
	RecentIncidents []store.Incident     `json:"recent_incidents"`
	Notifications   []store.Notification `json:"notifications"`
	GuardProfile    *store.Guard         `json:"guard_profile"`
}

type Service struct {
	incidents     store.IncidentsStore
	guards        store.GuardsStore
	teams         store.TeamsStore
	notifications store.NotificationsStore
}

func NewService(incidents store.IncidentsStore, guards store.GuardsStore, teams store.TeamsStore, notifications store.NotificationsStore) *Service {
	return &Service{incidents: incidents, guards: guards, teams: teams, notifications: notifications}
}

// Overview gathers the dashboard for userID. GuardProfile is nil for users without one.
func (s *Service) Overview(ctx context.Context, userID int64) (*Overview, error) {
	var out Overview
	var err error
	if out.Stats.IncidentStats, err = s.incidents.IncidentStats(ctx); err != nil {
		return nil, err
	}
	if out.Stats.ActiveGuards, err = s.guards.CountActiveGuards(ctx); err != nil {
		return nil, err
	}
	if out.Stats.ActiveTeams, err = s.teams.CountActiveTeams(ctx); err != nil {
		return nil, err
	}
	if out.RecentIncidents, err = s.incidents.ListRecentIncidents(ctx, recentIncidents); err != nil {
		return nil, err
	}
	if out.Notifications, err = s.notifications.ListNotifications(ctx, userID, true, unreadNotifications); err != nil {
		return nil, err
	}
	if out.GuardProfile, err = s.guards.GetGuardByUserID(ctx, userID); err != nil {
		return nil, err
	}
	return &out, nil
}
