package appbootstrap

import (
	"fmt"

	"securepatrol/api"
	"securepatrol/config"
	"securepatrol/core/auth"
	"securepatrol/core/dashboard"
	"securepatrol/core/incidents"
	"securepatrol/core/rbac"
	"securepatrol/core/roster"
	"securepatrol/core/store"
	"securepatrol/core/utils"
)

type stores struct {
	users         store.UsersStore
	sessions      store.SessionStore
	teams         store.TeamsStore
	guards        store.GuardsStore
	incidents     store.IncidentsStore
	notifications store.NotificationsStore
}

func newStores(db *store.DB) stores {
	return stores{
		users:         store.NewUsersStore(db),
		sessions:      store.NewSessionsStore(db),
		teams:         store.NewTeamsStore(db),
		guards:        store.NewGuardsStore(db),
		incidents:     store.NewIncidentsStore(db),
		notifications: store.NewNotificationsStore(db),
	}
}

type runtimeComposition struct {
	serverDeps api.ServerDeps
	stores     stores
}

func composeRuntime(cfg *config.AppConfig, db *store.DB, logger *utils.Logger) (*runtimeComposition, error) {
	st := newStores(db)
	blobs, err := incidents.NewLocalStore(cfg.Incidents.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("media storage: %w", err)
	}
	policy, err := rbac.NewPolicy(rbac.DefaultRoles)
	if err != nil {
		return nil, err
	}
	incidentsSvc := incidents.NewService(st.incidents, st.guards, st.notifications, incidents.Options{
		Blobs:             blobs,
		Logger:            logger.With("component", "incidents"),
		MaxUploadBytes:    cfg.MaxUploadBytes(),
		UploadConcurrency: cfg.Incidents.UploadConcurrency,
	})
	rosterSvc := roster.NewService(st.users, st.teams, st.guards, st.incidents, logger.With("component", "roster"))
	dashboardSvc := dashboard.NewService(st.incidents, st.guards, st.teams, st.notifications)

	var workers []api.BackgroundWorker
	if cfg.Scheduler.Enabled {
		workers = append(workers, auth.NewSessionSweeper(st.sessions, cfg.Scheduler.SessionSweepSpec, logger.With("component", "sweeper")))
	}

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Users:         st.users,
			Sessions:      st.sessions,
			Teams:         st.teams,
			Guards:        st.guards,
			Notifications: st.notifications,
			IncidentsSvc:  incidentsSvc,
			RosterSvc:     rosterSvc,
			DashboardSvc:  dashboardSvc,
			Policy:        policy,
			Workers:       workers,
		},
		stores: st,
	}, nil
}
