package api

import (
	"net/http"

	"securepatrol/api/handlers"
	"securepatrol/api/routegroups"
	"securepatrol/core/rbac"

	"github.com/go-chi/chi/v5"
)

type routeHandlers struct {
	health        *handlers.HealthHandler
	auth          *handlers.AuthHandler
	incidents     *handlers.IncidentsHandler
	notifications *handlers.NotificationsHandler
	teams         *handlers.TeamsHandler
	guards        *handlers.GuardsHandler
	dashboard     *handlers.DashboardHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	info := handlers.RequestInfo{
		ClientIP: s.clientIP,
		IsHTTPS:  func(r *http.Request) bool { return isHTTPSRequest(r, s.cfg) },
	}
	return routeHandlers{
		health:        handlers.NewHealthHandler(),
		auth:          handlers.NewAuthHandler(s.cfg, s.users, s.guards, s.sessionManager, s.policy, info, s.logger),
		incidents:     handlers.NewIncidentsHandler(s.cfg, s.incidentsSvc, s.logger),
		notifications: handlers.NewNotificationsHandler(s.notifications, s.logger),
		teams:         handlers.NewTeamsHandler(s.rosterSvc, s.logger),
		guards:        handlers.NewGuardsHandler(s.rosterSvc, s.logger),
		dashboard:     handlers.NewDashboardHandler(s.dashboardSvc, s.logger),
	}
}

func (s *Server) routeGuards() routegroups.Guards {
	return routegroups.Guards{
		WithSession:       s.withSession,
		RequirePermission: func(p string) func(http.HandlerFunc) http.HandlerFunc { return s.requirePermission(rbac.Permission(p)) },
	}
}

func (s *Server) registerRoutes() {
	h := s.newRouteHandlers()
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware, s.securityHeadersMiddleware, s.loggingMiddleware)

	r.MethodFunc("GET", "/health-check", h.health.Check)
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Use(s.jsonMiddleware)
		apiRouter.MethodFunc("POST", "/auth/login", s.rateLimitMiddleware(h.auth.Login))
		apiRouter.MethodFunc("POST", "/auth/logout", s.withSession(h.auth.Logout))
		apiRouter.MethodFunc("GET", "/auth/me", s.withSession(h.auth.Me))
		apiRouter.MethodFunc("GET", "/dashboard", s.withSession(s.requirePermission(rbac.PermDashboardView)(h.dashboard.Get)))

		g := s.routeGuards()
		routegroups.RegisterIncidents(apiRouter, g, h.incidents)
		routegroups.RegisterNotifications(apiRouter, g, h.notifications)
		routegroups.RegisterTeams(apiRouter, g, h.teams)
		routegroups.RegisterGuards(apiRouter, g, h.guards)
	})
	s.router = r
}
