package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"securepatrol/config"
	"securepatrol/core/auth"
	"securepatrol/core/dashboard"
	"securepatrol/core/incidents"
	"securepatrol/core/rbac"
	"securepatrol/core/roster"
	"securepatrol/core/store"
	"securepatrol/core/utils"

	"github.com/go-chi/chi/v5"
)

// BackgroundWorker runs alongside the HTTP server for the lifetime of ctx.
type BackgroundWorker interface {
	Start(ctx context.Context) error
	Stop()
}

type ServerDeps struct {
	Users         store.UsersStore
	Sessions      store.SessionStore
	Teams         store.TeamsStore
	Guards        store.GuardsStore
	Notifications store.NotificationsStore
	IncidentsSvc  *incidents.Service
	RosterSvc     *roster.Service
	DashboardSvc  *dashboard.Service
	Policy        *rbac.Policy
	Workers       []BackgroundWorker
}

type Server struct {
	cfg             *config.AppConfig
	logger          *utils.Logger
	router          chi.Router
	users           store.UsersStore
	sessions        store.SessionStore
	guards          store.GuardsStore
	notifications   store.NotificationsStore
	incidentsSvc    *incidents.Service
	rosterSvc       *roster.Service
	dashboardSvc    *dashboard.Service
	policy          *rbac.Policy
	sessionManager  *auth.SessionManager
	activityTracker *sessionActivity
	loginLimiter    *requestLimiter
	workers         []BackgroundWorker
	httpServer      *http.Server
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	policy := deps.Policy
	if policy == nil {
		policy = rbac.MustNewPolicy(rbac.DefaultRoles)
	}
	limit := cfg.Security.LoginRateLimit
	if limit <= 0 {
		limit = 5
	}
	s := &Server{
		cfg:             cfg,
		logger:          logger,
		users:           deps.Users,
		sessions:        deps.Sessions,
		guards:          deps.Guards,
		notifications:   deps.Notifications,
		incidentsSvc:    deps.IncidentsSvc,
		rosterSvc:       deps.RosterSvc,
		dashboardSvc:    deps.DashboardSvc,
		policy:          policy,
		sessionManager:  auth.NewSessionManager(deps.Sessions, cfg, logger),
		activityTracker: newSessionActivity(),
		loginLimiter:    newLimiter(limit, time.Minute),
		workers:         deps.Workers,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	for _, w := range s.workers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}
	defer func() {
		for _, w := range s.workers {
			w.Stop()
		}
	}()
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s tls=%t", s.cfg.ListenAddr, s.cfg.TLSEnabled)
		var err error
		if s.cfg.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Printf("shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}
