package routegroups

import (
	"securepatrol/api/handlers"

	"github.com/go-chi/chi/v5"
)

func RegisterIncidents(apiRouter chi.Router, g Guards, incidents *handlers.IncidentsHandler) {
	apiRouter.Route("/incidents", func(incidentsRouter chi.Router) {
		incidentsRouter.MethodFunc("GET", "/", g.SessionPerm("incidents.view", incidents.List))
		incidentsRouter.MethodFunc("POST", "/", g.SessionPerm("incidents.create", incidents.Create))
		incidentsRouter.MethodFunc("GET", "/{id:[0-9]+}", g.SessionPerm("incidents.view", incidents.Get))
		incidentsRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.SessionPerm("incidents.update", incidents.Update))
	})
}

func RegisterNotifications(apiRouter chi.Router, g Guards, notifications *handlers.NotificationsHandler) {
	apiRouter.Route("/notifications", func(notificationsRouter chi.Router) {
		notificationsRouter.MethodFunc("GET", "/", g.SessionPerm("notifications.read", notifications.List))
		notificationsRouter.MethodFunc("POST", "/mark-read", g.SessionPerm("notifications.read", notifications.MarkRead))
	})
}
