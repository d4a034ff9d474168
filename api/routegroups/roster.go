package routegroups

import (
	"securepatrol/api/handlers"

	"github.com/go-chi/chi/v5"
)

func RegisterTeams(apiRouter chi.Router, g Guards, teams *handlers.TeamsHandler) {
	apiRouter.Route("/teams", func(teamsRouter chi.Router) {
		teamsRouter.MethodFunc("GET", "/", g.SessionPerm("teams.view", teams.List))
		teamsRouter.MethodFunc("POST", "/", g.SessionPerm("teams.manage", teams.Create))
		teamsRouter.MethodFunc("GET", "/{id:[0-9]+}", g.SessionPerm("teams.view", teams.Get))
		teamsRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.SessionPerm("teams.manage", teams.Update))
		teamsRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.SessionPerm("teams.manage", teams.Delete))
	})
}

func RegisterGuards(apiRouter chi.Router, g Guards, guards *handlers.GuardsHandler) {
	apiRouter.Route("/guards", func(guardsRouter chi.Router) {
		guardsRouter.MethodFunc("GET", "/", g.SessionPerm("guards.view", guards.List))
		guardsRouter.MethodFunc("POST", "/", g.SessionPerm("guards.manage", guards.Create))
		guardsRouter.MethodFunc("GET", "/candidates", g.SessionPerm("guards.manage", guards.Candidates))
		guardsRouter.MethodFunc("GET", "/{id:[0-9]+}", g.SessionPerm("guards.view", guards.Get))
		guardsRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.SessionPerm("guards.manage", guards.Update))
		guardsRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.SessionPerm("guards.manage", guards.Delete))
	})
}
