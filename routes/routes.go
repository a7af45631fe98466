package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/defuselab/defusal-tournament/handlers"
	"github.com/defuselab/defusal-tournament/middleware"
	"github.com/defuselab/defusal-tournament/models"
)

func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	authHandler *handlers.AuthHandler,
	tournamentHandler *handlers.TournamentHandler,
	teamHandler *handlers.TeamHandler,
	sessionHandler *handlers.SessionHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate([]byte(jwtSecret))

	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", tournamentHandler.List)
		r.Get("/{id}", tournamentHandler.GetByID)
		r.Get("/{id}/leaderboard", tournamentHandler.Leaderboard)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(string(models.RoleOrganizer)))
			r.Post("/", tournamentHandler.Create)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/{id}/join", teamHandler.Join)
			r.Post("/{id}/leave", teamHandler.Leave)
		})
	})

	router.Route("/teams", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/{teamID}/emblem", teamHandler.UploadEmblem)
	})

	// Completion callback from the game engine.
	router.Route("/sessions", func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/{sessionID}/complete", sessionHandler.Complete)
	})

	router.Get("/ws/tournaments/{id}", webSocketHandler.ServeWs)
}
