package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dosada05/pong-server/handlers"
	"github.com/Dosada05/pong-server/middleware"
	"github.com/Dosada05/pong-server/models"
)

type Options struct {
	AllowedOrigins []string
	JWTSecretKey   string
	Registry       *prometheus.Registry
}

func SetupRoutes(
	router chi.Router,
	opts Options,
	gameHandler *handlers.GameHandler,
	tournamentHandler *handlers.TournamentHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	identity := middleware.Identity(opts.JWTSecretKey)

	router.Get("/healthz", gameHandler.HealthHandler)
	if opts.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	// браузер не может передать заголовок при апгрейде, токен приходит в ?token=
	router.With(identity).Get("/ws", webSocketHandler.ServeWs)

	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(identity)

			r.Post("/join", gameHandler.JoinHandler)
			r.Post("/join-classic", gameHandler.JoinModeHandler(models.ModeClassic))
			r.Post("/join-tournament", gameHandler.JoinModeHandler(models.ModeTournament))
			r.Post("/bot-classic", gameHandler.JoinModeHandler(models.ModeBot))
			r.Post("/leave", gameHandler.LeaveHandler)
		})

		r.Get("/games/{gameID}", gameHandler.GetGameHandler)
		r.Get("/status", gameHandler.StatusHandler)

		r.Route("/tournaments", func(r chi.Router) {
			r.Get("/", tournamentHandler.ListHandler)
			r.Get("/{tournamentID}", tournamentHandler.GetByIDHandler)
		})
	})
}
