package router

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"toolchat-backend/internal/handlers"
	"toolchat-backend/internal/middleware"
)

func New(
	chatHandler *handlers.ChatHandler,
	chatLimiter *middleware.RateLimiter,
	providerConfigured bool,
	webFS fs.FS,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", handlers.Health(providerConfigured))

	r.Route("/api/v1", func(r chi.Router) {
		// ──── Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			if chatLimiter != nil {
				r.Use(chatLimiter.Middleware)
			}
			r.Post("/", chatHandler.Stream)
			r.Get("/ws", chatHandler.StreamWS)
		})
	})

	// ──── Browser UI ────
	if webFS != nil {
		r.Handle("/*", http.FileServer(http.FS(webFS)))
	}

	return r
}
