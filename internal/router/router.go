package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"sandy-backend/internal/handlers"
	"sandy-backend/internal/middleware"
	"sandy-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	sessionHandler *handlers.SessionHandler,
	chatHandler *handlers.ChatHandler,
	folderHandler *handlers.FolderHandler,
	uploadHandler *handlers.UploadHandler,
	profileHandler *handlers.ProfileHandler,
	catalogHandler *handlers.CatalogHandler,
	wsHub *websocket.Hub,
	storageRoot string,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Session rate limiter (30 req/min per user)
	sessionLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Uploaded files, served statically
	r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(storageRoot))))

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Model Catalog (public) ────
		r.Get("/models", catalogHandler.List)

		// ──── Session Lifecycle ────
		// Auth first so the limiter counts per user, not per address
		r.Route("/session", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(sessionLimiter.Middleware)
			r.Post("/", sessionHandler.Attach)
			r.Get("/", sessionHandler.State)
			r.Delete("/", sessionHandler.Detach)
		})

		// ──── Chat Routes ────
		r.Route("/chats", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", chatHandler.Create)
			r.Get("/", chatHandler.List)
			r.Put("/current", chatHandler.SetCurrent)
			r.Get("/{id}", chatHandler.Get)
			r.Delete("/{id}", chatHandler.Delete)
			r.Put("/{id}/title", chatHandler.UpdateTitle)
			r.Put("/{id}/model", chatHandler.UpdateModel)
			r.Put("/{id}/favorite", chatHandler.ToggleFavorite)
			r.Put("/{id}/folder", chatHandler.AssignFolder)
			r.Put("/{id}/messages/{index}", chatHandler.Edit)
			r.Delete("/{id}/generation", chatHandler.Stop)
		})

		// Submit goes to the current chat, creating one when none exists
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/messages", chatHandler.Submit)
		})

		// ──── Folder Routes ────
		r.Route("/folders", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", folderHandler.Create)
			r.Get("/", folderHandler.List)
			r.Put("/{id}", folderHandler.Update)
			r.Delete("/{id}", folderHandler.Delete)
		})

		// ──── Upload Routes ────
		r.Route("/uploads", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", uploadHandler.Create)
			r.Get("/", uploadHandler.List)
			r.Delete("/{id}", uploadHandler.Cancel)
			r.Post("/remove", uploadHandler.Remove)
		})

		// ──── Profile Routes ────
		r.Route("/profile", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", profileHandler.Get)
			r.Put("/", profileHandler.Update)
			r.Post("/validate-key", profileHandler.ValidateKey)
			r.Put("/sidebar", profileHandler.ToggleSidebar)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
