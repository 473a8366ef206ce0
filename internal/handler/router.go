package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter собирает HTTP маршруты API
func NewRouter(authHandler *AuthHandler, datasetHandler *DatasetHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Dataset-Version", "X-Checksum-Blake3"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the dataset hub API"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Get("/me", authHandler.Me)
			r.Put("/me", authHandler.UpdateMe)
		})

		r.Route("/datasets", func(r chi.Router) {
			r.Post("/", datasetHandler.Create)
			r.Get("/", datasetHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", datasetHandler.Get)
				r.Put("/", datasetHandler.Update)
				r.Delete("/", datasetHandler.Delete)
				r.Post("/upload", datasetHandler.Upload)
				r.Get("/versions", datasetHandler.ListVersions)
				r.Get("/versions/{number}/download", datasetHandler.Download)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[Router] No route for %s %s", r.Method, r.URL.Path)
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})

	return r
}
