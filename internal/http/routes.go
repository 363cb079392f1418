package httpx

import (
	"net/http"

	"github.com/scadforge/scadforge/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs *service.JobService
	// Optional: LLM-assisted endpoints. Routes are registered only when set.
	Generate *service.GenerateService
	Chat     *service.ChatService
	// Optional: database pinger for the health endpoint.
	DB Pinger
	// MaxBodyBytes caps the submission request body. Zero disables the cap.
	MaxBodyBytes int64
}

// NewRouter creates and configures the HTTP router. Middleware is
// applied by the caller so compression and logging stay configurable.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs, MaxBodyBytes: services.MaxBodyBytes}
	registerJobRoutes(mux, jobHandlers)

	if services.Generate != nil && services.Chat != nil {
		aiHandlers := &AIHandlers{Generate: services.Generate, Chat: services.Chat}
		registerAIRoutes(mux, aiHandlers)
	}

	health := &HealthHandler{DB: services.DB}
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	return mux
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("POST /api/jobs", h.SubmitJob)
	mux.HandleFunc("GET /api/jobs/stats", h.Stats)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /api/jobs/{id}/artifact/{kind}", h.GetArtifact)
}

func registerAIRoutes(mux *http.ServeMux, h *AIHandlers) {
	mux.HandleFunc("POST /api/generate", h.GenerateSource)
	mux.HandleFunc("POST /api/chat", h.ChatMessage)
}
