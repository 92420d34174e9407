// internal/wire/wire.go
package wire

import (
	"net/http"

	"hotel-booking/internal/adaptor"
	"hotel-booking/internal/data/repository"
	"hotel-booking/internal/usecase"
	"hotel-booking/pkg/middleware"
	"hotel-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// App holds the wired router and the services background workers need.
type App struct {
	Router  http.Handler
	Service *usecase.Service
}

// Deps are the outside collaborators the HTTP surface is built on.
type Deps struct {
	Repo        *repository.Repository
	Provider    usecase.Provider
	Notifier    usecase.EventNotifier
	Idempotency middleware.IdempotencyStore
}

// Wiring builds services, handlers and routes.
func Wiring(deps Deps, config *utils.Config, logger *zap.Logger) *App {
	service := usecase.NewService(deps.Repo, deps.Provider, deps.Notifier, config, logger)
	handler := adaptor.NewHandler(service, logger)

	router := setupRouter(handler, deps, config, logger)

	return &App{
		Router:  otelhttp.NewHandler(router, "http.server"),
		Service: service,
	}
}

func setupRouter(
	handler *adaptor.Handler,
	deps Deps,
	config *utils.Config,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))

	wireAvailability(r, handler.Availability)
	wireBooking(r, handler.Booking, deps.Idempotency, config, logger)
	wireWebhook(r, handler.Webhook)
	wireAdmin(r, handler.Admin, config, logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
