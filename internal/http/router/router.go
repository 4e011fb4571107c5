package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/foundrynet/telegram-login-service/internal/http/handler"
	"github.com/foundrynet/telegram-login-service/internal/http/middleware"
	"github.com/foundrynet/telegram-login-service/internal/http/response"
	"github.com/foundrynet/telegram-login-service/internal/security"
)

type Dependencies struct {
	LoginHandler     *handler.LoginHandler
	JWTManager       *security.JWTManager
	BotWebhookSecret string
	CORSOrigins      []string
	APIRateLimitRPM  int
	PollRateLimitRPM int
	ReadinessCheck   func(ctx context.Context) error
	EnableOTelHTTP   bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: dep.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware())

	// Polling clients fire several requests a minute per tab, so the
	// status endpoint gets its own, roomier window.
	pollLimiter := middleware.NewRateLimiter(dep.PollRateLimitRPM, time.Minute, "poll").Middleware()

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.ReadinessCheck != nil {
			if err := dep.ReadinessCheck(r.Context()); err != nil {
				response.Error(w, http.StatusServiceUnavailable, "dependencies are not ready")
				return
			}
		}
		response.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api/v1/auth/telegram", func(r chi.Router) {
		r.Post("/token", dep.LoginHandler.CreateToken)
		r.With(pollLimiter).Get("/status", dep.LoginHandler.Status)
		r.With(middleware.BotAuth(dep.BotWebhookSecret)).Post("/confirm", dep.LoginHandler.Confirm)
		r.Post("/session", dep.LoginHandler.EstablishSession)
		r.With(middleware.Auth(dep.JWTManager)).Get("/me", dep.LoginHandler.Me)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
