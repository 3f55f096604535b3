package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/signin-api/internal/application/credential"
	"github.com/signin-api/internal/config"
	"github.com/signin-api/internal/transport/http/handler"
	appmiddleware "github.com/signin-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10 — every sign-in endpoint is public and
	// a target for enumeration, so all of them sit behind the limiter.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	credentialSvc := credential.NewService(credential.Deps{
		CredentialRepo: deps.CredentialRepo,
		Delivery:       deps.Delivery,
		TTL:            cfg.CredentialTTL,
	})

	healthH := handler.NewHealthHandler()
	signinH := handler.NewSigninHandler(credentialSvc)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)

			r.Post("/signin/link/request", signinH.RequestLink)
			r.Post("/signin/link/verify", signinH.VerifyLink)
			r.Post("/signin/code/request", signinH.RequestCode)
			r.Post("/signin/code/verify", signinH.VerifyCode)
		})
	})

	return r
}
