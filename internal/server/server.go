// Пакет server — HTTP-сервер Election API с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goelection/election-api/internal/api/handlers"
	"github.com/bigkaa/goelection/election-api/internal/api/middleware"
	"github.com/bigkaa/goelection/election-api/internal/config"
	"github.com/bigkaa/goelection/election-api/internal/domain/rbac"
)

// Handlers — набор обработчиков, из которых собирается роутер.
type Handlers struct {
	Health    *handlers.HealthHandler
	Auth      *handlers.AuthHandler
	Voter     *handlers.VoterHandler
	Candidate *handlers.CandidateHandler
	Admin     *handlers.AdminHandler
	Events    *handlers.EventsHandler
}

// Server — HTTP-сервер Election API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, jwtAuth *middleware.JWTAuth) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, h, jwtAuth),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер. Права проверяются на уровне групп,
// обработчики их не перепроверяют.
func NewRouter(logger *slog.Logger, h Handlers, jwtAuth *middleware.JWTAuth) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую, без JWT.
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Get("/metrics", h.Health.GetMetrics)
	router.Get("/.well-known/jwks.json", h.Auth.JWKS)

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Auth.Register)
			r.Post("/login", h.Auth.Login)
			r.Post("/verify-otp", h.Auth.VerifyOTP)
			r.Post("/forgot-password", h.Auth.ForgotPassword)
			r.Post("/reset-password", h.Auth.ResetPassword)
			r.With(jwtAuth.Middleware()).Post("/refresh", h.Auth.Refresh)
		})

		// EventSource не умеет ставить заголовки, поэтому токен
		// допускается в query-параметре только здесь.
		r.With(jwtAuth.WithQueryToken().Middleware()).Get("/events", h.Events.Stream)

		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware())

			r.Route("/voter", func(r chi.Router) {
				r.With(middleware.RequirePermission(rbac.CanViewDashboard)).Get("/dashboard", h.Voter.Dashboard)
				r.With(middleware.RequirePermission(rbac.CanVote)).Post("/vote", h.Voter.Vote)
				r.Get("/trends", h.Voter.Trends)
				r.Get("/notifications", h.Voter.Notifications)
				r.Put("/profile", h.Voter.UpdateProfile)
			})

			r.Route("/candidate", func(r chi.Router) {
				r.With(middleware.RequirePermission(rbac.CanApplyForCandidacy)).Post("/apply", h.Candidate.Apply)
				r.Get("/stats", h.Candidate.Stats)
				r.Put("/manifesto", h.Candidate.UpdateManifesto)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(rbac.CanViewAdminStats))
					r.Get("/summary", h.Admin.Summary)
					r.Get("/users", h.Admin.ListUsers)
					r.Get("/logs", h.Admin.AuditLogs)
					r.Put("/users/{id}/role", h.Admin.UpdateUserRole)
					r.Delete("/users/{id}", h.Admin.DeleteUser)
				})

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(rbac.CanCreatePosition))
					r.Post("/notifications/broadcast", h.Admin.Broadcast)
					r.Post("/offices", h.Admin.CreateOffice)
				})

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(rbac.CanApproveCandidate))
					r.Get("/candidates/pending", h.Admin.PendingCandidates)
					r.Put("/candidates/{id}/approve", h.Admin.ApproveCandidate)
					r.Put("/candidates/{id}/deny", h.Admin.DenyCandidate)
				})
			})
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// SSE-соединения живут долго: Shutdown их не дождётся,
	// поэтому по таймауту соединения закрываются принудительно.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
