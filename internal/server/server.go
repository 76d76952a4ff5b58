// Пакет server — HTTP-сервер Onboarding Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/craftlink/onboarding-module/internal/api/handlers"
	"github.com/craftlink/onboarding-module/internal/api/middleware"
	"github.com/craftlink/onboarding-module/internal/config"
)

// Server — HTTP-сервер Onboarding Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth может быть nil только в тестах — тогда защищённые маршруты
// регистрируются без проверки токена.
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, jwtAuth *middleware.JWTAuth) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.DeviceID())

	// Публичные маршруты: probes, метрики и сохранение флагов приглашения
	// (инвайт-лендинг работает до аутентификации).
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)
	router.Put("/api/v1/invites/pending", handler.PutPendingInvite)

	// Защищённые маршруты — за JWT middleware.
	router.Group(func(r chi.Router) {
		if jwtAuth != nil {
			r.Use(jwtAuth.Middleware())
		}

		r.Post("/api/v1/session/events", handler.SessionEvent)

		r.Get("/api/v1/onboarding/state", handler.OnboardingState)
		r.Post("/api/v1/onboarding/start", handler.OnboardingStart)
		r.Post("/api/v1/onboarding/back", handler.OnboardingBack)
		r.Post("/api/v1/onboarding/reset", handler.OnboardingReset)
		r.Post("/api/v1/onboarding/steps/{role}/close", handler.OnboardingCloseStep)
		r.Put("/api/v1/onboarding/steps/{role}/draft", handler.OnboardingSaveDraft)
		r.Get("/api/v1/onboarding/steps/{role}/draft", handler.OnboardingGetDraft)

		r.Post("/api/v1/invites/resolve", handler.ResolveInvite)

		r.Put("/api/v1/bookings/pending", handler.PutPendingBooking)
		r.Delete("/api/v1/bookings/pending", handler.DeletePendingBooking)

		r.Get("/api/v1/notices", handler.GetNotices)

		r.Post("/api/v1/auth/signout", handler.SignOut)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
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
		if err != nil && err != http.ErrServerClosed {
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

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
