// handler.go — основной обработчик API Onboarding Module.
// Объединяет health и бизнес-обработчики, делегируя запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/craftlink/onboarding-module/internal/api/errors"
	"github.com/craftlink/onboarding-module/internal/api/middleware"
	"github.com/craftlink/onboarding-module/internal/repository"
	"github.com/craftlink/onboarding-module/internal/service"
)

// APIHandler — основной обработчик API Onboarding Module.
type APIHandler struct {
	health   *HealthHandler
	session  *service.SessionService
	setup    *service.SetupService
	profiles *service.ProfileService
	invites  *service.InviteService
	notices  *service.NoticeService
	auth     *service.AuthService
	invRepo  repository.PendingInviteRepository
	bookRepo repository.BookingDraftRepository
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	session *service.SessionService,
	setup *service.SetupService,
	profiles *service.ProfileService,
	invites *service.InviteService,
	notices *service.NoticeService,
	auth *service.AuthService,
	invRepo repository.PendingInviteRepository,
	bookRepo repository.BookingDraftRepository,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		session:  session,
		setup:    setup,
		profiles: profiles,
		invites:  invites,
		notices:  notices,
		auth:     auth,
		invRepo:  invRepo,
		bookRepo: bookRepo,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// requireClaims достаёт claims аутентифицированного пользователя из контекста.
// Возвращает nil и пишет 401, если claims отсутствуют (маршрут вне
// JWT middleware — ошибка конфигурации роутера).
func requireClaims(w http.ResponseWriter, r *http.Request) *middleware.AuthClaims {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return nil
	}
	return claims
}

// writeServiceError пишет HTTP-ошибку по ошибке сервисного слоя.
// Известные доменные ошибки получают свои коды; всё остальное
// трактуется как недоступность Core API (все внешние вызовы идут туда).
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrSetupInProgress):
		apierrors.SetupInProgress(w, "Настройка ролей уже идёт")
	case errors.Is(err, service.ErrStepNotOpen):
		apierrors.Conflict(w, "Диалог настройки этой роли не открыт")
	case errors.Is(err, service.ErrNothingCompleted):
		apierrors.Conflict(w, "Нет завершённых шагов для возврата")
	case errors.Is(err, repository.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.CoreAPIUnavailable(w, "Операция не выполнена: Core API недоступен")
	}
}
