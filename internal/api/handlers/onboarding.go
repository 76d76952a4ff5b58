// onboarding.go — обработчики /api/v1/onboarding/*.
// Управление конечным автоматом последовательной настройки ролей:
// снимок состояния, запуск, закрытие шага, возврат назад, сброс, черновики.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/craftlink/onboarding-module/internal/api/errors"
	"github.com/craftlink/onboarding-module/internal/api/middleware"
	"github.com/craftlink/onboarding-module/internal/domain/roles"
)

// startSetupRequest — тело запроса POST /api/v1/onboarding/start.
type startSetupRequest struct {
	// Roles — выбранные пользователем роли.
	Roles []string `json:"roles"`
}

// draftResponse — ответ GET /api/v1/onboarding/steps/{role}/draft.
type draftResponse struct {
	Role      roles.Role      `json:"role"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// OnboardingState — реализация GET /api/v1/onboarding/state.
func (h *APIHandler) OnboardingState(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	state, err := h.setup.State(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// OnboardingStart — реализация POST /api/v1/onboarding/start.
// Сохраняет выбранные роли через Core API и открывает первый диалог
// настройки (или сразу завершает поток, если диалогов нет).
func (h *APIHandler) OnboardingStart(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req startSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if len(req.Roles) == 0 {
		apierrors.ValidationError(w, "Нужно выбрать хотя бы одну роль")
		return
	}

	selected := make([]roles.Role, 0, len(req.Roles))
	for _, raw := range req.Roles {
		role, ok := roles.Parse(raw)
		if !ok {
			apierrors.ValidationError(w, "Неизвестная роль: "+raw)
			return
		}
		selected = append(selected, role)
	}

	// Выбор ролей при первом входе: все выбранные роли — новые,
	// каждая проходит настройку
	state, err := h.setup.Start(
		r.Context(), claims.Subject, claims.Token,
		middleware.DeviceIDFromContext(r.Context()), selected, selected,
	)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// OnboardingCloseStep — реализация POST /api/v1/onboarding/steps/{role}/close.
// Тело запроса (опционально) — данные формы шага; пустое тело означает
// использовать сохранённый черновик.
func (h *APIHandler) OnboardingCloseStep(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	role, ok := roles.Parse(chi.URLParam(r, "role"))
	if !ok {
		apierrors.ValidationError(w, "Неизвестная роль в пути запроса")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		apierrors.ValidationError(w, "Не удалось прочитать тело запроса")
		return
	}
	if len(data) > 0 && !json.Valid(data) {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	state, err := h.setup.CloseStep(
		r.Context(), claims.Subject, claims.Token,
		middleware.DeviceIDFromContext(r.Context()), role, data,
	)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// OnboardingBack — реализация POST /api/v1/onboarding/back.
func (h *APIHandler) OnboardingBack(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	state, err := h.setup.Back(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// OnboardingReset — реализация POST /api/v1/onboarding/reset.
// Жёсткий сброс: забывает очередь, завершённые шаги и черновики,
// возвращает пользователя к выбору ролей.
func (h *APIHandler) OnboardingReset(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	state, err := h.setup.Reset(r.Context(), claims.Subject)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// OnboardingSaveDraft — реализация PUT /api/v1/onboarding/steps/{role}/draft.
func (h *APIHandler) OnboardingSaveDraft(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	role, ok := roles.Parse(chi.URLParam(r, "role"))
	if !ok {
		apierrors.ValidationError(w, "Неизвестная роль в пути запроса")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		apierrors.ValidationError(w, "Не удалось прочитать тело запроса")
		return
	}
	if len(data) == 0 || !json.Valid(data) {
		apierrors.ValidationError(w, "Черновик должен быть корректным JSON")
		return
	}

	if err := h.setup.SaveDraft(r.Context(), claims.Subject, role, data); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OnboardingGetDraft — реализация GET /api/v1/onboarding/steps/{role}/draft.
func (h *APIHandler) OnboardingGetDraft(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	role, ok := roles.Parse(chi.URLParam(r, "role"))
	if !ok {
		apierrors.ValidationError(w, "Неизвестная роль в пути запроса")
		return
	}

	draft, err := h.setup.Draft(r.Context(), claims.Subject, role)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, draftResponse{
		Role:      draft.Role,
		Data:      draft.Data,
		UpdatedAt: draft.UpdatedAt,
	})
}
