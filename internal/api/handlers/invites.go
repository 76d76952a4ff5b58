// invites.go — обработчики /api/v1/invites/*.
// PUT /pending — публичный: инвайт-лендинг сохраняет флаги приглашения
// до аутентификации, привязывая их к устройству.
// POST /resolve — защищённый: явный запуск резолвинга приглашения.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	apierrors "github.com/craftlink/onboarding-module/internal/api/errors"
	"github.com/craftlink/onboarding-module/internal/api/middleware"
	"github.com/craftlink/onboarding-module/internal/domain/model"
)

// pendingInviteRequest — тело запроса PUT /api/v1/invites/pending.
type pendingInviteRequest struct {
	Token           string `json:"token"`
	CreativeUserID  string `json:"creative_user_id"`
	PreSelectClient bool   `json:"pre_select_client"`
	NeedsClientRole bool   `json:"needs_client_role"`
}

// resolveResponse — ответ POST /api/v1/invites/resolve.
type resolveResponse struct {
	// Redirect — рекомендованный переход для UI после резолвинга.
	Redirect string `json:"redirect"`
}

// PutPendingInvite — реализация PUT /api/v1/invites/pending.
// Публичный endpoint: вызывается до входа. Требует заголовок X-Device-ID.
func (h *APIHandler) PutPendingInvite(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		apierrors.ValidationError(w, "Требуется заголовок X-Device-ID")
		return
	}

	var req pendingInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if req.Token == "" {
		apierrors.ValidationError(w, "Токен приглашения обязателен")
		return
	}

	inv := &model.PendingInvite{
		DeviceID:        deviceID,
		Token:           req.Token,
		CreativeUserID:  req.CreativeUserID,
		PreSelectClient: req.PreSelectClient,
		NeedsClientRole: req.NeedsClientRole,
		CreatedAt:       time.Now().UTC(),
	}
	if err := h.invRepo.Put(r.Context(), inv); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveInvite — реализация POST /api/v1/invites/resolve.
// Явный запуск резолвинга: принимает отложенное приглашение текущего
// устройства (если есть) и возвращает рекомендованный переход.
func (h *APIHandler) ResolveInvite(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	profile, err := h.profiles.Get(r.Context(), claims.Subject, claims.Token)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	redirect, err := h.invites.ResolveAfterSetup(
		r.Context(), claims.Subject, claims.Token,
		middleware.DeviceIDFromContext(r.Context()), profile.Roles,
	)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{Redirect: redirect})
}
