// session.go — обработчик POST /api/v1/session/events.
// Принимает нормализованные события аутентификации от фронтенда
// и возвращает результирующее состояние потока онбординга.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/craftlink/onboarding-module/internal/api/errors"
	"github.com/craftlink/onboarding-module/internal/api/middleware"
	"github.com/craftlink/onboarding-module/internal/domain/model"
)

// sessionEventRequest — тело запроса события сессии.
type sessionEventRequest struct {
	// Type — тип события: signed_in, token_refreshed, signed_out.
	Type string `json:"type"`
	// RefreshToken — refresh token пары (для cookie sync).
	RefreshToken string `json:"refresh_token,omitempty"`
}

// sessionEventResponse — результат обработки события.
type sessionEventResponse struct {
	State any `json:"state"`
}

// SessionEvent — реализация POST /api/v1/session/events.
// Идентичность и access token берутся из проверенного JWT,
// тело несёт только тип события и refresh token.
func (h *APIHandler) SessionEvent(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	var req sessionEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	event := model.SessionEventType(req.Type)
	switch event {
	case model.EventSignedIn, model.EventTokenRefreshed, model.EventSignedOut:
	default:
		apierrors.ValidationError(w, "Неизвестный тип события сессии: "+req.Type)
		return
	}

	session := &model.Session{
		UserID:       claims.Subject,
		AccessToken:  claims.Token,
		RefreshToken: req.RefreshToken,
		Email:        claims.Email,
	}

	state, err := h.session.HandleEvent(
		r.Context(), event, session, middleware.DeviceIDFromContext(r.Context()),
	)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionEventResponse{State: state})
}
