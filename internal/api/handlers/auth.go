// auth.go — обработчик POST /api/v1/auth/signout.
// Многослойный выход: cookie, Auth Provider, локальное состояние.
// Endpoint никогда не возвращает ошибку — выход не должен «застревать»
// из-за недоступности внешних систем.
package handlers

import (
	"net/http"

	"github.com/craftlink/onboarding-module/internal/api/middleware"
)

// SignOut — реализация POST /api/v1/auth/signout.
func (h *APIHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	h.auth.SignOut(
		r.Context(), claims.Subject, claims.Token,
		middleware.DeviceIDFromContext(r.Context()),
	)
	w.WriteHeader(http.StatusNoContent)
}
