// notices.go — обработчик GET /api/v1/notices.
// UI периодически забирает очередь подтверждений; каждое уведомление
// выдаётся ровно один раз.
package handlers

import (
	"net/http"

	"github.com/craftlink/onboarding-module/internal/domain/model"
)

// noticesResponse — ответ GET /api/v1/notices.
type noticesResponse struct {
	Notices []model.Notice `json:"notices"`
}

// GetNotices — реализация GET /api/v1/notices.
func (h *APIHandler) GetNotices(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	writeJSON(w, http.StatusOK, noticesResponse{
		Notices: h.notices.Drain(claims.Subject),
	})
}
