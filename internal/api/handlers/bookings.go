// bookings.go — обработчики /api/v1/bookings/pending.
// Черновик бронирования сохраняется, когда пользователь попытался
// забронировать услугу до завершения онбординга, и потребляется
// резолвером приглашений ровно один раз.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	apierrors "github.com/craftlink/onboarding-module/internal/api/errors"
	"github.com/craftlink/onboarding-module/internal/api/middleware"
	"github.com/craftlink/onboarding-module/internal/domain/model"
)

// PutPendingBooking — реализация PUT /api/v1/bookings/pending.
func (h *APIHandler) PutPendingBooking(w http.ResponseWriter, r *http.Request) {
	if claims := requireClaims(w, r); claims == nil {
		return
	}
	deviceID := middleware.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		apierrors.ValidationError(w, "Требуется заголовок X-Device-ID")
		return
	}

	var draft model.BookingDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}
	if draft.ServiceID == "" {
		apierrors.ValidationError(w, "Идентификатор услуги обязателен")
		return
	}
	draft.DeviceID = deviceID
	draft.CreatedAt = time.Now().UTC()

	// Валидация даты/времени/длительности до сохранения:
	// некорректный черновик всё равно не превратится в бронирование.
	if _, _, err := draft.Window(); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	if err := h.bookRepo.Put(r.Context(), &draft); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePendingBooking — реализация DELETE /api/v1/bookings/pending.
func (h *APIHandler) DeletePendingBooking(w http.ResponseWriter, r *http.Request) {
	if claims := requireClaims(w, r); claims == nil {
		return
	}
	deviceID := middleware.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		apierrors.ValidationError(w, "Требуется заголовок X-Device-ID")
		return
	}

	if err := h.bookRepo.Delete(r.Context(), deviceID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
