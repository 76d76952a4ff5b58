package model

import (
	"fmt"
	"time"
)

// BookingDraft — отложенный запрос бронирования.
// Создаётся, когда посетитель попытался забронировать услугу до завершения
// аутентификации/онбординга. Привязан к устройству (как и PendingInvite).
// Потребляется ровно один раз сразу после принятия инвайта и удаляется
// независимо от исхода создания бронирования.
type BookingDraft struct {
	// DeviceID — устройство, на котором начато бронирование.
	DeviceID string `json:"-"`
	// ServiceID — идентификатор услуги.
	ServiceID string `json:"service_id"`
	// Date — дата бронирования (YYYY-MM-DD).
	Date string `json:"date"`
	// Time — время начала (HH:MM).
	Time string `json:"time"`
	// DurationMinutes — длительность в минутах.
	DurationMinutes int `json:"duration_minutes"`
	// Notes — комментарий клиента.
	Notes string `json:"notes,omitempty"`
	// CreatedAt — время сохранения черновика.
	CreatedAt time.Time `json:"-"`
}

// Window вычисляет абсолютные времена начала и конца бронирования
// из даты, времени и длительности черновика.
func (b *BookingDraft) Window() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02 15:04", b.Date+" "+b.Time)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("разбор даты/времени бронирования: %w", err)
	}
	if b.DurationMinutes <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("некорректная длительность бронирования: %d", b.DurationMinutes)
	}
	end = start.Add(time.Duration(b.DurationMinutes) * time.Minute)
	return start, end, nil
}

// BookingRequest — тело запроса POST /bookings к Core API.
type BookingRequest struct {
	ServiceID string    `json:"service_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Notes     string    `json:"notes,omitempty"`
}
