package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/craftlink/onboarding-module/internal/domain/model"
)

// BookingDraftRepository — отложенные запросы бронирования.
// Черновик потребляется ровно один раз: Consume атомарно читает и удаляет
// запись (DELETE ... RETURNING), поэтому двойное потребление при
// конкурирующих путях завершения невозможно на уровне БД.
type BookingDraftRepository interface {
	// Put сохраняет черновик бронирования (upsert по device ID).
	Put(ctx context.Context, draft *model.BookingDraft) error
	// Consume атомарно возвращает и удаляет черновик или ErrNotFound.
	Consume(ctx context.Context, deviceID string) (*model.BookingDraft, error)
	// Delete удаляет черновик без чтения (отказ пользователя). Идемпотентен.
	Delete(ctx context.Context, deviceID string) error
}

// bookingDraftRepo — реализация BookingDraftRepository через pgx.
type bookingDraftRepo struct {
	db DBTX
}

// NewBookingDraftRepository создаёт репозиторий черновиков бронирования.
func NewBookingDraftRepository(db DBTX) BookingDraftRepository {
	return &bookingDraftRepo{db: db}
}

func (r *bookingDraftRepo) Put(ctx context.Context, draft *model.BookingDraft) error {
	query := `
		INSERT INTO booking_drafts (device_id, service_id, booking_date, booking_time, duration_minutes, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (device_id) DO UPDATE SET
			service_id = EXCLUDED.service_id,
			booking_date = EXCLUDED.booking_date,
			booking_time = EXCLUDED.booking_time,
			duration_minutes = EXCLUDED.duration_minutes,
			notes = EXCLUDED.notes,
			created_at = now()`

	_, err := r.db.Exec(ctx, query,
		draft.DeviceID, draft.ServiceID, draft.Date, draft.Time, draft.DurationMinutes, draft.Notes,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения черновика бронирования: %w", err)
	}
	return nil
}

func (r *bookingDraftRepo) Consume(ctx context.Context, deviceID string) (*model.BookingDraft, error) {
	query := `
		DELETE FROM booking_drafts
		WHERE device_id = $1
		RETURNING device_id, service_id, booking_date, booking_time, duration_minutes, notes, created_at`

	draft := &model.BookingDraft{}
	err := r.db.QueryRow(ctx, query, deviceID).Scan(
		&draft.DeviceID, &draft.ServiceID, &draft.Date, &draft.Time,
		&draft.DurationMinutes, &draft.Notes, &draft.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка потребления черновика бронирования: %w", err)
	}
	return draft, nil
}

func (r *bookingDraftRepo) Delete(ctx context.Context, deviceID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM booking_drafts WHERE device_id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("ошибка удаления черновика бронирования: %w", err)
	}
	return nil
}
