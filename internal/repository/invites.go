package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/craftlink/onboarding-module/internal/domain/model"
)

// PendingInviteRepository — долговечные флаги инвайт-процесса.
// Запись создаётся на публичном инвайт-лендинге (до аутентификации),
// читается оркестратором после входа и удаляется сразу после того,
// как инвайт принят или окончательно отклонён.
type PendingInviteRepository interface {
	// Get возвращает флаги по device ID или ErrNotFound.
	Get(ctx context.Context, deviceID string) (*model.PendingInvite, error)
	// Put сохраняет флаги (upsert: повторный лендинг перезаписывает старые).
	Put(ctx context.Context, inv *model.PendingInvite) error
	// Delete удаляет флаги. Отсутствие записи ошибкой не считается:
	// очистка конкурирующими путями завершения должна быть идемпотентной.
	Delete(ctx context.Context, deviceID string) error
}

// pendingInviteRepo — реализация PendingInviteRepository через pgx.
type pendingInviteRepo struct {
	db DBTX
}

// NewPendingInviteRepository создаёт репозиторий флагов инвайта.
func NewPendingInviteRepository(db DBTX) PendingInviteRepository {
	return &pendingInviteRepo{db: db}
}

func (r *pendingInviteRepo) Get(ctx context.Context, deviceID string) (*model.PendingInvite, error) {
	query := `
		SELECT device_id, token, creative_user_id, pre_select_client, needs_client_role, created_at
		FROM pending_invites
		WHERE device_id = $1`

	inv := &model.PendingInvite{}
	err := r.db.QueryRow(ctx, query, deviceID).Scan(
		&inv.DeviceID, &inv.Token, &inv.CreativeUserID,
		&inv.PreSelectClient, &inv.NeedsClientRole, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения флагов инвайта: %w", err)
	}
	return inv, nil
}

func (r *pendingInviteRepo) Put(ctx context.Context, inv *model.PendingInvite) error {
	query := `
		INSERT INTO pending_invites (device_id, token, creative_user_id, pre_select_client, needs_client_role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id) DO UPDATE SET
			token = EXCLUDED.token,
			creative_user_id = EXCLUDED.creative_user_id,
			pre_select_client = EXCLUDED.pre_select_client,
			needs_client_role = EXCLUDED.needs_client_role,
			created_at = now()`

	_, err := r.db.Exec(ctx, query,
		inv.DeviceID, inv.Token, inv.CreativeUserID, inv.PreSelectClient, inv.NeedsClientRole,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения флагов инвайта: %w", err)
	}
	return nil
}

func (r *pendingInviteRepo) Delete(ctx context.Context, deviceID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM pending_invites WHERE device_id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("ошибка удаления флагов инвайта: %w", err)
	}
	return nil
}
