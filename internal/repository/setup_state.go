package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/craftlink/onboarding-module/internal/domain/model"
	"github.com/craftlink/onboarding-module/internal/domain/roles"
)

// SetupStateRepository — состояние последовательной настройки ролей.
// Состояние переживает перезагрузку страницы и рестарт сервиса:
// пользователь, закрывший вкладку посреди онбординга, продолжает
// с того же шага.
type SetupStateRepository interface {
	// Get возвращает состояние пользователя или ErrNotFound.
	Get(ctx context.Context, userID string) (*model.SetupState, error)
	// Save сохраняет состояние (upsert).
	Save(ctx context.Context, st *model.SetupState) error
	// Delete удаляет состояние (полный сброс). Идемпотентен.
	Delete(ctx context.Context, userID string) error
}

// SetupDraftRepository — черновики форм настройки (TempSetupData).
type SetupDraftRepository interface {
	// Get возвращает черновик формы роли или ErrNotFound.
	Get(ctx context.Context, userID string, role roles.Role) (*model.SetupDraft, error)
	// Put сохраняет черновик (upsert по паре user_id + role).
	Put(ctx context.Context, draft *model.SetupDraft) error
	// DeleteAll удаляет все черновики пользователя (полное завершение
	// или возврат к выбору ролей). Идемпотентен.
	DeleteAll(ctx context.Context, userID string) error
}

// setupStateRepo — реализация SetupStateRepository через pgx.
type setupStateRepo struct {
	db DBTX
}

// NewSetupStateRepository создаёт репозиторий состояния настройки.
func NewSetupStateRepository(db DBTX) SetupStateRepository {
	return &setupStateRepo{db: db}
}

func (r *setupStateRepo) Get(ctx context.Context, userID string) (*model.SetupState, error) {
	query := `
		SELECT user_id, phase, queue, completed, updated_at
		FROM setup_states
		WHERE user_id = $1`

	st := &model.SetupState{}
	var phase string
	var queue, completed []string
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&st.UserID, &phase, &queue, &completed, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения состояния настройки: %w", err)
	}
	st.Phase = model.SetupPhase(phase)
	st.Queue = toRoles(queue)
	st.Completed = toRoles(completed)
	return st, nil
}

func (r *setupStateRepo) Save(ctx context.Context, st *model.SetupState) error {
	query := `
		INSERT INTO setup_states (user_id, phase, queue, completed, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			queue = EXCLUDED.queue,
			completed = EXCLUDED.completed,
			updated_at = now()`

	_, err := r.db.Exec(ctx, query,
		st.UserID, string(st.Phase), toStrings(st.Queue), toStrings(st.Completed),
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения состояния настройки: %w", err)
	}
	return nil
}

func (r *setupStateRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM setup_states WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("ошибка удаления состояния настройки: %w", err)
	}
	return nil
}

// setupDraftRepo — реализация SetupDraftRepository через pgx.
type setupDraftRepo struct {
	db DBTX
}

// NewSetupDraftRepository создаёт репозиторий черновиков форм настройки.
func NewSetupDraftRepository(db DBTX) SetupDraftRepository {
	return &setupDraftRepo{db: db}
}

func (r *setupDraftRepo) Get(ctx context.Context, userID string, role roles.Role) (*model.SetupDraft, error) {
	query := `
		SELECT user_id, role, data, updated_at
		FROM setup_drafts
		WHERE user_id = $1 AND role = $2`

	draft := &model.SetupDraft{}
	var roleStr string
	err := r.db.QueryRow(ctx, query, userID, string(role)).Scan(
		&draft.UserID, &roleStr, &draft.Data, &draft.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения черновика формы: %w", err)
	}
	draft.Role = roles.Role(roleStr)
	return draft, nil
}

func (r *setupDraftRepo) Put(ctx context.Context, draft *model.SetupDraft) error {
	query := `
		INSERT INTO setup_drafts (user_id, role, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, role) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = now()`

	_, err := r.db.Exec(ctx, query, draft.UserID, string(draft.Role), draft.Data)
	if err != nil {
		return fmt.Errorf("ошибка сохранения черновика формы: %w", err)
	}
	return nil
}

func (r *setupDraftRepo) DeleteAll(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM setup_drafts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("ошибка удаления черновиков форм: %w", err)
	}
	return nil
}

// toRoles преобразует строки из text[] в роли.
func toRoles(ss []string) []roles.Role {
	rs := make([]roles.Role, 0, len(ss))
	for _, s := range ss {
		rs = append(rs, roles.Role(s))
	}
	return rs
}

// toStrings преобразует роли в строки для text[].
func toStrings(rs []roles.Role) []string {
	ss := make([]string, 0, len(rs))
	for _, r := range rs {
		ss = append(ss, string(r))
	}
	return ss
}
