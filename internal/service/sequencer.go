// sequencer.go — конечный автомат последовательной настройки ролей
// (Setup Sequencer). Фазы: Idle, RoleSelection, StepOpen, Completing.
//
// Диалоги настройки открываются строго по одному, в фиксированном порядке
// (creative раньше advocate); роль client никогда не попадает в очередь —
// её профиль создаётся автоматически. Очередь и стек завершённых шагов
// персистентны: настройка переживает перезагрузку страницы и рестарт
// экземпляра.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/craftlink/onboarding-module/internal/domain/model"
	"github.com/craftlink/onboarding-module/internal/domain/roles"
	"github.com/craftlink/onboarding-module/internal/repository"
)

// Ошибки секвенсора.
var (
	// ErrSetupInProgress — попытка начать настройку при уже активной последовательности.
	// Повторный запуск отбрасывается, а не ставится в очередь.
	ErrSetupInProgress = errors.New("настройка ролей уже выполняется")
	// ErrStepNotOpen — операция над шагом, который сейчас не открыт.
	ErrStepNotOpen = errors.New("диалог этого шага не открыт")
	// ErrNothingCompleted — возврат назад при пустом стеке завершённых шагов.
	ErrNothingCompleted = errors.New("нет завершённых шагов для возврата")
)

var setupSequencesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "om_setup_sequences_total",
		Help: "Запуски и завершения последовательностей настройки ролей.",
	},
	[]string{"event"},
)

// SetupService — Setup Sequencer.
type SetupService struct {
	core    CoreAPI
	states  repository.SetupStateRepository
	drafts  repository.SetupDraftRepository
	invites *InviteService
	notices *NoticeService
	cache   *ProfileCache
	logger  *slog.Logger
}

// NewSetupService создаёт Setup Sequencer.
func NewSetupService(
	core CoreAPI,
	states repository.SetupStateRepository,
	drafts repository.SetupDraftRepository,
	invites *InviteService,
	notices *NoticeService,
	cache *ProfileCache,
	logger *slog.Logger,
) *SetupService {
	return &SetupService{
		core:    core,
		states:  states,
		drafts:  drafts,
		invites: invites,
		notices: notices,
		cache:   cache,
		logger:  logger.With(slog.String("component", "setup_sequencer")),
	}
}

// State возвращает снимок состояния настройки пользователя.
// Для пользователя без сохранённого состояния — фаза Idle.
func (s *SetupService) State(ctx context.Context, userID string) (*FlowState, error) {
	st, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return flowStateOf(st), nil
}

// InProgress сообщает, идёт ли у пользователя последовательная настройка.
func (s *SetupService) InProgress(ctx context.Context, userID string) bool {
	st, err := s.load(ctx, userID)
	if err != nil {
		s.logger.Error("Не удалось прочитать состояние настройки",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return st.InProgress()
}

// OpenRoleSelection переводит пользователя в фазу выбора ролей.
// Вызывается при первом входе без приглашения.
func (s *SetupService) OpenRoleSelection(ctx context.Context, userID string) (*FlowState, error) {
	st := &model.SetupState{
		UserID:    userID,
		Phase:     model.PhaseRoleSelection,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.states.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("сохранение состояния настройки: %w", err)
	}
	return flowStateOf(st), nil
}

// Start начинает последовательную настройку ролей.
//
// selected — полный набор ролей пользователя, сохраняется в Core API;
// added — только добавляемые роли, по ним строится очередь диалогов
// и выполняется провижининг. Возвращающийся пользователь, получающий
// роль client по приглашению, передаёт объединение в selected и [client]
// в added: его давние роли повторную настройку не проходят.
//
// Порядок действий:
//  1. Роли сохраняются в Core API (ошибка — user-actionable, настройка не начата).
//  2. Если добавляется client — синхронно создаётся client-профиль; провал
//     здесь фатален для всей последовательности (уведомление + сброс в Idle).
//  3. Очередь строится фильтрацией фиксированного порядка (creative, advocate)
//     по добавляемым ролям; client в очередь не попадает никогда.
//  4. Непустая очередь открывает первый диалог; пустая (добавлен только
//     client) сразу переводит в Completing.
//
// Повторный запуск при активной последовательности отбрасывается
// с ErrSetupInProgress.
func (s *SetupService) Start(
	ctx context.Context,
	userID string,
	accessToken string,
	deviceID string,
	selected []roles.Role,
	added []roles.Role,
) (*FlowState, error) {
	for _, r := range selected {
		if !roles.Valid(r) {
			return nil, fmt.Errorf("неизвестная роль %q", r)
		}
	}
	for _, r := range added {
		if !roles.Contains(selected, r) {
			return nil, fmt.Errorf("добавляемая роль %q отсутствует среди выбранных", r)
		}
	}

	current, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current.InProgress() {
		return nil, ErrSetupInProgress
	}

	if err := s.core.UpdateRoles(ctx, accessToken, selected); err != nil {
		s.notices.Push(userID, model.NoticeError, model.NoticeCodeSetupFailed,
			"Не удалось сохранить выбранные роли. Попробуйте ещё раз.")
		return nil, fmt.Errorf("сохранение ролей: %w", err)
	}

	// client настраивается автоматически, без диалога.
	// Провал провижининга фатален: без client-профиля приглашение
	// и бронирование не сработают.
	if roles.Contains(added, roles.RoleClient) {
		if err := s.core.SetupClientProfile(ctx, accessToken); err != nil {
			s.notices.Push(userID, model.NoticeError, model.NoticeCodeSetupFailed,
				"Не удалось создать профиль клиента. Попробуйте ещё раз.")
			if delErr := s.states.Delete(ctx, userID); delErr != nil {
				s.logger.Error("Не удалось сбросить состояние настройки",
					slog.String("error", delErr.Error()),
				)
			}
			return nil, fmt.Errorf("создание client-профиля: %w", err)
		}
	}

	s.cache.Delete(userID)
	setupSequencesTotal.WithLabelValues("started").Inc()

	queue := roles.BuildSetupQueue(added)
	st := &model.SetupState{
		UserID:    userID,
		Queue:     queue,
		Completed: []roles.Role{},
		UpdatedAt: time.Now().UTC(),
	}

	if len(queue) == 0 {
		// Только client: ни одного диалога, сразу завершение
		st.Phase = model.PhaseCompleting
		if err := s.states.Save(ctx, st); err != nil {
			return nil, fmt.Errorf("сохранение состояния настройки: %w", err)
		}
		return s.complete(ctx, st, accessToken, deviceID)
	}

	st.Phase = model.PhaseStepOpen
	if err := s.states.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("сохранение состояния настройки: %w", err)
	}

	s.logger.Info("Последовательная настройка начата",
		slog.String("user_id", userID),
		slog.Any("queue", queue),
	)
	return flowStateOf(st), nil
}

// Resume возобновляет настройку ролей, которые Core API числит
// незавершёнными. В отличие от Start, роли уже сохранены и client-профиль
// уже существует — здесь только строится очередь.
func (s *SetupService) Resume(ctx context.Context, userID string, pending []roles.Role) (*FlowState, error) {
	current, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current.InProgress() {
		return flowStateOf(current), nil
	}

	queue := roles.BuildSetupQueue(pending)
	if len(queue) == 0 {
		return flowStateOf(&model.SetupState{UserID: userID, Phase: model.PhaseIdle}), nil
	}

	st := &model.SetupState{
		UserID:    userID,
		Phase:     model.PhaseStepOpen,
		Queue:     queue,
		Completed: []roles.Role{},
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.states.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("сохранение состояния настройки: %w", err)
	}

	setupSequencesTotal.WithLabelValues("resumed").Inc()
	s.logger.Info("Возобновлена незавершённая настройка",
		slog.String("user_id", userID),
		slog.Any("queue", queue),
	)
	return flowStateOf(st), nil
}

// CloseStep закрывает открытый диалог настройки роли.
// Данные шага (черновик, если сохранялся) отправляются в Core API;
// при ошибке отправки состояние не меняется и пользователь может
// повторить закрытие. Опустевшая очередь переводит в Completing.
func (s *SetupService) CloseStep(
	ctx context.Context,
	userID string,
	accessToken string,
	deviceID string,
	role roles.Role,
	data json.RawMessage,
) (*FlowState, error) {
	st, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if st.OpenStep() != role {
		return nil, ErrStepNotOpen
	}

	// Данные шага: явно переданные имеют приоритет над черновиком
	if len(data) == 0 {
		if draft, err := s.drafts.Get(ctx, userID, role); err == nil {
			data = draft.Data
		}
	}

	if err := s.core.CompleteSetup(ctx, accessToken, role, data); err != nil {
		s.notices.Push(userID, model.NoticeError, model.NoticeCodeSetupFailed,
			"Не удалось сохранить настройку роли. Попробуйте ещё раз.")
		return nil, fmt.Errorf("завершение шага %s: %w", role, err)
	}

	st.Completed = append(st.Completed, role)
	st.Queue = st.Queue[1:]
	st.UpdatedAt = time.Now().UTC()

	if len(st.Queue) == 0 {
		st.Phase = model.PhaseCompleting
		if err := s.states.Save(ctx, st); err != nil {
			return nil, fmt.Errorf("сохранение состояния настройки: %w", err)
		}
		return s.complete(ctx, st, accessToken, deviceID)
	}

	if err := s.states.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("сохранение состояния настройки: %w", err)
	}

	s.logger.Info("Шаг настройки завершён",
		slog.String("user_id", userID),
		slog.String("role", string(role)),
		slog.String("next", string(st.OpenStep())),
	)
	return flowStateOf(st), nil
}

// Back возвращает последний завершённый шаг в голову очереди и заново
// открывает его диалог. ErrNothingCompleted, если возвращаться некуда.
func (s *SetupService) Back(ctx context.Context, userID string) (*FlowState, error) {
	st, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if st.Phase != model.PhaseStepOpen || len(st.Completed) == 0 {
		return nil, ErrNothingCompleted
	}

	last := st.Completed[len(st.Completed)-1]
	st.Completed = st.Completed[:len(st.Completed)-1]
	st.Queue = append([]roles.Role{last}, st.Queue...)
	st.UpdatedAt = time.Now().UTC()

	if err := s.states.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("сохранение состояния настройки: %w", err)
	}
	return flowStateOf(st), nil
}

// Reset выполняет жёсткий сброс: очередь, стек завершённых и черновики
// удаляются, пользователь возвращается к выбору ролей.
func (s *SetupService) Reset(ctx context.Context, userID string) (*FlowState, error) {
	if err := s.drafts.DeleteAll(ctx, userID); err != nil {
		return nil, fmt.Errorf("удаление черновиков настройки: %w", err)
	}
	setupSequencesTotal.WithLabelValues("reset").Inc()
	return s.OpenRoleSelection(ctx, userID)
}

// Clear полностью удаляет состояние настройки (при выходе из системы).
func (s *SetupService) Clear(ctx context.Context, userID string) error {
	if err := s.drafts.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("удаление черновиков настройки: %w", err)
	}
	if err := s.states.Delete(ctx, userID); err != nil {
		return fmt.Errorf("удаление состояния настройки: %w", err)
	}
	return nil
}

// SaveDraft сохраняет черновик формы настройки роли (TempSetupData).
func (s *SetupService) SaveDraft(ctx context.Context, userID string, role roles.Role, data json.RawMessage) error {
	if !roles.Valid(role) {
		return fmt.Errorf("неизвестная роль %q", role)
	}
	draft := &model.SetupDraft{
		UserID:    userID,
		Role:      role,
		Data:      data,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.drafts.Put(ctx, draft); err != nil {
		return fmt.Errorf("сохранение черновика: %w", err)
	}
	return nil
}

// Draft возвращает черновик формы настройки роли.
// repository.ErrNotFound, если черновик не сохранялся.
func (s *SetupService) Draft(ctx context.Context, userID string, role roles.Role) (*model.SetupDraft, error) {
	if !roles.Valid(role) {
		return nil, fmt.Errorf("неизвестная роль %q", role)
	}
	return s.drafts.Get(ctx, userID, role)
}

// complete выполняет фазу Completing: черновики очищаются, профиль
// обновляется и разрешается отложенное приглашение. Возвращает итоговый
// снимок Idle с рекомендованным переходом.
func (s *SetupService) complete(ctx context.Context, st *model.SetupState, accessToken, deviceID string) (*FlowState, error) {
	userID := st.UserID

	if err := s.drafts.DeleteAll(ctx, userID); err != nil {
		s.logger.Error("Не удалось удалить черновики настройки",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	// Свежий профиль: роль-зависимые экраны должны видеть новые роли
	var userRoles []roles.Role
	if profile, err := s.core.GetUserProfile(ctx, accessToken); err == nil {
		s.cache.Set(userID, profile)
		userRoles = profile.Roles
	} else {
		s.logger.Warn("Не удалось обновить профиль при завершении настройки",
			slog.String("error", err.Error()),
		)
	}

	redirect, err := s.invites.ResolveAfterSetup(ctx, userID, accessToken, deviceID, userRoles)
	if err != nil {
		// Ошибка приглашения не отменяет завершение настройки:
		// уведомление уже выдано резолвером
		s.logger.Error("Разрешение приглашения при завершении настройки не удалось",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.states.Delete(ctx, userID); err != nil {
		return nil, fmt.Errorf("сброс состояния настройки: %w", err)
	}
	setupSequencesTotal.WithLabelValues("completed").Inc()

	s.logger.Info("Последовательная настройка завершена",
		slog.String("user_id", userID),
		slog.String("redirect", redirect),
	)

	fs := flowStateOf(&model.SetupState{UserID: userID, Phase: model.PhaseIdle})
	fs.Redirect = redirect
	return fs, nil
}

// load читает состояние пользователя; отсутствие записи — фаза Idle.
func (s *SetupService) load(ctx context.Context, userID string) (*model.SetupState, error) {
	st, err := s.states.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &model.SetupState{UserID: userID, Phase: model.PhaseIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("чтение состояния настройки: %w", err)
	}
	return st, nil
}
