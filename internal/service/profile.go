// profile.go — загрузка профиля пользователя и ветвление потока онбординга
// (Profile Fetcher). Повторный вызов во время активной загрузки отбрасывается;
// при идущей настройке выполняется "тихое" обновление без побочных эффектов.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/craftlink/onboarding-module/internal/domain/model"
	"github.com/craftlink/onboarding-module/internal/domain/roles"
)

// ProfileService — Profile Fetcher.
type ProfileService struct {
	core      CoreAPI
	cache     *ProfileCache
	sequencer *SetupService
	invites   *InviteService
	notices   *NoticeService
	logger    *slog.Logger

	// inFlight — guard от параллельных дублирующих загрузок одного пользователя.
	// Второй вызов при активной загрузке отбрасывается, а не ставится в очередь.
	mu       sync.Mutex
	inFlight map[string]bool
}

// NewProfileService создаёт Profile Fetcher.
func NewProfileService(
	core CoreAPI,
	cache *ProfileCache,
	sequencer *SetupService,
	invites *InviteService,
	notices *NoticeService,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		core:      core,
		cache:     cache,
		sequencer: sequencer,
		invites:   invites,
		notices:   notices,
		inFlight:  make(map[string]bool),
		logger:    logger.With(slog.String("component", "profile_fetcher")),
	}
}

// Get возвращает профиль пользователя: из кэша или из Core API.
// Без побочных эффектов онбординга.
func (s *ProfileService) Get(ctx context.Context, userID, accessToken string) (*model.UserProfile, error) {
	if profile, ok := s.cache.Get(userID); ok {
		return profile, nil
	}
	profile, err := s.core.GetUserProfile(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("загрузка профиля: %w", err)
	}
	s.cache.Set(userID, profile)
	return profile, nil
}

// Invalidate удаляет профиль пользователя из кэша.
func (s *ProfileService) Invalidate(userID string) {
	s.cache.Delete(userID)
}

// Fetch загружает профиль и ветвит поток онбординга.
// freshSignIn — профиль запрошен по настоящему входу (не по обновлению токена);
// влияет на приветственные уведомления.
//
// Ровно одна из ветвей:
//   - первый вход + приглашение с авто-выбором client → тихое назначение роли
//     и запуск настройки (завершается без диалогов);
//   - первый вход без приглашения → открывается выбор ролей;
//   - возвращающийся пользователь с приглашением, требующим роль client →
//     роль добавляется и запускается client-only настройка; если роль уже
//     есть — приглашение принимается напрямую;
//   - незавершённые настройки по данным Core API → их возобновление;
//   - ничего не ожидается → приветствие при настоящем входе.
//
// При идущей настройке выполняется только тихое обновление профиля.
// Параллельный вызов для того же пользователя — no-op.
func (s *ProfileService) Fetch(
	ctx context.Context,
	userID string,
	accessToken string,
	deviceID string,
	freshSignIn bool,
) (*model.UserProfile, *FlowState, error) {
	// Re-entrancy guard: вторая загрузка при активной отбрасывается
	s.mu.Lock()
	if s.inFlight[userID] {
		s.mu.Unlock()
		s.logger.Debug("Загрузка профиля уже выполняется",
			slog.String("user_id", userID),
		)
		profile, _ := s.cache.Get(userID)
		state, err := s.sequencer.State(ctx, userID)
		if err != nil {
			return nil, nil, fmt.Errorf("состояние настройки: %w", err)
		}
		return profile, state, nil
	}
	s.inFlight[userID] = true
	s.mu.Unlock()

	// Guard снимается всегда, независимо от исхода
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, userID)
		s.mu.Unlock()
	}()

	quiet := s.sequencer.InProgress(ctx, userID)

	profile, err := s.core.GetUserProfile(ctx, accessToken)
	if err != nil {
		s.notices.Push(userID, model.NoticeError, model.NoticeCodeProfileError,
			"Не удалось загрузить профиль. Обновите страницу.")
		return nil, nil, fmt.Errorf("загрузка профиля: %w", err)
	}
	s.cache.Set(userID, profile)

	if quiet {
		// Настройка уже идёт: только обновление профиля,
		// без повторного запуска логики онбординга
		fs, err := s.sequencer.State(ctx, userID)
		if err != nil {
			return profile, nil, err
		}
		return profile, fs, nil
	}

	fs, err := s.branch(ctx, profile, accessToken, deviceID, freshSignIn)
	if err != nil {
		return profile, fs, err
	}
	return profile, fs, nil
}

// branch выбирает ровно одну ветвь потока онбординга для загруженного профиля.
func (s *ProfileService) branch(
	ctx context.Context,
	profile *model.UserProfile,
	accessToken string,
	deviceID string,
	freshSignIn bool,
) (*FlowState, error) {
	userID := profile.UserID
	inv, hasInvite := s.invites.HasPending(ctx, deviceID)

	switch {
	case profile.FirstLogin && hasInvite && inv.PreSelectClient:
		// Приглашение с авто-выбором client: роль назначается тихо,
		// выбор ролей не показывается
		return s.sequencer.Start(ctx, userID, accessToken, deviceID,
			[]roles.Role{roles.RoleClient}, []roles.Role{roles.RoleClient})

	case profile.FirstLogin && !hasInvite:
		if freshSignIn {
			s.notices.Push(userID, model.NoticeSuccess, model.NoticeCodeWelcome,
				"Добро пожаловать! Выберите свою роль, чтобы начать.")
		}
		return s.sequencer.OpenRoleSelection(ctx, userID)

	case hasInvite && inv.NeedsClientRole && !profile.HasRole(roles.RoleClient):
		// Роли client ещё нет: сохраняется объединение с существующими,
		// но настройку проходит только добавленный client — без диалогов,
		// давние роли пользователя повторно не настраиваются
		selected := append(append([]roles.Role{}, profile.Roles...), roles.RoleClient)
		return s.sequencer.Start(ctx, userID, accessToken, deviceID,
			selected, []roles.Role{roles.RoleClient})

	case hasInvite:
		// Нужная роль уже есть — принимаем приглашение напрямую
		redirect, err := s.invites.ResolveAfterSetup(ctx, userID, accessToken, deviceID, profile.Roles)
		if err != nil {
			return nil, err
		}
		fs := flowStateOf(&model.SetupState{UserID: userID, Phase: model.PhaseIdle})
		fs.Redirect = redirect
		return fs, nil

	default:
		incomplete, err := s.core.GetIncompleteSetups(ctx, accessToken)
		if err != nil {
			s.logger.Warn("Не удалось получить список незавершённых настроек",
				slog.String("error", err.Error()),
			)
			incomplete = nil
		}
		if len(incomplete) > 0 {
			return s.sequencer.Resume(ctx, userID, incomplete)
		}

		if freshSignIn {
			s.notices.Push(userID, model.NoticeSuccess, model.NoticeCodeWelcomeBack,
				"С возвращением!")
		}
		fs := flowStateOf(&model.SetupState{UserID: userID, Phase: model.PhaseIdle})
		fs.Redirect = profile.RedirectPath()
		return fs, nil
	}
}
