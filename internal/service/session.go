// session.go — обработка переходов сессии (Session Listener).
// События входа, обновления токена и выхода нормализуются в единый
// dispatch: синхронизация cookie идемпотентна по паре токенов,
// сбои побочных эффектов логируются и не блокируют сам переход.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/craftlink/onboarding-module/internal/domain/model"
)

// SessionService — Session Listener.
type SessionService struct {
	core     CoreAPI
	profiles *ProfileService
	invites  *InviteService
	notices  *NoticeService
	cache    *ProfileCache
	logger   *slog.Logger

	// syncedPairs — последняя синхронизированная пара токенов на пользователя.
	// Повторная синхронизация той же пары пропускается.
	mu          sync.Mutex
	syncedPairs map[string]string
}

// NewSessionService создаёт Session Listener.
func NewSessionService(
	core CoreAPI,
	profiles *ProfileService,
	invites *InviteService,
	notices *NoticeService,
	cache *ProfileCache,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		core:        core,
		profiles:    profiles,
		invites:     invites,
		notices:     notices,
		cache:       cache,
		syncedPairs: make(map[string]string),
		logger:      logger.With(slog.String("component", "session_listener")),
	}
}

// HandleEvent обрабатывает переход сессии и возвращает итоговое
// состояние потока онбординга.
//
//   - signed_in: идемпотентная синхронизация cookie, фоновая фиксация входа,
//     загрузка профиля с ветвлением онбординга (настоящий вход).
//   - token_refreshed: только синхронизация cookie (если пара изменилась)
//     и тихое обновление профиля — без приветствий и повторного онбординга.
//   - signed_out: сброс cookie и всего локального состояния пользователя.
//
// Сбои синхронизации cookie и фиксации входа логируются и проглатываются:
// они никогда не блокируют сам переход.
func (s *SessionService) HandleEvent(
	ctx context.Context,
	event model.SessionEventType,
	session *model.Session,
	deviceID string,
) (*FlowState, error) {
	switch event {
	case model.EventSignedIn:
		s.syncCookiePair(ctx, session)
		s.trackLogin(ctx, session)
		_, fs, err := s.profiles.Fetch(ctx, session.UserID, session.AccessToken, deviceID, true)
		return fs, err

	case model.EventTokenRefreshed:
		s.syncCookiePair(ctx, session)
		_, fs, err := s.profiles.Fetch(ctx, session.UserID, session.AccessToken, deviceID, false)
		return fs, err

	case model.EventSignedOut:
		s.resetLocal(ctx, session.UserID, deviceID)
		return flowStateOf(&model.SetupState{UserID: session.UserID, Phase: model.PhaseIdle}), nil

	default:
		return nil, fmt.Errorf("неизвестное событие сессии %q", event)
	}
}

// syncCookiePair синхронизирует пару токенов в HTTP-only cookie через
// Core API, но только если пара отличается от последней синхронизированной.
// Сбой логируется и проглатывается.
func (s *SessionService) syncCookiePair(ctx context.Context, session *model.Session) {
	pair := session.TokenPair()

	s.mu.Lock()
	if s.syncedPairs[session.UserID] == pair {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.core.SyncCookies(ctx, session); err != nil {
		s.logger.Warn("Синхронизация cookie не удалась",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.syncedPairs[session.UserID] = pair
	s.mu.Unlock()
}

// trackLogin фиксирует вход в Core API. Best-effort: сбой логируется.
func (s *SessionService) trackLogin(ctx context.Context, session *model.Session) {
	if err := s.core.TrackLogin(ctx, session.AccessToken); err != nil {
		s.logger.Warn("Фиксация входа не удалась",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// resetLocal сбрасывает локальное состояние пользователя при выходе:
// cookie, кэш профиля, память синхронизированных пар, guard приглашений.
func (s *SessionService) resetLocal(ctx context.Context, userID, deviceID string) {
	if err := s.core.ClearCookies(ctx); err != nil {
		s.logger.Warn("Сброс cookie не удался",
			slog.String("error", err.Error()),
		)
	}

	s.cache.Delete(userID)

	s.mu.Lock()
	delete(s.syncedPairs, userID)
	s.mu.Unlock()

	if deviceID != "" {
		s.invites.ResetGuards(deviceID)
	}

	s.notices.Push(userID, model.NoticeSuccess, model.NoticeCodeSignedOut,
		"Вы вышли из системы.")
}

// ForgetUser очищает память Session Listener о пользователе.
// Вызывается Auth Action Surface при принудительном выходе.
func (s *SessionService) ForgetUser(userID string) {
	s.mu.Lock()
	delete(s.syncedPairs, userID)
	s.mu.Unlock()
}
