// auth_actions.go — операции аутентификации (Auth Action Surface).
// Выход из системы — многослойный best-effort: cookie сбрасываются первыми,
// отзыв сессии у провайдера может провалиться, локальное состояние
// очищается всегда. Пользователь никогда не остаётся в неоднозначном
// "вроде бы вошедшем" состоянии.
package service

import (
	"context"
	"log/slog"

	"github.com/craftlink/onboarding-module/internal/domain/model"
)

// AuthService — Auth Action Surface.
type AuthService struct {
	core     CoreAPI
	provider AuthProvider
	session  *SessionService
	invites  *InviteService
	cache    *ProfileCache
	notices  *NoticeService
	logger   *slog.Logger
}

// NewAuthService создаёт Auth Action Surface.
func NewAuthService(
	core CoreAPI,
	provider AuthProvider,
	session *SessionService,
	invites *InviteService,
	cache *ProfileCache,
	notices *NoticeService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		core:     core,
		provider: provider,
		session:  session,
		invites:  invites,
		cache:    cache,
		notices:  notices,
		logger:   logger.With(slog.String("component", "auth_actions")),
	}
}

// SignOut выполняет выход пользователя. Никогда не возвращает ошибку:
// каждый слой best-effort, локальное состояние сбрасывается безусловно,
// подтверждение выхода выдаётся всегда.
//
// Порядок слоёв:
//  1. Сброс HTTP-only cookie через Core API.
//  2. Отзыв refresh-токенов у Auth Provider (сессия может быть уже
//     невалидна на его стороне — это не ошибка выхода).
//  3. Безусловная очистка локального состояния: кэш профиля, память
//     синхронизированных пар токенов, guard приглашений.
func (s *AuthService) SignOut(ctx context.Context, userID, accessToken, deviceID string) {
	if err := s.core.ClearCookies(ctx); err != nil {
		s.logger.Warn("Сброс cookie при выходе не удался",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.provider.Logout(ctx, accessToken); err != nil {
		s.logger.Warn("Отзыв сессии у Auth Provider не удался",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.cache.Delete(userID)
	s.session.ForgetUser(userID)
	if deviceID != "" {
		s.invites.ResetGuards(deviceID)
	}

	s.notices.Push(userID, model.NoticeSuccess, model.NoticeCodeSignedOut,
		"Вы вышли из системы.")

	s.logger.Info("Пользователь вышел из системы",
		slog.String("user_id", userID),
	)
}
