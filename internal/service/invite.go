// invite.go — разрешение отложенных приглашений после входа или настройки ролей.
//
// Приглашение (deep-link от creative к будущему клиенту) сохраняется
// на устройстве до аутентификации и принимается здесь ровно один раз:
// in-memory guard не даёт повторно отправить принятие того же токена
// в рамках одной сессии, а флаги в БД удаляются при успехе и при
// окончательном провале.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/craftlink/onboarding-module/internal/coreclient"
	"github.com/craftlink/onboarding-module/internal/domain/model"
	"github.com/craftlink/onboarding-module/internal/domain/roles"
	"github.com/craftlink/onboarding-module/internal/repository"
)

// Страница заказов: туда уходит клиент после успешного бронирования.
const ordersPath = "/orders"

var inviteAcceptTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "om_invite_accept_total",
		Help: "Результаты принятия приглашений (accepted, already_connected, failed, skipped).",
	},
	[]string{"outcome"},
)

// InviteService — разрешение отложенных приглашений (Invite Resolver).
type InviteService struct {
	core     CoreAPI
	invites  repository.PendingInviteRepository
	bookings repository.BookingDraftRepository
	notices  *NoticeService
	cache    *ProfileCache
	logger   *slog.Logger

	// Параметры повторов при гонке с созданием client-профиля
	retryMax  int
	retryBase time.Duration

	// processed — guard "уже обработано": ключ deviceID+"\x00"+token.
	// Гарантирует не более одного вызова принятия на токен за сессию.
	mu        sync.Mutex
	processed map[string]bool
}

// NewInviteService создаёт Invite Resolver.
// retryMax и retryBase — параметры повторов (OM_INVITE_RETRY_*);
// задержка перед попыткой N равна retryBase*N.
func NewInviteService(
	core CoreAPI,
	invites repository.PendingInviteRepository,
	bookings repository.BookingDraftRepository,
	notices *NoticeService,
	cache *ProfileCache,
	retryMax int,
	retryBase time.Duration,
	logger *slog.Logger,
) *InviteService {
	return &InviteService{
		core:      core,
		invites:   invites,
		bookings:  bookings,
		notices:   notices,
		cache:     cache,
		retryMax:  retryMax,
		retryBase: retryBase,
		processed: make(map[string]bool),
		logger:    logger.With(slog.String("component", "invite_resolver")),
	}
}

// ResolveAfterSetup разрешает отложенное приглашение пользователя.
// Вызывается из двух точек: по завершении последовательной настройки ролей
// и напрямую для пользователей, уже имеющих нужную роль.
//
// Без приглашения — обновляет профиль и возвращает переход на дашборд
// приоритетной роли. С приглашением — принимает его (с ограниченными
// повторами при гонке с созданием client-профиля), удаляет флаги,
// обновляет профиль и достаёт отложенное бронирование, если оно есть.
//
// Возвращает рекомендованный путь перехода для UI.
func (s *InviteService) ResolveAfterSetup(
	ctx context.Context,
	userID string,
	accessToken string,
	deviceID string,
	userRoles []roles.Role,
) (string, error) {
	// Путь по умолчанию — дашборд приоритетной роли
	redirect := roles.RedirectPath(userRoles)

	if deviceID == "" {
		// Без привязки к устройству приглашения быть не может
		s.refreshProfile(ctx, userID, accessToken)
		return redirect, nil
	}

	inv, err := s.invites.Get(ctx, deviceID)
	if errors.Is(err, repository.ErrNotFound) {
		s.refreshProfile(ctx, userID, accessToken)
		return redirect, nil
	}
	if err != nil {
		return redirect, fmt.Errorf("чтение отложенного приглашения: %w", err)
	}

	// Guard "уже обработано": второй вызов с тем же токеном — no-op
	guardKey := deviceID + "\x00" + inv.Token
	s.mu.Lock()
	if s.processed[guardKey] {
		s.mu.Unlock()
		s.logger.Debug("Приглашение уже обрабатывалось в этой сессии",
			slog.String("device_id", deviceID),
		)
		inviteAcceptTotal.WithLabelValues("skipped").Inc()
		return redirect, nil
	}
	s.processed[guardKey] = true
	s.mu.Unlock()

	result, err := s.acceptWithRetry(ctx, accessToken, inv.Token)
	if err != nil {
		if errors.Is(err, coreclient.ErrClientProfileNotVisible) {
			// Попытки исчерпаны — провал окончательный, флаги удаляем,
			// чтобы не зациклить пользователя на мёртвом приглашении
			if delErr := s.invites.Delete(ctx, deviceID); delErr != nil {
				s.logger.Error("Не удалось удалить флаги приглашения",
					slog.String("error", delErr.Error()),
				)
			}
		} else {
			// Прочие ошибки считаем восстановимыми: сбрасываем guard,
			// чтобы пользователь мог повторить попытку
			s.mu.Lock()
			delete(s.processed, guardKey)
			s.mu.Unlock()
		}

		inviteAcceptTotal.WithLabelValues("failed").Inc()
		s.notices.Push(userID, model.NoticeError, model.NoticeCodeConnectionFailed,
			"Не удалось подключиться к специалисту. Попробуйте ещё раз.")
		return redirect, fmt.Errorf("принятие приглашения: %w", err)
	}

	// Успех: флаги удаляются в любом случае
	if err := s.invites.Delete(ctx, deviceID); err != nil {
		s.logger.Error("Не удалось удалить флаги приглашения после принятия",
			slog.String("error", err.Error()),
		)
	}

	// Обновляем профиль, чтобы роль-зависимые экраны сразу увидели новые роли
	if profile := s.refreshProfile(ctx, userID, accessToken); profile != nil {
		userRoles = profile.Roles
	}

	if result.RelationshipExists {
		inviteAcceptTotal.WithLabelValues("already_connected").Inc()
		s.notices.Push(userID, model.NoticeInfo, model.NoticeCodeAlreadyConnected,
			"Вы уже подключены к этому специалисту.")
	} else {
		inviteAcceptTotal.WithLabelValues("accepted").Inc()
		s.notices.Push(userID, model.NoticeSuccess, model.NoticeCodeConnected,
			"Вы подключены к специалисту.")
	}

	return s.finishPendingBooking(ctx, userID, accessToken, deviceID), nil
}

// acceptWithRetry вызывает принятие приглашения с ограниченными повторами.
// Повторяется только гонка "client profile not found" (профиль создан,
// но ещё не виден Core API); задержка перед попыткой N равна retryBase*N.
func (s *InviteService) acceptWithRetry(ctx context.Context, accessToken, inviteToken string) (*model.InviteAcceptResult, error) {
	var lastErr error

	for attempt := 0; attempt < s.retryMax; attempt++ {
		result, err := s.core.AcceptInvite(ctx, accessToken, inviteToken)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !errors.Is(err, coreclient.ErrClientProfileNotVisible) {
			return nil, err
		}
		if attempt == s.retryMax-1 {
			break
		}

		delay := s.retryBase * time.Duration(attempt+1)
		s.logger.Warn("Client-профиль ещё не виден, повтор принятия приглашения",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// finishPendingBooking атомарно забирает отложенное бронирование устройства
// и отправляет его в Core API. Черновик удаляется независимо от исхода:
// бесконечные повторы бронирования недопустимы.
func (s *InviteService) finishPendingBooking(ctx context.Context, userID, accessToken, deviceID string) string {
	clientDashboard := roles.DashboardPath(roles.RoleClient)

	draft, err := s.bookings.Consume(ctx, deviceID)
	if errors.Is(err, repository.ErrNotFound) {
		return clientDashboard
	}
	if err != nil {
		s.logger.Error("Не удалось прочитать отложенное бронирование",
			slog.String("error", err.Error()),
		)
		return clientDashboard
	}

	start, end, err := draft.Window()
	if err != nil {
		s.logger.Error("Невалидный черновик бронирования",
			slog.String("error", err.Error()),
		)
		s.notices.Push(userID, model.NoticeError, model.NoticeCodeBookingFailed,
			"Не удалось создать бронирование из сохранённого черновика.")
		return clientDashboard
	}

	req := &model.BookingRequest{
		ServiceID: draft.ServiceID,
		StartTime: start,
		EndTime:   end,
		Notes:     draft.Notes,
	}
	if err := s.core.CreateBooking(ctx, accessToken, req); err != nil {
		s.logger.Error("Не удалось создать бронирование",
			slog.String("error", err.Error()),
		)
		s.notices.Push(userID, model.NoticeError, model.NoticeCodeBookingFailed,
			"Не удалось создать бронирование. Попробуйте забронировать заново.")
		return clientDashboard
	}

	s.notices.Push(userID, model.NoticeSuccess, model.NoticeCodeBookingCreated,
		"Бронирование создано.")
	return ordersPath
}

// refreshProfile обновляет профиль в кэше. Ошибка не фатальна: кэш просто
// останется с прежним значением до следующего обращения.
func (s *InviteService) refreshProfile(ctx context.Context, userID, accessToken string) *model.UserProfile {
	profile, err := s.core.GetUserProfile(ctx, accessToken)
	if err != nil {
		s.logger.Warn("Не удалось обновить профиль после разрешения приглашения",
			slog.String("error", err.Error()),
		)
		return nil
	}
	s.cache.Set(userID, profile)
	return profile
}

// HasPending сообщает, есть ли у устройства отложенное приглашение.
func (s *InviteService) HasPending(ctx context.Context, deviceID string) (*model.PendingInvite, bool) {
	if deviceID == "" {
		return nil, false
	}
	inv, err := s.invites.Get(ctx, deviceID)
	if err != nil {
		return nil, false
	}
	return inv, true
}

// ResetGuards сбрасывает все guard-записи устройства (при выходе из системы).
func (s *InviteService) ResetGuards(deviceID string) {
	prefix := deviceID + "\x00"
	s.mu.Lock()
	for key := range s.processed {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(s.processed, key)
		}
	}
	s.mu.Unlock()
}
