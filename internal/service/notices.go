// notices.go — очередь уведомлений пользователя.
// Уведомления живут в памяти экземпляра: это подтверждения действий
// (welcome, connected, signed out), а не долговременные данные.
// UI забирает их одним запросом и показывает как toast-сообщения.
package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/craftlink/onboarding-module/internal/domain/model"
)

var noticesPushedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "om_notices_pushed_total",
		Help: "Общее количество уведомлений, добавленных в очереди пользователей.",
	},
	[]string{"kind"},
)

// NoticeService — bounded очередь уведомлений на пользователя.
// При переполнении старые уведомления вытесняются: подтверждение действия,
// которое пользователь не успел увидеть среди десятков новых, не имеет ценности.
type NoticeService struct {
	mu     sync.Mutex
	queues map[string][]model.Notice
	limit  int
	logger *slog.Logger
}

// NewNoticeService создаёт сервис уведомлений.
// limit — максимальный размер очереди одного пользователя.
func NewNoticeService(limit int, logger *slog.Logger) *NoticeService {
	return &NoticeService{
		queues: make(map[string][]model.Notice),
		limit:  limit,
		logger: logger.With(slog.String("component", "notice_service")),
	}
}

// Push добавляет уведомление в очередь пользователя.
func (n *NoticeService) Push(userID string, kind model.NoticeKind, code, message string) {
	notice := model.Notice{
		ID:        uuid.NewString(),
		Kind:      kind,
		Code:      code,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	n.mu.Lock()
	queue := append(n.queues[userID], notice)
	if len(queue) > n.limit {
		queue = queue[len(queue)-n.limit:]
	}
	n.queues[userID] = queue
	n.mu.Unlock()

	noticesPushedTotal.WithLabelValues(string(kind)).Inc()

	n.logger.Debug("Уведомление добавлено",
		slog.String("user_id", userID),
		slog.String("code", code),
	)
}

// Drain возвращает и очищает очередь уведомлений пользователя.
// Возвращает пустой срез (не nil), если очередь пуста.
func (n *NoticeService) Drain(userID string) []model.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()

	queue := n.queues[userID]
	delete(n.queues, userID)

	if queue == nil {
		return []model.Notice{}
	}
	return queue
}

// Clear удаляет все уведомления пользователя (при выходе из системы).
func (n *NoticeService) Clear(userID string) {
	n.mu.Lock()
	delete(n.queues, userID)
	n.mu.Unlock()
}
