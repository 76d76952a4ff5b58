package model

import (
	"time"

	"github.com/craftlink/onboarding-module/internal/domain/roles"
)

// SetupPhase — фаза конечного автомата последовательной настройки ролей.
type SetupPhase string

const (
	// PhaseIdle — настройка не идёт.
	PhaseIdle SetupPhase = "idle"
	// PhaseRoleSelection — открыт выбор ролей (первый вход без инвайта).
	PhaseRoleSelection SetupPhase = "role_selection"
	// PhaseStepOpen — открыт диалог настройки роли (голова очереди).
	PhaseStepOpen SetupPhase = "step_open"
	// PhaseCompleting — очередь опустела, выполняется завершение
	// (обновление профиля и разрешение инвайта).
	PhaseCompleting SetupPhase = "completing"
)

// SetupState — состояние последовательной настройки ролей одного пользователя.
// Инварианты:
//   - одновременно открыт не более чем один диалог: голова Queue при PhaseStepOpen;
//   - Completed растёт по мере сокращения Queue и используется для возврата назад;
//   - сброс в PhaseIdle очищает очередь, стек и черновики.
type SetupState struct {
	// UserID — владелец состояния.
	UserID string
	// Phase — текущая фаза автомата.
	Phase SetupPhase
	// Queue — оставшиеся роли; при PhaseStepOpen голова — открытый диалог.
	Queue []roles.Role
	// Completed — завершённые шаги в порядке прохождения (стек для "назад").
	Completed []roles.Role
	// UpdatedAt — время последнего перехода.
	UpdatedAt time.Time
}

// InProgress сообщает, идёт ли настройка (любая фаза кроме Idle и RoleSelection).
func (s *SetupState) InProgress() bool {
	return s.Phase == PhaseStepOpen || s.Phase == PhaseCompleting
}

// OpenStep возвращает роль открытого диалога или "" если диалог не открыт.
func (s *SetupState) OpenStep() roles.Role {
	if s.Phase == PhaseStepOpen && len(s.Queue) > 0 {
		return s.Queue[0]
	}
	return ""
}

// SetupDraft — черновик формы настройки роли (TempSetupData).
// Позволяет мастеру восстановить ранее введённые значения при возврате назад.
type SetupDraft struct {
	UserID    string
	Role      roles.Role
	// Data — сериализованное содержимое формы (JSON).
	Data      []byte
	UpdatedAt time.Time
}
