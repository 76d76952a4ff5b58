// deps.go — интерфейсы внешних зависимостей сервисного слоя.
// Сервисы зависят от интерфейсов, а не от конкретных клиентов:
// тесты подставляют фейки вместо HTTP-клиентов и репозиториев.
package service

import (
	"context"
	"encoding/json"

	"github.com/craftlink/onboarding-module/internal/domain/model"
	"github.com/craftlink/onboarding-module/internal/domain/roles"
)

// CoreAPI — операции Core API, используемые сервисным слоем.
// Реализуется internal/coreclient.Client.
type CoreAPI interface {
	GetUserProfile(ctx context.Context, accessToken string) (*model.UserProfile, error)
	UpdateRoles(ctx context.Context, accessToken string, selected []roles.Role) error
	GetIncompleteSetups(ctx context.Context, accessToken string) ([]roles.Role, error)
	CompleteSetup(ctx context.Context, accessToken string, role roles.Role, data json.RawMessage) error
	SetupClientProfile(ctx context.Context, accessToken string) error
	AcceptInvite(ctx context.Context, accessToken string, inviteToken string) (*model.InviteAcceptResult, error)
	CreateBooking(ctx context.Context, accessToken string, req *model.BookingRequest) error
	SyncCookies(ctx context.Context, session *model.Session) error
	ClearCookies(ctx context.Context) error
	TrackLogin(ctx context.Context, accessToken string) error
}

// AuthProvider — операции Auth Provider, используемые при выходе.
// Реализуется internal/authclient.Client.
type AuthProvider interface {
	Logout(ctx context.Context, accessToken string) error
}

// FlowState — снимок состояния онбординга для UI.
// Возвращается операциями секвенсора и endpoint'ом состояния.
type FlowState struct {
	// Phase — текущая фаза автомата настройки.
	Phase model.SetupPhase `json:"phase"`
	// OpenStep — роль открытого диалога (пусто, если диалог не открыт).
	OpenStep roles.Role `json:"open_step,omitempty"`
	// Queue — оставшиеся шаги настройки.
	Queue []roles.Role `json:"queue"`
	// Completed — завершённые шаги (стек для возврата назад).
	Completed []roles.Role `json:"completed"`
	// Redirect — рекомендованный переход после завершения потока
	// (дашборд приоритетной роли, страница заказов после бронирования).
	Redirect string `json:"redirect,omitempty"`
}

// flowStateOf собирает снимок из персистентного состояния.
func flowStateOf(st *model.SetupState) *FlowState {
	fs := &FlowState{
		Phase:     st.Phase,
		OpenStep:  st.OpenStep(),
		Queue:     st.Queue,
		Completed: st.Completed,
	}
	if fs.Queue == nil {
		fs.Queue = []roles.Role{}
	}
	if fs.Completed == nil {
		fs.Completed = []roles.Role{}
	}
	return fs
}
