// Пакет roles — роли платформы craftlink и правила их упорядочивания.
// Три роли: creative (исполнитель), client (заказчик), advocate (амбассадор).
// Порядок диалогов настройки фиксирован: creative раньше advocate,
// client никогда не попадает в очередь (профиль клиента создаётся автоматически).
package roles

// Role — роль пользователя на платформе.
type Role string

const (
	// RoleCreative — исполнитель (оказывает услуги).
	RoleCreative Role = "creative"
	// RoleClient — заказчик (покупает услуги).
	RoleClient Role = "client"
	// RoleAdvocate — амбассадор (приводит клиентов по реферальной программе).
	RoleAdvocate Role = "advocate"
)

// setupOrder — фиксированный порядок диалогов настройки.
// client отсутствует: его профиль создаётся сервером без диалога.
var setupOrder = []Role{RoleCreative, RoleAdvocate}

// dashboardPriority — приоритет выбора домашней страницы пользователя.
// Чем раньше роль в списке, тем выше приоритет.
var dashboardPriority = []Role{RoleCreative, RoleClient, RoleAdvocate}

// dashboardPath — путь дашборда для каждой роли.
var dashboardPath = map[Role]string{
	RoleCreative: "/creative/dashboard",
	RoleClient:   "/client/dashboard",
	RoleAdvocate: "/advocate/dashboard",
}

// HomePath — путь по умолчанию, когда у пользователя нет ни одной роли.
const HomePath = "/"

// Valid проверяет, что строка — известная роль платформы.
func Valid(r Role) bool {
	switch r {
	case RoleCreative, RoleClient, RoleAdvocate:
		return true
	}
	return false
}

// Parse преобразует строку в Role. Возвращает ("", false) для неизвестной роли.
func Parse(s string) (Role, bool) {
	r := Role(s)
	if !Valid(r) {
		return "", false
	}
	return r, true
}

// BuildSetupQueue строит очередь диалогов настройки из выбранных ролей.
// Фильтрует фиксированный порядок (creative, advocate) по выбранным ролям,
// поэтому результат детерминирован независимо от порядка выбора.
// client в очередь не попадает никогда.
func BuildSetupQueue(selected []Role) []Role {
	set := toSet(selected)
	queue := make([]Role, 0, len(setupOrder))
	for _, r := range setupOrder {
		if set[r] {
			queue = append(queue, r)
		}
	}
	return queue
}

// Contains проверяет наличие роли в наборе.
func Contains(set []Role, r Role) bool {
	for _, x := range set {
		if x == r {
			return true
		}
	}
	return false
}

// RedirectPath возвращает путь домашней страницы по максимально
// приоритетной роли пользователя: creative > client > advocate > HomePath.
func RedirectPath(userRoles []Role) string {
	set := toSet(userRoles)
	for _, r := range dashboardPriority {
		if set[r] {
			return dashboardPath[r]
		}
	}
	return HomePath
}

// DashboardPath возвращает путь дашборда указанной роли.
// Для неизвестной роли возвращает HomePath.
func DashboardPath(r Role) string {
	if p, ok := dashboardPath[r]; ok {
		return p
	}
	return HomePath
}

// toSet преобразует срез ролей в множество.
func toSet(rs []Role) map[Role]bool {
	set := make(map[Role]bool, len(rs))
	for _, r := range rs {
		set[r] = true
	}
	return set
}
