package model

import "time"

// PendingInvite — долговечные флаги инвайт-процесса, привязанные к устройству.
// Инвайт-лендинг открывается до аутентификации, поэтому ключ — device ID,
// который UI передаёт в заголовке X-Device-ID. После принятия инвайта
// (или невосстановимой ошибки) запись удаляется.
// Инвариант: авто-назначением роли управляет не более чем один из флагов
// PreSelectClient / NeedsClientRole.
type PendingInvite struct {
	// DeviceID — идентификатор устройства, на котором открыт инвайт-лендинг.
	DeviceID string
	// Token — одноразовый токен инвайта.
	Token string
	// CreativeUserID — идентификатор пригласившего исполнителя.
	CreativeUserID string
	// PreSelectClient — новый пользователь: роль client выбирается молча,
	// без диалога выбора ролей.
	PreSelectClient bool
	// NeedsClientRole — существующий пользователь: роли client ещё нет,
	// её нужно добавить молча перед принятием инвайта.
	NeedsClientRole bool
	// CreatedAt — время сохранения флагов.
	CreatedAt time.Time
}

// InviteAcceptResult — результат принятия инвайта Core API.
type InviteAcceptResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// RelationshipExists — связь уже существовала ("Already Connected"
	// вместо "Success!").
	RelationshipExists bool `json:"relationship_exists"`
}
