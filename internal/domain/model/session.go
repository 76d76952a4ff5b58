// Пакет model — доменные структуры Onboarding Module.
package model

// SessionEventType — тип события аутентификации от Auth Provider.
type SessionEventType string

const (
	// EventSignedIn — пользователь вошёл (новая сессия).
	EventSignedIn SessionEventType = "signed_in"
	// EventTokenRefreshed — тихое обновление пары токенов.
	EventTokenRefreshed SessionEventType = "token_refreshed"
	// EventSignedOut — пользователь вышел, сессия недействительна.
	EventSignedOut SessionEventType = "signed_out"
)

// Session — нормализованная сессия Auth Provider.
// Пара токенов непрозрачна для оркестратора: access token используется
// как bearer при запросах к Core API, refresh token — только для cookie sync.
type Session struct {
	// UserID — идентификатор пользователя (sub из JWT).
	UserID string
	// AccessToken — JWT access token.
	AccessToken string
	// RefreshToken — refresh token.
	RefreshToken string
	// Email — email пользователя из JWT (может быть пустым).
	Email string
}

// TokenPair возвращает конкатенацию пары токенов.
// Используется как ключ идемпотентности cookie sync: повторная синхронизация
// той же пары пропускается.
func (s *Session) TokenPair() string {
	return s.AccessToken + "\x00" + s.RefreshToken
}
