package model

import (
	"github.com/craftlink/onboarding-module/internal/domain/roles"
)

// UserProfile — профиль пользователя, полученный от Core API.
// Локально не мутируется: любое изменение — это повторный запрос к Core API
// и замена объекта целиком.
type UserProfile struct {
	// UserID — идентификатор пользователя.
	UserID string `json:"user_id"`
	// Name — отображаемое имя.
	Name string `json:"name"`
	// Email — email пользователя.
	Email string `json:"email"`
	// Roles — назначенные роли. Набор только растёт (через UpdateRoles).
	Roles []roles.Role `json:"roles"`
	// FirstLogin — серверный флаг первого входа.
	// Переход true → false происходит ровно один раз, на стороне Core API.
	FirstLogin bool `json:"first_login"`
}

// HasRole проверяет, назначена ли пользователю роль.
func (p *UserProfile) HasRole(r roles.Role) bool {
	return roles.Contains(p.Roles, r)
}

// RedirectPath возвращает домашнюю страницу по максимально приоритетной роли.
func (p *UserProfile) RedirectPath() string {
	return roles.RedirectPath(p.Roles)
}
