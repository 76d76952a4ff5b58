// Пакет service — бизнес-логика Onboarding Module.
// ProfileCache — LRU-кэш профилей пользователей с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/craftlink/onboarding-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "om_profile_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш профилей.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "om_profile_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша профилей.",
	})
)

// ProfileCache — LRU-кэш профилей пользователей с автоматическим TTL.
// Каждый экземпляр модуля имеет собственный in-memory кэш (per-instance).
type ProfileCache struct {
	cache *expirable.LRU[string, *model.UserProfile]
}

// NewProfileCache создаёт LRU-кэш с указанным максимальным размером и TTL.
// maxSize — максимальное количество записей в кэше.
// ttl — время жизни записи после добавления.
func NewProfileCache(maxSize int, ttl time.Duration) *ProfileCache {
	cache := expirable.NewLRU[string, *model.UserProfile](maxSize, nil, ttl)
	return &ProfileCache{cache: cache}
}

// Get возвращает профиль из кэша по userID.
// Возвращает (профиль, true) при hit или (nil, false) при miss.
// Обновляет Prometheus-метрики hit/miss.
func (c *ProfileCache) Get(userID string) (*model.UserProfile, bool) {
	val, ok := c.cache.Get(userID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет профиль в кэше.
func (c *ProfileCache) Set(userID string, profile *model.UserProfile) {
	c.cache.Add(userID, profile)
}

// Delete удаляет профиль из кэша (инвалидация при смене ролей и выходе).
func (c *ProfileCache) Delete(userID string) {
	c.cache.Remove(userID)
}
