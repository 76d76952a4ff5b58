// Пакет authclient — HTTP-клиент для Auth Provider (GoTrue-совместимый API).
// Используется только для отзыва сессии при выходе; проверка токенов
// выполняется локально через JWKS (см. internal/api/middleware).
package authclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client — HTTP-клиент для Auth Provider.
type Client struct {
	httpClient *http.Client
	authURL    string
	serviceKey string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	logger     *slog.Logger
}

// New создаёт Auth Provider клиент.
// authURL — базовый URL провайдера (например, http://auth:9999).
// serviceKey — API-ключ сервиса (заголовок apikey); пустая строка допустима.
func New(authURL string, serviceKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		authURL:    strings.TrimRight(authURL, "/"),
		serviceKey: serviceKey,
		logger:     logger.With(slog.String("component", "auth_client")),
	}
}

// Logout отзывает refresh-токены пользователя у Auth Provider.
// POST /logout
// Ошибка не фатальна для выхода: локальное состояние сбрасывается в любом
// случае, поэтому вызывающий код лишь логирует результат.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	reqURL := c.authURL + "/logout"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса logout: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if c.serviceKey != "" {
		req.Header.Set("apikey", c.serviceKey)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return fmt.Errorf("запрос logout к %s: %w", c.authURL, err)
	}
	defer resp.Body.Close()

	// GoTrue возвращает 204 при успешном отзыве
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Auth Provider вернул статус %d при logout: %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("Сессия отозвана у Auth Provider")
	return nil
}
