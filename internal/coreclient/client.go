// Пакет coreclient — HTTP-клиент для взаимодействия с Core API.
// Запросы к профилям, ролям, setup-статусам, приглашениям и бронированиям
// выполняются от имени пользователя: access-токен сессии передаётся явно.
package coreclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/craftlink/onboarding-module/internal/domain/model"
	"github.com/craftlink/onboarding-module/internal/domain/roles"
)

// ErrClientProfileNotVisible — Core API ещё не видит client-профиль пользователя.
// Возникает сразу после провижининга роли: реплика Core API отстаёт.
// Вызывающий код повторяет запрос с задержкой.
var ErrClientProfileNotVisible = errors.New("client-профиль не виден в Core API")

// ErrNotFound — запрошенный ресурс отсутствует в Core API.
var ErrNotFound = errors.New("ресурс не найден в Core API")

// Client — HTTP-клиент для Core API.
type Client struct {
	httpClient *http.Client
	coreURL    string
	logger     *slog.Logger
}

// New создаёт Core API клиент.
// coreURL — базовый URL Core API (например, http://core-api:8000).
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// timeout — таймаут HTTP-запросов (из конфигурации OM_CORE_TIMEOUT).
func New(coreURL string, caCertPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	httpClient := &http.Client{Timeout: timeout}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата Core API: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: tlsConfig,
		}
		logger.Info("CA-сертификат Core API добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: httpClient,
		coreURL:    strings.TrimRight(coreURL, "/"),
		logger:     logger.With(slog.String("component", "core_client")),
	}, nil
}

// GetUserProfile запрашивает профиль пользователя.
// GET /api/v1/users/me
// Возвращает ErrNotFound, если профиль ещё не создан.
func (c *Client) GetUserProfile(ctx context.Context, accessToken string) (*model.UserProfile, error) {
	var raw struct {
		UserID     string   `json:"user_id"`
		Name       string   `json:"name"`
		Email      string   `json:"email"`
		Roles      []string `json:"roles"`
		FirstLogin bool     `json:"first_login"`
	}

	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/users/me", accessToken, nil, &raw); err != nil {
		return nil, fmt.Errorf("запрос профиля: %w", err)
	}

	profile := &model.UserProfile{
		UserID:     raw.UserID,
		Name:       raw.Name,
		Email:      raw.Email,
		FirstLogin: raw.FirstLogin,
	}
	for _, r := range raw.Roles {
		role, ok := roles.Parse(r)
		if !ok {
			// Неизвестные роли пропускаем: Core API может знать больше ролей, чем мы
			c.logger.Warn("Неизвестная роль в профиле", slog.String("role", r))
			continue
		}
		profile.Roles = append(profile.Roles, role)
	}

	return profile, nil
}

// UpdateRoles сохраняет выбранные роли пользователя.
// POST /api/v1/users/me/roles
func (c *Client) UpdateRoles(ctx context.Context, accessToken string, selected []roles.Role) error {
	body := struct {
		Roles []roles.Role `json:"roles"`
	}{Roles: selected}

	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/users/me/roles", accessToken, body, nil); err != nil {
		return fmt.Errorf("сохранение ролей: %w", err)
	}
	return nil
}

// GetIncompleteSetups возвращает роли, для которых setup ещё не завершён.
// GET /api/v1/users/me/setups/incomplete
func (c *Client) GetIncompleteSetups(ctx context.Context, accessToken string) ([]roles.Role, error) {
	var raw struct {
		Incomplete []string `json:"incomplete"`
	}

	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/users/me/setups/incomplete", accessToken, nil, &raw); err != nil {
		return nil, fmt.Errorf("запрос незавершённых setup: %w", err)
	}

	result := make([]roles.Role, 0, len(raw.Incomplete))
	for _, r := range raw.Incomplete {
		role, ok := roles.Parse(r)
		if !ok {
			continue
		}
		result = append(result, role)
	}
	return result, nil
}

// CompleteSetup отмечает setup роли как завершённый, передавая данные шага.
// POST /api/v1/users/me/setups/{role}/complete
func (c *Client) CompleteSetup(ctx context.Context, accessToken string, role roles.Role, data json.RawMessage) error {
	path := fmt.Sprintf("/api/v1/users/me/setups/%s/complete", role)

	var body any
	if len(data) > 0 {
		body = data
	}

	if err := c.doJSON(ctx, http.MethodPost, path, accessToken, body, nil); err != nil {
		return fmt.Errorf("завершение setup роли %s: %w", role, err)
	}
	return nil
}

// SetupClientProfile создаёт client-профиль с настройками по умолчанию.
// POST /api/v1/users/me/client-profile
// Используется при автоматическом провижининге роли client (приглашение).
func (c *Client) SetupClientProfile(ctx context.Context, accessToken string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/users/me/client-profile", accessToken, nil, nil); err != nil {
		return fmt.Errorf("создание client-профиля: %w", err)
	}
	return nil
}

// AcceptInvite принимает приглашение по токену.
// POST /api/v1/invites/accept
// Возвращает ErrClientProfileNotVisible, если Core API ещё не видит
// client-профиль пользователя (вызывающий код повторяет запрос).
func (c *Client) AcceptInvite(ctx context.Context, accessToken string, inviteToken string) (*model.InviteAcceptResult, error) {
	body := struct {
		Token string `json:"token"`
	}{Token: inviteToken}

	reqURL := c.coreURL + "/api/v1/invites/accept"
	resp, err := c.do(ctx, http.MethodPost, reqURL, accessToken, body)
	if err != nil {
		return nil, fmt.Errorf("запрос принятия приглашения: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		// Core API сообщает об отсутствии client-профиля текстом в теле ответа
		if resp.StatusCode == http.StatusNotFound && strings.Contains(string(respBody), "Client profile not found") {
			return nil, ErrClientProfileNotVisible
		}
		return nil, fmt.Errorf("Core API вернул статус %d при принятии приглашения: %s", resp.StatusCode, string(respBody))
	}

	var result model.InviteAcceptResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("декодирование результата приглашения: %w", err)
	}

	return &result, nil
}

// CreateBooking создаёт бронирование из отложенного черновика.
// POST /api/v1/bookings
func (c *Client) CreateBooking(ctx context.Context, accessToken string, req *model.BookingRequest) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/bookings", accessToken, req, nil); err != nil {
		return fmt.Errorf("создание бронирования: %w", err)
	}
	return nil
}

// SyncCookies передаёт токены сессии Core API для установки HTTP-only cookies.
// POST /api/v1/auth/cookies
func (c *Client) SyncCookies(ctx context.Context, session *model.Session) error {
	body := struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	}

	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/cookies", session.AccessToken, body, nil); err != nil {
		return fmt.Errorf("синхронизация cookies: %w", err)
	}
	return nil
}

// ClearCookies сбрасывает HTTP-only cookies сессии в Core API.
// DELETE /api/v1/auth/cookies
// Не требует валидного токена: вызывается при выходе из системы.
func (c *Client) ClearCookies(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/v1/auth/cookies", "", nil, nil); err != nil {
		return fmt.Errorf("сброс cookies: %w", err)
	}
	return nil
}

// TrackLogin фиксирует вход пользователя (отметка first_login, аналитика).
// POST /api/v1/users/me/logins
func (c *Client) TrackLogin(ctx context.Context, accessToken string) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/users/me/logins", accessToken, nil, nil); err != nil {
		return fmt.Errorf("фиксация входа: %w", err)
	}
	return nil
}

// doJSON выполняет запрос и декодирует JSON-ответ в out (если out != nil).
// Статусы вне 2xx превращаются в ошибки; 404 — в ErrNotFound.
func (c *Client) doJSON(ctx context.Context, method, path, accessToken string, body, out any) error {
	reqURL := c.coreURL + path

	resp, err := c.do(ctx, method, reqURL, accessToken, body)
	if err != nil {
		return fmt.Errorf("запрос %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Core API вернул статус %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("декодирование ответа Core API: %w", err)
		}
	}
	return nil
}

// do собирает и выполняет HTTP-запрос с JSON-телом и Bearer-авторизацией.
func (c *Client) do(ctx context.Context, method, reqURL, accessToken string, body any) (*http.Response, error) {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		reqBody = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("запрос к %s: %w", c.coreURL, err)
	}
	return resp, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}
