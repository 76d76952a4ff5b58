package coreclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/craftlink/onboarding-module/internal/domain/model"
	"github.com/craftlink/onboarding-module/internal/domain/roles"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockCore создаёт mock HTTP-сервер Core API.
func setupMockCore(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// newTestClient создаёт клиент, направленный на mock-сервер.
func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := New(serverURL, "", 5*time.Second, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return client
}

// TestClient_GetUserProfile проверяет получение профиля (GET /api/v1/users/me).
func TestClient_GetUserProfile(t *testing.T) {
	server := setupMockCore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/users/me" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("ожидался Authorization=Bearer token-123, получен %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"user_id":     "user-1",
			"name":        "Анна",
			"email":       "anna@example.com",
			"roles":       []string{"creative", "unknown_role"},
			"first_login": true,
		})
	})

	client := newTestClient(t, server.URL)

	profile, err := client.GetUserProfile(context.Background(), "token-123")
	if err != nil {
		t.Fatalf("Ошибка GetUserProfile: %v", err)
	}

	if profile.UserID != "user-1" {
		t.Errorf("ожидался UserID=user-1, получен %s", profile.UserID)
	}
	if !profile.FirstLogin {
		t.Error("ожидался FirstLogin=true")
	}
	// Неизвестная роль отбрасывается
	if len(profile.Roles) != 1 || profile.Roles[0] != roles.RoleCreative {
		t.Errorf("ожидалась одна роль creative, получены %v", profile.Roles)
	}
}

// TestClient_GetUserProfile_NotFound проверяет ErrNotFound при 404.
func TestClient_GetUserProfile_NotFound(t *testing.T) {
	server := setupMockCore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client := newTestClient(t, server.URL)

	_, err := client.GetUserProfile(context.Background(), "token-123")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получена %v", err)
	}
}

// TestClient_UpdateRoles проверяет сохранение ролей (POST /api/v1/users/me/roles).
func TestClient_UpdateRoles(t *testing.T) {
	var received struct {
		Roles []string `json:"roles"`
	}
	server := setupMockCore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/users/me/roles" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("декодирование тела: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, server.URL)

	err := client.UpdateRoles(context.Background(), "token-123", []roles.Role{roles.RoleCreative, roles.RoleClient})
	if err != nil {
		t.Fatalf("Ошибка UpdateRoles: %v", err)
	}

	if len(received.Roles) != 2 || received.Roles[0] != "creative" || received.Roles[1] != "client" {
		t.Errorf("ожидались роли [creative client], получены %v", received.Roles)
	}
}

// TestClient_AcceptInvite проверяет принятие приглашения.
func TestClient_AcceptInvite(t *testing.T) {
	server := setupMockCore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/invites/accept" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var body struct {
			Token string `json:"token"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Token != "inv-token" {
			t.Errorf("ожидался token=inv-token, получен %q", body.Token)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.InviteAcceptResult{
			Success: true,
			Message: "connected",
		})
	})

	client := newTestClient(t, server.URL)

	result, err := client.AcceptInvite(context.Background(), "token-123", "inv-token")
	if err != nil {
		t.Fatalf("Ошибка AcceptInvite: %v", err)
	}
	if !result.Success {
		t.Error("ожидался Success=true")
	}
}

// TestClient_AcceptInvite_ProfileNotVisible проверяет маппинг ответа
// "Client profile not found" в ErrClientProfileNotVisible.
func TestClient_AcceptInvite_ProfileNotVisible(t *testing.T) {
	server := setupMockCore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Client profile not found"}`))
	})

	client := newTestClient(t, server.URL)

	_, err := client.AcceptInvite(context.Background(), "token-123", "inv-token")
	if !errors.Is(err, ErrClientProfileNotVisible) {
		t.Errorf("ожидалась ErrClientProfileNotVisible, получена %v", err)
	}
}

// TestClient_AcceptInvite_RelationshipExists проверяет, что флаг
// relationship_exists доходит до вызывающего кода.
func TestClient_AcceptInvite_RelationshipExists(t *testing.T) {
	server := setupMockCore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.InviteAcceptResult{
			Success:            false,
			Message:            "already connected",
			RelationshipExists: true,
		})
	})

	client := newTestClient(t, server.URL)

	result, err := client.AcceptInvite(context.Background(), "token-123", "inv-token")
	if err != nil {
		t.Fatalf("Ошибка AcceptInvite: %v", err)
	}
	if !result.RelationshipExists {
		t.Error("ожидался RelationshipExists=true")
	}
}

// TestClient_CreateBooking проверяет создание бронирования.
func TestClient_CreateBooking(t *testing.T) {
	var received model.BookingRequest
	server := setupMockCore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/bookings" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
	})

	client := newTestClient(t, server.URL)

	req := &model.BookingRequest{
		ServiceID: "svc-1",
		StartTime: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		Notes:     "первый визит",
	}
	if err := client.CreateBooking(context.Background(), "token-123", req); err != nil {
		t.Fatalf("Ошибка CreateBooking: %v", err)
	}

	if received.ServiceID != "svc-1" {
		t.Errorf("ожидался ServiceID=svc-1, получен %s", received.ServiceID)
	}
}

// TestClient_SyncCookies проверяет передачу токенов для установки cookies.
func TestClient_SyncCookies(t *testing.T) {
	server := setupMockCore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/cookies" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var body struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.AccessToken != "at" || body.RefreshToken != "rt" {
			t.Errorf("ожидались токены at/rt, получены %q/%q", body.AccessToken, body.RefreshToken)
		}
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, server.URL)

	session := &model.Session{UserID: "user-1", AccessToken: "at", RefreshToken: "rt"}
	if err := client.SyncCookies(context.Background(), session); err != nil {
		t.Fatalf("Ошибка SyncCookies: %v", err)
	}
}

// TestClient_ClearCookies проверяет сброс cookies без авторизации.
func TestClient_ClearCookies(t *testing.T) {
	server := setupMockCore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/cookies" || r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("ClearCookies не должен передавать Authorization header")
		}
		w.WriteHeader(http.StatusOK)
	})

	client := newTestClient(t, server.URL)

	if err := client.ClearCookies(context.Background()); err != nil {
		t.Fatalf("Ошибка ClearCookies: %v", err)
	}
}

// TestClient_ServerError проверяет обработку 5xx от Core API.
func TestClient_ServerError(t *testing.T) {
	server := setupMockCore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	})

	client := newTestClient(t, server.URL)

	if err := client.TrackLogin(context.Background(), "token-123"); err == nil {
		t.Error("ожидалась ошибка при статусе 500")
	}
}
