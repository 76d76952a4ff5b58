package service

import (
	"context"
	"testing"

	"github.com/craftlink/onboarding-module/internal/domain/model"
	"github.com/craftlink/onboarding-module/internal/domain/roles"
)

func testSession() *model.Session {
	return &model.Session{
		UserID:       "u1",
		AccessToken:  "at",
		RefreshToken: "rt",
		Email:        "u1@example.com",
	}
}

// TestHandleEvent_SignedIn проверяет обработку входа: cookie синхронизированы,
// вход зафиксирован, онбординг отработал как настоящий вход.
func TestHandleEvent_SignedIn(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{UserID: "u1", Roles: []roles.Role{roles.RoleClient}}}
	e := newEnv(t, core)

	fs, err := e.session.HandleEvent(context.Background(), model.EventSignedIn, testSession(), "dev")
	if err != nil {
		t.Fatalf("Ошибка HandleEvent: %v", err)
	}

	if core.syncCalls != 1 {
		t.Errorf("ожидалась 1 синхронизация cookie, получено %d", core.syncCalls)
	}
	if core.trackCalls != 1 {
		t.Errorf("ожидалась 1 фиксация входа, получено %d", core.trackCalls)
	}
	if fs == nil || fs.Phase != model.PhaseIdle {
		t.Errorf("ожидалась фаза idle, получено %+v", fs)
	}
	if !hasNotice(e.noticeCodes("u1"), model.NoticeCodeWelcomeBack) {
		t.Error("ожидалось приветствие при входе")
	}
}

// TestHandleEvent_CookieSyncIdempotent проверяет идемпотентность синхронизации:
// та же пара токенов второй раз не синхронизируется, новая — синхронизируется.
func TestHandleEvent_CookieSyncIdempotent(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{UserID: "u1", Roles: []roles.Role{roles.RoleClient}}}
	e := newEnv(t, core)
	ctx := context.Background()

	sess := testSession()
	if _, err := e.session.HandleEvent(ctx, model.EventSignedIn, sess, "dev"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.session.HandleEvent(ctx, model.EventTokenRefreshed, sess, "dev"); err != nil {
		t.Fatal(err)
	}
	if core.syncCalls != 1 {
		t.Errorf("та же пара не должна синхронизироваться повторно, вызовов: %d", core.syncCalls)
	}

	refreshed := testSession()
	refreshed.AccessToken = "at2"
	if _, err := e.session.HandleEvent(ctx, model.EventTokenRefreshed, refreshed, "dev"); err != nil {
		t.Fatal(err)
	}
	if core.syncCalls != 2 {
		t.Errorf("новая пара должна синхронизироваться, вызовов: %d", core.syncCalls)
	}
}

// TestHandleEvent_SyncFailureSwallowed проверяет, что сбой синхронизации cookie
// не блокирует переход: профиль всё равно загружен.
func TestHandleEvent_SyncFailureSwallowed(t *testing.T) {
	core := &fakeCore{
		profile: &model.UserProfile{UserID: "u1", Roles: []roles.Role{roles.RoleClient}},
		syncErr: errUpstream,
		trackErr: errUpstream,
	}
	e := newEnv(t, core)

	_, err := e.session.HandleEvent(context.Background(), model.EventSignedIn, testSession(), "dev")
	if err != nil {
		t.Fatalf("сбои cookie-sync и фиксации входа не должны блокировать переход: %v", err)
	}
	if _, ok := e.cache.Get("u1"); !ok {
		t.Error("профиль должен быть загружен несмотря на сбои побочных эффектов")
	}
}

// TestHandleEvent_TokenRefreshQuiet проверяет, что обновление токена
// не выдаёт приветствий.
func TestHandleEvent_TokenRefreshQuiet(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{UserID: "u1", Roles: []roles.Role{roles.RoleClient}}}
	e := newEnv(t, core)

	if _, err := e.session.HandleEvent(context.Background(), model.EventTokenRefreshed, testSession(), "dev"); err != nil {
		t.Fatal(err)
	}
	if codes := e.noticeCodes("u1"); hasNotice(codes, model.NoticeCodeWelcomeBack) {
		t.Error("обновление токена не должно выдавать приветствие")
	}
}

// TestHandleEvent_SignedOut проверяет сброс локального состояния при выходе:
// cookie сброшены, кэш и память пар очищены, уведомление выдано.
func TestHandleEvent_SignedOut(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{UserID: "u1", Roles: []roles.Role{roles.RoleClient}}}
	e := newEnv(t, core)
	ctx := context.Background()

	sess := testSession()
	if _, err := e.session.HandleEvent(ctx, model.EventSignedIn, sess, "dev"); err != nil {
		t.Fatal(err)
	}
	e.noticeCodes("u1") // очищаем приветствие

	if _, err := e.session.HandleEvent(ctx, model.EventSignedOut, sess, "dev"); err != nil {
		t.Fatal(err)
	}

	if core.clearCalls != 1 {
		t.Errorf("ожидался 1 сброс cookie, получено %d", core.clearCalls)
	}
	if _, ok := e.cache.Get("u1"); ok {
		t.Error("кэш профиля должен быть очищен при выходе")
	}
	if !hasNotice(e.noticeCodes("u1"), model.NoticeCodeSignedOut) {
		t.Error("ожидалось уведомление SIGNED_OUT")
	}

	// Память синхронизированных пар очищена: та же пара синхронизируется заново
	if _, err := e.session.HandleEvent(ctx, model.EventSignedIn, sess, "dev"); err != nil {
		t.Fatal(err)
	}
	if core.syncCalls != 2 {
		t.Errorf("после выхода пара должна синхронизироваться заново, вызовов: %d", core.syncCalls)
	}
}

// TestHandleEvent_Unknown проверяет отказ на неизвестном событии.
func TestHandleEvent_Unknown(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{UserID: "u1"}}
	e := newEnv(t, core)

	if _, err := e.session.HandleEvent(context.Background(), "bogus", testSession(), "dev"); err == nil {
		t.Error("ожидалась ошибка на неизвестном событии")
	}
}
