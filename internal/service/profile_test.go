package service

import (
	"context"
	"testing"

	"github.com/craftlink/onboarding-module/internal/domain/model"
	"github.com/craftlink/onboarding-module/internal/domain/roles"
)

// TestFetch_FirstLoginNoInvite — сценарий нового пользователя без приглашения:
// открывается выбор ролей.
func TestFetch_FirstLoginNoInvite(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{UserID: "u1", FirstLogin: true}}
	e := newEnv(t, core)

	profile, fs, err := e.profiles.Fetch(context.Background(), "u1", "tok", "dev", true)
	if err != nil {
		t.Fatalf("Ошибка Fetch: %v", err)
	}

	if !profile.FirstLogin {
		t.Error("ожидался профиль с first_login=true")
	}
	if fs.Phase != model.PhaseRoleSelection {
		t.Errorf("ожидалась фаза role_selection, получена %s", fs.Phase)
	}
	if !hasNotice(e.noticeCodes("u1"), model.NoticeCodeWelcome) {
		t.Error("ожидалось приветственное уведомление при настоящем входе")
	}
}

// TestFetch_FirstLoginPreSelectClient — сценарий нового пользователя
// с приглашением и авто-выбором client: роль назначается тихо, выбор ролей
// не показывается, настройка завершается без диалогов, приглашение принято.
func TestFetch_FirstLoginPreSelectClient(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{UserID: "u1", FirstLogin: true}}
	e := newEnv(t, core)
	ctx := context.Background()

	putInvite(t, e, &model.PendingInvite{
		DeviceID:        "dev",
		Token:           "abc",
		PreSelectClient: true,
	})

	_, fs, err := e.profiles.Fetch(ctx, "u1", "tok", "dev", true)
	if err != nil {
		t.Fatalf("Ошибка Fetch: %v", err)
	}

	// Роль client назначена тихо
	if len(core.updateRolesCalls) != 1 || !rolesEqual(core.updateRolesCalls[0], []roles.Role{roles.RoleClient}) {
		t.Errorf("ожидался вызов UpdateRoles [client], получено %v", core.updateRolesCalls)
	}
	// Выбор ролей не показывался, диалоги не открывались
	if fs.Phase != model.PhaseIdle {
		t.Errorf("ожидалась итоговая фаза idle, получена %s", fs.Phase)
	}
	if len(core.completeSetupCalls) != 0 {
		t.Errorf("не ожидалось диалогов, получено %v", core.completeSetupCalls)
	}
	// Приглашение принято с токеном abc
	if len(core.acceptCalls) != 1 || core.acceptCalls[0] != "abc" {
		t.Errorf("ожидался вызов принятия с токеном abc, получено %v", core.acceptCalls)
	}
}

// TestFetch_ExistingUserNeedsClientRole — сценарий возвращающегося creative
// с приглашением, требующим роль client: роль добавляется к существующим,
// client-only настройка проходит без диалогов, приглашение принято.
func TestFetch_ExistingUserNeedsClientRole(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{
		UserID: "u1",
		Roles:  []roles.Role{roles.RoleCreative},
	}}
	e := newEnv(t, core)
	ctx := context.Background()

	putInvite(t, e, &model.PendingInvite{
		DeviceID:        "dev",
		Token:           "abc",
		NeedsClientRole: true,
	})

	_, fs, err := e.profiles.Fetch(ctx, "u1", "tok", "dev", true)
	if err != nil {
		t.Fatalf("Ошибка Fetch: %v", err)
	}

	if len(core.updateRolesCalls) != 1 ||
		!rolesEqual(core.updateRolesCalls[0], []roles.Role{roles.RoleCreative, roles.RoleClient}) {
		t.Errorf("ожидался вызов UpdateRoles [creative client], получено %v", core.updateRolesCalls)
	}
	if len(core.completeSetupCalls) != 0 {
		t.Errorf("не ожидалось диалогов, получено %v", core.completeSetupCalls)
	}
	if len(core.acceptCalls) != 1 || core.acceptCalls[0] != "abc" {
		t.Errorf("ожидался вызов принятия с токеном abc, получено %v", core.acceptCalls)
	}
	if fs.Phase != model.PhaseIdle {
		t.Errorf("ожидалась итоговая фаза idle, получена %s", fs.Phase)
	}
}

// TestFetch_ExistingUserHasRole — возвращающийся пользователь с приглашением,
// но роль client уже есть: приглашение принимается напрямую, без настройки.
func TestFetch_ExistingUserHasRole(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{
		UserID: "u1",
		Roles:  []roles.Role{roles.RoleCreative, roles.RoleClient},
	}}
	e := newEnv(t, core)
	ctx := context.Background()

	putInvite(t, e, &model.PendingInvite{
		DeviceID:        "dev",
		Token:           "abc",
		NeedsClientRole: true,
	})

	_, _, err := e.profiles.Fetch(ctx, "u1", "tok", "dev", true)
	if err != nil {
		t.Fatalf("Ошибка Fetch: %v", err)
	}

	if len(core.updateRolesCalls) != 0 {
		t.Errorf("роли менять не нужно, получено %v", core.updateRolesCalls)
	}
	if len(core.acceptCalls) != 1 {
		t.Errorf("ожидался 1 вызов принятия, получено %d", len(core.acceptCalls))
	}
}

// TestFetch_ResumesIncompleteSetups — возвращающийся пользователь без
// приглашения, Core API числит незавершённые настройки: они возобновляются.
func TestFetch_ResumesIncompleteSetups(t *testing.T) {
	core := &fakeCore{
		profile:    &model.UserProfile{UserID: "u1", Roles: []roles.Role{roles.RoleCreative, roles.RoleAdvocate}},
		incomplete: []roles.Role{roles.RoleAdvocate},
	}
	e := newEnv(t, core)

	_, fs, err := e.profiles.Fetch(context.Background(), "u1", "tok", "dev", true)
	if err != nil {
		t.Fatalf("Ошибка Fetch: %v", err)
	}

	if fs.Phase != model.PhaseStepOpen {
		t.Fatalf("ожидалась фаза step_open, получена %s", fs.Phase)
	}
	if fs.OpenStep != roles.RoleAdvocate {
		t.Errorf("ожидался открытый шаг advocate, получен %s", fs.OpenStep)
	}
}

// TestFetch_WelcomeBackOnlyOnFreshSignIn — ничего не ожидается: приветствие
// "с возвращением" только при настоящем входе, не при обновлении токена.
func TestFetch_WelcomeBackOnlyOnFreshSignIn(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{UserID: "u1", Roles: []roles.Role{roles.RoleClient}}}
	e := newEnv(t, core)
	ctx := context.Background()

	if _, _, err := e.profiles.Fetch(ctx, "u1", "tok", "dev", false); err != nil {
		t.Fatal(err)
	}
	if codes := e.noticeCodes("u1"); hasNotice(codes, model.NoticeCodeWelcomeBack) {
		t.Error("приветствие не должно выдаваться при тихом обновлении")
	}

	if _, _, err := e.profiles.Fetch(ctx, "u1", "tok", "dev", true); err != nil {
		t.Fatal(err)
	}
	if codes := e.noticeCodes("u1"); !hasNotice(codes, model.NoticeCodeWelcomeBack) {
		t.Error("ожидалось приветствие при настоящем входе")
	}
}

// TestFetch_QuietDuringSetup — при идущей настройке выполняется только
// тихое обновление профиля: онбординг не перезапускается.
func TestFetch_QuietDuringSetup(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{UserID: "u1", FirstLogin: true}}
	e := newEnv(t, core)
	ctx := context.Background()

	if _, err := e.sequencer.Start(ctx, "u1", "tok", "dev", []roles.Role{roles.RoleCreative}, []roles.Role{roles.RoleCreative}); err != nil {
		t.Fatal(err)
	}
	rolesCallsBefore := len(core.updateRolesCalls)

	_, fs, err := e.profiles.Fetch(ctx, "u1", "tok", "dev", true)
	if err != nil {
		t.Fatalf("Ошибка Fetch: %v", err)
	}

	if fs.Phase != model.PhaseStepOpen {
		t.Errorf("состояние настройки не должно меняться, получена фаза %s", fs.Phase)
	}
	if len(core.updateRolesCalls) != rolesCallsBefore {
		t.Error("тихое обновление не должно трогать роли")
	}
}

// TestFetch_DuplicateDropReturnsState — параллельный дубликат отбрасывается
// без похода в Core API, но снимок состояния настройки возвращается, а не nil.
func TestFetch_DuplicateDropReturnsState(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{UserID: "u1"}, profileErr: errUpstream}
	e := newEnv(t, core)

	e.profiles.mu.Lock()
	e.profiles.inFlight["u1"] = true
	e.profiles.mu.Unlock()

	_, fs, err := e.profiles.Fetch(context.Background(), "u1", "tok", "dev", true)
	if err != nil {
		t.Fatalf("дубликат должен отбрасываться, а не доходить до Core API: %v", err)
	}
	if fs == nil {
		t.Fatal("ожидался снимок состояния настройки, получен nil")
	}
	if fs.Phase != model.PhaseIdle {
		t.Errorf("ожидалась фаза idle, получена %s", fs.Phase)
	}
}

// TestFetch_ErrorPushesNotice — провал загрузки профиля выдаёт уведомление
// об ошибке, guard снимается (повторный вызов снова доходит до Core API).
func TestFetch_ErrorPushesNotice(t *testing.T) {
	core := &fakeCore{profile: &model.UserProfile{UserID: "u1"}, profileErr: errUpstream}
	e := newEnv(t, core)
	ctx := context.Background()

	if _, _, err := e.profiles.Fetch(ctx, "u1", "tok", "dev", true); err == nil {
		t.Fatal("ожидалась ошибка загрузки профиля")
	}
	if !hasNotice(e.noticeCodes("u1"), model.NoticeCodeProfileError) {
		t.Error("ожидалось уведомление PROFILE_ERROR")
	}

	// Guard снят: следующий вызов снова пытается загрузить
	core.mu.Lock()
	core.profileErr = nil
	core.mu.Unlock()
	if _, _, err := e.profiles.Fetch(ctx, "u1", "tok", "dev", false); err != nil {
		t.Fatalf("повторная загрузка должна пройти: %v", err)
	}
}
