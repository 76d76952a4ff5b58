package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/craftlink/onboarding-module/internal/domain/model"
	"github.com/craftlink/onboarding-module/internal/domain/roles"
	"github.com/craftlink/onboarding-module/internal/repository"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeCore — управляемая реализация CoreAPI с подсчётом вызовов.
type fakeCore struct {
	mu sync.Mutex

	profile    *model.UserProfile
	profileErr error

	incomplete []roles.Role

	updateRolesCalls [][]roles.Role
	updateRolesErr   error

	setupClientCalls int
	setupClientErr   error

	completeSetupCalls []roles.Role
	completeSetupErr   error

	acceptCalls  []string
	acceptResult *model.InviteAcceptResult
	// acceptErrs — ошибки попыток принятия по порядку; nil — успех.
	acceptErrs []error

	bookingCalls []*model.BookingRequest
	bookingErr   error

	syncCalls  int
	syncErr    error
	clearCalls int
	clearErr   error
	trackCalls int
	trackErr   error
}

func (f *fakeCore) GetUserProfile(_ context.Context, _ string) (*model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p := *f.profile
	return &p, nil
}

func (f *fakeCore) UpdateRoles(_ context.Context, _ string, selected []roles.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateRolesCalls = append(f.updateRolesCalls, selected)
	if f.updateRolesErr != nil {
		return f.updateRolesErr
	}
	// Сервер наращивает роли профиля
	f.profile.Roles = selected
	return nil
}

func (f *fakeCore) GetIncompleteSetups(_ context.Context, _ string) ([]roles.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.incomplete, nil
}

func (f *fakeCore) CompleteSetup(_ context.Context, _ string, role roles.Role, _ json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeSetupCalls = append(f.completeSetupCalls, role)
	return f.completeSetupErr
}

func (f *fakeCore) SetupClientProfile(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setupClientCalls++
	return f.setupClientErr
}

func (f *fakeCore) AcceptInvite(_ context.Context, _ string, inviteToken string) (*model.InviteAcceptResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt := len(f.acceptCalls)
	f.acceptCalls = append(f.acceptCalls, inviteToken)
	if attempt < len(f.acceptErrs) && f.acceptErrs[attempt] != nil {
		return nil, f.acceptErrs[attempt]
	}
	if f.acceptResult != nil {
		return f.acceptResult, nil
	}
	return &model.InviteAcceptResult{Success: true}, nil
}

func (f *fakeCore) CreateBooking(_ context.Context, _ string, req *model.BookingRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookingCalls = append(f.bookingCalls, req)
	return f.bookingErr
}

func (f *fakeCore) SyncCookies(_ context.Context, _ *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	return f.syncErr
}

func (f *fakeCore) ClearCookies(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	return f.clearErr
}

func (f *fakeCore) TrackLogin(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trackCalls++
	return f.trackErr
}

// fakeAuthProvider — управляемая реализация AuthProvider.
type fakeAuthProvider struct {
	logoutCalls int
	logoutErr   error
}

func (f *fakeAuthProvider) Logout(_ context.Context, _ string) error {
	f.logoutCalls++
	return f.logoutErr
}

// --- In-memory репозитории ---

type memInviteRepo struct {
	mu   sync.Mutex
	data map[string]*model.PendingInvite
}

func newMemInviteRepo() *memInviteRepo {
	return &memInviteRepo{data: make(map[string]*model.PendingInvite)}
}

func (r *memInviteRepo) Get(_ context.Context, deviceID string) (*model.PendingInvite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.data[deviceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *memInviteRepo) Put(_ context.Context, inv *model.PendingInvite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inv
	r.data[inv.DeviceID] = &cp
	return nil
}

func (r *memInviteRepo) Delete(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, deviceID)
	return nil
}

type memBookingRepo struct {
	mu   sync.Mutex
	data map[string]*model.BookingDraft
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{data: make(map[string]*model.BookingDraft)}
}

func (r *memBookingRepo) Put(_ context.Context, draft *model.BookingDraft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *draft
	r.data[draft.DeviceID] = &cp
	return nil
}

func (r *memBookingRepo) Consume(_ context.Context, deviceID string) (*model.BookingDraft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.data[deviceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(r.data, deviceID)
	return draft, nil
}

func (r *memBookingRepo) Delete(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, deviceID)
	return nil
}

type memStateRepo struct {
	mu   sync.Mutex
	data map[string]*model.SetupState
}

func newMemStateRepo() *memStateRepo {
	return &memStateRepo{data: make(map[string]*model.SetupState)}
}

func (r *memStateRepo) Get(_ context.Context, userID string) (*model.SetupState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.data[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *st
	cp.Queue = append([]roles.Role{}, st.Queue...)
	cp.Completed = append([]roles.Role{}, st.Completed...)
	return &cp, nil
}

func (r *memStateRepo) Save(_ context.Context, st *model.SetupState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *st
	cp.Queue = append([]roles.Role{}, st.Queue...)
	cp.Completed = append([]roles.Role{}, st.Completed...)
	r.data[st.UserID] = &cp
	return nil
}

func (r *memStateRepo) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, userID)
	return nil
}

type draftKey struct {
	userID string
	role   roles.Role
}

type memDraftRepo struct {
	mu   sync.Mutex
	data map[draftKey]*model.SetupDraft
}

func newMemDraftRepo() *memDraftRepo {
	return &memDraftRepo{data: make(map[draftKey]*model.SetupDraft)}
}

func (r *memDraftRepo) Get(_ context.Context, userID string, role roles.Role) (*model.SetupDraft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.data[draftKey{userID, role}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDraftRepo) Put(_ context.Context, draft *model.SetupDraft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *draft
	r.data[draftKey{draft.UserID, draft.Role}] = &cp
	return nil
}

func (r *memDraftRepo) DeleteAll(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.data {
		if k.userID == userID {
			delete(r.data, k)
		}
	}
	return nil
}

// env — полный сервисный стек над фейками для сценарных тестов.
type env struct {
	core      *fakeCore
	provider  *fakeAuthProvider
	invRepo   *memInviteRepo
	bookRepo  *memBookingRepo
	stateRepo *memStateRepo
	draftRepo *memDraftRepo

	cache     *ProfileCache
	notices   *NoticeService
	invites   *InviteService
	sequencer *SetupService
	profiles  *ProfileService
	session   *SessionService
	auth      *AuthService
}

// newEnv собирает сервисный стек c быстрыми повторами (retryBase=1ms).
func newEnv(t *testing.T, core *fakeCore) *env {
	t.Helper()

	logger := testLogger()
	e := &env{
		core:      core,
		provider:  &fakeAuthProvider{},
		invRepo:   newMemInviteRepo(),
		bookRepo:  newMemBookingRepo(),
		stateRepo: newMemStateRepo(),
		draftRepo: newMemDraftRepo(),
		cache:     NewProfileCache(100, time.Minute),
	}
	e.notices = NewNoticeService(32, logger)
	e.invites = NewInviteService(core, e.invRepo, e.bookRepo, e.notices, e.cache, 3, time.Millisecond, logger)
	e.sequencer = NewSetupService(core, e.stateRepo, e.draftRepo, e.invites, e.notices, e.cache, logger)
	e.profiles = NewProfileService(core, e.cache, e.sequencer, e.invites, e.notices, logger)
	e.session = NewSessionService(core, e.profiles, e.invites, e.notices, e.cache, logger)
	e.auth = NewAuthService(core, e.provider, e.session, e.invites, e.cache, e.notices, logger)
	return e
}

// noticeCodes возвращает коды уведомлений пользователя (с очисткой очереди).
func (e *env) noticeCodes(userID string) []string {
	drained := e.notices.Drain(userID)
	codes := make([]string, 0, len(drained))
	for _, n := range drained {
		codes = append(codes, n.Code)
	}
	return codes
}

// hasNotice сообщает, есть ли код среди уведомлений.
func hasNotice(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

var errUpstream = errors.New("upstream недоступен")
