package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"fitness-auth/internal/domain"
	"fitness-auth/internal/repository"
	"fitness-auth/internal/workos"
)

type mockUserRepo struct {
	mu         sync.Mutex
	usersByID  map[string]domain.User
	idByWorkOS map[string]string
	idByEmail  map[string]string

	getErr    error
	createErr error
	updateErr error
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:  make(map[string]domain.User),
		idByWorkOS: make(map[string]string),
		idByEmail:  make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idByWorkOS[user.WorkOSUserID]; ok {
		return repository.ErrDuplicateUser
	}
	if user.Email != "" {
		if _, ok := m.idByEmail[user.Email]; ok {
			return repository.ErrDuplicateUser
		}
	}
	m.usersByID[user.ID] = user
	m.idByWorkOS[user.WorkOSUserID] = user.ID
	if user.Email != "" {
		m.idByEmail[user.Email] = user.ID
	}
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByWorkOSID(_ context.Context, workosID string) (domain.User, error) {
	if m.getErr != nil {
		return domain.User{}, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.idByWorkOS[workosID]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.usersByID[id], nil
}

func (m *mockUserRepo) UpdateEmail(_ context.Context, id, email string) (domain.User, error) {
	if m.updateErr != nil {
		return domain.User{}, m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	if other, ok := m.idByEmail[email]; ok && other != id {
		return domain.User{}, repository.ErrDuplicateUser
	}
	delete(m.idByEmail, user.Email)
	user.Email = email
	user.UpdatedAt = time.Now().UTC()
	m.usersByID[id] = user
	m.idByEmail[email] = id
	return user, nil
}

func (m *mockUserRepo) LinkGarmin(_ context.Context, id string, link domain.GarminLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.GarminAccessToken = link.AccessToken
	user.GarminRefreshToken = link.RefreshToken
	user.GarminUserID = link.GarminUserID
	user.GarminConnected = true
	user.GarminScopes = link.Scopes
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.usersByID)
}

// racingRepo simula otro request que inserta la fila entre el lookup y el
// insert: el primer lookup por workos id no ve nada.
type racingRepo struct {
	*mockUserRepo
	missed bool
}

func (r *racingRepo) GetByWorkOSID(ctx context.Context, workosID string) (domain.User, error) {
	if !r.missed {
		r.missed = true
		return domain.User{}, pgx.ErrNoRows
	}
	return r.mockUserRepo.GetByWorkOSID(ctx, workosID)
}

func newAuthService(repo repository.UserRepository, idp workos.Client) *AuthService {
	return NewAuthService(zap.NewNop(), repo, idp, NewMemoryProfileCache(time.Minute))
}

func TestReconcileCreatesUnknownUser(t *testing.T) {
	repo := newMockUserRepo()
	svc := newAuthService(repo, &workos.MockClient{})

	user, err := svc.Reconcile(context.Background(), workos.Profile{ID: "ext_1", Email: "U@X.com"})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if user.ID == "" {
		t.Error("expected generated user id")
	}
	if user.WorkOSUserID != "ext_1" {
		t.Errorf("WorkOSUserID = %q", user.WorkOSUserID)
	}
	if user.Email != "u@x.com" {
		t.Errorf("Email = %q, want normalized", user.Email)
	}
	if user.CreatedAt.IsZero() {
		t.Error("expected fresh created_at")
	}
	if repo.count() != 1 {
		t.Errorf("rows = %d, want 1", repo.count())
	}
}

func TestReconcileIdempotent(t *testing.T) {
	repo := newMockUserRepo()
	svc := newAuthService(repo, &workos.MockClient{})
	profile := workos.Profile{ID: "ext_1", Email: "u@x.com"}

	first, err := svc.Reconcile(context.Background(), profile)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	second, err := svc.Reconcile(context.Background(), profile)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("user ids differ: %q vs %q", first.ID, second.ID)
	}
	if repo.count() != 1 {
		t.Errorf("rows = %d, want 1", repo.count())
	}
}

func TestReconcileEmailDrift(t *testing.T) {
	repo := newMockUserRepo()
	svc := newAuthService(repo, &workos.MockClient{})

	first, err := svc.Reconcile(context.Background(), workos.Profile{ID: "ext_1", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	second, err := svc.Reconcile(context.Background(), workos.Profile{ID: "ext_1", Email: "b@x.com"})
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("user ids differ: %q vs %q", first.ID, second.ID)
	}
	if second.Email != "b@x.com" {
		t.Errorf("Email = %q, want b@x.com", second.Email)
	}
	if repo.count() != 1 {
		t.Errorf("rows = %d, want 1", repo.count())
	}
}

func TestReconcileConcurrentFirstLogin(t *testing.T) {
	repo := newMockUserRepo()
	svc := newAuthService(repo, &workos.MockClient{})
	profile := workos.Profile{ID: "ext_1", Email: "u@x.com"}

	const n = 32
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, err := svc.Reconcile(context.Background(), profile)
			ids[i] = user.ID
			errs[i] = err
		}(i)
	}
	wg.Wait()

	if repo.count() != 1 {
		t.Fatalf("rows = %d, want exactly 1", repo.count())
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("call %d returned id %q, want %q", i, ids[i], ids[0])
		}
	}
}

func TestReconcileDuplicateInsertFallback(t *testing.T) {
	inner := newMockUserRepo()
	winner := domain.User{
		ID:           "existing-id",
		Email:        "u@x.com",
		WorkOSUserID: "ext_1",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := inner.Create(context.Background(), winner); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newAuthService(&racingRepo{mockUserRepo: inner}, &workos.MockClient{})

	user, err := svc.Reconcile(context.Background(), workos.Profile{ID: "ext_1", Email: "u@x.com"})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if user.ID != "existing-id" {
		t.Errorf("user id = %q, want the winning row", user.ID)
	}
	if inner.count() != 1 {
		t.Errorf("rows = %d, want 1", inner.count())
	}
}

func TestReconcileEmptyExternalID(t *testing.T) {
	svc := newAuthService(newMockUserRepo(), &workos.MockClient{})

	_, err := svc.Reconcile(context.Background(), workos.Profile{Email: "u@x.com"})
	if !errors.Is(err, ErrProfileInvalid) {
		t.Fatalf("err = %v, want ErrProfileInvalid", err)
	}
}

func TestReconcileStorageErrorAborts(t *testing.T) {
	repo := newMockUserRepo()
	storageErr := errors.New("connection refused")
	repo.getErr = storageErr
	svc := newAuthService(repo, &workos.MockClient{})

	_, err := svc.Reconcile(context.Background(), workos.Profile{ID: "ext_1", Email: "u@x.com"})
	if !errors.Is(err, storageErr) {
		t.Fatalf("err = %v, want storage error", err)
	}
	if repo.count() != 0 {
		t.Errorf("rows = %d, want no partial writes", repo.count())
	}
}

func TestCurrentUserInvalidToken(t *testing.T) {
	repo := newMockUserRepo()
	idp := &workos.MockClient{VerifyErr: workos.ErrInvalidToken}
	svc := newAuthService(repo, idp)

	_, err := svc.CurrentUser(context.Background(), "garbage-token")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
	if repo.count() != 0 {
		t.Error("no user must be fabricated for an invalid token")
	}
}

func TestCurrentUserEmptyToken(t *testing.T) {
	idp := &workos.MockClient{}
	svc := newAuthService(newMockUserRepo(), idp)

	_, err := svc.CurrentUser(context.Background(), "   ")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
	if len(idp.VerifiedTokens) != 0 {
		t.Error("empty token must not reach the provider")
	}
}

func TestCurrentUserProviderUnavailable(t *testing.T) {
	idp := &workos.MockClient{VerifyErr: workos.ErrProviderUnavailable}
	svc := newAuthService(newMockUserRepo(), idp)

	_, err := svc.CurrentUser(context.Background(), "tok_1")
	if !errors.Is(err, workos.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestCurrentUserCachesVerifiedProfile(t *testing.T) {
	idp := &workos.MockClient{Profile: workos.Profile{ID: "ext_1", Email: "u@x.com"}}
	svc := newAuthService(newMockUserRepo(), idp)

	first, err := svc.CurrentUser(context.Background(), "tok_1")
	if err != nil {
		t.Fatalf("first CurrentUser: %v", err)
	}
	second, err := svc.CurrentUser(context.Background(), "tok_1")
	if err != nil {
		t.Fatalf("second CurrentUser: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("user ids differ: %q vs %q", first.ID, second.ID)
	}
	if len(idp.VerifiedTokens) != 1 {
		t.Errorf("provider verified %d times, want 1", len(idp.VerifiedTokens))
	}
}

func TestHandleCallbackEndToEnd(t *testing.T) {
	repo := newMockUserRepo()
	idp := &workos.MockClient{
		Profile:     workos.Profile{ID: "ext_1", Email: "u@x.com"},
		AccessToken: "tok_1",
	}
	svc := newAuthService(repo, idp)

	user, accessToken, err := svc.HandleCallback(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if accessToken != "tok_1" {
		t.Errorf("accessToken = %q", accessToken)
	}
	if user.WorkOSUserID != "ext_1" || user.Email != "u@x.com" {
		t.Errorf("unexpected user: %+v", user)
	}
	if len(idp.ExchangedCodes) != 1 || idp.ExchangedCodes[0] != "abc123" {
		t.Errorf("exchanged codes = %v", idp.ExchangedCodes)
	}

	// El token del callback queda verificado y cacheado: /auth/me no debe
	// volver al proveedor.
	me, err := svc.CurrentUser(context.Background(), "tok_1")
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if me.ID != user.ID {
		t.Errorf("me.ID = %q, want %q", me.ID, user.ID)
	}
	if len(idp.VerifiedTokens) != 0 {
		t.Errorf("provider verified %d times, want 0", len(idp.VerifiedTokens))
	}
}

func TestHandleCallbackInvalidCode(t *testing.T) {
	repo := newMockUserRepo()
	idp := &workos.MockClient{ExchangeErr: workos.ErrInvalidCode}
	svc := newAuthService(repo, idp)

	_, _, err := svc.HandleCallback(context.Background(), "expired-code")
	if !errors.Is(err, workos.ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
	if repo.count() != 0 {
		t.Error("failed exchange must not create users")
	}
}

func TestHandleCallbackEmptyCode(t *testing.T) {
	idp := &workos.MockClient{}
	svc := newAuthService(newMockUserRepo(), idp)

	_, _, err := svc.HandleCallback(context.Background(), "")
	if !errors.Is(err, workos.ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
	if len(idp.ExchangedCodes) != 0 {
		t.Error("empty code must not reach the provider")
	}
}
