package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signin-api/internal/domain"
	"github.com/signin-api/internal/pkg/hash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockCredentialStore struct{ mock.Mock }

func (m *mockCredentialStore) Put(ctx context.Context, c *domain.VerificationCredential) error {
	return m.Called(ctx, c).Error(0)
}
func (m *mockCredentialStore) ListByIdentifier(ctx context.Context, identifier string) ([]domain.VerificationCredential, error) {
	args := m.Called(ctx, identifier)
	if creds, _ := args.Get(0).([]domain.VerificationCredential); creds != nil {
		return creds, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockCredentialStore) DeleteByHash(ctx context.Context, identifier, secretHash string) (bool, error) {
	args := m.Called(ctx, identifier, secretHash)
	return args.Bool(0), args.Error(1)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) Send(ctx context.Context, identifier, secret string) error {
	return m.Called(ctx, identifier, secret).Error(0)
}

// fakeClock is a settable clock for TTL-boundary tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// memStore is an in-memory Store with the same atomicity contract as the
// DynamoDB repo: DeleteByHash removes at most one row and reports whether it
// actually removed anything, under a single lock.
type memStore struct {
	mu   sync.Mutex
	rows map[string]map[string]domain.VerificationCredential // identifier -> secretHash -> row
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]map[string]domain.VerificationCredential)}
}

func (s *memStore) Put(_ context.Context, c *domain.VerificationCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[c.Identifier] == nil {
		s.rows[c.Identifier] = make(map[string]domain.VerificationCredential)
	}
	s.rows[c.Identifier][c.SecretHash] = *c
	return nil
}

func (s *memStore) ListByIdentifier(_ context.Context, identifier string) ([]domain.VerificationCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var creds []domain.VerificationCredential
	for _, c := range s.rows[identifier] {
		creds = append(creds, c)
	}
	return creds, nil
}

func (s *memStore) DeleteByHash(_ context.Context, identifier, secretHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[identifier][secretHash]; !ok {
		return false, nil
	}
	delete(s.rows[identifier], secretHash)
	return true, nil
}

func (s *memStore) count(identifier string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[identifier])
}

// recordingSender captures the delivered plaintext for assertions.
type recordingSender struct {
	mu      sync.Mutex
	secrets []string
}

func (r *recordingSender) Send(_ context.Context, _, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets = append(r.secrets, secret)
	return nil
}

func (r *recordingSender) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.secrets[len(r.secrets)-1]
}

var t0 = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestService(store Store, sender *mockSender, clk *fakeClock) Service {
	deps := Deps{CredentialRepo: store, TTL: 15 * time.Minute}
	if sender != nil {
		deps.Delivery = sender
	}
	if clk != nil {
		deps.Now = clk.Now
	}
	return NewService(deps)
}

// --- issuance ---

func TestIssueLinkToken_InvalidIdentifier(t *testing.T) {
	store := &mockCredentialStore{}
	svc := newTestService(store, nil, nil)

	_, err := svc.IssueLinkToken(context.Background(), "not-an-identifier")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "ListByIdentifier", mock.Anything, mock.Anything)
}

func TestIssueLinkToken_Success(t *testing.T) {
	store := &mockCredentialStore{}
	store.On("ListByIdentifier", mock.Anything, "a@b.com").Return([]domain.VerificationCredential{}, nil)

	var persisted *domain.VerificationCredential
	store.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		persisted = args.Get(1).(*domain.VerificationCredential)
	}).Return(nil)

	clk := &fakeClock{t: t0}
	svc := newTestService(store, nil, clk)

	issued, err := svc.IssueLinkToken(context.Background(), "a@b.com")
	require.NoError(t, err)

	// 32 bytes of entropy, base64url without padding.
	assert.Len(t, issued.Token, 43)
	assert.Equal(t, t0.Add(15*time.Minute), issued.ExpiresAt)

	require.NotNil(t, persisted)
	assert.Equal(t, "a@b.com", persisted.Identifier)
	assert.NotEmpty(t, persisted.CredentialID)
	assert.Equal(t, t0.Add(15*time.Minute).Unix(), persisted.ExpiresAt)
	assert.NotContains(t, persisted.SecretHash, issued.Token, "plaintext must never be stored")
	assert.True(t, hash.Matches(issued.Token, persisted.SecretHash))
}

func TestIssueNumericCode_Success(t *testing.T) {
	store := &mockCredentialStore{}
	store.On("ListByIdentifier", mock.Anything, "+15551234567").Return([]domain.VerificationCredential{}, nil)

	var persisted *domain.VerificationCredential
	store.On("Put", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		persisted = args.Get(1).(*domain.VerificationCredential)
	}).Return(nil)

	sender := &mockSender{}
	var delivered string
	sender.On("Send", mock.Anything, "+15551234567", mock.Anything).Run(func(args mock.Arguments) {
		delivered = args.String(2)
	}).Return(nil)

	clk := &fakeClock{t: t0}
	svc := newTestService(store, sender, clk)

	issued, err := svc.IssueNumericCode(context.Background(), "+15551234567")
	require.NoError(t, err)

	// The response carries only the expiry; the code went out-of-band.
	assert.Equal(t, t0.Add(15*time.Minute), issued.ExpiresAt)
	assert.Regexp(t, `^\d{6}$`, delivered)
	assert.True(t, hash.Matches(delivered, persisted.SecretHash))
	sender.AssertExpectations(t)
}

func TestIssueNumericCode_DeliveryFailure(t *testing.T) {
	store := &mockCredentialStore{}
	store.On("ListByIdentifier", mock.Anything, "a@b.com").Return([]domain.VerificationCredential{}, nil)
	store.On("Put", mock.Anything, mock.Anything).Return(nil)

	sender := &mockSender{}
	sender.On("Send", mock.Anything, "a@b.com", mock.Anything).Return(errors.New("smtp: connection refused"))

	svc := newTestService(store, sender, nil)

	_, err := svc.IssueNumericCode(context.Background(), "a@b.com")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDelivery)
	// The credential was already persisted; it is kept, and a resend is a
	// fresh issuance rather than a retry.
	store.AssertCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestIssue_StoreFailure(t *testing.T) {
	store := &mockCredentialStore{}
	store.On("ListByIdentifier", mock.Anything, "a@b.com").Return([]domain.VerificationCredential{}, nil)
	store.On("Put", mock.Anything, mock.Anything).Return(errors.New("dynamodb: throttled"))

	svc := newTestService(store, nil, nil)

	_, err := svc.IssueLinkToken(context.Background(), "a@b.com")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.NotContains(t, err.Error(), "throttled", "raw store errors must not cross the boundary")
}

func TestIssue_PrunesExpiredRows(t *testing.T) {
	expired := domain.VerificationCredential{
		Identifier: "a@b.com", SecretHash: "hash-old", CredentialID: "old",
		ExpiresAt: t0.Add(-time.Minute).Unix(),
	}
	live := domain.VerificationCredential{
		Identifier: "a@b.com", SecretHash: "hash-live", CredentialID: "live",
		ExpiresAt: t0.Add(10 * time.Minute).Unix(),
	}

	store := &mockCredentialStore{}
	store.On("ListByIdentifier", mock.Anything, "a@b.com").Return([]domain.VerificationCredential{expired, live}, nil)
	store.On("DeleteByHash", mock.Anything, "a@b.com", "hash-old").Return(true, nil)
	store.On("Put", mock.Anything, mock.Anything).Return(nil)

	clk := &fakeClock{t: t0}
	svc := newTestService(store, nil, clk)

	_, err := svc.IssueLinkToken(context.Background(), "a@b.com")
	require.NoError(t, err)

	store.AssertCalled(t, "DeleteByHash", mock.Anything, "a@b.com", "hash-old")
	store.AssertNotCalled(t, "DeleteByHash", mock.Anything, "a@b.com", "hash-live")
}

// --- verification ---

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	h, err := hash.Secret(plain)
	require.NoError(t, err)
	return h
}

func TestVerify_NoOutstandingCredentials(t *testing.T) {
	store := &mockCredentialStore{}
	store.On("ListByIdentifier", mock.Anything, "a@b.com").Return([]domain.VerificationCredential{}, nil)

	svc := newTestService(store, nil, nil)

	_, err := svc.VerifyLinkToken(context.Background(), "a@b.com", "some-token")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpired)
}

func TestVerify_WrongSecret_LeavesCredentialIntact(t *testing.T) {
	cred := domain.VerificationCredential{
		Identifier: "a@b.com", SecretHash: mustHash(t, "right-token"),
		CredentialID: "c1", ExpiresAt: t0.Add(10 * time.Minute).Unix(),
	}
	store := &mockCredentialStore{}
	store.On("ListByIdentifier", mock.Anything, "a@b.com").Return([]domain.VerificationCredential{cred}, nil)

	clk := &fakeClock{t: t0}
	svc := newTestService(store, nil, clk)

	_, err := svc.VerifyLinkToken(context.Background(), "a@b.com", "wrong-token")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpired)
	// A mismatch never destroys anything.
	store.AssertNotCalled(t, "DeleteByHash", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerify_Success(t *testing.T) {
	secretHash := mustHash(t, "right-token")
	cred := domain.VerificationCredential{
		Identifier: "a@b.com", SecretHash: secretHash,
		CredentialID: "c1", ExpiresAt: t0.Add(10 * time.Minute).Unix(),
	}
	store := &mockCredentialStore{}
	store.On("ListByIdentifier", mock.Anything, "a@b.com").Return([]domain.VerificationCredential{cred}, nil)
	store.On("DeleteByHash", mock.Anything, "a@b.com", secretHash).Return(true, nil)

	clk := &fakeClock{t: t0}
	svc := newTestService(store, nil, clk)

	v, err := svc.VerifyLinkToken(context.Background(), "a@b.com", "right-token")

	require.NoError(t, err)
	assert.Equal(t, "a@b.com", v.Identifier)
	store.AssertCalled(t, "DeleteByHash", mock.Anything, "a@b.com", secretHash)
}

func TestVerify_LostRace(t *testing.T) {
	secretHash := mustHash(t, "right-token")
	cred := domain.VerificationCredential{
		Identifier: "a@b.com", SecretHash: secretHash,
		CredentialID: "c1", ExpiresAt: t0.Add(10 * time.Minute).Unix(),
	}
	store := &mockCredentialStore{}
	store.On("ListByIdentifier", mock.Anything, "a@b.com").Return([]domain.VerificationCredential{cred}, nil)
	// A concurrent verifier consumed the row between our scan and our delete.
	store.On("DeleteByHash", mock.Anything, "a@b.com", secretHash).Return(false, nil)

	clk := &fakeClock{t: t0}
	svc := newTestService(store, nil, clk)

	_, err := svc.VerifyLinkToken(context.Background(), "a@b.com", "right-token")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpired)
}

func TestVerify_ExpiredMatch_StillDestroyed(t *testing.T) {
	secretHash := mustHash(t, "right-token")
	cred := domain.VerificationCredential{
		Identifier: "a@b.com", SecretHash: secretHash,
		CredentialID: "c1", ExpiresAt: t0.Add(-time.Second).Unix(),
	}
	store := &mockCredentialStore{}
	store.On("ListByIdentifier", mock.Anything, "a@b.com").Return([]domain.VerificationCredential{cred}, nil)
	store.On("DeleteByHash", mock.Anything, "a@b.com", secretHash).Return(true, nil)

	clk := &fakeClock{t: t0}
	svc := newTestService(store, nil, clk)

	_, err := svc.VerifyLinkToken(context.Background(), "a@b.com", "right-token")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpired)
	// The expired row is destroyed as a side effect of the failed attempt.
	store.AssertCalled(t, "DeleteByHash", mock.Anything, "a@b.com", secretHash)
}

func TestVerify_StoreFailure(t *testing.T) {
	store := &mockCredentialStore{}
	store.On("ListByIdentifier", mock.Anything, "a@b.com").Return(nil, errors.New("dynamodb: timeout"))

	svc := newTestService(store, nil, nil)

	_, err := svc.VerifyLinkToken(context.Background(), "a@b.com", "some-token")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestVerifyNumericCode_MalformedCode(t *testing.T) {
	store := &mockCredentialStore{}
	svc := newTestService(store, nil, nil)

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		_, err := svc.VerifyNumericCode(context.Background(), "a@b.com", code)
		require.Error(t, err, code)
		assert.ErrorIs(t, err, domain.ErrValidation, code)
	}
	store.AssertNotCalled(t, "ListByIdentifier", mock.Anything, mock.Anything)
}

// --- end-to-end scenarios over the in-memory store ---

func TestScenario_VerifyJustBeforeExpiry(t *testing.T) {
	store := newMemStore()
	rec := &recordingSender{}
	clk := &fakeClock{t: t0}
	svc := NewService(Deps{CredentialRepo: store, Delivery: rec, TTL: 15 * time.Minute, Now: clk.Now})

	_, err := svc.IssueNumericCode(context.Background(), "a@b.com")
	require.NoError(t, err)

	clk.Set(t0.Add(15*time.Minute - time.Second))
	v, err := svc.VerifyNumericCode(context.Background(), "a@b.com", rec.last())

	require.NoError(t, err)
	assert.Equal(t, "a@b.com", v.Identifier)
	assert.Zero(t, store.count("a@b.com"), "consumed credential must be gone")
}

func TestScenario_VerifyJustAfterExpiry(t *testing.T) {
	store := newMemStore()
	rec := &recordingSender{}
	clk := &fakeClock{t: t0}
	svc := NewService(Deps{CredentialRepo: store, Delivery: rec, TTL: 15 * time.Minute, Now: clk.Now})

	_, err := svc.IssueNumericCode(context.Background(), "a@b.com")
	require.NoError(t, err)

	clk.Set(t0.Add(15*time.Minute + time.Second))
	_, err = svc.VerifyNumericCode(context.Background(), "a@b.com", rec.last())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpired)
	assert.Zero(t, store.count("a@b.com"), "expired match is destroyed too")
}

func TestScenario_ExactlyOnceConsumption(t *testing.T) {
	store := newMemStore()
	clk := &fakeClock{t: t0}
	svc := NewService(Deps{CredentialRepo: store, TTL: 15 * time.Minute, Now: clk.Now})

	issued, err := svc.IssueLinkToken(context.Background(), "a@b.com")
	require.NoError(t, err)

	_, err = svc.VerifyLinkToken(context.Background(), "a@b.com", issued.Token)
	require.NoError(t, err)

	_, err = svc.VerifyLinkToken(context.Background(), "a@b.com", issued.Token)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidOrExpired)
}

func TestScenario_TwoOutstandingCredentialsAreIndependent(t *testing.T) {
	store := newMemStore()
	clk := &fakeClock{t: t0}
	svc := NewService(Deps{CredentialRepo: store, TTL: 15 * time.Minute, Now: clk.Now})

	first, err := svc.IssueLinkToken(context.Background(), "a@b.com")
	require.NoError(t, err)
	second, err := svc.IssueLinkToken(context.Background(), "a@b.com")
	require.NoError(t, err)
	require.Equal(t, 2, store.count("a@b.com"))

	_, err = svc.VerifyLinkToken(context.Background(), "a@b.com", first.Token)
	require.NoError(t, err)

	// Consuming the first must not invalidate the second.
	v, err := svc.VerifyLinkToken(context.Background(), "a@b.com", second.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", v.Identifier)
}

func TestScenario_ConcurrentVerify_ExactlyOneWins(t *testing.T) {
	store := newMemStore()
	clk := &fakeClock{t: t0}
	svc := NewService(Deps{CredentialRepo: store, TTL: 15 * time.Minute, Now: clk.Now})

	issued, err := svc.IssueLinkToken(context.Background(), "a@b.com")
	require.NoError(t, err)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.VerifyLinkToken(context.Background(), "a@b.com", issued.Token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, failures int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, domain.ErrInvalidOrExpired)
			failures++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
}
