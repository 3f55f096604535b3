package credential

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/signin-api/internal/domain"
	"github.com/signin-api/internal/infrastructure/delivery"
	"github.com/signin-api/internal/pkg/hash"
	"github.com/signin-api/internal/pkg/id"
	"github.com/signin-api/internal/pkg/secret"
	"github.com/signin-api/internal/pkg/validate"
)

// DefaultTTL is the sign-in credential lifetime used when Deps.TTL is zero.
const DefaultTTL = 15 * time.Minute

// IssuedLink is the result of issuing a magic-link token. Token is the
// plaintext; the caller is the trusted layer that embeds it in a link.
type IssuedLink struct {
	Token     string
	ExpiresAt time.Time
}

// IssuedCode is the result of issuing a numeric code. The plaintext code is
// delivered out-of-band and never appears here.
type IssuedCode struct {
	ExpiresAt time.Time
}

// Verified carries the identifier whose credential was consumed. The secret
// itself is never echoed back.
type Verified struct {
	Identifier string `json:"identifier"`
}

// Store is the minimal credential persistence contract the service requires.
// DeleteByHash must be a single atomic delete-and-report operation; it is the
// only primitive one-time consumption relies on across concurrent instances.
type Store interface {
	Put(ctx context.Context, c *domain.VerificationCredential) error
	ListByIdentifier(ctx context.Context, identifier string) ([]domain.VerificationCredential, error)
	DeleteByHash(ctx context.Context, identifier, secretHash string) (bool, error)
}

type Service interface {
	IssueLinkToken(ctx context.Context, identifier string) (*IssuedLink, error)
	IssueNumericCode(ctx context.Context, identifier string) (*IssuedCode, error)
	VerifyLinkToken(ctx context.Context, identifier, token string) (*Verified, error)
	VerifyNumericCode(ctx context.Context, identifier, code string) (*Verified, error)
}

// Deps holds the service's collaborators. Now is injectable so TTL-boundary
// behavior can be tested deterministically; it defaults to time.Now.
type Deps struct {
	CredentialRepo Store
	Delivery       delivery.Sender
	TTL            time.Duration
	Now            func() time.Time
}

type service struct {
	repo     Store
	delivery delivery.Sender
	ttl      time.Duration
	now      func() time.Time
}

func NewService(deps Deps) Service {
	s := &service{
		repo:     deps.CredentialRepo,
		delivery: deps.Delivery,
		ttl:      deps.TTL,
		now:      deps.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) IssueLinkToken(ctx context.Context, identifier string) (*IssuedLink, error) {
	plain, err := secret.LinkToken()
	if err != nil {
		return nil, err
	}
	cred, err := s.issue(ctx, identifier, plain)
	if err != nil {
		return nil, err
	}
	return &IssuedLink{Token: plain, ExpiresAt: time.Unix(cred.ExpiresAt, 0).UTC()}, nil
}

func (s *service) IssueNumericCode(ctx context.Context, identifier string) (*IssuedCode, error) {
	plain, err := secret.NumericCode()
	if err != nil {
		return nil, err
	}
	cred, err := s.issue(ctx, identifier, plain)
	if err != nil {
		return nil, err
	}
	if err := s.delivery.Send(ctx, identifier, plain); err != nil {
		// The credential stays in the store; a resend is a fresh issuance,
		// never a retry of this one.
		slog.Warn("sign-in code delivery failed", "credential_id", cred.CredentialID, "err", err)
		return nil, fmt.Errorf("send sign-in code: %w", domain.ErrDelivery)
	}
	return &IssuedCode{ExpiresAt: time.Unix(cred.ExpiresAt, 0).UTC()}, nil
}

// issue validates the identifier, hashes the secret and persists one new
// credential row. Repeated issuance before consumption is permitted; each call
// adds an independently consumable row.
func (s *service) issue(ctx context.Context, identifier, plain string) (*domain.VerificationCredential, error) {
	if err := validate.Identifier(identifier); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}

	secretHash, err := hash.Secret(plain)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cred := &domain.VerificationCredential{
		Identifier:   identifier,
		SecretHash:   secretHash,
		CredentialID: id.New(),
		ExpiresAt:    now.Add(s.ttl).Unix(),
		CreatedAt:    now.Unix(),
	}

	s.pruneExpired(ctx, identifier, now)

	if err := s.repo.Put(ctx, cred); err != nil {
		slog.Error("credential store put failed", "credential_id", cred.CredentialID, "err", err)
		return nil, fmt.Errorf("persist credential: %w", domain.ErrStore)
	}
	slog.Info("issued sign-in credential", "credential_id", cred.CredentialID, "expires_at", cred.ExpiresAt)
	return cred, nil
}

// pruneExpired best-effort deletes already-expired rows for the identifier so
// the verifier's candidate scan stays small. Failures are logged and ignored;
// correctness never depends on pruning.
func (s *service) pruneExpired(ctx context.Context, identifier string, now time.Time) {
	creds, err := s.repo.ListByIdentifier(ctx, identifier)
	if err != nil {
		slog.Warn("expired-credential prune skipped", "err", err)
		return
	}
	for i := range creds {
		if !creds[i].Expired(now) {
			continue
		}
		if _, err := s.repo.DeleteByHash(ctx, identifier, creds[i].SecretHash); err != nil {
			slog.Warn("expired-credential prune failed", "credential_id", creds[i].CredentialID, "err", err)
		}
	}
}

func (s *service) VerifyLinkToken(ctx context.Context, identifier, token string) (*Verified, error) {
	if token == "" {
		return nil, fmt.Errorf("token required: %w", domain.ErrValidation)
	}
	return s.verify(ctx, identifier, token)
}

func (s *service) VerifyNumericCode(ctx context.Context, identifier, code string) (*Verified, error) {
	if err := validate.NumericCode(code); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}
	return s.verify(ctx, identifier, code)
}

// verify consumes a credential exactly once.
//
// The candidate scan is linear because secrets cannot be looked up by hash
// equality (bcrypt salts every hash); the set size is bounded by issuance
// rate and TTL. The delete is attempted unconditionally on the first match:
// a delete that removed nothing means a concurrent verifier won the race, and
// a deleted-but-expired match still counts as failure with the row destroyed.
// Not-found, wrong secret and expired all collapse into ErrInvalidOrExpired
// so the response never reveals which case occurred.
func (s *service) verify(ctx context.Context, identifier, plain string) (*Verified, error) {
	if err := validate.Identifier(identifier); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}

	creds, err := s.repo.ListByIdentifier(ctx, identifier)
	if err != nil {
		slog.Error("credential store query failed", "err", err)
		return nil, fmt.Errorf("list credentials: %w", domain.ErrStore)
	}

	var match *domain.VerificationCredential
	for i := range creds {
		if hash.Matches(plain, creds[i].SecretHash) {
			match = &creds[i]
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no matching credential: %w", domain.ErrInvalidOrExpired)
	}

	removed, err := s.repo.DeleteByHash(ctx, identifier, match.SecretHash)
	if err != nil {
		slog.Error("credential store delete failed", "credential_id", match.CredentialID, "err", err)
		return nil, fmt.Errorf("consume credential: %w", domain.ErrStore)
	}
	if !removed {
		// Lost a race with a concurrent verifier; the other caller consumed it.
		return nil, fmt.Errorf("credential already consumed: %w", domain.ErrInvalidOrExpired)
	}
	if match.Expired(s.now()) {
		slog.Info("expired sign-in credential destroyed", "credential_id", match.CredentialID)
		return nil, fmt.Errorf("credential expired: %w", domain.ErrInvalidOrExpired)
	}

	slog.Info("sign-in credential consumed", "credential_id", match.CredentialID)
	return &Verified{Identifier: identifier}, nil
}
