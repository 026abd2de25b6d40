package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/internal/abort"
	"github.com/0xsend/sendauth/ports"
)

// Identity is a resolved recovery identifier: the account it belongs to
// and, for passkey identifiers, the credential that matched.
type Identity struct {
	Account    *core.Account
	Credential *core.Credential
}

// AuthService handles challenge issuance, signature verification, and
// session minting.
type AuthService struct {
	accounts    ports.AccountStore
	credentials ports.CredentialStore
	challenges  ports.ChallengeStore
	tokenizer   ports.Tokenizer
	eventPub    ports.EventPublisher
	verifiers   map[core.RecoveryKind]ports.Verifier
	logger      *zap.Logger

	// lookups supersedes an in-flight resolution when a new one starts
	// for the same identifier. Other identifiers are unaffected.
	lookups abort.Keyed

	challengeTTL time.Duration
	sessionTTL   time.Duration
	now          func() time.Time
}

const (
	defaultChallengeTTL = 5 * time.Minute
	defaultSessionTTL   = 24 * time.Hour
)

// NewAuthService creates a new authentication service. Zero TTLs fall back
// to the defaults.
func NewAuthService(
	accounts ports.AccountStore,
	credentials ports.CredentialStore,
	challenges ports.ChallengeStore,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	chainVerifier ports.Verifier,
	passkeyLoginVerifier ports.Verifier,
	challengeTTL time.Duration,
	sessionTTL time.Duration,
	logger *zap.Logger,
) *AuthService {
	if challengeTTL <= 0 {
		challengeTTL = defaultChallengeTTL
	}
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &AuthService{
		accounts:    accounts,
		credentials: credentials,
		challenges:  challenges,
		tokenizer:   tokenizer,
		eventPub:    eventPub,
		verifiers: map[core.RecoveryKind]ports.Verifier{
			core.RecoveryKindChainAddress: chainVerifier,
			core.RecoveryKindPasskey:      passkeyLoginVerifier,
		},
		logger:       logger.Named("auth"),
		challengeTTL: challengeTTL,
		sessionTTL:   sessionTTL,
		now:          time.Now,
	}
}

// Resolve maps a recovery identifier to the account it belongs to. Exactly
// one resolution path runs per request; blank input fails before any store
// access.
func (s *AuthService) Resolve(ctx context.Context, kind core.RecoveryKind, identifier string) (*Identity, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, fmt.Errorf("missing identifier: %w", core.ErrBadRequest)
	}

	ctx, cancel := s.lookups.Next(lookupKey(kind, identifier), ctx)
	defer cancel()

	switch kind {
	case core.RecoveryKindChainAddress:
		if !common.IsHexAddress(identifier) {
			return nil, fmt.Errorf("malformed chain address: %w", core.ErrBadRequest)
		}
		account, err := s.accounts.GetByChainAddress(ctx, common.HexToAddress(identifier))
		if err != nil {
			return nil, err
		}
		return &Identity{Account: account}, nil

	case core.RecoveryKindPasskey:
		publicKey, err := hexutil.Decode(identifier)
		if err != nil {
			return nil, fmt.Errorf("malformed public key: %w", core.ErrBadRequest)
		}
		credential, err := s.credentials.GetByPublicKey(ctx, publicKey)
		if err != nil {
			return nil, err
		}
		account, err := s.accounts.GetByUserID(ctx, credential.UserID)
		if err != nil {
			return nil, err
		}
		return &Identity{Account: account, Credential: credential}, nil

	default:
		return nil, fmt.Errorf("unsupported recovery kind %q: %w", kind, core.ErrBadRequest)
	}
}

// lookupKey scopes supersession to a single identifier. Hex identifiers
// fold case so checksummed and lowercase spellings share a slot.
func lookupKey(kind core.RecoveryKind, identifier string) string {
	return string(kind) + ":" + strings.ToLower(identifier)
}

// IssueChallenge generates a new authentication challenge for the identity
// behind the identifier, superseding any prior one.
func (s *AuthService) IssueChallenge(ctx context.Context, kindStr, identifier string) (*core.Challenge, error) {
	kind, err := core.ParseRecoveryKind(kindStr)
	if err != nil {
		return nil, err
	}

	identity, err := s.Resolve(ctx, kind, identifier)
	if err != nil {
		return nil, err
	}

	challenge, err := s.newChallenge(identity.Account.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.challenges.Upsert(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	s.logger.Debug("challenge issued",
		zap.String("user_id", challenge.UserID),
		zap.Time("expires_at", challenge.ExpiresAt))
	return challenge, nil
}

func (s *AuthService) newChallenge(userID string) (*core.Challenge, error) {
	challengeBytes := make([]byte, 32)
	if _, err := rand.Read(challengeBytes); err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}

	now := s.now()
	return &core.Challenge{
		ID:        uuid.New().String(),
		UserID:    userID,
		Bytes:     challengeBytes,
		CreatedAt: now,
		ExpiresAt: now.Add(s.challengeTTL),
	}, nil
}

// VerifyChallenge checks a signed challenge and mints a session. The expiry
// check runs at verification time; when verification and expiry race, the
// expiry check wins.
func (s *AuthService) VerifyChallenge(ctx context.Context, kindStr, identifier string, signature []byte) (string, *core.Session, error) {
	kind, err := core.ParseRecoveryKind(kindStr)
	if err != nil {
		return "", nil, err
	}
	if len(signature) == 0 {
		return "", nil, fmt.Errorf("missing signature: %w", core.ErrBadRequest)
	}

	identity, err := s.Resolve(ctx, kind, identifier)
	if err != nil {
		return "", nil, err
	}

	challenge, err := s.challenges.Get(ctx, identity.Account.UserID)
	if err != nil {
		return "", nil, err
	}
	if challenge.Expired(s.now()) {
		return "", nil, core.ErrChallengeExpired
	}

	verifier, ok := s.verifiers[kind]
	if !ok {
		return "", nil, fmt.Errorf("unsupported recovery kind %q: %w", kind, core.ErrBadRequest)
	}
	if err := verifier.Verify(ctx, ports.VerifyInput{
		Challenge:  challenge,
		Account:    identity.Account,
		Credential: identity.Credential,
		Signature:  signature,
	}); err != nil {
		return "", nil, err
	}

	// Supersede the consumed challenge so the same signature cannot be
	// replayed within the validity window.
	rotated, err := s.newChallenge(identity.Account.UserID)
	if err != nil {
		return "", nil, err
	}
	if err := s.challenges.Upsert(ctx, rotated); err != nil {
		return "", nil, fmt.Errorf("failed to supersede challenge: %w", err)
	}

	now := s.now()
	session := &core.Session{
		ID:        uuid.New().String(),
		UserID:    identity.Account.UserID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	token, err := s.tokenizer.SessionToToken(session)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session token: %w", err)
	}

	if err := s.eventPub.PublishLogin(ctx, session.UserID, session.ID); err != nil {
		// The session is already minted; a missed notification is not worth
		// failing the login.
		s.logger.Warn("failed to publish login event", zap.Error(err))
	}

	return token, session, nil
}

// ValidateSessionToken parses and validates an access token.
func (s *AuthService) ValidateSessionToken(ctx context.Context, token string) (*core.Session, error) {
	session, err := s.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, err
	}
	if s.now().After(session.ExpiresAt) {
		return nil, core.ErrTokenExpired
	}
	return session, nil
}

// AccountForUser fetches the account behind an authenticated session.
func (s *AuthService) AccountForUser(ctx context.Context, userID string) (*core.Account, error) {
	return s.accounts.GetByUserID(ctx, userID)
}
