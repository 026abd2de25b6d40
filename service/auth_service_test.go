package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xsend/sendauth/adapters/store"
	"github.com/0xsend/sendauth/adapters/tokenizer"
	"github.com/0xsend/sendauth/adapters/verifier"
	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/internal/eth"
	"github.com/0xsend/sendauth/ports"
)

func mustP256Key(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

type authFixture struct {
	service  *AuthService
	events   *fakeEventPublisher
	key      *ecdsa.PrivateKey
	account  *core.Account
	identStr string
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	chainAddress := crypto.PubkeyToAddress(key.PublicKey)

	accounts := store.NewMemoryAccountStore()
	account := &core.Account{
		UserID:       "user-1",
		Name:         "alice",
		Address:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		ChainAddress: chainAddress,
		MaxSigners:   4,
	}
	require.NoError(t, accounts.Create(context.Background(), account))

	events := &fakeEventPublisher{}
	svc := NewAuthService(
		accounts,
		store.NewMemoryCredentialStore(),
		store.NewMemoryChallengeStore(),
		tokenizer.NewJWTTokenizer(mustP256Key(t)),
		events,
		verifier.NewChainAddressVerifier(),
		verifier.NewPasskeyLoginVerifier(),
		0, 0,
		zap.NewNop(),
	)

	return &authFixture{
		service:  svc,
		events:   events,
		key:      key,
		account:  account,
		identStr: chainAddress.Hex(),
	}
}

func (f *authFixture) signChallenge(t *testing.T, challenge *core.Challenge) []byte {
	t.Helper()
	sig, err := crypto.Sign(eth.PersonalSignHash(challenge.Bytes).Bytes(), f.key)
	require.NoError(t, err)
	return sig
}

func TestAuthService_LoginFlow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	challenge, err := f.service.IssueChallenge(ctx, "chain_address", f.identStr)
	require.NoError(t, err)
	assert.Len(t, challenge.Bytes, 32)
	assert.Equal(t, "user-1", challenge.UserID)

	token, session, err := f.service.VerifyChallenge(ctx, "chain_address", f.identStr, f.signChallenge(t, challenge))
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "user-1", session.UserID)

	validated, err := f.service.ValidateSessionToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, validated.ID)

	assert.Equal(t, 1, f.events.logins)
}

func TestAuthService_ReplayRejected(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	challenge, err := f.service.IssueChallenge(ctx, "chain_address", f.identStr)
	require.NoError(t, err)
	sig := f.signChallenge(t, challenge)

	_, _, err = f.service.VerifyChallenge(ctx, "chain_address", f.identStr, sig)
	require.NoError(t, err)

	// The consumed challenge was superseded; the same signature no longer
	// matches the stored challenge bytes.
	_, _, err = f.service.VerifyChallenge(ctx, "chain_address", f.identStr, sig)
	require.Error(t, err)
	assert.Equal(t, core.KindUnauthorized, core.KindOf(err))
}

func TestAuthService_ChallengeSuperseded(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	first, err := f.service.IssueChallenge(ctx, "chain_address", f.identStr)
	require.NoError(t, err)
	_, err = f.service.IssueChallenge(ctx, "chain_address", f.identStr)
	require.NoError(t, err)

	_, _, err = f.service.VerifyChallenge(ctx, "chain_address", f.identStr, f.signChallenge(t, first))
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestAuthService_ExpiryBoundary(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	issued := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time { return issued }

	challenge, err := f.service.IssueChallenge(ctx, "chain_address", f.identStr)
	require.NoError(t, err)
	sig := f.signChallenge(t, challenge)

	// One nanosecond before expiry still verifies.
	f.service.now = func() time.Time { return challenge.ExpiresAt.Add(-time.Nanosecond) }
	_, _, err = f.service.VerifyChallenge(ctx, "chain_address", f.identStr, sig)
	require.NoError(t, err)

	// Reissue and check the expiry instant itself is rejected.
	f.service.now = func() time.Time { return issued }
	challenge, err = f.service.IssueChallenge(ctx, "chain_address", f.identStr)
	require.NoError(t, err)
	sig = f.signChallenge(t, challenge)

	f.service.now = func() time.Time { return challenge.ExpiresAt }
	_, _, err = f.service.VerifyChallenge(ctx, "chain_address", f.identStr, sig)
	assert.ErrorIs(t, err, core.ErrChallengeExpired)
}

func TestAuthService_WrongSigner(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	challenge, err := f.service.IssueChallenge(ctx, "chain_address", f.identStr)
	require.NoError(t, err)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(eth.PersonalSignHash(challenge.Bytes).Bytes(), other)
	require.NoError(t, err)

	_, _, err = f.service.VerifyChallenge(ctx, "chain_address", f.identStr, sig)
	require.ErrorIs(t, err, core.ErrInvalidSignature)
	assert.Equal(t, core.KindUnauthorized, core.KindOf(err))
	assert.Zero(t, f.events.logins)
}

func TestAuthService_BlankIdentifier(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.service.IssueChallenge(context.Background(), "chain_address", "   ")
	assert.ErrorIs(t, err, core.ErrBadRequest)
}

func TestAuthService_UnknownRecoveryKind(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.service.IssueChallenge(context.Background(), "carrier_pigeon", f.identStr)
	require.ErrorIs(t, err, core.ErrBadRequest)
	assert.Contains(t, err.Error(), "carrier_pigeon")
}

func TestAuthService_MalformedChainAddress(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.service.IssueChallenge(context.Background(), "chain_address", "not-an-address")
	assert.ErrorIs(t, err, core.ErrBadRequest)
}

func TestAuthService_UnknownAccount(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.service.IssueChallenge(context.Background(), "chain_address",
		"0x9999999999999999999999999999999999999999")
	assert.ErrorIs(t, err, core.ErrAccountNotFound)
}

func TestAuthService_PasskeyLoginUnsupported(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	// Register a passkey credential so the identifier resolves.
	credential := &core.Credential{
		ID:              "cred-1",
		UserID:          "user-1",
		AccountAddress:  f.account.Address,
		KeySlot:         0,
		PublicKey:       []byte{0xa5, 0x01, 0x02},
		RawCredentialID: "raw-1",
	}
	require.NoError(t, f.service.credentials.Create(ctx, credential))

	identifier := "0xa50102"
	_, err := f.service.IssueChallenge(ctx, "passkey", identifier)
	require.NoError(t, err)

	_, _, err = f.service.VerifyChallenge(ctx, "passkey", identifier, []byte{0x00, 0x01})
	assert.ErrorIs(t, err, core.ErrPasskeyLoginUnsupported)
}

func TestAuthService_VerifyWithoutChallenge(t *testing.T) {
	f := newAuthFixture(t)

	_, _, err := f.service.VerifyChallenge(context.Background(), "chain_address", f.identStr, make([]byte, 65))
	assert.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestAuthService_ExpiredSessionToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	challenge, err := f.service.IssueChallenge(ctx, "chain_address", f.identStr)
	require.NoError(t, err)
	token, _, err := f.service.VerifyChallenge(ctx, "chain_address", f.identStr, f.signChallenge(t, challenge))
	require.NoError(t, err)

	f.service.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err = f.service.ValidateSessionToken(ctx, token)
	assert.Error(t, err)
}

func TestAuthService_ConfiguredTTLs(t *testing.T) {
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	chainAddress := crypto.PubkeyToAddress(key.PublicKey)

	accounts := store.NewMemoryAccountStore()
	require.NoError(t, accounts.Create(ctx, &core.Account{
		UserID:       "user-1",
		Name:         "alice",
		Address:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		ChainAddress: chainAddress,
	}))

	svc := NewAuthService(
		accounts,
		store.NewMemoryCredentialStore(),
		store.NewMemoryChallengeStore(),
		tokenizer.NewJWTTokenizer(mustP256Key(t)),
		&fakeEventPublisher{},
		verifier.NewChainAddressVerifier(),
		verifier.NewPasskeyLoginVerifier(),
		30*time.Second, time.Hour,
		zap.NewNop(),
	)

	challenge, err := svc.IssueChallenge(ctx, "chain_address", chainAddress.Hex())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, challenge.ExpiresAt.Sub(challenge.CreatedAt))

	sig, err := crypto.Sign(eth.PersonalSignHash(challenge.Bytes).Bytes(), key)
	require.NoError(t, err)
	_, session, err := svc.VerifyChallenge(ctx, "chain_address", chainAddress.Hex(), sig)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, session.ExpiresAt.Sub(session.IssuedAt))
}

// blockingAccountStore parks chain-address lookups until release closes or
// the caller's context is cancelled.
type blockingAccountStore struct {
	ports.AccountStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingAccountStore) GetByChainAddress(ctx context.Context, address common.Address) (*core.Account, error) {
	s.entered <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.AccountStore.GetByChainAddress(ctx, address)
}

func newBlockingAuthService(t *testing.T, accounts ports.AccountStore) *AuthService {
	t.Helper()
	return NewAuthService(
		accounts,
		store.NewMemoryCredentialStore(),
		store.NewMemoryChallengeStore(),
		tokenizer.NewJWTTokenizer(mustP256Key(t)),
		&fakeEventPublisher{},
		verifier.NewChainAddressVerifier(),
		verifier.NewPasskeyLoginVerifier(),
		0, 0,
		zap.NewNop(),
	)
}

type resolveResult struct {
	identity *Identity
	err      error
}

func TestAuthService_ResolveConcurrentUsers(t *testing.T) {
	ctx := context.Background()

	inner := store.NewMemoryAccountStore()
	alice := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	require.NoError(t, inner.Create(ctx, &core.Account{
		UserID:       "user-1",
		Name:         "alice",
		Address:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		ChainAddress: alice,
	}))
	require.NoError(t, inner.Create(ctx, &core.Account{
		UserID:       "user-2",
		Name:         "bob",
		Address:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		ChainAddress: bob,
	}))

	accounts := &blockingAccountStore{
		AccountStore: inner,
		entered:      make(chan struct{}, 2),
		release:      make(chan struct{}),
	}
	svc := newBlockingAuthService(t, accounts)

	results := make(chan resolveResult, 2)
	go func() {
		identity, err := svc.Resolve(ctx, core.RecoveryKindChainAddress, alice.Hex())
		results <- resolveResult{identity, err}
	}()
	<-accounts.entered

	// The second user resolves while the first is still in flight.
	go func() {
		identity, err := svc.Resolve(ctx, core.RecoveryKindChainAddress, bob.Hex())
		results <- resolveResult{identity, err}
	}()
	<-accounts.entered

	close(accounts.release)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		seen[r.identity.Account.UserID] = true
	}
	assert.True(t, seen["user-1"])
	assert.True(t, seen["user-2"])
}

func TestAuthService_ResolveSameIdentifierSupersedes(t *testing.T) {
	ctx := context.Background()

	inner := store.NewMemoryAccountStore()
	alice := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, inner.Create(ctx, &core.Account{
		UserID:       "user-1",
		Name:         "alice",
		Address:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		ChainAddress: alice,
	}))

	accounts := &blockingAccountStore{
		AccountStore: inner,
		entered:      make(chan struct{}, 2),
		release:      make(chan struct{}),
	}
	svc := newBlockingAuthService(t, accounts)

	results := make(chan resolveResult, 2)
	go func() {
		identity, err := svc.Resolve(ctx, core.RecoveryKindChainAddress, alice.Hex())
		results <- resolveResult{identity, err}
	}()
	<-accounts.entered

	go func() {
		identity, err := svc.Resolve(ctx, core.RecoveryKindChainAddress, alice.Hex())
		results <- resolveResult{identity, err}
	}()
	<-accounts.entered

	close(accounts.release)

	var cancelled, resolved int
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			assert.ErrorIs(t, r.err, context.Canceled)
			cancelled++
			continue
		}
		assert.Equal(t, "user-1", r.identity.Account.UserID)
		resolved++
	}
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, 1, resolved)
}
