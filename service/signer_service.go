package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/ports"
	"github.com/0xsend/sendauth/userop"
)

// SignerService manages the account's signing-key registry: allocating key
// slots, registering passkey credentials, and authorizing privileged writes
// with slot-prefixed passkey signatures.
type SignerService struct {
	accounts    ports.AccountStore
	credentials ports.CredentialStore
	challenges  ports.ChallengeStore
	chainState  ports.AccountStateReader
	passkey     ports.Verifier
	builder     *userop.Builder
	eventPub    ports.EventPublisher
	logger      *zap.Logger

	now func() time.Time
}

// NewSignerService creates a new signer registry service
func NewSignerService(
	accounts ports.AccountStore,
	credentials ports.CredentialStore,
	challenges ports.ChallengeStore,
	chainState ports.AccountStateReader,
	passkey ports.Verifier,
	builder *userop.Builder,
	eventPub ports.EventPublisher,
	logger *zap.Logger,
) *SignerService {
	return &SignerService{
		accounts:    accounts,
		credentials: credentials,
		challenges:  challenges,
		chainState:  chainState,
		passkey:     passkey,
		builder:     builder,
		eventPub:    eventPub,
		logger:      logger.Named("signer"),
		now:         time.Now,
	}
}

// AddSignerInput is the credential material for a new passkey signer.
type AddSignerInput struct {
	UserID          string
	PublicKey       []byte // COSE-encoded P-256 public key
	RawCredentialID string
	DisplayName     string
}

// AddSigner allocates a free key slot, persists the credential, and returns
// a draft operation adding the key on-chain for the caller to co-sign and
// submit. Exhausted capacity is a hard stop, not a retry.
func (s *SignerService) AddSigner(ctx context.Context, in AddSignerInput) (*core.Credential, *userop.UserOperation, error) {
	if len(in.PublicKey) == 0 || in.RawCredentialID == "" {
		return nil, nil, fmt.Errorf("missing credential material: %w", core.ErrBadRequest)
	}

	account, err := s.accounts.GetByUserID(ctx, in.UserID)
	if err != nil {
		return nil, nil, err
	}

	x, y, err := coseCurvePoint(in.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("malformed public key: %w", core.ErrBadRequest)
	}

	slot, err := s.allocateSlot(ctx, account)
	if err != nil {
		return nil, nil, err
	}

	// Draft before persisting: a failed nonce read must not leave a row
	// occupying the slot with no on-chain key behind it.
	op, err := s.draftOperation(ctx, account, func() (userop.Call, error) {
		return userop.AddSigningKeyCall(account.Address, slot, x, y)
	})
	if err != nil {
		return nil, nil, err
	}

	credential := &core.Credential{
		ID:              uuid.New().String(),
		UserID:          in.UserID,
		AccountAddress:  account.Address,
		KeySlot:         slot,
		PublicKey:       in.PublicKey,
		RawCredentialID: in.RawCredentialID,
		DisplayName:     in.DisplayName,
		CreatedAt:       s.now(),
	}
	if err := s.credentials.Create(ctx, credential); err != nil {
		return nil, nil, fmt.Errorf("failed to store credential: %w", err)
	}

	if err := s.eventPub.PublishSignerAdded(ctx, account.Address, slot); err != nil {
		s.logger.Warn("failed to publish signer-added event", zap.Error(err))
	}

	s.logger.Info("signer registered",
		zap.String("account", account.Address.Hex()),
		zap.Uint8("key_slot", slot))
	return credential, op, nil
}

// allocateSlot computes the first free slot from the on-chain bitmap plus
// locally registered credentials whose on-chain add has not confirmed yet.
func (s *SignerService) allocateSlot(ctx context.Context, account *core.Account) (uint8, error) {
	active, err := s.chainState.ActiveKeySlots(ctx, account.Address)
	if err != nil {
		return 0, fmt.Errorf("failed to read active slots: %w", err)
	}

	pending, err := s.credentials.ListByAccount(ctx, account.Address)
	if err != nil {
		return 0, fmt.Errorf("failed to list credentials: %w", err)
	}
	for _, credential := range pending {
		active = append(active, credential.KeySlot)
	}

	maxSlots := account.MaxSigners
	if maxSlots == 0 {
		maxSlots, err = s.chainState.MaxKeySlots(ctx, account.Address)
		if err != nil {
			return 0, fmt.Errorf("failed to read signer capacity: %w", err)
		}
	}

	return core.FindFreeKeySlot(active, maxSlots)
}

// AuthorizePasskey verifies a slot-prefixed passkey signature over the
// user's current challenge, gating privileged actions such as signer
// removal or tag deletion. The identifier has the form "<account>.<slot>".
func (s *SignerService) AuthorizePasskey(ctx context.Context, identifier string, challengeID string, signature []byte) (*core.Account, *core.Credential, error) {
	account, slot, err := s.parseSlotIdentifier(ctx, identifier)
	if err != nil {
		return nil, nil, err
	}

	credential, err := s.credentials.GetBySlot(ctx, account.Address, slot)
	if err != nil {
		return nil, nil, err
	}

	challenge, err := s.challenges.Get(ctx, credential.UserID)
	if err != nil {
		return nil, nil, err
	}
	if challengeID != "" && challenge.ID != challengeID {
		return nil, nil, fmt.Errorf("challenge superseded: %w", core.ErrChallengeExpired)
	}
	if challenge.Expired(s.now()) {
		return nil, nil, core.ErrChallengeExpired
	}

	if err := s.passkey.Verify(ctx, ports.VerifyInput{
		Challenge:  challenge,
		Account:    account,
		Credential: credential,
		KeySlot:    slot,
		Signature:  signature,
	}); err != nil {
		return nil, nil, err
	}

	return account, credential, nil
}

// AuthorizeRemoval verifies a slot-prefixed passkey signature and returns a
// draft operation removing the signer's key slot on-chain.
func (s *SignerService) AuthorizeRemoval(ctx context.Context, identifier string, challengeID string, signature []byte) (*userop.UserOperation, error) {
	account, credential, err := s.AuthorizePasskey(ctx, identifier, challengeID, signature)
	if err != nil {
		return nil, err
	}

	return s.draftOperation(ctx, account, func() (userop.Call, error) {
		return userop.RemoveSigningKeyCall(account.Address, credential.KeySlot)
	})
}

// ConfirmRemoval drops the credential once its on-chain removal confirmed.
// Credential rows are derived from chain state, never deleted eagerly.
func (s *SignerService) ConfirmRemoval(ctx context.Context, account common.Address, slot uint8) error {
	credential, err := s.credentials.GetBySlot(ctx, account, slot)
	if err != nil {
		return err
	}
	if err := s.credentials.Delete(ctx, credential.ID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	if err := s.eventPub.PublishSignerRemoved(ctx, account, slot); err != nil {
		s.logger.Warn("failed to publish signer-removed event", zap.Error(err))
	}
	return nil
}

func (s *SignerService) parseSlotIdentifier(ctx context.Context, identifier string) (*core.Account, uint8, error) {
	sep := strings.LastIndex(identifier, ".")
	if strings.TrimSpace(identifier) == "" || sep <= 0 || sep == len(identifier)-1 {
		return nil, 0, fmt.Errorf("identifier must be <account>.<slot>: %w", core.ErrBadRequest)
	}

	slot64, err := strconv.ParseUint(identifier[sep+1:], 10, 8)
	if err != nil {
		return nil, 0, fmt.Errorf("malformed key slot: %w", core.ErrBadRequest)
	}

	account, err := s.accounts.GetByName(ctx, identifier[:sep])
	if err != nil {
		return nil, 0, err
	}
	return account, uint8(slot64), nil
}

func (s *SignerService) draftOperation(ctx context.Context, account *core.Account, makeCall func() (userop.Call, error)) (*userop.UserOperation, error) {
	call, err := makeCall()
	if err != nil {
		return nil, err
	}

	nonce, err := s.chainState.Nonce(ctx, account.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}

	op, err := s.builder.Build(account.Address, nonce, []userop.Call{call})
	if err != nil {
		return nil, fmt.Errorf("failed to build operation: %w", err)
	}
	return op, nil
}

// coseCurvePoint extracts the P-256 X and Y coordinates from a COSE key.
func coseCurvePoint(coseKey []byte) ([32]byte, [32]byte, error) {
	var x, y [32]byte

	parsed, err := webauthncose.ParsePublicKey(coseKey)
	if err != nil {
		return x, y, err
	}
	ec2, ok := parsed.(webauthncose.EC2PublicKeyData)
	if !ok {
		return x, y, fmt.Errorf("credential key is not an EC2 key")
	}
	if len(ec2.XCoord) > 32 || len(ec2.YCoord) > 32 {
		return x, y, fmt.Errorf("curve point out of range")
	}

	copy(x[32-len(ec2.XCoord):], ec2.XCoord)
	copy(y[32-len(ec2.YCoord):], ec2.YCoord)
	return x, y, nil
}
