package store

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/ports"
)

// MemoryChallengeStore is an in-memory implementation of the ChallengeStore
// interface. One row per user; Upsert overwrites unconditionally.
type MemoryChallengeStore struct {
	byUser map[string]*core.Challenge
	mu     sync.RWMutex
}

// NewMemoryChallengeStore creates a new in-memory challenge store
func NewMemoryChallengeStore() ports.ChallengeStore {
	return &MemoryChallengeStore{byUser: make(map[string]*core.Challenge)}
}

// Upsert stores the challenge, superseding any prior one for the user
func (s *MemoryChallengeStore) Upsert(ctx context.Context, challenge *core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *challenge
	s.byUser[challenge.UserID] = &copied
	return nil
}

// Get returns the user's current challenge. Expiry is the caller's concern:
// it must be evaluated at verification time.
func (s *MemoryChallengeStore) Get(ctx context.Context, userID string) (*core.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	challenge, ok := s.byUser[userID]
	if !ok {
		return nil, core.ErrChallengeNotFound
	}
	copied := *challenge
	return &copied, nil
}

// MemoryCredentialStore is an in-memory implementation of the
// CredentialStore interface.
type MemoryCredentialStore struct {
	byID map[string]*core.Credential
	mu   sync.RWMutex
}

// NewMemoryCredentialStore creates a new in-memory credential store
func NewMemoryCredentialStore() ports.CredentialStore {
	return &MemoryCredentialStore{byID: make(map[string]*core.Credential)}
}

// Create persists a credential. The key slot must be free on the account
// and the raw credential id unused.
func (s *MemoryCredentialStore) Create(ctx context.Context, credential *core.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.RawCredentialID == credential.RawCredentialID {
			return fmt.Errorf("credential id already registered")
		}
		if existing.AccountAddress == credential.AccountAddress && existing.KeySlot == credential.KeySlot {
			return fmt.Errorf("key slot %d already occupied", credential.KeySlot)
		}
	}

	copied := *credential
	s.byID[credential.ID] = &copied
	return nil
}

func (s *MemoryCredentialStore) GetByRawID(ctx context.Context, rawCredentialID string) (*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, credential := range s.byID {
		if credential.RawCredentialID == rawCredentialID {
			copied := *credential
			return &copied, nil
		}
	}
	return nil, core.ErrCredentialNotFound
}

func (s *MemoryCredentialStore) GetByPublicKey(ctx context.Context, publicKey []byte) (*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := hex.EncodeToString(publicKey)
	for _, credential := range s.byID {
		if hex.EncodeToString(credential.PublicKey) == want {
			copied := *credential
			return &copied, nil
		}
	}
	return nil, core.ErrCredentialNotFound
}

func (s *MemoryCredentialStore) GetBySlot(ctx context.Context, account common.Address, slot uint8) (*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, credential := range s.byID {
		if credential.AccountAddress == account && credential.KeySlot == slot {
			copied := *credential
			return &copied, nil
		}
	}
	return nil, core.ErrCredentialNotFound
}

func (s *MemoryCredentialStore) ListByAccount(ctx context.Context, account common.Address) ([]*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var credentials []*core.Credential
	for _, credential := range s.byID {
		if credential.AccountAddress == account {
			copied := *credential
			credentials = append(credentials, &copied)
		}
	}
	return credentials, nil
}

func (s *MemoryCredentialStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return core.ErrCredentialNotFound
	}
	delete(s.byID, id)
	return nil
}

// MemoryAccountStore is an in-memory implementation of the AccountStore
// interface.
type MemoryAccountStore struct {
	byUserID map[string]*core.Account
	mu       sync.RWMutex
}

// NewMemoryAccountStore creates a new in-memory account store
func NewMemoryAccountStore() ports.AccountStore {
	return &MemoryAccountStore{byUserID: make(map[string]*core.Account)}
}

func (s *MemoryAccountStore) Create(ctx context.Context, account *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *account
	s.byUserID[account.UserID] = &copied
	return nil
}

func (s *MemoryAccountStore) GetByUserID(ctx context.Context, userID string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.byUserID[userID]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *MemoryAccountStore) GetByAddress(ctx context.Context, address common.Address) (*core.Account, error) {
	return s.find(func(a *core.Account) bool { return a.Address == address })
}

func (s *MemoryAccountStore) GetByChainAddress(ctx context.Context, chainAddress common.Address) (*core.Account, error) {
	return s.find(func(a *core.Account) bool { return a.ChainAddress == chainAddress })
}

func (s *MemoryAccountStore) GetByName(ctx context.Context, name string) (*core.Account, error) {
	return s.find(func(a *core.Account) bool { return a.Name == name })
}

func (s *MemoryAccountStore) find(match func(*core.Account) bool) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.byUserID {
		if match(account) {
			copied := *account
			return &copied, nil
		}
	}
	return nil, core.ErrAccountNotFound
}
