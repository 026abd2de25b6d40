package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/0xsend/sendauth/core"
	"github.com/0xsend/sendauth/ports"
)

const keyPrefix = "sendauth:"

// RedisChallengeStore is a Redis implementation of the ChallengeStore
// interface. Rows are keyed by user id so an upsert atomically supersedes
// the prior challenge.
type RedisChallengeStore struct {
	client *redis.Client
	prefix string
}

// NewRedisChallengeStore creates a new Redis challenge store
func NewRedisChallengeStore(client *redis.Client) ports.ChallengeStore {
	return &RedisChallengeStore{client: client, prefix: keyPrefix + "challenge:"}
}

func (s *RedisChallengeStore) Upsert(ctx context.Context, challenge *core.Challenge) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	// Kept for twice the validity window so a just-expired challenge still
	// reads back and fails with Expired rather than NotFound.
	ttl := 2 * challenge.ExpiresAt.Sub(challenge.CreatedAt)
	if err := s.client.Set(ctx, s.prefix+challenge.UserID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) Get(ctx context.Context, userID string) (*core.Challenge, error) {
	payload, err := s.client.Get(ctx, s.prefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	var challenge core.Challenge
	if err := json.Unmarshal(payload, &challenge); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	return &challenge, nil
}

// RedisCredentialStore is a Redis implementation of the CredentialStore
// interface. Secondary lookups go through index keys pointing at the
// primary record.
type RedisCredentialStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCredentialStore creates a new Redis credential store
func NewRedisCredentialStore(client *redis.Client) ports.CredentialStore {
	return &RedisCredentialStore{client: client, prefix: keyPrefix + "credential:"}
}

func (s *RedisCredentialStore) recordKey(id string) string { return s.prefix + "id:" + id }

func (s *RedisCredentialStore) indexKeys(c *core.Credential) []string {
	return []string{
		s.prefix + "raw:" + c.RawCredentialID,
		s.prefix + "pub:" + hex.EncodeToString(c.PublicKey),
		fmt.Sprintf("%sslot:%s:%d", s.prefix, strings.ToLower(c.AccountAddress.Hex()), c.KeySlot),
	}
}

func (s *RedisCredentialStore) accountSetKey(account common.Address) string {
	return s.prefix + "account:" + strings.ToLower(account.Hex())
}

func (s *RedisCredentialStore) Create(ctx context.Context, credential *core.Credential) error {
	payload, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	for _, key := range s.indexKeys(credential) {
		ok, err := s.client.SetNX(ctx, key, credential.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to index credential: %w", err)
		}
		if !ok {
			return fmt.Errorf("credential index %s already taken", key)
		}
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(credential.ID), payload, 0)
	pipe.SAdd(ctx, s.accountSetKey(credential.AccountAddress), credential.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (s *RedisCredentialStore) getByIndex(ctx context.Context, indexKey string) (*core.Credential, error) {
	id, err := s.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential index: %w", err)
	}
	return s.getByID(ctx, id)
}

func (s *RedisCredentialStore) getByID(ctx context.Context, id string) (*core.Credential, error) {
	payload, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	var credential core.Credential
	if err := json.Unmarshal(payload, &credential); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &credential, nil
}

func (s *RedisCredentialStore) GetByRawID(ctx context.Context, rawCredentialID string) (*core.Credential, error) {
	return s.getByIndex(ctx, s.prefix+"raw:"+rawCredentialID)
}

func (s *RedisCredentialStore) GetByPublicKey(ctx context.Context, publicKey []byte) (*core.Credential, error) {
	return s.getByIndex(ctx, s.prefix+"pub:"+hex.EncodeToString(publicKey))
}

func (s *RedisCredentialStore) GetBySlot(ctx context.Context, account common.Address, slot uint8) (*core.Credential, error) {
	return s.getByIndex(ctx, fmt.Sprintf("%sslot:%s:%d", s.prefix, strings.ToLower(account.Hex()), slot))
}

func (s *RedisCredentialStore) ListByAccount(ctx context.Context, account common.Address) ([]*core.Credential, error) {
	ids, err := s.client.SMembers(ctx, s.accountSetKey(account)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	credentials := make([]*core.Credential, 0, len(ids))
	for _, id := range ids {
		credential, err := s.getByID(ctx, id)
		if errors.Is(err, core.ErrCredentialNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}

func (s *RedisCredentialStore) Delete(ctx context.Context, id string) error {
	credential, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, key := range s.indexKeys(credential) {
		pipe.Del(ctx, key)
	}
	pipe.Del(ctx, s.recordKey(id))
	pipe.SRem(ctx, s.accountSetKey(credential.AccountAddress), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// RedisAccountStore is a Redis implementation of the AccountStore interface.
type RedisAccountStore struct {
	client *redis.Client
	prefix string
}

// NewRedisAccountStore creates a new Redis account store
func NewRedisAccountStore(client *redis.Client) ports.AccountStore {
	return &RedisAccountStore{client: client, prefix: keyPrefix + "account:"}
}

func (s *RedisAccountStore) Create(ctx context.Context, account *core.Account) error {
	payload, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.prefix+"user:"+account.UserID, payload, 0)
	pipe.Set(ctx, s.prefix+"addr:"+strings.ToLower(account.Address.Hex()), account.UserID, 0)
	pipe.Set(ctx, s.prefix+"chain:"+strings.ToLower(account.ChainAddress.Hex()), account.UserID, 0)
	pipe.Set(ctx, s.prefix+"name:"+account.Name, account.UserID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store account: %w", err)
	}
	return nil
}

func (s *RedisAccountStore) GetByUserID(ctx context.Context, userID string) (*core.Account, error) {
	payload, err := s.client.Get(ctx, s.prefix+"user:"+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	var account core.Account
	if err := json.Unmarshal(payload, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &account, nil
}

func (s *RedisAccountStore) getByIndex(ctx context.Context, indexKey string) (*core.Account, error) {
	userID, err := s.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account index: %w", err)
	}
	return s.GetByUserID(ctx, userID)
}

func (s *RedisAccountStore) GetByAddress(ctx context.Context, address common.Address) (*core.Account, error) {
	return s.getByIndex(ctx, s.prefix+"addr:"+strings.ToLower(address.Hex()))
}

func (s *RedisAccountStore) GetByChainAddress(ctx context.Context, chainAddress common.Address) (*core.Account, error) {
	return s.getByIndex(ctx, s.prefix+"chain:"+strings.ToLower(chainAddress.Hex()))
}

func (s *RedisAccountStore) GetByName(ctx context.Context, name string) (*core.Account, error) {
	return s.getByIndex(ctx, s.prefix+"name:"+name)
}
