package core

import "errors"

var (
	ErrChallengeNotFound  = errors.New("no challenge found for identity")
	ErrChallengeExpired   = errors.New("challenge has expired")
	ErrAccountNotFound    = errors.New("account not found")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrSlotsExhausted     = errors.New("no free signing key slot")
	ErrBadRequest         = errors.New("bad request")
	ErrNoTransfer         = errors.New("no valid transfer found")
	ErrReceiptNotReady    = errors.New("receipt not available yet")
	ErrOperationReverted  = errors.New("user operation reverted")

	// ErrPasskeyLoginUnsupported marks the login-time passkey verification
	// path, which today exists only for write authorization.
	ErrPasskeyLoginUnsupported = errors.New("passkey login verification not supported")
)

// Kind buckets errors for transport mapping and retry policy.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
	KindUnauthorized
	KindExhausted
	KindTransient
)

// KindOf classifies err by its sentinel. Anything unrecognized is internal
// so that store and encoding failures never leak detail to callers.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrPasskeyLoginUnsupported),
		errors.Is(err, ErrNoTransfer),
		errors.Is(err, ErrOperationReverted):
		return KindBadRequest
	case errors.Is(err, ErrChallengeNotFound),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrCredentialNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrChallengeExpired),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired):
		return KindUnauthorized
	case errors.Is(err, ErrSlotsExhausted):
		return KindExhausted
	case errors.Is(err, ErrReceiptNotReady):
		return KindTransient
	default:
		return KindInternal
	}
}
