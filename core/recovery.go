package core

import "fmt"

// RecoveryKind names the credential family used to prove control of an
// account. Exactly two kinds exist; everything else is rejected at parse
// time so no third kind can fall through a dispatch.
type RecoveryKind string

const (
	RecoveryKindChainAddress RecoveryKind = "chain_address"
	RecoveryKindPasskey      RecoveryKind = "passkey"
)

// ParseRecoveryKind validates a wire value into a RecoveryKind.
func ParseRecoveryKind(s string) (RecoveryKind, error) {
	switch RecoveryKind(s) {
	case RecoveryKindChainAddress:
		return RecoveryKindChainAddress, nil
	case RecoveryKindPasskey:
		return RecoveryKindPasskey, nil
	case "":
		return "", fmt.Errorf("missing recovery kind: %w", ErrBadRequest)
	default:
		return "", fmt.Errorf("unsupported recovery kind %q: %w", s, ErrBadRequest)
	}
}
