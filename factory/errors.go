package factory

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnauthorized is the single denial signal of the authorization gate.
	// It deliberately does not say why the caller was refused.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidDelay is returned when an operator grant exceeds MaxOperatorDelay.
	ErrInvalidDelay = errors.New("operator delay exceeds maximum")

	// ErrInvalidAddress is returned for zero target identities.
	ErrInvalidAddress = errors.New("zero address")

	// ErrUpgradeRejected is returned when an upgrade target fails the
	// upgradeable-logic capability probe.
	ErrUpgradeRejected = errors.New("upgrade target rejected")

	// ErrOutOfRange is returned by positional operator enumeration past the
	// current count.
	ErrOutOfRange = errors.New("operator index out of range")

	// ErrNotSupported is returned by logic versions that do not implement the
	// requested operation, notably the bootstrap logic.
	ErrNotSupported = errors.New("operation not supported by current logic")

	// ErrNoRegistry is returned by Attach when the target account carries no
	// registry state.
	ErrNoRegistry = errors.New("no registry state at address")
)

// ValueMismatchError reports a disagreement between the value a caller
// declared for a deployment and the value actually attached to the call.
type ValueMismatchError struct {
	Expected *big.Int
	Received *big.Int
}

func (e *ValueMismatchError) Error() string {
	return fmt.Sprintf("declared value %v does not match received value %v", e.Expected, e.Received)
}

// InternalConsistencyError reports a post-creation address that differs from
// the prediction. With a correct derivation this is unreachable; it is a
// defect class, not a recoverable deployment failure.
type InternalConsistencyError struct {
	Predicted common.Address
	Actual    common.Address
}

func (e *InternalConsistencyError) Error() string {
	return fmt.Sprintf("created object at %s, predicted %s", e.Actual, e.Predicted)
}
