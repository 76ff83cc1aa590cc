package factory

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a record of a committed state change. Events are appended to the
// registry's journal in commit order, after all writes of the operation have
// succeeded, and are never emitted for failed operations.
type Event interface {
	eventName() string
}

// DeployedEvent records a successful deployment.
type DeployedEvent struct {
	Address common.Address
	Salt    []byte
	Value   *big.Int
}

func (DeployedEvent) eventName() string { return "Deployed" }

// OperatorSetEvent records an operator grant or renewal with its new expiry.
type OperatorSetEvent struct {
	Identity common.Address
	Expiry   uint64
}

func (OperatorSetEvent) eventName() string { return "OperatorSet" }

// OperatorRemovedEvent records an explicit operator removal.
type OperatorRemovedEvent struct {
	Identity common.Address
}

func (OperatorRemovedEvent) eventName() string { return "OperatorRemoved" }

// UpgradedEvent records a logic-pointer swap.
type UpgradedEvent struct {
	Logic common.Address
}

func (UpgradedEvent) eventName() string { return "Upgraded" }
