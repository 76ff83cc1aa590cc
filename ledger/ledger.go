// Package ledger defines the boundary to the execution environment that
// actually creates objects at addresses. The registry core never talks to a
// chain directly: it computes what the environment will do and invokes these
// primitives, so the whole core can be exercised against the in-memory
// implementation shipped alongside.
package ledger

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrAddressOccupied is returned by the creation primitives when an
	// object already exists at the derived address. This is what makes a
	// second deployment under a used salt fail instead of silently
	// overwriting.
	ErrAddressOccupied = errors.New("address already occupied")

	// ErrInsufficientBalance is returned when a creation or transfer asks
	// for more value than the source account holds.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Ledger is the execution environment's primitive surface. Both creation
// primitives derive the target address themselves (the environment is the
// source of truth; callers predict and post-verify) and fail without side
// effects when the address is occupied or the creator cannot fund the value.
type Ledger interface {
	// CreateSalted creates an object at
	// keccak256(0xff ++ creator ++ saltHash ++ keccak256(initCode))[12:].
	CreateSalted(creator common.Address, saltHash common.Hash, initCode []byte, value *big.Int) (common.Address, error)

	// CreateSequenced creates an object at keccak256(rlp([creator, nonce]))[12:]
	// using the creator's current nonce, then increments the nonce. Fresh
	// accounts start at nonce 1.
	CreateSequenced(creator common.Address, initCode []byte, value *big.Int) (common.Address, error)

	// Occupied reports whether an object (code) exists at addr.
	Occupied(addr common.Address) bool

	// CodeAt returns the code stored at addr, nil when absent.
	CodeAt(addr common.Address) []byte

	// StorageAt reads the value stored for addr under slot, nil when unset.
	StorageAt(addr common.Address, slot common.Hash) []byte

	// SetStorage writes the value for addr under slot.
	SetStorage(addr common.Address, slot common.Hash, value []byte)

	// BalanceAt returns the value held by addr.
	BalanceAt(addr common.Address) *big.Int

	// Transfer moves value between accounts.
	Transfer(from, to common.Address, value *big.Int) error

	// Now returns the environment's current time as unix seconds. Operator
	// expiries are compared against this clock.
	Now() uint64
}

// Snapshotter is implemented by environments that can roll back partially
// applied multi-step operations, mirroring the all-or-nothing transactional
// model of a real chain.
type Snapshotter interface {
	Snapshot() int
	RevertToSnapshot(id int)
}
