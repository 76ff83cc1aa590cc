package factory

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/baofinance/bao-factory/ledger"
)

// Persistent layout. Both slots are hash-derived constants independent of the
// active logic identity, so a logic swap can never reinterpret old bytes
// under a new layout.
var (
	stateSlot = crypto.Keccak256Hash([]byte("bao.factory.registry.state.v1"))
	logicSlot = crypto.Keccak256Hash([]byte("bao.factory.registry.logic.v1"))
)

// Operator is one capability record: an identity allowed to deploy until
// Expiry (exclusive). Records persist past expiry until removed explicitly;
// expiry is a read-time predicate, not a deletion trigger.
type Operator struct {
	Identity common.Address
	Expiry   uint64
}

// state is everything the registry persists behind its stable identity:
// the immutable owner and the operator set. The logic pointer lives in its
// own slot so that upgrades touch nothing else.
type state struct {
	Owner     common.Address
	Operators []Operator
}

func loadState(l ledger.Ledger, id common.Address) (*state, error) {
	raw := l.StorageAt(id, stateSlot)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRegistry, id)
	}
	st := new(state)
	if err := rlp.DecodeBytes(raw, st); err != nil {
		return nil, fmt.Errorf("decode registry state at %s: %w", id, err)
	}
	return st, nil
}

func storeState(l ledger.Ledger, id common.Address, st *state) error {
	raw, err := rlp.EncodeToBytes(st)
	if err != nil {
		return fmt.Errorf("encode registry state: %w", err)
	}
	l.SetStorage(id, stateSlot, raw)
	return nil
}

func loadLogicPointer(l ledger.Ledger, id common.Address) common.Address {
	return common.BytesToAddress(l.StorageAt(id, logicSlot))
}

func storeLogicPointer(l ledger.Ledger, id common.Address, logic common.Address) {
	l.SetStorage(id, logicSlot, logic.Bytes())
}
