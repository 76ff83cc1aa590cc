package factory

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/baofinance/bao-factory/address"
	"github.com/baofinance/bao-factory/ledger"
)

// Logic is the behavior handle behind the registry's stable identity. The
// registry dispatches gated operations through the handle registered for the
// currently persisted logic identity; swapping the pointer swaps behavior
// while the identity, operator set and balances stay put.
//
// UpgradeSlot is the capability probe: a handle is only accepted as an
// upgrade target if it reports the registry's own logic slot, which proves it
// was built against this layout.
type Logic interface {
	Version() int
	UpgradeSlot() common.Hash

	SetOperator(r *Registry, caller, identity common.Address, delay uint64) error
	Deploy(r *Registry, caller common.Address, declared, attached *big.Int, payload, salt []byte) (common.Address, error)
}

// BootstrapLogic returns the handle for the placeholder logic a registry is
// born with. It refuses everything except being upgraded away from.
func BootstrapLogic() Logic { return bootstrapLogic{} }

// FunctionalLogic returns the handle implementing the full registry behavior.
func FunctionalLogic() Logic { return functionalLogic{} }

type bootstrapLogic struct{}

func (bootstrapLogic) Version() int             { return BootstrapVersion }
func (bootstrapLogic) UpgradeSlot() common.Hash { return logicSlot }

func (bootstrapLogic) SetOperator(*Registry, common.Address, common.Address, uint64) error {
	return fmt.Errorf("setOperator: %w", ErrNotSupported)
}

func (bootstrapLogic) Deploy(*Registry, common.Address, *big.Int, *big.Int, []byte, []byte) (common.Address, error) {
	return common.Address{}, fmt.Errorf("deploy: %w", ErrNotSupported)
}

type functionalLogic struct{}

func (functionalLogic) Version() int             { return Version }
func (functionalLogic) UpgradeSlot() common.Hash { return logicSlot }

func (functionalLogic) SetOperator(r *Registry, caller, identity common.Address, delay uint64) error {
	st, err := r.loadState()
	if err != nil {
		return err
	}
	if err := st.authorize(caller, OwnerOnly, r.led.Now()); err != nil {
		return err
	}
	if identity == (common.Address{}) {
		return fmt.Errorf("setOperator: %w", ErrInvalidAddress)
	}

	if delay == 0 {
		if !st.removeOperator(identity) {
			// Removing an absent operator is a silent no-op: nothing is
			// written and no event is emitted.
			return nil
		}
		if err := r.storeState(st); err != nil {
			return err
		}
		r.notify(OperatorRemovedEvent{Identity: identity})
		return nil
	}

	if delay > MaxOperatorDelay {
		return fmt.Errorf("setOperator: delay %d: %w", delay, ErrInvalidDelay)
	}

	expiry := r.led.Now() + delay
	st.upsertOperator(identity, expiry)
	// Unchanged expiries are written and notified like any other update;
	// auditability beats saving the odd redundant write.
	if err := r.storeState(st); err != nil {
		return err
	}
	r.notify(OperatorSetEvent{Identity: identity, Expiry: expiry})
	return nil
}

func (functionalLogic) Deploy(r *Registry, caller common.Address, declared, attached *big.Int, payload, salt []byte) (common.Address, error) {
	st, err := r.loadState()
	if err != nil {
		return common.Address{}, err
	}
	if err := st.authorize(caller, OwnerOrOperator, r.led.Now()); err != nil {
		return common.Address{}, err
	}

	if declared == nil {
		declared = new(big.Int)
	}
	if attached == nil {
		attached = new(big.Int)
	}
	if declared.Cmp(attached) != 0 {
		return common.Address{}, &ValueMismatchError{
			Expected: new(big.Int).Set(declared),
			Received: new(big.Int).Set(attached),
		}
	}

	forwarder, target := r.predict(salt)
	if r.led.Occupied(target) || r.led.Occupied(forwarder) {
		return common.Address{}, fmt.Errorf("salt already used, target %s: %w", target, ledger.ErrAddressOccupied)
	}

	// The two creation hops plus the value hand-off must land together or
	// not at all.
	var snap int
	snapshotter, transactional := r.led.(ledger.Snapshotter)
	if transactional {
		snap = snapshotter.Snapshot()
	}
	revert := func() {
		if transactional {
			snapshotter.RevertToSnapshot(snap)
		}
	}

	gotForwarder, err := r.led.CreateSalted(r.id, address.Salt(salt), forwarderInitCode, nil)
	if err != nil {
		revert()
		return common.Address{}, fmt.Errorf("create forwarder: %w", err)
	}
	if gotForwarder != forwarder {
		revert()
		return common.Address{}, &InternalConsistencyError{Predicted: forwarder, Actual: gotForwarder}
	}

	if err := r.led.Transfer(caller, gotForwarder, attached); err != nil {
		revert()
		return common.Address{}, fmt.Errorf("attach value: %w", err)
	}

	got, err := r.led.CreateSequenced(gotForwarder, payload, attached)
	if err != nil {
		revert()
		return common.Address{}, fmt.Errorf("create payload: %w", err)
	}
	if got != target {
		revert()
		return common.Address{}, &InternalConsistencyError{Predicted: target, Actual: got}
	}

	r.notify(DeployedEvent{
		Address: got,
		Salt:    append([]byte(nil), salt...),
		Value:   new(big.Int).Set(attached),
	})
	return got, nil
}
