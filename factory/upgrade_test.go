package factory_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/baofinance/bao-factory/factory"
	"github.com/baofinance/bao-factory/ledger"
)

// probeFailingLogic reports a foreign upgrade slot and must be rejected.
type probeFailingLogic struct{ factory.Logic }

func (probeFailingLogic) UpgradeSlot() common.Hash {
	return common.HexToHash("0xdead")
}

func TestUpgradeOwnerOnly(t *testing.T) {
	mem := ledger.NewMemory(0)
	r := functionalRegistry(t, mem)
	require.NoError(t, r.SetOperator(owner, operator, 1000))

	logicAddr, err := factory.EnsureFunctionalLogic(mem, factory.DefaultBootstrapDeployer, []byte("test-logic-v2"))
	require.NoError(t, err)
	require.NoError(t, r.RegisterLogic(logicAddr, factory.FunctionalLogic()))

	require.ErrorIs(t, r.Upgrade(operator, logicAddr), factory.ErrUnauthorized)
	require.ErrorIs(t, r.Upgrade(stranger, logicAddr), factory.ErrUnauthorized)
	require.NoError(t, r.Upgrade(owner, logicAddr))
	require.Equal(t, logicAddr, r.Logic())
}

func TestUpgradeRejectsZeroTarget(t *testing.T) {
	mem := ledger.NewMemory(0)
	r := functionalRegistry(t, mem)

	require.ErrorIs(t, r.Upgrade(owner, common.Address{}), factory.ErrInvalidAddress)
}

func TestUpgradeRejectsUnprobedTargets(t *testing.T) {
	mem := ledger.NewMemory(0)
	r := functionalRegistry(t, mem)

	// No handle registered for the identity.
	unknown := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	require.ErrorIs(t, r.Upgrade(owner, unknown), factory.ErrUpgradeRejected)

	// Handle registered but no code on the ledger.
	require.NoError(t, r.RegisterLogic(unknown, factory.FunctionalLogic()))
	require.ErrorIs(t, r.Upgrade(owner, unknown), factory.ErrUpgradeRejected)

	// Code present but the capability probe reports a foreign slot.
	logicAddr, err := factory.EnsureFunctionalLogic(mem, factory.DefaultBootstrapDeployer, []byte("probe-fail"))
	require.NoError(t, err)
	require.NoError(t, r.RegisterLogic(logicAddr, probeFailingLogic{factory.FunctionalLogic()}))
	require.ErrorIs(t, r.Upgrade(owner, logicAddr), factory.ErrUpgradeRejected)
}

func TestUpgradePreservesIdentityAndState(t *testing.T) {
	mem := ledger.NewMemory(1000)
	r := functionalRegistry(t, mem)
	require.NoError(t, r.SetOperator(owner, operator, 500))

	id := r.ID()
	salt := []byte("stable")
	predictedBefore := r.PredictAddress(salt)

	logicAddr, err := factory.EnsureFunctionalLogic(mem, factory.DefaultBootstrapDeployer, []byte("test-logic-v2"))
	require.NoError(t, err)
	require.NoError(t, r.RegisterLogic(logicAddr, factory.FunctionalLogic()))
	require.NoError(t, r.Upgrade(owner, logicAddr))

	// Identity, predictions and the operator set all survive the swap.
	require.Equal(t, id, r.ID())
	require.Equal(t, predictedBefore, r.PredictAddress(salt))

	active, err := r.IsCurrentOperator(operator)
	require.NoError(t, err)
	require.True(t, active)

	mem.SetTime(1501)
	active, err = r.IsCurrentOperator(operator)
	require.NoError(t, err)
	require.False(t, active)
}

func TestUpgradeStateMachineForward(t *testing.T) {
	mem := ledger.NewMemory(0)
	r := bootstrapRegistry(t, mem)
	require.Equal(t, factory.BootstrapVersion, r.LogicVersion())

	logicAddr, err := factory.EnsureFunctionalLogic(mem, factory.DefaultBootstrapDeployer, []byte("test-logic"))
	require.NoError(t, err)
	require.NoError(t, r.RegisterLogic(logicAddr, factory.FunctionalLogic()))
	require.NoError(t, r.Upgrade(owner, logicAddr))
	require.Equal(t, factory.Version, r.LogicVersion())

	// Further upgrades stay possible: swap to another functional instance.
	next, err := factory.EnsureFunctionalLogic(mem, factory.DefaultBootstrapDeployer, []byte("test-logic-v2"))
	require.NoError(t, err)
	require.NoError(t, r.RegisterLogic(next, factory.FunctionalLogic()))
	require.NoError(t, r.Upgrade(owner, next))
	require.Equal(t, next, r.Logic())

	events := r.Events()
	upgraded, ok := events[len(events)-1].(factory.UpgradedEvent)
	require.True(t, ok)
	require.Equal(t, next, upgraded.Logic)
}
