package factory_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/baofinance/bao-factory/factory"
	"github.com/baofinance/bao-factory/ledger"
)

func TestSetOperatorOwnerOnly(t *testing.T) {
	mem := ledger.NewMemory(0)
	r := functionalRegistry(t, mem)

	require.ErrorIs(t, r.SetOperator(stranger, operator, 100), factory.ErrUnauthorized)

	// Operators cannot manage operators either.
	require.NoError(t, r.SetOperator(owner, operator, 100))
	require.ErrorIs(t, r.SetOperator(operator, stranger, 100), factory.ErrUnauthorized)
}

func TestSetOperatorRejectsZeroIdentity(t *testing.T) {
	mem := ledger.NewMemory(0)
	r := functionalRegistry(t, mem)

	require.ErrorIs(t, r.SetOperator(owner, common.Address{}, 100), factory.ErrInvalidAddress)
}

func TestSetOperatorRejectsExcessiveDelay(t *testing.T) {
	mem := ledger.NewMemory(0)
	r := functionalRegistry(t, mem)

	require.ErrorIs(t, r.SetOperator(owner, operator, factory.MaxOperatorDelay+1), factory.ErrInvalidDelay)
	require.NoError(t, r.SetOperator(owner, operator, factory.MaxOperatorDelay))
}

func TestOperatorExpiryBoundary(t *testing.T) {
	const start, delay = 1000, 50

	mem := ledger.NewMemory(start)
	r := functionalRegistry(t, mem)
	require.NoError(t, r.SetOperator(owner, operator, delay))

	mem.SetTime(start + delay - 1)
	active, err := r.IsCurrentOperator(operator)
	require.NoError(t, err)
	require.True(t, active)

	// The expiry instant itself is exclusive.
	mem.SetTime(start + delay)
	active, err = r.IsCurrentOperator(operator)
	require.NoError(t, err)
	require.False(t, active)

	mem.SetTime(start + delay + 1)
	active, err = r.IsCurrentOperator(operator)
	require.NoError(t, err)
	require.False(t, active)
}

func TestExpiredOperatorStaysEnumerable(t *testing.T) {
	mem := ledger.NewMemory(1000)
	r := functionalRegistry(t, mem)
	require.NoError(t, r.SetOperator(owner, operator, 10))

	mem.AdvanceTime(100)
	active, err := r.IsCurrentOperator(operator)
	require.NoError(t, err)
	require.False(t, active)

	n, err := r.OperatorCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rec, err := r.OperatorAt(0)
	require.NoError(t, err)
	require.Equal(t, operator, rec.Identity)
	require.EqualValues(t, 1010, rec.Expiry)
}

func TestSetOperatorOverwritesExpiry(t *testing.T) {
	mem := ledger.NewMemory(1000)
	r := functionalRegistry(t, mem)

	require.NoError(t, r.SetOperator(owner, operator, 10))
	require.NoError(t, r.SetOperator(owner, operator, 500))

	n, err := r.OperatorCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rec, err := r.OperatorAt(0)
	require.NoError(t, err)
	require.EqualValues(t, 1500, rec.Expiry)
}

func TestRemoveOperatorImmediateAndMonotonic(t *testing.T) {
	mem := ledger.NewMemory(1000)
	r := functionalRegistry(t, mem)
	require.NoError(t, r.SetOperator(owner, operator, 10000))

	require.NoError(t, r.SetOperator(owner, operator, 0))

	active, err := r.IsCurrentOperator(operator)
	require.NoError(t, err)
	require.False(t, active)

	_, err = r.Deploy(operator, []byte("payload"), []byte("s"))
	require.ErrorIs(t, err, factory.ErrUnauthorized)

	n, err := r.OperatorCount()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRemoveAbsentOperatorIsSilentNoop(t *testing.T) {
	mem := ledger.NewMemory(1000)
	r := functionalRegistry(t, mem)
	before := len(r.Events())

	require.NoError(t, r.SetOperator(owner, operator, 0))
	require.Len(t, r.Events(), before)
}

func TestOperatorAtOutOfRange(t *testing.T) {
	mem := ledger.NewMemory(1000)
	r := functionalRegistry(t, mem)
	require.NoError(t, r.SetOperator(owner, operator, 100))

	_, err := r.OperatorAt(1)
	require.ErrorIs(t, err, factory.ErrOutOfRange)
	_, err = r.OperatorAt(-1)
	require.ErrorIs(t, err, factory.ErrOutOfRange)
}

func TestRemovalMayRelocateIndices(t *testing.T) {
	mem := ledger.NewMemory(1000)
	r := functionalRegistry(t, mem)

	ids := []common.Address{
		common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		common.HexToAddress("0x00000000000000000000000000000000000000a2"),
		common.HexToAddress("0x00000000000000000000000000000000000000a3"),
	}
	for _, id := range ids {
		require.NoError(t, r.SetOperator(owner, id, 100))
	}
	require.NoError(t, r.SetOperator(owner, ids[0], 0))

	// One pass reconstructs the surviving set; positions mean nothing.
	n, err := r.OperatorCount()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got := map[common.Address]bool{}
	for i := 0; i < n; i++ {
		rec, err := r.OperatorAt(i)
		require.NoError(t, err)
		got[rec.Identity] = true
	}
	require.Equal(t, map[common.Address]bool{ids[1]: true, ids[2]: true}, got)
}

func TestSetOperatorEmitsEvents(t *testing.T) {
	mem := ledger.NewMemory(1000)
	r := functionalRegistry(t, mem)

	require.NoError(t, r.SetOperator(owner, operator, 100))
	events := r.Events()
	set, ok := events[len(events)-1].(factory.OperatorSetEvent)
	require.True(t, ok)
	require.Equal(t, operator, set.Identity)
	require.EqualValues(t, 1100, set.Expiry)

	// Re-granting the same expiry still writes and still notifies.
	require.NoError(t, r.SetOperator(owner, operator, 100))
	events = r.Events()
	set, ok = events[len(events)-1].(factory.OperatorSetEvent)
	require.True(t, ok)
	require.EqualValues(t, 1100, set.Expiry)

	require.NoError(t, r.SetOperator(owner, operator, 0))
	events = r.Events()
	removed, ok := events[len(events)-1].(factory.OperatorRemovedEvent)
	require.True(t, ok)
	require.Equal(t, operator, removed.Identity)
}

func TestOperatorActivityProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		start := rapid.Uint64Range(1, 1<<40).Draw(rt, "start")
		delay := rapid.Uint64Range(1, factory.MaxOperatorDelay).Draw(rt, "delay")
		probe := rapid.Uint64Range(0, 2*factory.MaxOperatorDelay).Draw(rt, "probe")

		mem := ledger.NewMemory(start)
		r := functionalRegistryRapid(rt, mem)
		if err := r.SetOperator(owner, operator, delay); err != nil {
			rt.Fatalf("set operator: %v", err)
		}

		mem.SetTime(start + probe)
		active, err := r.IsCurrentOperator(operator)
		if err != nil {
			rt.Fatalf("query operator: %v", err)
		}
		if want := probe < delay; active != want {
			rt.Fatalf("probe %d of delay %d: active=%v, want %v", probe, delay, active, want)
		}
	})
}

// functionalRegistryRapid mirrors functionalRegistry for rapid's *rapid.T.
func functionalRegistryRapid(rt *rapid.T, mem *ledger.Memory) *factory.Registry {
	r, err := factory.Bootstrap(mem, factory.Config{Owner: owner, Salt: []byte("test-registry")})
	if err != nil {
		rt.Fatalf("bootstrap: %v", err)
	}
	logicAddr, err := factory.EnsureFunctionalLogic(mem, factory.DefaultBootstrapDeployer, []byte("test-logic"))
	if err != nil {
		rt.Fatalf("ensure logic: %v", err)
	}
	if err := r.RegisterLogic(logicAddr, factory.FunctionalLogic()); err != nil {
		rt.Fatalf("register logic: %v", err)
	}
	if err := r.Upgrade(owner, logicAddr); err != nil {
		rt.Fatalf("upgrade: %v", err)
	}
	return r
}
