package deploy_test

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/baofinance/bao-factory/deploy"
	"github.com/baofinance/bao-factory/factory"
	"github.com/baofinance/bao-factory/ledger"
	"github.com/baofinance/bao-factory/payload"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	operator = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func testPrm(t *testing.T, mem *ledger.Memory) deploy.Prm {
	t.Helper()

	tokenArt, err := payload.FromHex("0x60016001")
	require.NoError(t, err)
	vaultArt, err := payload.FromHex("0xdeadbeef")
	require.NoError(t, err)

	return deploy.Prm{
		Logger:       zaptest.NewLogger(t),
		Ledger:       mem,
		Owner:        owner,
		RegistrySalt: []byte("bao-factory/registry/test"),
		Operators: []deploy.OperatorGrant{
			{Identity: operator, Delay: 86400},
		},
		Payloads: []deploy.PayloadPrm{
			{Name: "token", Artifact: tokenArt, Salt: []byte("bao/token/v1"), Value: big.NewInt(0)},
			{Name: "vault", Artifact: vaultArt, Salt: []byte("bao/vault/v1"), Value: big.NewInt(0)},
		},
	}
}

func TestDeployProcedure(t *testing.T) {
	mem := ledger.NewMemory(1_700_000_000)
	prm := testPrm(t, mem)

	report, err := deploy.Deploy(context.Background(), prm)
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.True(t, mem.Occupied(report.Registry))
	require.Len(t, report.Deployed, 2)

	reg, err := factory.Attach(mem, report.Registry)
	require.NoError(t, err)
	require.Equal(t, report.Logic, reg.Logic())

	active, err := reg.IsCurrentOperator(operator)
	require.NoError(t, err)
	require.True(t, active)

	for name, addr := range report.Deployed {
		require.True(t, mem.Occupied(addr), "payload %s", name)
	}
	require.Equal(t, reg.PredictAddress([]byte("bao/token/v1")), report.Deployed["token"])
}

func TestDeployProcedureIsIdempotent(t *testing.T) {
	mem := ledger.NewMemory(1_700_000_000)
	prm := testPrm(t, mem)

	first, err := deploy.Deploy(context.Background(), prm)
	require.NoError(t, err)

	second, err := deploy.Deploy(context.Background(), prm)
	require.NoError(t, err)

	require.Equal(t, first.Registry, second.Registry)
	require.Equal(t, first.Logic, second.Logic)
	require.Equal(t, first.Deployed, second.Deployed)
}

func TestDeployProcedureResumesAfterPartialRun(t *testing.T) {
	mem := ledger.NewMemory(1_700_000_000)
	prm := testPrm(t, mem)

	// A previous run that stopped after bootstrapping the registry.
	_, err := factory.Bootstrap(mem, factory.Config{Owner: owner, Salt: prm.RegistrySalt})
	require.NoError(t, err)

	report, err := deploy.Deploy(context.Background(), prm)
	require.NoError(t, err)
	require.Len(t, report.Deployed, 2)
}

func TestDeployHonorsContext(t *testing.T) {
	mem := ledger.NewMemory(1_700_000_000)
	prm := testPrm(t, mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := deploy.Deploy(ctx, prm)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadPlanAndResolve(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "token.json")
	require.NoError(t, os.WriteFile(artifact, []byte(`{"bytecode": "0x600160"}`), 0o600))

	planPath := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(planPath, []byte(`
registry_salt: bao-factory/registry/test
operators:
  - identity: "0x00000000000000000000000000000000000000f1"
    delay: 86400
payloads:
  - name: token
    artifact: token.json
    salt: bao/token/v1
  - name: inline
    bytecode: "0xdeadbeef"
    salt: bao/inline/v1
    value: 7
`), 0o600))

	plan, err := deploy.LoadPlan(planPath)
	require.NoError(t, err)

	prm, err := plan.Resolve(dir)
	require.NoError(t, err)
	require.Equal(t, []byte("bao-factory/registry/test"), prm.RegistrySalt)
	require.Len(t, prm.Operators, 1)
	require.Equal(t, operator, prm.Operators[0].Identity)
	require.Len(t, prm.Payloads, 2)
	require.Equal(t, []byte{0x60, 0x01, 0x60}, prm.Payloads[0].Artifact.Code)
	require.Equal(t, big.NewInt(7), prm.Payloads[1].Value)
}

func TestLoadPlanValidation(t *testing.T) {
	dir := t.TempDir()
	write := func(content string) string {
		path := filepath.Join(dir, "plan.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	_, err := deploy.LoadPlan(write(`payloads: []`))
	require.Error(t, err) // registry_salt missing

	_, err = deploy.LoadPlan(write(`
registry_salt: s
payloads:
  - name: both
    artifact: a.json
    bytecode: "0x00"
    salt: s
`))
	require.Error(t, err) // artifact and bytecode are mutually exclusive
}
