// Package deploy sequences the full bao-factory deployment procedure against
// an execution environment: ensure the bootstrap registry exists, upgrade it
// to the functional logic, authorize operators, then deploy the payloads of
// the plan. The procedure is idempotent: re-running it against a
// fully-deployed environment changes nothing.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/baofinance/bao-factory/factory"
	"github.com/baofinance/bao-factory/ledger"
	"github.com/baofinance/bao-factory/payload"
)

// defaultLogicSalt fixes the functional logic artifact's address across
// environments.
var defaultLogicSalt = []byte("bao-factory/logic/v1")

// OperatorGrant is one operator authorization of the plan.
type OperatorGrant struct {
	Identity common.Address
	Delay    uint64
}

// PayloadPrm groups deployment parameters of a single payload.
type PayloadPrm struct {
	Name     string
	Artifact payload.Artifact
	Salt     []byte
	Value    *big.Int
}

// Prm groups all parameters of the deployment procedure.
type Prm struct {
	// Writes progress into the log.
	Logger *zap.Logger

	// Execution environment to deploy into.
	Ledger ledger.Ledger

	// Owner identity the registry is initialized with; also signs every
	// gated call of the procedure.
	Owner common.Address

	// RegistrySalt chooses the registry's address under the bootstrap
	// deployer.
	RegistrySalt []byte

	// LogicSalt chooses the functional logic artifact's address; empty means
	// the package default.
	LogicSalt []byte

	// Deployer overrides the well-known bootstrap deployer; zero means
	// factory.DefaultBootstrapDeployer.
	Deployer common.Address

	Operators []OperatorGrant
	Payloads  []PayloadPrm
}

// Report summarizes a completed procedure.
type Report struct {
	RunID    string
	Registry common.Address
	Logic    common.Address

	// Deployed maps payload names to their resulting addresses, including
	// payloads found already deployed by an earlier run.
	Deployed map[string]common.Address
}

// Deploy runs the deployment procedure described by prm. It aborts on the
// first fatal error or when ctx is done; completed stages are not undone, and
// a later run picks up where this one stopped.
func Deploy(ctx context.Context, prm Prm) (*Report, error) {
	if prm.Logger == nil {
		prm.Logger = zap.NewNop()
	}
	if len(prm.LogicSalt) == 0 {
		prm.LogicSalt = defaultLogicSalt
	}

	report := &Report{
		RunID:    uuid.NewString(),
		Deployed: make(map[string]common.Address),
	}
	log := prm.Logger.With(zap.String("run", report.RunID))

	reg, err := ensureRegistry(ctx, log, prm)
	if err != nil {
		return nil, fmt.Errorf("ensure bootstrap registry: %w", err)
	}
	report.Registry = reg.ID()

	logicAddr, err := ensureFunctionalLogic(ctx, log, prm, reg)
	if err != nil {
		return nil, fmt.Errorf("upgrade registry to functional logic: %w", err)
	}
	report.Logic = logicAddr

	if err := authorizeOperators(ctx, log, prm, reg); err != nil {
		return nil, fmt.Errorf("authorize operators: %w", err)
	}

	if err := deployPayloads(ctx, log, prm, reg, report); err != nil {
		return nil, fmt.Errorf("deploy payloads: %w", err)
	}

	log.Info("deployment procedure finished",
		zap.Stringer("registry", report.Registry),
		zap.Stringer("logic", report.Logic),
		zap.Int("payloads", len(report.Deployed)))
	return report, nil
}

func ensureRegistry(ctx context.Context, log *zap.Logger, prm Prm) (*factory.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := factory.Config{
		Owner:    prm.Owner,
		Salt:     prm.RegistrySalt,
		Deployer: prm.Deployer,
	}
	predictedRegistry, predictedLogic := factory.PredictRegistry(cfg)

	if prm.Ledger.Occupied(predictedRegistry) {
		log.Info("bootstrap registry already exists", zap.Stringer("address", predictedRegistry))

		reg, err := factory.Attach(prm.Ledger, predictedRegistry)
		if err != nil {
			return nil, err
		}
		if err := reg.RegisterLogic(predictedLogic, factory.BootstrapLogic()); err != nil {
			return nil, err
		}
		return reg, nil
	}

	log.Info("creating bootstrap registry...", zap.Stringer("address", predictedRegistry))

	reg, err := factory.Bootstrap(prm.Ledger, cfg)
	if err != nil {
		return nil, err
	}

	log.Info("bootstrap registry successfully created", zap.Stringer("address", reg.ID()))
	return reg, nil
}

func ensureFunctionalLogic(ctx context.Context, log *zap.Logger, prm Prm, reg *factory.Registry) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, err
	}

	logicAddr, err := factory.EnsureFunctionalLogic(prm.Ledger, prm.Deployer, prm.LogicSalt)
	if err != nil {
		return common.Address{}, err
	}
	if err := reg.RegisterLogic(logicAddr, factory.FunctionalLogic()); err != nil {
		return common.Address{}, err
	}

	if reg.Logic() == logicAddr {
		log.Info("registry already runs functional logic", zap.Stringer("logic", logicAddr))
		return logicAddr, nil
	}

	log.Info("upgrading registry to functional logic...", zap.Stringer("logic", logicAddr))

	if err := reg.Upgrade(prm.Owner, logicAddr); err != nil {
		return common.Address{}, err
	}

	log.Info("registry successfully upgraded", zap.Int("version", reg.LogicVersion()))
	return logicAddr, nil
}

func authorizeOperators(ctx context.Context, log *zap.Logger, prm Prm, reg *factory.Registry) error {
	for _, grant := range prm.Operators {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := reg.SetOperator(prm.Owner, grant.Identity, grant.Delay); err != nil {
			return fmt.Errorf("set operator %s: %w", grant.Identity, err)
		}
		log.Info("operator authorized",
			zap.Stringer("identity", grant.Identity),
			zap.Uint64("delay", grant.Delay))
	}
	return nil
}

func deployPayloads(ctx context.Context, log *zap.Logger, prm Prm, reg *factory.Registry, report *Report) error {
	for _, p := range prm.Payloads {
		if err := ctx.Err(); err != nil {
			return err
		}

		predicted := reg.PredictAddress(p.Salt)
		if prm.Ledger.Occupied(predicted) {
			log.Info("payload already deployed",
				zap.String("name", p.Name), zap.Stringer("address", predicted))
			report.Deployed[p.Name] = predicted
			continue
		}

		log.Info("deploying payload...",
			zap.String("name", p.Name), zap.Stringer("address", predicted))

		got, err := reg.DeployWithValue(prm.Owner, p.Value, p.Value, p.Artifact.Code, p.Salt)
		if err != nil {
			return fmt.Errorf("deploy %q: %w", p.Name, err)
		}
		if got != predicted {
			return fmt.Errorf("deploy %q: %w", p.Name,
				&factory.InternalConsistencyError{Predicted: predicted, Actual: got})
		}

		log.Info("payload successfully deployed",
			zap.String("name", p.Name), zap.Stringer("address", got))
		report.Deployed[p.Name] = got
	}
	return nil
}

// IsAlreadyDeployed reports whether err is the address-collision failure of a
// concurrent deployment winning the same salt. Tooling treats it as a benign
// race: the artifact exists at the predicted address either way.
func IsAlreadyDeployed(err error) bool {
	return errors.Is(err, ledger.ErrAddressOccupied)
}
