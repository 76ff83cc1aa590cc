package deploy

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/baofinance/bao-factory/payload"
)

// Plan is the YAML deployment plan consumed by tooling:
//
//	registry_salt: bao-factory/registry/v1
//	operators:
//	  - identity: "0x1111111111111111111111111111111111111111"
//	    delay: 86400
//	payloads:
//	  - name: token
//	    artifact: artifacts/token.json
//	    salt: bao/token/v1
//	    value: 0
//
// Artifact paths are resolved relative to the plan file.
type Plan struct {
	RegistrySalt string         `yaml:"registry_salt"`
	LogicSalt    string         `yaml:"logic_salt"`
	Operators    []PlanOperator `yaml:"operators"`
	Payloads     []PlanPayload  `yaml:"payloads"`
}

// PlanOperator is one operator grant of the plan.
type PlanOperator struct {
	Identity string `yaml:"identity"`
	Delay    uint64 `yaml:"delay"`
}

// PlanPayload is one payload of the plan. Exactly one of Artifact (a file
// path) and Bytecode (inline hex) must be set.
type PlanPayload struct {
	Name     string `yaml:"name"`
	Artifact string `yaml:"artifact"`
	Bytecode string `yaml:"bytecode"`
	Salt     string `yaml:"salt"`
	Value    uint64 `yaml:"value"`
}

// LoadPlan parses the plan file at path.
func LoadPlan(path string) (*Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}

	plan := new(Plan)
	if err := yaml.Unmarshal(raw, plan); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	if len(plan.RegistrySalt) == 0 {
		return nil, fmt.Errorf("plan %s: registry_salt is required", path)
	}
	for i, p := range plan.Payloads {
		if p.Name == "" {
			return nil, fmt.Errorf("plan %s: payload #%d has no name", path, i)
		}
		if p.Salt == "" {
			return nil, fmt.Errorf("plan %s: payload %q has no salt", path, p.Name)
		}
		if (p.Artifact == "") == (p.Bytecode == "") {
			return nil, fmt.Errorf("plan %s: payload %q needs exactly one of artifact and bytecode", path, p.Name)
		}
	}
	return plan, nil
}

// Resolve captures the plan's artifacts (paths relative to dir) and converts
// the plan into procedure parameters, leaving Logger, Ledger and Owner for
// the caller to fill.
func (p *Plan) Resolve(dir string) (Prm, error) {
	prm := Prm{
		RegistrySalt: []byte(p.RegistrySalt),
		LogicSalt:    []byte(p.LogicSalt),
	}

	for _, op := range p.Operators {
		if !common.IsHexAddress(op.Identity) {
			return Prm{}, fmt.Errorf("operator %q: not a hex address", op.Identity)
		}
		prm.Operators = append(prm.Operators, OperatorGrant{
			Identity: common.HexToAddress(op.Identity),
			Delay:    op.Delay,
		})
	}

	for _, pp := range p.Payloads {
		var (
			art payload.Artifact
			err error
		)
		if pp.Artifact != "" {
			art, err = payload.Load(filepath.Join(dir, pp.Artifact))
		} else {
			art, err = payload.FromHex(pp.Bytecode)
		}
		if err != nil {
			return Prm{}, fmt.Errorf("payload %q: %w", pp.Name, err)
		}

		prm.Payloads = append(prm.Payloads, PayloadPrm{
			Name:     pp.Name,
			Artifact: art,
			Salt:     []byte(pp.Salt),
			Value:    new(big.Int).SetUint64(pp.Value),
		})
	}
	return prm, nil
}
