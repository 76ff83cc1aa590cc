// Package factory implements the bao-factory registry core: a deterministic
// deployer gated by an owner/operator authorization model, with an
// upgradeable logic pointer behind a stable identity. The registry never
// executes anything itself; it predicts what the injected ledger will do,
// invokes the ledger's creation primitives and verifies the outcome.
package factory

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/baofinance/bao-factory/address"
	"github.com/baofinance/bao-factory/ledger"
)

// DefaultBootstrapDeployer is the well-known keyless salted-creation deployer
// present at the same address on most networks. Registries bootstrapped
// through it land on the same address everywhere for the same salt.
var DefaultBootstrapDeployer = common.HexToAddress("0x4e59b44847b379578588920cA78FbF26c0B4956C")

var (
	// forwarderInitCode is the fixed init code of the per-salt forwarding
	// object. Deployments route through it so that the final address depends
	// on this constant and the salt, never on the payload: the forwarder is
	// created by the salted hop and the payload by the forwarder's first
	// sequenced creation.
	forwarderInitCode     = common.FromHex("0x67363d3d37363d34f03d5260086018f3")
	forwarderInitCodeHash = crypto.Keccak256Hash(forwarderInitCode)

	// Init-code blobs for the registry's own accounts. The model ledger
	// treats code as opaque bytes; only the hashes feed address derivation.
	// Deployments against a real chain substitute compiled artifacts through
	// Config.InitCode and EnsureFunctionalLogic's code argument.
	bootstrapInitCode       = []byte("bao-factory/registry-bootstrap/v1")
	functionalLogicInitCode = []byte("bao-factory/registry-logic/v1")
)

// Registry is a handle to a registry account on a ledger: the stable identity
// plus the indirection table resolving logic identities to behavior handles.
// All persistent state lives in the ledger under the registry identity, so
// any number of handles may be attached to the same account.
type Registry struct {
	led    ledger.Ledger
	id     common.Address
	logics map[common.Address]Logic
	events []Event
}

// Config parameterizes Bootstrap.
type Config struct {
	// Owner is the immutable owner identity baked into the registry state.
	Owner common.Address

	// Salt chooses the registry's own address under the bootstrap deployer.
	Salt []byte

	// Deployer is the well-known salted-creation deployer; zero means
	// DefaultBootstrapDeployer.
	Deployer common.Address

	// InitCode overrides the registry account's init code; nil means the
	// built-in blob. The registry address depends on its hash.
	InitCode []byte
}

func (c *Config) fill() {
	if c.Deployer == (common.Address{}) {
		c.Deployer = DefaultBootstrapDeployer
	}
	if c.InitCode == nil {
		c.InitCode = bootstrapInitCode
	}
}

// PredictRegistry computes where Bootstrap will place the registry account
// and its bootstrap logic for the given configuration, before either exists.
func PredictRegistry(cfg Config) (registry, bootstrapLogic common.Address) {
	cfg.fill()
	return address.PredictBootstrap(cfg.Deployer, address.Salt(cfg.Salt), address.InitCodeHash(cfg.InitCode))
}

// Predict computes the target address for a salt under a registry identity
// without any ledger access. Tooling uses it to predict addresses for
// registries it cannot reach.
func Predict(registry common.Address, salt []byte) common.Address {
	forwarder := address.SaltedCreation(registry, address.Salt(salt), forwarderInitCodeHash)
	return address.SequencedCreation(forwarder, 1)
}

// Bootstrap creates a registry account at its predicted address via the
// well-known deployer's salted creation, creates the bootstrap logic account
// as the registry's first sequenced creation, and initializes the persistent
// state with cfg.Owner and the bootstrap logic pointer.
func Bootstrap(l ledger.Ledger, cfg Config) (*Registry, error) {
	cfg.fill()
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("bootstrap owner: %w", ErrInvalidAddress)
	}

	predictedRegistry, predictedLogic := PredictRegistry(cfg)

	regAddr, err := l.CreateSalted(cfg.Deployer, address.Salt(cfg.Salt), cfg.InitCode, nil)
	if err != nil {
		return nil, fmt.Errorf("create registry account: %w", err)
	}
	if regAddr != predictedRegistry {
		return nil, &InternalConsistencyError{Predicted: predictedRegistry, Actual: regAddr}
	}

	logicAddr, err := l.CreateSequenced(regAddr, bootstrapInitCode, nil)
	if err != nil {
		return nil, fmt.Errorf("create bootstrap logic account: %w", err)
	}
	if logicAddr != predictedLogic {
		return nil, &InternalConsistencyError{Predicted: predictedLogic, Actual: logicAddr}
	}

	r := &Registry{
		led:    l,
		id:     regAddr,
		logics: map[common.Address]Logic{logicAddr: BootstrapLogic()},
	}
	if err := r.storeState(&state{Owner: cfg.Owner}); err != nil {
		return nil, err
	}
	storeLogicPointer(l, regAddr, logicAddr)
	return r, nil
}

// Attach binds a handle to an existing registry account. The caller registers
// behavior handles for the logic identities it knows via RegisterLogic.
func Attach(l ledger.Ledger, id common.Address) (*Registry, error) {
	if _, err := loadState(l, id); err != nil {
		return nil, err
	}
	return &Registry{
		led:    l,
		id:     id,
		logics: make(map[common.Address]Logic),
	}, nil
}

// RegisterLogic records the behavior handle for a logic identity in the
// indirection table. Registration is host-side wiring, not a gated registry
// operation.
func (r *Registry) RegisterLogic(id common.Address, logic Logic) error {
	if id == (common.Address{}) {
		return fmt.Errorf("register logic: %w", ErrInvalidAddress)
	}
	r.logics[id] = logic
	return nil
}

// ID returns the registry's stable identity. It never changes across
// upgrades.
func (r *Registry) ID() common.Address { return r.id }

// Owner returns the fixed owner identity.
func (r *Registry) Owner() (common.Address, error) {
	st, err := r.loadState()
	if err != nil {
		return common.Address{}, err
	}
	return st.Owner, nil
}

// Logic returns the identity of the currently active logic.
func (r *Registry) Logic() common.Address {
	return loadLogicPointer(r.led, r.id)
}

// LogicVersion returns the version reported by the active logic's handle, or
// -1 when no handle is registered for the persisted pointer.
func (r *Registry) LogicVersion() int {
	lg, ok := r.logics[r.Logic()]
	if !ok {
		return -1
	}
	return lg.Version()
}

// IsCurrentOperator reports whether identity holds an unexpired grant.
func (r *Registry) IsCurrentOperator(identity common.Address) (bool, error) {
	st, err := r.loadState()
	if err != nil {
		return false, err
	}
	return st.isActiveOperator(identity, r.led.Now()), nil
}

// OperatorAt enumerates the operator set positionally, expired records
// included. Indices are not stable across removals: rebuild the full set in
// one pass instead of holding indices between calls.
func (r *Registry) OperatorAt(index int) (Operator, error) {
	st, err := r.loadState()
	if err != nil {
		return Operator{}, err
	}
	if index < 0 || index >= len(st.Operators) {
		return Operator{}, fmt.Errorf("index %d of %d: %w", index, len(st.Operators), ErrOutOfRange)
	}
	return st.Operators[index], nil
}

// OperatorCount returns the number of stored operator records, expired ones
// included.
func (r *Registry) OperatorCount() (int, error) {
	st, err := r.loadState()
	if err != nil {
		return 0, err
	}
	return len(st.Operators), nil
}

// PredictAddress computes the address a payload deployed under salt will
// occupy. Pure query: no authorization, no state change, and the result is
// independent of payloads, prior deployments and logic upgrades.
func (r *Registry) PredictAddress(salt []byte) common.Address {
	_, target := r.predict(salt)
	return target
}

// predict returns both hops: the per-salt forwarder address and the final
// target address of the payload.
func (r *Registry) predict(salt []byte) (forwarder, target common.Address) {
	forwarder = address.SaltedCreation(r.id, address.Salt(salt), forwarderInitCodeHash)
	target = address.SequencedCreation(forwarder, 1)
	return forwarder, target
}

// SetOperator grants, renews or removes deployment authority. Owner-only.
// delay == 0 removes; otherwise the grant expires at now + delay, with delay
// capped by MaxOperatorDelay.
func (r *Registry) SetOperator(caller, identity common.Address, delay uint64) error {
	lg, err := r.currentLogic()
	if err != nil {
		return err
	}
	return lg.SetOperator(r, caller, identity, delay)
}

// Deploy deploys payload under salt with no value attached. Owner or active
// operator only.
func (r *Registry) Deploy(caller common.Address, payload, salt []byte) (common.Address, error) {
	return r.DeployWithValue(caller, nil, nil, payload, salt)
}

// DeployWithValue deploys payload under salt, forwarding attached value to
// the created object. declared must equal attached exactly; the check fails
// fast before any creation is attempted.
func (r *Registry) DeployWithValue(caller common.Address, declared, attached *big.Int, payload, salt []byte) (common.Address, error) {
	lg, err := r.currentLogic()
	if err != nil {
		return common.Address{}, err
	}
	return lg.Deploy(r, caller, declared, attached, payload, salt)
}

// Upgrade swaps the active logic pointer to newLogic. Owner-only. The target
// must be a non-zero identity with code on the ledger and a registered handle
// whose UpgradeSlot matches this registry's logic slot; anything else is
// rejected. State, balances and the registry identity are untouched.
func (r *Registry) Upgrade(caller, newLogic common.Address) error {
	st, err := r.loadState()
	if err != nil {
		return err
	}
	if err := st.authorize(caller, OwnerOnly, r.led.Now()); err != nil {
		return err
	}
	if newLogic == (common.Address{}) {
		return fmt.Errorf("upgrade: %w", ErrInvalidAddress)
	}

	lg, ok := r.logics[newLogic]
	if !ok || len(r.led.CodeAt(newLogic)) == 0 || lg.UpgradeSlot() != logicSlot {
		return fmt.Errorf("upgrade to %s: %w", newLogic, ErrUpgradeRejected)
	}

	storeLogicPointer(r.led, r.id, newLogic)
	r.notify(UpgradedEvent{Logic: newLogic})
	return nil
}

// Events returns the journal of events committed through this handle, in
// commit order.
func (r *Registry) Events() []Event {
	return append([]Event(nil), r.events...)
}

func (r *Registry) currentLogic() (Logic, error) {
	ptr := r.Logic()
	lg, ok := r.logics[ptr]
	if !ok {
		return nil, fmt.Errorf("no handle registered for logic %s: %w", ptr, ErrNotSupported)
	}
	return lg, nil
}

func (r *Registry) loadState() (*state, error) {
	return loadState(r.led, r.id)
}

func (r *Registry) storeState(st *state) error {
	return storeState(r.led, r.id, st)
}

func (r *Registry) notify(e Event) {
	r.events = append(r.events, e)
}

// EnsureFunctionalLogic makes sure the functional logic artifact exists at
// its deterministic address under deployer and salt, creating it when absent,
// and returns that address. Safe to call repeatedly.
func EnsureFunctionalLogic(l ledger.Ledger, deployer common.Address, salt []byte) (common.Address, error) {
	if deployer == (common.Address{}) {
		deployer = DefaultBootstrapDeployer
	}
	saltHash := address.Salt(salt)
	target := address.SaltedCreation(deployer, saltHash, address.InitCodeHash(functionalLogicInitCode))
	if l.Occupied(target) {
		return target, nil
	}
	got, err := l.CreateSalted(deployer, saltHash, functionalLogicInitCode, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("create functional logic account: %w", err)
	}
	if got != target {
		return common.Address{}, &InternalConsistencyError{Predicted: target, Actual: got}
	}
	return got, nil
}
