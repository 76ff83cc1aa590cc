package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/baofinance/bao-factory/address"
)

// account is the in-memory model of a ledger account: created objects carry
// code; value-only accounts do not. Nonces follow the environment rule that
// a fresh account's first sequenced creation uses nonce 1.
type account struct {
	code    []byte
	nonce   uint64
	balance *big.Int
	storage map[common.Hash][]byte
}

func (a *account) clone() *account {
	cp := &account{
		code:    append([]byte(nil), a.code...),
		nonce:   a.nonce,
		balance: new(big.Int).Set(a.balance),
		storage: make(map[common.Hash][]byte, len(a.storage)),
	}
	for k, v := range a.storage {
		cp.storage[k] = append([]byte(nil), v...)
	}
	return cp
}

// Memory is an in-process Ledger used by tests and local orchestration runs.
// It applies every primitive atomically under a single mutex and supports
// snapshot/revert so compound operations can be rolled back the way a real
// environment reverts a failed transaction.
type Memory struct {
	mu        sync.Mutex
	accounts  map[common.Address]*account
	now       uint64
	snapshots []map[common.Address]*account
}

var _ Ledger = (*Memory)(nil)
var _ Snapshotter = (*Memory)(nil)

// NewMemory returns an empty ledger with the clock at now.
func NewMemory(now uint64) *Memory {
	return &Memory{
		accounts: make(map[common.Address]*account),
		now:      now,
	}
}

func (m *Memory) getOrCreate(addr common.Address) *account {
	acc, ok := m.accounts[addr]
	if !ok {
		acc = &account{nonce: 1, balance: new(big.Int), storage: make(map[common.Hash][]byte)}
		m.accounts[addr] = acc
	}
	return acc
}

func (m *Memory) create(creator common.Address, target common.Address, initCode []byte, value *big.Int) (common.Address, error) {
	if len(initCode) == 0 {
		// An object with no code would be indistinguishable from an empty
		// account and the occupancy check could never see it again.
		return common.Address{}, fmt.Errorf("create at %s: empty init code", target)
	}
	if acc, ok := m.accounts[target]; ok && len(acc.code) > 0 {
		return common.Address{}, fmt.Errorf("create at %s: %w", target, ErrAddressOccupied)
	}
	if err := m.transfer(creator, target, value); err != nil {
		return common.Address{}, err
	}
	m.getOrCreate(target).code = append([]byte(nil), initCode...)
	return target, nil
}

func (m *Memory) CreateSalted(creator common.Address, saltHash common.Hash, initCode []byte, value *big.Int) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := address.SaltedCreation(creator, saltHash, address.InitCodeHash(initCode))
	addr, err := m.create(creator, target, initCode, value)
	if err != nil {
		return common.Address{}, err
	}
	m.getOrCreate(creator).nonce++
	return addr, nil
}

func (m *Memory) CreateSequenced(creator common.Address, initCode []byte, value *big.Int) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.getOrCreate(creator)
	target := address.SequencedCreation(creator, acc.nonce)
	addr, err := m.create(creator, target, initCode, value)
	if err != nil {
		return common.Address{}, err
	}
	acc.nonce++
	return addr, nil
}

func (m *Memory) Occupied(addr common.Address) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[addr]
	return ok && len(acc.code) > 0
}

func (m *Memory) CodeAt(addr common.Address) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[addr]
	if !ok {
		return nil
	}
	return append([]byte(nil), acc.code...)
}

func (m *Memory) StorageAt(addr common.Address, slot common.Hash) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[addr]
	if !ok {
		return nil
	}
	return append([]byte(nil), acc.storage[slot]...)
}

func (m *Memory) SetStorage(addr common.Address, slot common.Hash, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getOrCreate(addr).storage[slot] = append([]byte(nil), value...)
}

func (m *Memory) BalanceAt(addr common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[addr]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(acc.balance)
}

func (m *Memory) Transfer(from, to common.Address, value *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.transfer(from, to, value)
}

func (m *Memory) transfer(from, to common.Address, value *big.Int) error {
	if value == nil || value.Sign() == 0 {
		return nil
	}
	src := m.getOrCreate(from)
	if src.balance.Cmp(value) < 0 {
		return fmt.Errorf("transfer %v from %s: %w", value, from, ErrInsufficientBalance)
	}
	src.balance.Sub(src.balance, value)
	dst := m.getOrCreate(to)
	dst.balance.Add(dst.balance, value)
	return nil
}

// Fund credits addr out of thin air. Test and local-run helper.
func (m *Memory) Fund(addr common.Address, value *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value == nil {
		return
	}
	acc := m.getOrCreate(addr)
	acc.balance.Add(acc.balance, value)
}

func (m *Memory) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.now
}

// SetTime moves the clock to now.
func (m *Memory) SetTime(now uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = now
}

// AdvanceTime moves the clock forward by d seconds.
func (m *Memory) AdvanceTime(d uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now += d
}

func (m *Memory) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make(map[common.Address]*account, len(m.accounts))
	for addr, acc := range m.accounts {
		cp[addr] = acc.clone()
	}
	m.snapshots = append(m.snapshots, cp)
	return len(m.snapshots) - 1
}

func (m *Memory) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id < 0 || id >= len(m.snapshots) {
		return
	}
	m.accounts = m.snapshots[id]
	m.snapshots = m.snapshots[:id]
}
