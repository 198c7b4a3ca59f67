package vm

import (
	"fmt"
	"sync"

	"github.com/idena-network/wasmvm/common"
	ourcrypto "github.com/idena-network/wasmvm/crypto"
)

// MockBackend is an in-memory Backend used by tests and by the devtool CLI.
// It keeps one flat key-value store per contract address and a single
// balance map, deliberately minimal the way the original engine's own
// MockBackend stub was: enough to drive the runner end to end, nothing
// resembling real consensus state.
type MockBackend struct {
	mu sync.Mutex

	storage  map[string]map[string][]byte
	balances map[string][]byte
	code     map[string][]byte

	self           Address
	caller         Address
	originalCaller Address

	timestamp uint64
	number    uint64
	seed      []byte

	remainingGas Gas

	// Deployer is invoked by Deploy to run a freshly-stored module in a
	// recursive frame; it is wired up by whoever owns the Runner (the
	// devtool CLI, tests), so MockBackend itself never calls a Runner.
	Deployer func(code, args, nonce []byte, deposit common.Amount, gasLimit Gas, self Address) (ActionResult, Gas)
	// Caller_ is invoked by Call for the same reason.
	Caller_ func(contract Address, method string, args []byte, deposit common.Amount, gasLimit Gas, invocation InvocationContext) (ActionResult, Gas)

	nextAddr uint64
}

// NewMockBackend creates an empty backend for the given contract address.
func NewMockBackend(self Address) *MockBackend {
	return &MockBackend{
		storage:  make(map[string]map[string][]byte),
		balances: make(map[string][]byte),
		code:     make(map[string][]byte),
		self:     self,
		caller:   self,
	}
}

func addrKey(a Address) string { return string(a) }

func (b *MockBackend) SetStorage(contract Address, key, value []byte) BackendResult[struct{}] {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, found := b.storage[addrKey(contract)]
	if !found {
		m = make(map[string][]byte)
		b.storage[addrKey(contract)] = m
	}
	m[string(key)] = append([]byte(nil), value...)
	return ok(struct{}{}, 1000)
}

func (b *MockBackend) GetStorage(contract Address, key []byte) BackendResult[[]byte] {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.storage[addrKey(contract)]
	return ok(m[string(key)], 1000)
}

func (b *MockBackend) RemoveStorage(contract Address, key []byte) BackendResult[struct{}] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, found := b.storage[addrKey(contract)]; found {
		delete(m, string(key))
	}
	return ok(struct{}{}, 1000)
}

func (b *MockBackend) BlockTimestamp() BackendResult[uint64] { return ok(b.timestamp, 100) }
func (b *MockBackend) BlockNumber() BackendResult[uint64]    { return ok(b.number, 100) }
func (b *MockBackend) BlockSeed() BackendResult[[]byte]      { return ok(b.seed, 100) }
func (b *MockBackend) BlockHeader() BackendResult[[]byte]    { return ok([]byte{}, 100) }
func (b *MockBackend) MinFeePerGas() BackendResult[common.Amount] {
	return ok(common.Amount{0x01}, 100)
}
func (b *MockBackend) NetworkSize() BackendResult[uint32] { return ok(uint32(1), 100) }
func (b *MockBackend) Epoch() BackendResult[uint16]       { return ok(uint16(0), 100) }
func (b *MockBackend) GlobalState() BackendResult[[]byte] { return ok([]byte{}, 100) }

func (b *MockBackend) Balance(addr Address) BackendResult[common.Amount] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ok(common.Amount(b.balances[addrKey(addr)]), 100)
}

func (b *MockBackend) DeductBalance(addr Address, amount common.Amount) BackendResult[struct{}] {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, _ := common.Amount(b.balances[addrKey(addr)]).Uint256()
	amt, err := amount.Uint256()
	if err != nil {
		return fail[struct{}](err, 100)
	}
	if bal.Lt(amt) {
		return fail[struct{}](fmt.Errorf("insufficient balance"), 100)
	}
	bal.Sub(bal, amt)
	b.balances[addrKey(addr)] = common.AmountFromUint256(bal)
	return ok(struct{}{}, 100)
}

func (b *MockBackend) AddBalance(addr Address, amount common.Amount) BackendResult[struct{}] {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal, _ := common.Amount(b.balances[addrKey(addr)]).Uint256()
	amt, err := amount.Uint256()
	if err != nil {
		return fail[struct{}](err, 100)
	}
	bal.Add(bal, amt)
	b.balances[addrKey(addr)] = common.AmountFromUint256(bal)
	return ok(struct{}{}, 100)
}

func (b *MockBackend) PayAmount(addr Address, amount common.Amount) BackendResult[struct{}] {
	return b.AddBalance(addr, amount)
}

func (b *MockBackend) Caller() BackendResult[Address]         { return ok(b.caller, 100) }
func (b *MockBackend) OriginalCaller() BackendResult[Address] { return ok(b.originalCaller, 100) }
func (b *MockBackend) OwnAddr() BackendResult[Address]        { return ok(b.self, 100) }

func (b *MockBackend) OwnCode() BackendResult[[]byte] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ok(b.code[addrKey(b.self)], 100)
}

func (b *MockBackend) CodeHash(addr Address) BackendResult[[]byte] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ok(ourcrypto.Keccak256(b.code[addrKey(addr)]), 1000)
}

// ContractAddr derives a deterministic address from the candidate deploy's
// code, args and nonce, so a contract can predict the address of a
// not-yet-deployed contract before actually deploying it.
func (b *MockBackend) ContractAddr(code, args, nonce []byte) BackendResult[Address] {
	return ok(deriveContractAddr(code, args, nonce), 1000)
}

func (b *MockBackend) ContractAddrByHash(hash, args, nonce []byte) BackendResult[Address] {
	return ok(deriveContractAddrFromHash(hash, args, nonce), 1000)
}

func deriveContractAddr(code, args, nonce []byte) Address {
	return deriveContractAddrFromHash(ourcrypto.Keccak256(code), args, nonce)
}

func deriveContractAddrFromHash(codeHash, args, nonce []byte) Address {
	buf := make([]byte, 0, len(codeHash)+len(args)+len(nonce))
	buf = append(buf, codeHash...)
	buf = append(buf, args...)
	buf = append(buf, nonce...)
	return Address(ourcrypto.Keccak256(buf))
}

func (b *MockBackend) ContractCode(addr Address) BackendResult[[]byte] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ok(b.code[addrKey(addr)], 100)
}

func (b *MockBackend) Identity(Address) BackendResult[[]byte]      { return ok([]byte{}, 100) }
func (b *MockBackend) IdentityState(Address) BackendResult[byte]   { return ok(byte(0), 100) }
func (b *MockBackend) PubKey(Address) BackendResult[[]byte]        { return ok([]byte{}, 100) }
func (b *MockBackend) Delegatee(Address) BackendResult[Address]    { return ok(Address{}, 100) }

func (b *MockBackend) ReadContractData(contract Address, key []byte) BackendResult[[]byte] {
	return b.GetStorage(contract, key)
}

func (b *MockBackend) Event(topic string, data []byte) BackendResult[struct{}] {
	return ok(struct{}{}, Gas(len(data)))
}

func (b *MockBackend) BurnAll(addr Address) BackendResult[struct{}] {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.balances, addrKey(addr))
	return ok(struct{}{}, 100)
}

func (b *MockBackend) Keccak256(data []byte) BackendResult[[]byte] {
	return ok(ourcrypto.Keccak256(data), Gas(len(data)))
}

func (b *MockBackend) SetRemainingGas(gas Gas) { b.remainingGas = gas }

// Commit is a no-op: MockBackend's maps are mutated in place with no
// transactional staging, so there is nothing to flush.
func (b *MockBackend) Commit() BackendResult[struct{}] { return ok(struct{}{}, 0) }

func (b *MockBackend) Call(contract Address, method string, args []byte, deposit common.Amount, gasLimit Gas, invocation InvocationContext) (ActionResult, Gas) {
	if b.Caller_ == nil {
		return ActionResult{Success: false, Error: "mock backend has no recursive caller wired"}, 0
	}
	return b.Caller_(contract, method, args, deposit, gasLimit, invocation)
}

func (b *MockBackend) Deploy(code, args, nonce []byte, deposit common.Amount, gasLimit Gas) (ActionResult, Gas) {
	addr := deriveContractAddr(code, args, nonce)
	b.mu.Lock()
	if _, exists := b.code[addrKey(addr)]; exists {
		// A nonce collision: fall back to a sequential address so tests that
		// don't bother passing a distinguishing nonce still get distinct
		// contracts, the same way the engine's own nonce uniqueness is the
		// caller's responsibility, not this mock's.
		b.nextAddr++
		addr = Address(fmt.Sprintf("contract-%d", b.nextAddr))
	}
	b.code[addrKey(addr)] = code
	b.mu.Unlock()
	if b.Deployer == nil {
		return ActionResult{Success: false, Error: "mock backend has no recursive deployer wired"}, 0
	}
	return b.Deployer(code, args, nonce, deposit, gasLimit, addr)
}

// SetCaller sets the address Caller()/OriginalCaller() report, used by
// tests to simulate a specific invoking account.
func (b *MockBackend) SetCaller(addr Address) {
	b.caller = addr
	if b.originalCaller == nil {
		b.originalCaller = addr
	}
}

// SetBalance seeds addr's balance for test fixtures.
func (b *MockBackend) SetBalance(addr Address, amount common.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addrKey(addr)] = amount
}

// SetCode seeds addr's stored code for test fixtures.
func (b *MockBackend) SetCode(addr Address, code []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.code[addrKey(addr)] = code
}
