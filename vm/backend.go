package vm

import "github.com/idena-network/wasmvm/common"

// BackendResult is the (value, gas charged) pair every Backend method
// returns: the gas a host operation cost is intrinsic to the operation
// itself, not derived from instruction counting, so it travels alongside
// the result rather than being charged by the caller after the fact.
type BackendResult[T any] struct {
	Value T
	Gas   Gas
	Err   error
}

func ok[T any](v T, gas Gas) BackendResult[T]        { return BackendResult[T]{Value: v, Gas: gas} }
func fail[T any](err error, gas Gas) BackendResult[T] { return BackendResult[T]{Err: err, Gas: gas} }

// Backend is the host API a Runner frame is built on: state access,
// chain/environment readers, and the recursive cross-contract primitives
// (Call/Deploy) that a FunctionCall/DeployContract promise resolves
// through. It is the abstraction boundary between this package's
// deterministic WASM-execution machinery and whatever owns real contract
// storage, balances, and block context.
type Backend interface {
	SetStorage(contract Address, key, value []byte) BackendResult[struct{}]
	GetStorage(contract Address, key []byte) BackendResult[[]byte]
	RemoveStorage(contract Address, key []byte) BackendResult[struct{}]

	BlockTimestamp() BackendResult[uint64]
	BlockNumber() BackendResult[uint64]
	BlockSeed() BackendResult[[]byte]
	BlockHeader() BackendResult[[]byte]
	MinFeePerGas() BackendResult[common.Amount]
	NetworkSize() BackendResult[uint32]
	Epoch() BackendResult[uint16]
	GlobalState() BackendResult[[]byte]

	Balance(addr Address) BackendResult[common.Amount]
	DeductBalance(addr Address, amount common.Amount) BackendResult[struct{}]
	AddBalance(addr Address, amount common.Amount) BackendResult[struct{}]
	PayAmount(addr Address, amount common.Amount) BackendResult[struct{}]

	Caller() BackendResult[Address]
	OriginalCaller() BackendResult[Address]
	OwnAddr() BackendResult[Address]
	OwnCode() BackendResult[[]byte]
	CodeHash(addr Address) BackendResult[[]byte]
	// ContractAddr deterministically derives the address a deploy of code
	// with args and nonce would receive, without actually deploying it.
	ContractAddr(code, args, nonce []byte) BackendResult[Address]
	// ContractAddrByHash is ContractAddr for a caller that only holds the
	// code's hash rather than the code itself.
	ContractAddrByHash(hash, args, nonce []byte) BackendResult[Address]
	ContractCode(addr Address) BackendResult[[]byte]

	Identity(addr Address) BackendResult[[]byte]
	IdentityState(addr Address) BackendResult[byte]
	PubKey(addr Address) BackendResult[[]byte]
	Delegatee(addr Address) BackendResult[Address]
	ReadContractData(contract Address, key []byte) BackendResult[[]byte]

	Event(topic string, data []byte) BackendResult[struct{}]
	BurnAll(addr Address) BackendResult[struct{}]
	Keccak256(data []byte) BackendResult[[]byte]

	// Commit durably applies this frame's state mutations. The runner calls
	// it once, on a successful top-level export, before draining promises;
	// on any failure path it is never called, leaving rollback to whatever
	// transactional scope the Backend implementation keeps underneath.
	Commit() BackendResult[struct{}]

	// SetRemainingGas publishes a gas counter to the backend: the frame's
	// remaining gas before each host-import Backend call, and the child's
	// gas limit before a recursive Call/Deploy, mirroring Env.gas_limit
	// syncing in the original engine.
	SetRemainingGas(gas Gas)

	// Call executes a FunctionCall on the target contract in a fresh,
	// recursive frame and returns the gas it actually consumed.
	Call(contract Address, method string, args []byte, deposit common.Amount, gasLimit Gas, invocation InvocationContext) (ActionResult, Gas)
	// Deploy instantiates and runs a new contract's deploy export in a
	// fresh, recursive frame and returns the gas it actually consumed.
	Deploy(code, args, nonce []byte, deposit common.Amount, gasLimit Gas) (ActionResult, Gas)
}
