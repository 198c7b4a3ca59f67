package vm

import "github.com/idena-network/wasmvm/common"

// Address identifies a contract or account. It is opaque to the engine
// beyond a fixed maximum wire size (params.MaxAddressSize).
type Address []byte

// ActionKind discriminates the concrete Action variants. Go has no sum
// types, so the five variants of the original tagged enum become five
// structs distinguished by this tag, mirroring the flat opcode-dispatch
// tables the engine's own host-import surface uses.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionFunctionCall
	ActionTransfer
	ActionDeployContract
	ActionReadContractData
	ActionReadIdentity
)

// Action is one pending cross-contract effect, queued by a host import and
// later drained by the Runner.
type Action interface {
	Kind() ActionKind
}

type FunctionCallAction struct {
	ContractAddress Address
	Method          string
	Args            []byte
	Deposit         common.Amount
	GasLimit        Gas
}

func (FunctionCallAction) Kind() ActionKind { return ActionFunctionCall }

type DeployContractAction struct {
	Code     []byte
	Nonce    []byte
	Args     []byte
	Deposit  common.Amount
	GasLimit Gas
}

func (DeployContractAction) Kind() ActionKind { return ActionDeployContract }

type TransferAction struct {
	To     Address
	Amount common.Amount
}

func (TransferAction) Kind() ActionKind { return ActionTransfer }

type ReadContractDataAction struct {
	ContractAddress Address
	Key             []byte
	GasLimit        Gas
}

func (ReadContractDataAction) Kind() ActionKind { return ActionReadContractData }

type GetIdentityAction struct {
	Address  Address
	GasLimit Gas
}

func (GetIdentityAction) Kind() ActionKind { return ActionReadIdentity }

// PromiseResultKind discriminates PromiseResult's three shapes.
type PromiseResultKind int

const (
	PromiseResultEmpty PromiseResultKind = iota
	PromiseResultValue
	PromiseResultFailed
)

// PromiseResult is what a callback sees of the promise that triggered it:
// either no data, some data, or a failure with no further detail (the
// failure reason is not threaded across the guest boundary, matching the
// original engine's behavior).
type PromiseResult struct {
	Kind PromiseResultKind
	Data []byte
}

// NewPromiseResult classifies (success, data) the way the runner's promise
// drain does: failure always wins, then empty-vs-value is decided by
// whether any output bytes were produced.
func NewPromiseResult(success bool, data []byte) PromiseResult {
	if !success {
		return PromiseResult{Kind: PromiseResultFailed}
	}
	if len(data) == 0 {
		return PromiseResult{Kind: PromiseResultEmpty}
	}
	return PromiseResult{Kind: PromiseResultValue, Data: data}
}

// Promise is one entry in a frame's append-only promise queue: the action
// to perform, and the optional callback action to invoke with its result.
type Promise struct {
	PredecessorID  Address
	ReceiverID     Address
	Action         Action
	ActionCallback Action
}

// InvocationContext is the extra context a guest export receives beyond its
// wire arguments: whether this call is a promise callback, and if so, the
// result of the promise that triggered it.
type InvocationContext struct {
	IsCallback    bool
	PromiseResult *PromiseResult
}

// ActionResult is the outcome of one Deploy/Execute invocation, including
// the tree of results produced by draining that invocation's promise queue.
type ActionResult struct {
	InputAction     Action
	GasUsed         Gas
	RemainingGas    Gas
	Success         bool
	Error           string
	OutputData      []byte
	SubActionResults []ActionResult
	Contract        Address
}

// AppendSubActionResults folds the results of a drained promise queue into
// this result's children.
func (r *ActionResult) AppendSubActionResults(results []ActionResult) {
	r.SubActionResults = append(r.SubActionResults, results...)
}

func actionResultFromError(action Action, gasLimit, gasUsed Gas, contract Address, err error) ActionResult {
	return ActionResult{
		InputAction:  action,
		GasUsed:      gasUsed,
		RemainingGas: saturatingSub(gasLimit, gasUsed),
		Success:      false,
		Error:        err.Error(),
		Contract:     contract,
	}
}

func actionResultFromSuccess(action Action, gasLimit, gasUsed Gas, contract Address, output []byte) ActionResult {
	return ActionResult{
		InputAction:  action,
		GasUsed:      gasUsed,
		RemainingGas: saturatingSub(gasLimit, gasUsed),
		Success:      true,
		OutputData:   output,
		Contract:     contract,
	}
}
