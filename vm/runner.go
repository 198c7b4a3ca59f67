package vm

import (
	"context"
	"strings"
	"time"

	"github.com/idena-network/wasmvm/metrics"
	"github.com/idena-network/wasmvm/params"
	"github.com/idena-network/wasmvm/vm/gatekeeper"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Ambient per-frame counters. They are built at package initialization, so
// they are no-ops unless metrics.Enabled was already true at that point.
var (
	callsCounter    = metrics.NewCounter()
	deploysCounter  = metrics.NewCounter()
	outOfGasCounter = metrics.NewCounter()
)

// Runner compiles and executes one guest module per call and drains the
// promise queue it produces, exactly the two jobs spec.md §4.6 assigns the
// scheduler: instantiate a fresh frame, then walk the effects it queued.
type Runner struct {
	debug bool
}

// NewRunner creates a Runner. debug controls whether the "debug" host
// import is registered for instantiated guests.
func NewRunner(debug bool) *Runner {
	return &Runner{debug: debug}
}

// Execute runs method on a previously-deployed contract's code.
func (r *Runner) Execute(ctx context.Context, backend Backend, code []byte, method string, args []byte, gasLimit Gas, invocation InvocationContext) ActionResult {
	if method == "deploy" {
		return r.failResult(FunctionCallAction{Method: method, Args: args, GasLimit: gasLimit}, gasLimit, 0, newCustomError("direct call to deploy"))
	}
	if strings.HasPrefix(method, "_") && !invocation.IsCallback {
		return r.failResult(FunctionCallAction{Method: method, Args: args, GasLimit: gasLimit}, gasLimit, 0, newCustomError("export %q is reserved for callbacks", method))
	}
	callsCounter.Inc(1)
	action := FunctionCallAction{Method: method, Args: args, GasLimit: gasLimit}
	return r.run(ctx, backend, code, method, args, gasLimit, invocation, false, action)
}

// Deploy instantiates code and runs its exported "deploy" function.
func (r *Runner) Deploy(ctx context.Context, backend Backend, code []byte, args []byte, gasLimit Gas) ActionResult {
	deploysCounter.Inc(1)
	// A top-level deploy (as opposed to one a promise schedules) always
	// carries an empty nonce; nonces only distinguish sibling deploys
	// enqueued by the same contract in the same frame.
	action := DeployContractAction{Code: code, Args: args, GasLimit: gasLimit}
	return r.run(ctx, backend, code, "deploy", args, gasLimit, InvocationContext{}, true, action)
}

func (r *Runner) failResult(action Action, gasLimit, gasUsed Gas, err error) ActionResult {
	return actionResultFromError(action, gasLimit, gasUsed, nil, err)
}

// run is the shared body of Deploy and Execute: pre-flight charge,
// gatekeeper validation, instantiation, marshalling, invocation, and
// promise drain.
func (r *Runner) run(ctx context.Context, backend Backend, code []byte, exportName string, args []byte, gasLimit Gas, invocation InvocationContext, isDeploy bool, action Action) ActionResult {
	self := chargeResult0(backend.OwnAddr())

	baseCost := Gas(params.BaseCallCost)
	if isDeploy {
		baseCost = Gas(params.BaseDeployCost)
	}
	if baseCost > gasLimit {
		return ActionResult{
			InputAction:  action,
			GasUsed:      baseCost,
			RemainingGas: 0,
			Success:      false,
			Error:        newCustomError("insufficient gas for base cost").Error(),
			Contract:     self,
		}
	}

	env := NewEnvironment(backend, gasLimit, invocation, r.debug)
	if err := env.ChargeGas(baseCost); err != nil {
		return actionResultFromError(action, gasLimit, env.gas.Used(), self, err)
	}

	if err := gatekeeper.Validate(code); err != nil {
		return actionResultFromError(action, gasLimit, env.gas.Used(), self, wrapCustomError(err))
	}

	// A guest loop that never crosses a host-import call boundary never
	// gets gas-charged; this deadline is the backstop that still catches it.
	deadline := time.Duration(gasLimit) * time.Second / params.GasPerSecond
	if deadline <= 0 {
		deadline = time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	rtConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(params.MaxMemoryPages).
		WithCloseOnContextDone(true)
	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	defer rt.Close(ctx)

	if err := registerHostImports(rt, env, r.debug); err != nil {
		return actionResultFromError(action, gasLimit, env.gas.Used(), self, wrapCustomError(err))
	}

	mod, err := rt.Instantiate(ctx, code)
	if err != nil {
		return actionResultFromError(action, gasLimit, env.gas.Used(), self, wrapCustomError(err))
	}
	defer mod.Close(ctx)
	env.SetModule(mod)

	if mod.Memory() == nil {
		return actionResultFromError(action, gasLimit, env.gas.Used(), self, newCustomError("a contract must have exactly one exported memory"))
	}
	if mod.ExportedFunction("allocate") == nil {
		return actionResultFromError(action, gasLimit, env.gas.Used(), self, newCustomError("guest module does not export allocate"))
	}
	fn := mod.ExportedFunction(exportName)
	if fn == nil {
		return actionResultFromError(action, gasLimit, env.gas.Used(), self, newCustomError("guest module does not export %q", exportName))
	}

	callParams, err := marshalArgs(ctx, mod, fn, args)
	if err != nil {
		return actionResultFromError(action, gasLimit, env.gas.Used(), self, wrapCustomError(err))
	}

	results, invokeErr := invokeGuest(ctx, fn, callParams)
	if invokeErr != nil {
		return actionResultFromError(action, gasLimit, env.gas.Used(), self, invokeErr)
	}

	output := extractOutput(mod, results)

	gasUsed := saturatingSub(gasLimit, env.GasLeft())
	result := actionResultFromSuccess(action, gasLimit, gasUsed, self, output)

	if cr := backend.Commit(); cr.Err != nil {
		return actionResultFromError(action, gasLimit, gasUsed, self, wrapCustomError(cr.Err))
	}

	children, refund := r.drainPromises(ctx, backend, env, self)
	result.AppendSubActionResults(children)
	result.GasUsed = saturatingSub(result.GasUsed, refund)
	result.RemainingGas = saturatingSub(gasLimit, result.GasUsed)

	return result
}

func chargeResult0(r BackendResult[Address]) Address {
	if r.Err != nil {
		return nil
	}
	return r.Value
}

// marshalArgs decodes the tagged argument buffer, writes every non-nil
// element into the guest via write_to_contract, and pads or rejects the
// resulting parameter list against the export's declared arity.
func marshalArgs(ctx context.Context, mod api.Module, fn api.Function, raw []byte) ([]uint64, error) {
	var elems [][]byte
	if len(raw) > 0 {
		decoded, err := ConvertArgs(raw)
		if err != nil {
			return nil, err
		}
		elems = decoded
	}

	paramTypes := fn.Definition().ParamTypes()
	if len(elems) > len(paramTypes) {
		return nil, newCustomError("too many arguments: function accepts %d, got %d", len(paramTypes), len(elems))
	}

	params := make([]uint64, len(paramTypes))
	for i, elem := range elems {
		if elem == nil {
			params[i] = 0
			continue
		}
		ptr, err := WriteToContract(ctx, mod, elem)
		if err != nil {
			return nil, err
		}
		params[i] = uint64(ptr)
	}
	// Parameters beyond len(elems) stay zero, the documented padding for a
	// guest signature that declares more parameters than were supplied.
	return params, nil
}

// invokeGuest calls fn, recovering the panic-based fatal-error signal host
// imports use and classifying any trap into this engine's three-kind error
// taxonomy.
func invokeGuest(ctx context.Context, fn api.Function, callParams []uint64) (results []uint64, err *Error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(*Error); ok {
				err = e
				return
			}
			if e, ok := rec.(error); ok {
				err = newWasmExecutionError("%s", e.Error())
				return
			}
			panic(rec)
		}
	}()

	res, callErr := fn.Call(ctx, callParams...)
	if callErr != nil {
		if ctx.Err() != nil {
			return nil, newOutOfGasError()
		}
		return nil, classifyTrap(callErr)
	}
	return res, nil
}

// classifyTrap distinguishes a metering-exhausted trap (out of gas) from
// any other guest-side execution trap.
func classifyTrap(err error) *Error {
	var vmErr *Error
	if ok := errorsAsVM(err, &vmErr); ok {
		return vmErr
	}
	return newWasmExecutionError("%s", err.Error())
}

func errorsAsVM(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// extractOutput treats a positive first return value as a region pointer
// and reads up to the maximum return size from it; any other result shape
// yields no output.
func extractOutput(mod api.Module, results []uint64) []byte {
	if len(results) == 0 {
		return nil
	}
	ptr := int32(results[0])
	if ptr <= 0 {
		return nil
	}
	out, err := ReadRegion(mod.Memory(), uint32(ptr), params.MaxReturnValueSize)
	if err != nil {
		return nil
	}
	return out
}

// drainPromises walks the frame's queued promises in enqueue order,
// recursively executing each action (and its callback, if any) and
// aggregating the immediate children's unused gas into a refund.
func (r *Runner) drainPromises(ctx context.Context, backend Backend, env *Environment, self Address) ([]ActionResult, Gas) {
	promises := env.Promises()
	var results []ActionResult
	var refund Gas

	for _, p := range promises {
		var triggerResult ActionResult
		var pr PromiseResult

		switch a := p.Action.(type) {
		case FunctionCallAction:
			backend.SetRemainingGas(a.GasLimit)
			child, used := backend.Call(p.ReceiverID, a.Method, a.Args, a.Deposit, a.GasLimit, InvocationContext{})
			refund = saturatingAdd(refund, saturatingSub(a.GasLimit, used))
			if !child.Success && !a.Deposit.IsZero() {
				if cr := backend.AddBalance(p.PredecessorID, a.Deposit); cr.Err == nil {
					backend.Commit()
				}
			}
			pr = NewPromiseResult(child.Success, child.OutputData)
			triggerResult = child
			results = append(results, child)

		case DeployContractAction:
			backend.SetRemainingGas(a.GasLimit)
			child, used := backend.Deploy(a.Code, a.Args, a.Nonce, a.Deposit, a.GasLimit)
			refund = saturatingAdd(refund, saturatingSub(a.GasLimit, used))
			if !child.Success && !a.Deposit.IsZero() {
				if cr := backend.AddBalance(p.PredecessorID, a.Deposit); cr.Err == nil {
					backend.Commit()
				}
			}
			pr = NewPromiseResult(child.Success, child.OutputData)
			triggerResult = child
			results = append(results, child)

		case TransferAction:
			child := r.runTransfer(backend, p.PredecessorID, a)
			triggerResult = child
			pr = NewPromiseResult(child.Success, nil)
			results = append(results, child)

		case ReadContractDataAction:
			child := r.runReadContractData(backend, a)
			triggerResult = child
			pr = NewPromiseResult(child.Success, child.OutputData)
			results = append(results, child)

		case GetIdentityAction:
			child := r.runGetIdentity(backend, a)
			triggerResult = child
			pr = NewPromiseResult(child.Success, child.OutputData)
			results = append(results, child)

		default:
			continue
		}

		if p.ActionCallback == nil {
			continue
		}
		cb, ok := p.ActionCallback.(FunctionCallAction)
		if !ok {
			continue
		}
		backend.SetRemainingGas(cb.GasLimit)
		cbResult, used := backend.Call(self, cb.Method, cb.Args, cb.Deposit, cb.GasLimit, InvocationContext{IsCallback: true, PromiseResult: &pr})
		refund = saturatingAdd(refund, saturatingSub(cb.GasLimit, used))
		if !cbResult.Success && !cb.Deposit.IsZero() {
			if cr := backend.AddBalance(p.PredecessorID, cb.Deposit); cr.Err == nil {
				backend.Commit()
			}
		}
		results = append(results, cbResult)
		_ = triggerResult
	}

	return results, refund
}

func (r *Runner) runTransfer(backend Backend, predecessor Address, a TransferAction) ActionResult {
	cr := backend.AddBalance(a.To, a.Amount)
	action := Action(a)
	if cr.Err != nil {
		// §9 open question (a): credit failures are surfaced as a failed
		// child result rather than silently tolerated.
		return actionResultFromError(action, 0, cr.Gas, nil, wrapCustomError(cr.Err))
	}
	backend.Commit()
	return actionResultFromSuccess(action, 0, cr.Gas, nil, nil)
}

func (r *Runner) runReadContractData(backend Backend, a ReadContractDataAction) ActionResult {
	res := backend.ReadContractData(a.ContractAddress, a.Key)
	action := Action(a)
	if res.Gas > a.GasLimit {
		// §4.6 point 4: the reported cost exceeded the promise's reserved
		// gas limit; synthesize an out-of-gas failure capped at that limit
		// rather than charging the frame more than it budgeted for.
		return actionResultFromError(action, a.GasLimit, a.GasLimit, a.ContractAddress, newOutOfGasError())
	}
	if res.Err != nil {
		return actionResultFromError(action, a.GasLimit, res.Gas, a.ContractAddress, wrapCustomError(res.Err))
	}
	return actionResultFromSuccess(action, a.GasLimit, res.Gas, a.ContractAddress, res.Value)
}

func (r *Runner) runGetIdentity(backend Backend, a GetIdentityAction) ActionResult {
	res := backend.Identity(a.Address)
	action := Action(a)
	if res.Gas > a.GasLimit {
		return actionResultFromError(action, a.GasLimit, a.GasLimit, a.Address, newOutOfGasError())
	}
	if res.Err != nil {
		return actionResultFromError(action, a.GasLimit, res.Gas, a.Address, wrapCustomError(res.Err))
	}
	return actionResultFromSuccess(action, a.GasLimit, res.Gas, a.Address, res.Value)
}
