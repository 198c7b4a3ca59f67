package vm

import (
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// Environment is the shared, per-frame state every host import closure
// reads and mutates: the instantiated guest module, the Backend handle,
// the gas meter, and the queue of promises enqueued so far.
//
// wazero's host functions are registered before the guest module that will
// call them is instantiated, so Environment is constructed first and the
// api.Module handle is published into it only after instantiation succeeds
// -- the same circular-construction pattern the original engine used to
// let host imports call back into the instance that imports them (e.g. to
// invoke the guest's own "allocate" export).
type Environment struct {
	mu sync.Mutex

	backend  Backend
	module   api.Module
	gas      *GasMeter
	debug    bool
	promises []Promise

	invocation InvocationContext
}

// NewEnvironment creates an Environment for a frame with the given gas
// limit and invocation context. The guest module is attached later via
// SetModule once it has been instantiated.
func NewEnvironment(backend Backend, gasLimit Gas, invocation InvocationContext, debug bool) *Environment {
	return &Environment{
		backend:    backend,
		gas:        NewGasMeter(gasLimit),
		invocation: invocation,
		debug:      debug,
	}
}

// SetModule publishes the instantiated guest module, completing the
// circular construction started by NewEnvironment.
func (e *Environment) SetModule(mod api.Module) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.module = mod
}

// Module returns the guest module, erroring if it hasn't been published
// yet (a host import fired during instantiation itself, which cannot
// happen validly).
func (e *Environment) Module() (api.Module, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.module == nil {
		return nil, newCustomError("uninitialized wasm instance")
	}
	return e.module, nil
}

// Memory returns the guest's exactly-one exported memory.
func (e *Environment) Memory() (api.Memory, error) {
	mod, err := e.Module()
	if err != nil {
		return nil, err
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, newCustomError("a contract must have exactly one exported memory")
	}
	return mem, nil
}

// GasLeft returns the remaining gas in this frame's meter.
func (e *Environment) GasLeft() Gas {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gas.Remaining()
}

// GasLimit returns this frame's original gas budget.
func (e *Environment) GasLimit() Gas {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gas.Limit()
}

// ChargeGas debits cost from the frame's remaining gas.
func (e *Environment) ChargeGas(cost Gas) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gas.Charge(cost)
}

// Debug reports whether this frame was instantiated with the debug import
// enabled.
func (e *Environment) Debug() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.debug
}

// PromiseResult returns the PromiseResult this frame's invocation carries,
// if it is a callback invocation.
func (e *Environment) PromiseResult() *PromiseResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invocation.PromiseResult
}

// IsCallback reports whether this frame's invocation is a promise
// callback.
func (e *Environment) IsCallback() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invocation.IsCallback
}

// Backend returns the frame's Backend handle, first publishing the frame's
// remaining gas to it via SetRemainingGas so the Backend call that follows
// sees the current counter.
func (e *Environment) Backend() Backend {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.backend.SetRemainingGas(e.gas.Remaining())
	return e.backend
}

// EnqueuePromise appends a promise to this frame's queue and returns its
// index, used as the guest-visible promise handle.
func (e *Environment) EnqueuePromise(p Promise) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.promises = append(e.promises, p)
	return len(e.promises) - 1
}

// PromiseThen attaches a callback action to the promise at idx. It errors
// if idx is out of range or the promise already has a callback.
func (e *Environment) PromiseThen(idx int, callback Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx < 0 || idx >= len(e.promises) {
		return newCustomError("invalid promise_idx")
	}
	if e.promises[idx].ActionCallback != nil {
		return newCustomError("promise is completed")
	}
	e.promises[idx].ActionCallback = callback
	return nil
}

// Promises returns a snapshot copy of the frame's queued promises, ready
// to be drained by the runner exactly once.
func (e *Environment) Promises() []Promise {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Promise, len(e.promises))
	copy(out, e.promises)
	return out
}
