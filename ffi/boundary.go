// Package ffi implements the engine's two outer entry points, the boundary
// a host process crosses to deploy or execute a contract: it decodes the
// wire-format InvocationContext, runs the request through vm.Runner, and
// encodes the resulting ActionResult tree back out.
package ffi

import (
	"context"

	"github.com/idena-network/wasmvm/vm"
	"github.com/idena-network/wasmvm/wire"
)

// Status mirrors the status codes the originating engine's FFI layer
// returns from its entry points: 0 always means "result available, inspect
// the encoded ActionResult"; the non-zero codes are reserved for engine
// bugs the ActionResult tree itself never carries.
type Status uint8

const (
	StatusOK          Status = 0
	StatusPanic       Status = 1
	StatusBadArgument Status = 2
	StatusOutOfGas    Status = 3
	StatusOther       Status = 4
)

// Execute runs method on a contract's code against backend and returns the
// encoded ActionResult tree plus the gas actually used.
func Execute(ctx context.Context, backend vm.Backend, code []byte, method string, args []byte, invocationCtx []byte, gasLimit vm.Gas, debug bool) ([]byte, vm.Gas, Status) {
	invocation, err := wire.DecodeInvocationContext(invocationCtx)
	if err != nil {
		// A malformed invocation context is engine-detected guest misuse,
		// not an engine bug: it gets folded into a failed ActionResult
		// under status 0 like every other Custom error, never a non-zero
		// status code.
		failed := vm.ActionResult{
			InputAction:  vm.FunctionCallAction{Method: method, Args: args, GasLimit: gasLimit},
			RemainingGas: gasLimit,
			Success:      false,
			Error:        err.Error(),
		}
		return wire.EncodeActionResult(failed), 0, StatusOK
	}
	result := vm.NewRunner(debug).Execute(ctx, backend, code, method, args, gasLimit, invocation)
	return wire.EncodeActionResult(result), result.GasUsed, StatusOK
}

// Deploy instantiates code and runs its "deploy" export against backend.
func Deploy(ctx context.Context, backend vm.Backend, code []byte, args []byte, gasLimit vm.Gas, debug bool) ([]byte, vm.Gas, Status) {
	result := vm.NewRunner(debug).Deploy(ctx, backend, code, args, gasLimit)
	return wire.EncodeActionResult(result), result.GasUsed, StatusOK
}
