package vm

import (
	"context"

	"github.com/idena-network/wasmvm/common"
	"github.com/idena-network/wasmvm/log"
	"github.com/idena-network/wasmvm/params"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func debugLog(msg string) { log.Debug("contract debug", "msg", msg) }

// Every host import follows the same five-step shape: read its arguments
// out of guest memory, publish the frame's remaining gas to the Backend
// (Environment.Backend does this on every access), hand the arguments to
// the Backend, debit the gas the Backend
// call reports (process_gas_info's saturating-subtract-then-maybe-abort),
// and marshal the result back across the linear-memory boundary. A fatal
// error at any step is signaled by panicking with an *Error; Runner's
// invocation wrapper recovers it and classifies it the same way a genuine
// WASM trap is classified.
func abortOn(err error) {
	if err != nil {
		panic(err)
	}
}

func chargeResult[T any](env *Environment, r BackendResult[T]) T {
	abortOn(env.ChargeGas(r.Gas))
	if r.Err != nil {
		panic(wrapCustomError(r.Err))
	}
	return r.Value
}

func mustReadRegion(mem api.Memory, ptr uint32, max int) []byte {
	b, err := ReadRegion(mem, ptr, max)
	abortOn(err)
	return b
}

func mustMaybeReadRegion(mem api.Memory, ptr uint32, max int) []byte {
	b, err := MaybeReadRegion(mem, ptr, max)
	abortOn(err)
	return b
}

func mustWrite(mod api.Module, data []byte) uint32 {
	if data == nil {
		return 0
	}
	ptr, err := WriteToContract(context.Background(), mod, data)
	abortOn(err)
	return ptr
}

func mustMemory(env *Environment) api.Memory {
	mem, err := env.Memory()
	abortOn(err)
	return mem
}

// registerHostImports builds the "env" wazero host module backing the ~30
// imports a guest contract links against (the "debug" import is included
// only when debug is true), closing over env so every call operates on this frame's gas
// meter, promise queue, and Backend.
func registerHostImports(rt wazero.Runtime, env *Environment, debug bool) error {
	b := rt.NewHostModuleBuilder("env")

	exportFunc := func(name string, fn interface{}) {
		b.NewFunctionBuilder().WithFunc(fn).Export(name)
	}

	exportFunc("set_storage", func(ctx context.Context, mod api.Module, keyPtr, valuePtr uint32) {
		mem := mustMemory(env)
		key := mustReadRegion(mem, keyPtr, params.MaxStorageKeySize)
		value := mustReadRegion(mem, valuePtr, params.MaxStorageValueSize)
		self := chargeResult(env, env.Backend().OwnAddr())
		chargeResult(env, env.Backend().SetStorage(self, key, value))
	})

	exportFunc("get_storage", func(ctx context.Context, mod api.Module, keyPtr uint32) uint32 {
		mem := mustMemory(env)
		key := mustReadRegion(mem, keyPtr, params.MaxStorageKeySize)
		self := chargeResult(env, env.Backend().OwnAddr())
		value := chargeResult(env, env.Backend().GetStorage(self, key))
		if value == nil {
			return 0
		}
		return mustWrite(mod, value)
	})

	exportFunc("remove_storage", func(ctx context.Context, mod api.Module, keyPtr uint32) {
		mem := mustMemory(env)
		key := mustReadRegion(mem, keyPtr, params.MaxStorageKeySize)
		self := chargeResult(env, env.Backend().OwnAddr())
		chargeResult(env, env.Backend().RemoveStorage(self, key))
	})

	exportFunc("block_timestamp", func(context.Context, api.Module) uint64 {
		return chargeResult(env, env.Backend().BlockTimestamp())
	})
	exportFunc("block_number", func(context.Context, api.Module) uint64 {
		return chargeResult(env, env.Backend().BlockNumber())
	})
	exportFunc("block_seed", func(ctx context.Context, mod api.Module) uint32 {
		return mustWrite(mod, chargeResult(env, env.Backend().BlockSeed()))
	})
	exportFunc("block_header", func(ctx context.Context, mod api.Module) uint32 {
		return mustWrite(mod, chargeResult(env, env.Backend().BlockHeader()))
	})
	exportFunc("min_fee_per_gas", func(ctx context.Context, mod api.Module) uint32 {
		return mustWrite(mod, chargeResult(env, env.Backend().MinFeePerGas()))
	})
	exportFunc("network_size", func(context.Context, api.Module) uint32 {
		return chargeResult(env, env.Backend().NetworkSize())
	})
	exportFunc("epoch", func(context.Context, api.Module) uint32 {
		return uint32(chargeResult(env, env.Backend().Epoch()))
	})
	exportFunc("global_state", func(ctx context.Context, mod api.Module) uint32 {
		return mustWrite(mod, chargeResult(env, env.Backend().GlobalState()))
	})

	exportFunc("balance", func(ctx context.Context, mod api.Module, addrPtr uint32) uint32 {
		mem := mustMemory(env)
		addr := Address(mustReadRegion(mem, addrPtr, params.MaxAddressSize))
		return mustWrite(mod, chargeResult(env, env.Backend().Balance(addr)))
	})
	exportFunc("pay_amount", func(ctx context.Context, mod api.Module, addrPtr, amountPtr uint32) {
		mem := mustMemory(env)
		addr := Address(mustReadRegion(mem, addrPtr, params.MaxAddressSize))
		amount := common.Amount(mustReadRegion(mem, amountPtr, params.MaxAmountSize))
		chargeResult(env, env.Backend().PayAmount(addr, amount))
	})
	exportFunc("burn", func(ctx context.Context, mod api.Module, amountPtr uint32) {
		self := chargeResult(env, env.Backend().OwnAddr())
		chargeResult(env, env.Backend().BurnAll(self))
	})

	exportFunc("caller", func(ctx context.Context, mod api.Module) uint32 {
		return mustWrite(mod, chargeResult(env, env.Backend().Caller()))
	})
	exportFunc("original_caller", func(ctx context.Context, mod api.Module) uint32 {
		return mustWrite(mod, chargeResult(env, env.Backend().OriginalCaller()))
	})
	exportFunc("own_addr", func(ctx context.Context, mod api.Module) uint32 {
		return mustWrite(mod, chargeResult(env, env.Backend().OwnAddr()))
	})
	exportFunc("own_code", func(ctx context.Context, mod api.Module) uint32 {
		return mustWrite(mod, chargeResult(env, env.Backend().OwnCode()))
	})
	exportFunc("code_hash", func(ctx context.Context, mod api.Module, addrPtr uint32) uint32 {
		mem := mustMemory(env)
		addr := Address(mustReadRegion(mem, addrPtr, params.MaxAddressSize))
		return mustWrite(mod, chargeResult(env, env.Backend().CodeHash(addr)))
	})
	exportFunc("contract_addr", func(ctx context.Context, mod api.Module, codePtr, argsPtr, noncePtr uint32) uint32 {
		mem := mustMemory(env)
		code := mustReadRegion(mem, codePtr, params.MaxCodeSize)
		args := mustMaybeReadRegion(mem, argsPtr, params.MaxArgsSize)
		nonce := mustMaybeReadRegion(mem, noncePtr, params.MaxStringSize)
		return mustWrite(mod, chargeResult(env, env.Backend().ContractAddr(code, args, nonce)))
	})
	exportFunc("contract_addr_by_hash", func(ctx context.Context, mod api.Module, hashPtr, argsPtr, noncePtr uint32) uint32 {
		mem := mustMemory(env)
		hash := mustReadRegion(mem, hashPtr, params.MaxStringSize)
		args := mustMaybeReadRegion(mem, argsPtr, params.MaxArgsSize)
		nonce := mustMaybeReadRegion(mem, noncePtr, params.MaxStringSize)
		return mustWrite(mod, chargeResult(env, env.Backend().ContractAddrByHash(hash, args, nonce)))
	})

	exportFunc("keccak256", func(ctx context.Context, mod api.Module, dataPtr uint32) uint32 {
		mem := mustMemory(env)
		data := mustReadRegion(mem, dataPtr, params.MaxArgsSize)
		return mustWrite(mod, chargeResult(env, env.Backend().Keccak256(data)))
	})
	exportFunc("bytes_to_hex", func(ctx context.Context, mod api.Module, dataPtr uint32) uint32 {
		mem := mustMemory(env)
		data := mustReadRegion(mem, dataPtr, params.MaxArgsSize)
		abortOn(env.ChargeGas(Gas(len(data)) + params.BaseBytesToHexCost))
		return mustWrite(mod, []byte(bytesToHex(data)))
	})

	exportFunc("event", func(ctx context.Context, mod api.Module, topicPtr, dataPtr uint32) {
		mem := mustMemory(env)
		topic := mustReadRegion(mem, topicPtr, params.MaxStringSize)
		data := mustMaybeReadRegion(mem, dataPtr, params.MaxArgsSize)
		chargeResult(env, env.Backend().Event(string(topic), data))
	})

	exportFunc("gas_limit", func(context.Context, api.Module) uint64 { return env.GasLimit() })
	exportFunc("gas_left", func(context.Context, api.Module) uint64 { return env.GasLeft() })

	exportFunc("promise_result", func(ctx context.Context, mod api.Module, dataPtrOut uint32) uint32 {
		pr := env.PromiseResult()
		if pr == nil {
			return uint32(PromiseResultEmpty)
		}
		if pr.Kind == PromiseResultValue {
			ptr := mustWrite(mod, pr.Data)
			mem := mustMemory(env)
			abortOn(writeU32(mem, dataPtrOut, ptr))
		}
		return uint32(pr.Kind)
	})

	exportFunc("create_transfer_promise", func(ctx context.Context, mod api.Module, toPtr, amountPtr uint32) uint32 {
		mem := mustMemory(env)
		to := Address(mustReadRegion(mem, toPtr, params.MaxAddressSize))
		amount := common.Amount(mustReadRegion(mem, amountPtr, params.MaxAmountSize))
		if !amount.IsZero() {
			env.Backend().SetRemainingGas(env.GasLeft())
			chargeResult(env, env.Backend().DeductBalance(mustOwnAddr(env), amount))
		}
		self := chargeResult(env, env.Backend().OwnAddr())
		idx := env.EnqueuePromise(Promise{
			PredecessorID: self,
			ReceiverID:    to,
			Action:        TransferAction{To: to, Amount: amount},
		})
		abortOn(env.ChargeGas(params.BasePromiseCost))
		return uint32(idx)
	})

	exportFunc("create_call_function_promise", func(ctx context.Context, mod api.Module, contractPtr, methodPtr, argsPtr, amountPtr uint32, gasLimit uint64) uint32 {
		mem := mustMemory(env)
		contract := Address(mustReadRegion(mem, contractPtr, params.MaxAddressSize))
		method := string(mustReadRegion(mem, methodPtr, params.MaxStringSize))
		args := mustMaybeReadRegion(mem, argsPtr, params.MaxArgsSize)
		amount := common.Amount(mustMaybeReadRegion(mem, amountPtr, params.MaxAmountSize))
		deductBalanceIfNeeded(env, amount)
		self := chargeResult(env, env.Backend().OwnAddr())
		idx := env.EnqueuePromise(Promise{
			PredecessorID: self,
			ReceiverID:    contract,
			Action:        FunctionCallAction{ContractAddress: contract, Method: method, Args: args, Deposit: amount, GasLimit: gasLimit},
		})
		abortOn(env.ChargeGas(gasLimit))
		abortOn(env.ChargeGas(params.BasePromiseCost))
		return uint32(idx)
	})

	exportFunc("create_deploy_contract_promise", func(ctx context.Context, mod api.Module, codePtr, argsPtr, noncePtr, amountPtr uint32, gasLimit uint64) uint32 {
		mem := mustMemory(env)
		code := mustReadRegion(mem, codePtr, params.MaxCodeSize)
		args := mustMaybeReadRegion(mem, argsPtr, params.MaxArgsSize)
		nonce := mustMaybeReadRegion(mem, noncePtr, params.MaxStringSize)
		amount := common.Amount(mustMaybeReadRegion(mem, amountPtr, params.MaxAmountSize))
		deductBalanceIfNeeded(env, amount)
		self := chargeResult(env, env.Backend().OwnAddr())
		idx := env.EnqueuePromise(Promise{
			PredecessorID: self,
			Action:        DeployContractAction{Code: code, Nonce: nonce, Args: args, Deposit: amount, GasLimit: gasLimit},
		})
		abortOn(env.ChargeGas(gasLimit))
		abortOn(env.ChargeGas(params.BasePromiseCost))
		return uint32(idx)
	})

	exportFunc("create_read_contract_data_promise", func(ctx context.Context, mod api.Module, contractPtr, keyPtr uint32, gasLimit uint64) uint32 {
		mem := mustMemory(env)
		contract := Address(mustReadRegion(mem, contractPtr, params.MaxAddressSize))
		key := mustReadRegion(mem, keyPtr, params.MaxStorageKeySize)
		self := chargeResult(env, env.Backend().OwnAddr())
		idx := env.EnqueuePromise(Promise{
			PredecessorID: self,
			ReceiverID:    contract,
			Action:        ReadContractDataAction{ContractAddress: contract, Key: key, GasLimit: gasLimit},
		})
		abortOn(env.ChargeGas(gasLimit))
		abortOn(env.ChargeGas(params.BasePromiseCost))
		return uint32(idx)
	})

	exportFunc("create_get_identity_promise", func(ctx context.Context, mod api.Module, addrPtr uint32, gasLimit uint64) uint32 {
		mem := mustMemory(env)
		addr := Address(mustReadRegion(mem, addrPtr, params.MaxAddressSize))
		self := chargeResult(env, env.Backend().OwnAddr())
		idx := env.EnqueuePromise(Promise{
			PredecessorID: self,
			ReceiverID:    addr,
			Action:        GetIdentityAction{Address: addr, GasLimit: gasLimit},
		})
		abortOn(env.ChargeGas(gasLimit))
		abortOn(env.ChargeGas(params.BasePromiseCost))
		return uint32(idx)
	})

	exportFunc("promise_then", func(ctx context.Context, mod api.Module, promiseIdx uint32, methodPtr, argsPtr uint32, gasLimit uint64) {
		mem := mustMemory(env)
		method := string(mustReadRegion(mem, methodPtr, params.MaxStringSize))
		args := mustMaybeReadRegion(mem, argsPtr, params.MaxArgsSize)
		self := chargeResult(env, env.Backend().OwnAddr())
		abortOn(env.PromiseThen(int(promiseIdx), FunctionCallAction{ContractAddress: self, Method: method, Args: args, GasLimit: gasLimit}))
		abortOn(env.ChargeGas(params.BasePromiseCost))
	})

	exportFunc("abort", func(ctx context.Context, mod api.Module, msgPtr, filePtr, line, col uint32) {
		if msgPtr < 4 || filePtr < 4 {
			panic(newCustomError("invalid abort arguments"))
		}
		mem := mustMemory(env)
		msgLen, err := ReadU32(mem, msgPtr-4)
		abortOn(err)
		fileLen, err := ReadU32(mem, filePtr-4)
		abortOn(err)
		msg, err := ReadUTF16(mem, msgPtr, msgLen)
		abortOn(err)
		file, err := ReadUTF16(mem, filePtr, fileLen)
		abortOn(err)
		panic(newWasmExecutionError("%s, filename: %q line: %d col: %d", msg, file, line, col))
	})

	exportFunc("panic", func(ctx context.Context, mod api.Module, msgPtr uint32) {
		mem := mustMemory(env)
		msg := mustReadRegion(mem, msgPtr, params.MaxStringSize)
		panic(newWasmExecutionError("%s", string(msg)))
	})

	if debug {
		exportFunc("debug", func(ctx context.Context, mod api.Module, msgPtr uint32) {
			mem := mustMemory(env)
			msg := mustReadRegion(mem, msgPtr, params.MaxStringSize)
			debugLog(string(msg))
		})
	}

	_, err := b.Instantiate(context.Background())
	return err
}

func deductBalanceIfNeeded(env *Environment, amount common.Amount) {
	if amount.IsZero() {
		return
	}
	env.Backend().SetRemainingGas(env.GasLeft())
	chargeResult(env, env.Backend().DeductBalance(mustOwnAddr(env), amount))
}

func mustOwnAddr(env *Environment) Address {
	return chargeResult(env, env.Backend().OwnAddr())
}

func writeU32(mem api.Memory, ptr, v uint32) error {
	if !mem.WriteUint32Le(ptr, v) {
		return newCustomError("could not write u32 at %d", ptr)
	}
	return nil
}

const hexDigits = "0123456789abcdef"

func bytesToHex(data []byte) string {
	out := make([]byte, len(data)*2)
	for i, b := range data {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0xf]
	}
	return string(out)
}
