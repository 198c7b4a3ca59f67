package vm

import (
	"context"
	"testing"

	"github.com/idena-network/wasmvm/vm/wasmtest"
	"github.com/stretchr/testify/require"
)

// storageFixture builds a module with three exports -- allocate, deploy,
// get -- backing scenario 1 of the testable properties ("deploy a contract
// whose init writes x to storage under a fixed key, then read it back").
// Both deploy and get reconstruct the same Region descriptor, pointing at
// a literal key byte they store into their own memory at call time, since
// each invocation gets a fresh instance with zeroed memory.
func storageFixture() []byte {
	const (
		keyByteOffset   = 4000
		keyRegionOffset = 4010
	)
	buildKeyRegion := func() []byte {
		return wasmtest.Concat(
			wasmtest.I32Const(keyByteOffset), wasmtest.I32Const(1), wasmtest.I32Store(2, 0),
			wasmtest.I32Const(keyRegionOffset), wasmtest.I32Const(keyByteOffset), wasmtest.I32Store(2, 0),
			wasmtest.I32Const(keyRegionOffset+4), wasmtest.I32Const(1), wasmtest.I32Store(2, 0),
			wasmtest.I32Const(keyRegionOffset+8), wasmtest.I32Const(1), wasmtest.I32Store(2, 0),
		)
	}

	m := &wasmtest.Module{
		Types: []wasmtest.FuncType{
			{Params: []wasmtest.ValType{wasmtest.I32}, Results: []wasmtest.ValType{wasmtest.I32}}, // 0: allocate/get_storage
			{Params: []wasmtest.ValType{wasmtest.I32, wasmtest.I32}, Results: nil},                 // 1: set_storage
			{Params: []wasmtest.ValType{wasmtest.I32}, Results: nil},                                // 2: deploy
			{Params: nil, Results: []wasmtest.ValType{wasmtest.I32}},                                 // 3: get (no params)
		},
		Imports: []wasmtest.Import{
			{Module: "env", Name: "set_storage", TypeIdx: 1},
			{Module: "env", Name: "get_storage", TypeIdx: 0},
		},
		MemoryMin: 1,
		HasMemory: true,
	}

	allocateIdx := m.FuncIdx(0)
	deployIdx := m.FuncIdx(1)
	getIdx := m.FuncIdx(2)
	setStorageIdx := uint32(0) // first import
	getStorageIdx := uint32(1) // second import

	m.Funcs = []wasmtest.Func{
		{TypeIdx: 0, Body: wasmtest.Concat(wasmtest.I32Const(1024), wasmtest.I32Const(1040), wasmtest.I32Store(2, 0), wasmtest.I32Const(1028), wasmtest.LocalGet(0), wasmtest.I32Store(2, 0), wasmtest.I32Const(1032), wasmtest.I32Const(0), wasmtest.I32Store(2, 0), wasmtest.I32Const(1024), wasmtest.Return())},
		{TypeIdx: 2, Body: wasmtest.Concat(
			buildKeyRegion(),
			wasmtest.I32Const(keyRegionOffset), wasmtest.LocalGet(0), wasmtest.Call(setStorageIdx),
		)},
		{TypeIdx: 3, Body: wasmtest.Concat(
			buildKeyRegion(),
			wasmtest.I32Const(keyRegionOffset), wasmtest.Call(getStorageIdx),
			wasmtest.Return(),
		)},
	}

	m.ExportMemory("memory")
	m.ExportFunction("allocate", int(allocateIdx))
	m.ExportFunction("deploy", int(deployIdx))
	m.ExportFunction("get", int(getIdx))

	return m.Encode()
}

func TestRunnerDeployAndGet(t *testing.T) {
	ctx := context.Background()
	self := Address("contract-1")
	backend := NewMockBackend(self)
	runner := NewRunner(false)
	code := storageFixture()

	deployArgs := EncodePlainArg([]byte{0x2a})
	deployResult := runner.Deploy(ctx, backend, code, deployArgs, 10_000_000)
	require.True(t, deployResult.Success, deployResult.Error)
	require.Empty(t, deployResult.SubActionResults)
	require.NotZero(t, deployResult.GasUsed)

	getResult := runner.Execute(ctx, backend, code, "get", nil, 10_000_000, InvocationContext{})
	require.True(t, getResult.Success, getResult.Error)
	require.Equal(t, []byte{0x2a}, getResult.OutputData)
}

func TestRunnerRejectsDirectDeployCall(t *testing.T) {
	ctx := context.Background()
	backend := NewMockBackend(Address("c"))
	runner := NewRunner(false)
	result := runner.Execute(ctx, backend, storageFixture(), "deploy", EncodePlainArg([]byte{1}), 1_000_000, InvocationContext{})
	require.False(t, result.Success)
	require.Contains(t, result.Error, "direct call to deploy")
}

func TestRunnerPreflightChargeTooHigh(t *testing.T) {
	ctx := context.Background()
	backend := NewMockBackend(Address("c"))
	runner := NewRunner(false)
	result := runner.Deploy(ctx, backend, storageFixture(), nil, 10)
	require.False(t, result.Success)
}

// transferFixture builds a module exporting allocate, a no-op deploy, and a
// send method that enqueues a single Transfer promise via
// create_transfer_promise, backing scenario 2 of the testable properties.
func transferFixture() []byte {
	m := &wasmtest.Module{
		Types: []wasmtest.FuncType{
			{Params: []wasmtest.ValType{wasmtest.I32}, Results: []wasmtest.ValType{wasmtest.I32}}, // 0: allocate
			{Params: nil, Results: nil},                                                            // 1: deploy
			{Params: []wasmtest.ValType{wasmtest.I32, wasmtest.I32}, Results: []wasmtest.ValType{wasmtest.I32}}, // 2: create_transfer_promise
			{Params: nil, Results: nil},                                                            // 3: send
		},
		Imports: []wasmtest.Import{
			{Module: "env", Name: "create_transfer_promise", TypeIdx: 2},
		},
		MemoryMin: 1,
		HasMemory: true,
	}

	allocateIdx := m.FuncIdx(0)
	deployIdx := m.FuncIdx(1)
	sendIdx := m.FuncIdx(2)
	createTransferIdx := uint32(0)

	const (
		toByteOffset     = 5000
		toRegionOffset   = 5010
		amtByteOffset    = 5020
		amtRegionOffset  = 5030
	)
	region := func(byteOffset int32, value int32, regionOffset int32) []byte {
		return wasmtest.Concat(
			wasmtest.I32Const(byteOffset), wasmtest.I32Const(value), wasmtest.I32Store(2, 0),
			wasmtest.I32Const(regionOffset), wasmtest.I32Const(byteOffset), wasmtest.I32Store(2, 0),
			wasmtest.I32Const(regionOffset+4), wasmtest.I32Const(1), wasmtest.I32Store(2, 0),
			wasmtest.I32Const(regionOffset+8), wasmtest.I32Const(1), wasmtest.I32Store(2, 0),
		)
	}

	m.Funcs = []wasmtest.Func{
		{TypeIdx: 0, Body: wasmtest.Concat(wasmtest.I32Const(1024), wasmtest.I32Const(1040), wasmtest.I32Store(2, 0), wasmtest.I32Const(1028), wasmtest.LocalGet(0), wasmtest.I32Store(2, 0), wasmtest.I32Const(1032), wasmtest.I32Const(0), wasmtest.I32Store(2, 0), wasmtest.I32Const(1024), wasmtest.Return())},
		{TypeIdx: 1, Body: nil},
		{TypeIdx: 3, Body: wasmtest.Concat(
			region(toByteOffset, 0x02, toRegionOffset),
			region(amtByteOffset, 0x0A, amtRegionOffset),
			wasmtest.I32Const(toRegionOffset), wasmtest.I32Const(amtRegionOffset), wasmtest.Call(createTransferIdx),
			wasmtest.Drop(),
		)},
	}

	m.ExportMemory("memory")
	m.ExportFunction("allocate", int(allocateIdx))
	m.ExportFunction("deploy", int(deployIdx))
	m.ExportFunction("send", int(sendIdx))

	return m.Encode()
}

func TestRunnerTransferPromise(t *testing.T) {
	ctx := context.Background()
	self := Address("sender")
	backend := NewMockBackend(self)
	backend.SetBalance(self, []byte{0x10})
	runner := NewRunner(false)
	code := transferFixture()

	result := runner.Execute(ctx, backend, code, "send", nil, 10_000_000, InvocationContext{})
	require.True(t, result.Success, result.Error)
	require.Len(t, result.SubActionResults, 1)

	child := result.SubActionResults[0]
	require.True(t, child.Success)
	transfer, ok := child.InputAction.(TransferAction)
	require.True(t, ok)
	require.Equal(t, []byte{0x0A}, []byte(transfer.Amount))
}
