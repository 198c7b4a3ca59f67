package ffi

import (
	"context"
	"testing"

	"github.com/idena-network/wasmvm/vm"
	"github.com/idena-network/wasmvm/vm/wasmtest"
	"github.com/idena-network/wasmvm/wire"
	"github.com/stretchr/testify/require"
)

// echoFixture exports allocate, a deploy that stores its single argument
// under a fixed storage key, and "get", which reads it back -- the
// smallest module this boundary's two entry points need to drive end to
// end.
func echoFixture() []byte {
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
			{Params: []wasmtest.ValType{wasmtest.I32}, Results: nil},                               // 2: deploy
			{Params: nil, Results: []wasmtest.ValType{wasmtest.I32}},                                // 3: get
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
	setStorageIdx := uint32(0)
	getStorageIdx := uint32(1)

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

func TestDeployAndExecuteRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := vm.NewMockBackend(vm.Address("contract-1"))
	code := echoFixture()

	deployArgs := vm.EncodePlainArg([]byte{0x2a})
	deployOut, deployGasUsed, status := Deploy(ctx, backend, code, deployArgs, 10_000_000, false)
	require.Equal(t, StatusOK, status)
	require.NotZero(t, deployGasUsed)

	deployResult, err := wire.DecodeActionResult(deployOut)
	require.NoError(t, err)
	require.True(t, deployResult.Success, deployResult.Error)

	invocation := wire.EncodeInvocationContext(vm.InvocationContext{})
	getOut, _, status := Execute(ctx, backend, code, "get", nil, invocation, 10_000_000, false)
	require.Equal(t, StatusOK, status)

	getResult, err := wire.DecodeActionResult(getOut)
	require.NoError(t, err)
	require.True(t, getResult.Success, getResult.Error)
	require.Equal(t, []byte{0x2a}, getResult.OutputData)
}

func TestExecuteMalformedInvocationContextYieldsFailedResultNotBadStatus(t *testing.T) {
	ctx := context.Background()
	backend := vm.NewMockBackend(vm.Address("contract-1"))
	code := echoFixture()

	out, gasUsed, status := Execute(ctx, backend, code, "get", nil, []byte{0x01}, 10_000_000, false)
	require.Equal(t, StatusOK, status)
	require.Zero(t, gasUsed)

	result, err := wire.DecodeActionResult(out)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)
}
