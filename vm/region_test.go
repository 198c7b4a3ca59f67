package vm

import (
	"context"
	"testing"

	"github.com/idena-network/wasmvm/vm/wasmtest"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// memoryOnlyModule returns an instantiated guest exporting nothing but a
// one-page linear memory and an allocate(size) -> ptr that always returns
// the same Region pointer (1024), rewritten on each call to describe an
// empty data area at 1040 with capacity size, enough to exercise the region
// codec without a real contract toolchain.
func memoryOnlyModule(t *testing.T) (context.Context, api.Module, func()) {
	t.Helper()
	m := &wasmtest.Module{
		Types: []wasmtest.FuncType{
			{Params: []wasmtest.ValType{wasmtest.I32}, Results: []wasmtest.ValType{wasmtest.I32}},
		},
		Funcs: []wasmtest.Func{
			{TypeIdx: 0, Body: wasmtest.Concat(wasmtest.I32Const(1024), wasmtest.I32Const(1040), wasmtest.I32Store(2, 0), wasmtest.I32Const(1028), wasmtest.LocalGet(0), wasmtest.I32Store(2, 0), wasmtest.I32Const(1032), wasmtest.I32Const(0), wasmtest.I32Store(2, 0), wasmtest.I32Const(1024), wasmtest.Return())},
		},
		MemoryMin: 1,
		HasMemory: true,
	}
	m.ExportFunction("allocate", 0)
	m.ExportMemory("memory")

	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	mod, err := rt.Instantiate(ctx, m.Encode())
	require.NoError(t, err)
	return ctx, mod, func() { rt.Close(ctx) }
}

func TestRegionRoundTrip(t *testing.T) {
	ctx, mod, closeFn := memoryOnlyModule(t)
	defer closeFn()

	ptr, err := WriteToContract(ctx, mod, []byte("hello"))
	require.NoError(t, err)
	require.NotZero(t, ptr)

	out, err := ReadRegion(mod.Memory(), ptr, 64)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), out)
}

func TestReadRegionRejectsZeroOffset(t *testing.T) {
	_, mod, closeFn := memoryOnlyModule(t)
	defer closeFn()

	buf := make([]byte, regionSize)
	mod.Memory().Write(2000, buf) // offset field left at 0
	_, err := ReadRegion(mod.Memory(), 2000, 64)
	require.Error(t, err)
}

func TestWriteRegionRejectsOversizedPayload(t *testing.T) {
	_, mod, closeFn := memoryOnlyModule(t)
	defer closeFn()

	r := Region{Offset: 3000, Capacity: 4, Length: 0}
	buf := make([]byte, regionSize)
	putLE32(buf[0:4], r.Offset)
	putLE32(buf[4:8], r.Capacity)
	putLE32(buf[8:12], r.Length)
	mod.Memory().Write(2100, buf)

	err := WriteRegion(mod.Memory(), 2100, []byte("too long for 4 bytes"))
	require.ErrorContains(t, err, "region_too_small")
}

func TestMaybeReadRegionTreatsZeroAsAbsent(t *testing.T) {
	_, mod, closeFn := memoryOnlyModule(t)
	defer closeFn()

	out, err := MaybeReadRegion(mod.Memory(), 0, 64)
	require.NoError(t, err)
	require.Nil(t, out)
}
