package gatekeeper

import (
	"testing"

	"github.com/idena-network/wasmvm/vm/wasmtest"
	"github.com/stretchr/testify/require"
)

func buildModule(body []byte) []byte {
	m := &wasmtest.Module{
		Types: []wasmtest.FuncType{{Params: nil, Results: []wasmtest.ValType{wasmtest.I32}}},
		Funcs: []wasmtest.Func{{TypeIdx: 0, Body: body}},
	}
	m.ExportFunction("run", 0)
	return m.Encode()
}

func TestValidateAcceptsIntegerOnlyModule(t *testing.T) {
	body := wasmtest.Concat(
		wasmtest.I32Const(1),
		wasmtest.I32Const(2),
		wasmtest.I32Add(),
		wasmtest.Return(),
	)
	require.NoError(t, Validate(buildModule(body)))
}

func TestValidateRejectsFloatConst(t *testing.T) {
	body := wasmtest.Concat(wasmtest.F32Const(0), wasmtest.Return())
	err := Validate(buildModule(body))
	require.Error(t, err)
	var disallowed *ErrDisallowedOpcode
	require.ErrorAs(t, err, &disallowed)
	require.Equal(t, byte(0x43), disallowed.Opcode)
}

func TestValidateRejectsTruncatedModule(t *testing.T) {
	err := Validate([]byte{0x00, 0x61, 0x73})
	require.Error(t, err)
}

func TestValidateRejectsNonWasmInput(t *testing.T) {
	err := Validate([]byte("not wasm at all"))
	require.Error(t, err)
}
