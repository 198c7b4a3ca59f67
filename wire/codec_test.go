package wire

import (
	"testing"

	"github.com/idena-network/wasmvm/vm"
	"github.com/stretchr/testify/require"
)

func TestActionRoundTrip(t *testing.T) {
	cases := []vm.Action{
		vm.FunctionCallAction{ContractAddress: vm.Address("r"), Method: "get", Args: []byte{1, 2}, Deposit: []byte{5}, GasLimit: 1000},
		vm.DeployContractAction{Code: []byte{0, 1, 2}, Nonce: []byte{9, 9}, Args: nil, Deposit: []byte{1}, GasLimit: 2000},
		vm.TransferAction{To: vm.Address("receiver"), Amount: []byte{10}},
		vm.ReadContractDataAction{ContractAddress: vm.Address("c"), Key: []byte("k"), GasLimit: 300},
		vm.GetIdentityAction{Address: vm.Address("id"), GasLimit: 400},
	}
	for _, a := range cases {
		encoded := EncodeAction(a)
		decoded, err := DecodeAction(encoded)
		require.NoError(t, err)
		require.Equal(t, a, decoded)
	}
}

func TestActionResultRoundTrip(t *testing.T) {
	r := vm.ActionResult{
		InputAction: vm.FunctionCallAction{Method: "get", GasLimit: 100},
		GasUsed:     500,
		RemainingGas: 9500,
		Success:     true,
		OutputData:  []byte("out"),
		Contract:    vm.Address("self"),
		SubActionResults: []vm.ActionResult{
			{
				InputAction: vm.TransferAction{To: vm.Address("x"), Amount: []byte{1}},
				GasUsed:     100,
				Success:     true,
			},
		},
	}
	encoded := EncodeActionResult(r)
	decoded, err := DecodeActionResult(encoded)
	require.NoError(t, err)
	require.Equal(t, r, decoded)
}

func TestActionResultEncodingIsIdempotent(t *testing.T) {
	r := vm.ActionResult{Success: false, Error: "boom", GasUsed: 1}
	require.Equal(t, EncodeActionResult(r), EncodeActionResult(r))
}

func TestInvocationContextRoundTrip(t *testing.T) {
	pr := vm.PromiseResult{Kind: vm.PromiseResultValue, Data: []byte("v")}
	ic := vm.InvocationContext{IsCallback: true, PromiseResult: &pr}
	encoded := EncodeInvocationContext(ic)
	decoded, err := DecodeInvocationContext(encoded)
	require.NoError(t, err)
	require.Equal(t, ic, decoded)
}

func TestInvocationContextWithoutPromiseResult(t *testing.T) {
	ic := vm.InvocationContext{IsCallback: false}
	encoded := EncodeInvocationContext(ic)
	decoded, err := DecodeInvocationContext(encoded)
	require.NoError(t, err)
	require.Equal(t, ic, decoded)
}
