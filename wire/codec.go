// Package wire implements a concrete, round-trippable binary encoding for
// the Action/ActionResult/Promise/InvocationContext values that cross the
// outer foreign-function boundary. The originating engine left this format
// to an externally-governed schema (see SPEC_FULL.md's REDESIGN FLAGS); this
// package defines one explicitly so the boundary can be exercised and
// tested end-to-end, using the same length-delimited, tag-prefixed shape
// vm/args.go already uses for the inner argument buffer.
package wire

import (
	"github.com/idena-network/wasmvm/vm"
)

const (
	tagFunctionCall = iota + 1
	tagDeployContract
	tagTransfer
	tagReadContractData
	tagGetIdentity
)

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}

func readULEB(b []byte, pos int) (uint32, int, error) {
	var result uint32
	var shift uint
	n := 0
	for {
		if pos+n >= len(b) {
			return 0, 0, errTruncated
		}
		byt := b[pos+n]
		result |= uint32(byt&0x7f) << shift
		n++
		if byt&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, n, nil
}

type wireError string

func (e wireError) Error() string { return string(e) }

const errTruncated = wireError("wire: truncated buffer")

func putBytes(out []byte, b []byte) []byte {
	out = append(out, uleb(uint32(len(b)))...)
	return append(out, b...)
}

func readBytes(b []byte, pos int) ([]byte, int, error) {
	length, n, err := readULEB(b, pos)
	if err != nil {
		return nil, 0, err
	}
	pos += n
	if pos+int(length) > len(b) {
		return nil, 0, errTruncated
	}
	if length == 0 {
		// An empty field decodes as nil, the value EncodeX wrote it from.
		return nil, pos, nil
	}
	return b[pos : pos+int(length)], pos + int(length), nil
}

// EncodeAction encodes a concrete vm.Action variant with a leading kind tag.
func EncodeAction(a vm.Action) []byte {
	switch action := a.(type) {
	case vm.FunctionCallAction:
		out := []byte{tagFunctionCall}
		out = putBytes(out, action.ContractAddress)
		out = putBytes(out, []byte(action.Method))
		out = putBytes(out, action.Args)
		out = putBytes(out, action.Deposit)
		out = append(out, uleb(uint32(action.GasLimit))...)
		return out
	case vm.DeployContractAction:
		out := []byte{tagDeployContract}
		out = putBytes(out, action.Code)
		out = putBytes(out, action.Nonce)
		out = putBytes(out, action.Args)
		out = putBytes(out, action.Deposit)
		out = append(out, uleb(uint32(action.GasLimit))...)
		return out
	case vm.TransferAction:
		out := []byte{tagTransfer}
		out = putBytes(out, action.To)
		out = putBytes(out, action.Amount)
		return out
	case vm.ReadContractDataAction:
		out := []byte{tagReadContractData}
		out = putBytes(out, action.ContractAddress)
		out = putBytes(out, action.Key)
		out = append(out, uleb(uint32(action.GasLimit))...)
		return out
	case vm.GetIdentityAction:
		out := []byte{tagGetIdentity}
		out = putBytes(out, action.Address)
		out = append(out, uleb(uint32(action.GasLimit))...)
		return out
	default:
		return nil
	}
}

// DecodeAction is EncodeAction's inverse.
func DecodeAction(b []byte) (vm.Action, error) {
	if len(b) == 0 {
		return nil, errTruncated
	}
	tag, pos := b[0], 1
	switch tag {
	case tagFunctionCall:
		contract, pos2, err := readBytes(b, pos)
		if err != nil {
			return nil, err
		}
		method, pos3, err := readBytes(b, pos2)
		if err != nil {
			return nil, err
		}
		args, pos4, err := readBytes(b, pos3)
		if err != nil {
			return nil, err
		}
		deposit, pos5, err := readBytes(b, pos4)
		if err != nil {
			return nil, err
		}
		gasLimit, _, err := readULEB(b, pos5)
		if err != nil {
			return nil, err
		}
		return vm.FunctionCallAction{
			ContractAddress: vm.Address(contract),
			Method:          string(method),
			Args:            args,
			Deposit:         deposit,
			GasLimit:        vm.Gas(gasLimit),
		}, nil
	case tagDeployContract:
		code, pos2, err := readBytes(b, pos)
		if err != nil {
			return nil, err
		}
		nonce, pos3, err := readBytes(b, pos2)
		if err != nil {
			return nil, err
		}
		args, pos4, err := readBytes(b, pos3)
		if err != nil {
			return nil, err
		}
		deposit, pos5, err := readBytes(b, pos4)
		if err != nil {
			return nil, err
		}
		gasLimit, _, err := readULEB(b, pos5)
		if err != nil {
			return nil, err
		}
		return vm.DeployContractAction{Code: code, Nonce: nonce, Args: args, Deposit: deposit, GasLimit: vm.Gas(gasLimit)}, nil
	case tagTransfer:
		to, pos2, err := readBytes(b, pos)
		if err != nil {
			return nil, err
		}
		amount, _, err := readBytes(b, pos2)
		if err != nil {
			return nil, err
		}
		return vm.TransferAction{To: vm.Address(to), Amount: amount}, nil
	case tagReadContractData:
		contract, pos2, err := readBytes(b, pos)
		if err != nil {
			return nil, err
		}
		key, pos3, err := readBytes(b, pos2)
		if err != nil {
			return nil, err
		}
		gasLimit, _, err := readULEB(b, pos3)
		if err != nil {
			return nil, err
		}
		return vm.ReadContractDataAction{ContractAddress: vm.Address(contract), Key: key, GasLimit: vm.Gas(gasLimit)}, nil
	case tagGetIdentity:
		addr, pos2, err := readBytes(b, pos)
		if err != nil {
			return nil, err
		}
		gasLimit, _, err := readULEB(b, pos2)
		if err != nil {
			return nil, err
		}
		return vm.GetIdentityAction{Address: vm.Address(addr), GasLimit: vm.Gas(gasLimit)}, nil
	default:
		return nil, wireError("wire: unknown action tag")
	}
}

// EncodeActionResult encodes an ActionResult, recursing into its
// sub-action-results in order.
func EncodeActionResult(r vm.ActionResult) []byte {
	var out []byte
	if r.InputAction != nil {
		out = putBytes(out, EncodeAction(r.InputAction))
	} else {
		out = putBytes(out, nil)
	}
	out = append(out, uleb(uint32(r.GasUsed))...)
	out = append(out, uleb(uint32(r.RemainingGas))...)
	if r.Success {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = putBytes(out, []byte(r.Error))
	out = putBytes(out, r.OutputData)
	out = putBytes(out, r.Contract)
	out = append(out, uleb(uint32(len(r.SubActionResults)))...)
	for _, sub := range r.SubActionResults {
		out = putBytes(out, EncodeActionResult(sub))
	}
	return out
}

// DecodeActionResult is EncodeActionResult's inverse.
func DecodeActionResult(b []byte) (vm.ActionResult, error) {
	var r vm.ActionResult
	pos := 0

	actionBytes, pos, err := readBytes(b, pos)
	if err != nil {
		return r, err
	}
	if len(actionBytes) > 0 {
		action, err := DecodeAction(actionBytes)
		if err != nil {
			return r, err
		}
		r.InputAction = action
	}

	gasUsed, n, err := readULEB(b, pos)
	if err != nil {
		return r, err
	}
	pos += n
	r.GasUsed = vm.Gas(gasUsed)

	remainingGas, n, err := readULEB(b, pos)
	if err != nil {
		return r, err
	}
	pos += n
	r.RemainingGas = vm.Gas(remainingGas)

	if pos >= len(b) {
		return r, errTruncated
	}
	r.Success = b[pos] != 0
	pos++

	errMsg, pos, err := readBytes(b, pos)
	if err != nil {
		return r, err
	}
	r.Error = string(errMsg)

	output, pos, err := readBytes(b, pos)
	if err != nil {
		return r, err
	}
	r.OutputData = output

	contract, pos, err := readBytes(b, pos)
	if err != nil {
		return r, err
	}
	r.Contract = vm.Address(contract)

	count, n, err := readULEB(b, pos)
	if err != nil {
		return r, err
	}
	pos += n
	if count > 0 {
		r.SubActionResults = make([]vm.ActionResult, 0, count)
	}
	for i := uint32(0); i < count; i++ {
		subBytes, next, err := readBytes(b, pos)
		if err != nil {
			return r, err
		}
		pos = next
		sub, err := DecodeActionResult(subBytes)
		if err != nil {
			return r, err
		}
		r.SubActionResults = append(r.SubActionResults, sub)
	}

	return r, nil
}

// EncodeInvocationContext encodes an InvocationContext: the is_callback
// flag followed by an optional encoded PromiseResult.
func EncodeInvocationContext(ic vm.InvocationContext) []byte {
	out := []byte{0}
	if ic.IsCallback {
		out[0] = 1
	}
	if ic.PromiseResult == nil {
		out = append(out, 0)
		return out
	}
	out = append(out, 1)
	out = append(out, byte(ic.PromiseResult.Kind))
	out = putBytes(out, ic.PromiseResult.Data)
	return out
}

// DecodeInvocationContext is EncodeInvocationContext's inverse.
func DecodeInvocationContext(b []byte) (vm.InvocationContext, error) {
	var ic vm.InvocationContext
	if len(b) < 2 {
		return ic, errTruncated
	}
	ic.IsCallback = b[0] != 0
	if b[1] == 0 {
		return ic, nil
	}
	if len(b) < 3 {
		return ic, errTruncated
	}
	kind := vm.PromiseResultKind(b[2])
	data, _, err := readBytes(b, 3)
	if err != nil {
		return ic, err
	}
	ic.PromiseResult = &vm.PromiseResult{Kind: kind, Data: data}
	return ic, nil
}
