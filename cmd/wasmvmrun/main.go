// Command wasmvmrun is a small devtool that drives the execution engine
// directly against an in-memory Backend, the way go-ethereum's own cmd/
// tools wrap core packages for manual testing rather than requiring a full
// node.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/idena-network/wasmvm/common"
	"github.com/idena-network/wasmvm/vm"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "wasmvmrun",
		Usage: "run a WASM contract against an in-memory backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "code", Required: true, Usage: "path to the .wasm module"},
			&cli.StringFlag{Name: "method", Usage: "exported method to call (omit to deploy)"},
			&cli.StringFlag{Name: "args", Usage: "comma-separated hex argument blobs"},
			&cli.Uint64Flag{Name: "gas", Value: 10_000_000, Usage: "gas limit"},
			&cli.BoolFlag{Name: "debug", Usage: "enable the debug host import"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	code, err := os.ReadFile(c.String("code"))
	if err != nil {
		return fmt.Errorf("reading code: %w", err)
	}

	var elems [][]byte
	if raw := c.String("args"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			b, err := decodeHexArg(part)
			if err != nil {
				return fmt.Errorf("decoding argument %q: %w", part, err)
			}
			elems = append(elems, b)
		}
	}
	argBuf := vm.EncodeStructuredArgs(elems)

	self := vm.Address("devtool-contract")
	backend := vm.NewMockBackend(self)
	runner := vm.NewRunner(c.Bool("debug"))

	backend.Deployer = func(code, args, nonce []byte, deposit common.Amount, gasLimit vm.Gas, self vm.Address) (vm.ActionResult, vm.Gas) {
		result := runner.Deploy(context.Background(), backend, code, args, gasLimit)
		return result, result.GasUsed
	}
	backend.Caller_ = func(contract vm.Address, method string, args []byte, deposit common.Amount, gasLimit vm.Gas, invocation vm.InvocationContext) (vm.ActionResult, vm.Gas) {
		codeRes := backend.ContractCode(contract)
		if codeRes.Err != nil {
			return vm.ActionResult{Success: false, Error: codeRes.Err.Error()}, 0
		}
		result := runner.Execute(context.Background(), backend, codeRes.Value, method, args, gasLimit, invocation)
		return result, result.GasUsed
	}

	gasLimit := vm.Gas(c.Uint64("gas"))
	var result vm.ActionResult
	if method := c.String("method"); method != "" {
		result = runner.Execute(context.Background(), backend, code, method, argBuf, gasLimit, vm.InvocationContext{})
	} else {
		result = runner.Deploy(context.Background(), backend, code, argBuf, gasLimit)
	}

	printResult(result, 0)
	return nil
}

func printResult(r vm.ActionResult, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%ssuccess=%v gas_used=%d remaining_gas=%d\n", indent, r.Success, r.GasUsed, r.RemainingGas)
	if r.Error != "" {
		fmt.Printf("%s  error=%q\n", indent, r.Error)
	}
	if len(r.OutputData) > 0 {
		fmt.Printf("%s  output=%x\n", indent, r.OutputData)
	}
	for _, sub := range r.SubActionResults {
		printResult(sub, depth+1)
	}
}

func decodeHexArg(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, nil
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		b, err := hexByte(s[i*2 : i*2+2])
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func hexByte(s string) (byte, error) {
	var v byte
	for _, c := range []byte(s) {
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= c - '0'
		case c >= 'a' && c <= 'f':
			v |= c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v |= c - 'A' + 10
		default:
			return 0, fmt.Errorf("invalid hex digit %q", c)
		}
	}
	return v, nil
}
