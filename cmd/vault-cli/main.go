package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via VAULT_RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("VAULT_RPC_TOKEN")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	command, rest := args[0], args[1:]
	switch command {
	case "keygen":
		return runKeygen(rest, stdout, stderr)
	case "address":
		return runAddress(rest, stdout, stderr)
	case "query":
		return runQueryCommand(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	}
	if spec, ok := invokeCommands[command]; ok {
		return runInvoke(spec, rest, stdout, stderr)
	}
	fmt.Fprintf(stderr, "Unknown command: %s\n", command)
	fmt.Fprintln(stderr, usage())
	return 1
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("VAULT_RPC_URL")); v != "" {
		return v
	}
	return "http://127.0.0.1:8090"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func usage() string {
	return strings.TrimSpace(`Usage:
  vault-cli [--rpc URL] <command> [flags]

Keys:
  keygen          Generate a key and store it in an encrypted keystore
  address         Print the address recorded in a keystore

Vault:
  initialize      Create the offer (signed by the seller)
  deposit         Swap buy tokens for sell tokens at the current price
  redeem          Queue sell tokens for redemption in the current epoch
  cancel          Withdraw a pending redemption request
  claim           Collect the payout of a settled request
  settle          Close the current epoch (signed by the treasury)
  update-price    Change the offer price (signed by the seller)
  claim-leftover  Withdraw vault-held tokens (signed by the seller)

Tokens:
  transfer        Move tokens between accounts
  transfer-from   Move tokens using an allowance
  approve         Set a spender allowance

Queries:
  query <offer|request|requests|epoch|rate|balance|allowance|events|receipt|chain-id>

Environment:
  VAULT_RPC_URL    RPC endpoint (default http://127.0.0.1:8090)
  VAULT_RPC_TOKEN  bearer token for invocations
  VAULT_KEY_PASS   keystore passphrase (prompted when unset)
`)
}
