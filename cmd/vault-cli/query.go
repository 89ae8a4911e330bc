package main

import (
	"flag"
	"fmt"
	"io"
	"math/big"
	"strings"
)

func parseDecimal(v string) (*big.Int, bool) {
	return new(big.Int).SetString(strings.TrimSpace(v), 10)
}

func runQueryCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, queryUsage())
		return 1
	}
	fs := flag.NewFlagSet("query "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "bech32 account")
	token := fs.String("token", "", "token symbol")
	owner := fs.String("owner", "", "allowance owner")
	spender := fs.String("spender", "", "allowance spender")
	epoch := fs.Uint("epoch", 0, "epoch id")
	eventType := fs.String("type", "", "event type filter")
	afterID := fs.Uint64("after", 0, "return events after this id")
	limit := fs.Int("limit", 0, "maximum events to return")
	digest := fs.String("digest", "", "invocation digest")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	var (
		method string
		params []interface{}
	)
	required := func(name, value string) bool {
		if strings.TrimSpace(value) == "" {
			fmt.Fprintf(stderr, "Error: --%s is required\n", name)
			return false
		}
		return true
	}
	switch args[0] {
	case "offer":
		method = "vault_getOffer"
	case "epoch":
		method = "vault_getEpoch"
	case "chain-id":
		method = "vault_chainId"
	case "requests":
		method = "vault_listRequests"
	case "request":
		if !required("addr", *addr) {
			return 1
		}
		method, params = "vault_getRequest", []interface{}{*addr}
	case "rate":
		if *epoch == 0 {
			fmt.Fprintln(stderr, "Error: --epoch is required")
			return 1
		}
		method, params = "vault_getRedeemRate", []interface{}{uint32(*epoch)}
	case "balance":
		if !required("token", *token) || !required("addr", *addr) {
			return 1
		}
		method, params = "token_getBalance", []interface{}{*token, *addr}
	case "allowance":
		if !required("token", *token) || !required("owner", *owner) || !required("spender", *spender) {
			return 1
		}
		method, params = "token_getAllowance", []interface{}{*token, *owner, *spender}
	case "events":
		method = "vault_listEvents"
		params = []interface{}{map[string]interface{}{
			"type":    *eventType,
			"account": *addr,
			"afterId": *afterID,
			"limit":   *limit,
		}}
	case "receipt":
		if !required("digest", *digest) {
			return 1
		}
		method, params = "vault_getReceipt", []interface{}{*digest}
	default:
		fmt.Fprintf(stderr, "Unknown query: %s\n", args[0])
		fmt.Fprintln(stderr, queryUsage())
		return 1
	}

	result, rpcErr, err := rpcCall(method, params, false)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func queryUsage() string {
	return strings.TrimSpace(`Usage:
  vault-cli query <kind> [flags]

Kinds:
  offer                                  Current offer
  epoch                                  Current epoch and pending total
  chain-id                               Chain id the node runs
  request   --addr A                     Redemption request of an account
  requests                               Every pending or claimable request
  rate      --epoch N                    Locked rate of a settled epoch
  balance   --token T --addr A           Token balance
  allowance --token T --owner A --spender B
  events    [--type T] [--addr A] [--after N] [--limit N]
  receipt   --digest 0x...               Archived invocation
`)
}
