package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"epochvault/core/auth"
	"epochvault/crypto"
)

type argKind int

const (
	kindString argKind = iota
	kindAccount
	kindAmount
	kindPrice
)

// argSpec maps one flag onto one field of the method's argument object.
type argSpec struct {
	flag  string
	field string
	kind  argKind
	usage string
	// signer fills an empty account from the first --key.
	signer bool
}

type invokeSpec struct {
	method string
	args   []argSpec
}

var invokeCommands = map[string]invokeSpec{
	"initialize": {method: "vault.initialize", args: []argSpec{
		{flag: "seller", field: "seller", kind: kindAccount, usage: "offer seller", signer: true},
		{flag: "treasury", field: "treasury", kind: kindAccount, usage: "treasury account"},
		{flag: "sell-token", field: "sellToken", kind: kindString, usage: "token sold by the vault"},
		{flag: "buy-token", field: "buyToken", kind: kindString, usage: "token paid by buyers"},
		{flag: "price", field: "price", kind: kindPrice, usage: "buy tokens per sell token, scaled by 1e6"},
	}},
	"deposit": {method: "vault.deposit", args: []argSpec{
		{flag: "buyer", field: "buyer", kind: kindAccount, usage: "paying account", signer: true},
		{flag: "amount", field: "buyAmount", kind: kindAmount, usage: "buy tokens to pay"},
		{flag: "min-sell", field: "minSellAmount", kind: kindAmount, usage: "minimum sell tokens to receive"},
	}},
	"redeem": {method: "vault.redeem_request", args: []argSpec{
		{flag: "sender", field: "sender", kind: kindAccount, usage: "redeeming account", signer: true},
		{flag: "amount", field: "amount", kind: kindAmount, usage: "sell tokens to redeem"},
	}},
	"cancel": {method: "vault.cancel_request", args: []argSpec{
		{flag: "sender", field: "sender", kind: kindAccount, usage: "redeeming account", signer: true},
	}},
	"claim": {method: "vault.claim_request", args: []argSpec{
		{flag: "sender", field: "sender", kind: kindAccount, usage: "redeeming account", signer: true},
	}},
	"settle": {method: "vault.settle_epoch"},
	"update-price": {method: "vault.update_price", args: []argSpec{
		{flag: "price", field: "price", kind: kindPrice, usage: "new price, scaled by 1e6"},
	}},
	"claim-leftover": {method: "vault.claim_leftover", args: []argSpec{
		{flag: "token", field: "token", kind: kindString, usage: "token to withdraw"},
		{flag: "amount", field: "amount", kind: kindAmount, usage: "amount to withdraw"},
	}},
	"transfer": {method: "token.transfer", args: []argSpec{
		{flag: "token", field: "token", kind: kindString, usage: "token symbol"},
		{flag: "from", field: "from", kind: kindAccount, usage: "sending account", signer: true},
		{flag: "to", field: "to", kind: kindAccount, usage: "receiving account"},
		{flag: "amount", field: "amount", kind: kindAmount, usage: "amount to move"},
	}},
	"transfer-from": {method: "token.transfer_from", args: []argSpec{
		{flag: "token", field: "token", kind: kindString, usage: "token symbol"},
		{flag: "spender", field: "spender", kind: kindAccount, usage: "allowance holder", signer: true},
		{flag: "owner", field: "owner", kind: kindAccount, usage: "account debited"},
		{flag: "to", field: "to", kind: kindAccount, usage: "receiving account"},
		{flag: "amount", field: "amount", kind: kindAmount, usage: "amount to move"},
	}},
	"approve": {method: "token.approve", args: []argSpec{
		{flag: "token", field: "token", kind: kindString, usage: "token symbol"},
		{flag: "owner", field: "owner", kind: kindAccount, usage: "approving account", signer: true},
		{flag: "spender", field: "spender", kind: kindAccount, usage: "account allowed to spend"},
		{flag: "amount", field: "amount", kind: kindAmount, usage: "allowance"},
	}},
}

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

var invokeNow = time.Now

func runInvoke(spec invokeSpec, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(spec.method, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var keys stringList
	fs.Var(&keys, "key", "keystore of a signer (repeatable)")
	chainID := fs.Uint64("chain-id", 0, "chain id (queried from the node when 0)")
	nonce := fs.Uint64("nonce", 0, "invocation nonce (defaults to the current time)")
	values := make(map[string]*string, len(spec.args))
	for _, a := range spec.args {
		values[a.flag] = fs.String(a.flag, "", a.usage)
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}

	signers, err := loadSigners(keys)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	raw, err := buildArgs(spec, values, signers[0].PubKey().Address())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *chainID == 0 {
		id, err := fetchChainID()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		*chainID = id
	}
	if *nonce == 0 {
		*nonce = uint64(invokeNow().UnixNano())
	}

	inv := &auth.Invocation{ChainID: *chainID, Method: spec.method, Args: raw, Nonce: *nonce}
	for _, key := range signers {
		if err := inv.Sign(key); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	result, rpcErr, err := rpcCall("vault_invoke", []interface{}{inv}, true)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)

	var receipt struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(result, &receipt); err == nil && !receipt.OK {
		return 2
	}
	return 0
}

// buildArgs validates the flag values locally and encodes the argument object
// exactly as it will be signed.
func buildArgs(spec invokeSpec, values map[string]*string, signer crypto.Address) (json.RawMessage, error) {
	obj := make(map[string]interface{}, len(spec.args))
	for _, a := range spec.args {
		v := strings.TrimSpace(*values[a.flag])
		if v == "" && a.signer {
			v = signer.String()
		}
		if v == "" {
			return nil, fmt.Errorf("--%s is required", a.flag)
		}
		switch a.kind {
		case kindAccount:
			if _, err := crypto.ParseAccount(v); err != nil {
				return nil, fmt.Errorf("--%s: %w", a.flag, err)
			}
			obj[a.field] = v
		case kindAmount:
			if _, ok := parseDecimal(v); !ok {
				return nil, fmt.Errorf("--%s must be a base-10 integer", a.flag)
			}
			obj[a.field] = v
		case kindPrice:
			price, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("--%s: %w", a.flag, err)
			}
			obj[a.field] = uint32(price)
		default:
			obj[a.field] = v
		}
	}
	return json.Marshal(obj)
}

func fetchChainID() (uint64, error) {
	result, rpcErr, err := rpcCall("vault_chainId", nil, false)
	if err != nil {
		return 0, err
	}
	if rpcErr != nil {
		return 0, fmt.Errorf("vault_chainId: %s", rpcErr.Message)
	}
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		return 0, fmt.Errorf("decode chain id: %w", err)
	}
	return strconv.ParseUint(s, 10, 64)
}
