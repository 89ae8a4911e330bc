package host

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"epochvault/crypto"
	nativecommon "epochvault/native/common"
	"epochvault/native/vault"
)

const tokenModule = "token"

type handler func(exec *execution, args json.RawMessage) (interface{}, error)

var methods = map[string]handler{
	"vault.initialize":     handleInitialize,
	"vault.deposit":        handleDeposit,
	"vault.claim_leftover": handleClaimLeftover,
	"vault.update_price":   handleUpdatePrice,
	"vault.redeem_request": handleRedeemRequest,
	"vault.cancel_request": handleCancelRequest,
	"vault.claim_request":  handleClaimRequest,
	"vault.settle_epoch":   handleSettleEpoch,
	"token.transfer":       handleTransfer,
	"token.transfer_from":  handleTransferFrom,
	"token.approve":        handleApprove,
}

// Methods lists the invocable method names.
func Methods() []string {
	out := make([]string, 0, len(methods))
	for name := range methods {
		out = append(out, name)
	}
	return out
}

func decodeArgs(raw json.RawMessage, out interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{}`)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

func parseAccount(field, value string) ([20]byte, error) {
	addr, err := crypto.ParseAccount(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, field, err)
	}
	return addr, nil
}

// parseAmount accepts a base-10 integer. Signs are preserved so the modules can
// report negative amounts with their own errors.
func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %s required", ErrInvalidArgs, field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s: invalid integer %q", ErrInvalidArgs, field, value)
	}
	return amount, nil
}

type InitializeArgs struct {
	Seller    string `json:"seller"`
	Treasury  string `json:"treasury"`
	SellToken string `json:"sellToken"`
	BuyToken  string `json:"buyToken"`
	Price     uint32 `json:"price"`
}

func handleInitialize(exec *execution, raw json.RawMessage) (interface{}, error) {
	var args InitializeArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	seller, err := parseAccount("seller", args.Seller)
	if err != nil {
		return nil, err
	}
	treasury, err := parseAccount("treasury", args.Treasury)
	if err != nil {
		return nil, err
	}
	return nil, exec.vault.Initialize(seller, treasury, args.SellToken, args.BuyToken, vault.Rate(args.Price))
}

type DepositArgs struct {
	Buyer         string `json:"buyer"`
	BuyAmount     string `json:"buyAmount"`
	MinSellAmount string `json:"minSellAmount"`
}

func handleDeposit(exec *execution, raw json.RawMessage) (interface{}, error) {
	var args DepositArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	buyer, err := parseAccount("buyer", args.Buyer)
	if err != nil {
		return nil, err
	}
	buyAmount, err := parseAmount("buyAmount", args.BuyAmount)
	if err != nil {
		return nil, err
	}
	minSell := big.NewInt(0)
	if strings.TrimSpace(args.MinSellAmount) != "" {
		if minSell, err = parseAmount("minSellAmount", args.MinSellAmount); err != nil {
			return nil, err
		}
	}
	sold, err := exec.vault.Deposit(buyer, buyAmount, minSell)
	if err != nil {
		return nil, err
	}
	return map[string]string{"sellAmount": sold.String()}, nil
}

type ClaimLeftoverArgs struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func handleClaimLeftover(exec *execution, raw json.RawMessage) (interface{}, error) {
	var args ClaimLeftoverArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", args.Amount)
	if err != nil {
		return nil, err
	}
	return nil, exec.vault.ClaimLeftover(args.Token, amount)
}

type UpdatePriceArgs struct {
	Price uint32 `json:"price"`
}

func handleUpdatePrice(exec *execution, raw json.RawMessage) (interface{}, error) {
	var args UpdatePriceArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return nil, exec.vault.UpdatePrice(vault.Rate(args.Price))
}

type RedeemRequestArgs struct {
	Sender string `json:"sender"`
	Amount string `json:"amount"`
}

func handleRedeemRequest(exec *execution, raw json.RawMessage) (interface{}, error) {
	var args RedeemRequestArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	sender, err := parseAccount("sender", args.Sender)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", args.Amount)
	if err != nil {
		return nil, err
	}
	return nil, exec.vault.RedeemRequest(sender, amount)
}

type SenderArgs struct {
	Sender string `json:"sender"`
}

func handleCancelRequest(exec *execution, raw json.RawMessage) (interface{}, error) {
	var args SenderArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	sender, err := parseAccount("sender", args.Sender)
	if err != nil {
		return nil, err
	}
	refunded, err := exec.vault.CancelRequest(sender)
	if err != nil {
		return nil, err
	}
	return map[string]string{"amount": refunded.String()}, nil
}

func handleClaimRequest(exec *execution, raw json.RawMessage) (interface{}, error) {
	var args SenderArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	sender, err := parseAccount("sender", args.Sender)
	if err != nil {
		return nil, err
	}
	payout, err := exec.vault.ClaimRequest(sender)
	if err != nil {
		return nil, err
	}
	return map[string]string{"payout": payout.String()}, nil
}

// SettlementResult is the JSON form of a settled epoch.
type SettlementResult struct {
	EpochID     uint32 `json:"epochId"`
	Rate        uint32 `json:"rate"`
	TotalRedeem string `json:"totalRedeem"`
	TotalAsset  string `json:"totalAsset"`
}

func handleSettleEpoch(exec *execution, raw json.RawMessage) (interface{}, error) {
	var args struct{}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	settled, err := exec.vault.SettleEpoch()
	if err != nil {
		return nil, err
	}
	return SettlementResult{
		EpochID:     settled.EpochID,
		Rate:        uint32(settled.Rate),
		TotalRedeem: settled.TotalRedeem.String(),
		TotalAsset:  settled.TotalAsset.String(),
	}, nil
}

type TransferArgs struct {
	Token  string `json:"token"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func handleTransfer(exec *execution, raw json.RawMessage) (interface{}, error) {
	var args TransferArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	from, err := parseAccount("from", args.From)
	if err != nil {
		return nil, err
	}
	to, err := parseAccount("to", args.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", args.Amount)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(exec.pauses, tokenModule); err != nil {
		return nil, err
	}
	return nil, exec.ledger.Transfer(args.Token, from, to, amount)
}

type TransferFromArgs struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Owner   string `json:"owner"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
}

func handleTransferFrom(exec *execution, raw json.RawMessage) (interface{}, error) {
	var args TransferFromArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	spender, err := parseAccount("spender", args.Spender)
	if err != nil {
		return nil, err
	}
	owner, err := parseAccount("owner", args.Owner)
	if err != nil {
		return nil, err
	}
	to, err := parseAccount("to", args.To)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", args.Amount)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(exec.pauses, tokenModule); err != nil {
		return nil, err
	}
	return nil, exec.ledger.TransferFrom(args.Token, spender, owner, to, amount)
}

type ApproveArgs struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func handleApprove(exec *execution, raw json.RawMessage) (interface{}, error) {
	var args ApproveArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	owner, err := parseAccount("owner", args.Owner)
	if err != nil {
		return nil, err
	}
	spender, err := parseAccount("spender", args.Spender)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", args.Amount)
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(exec.pauses, tokenModule); err != nil {
		return nil, err
	}
	return nil, exec.ledger.Approve(args.Token, owner, spender, amount)
}
