package bank

import (
	"math/big"

	"epochvault/core/types"
	"epochvault/crypto"
)

const (
	EventTypeTransfer = "token.transfer"
	EventTypeApproval = "token.approve"
)

// TransferEvent records a balance movement. Spender is set when the movement
// consumed an allowance.
type TransferEvent struct {
	Token   string
	From    [20]byte
	To      [20]byte
	Spender *[20]byte
	Amount  *big.Int
}

func (TransferEvent) EventType() string { return EventTypeTransfer }

func (e TransferEvent) Event() *types.Event {
	attrs := map[string]string{
		"token":  e.Token,
		"from":   crypto.FormatAddress(e.From),
		"to":     crypto.FormatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}
	if e.Spender != nil {
		attrs["spender"] = crypto.FormatAddress(*e.Spender)
	}
	return &types.Event{Type: EventTypeTransfer, Attributes: attrs}
}

type ApprovalEvent struct {
	Token   string
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (ApprovalEvent) EventType() string { return EventTypeApproval }

func (e ApprovalEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeApproval,
		Attributes: map[string]string{
			"token":   e.Token,
			"owner":   crypto.FormatAddress(e.Owner),
			"spender": crypto.FormatAddress(e.Spender),
			"amount":  formatAmount(e.Amount),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
