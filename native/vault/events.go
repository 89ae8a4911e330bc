package vault

import (
	"math/big"
	"strconv"

	"epochvault/core/types"
	"epochvault/crypto"
)

const (
	EventTypeInitialized      = "vault_initialized"
	EventTypeDeposit          = "vault_deposit"
	EventTypeLeftoverClaimed  = "vault_claim_leftover"
	EventTypePriceUpdated     = "vault_update_price"
	EventTypeRedeemRequested  = "vault_redeem_request"
	EventTypeRequestCancelled = "vault_cancel_request"
	EventTypeRequestClaimed   = "vault_claim_request"
	EventTypeEpochSettled     = "vault_setle_epoch"
)

type InitializedEvent struct {
	Offer *Offer
}

func (InitializedEvent) EventType() string { return EventTypeInitialized }

func (e InitializedEvent) Event() *types.Event {
	attrs := map[string]string{}
	if e.Offer != nil {
		attrs["seller"] = crypto.FormatAddress(e.Offer.Seller)
		attrs["treasury"] = crypto.FormatAddress(e.Offer.Treasury)
		attrs["sellToken"] = e.Offer.SellToken
		attrs["buyToken"] = e.Offer.BuyToken
		attrs["price"] = formatRate(e.Offer.Price)
	}
	return &types.Event{Type: EventTypeInitialized, Attributes: attrs}
}

type DepositEvent struct {
	Buyer      [20]byte
	Treasury   [20]byte
	BuyAmount  *big.Int
	SellAmount *big.Int
}

func (DepositEvent) EventType() string { return EventTypeDeposit }

func (e DepositEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeDeposit,
		Attributes: map[string]string{
			"buyer":      crypto.FormatAddress(e.Buyer),
			"treasury":   crypto.FormatAddress(e.Treasury),
			"buyAmount":  formatAmount(e.BuyAmount),
			"sellAmount": formatAmount(e.SellAmount),
		},
	}
}

type LeftoverClaimedEvent struct {
	Seller [20]byte
	Token  string
	Amount *big.Int
}

func (LeftoverClaimedEvent) EventType() string { return EventTypeLeftoverClaimed }

func (e LeftoverClaimedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeLeftoverClaimed,
		Attributes: map[string]string{
			"seller": crypto.FormatAddress(e.Seller),
			"token":  e.Token,
			"amount": formatAmount(e.Amount),
		},
	}
}

type PriceUpdatedEvent struct {
	Seller [20]byte
	Price  Rate
}

func (PriceUpdatedEvent) EventType() string { return EventTypePriceUpdated }

func (e PriceUpdatedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypePriceUpdated,
		Attributes: map[string]string{
			"seller": crypto.FormatAddress(e.Seller),
			"price":  formatRate(e.Price),
		},
	}
}

type RedeemRequestedEvent struct {
	Sender        [20]byte
	Amount        *big.Int
	RequestAmount *big.Int
	TotalRedeem   *big.Int
	EpochID       uint32
}

func (RedeemRequestedEvent) EventType() string { return EventTypeRedeemRequested }

func (e RedeemRequestedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeRedeemRequested,
		Attributes: map[string]string{
			"sender":        crypto.FormatAddress(e.Sender),
			"amount":        formatAmount(e.Amount),
			"requestAmount": formatAmount(e.RequestAmount),
			"totalRedeem":   formatAmount(e.TotalRedeem),
			"epochId":       formatEpoch(e.EpochID),
		},
	}
}

type RequestCancelledEvent struct {
	Sender      [20]byte
	Amount      *big.Int
	TotalRedeem *big.Int
	EpochID     uint32
}

func (RequestCancelledEvent) EventType() string { return EventTypeRequestCancelled }

func (e RequestCancelledEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeRequestCancelled,
		Attributes: map[string]string{
			"sender":      crypto.FormatAddress(e.Sender),
			"amount":      formatAmount(e.Amount),
			"totalRedeem": formatAmount(e.TotalRedeem),
			"epochId":     formatEpoch(e.EpochID),
		},
	}
}

// RequestClaimedEvent is emitted for explicit claims and for claims folded
// into a new redeem request (Auto).
type RequestClaimedEvent struct {
	Sender  [20]byte
	Shares  *big.Int
	Payout  *big.Int
	EpochID uint32
	Rate    Rate
	Auto    bool
}

func (RequestClaimedEvent) EventType() string { return EventTypeRequestClaimed }

func (e RequestClaimedEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeRequestClaimed,
		Attributes: map[string]string{
			"sender":  crypto.FormatAddress(e.Sender),
			"shares":  formatAmount(e.Shares),
			"payout":  formatAmount(e.Payout),
			"epochId": formatEpoch(e.EpochID),
			"rate":    formatRate(e.Rate),
			"auto":    strconv.FormatBool(e.Auto),
		},
	}
}

type EpochSettledEvent struct {
	Treasury    [20]byte
	EpochID     uint32
	TotalRedeem *big.Int
	TotalAsset  *big.Int
	Rate        Rate
}

func (EpochSettledEvent) EventType() string { return EventTypeEpochSettled }

func (e EpochSettledEvent) Event() *types.Event {
	return &types.Event{
		Type: EventTypeEpochSettled,
		Attributes: map[string]string{
			"treasury":    crypto.FormatAddress(e.Treasury),
			"epochId":     formatEpoch(e.EpochID),
			"totalRedeem": formatAmount(e.TotalRedeem),
			"totalAsset":  formatAmount(e.TotalAsset),
			"rate":        formatRate(e.Rate),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatRate(r Rate) string { return strconv.FormatUint(uint64(r), 10) }

func formatEpoch(id uint32) string { return strconv.FormatUint(uint64(id), 10) }
