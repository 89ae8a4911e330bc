package vault

import "math/big"

// RateScale is the fixed-point denominator shared by every Rate. All payouts
// are computed as floor(amount * rate / RateScale) on non-negative amounts.
const RateScale = 1_000_000

// Rate is the price of one sale-token unit in purchase-token units, scaled by
// RateScale; 1_000_000 is parity. The vault only accepts this single scaled
// form. The older pair of unscaled sell/buy price integers rounds differently
// (amount*sell/buy) and is deliberately not supported.
type Rate uint32

// Offer is the singleton trading configuration of the vault. Identity and
// token fields are fixed at initialization; only Price changes afterwards.
type Offer struct {
	Seller    [20]byte
	Treasury  [20]byte
	SellToken string
	BuyToken  string
	Price     Rate
}

// Clone returns a copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

// RequestStatus is the logical lifecycle position of a redeem request.
type RequestStatus string

const (
	// RequestNone means nothing is queued: the request was never filed or
	// has been claimed or cancelled.
	RequestNone RequestStatus = "none"
	// RequestPending means the request is attributed to the open epoch.
	RequestPending RequestStatus = "pending"
	// RequestClaimable means the request's epoch has settled and a rate is
	// locked for it.
	RequestClaimable RequestStatus = "claimable"
)

// RedeemRequest is a buyer's queued redemption. EpochID records the epoch the
// amount was filed in (or last rolled into). Cleared requests keep their
// record with a zero amount.
type RedeemRequest struct {
	SharesAmount *big.Int
	EpochID      uint32
}

// Clone returns a deep copy of the request.
func (r *RedeemRequest) Clone() *RedeemRequest {
	if r == nil {
		return nil
	}
	clone := &RedeemRequest{EpochID: r.EpochID, SharesAmount: big.NewInt(0)}
	if r.SharesAmount != nil {
		clone.SharesAmount.Set(r.SharesAmount)
	}
	return clone
}

// Status classifies the request against the current epoch counter.
func (r *RedeemRequest) Status(currentEpoch uint32) RequestStatus {
	if r == nil || r.SharesAmount == nil || r.SharesAmount.Sign() <= 0 {
		return RequestNone
	}
	if r.EpochID < currentEpoch {
		return RequestClaimable
	}
	return RequestPending
}
