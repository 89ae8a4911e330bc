package vault

import "math/big"

// Queries are pure reads and are not subject to the pause guard.

func (e *Engine) Offer() (*Offer, error) {
	return e.loadOffer()
}

// Request returns the stored request of sender, or a zero request tagged with
// epoch 0 when none was ever filed.
func (e *Engine) Request(sender [20]byte) (*RedeemRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.readRequest(sender)
}

// Redeemers returns every identity that has filed a request. Cleared requests
// stay listed.
func (e *Engine) Redeemers() ([][20]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.redeemers()
}

func (e *Engine) EpochID() (uint32, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.epochID()
}

func (e *Engine) TotalRedeem() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.totalRedeem()
}

// RedeemRate returns the rate locked for epochID and whether that epoch has
// settled. An open or future epoch reports (0, false).
func (e *Engine) RedeemRate(epochID uint32) (Rate, bool, error) {
	if e == nil || e.state == nil {
		return 0, false, errNilState
	}
	return e.redeemRate(epochID)
}
