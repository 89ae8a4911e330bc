package vault

import "math/big"

// RedeemRequest queues amount of sale-token for redemption in the open epoch.
// A request left over from a settled epoch is claimed first, so a buyer never
// holds amounts from two different epochs.
func (e *Engine) RedeemRequest(sender [20]byte, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	if err := e.requireAuth(sender); err != nil {
		return err
	}
	if amount == nil {
		return ErrZeroTokenAmount
	}
	if amount.Sign() < 0 {
		return ErrNegativeRedeemAmount
	}
	if amount.Sign() == 0 {
		return ErrZeroTokenAmount
	}
	offer, err := e.loadOffer()
	if err != nil {
		return err
	}
	epochID, err := e.epochID()
	if err != nil {
		return err
	}
	prev, err := e.readRequest(sender)
	if err != nil {
		return err
	}
	if prev.Status(epochID) == RequestClaimable {
		if _, err := e.claim(offer, sender, epochID, true); err != nil {
			return err
		}
		if prev, err = e.readRequest(sender); err != nil {
			return err
		}
	}
	total, err := e.totalRedeem()
	if err != nil {
		return err
	}
	newTotal, err := checkedAdd(total, amount)
	if err != nil {
		return err
	}
	if err := e.writeTotalRedeem(newTotal); err != nil {
		return err
	}
	newAmount, err := checkedAdd(prev.SharesAmount, amount)
	if err != nil {
		return err
	}
	if err := e.writeRequest(sender, newAmount, epochID); err != nil {
		return err
	}
	if err := e.transfer(offer.SellToken, sender, e.address, amount); err != nil {
		return err
	}
	e.emit(RedeemRequestedEvent{
		Sender:        sender,
		Amount:        cloneAmount(amount),
		RequestAmount: newAmount,
		TotalRedeem:   newTotal,
		EpochID:       epochID,
	})
	return nil
}

// CancelRequest returns the sender's pending sale-token and removes it from
// the open epoch's pool. Requests whose epoch already settled were handed to
// the seller and can only be claimed.
func (e *Engine) CancelRequest(sender [20]byte) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	if err := e.requireAuth(sender); err != nil {
		return nil, err
	}
	offer, err := e.loadOffer()
	if err != nil {
		return nil, err
	}
	epochID, err := e.epochID()
	if err != nil {
		return nil, err
	}
	req, err := e.readRequest(sender)
	if err != nil {
		return nil, err
	}
	switch req.Status(epochID) {
	case RequestNone:
		return nil, ErrNoRedeemRequest
	case RequestClaimable:
		return nil, ErrInvalidEpochId
	}
	total, err := e.totalRedeem()
	if err != nil {
		return nil, err
	}
	newTotal, err := checkedSub(total, req.SharesAmount)
	if err != nil {
		return nil, err
	}
	if newTotal.Sign() < 0 {
		return nil, ErrArithmeticOverflow
	}
	if err := e.writeTotalRedeem(newTotal); err != nil {
		return nil, err
	}
	if err := e.transfer(offer.SellToken, e.address, sender, req.SharesAmount); err != nil {
		return nil, err
	}
	if err := e.clearRequest(sender, epochID); err != nil {
		return nil, err
	}
	e.emit(RequestCancelledEvent{
		Sender:      sender,
		Amount:      cloneAmount(req.SharesAmount),
		TotalRedeem: newTotal,
		EpochID:     epochID,
	})
	return req.SharesAmount, nil
}

// ClaimRequest pays out the sender's request at the rate locked when its
// epoch settled and returns the purchase-token amount paid.
func (e *Engine) ClaimRequest(sender [20]byte) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	if err := e.requireAuth(sender); err != nil {
		return nil, err
	}
	offer, err := e.loadOffer()
	if err != nil {
		return nil, err
	}
	epochID, err := e.epochID()
	if err != nil {
		return nil, err
	}
	return e.claim(offer, sender, epochID, false)
}

// claim is the shared payout path. The caller has already authorized sender.
func (e *Engine) claim(offer *Offer, sender [20]byte, epochID uint32, auto bool) (*big.Int, error) {
	req, err := e.readRequest(sender)
	if err != nil {
		return nil, err
	}
	if epochID <= req.EpochID {
		return nil, ErrEpochNotSetled
	}
	if req.SharesAmount.Sign() <= 0 {
		return nil, ErrNoRedeemRequest
	}
	rate, settled, err := e.redeemRate(req.EpochID)
	if err != nil {
		return nil, err
	}
	if !settled {
		return nil, ErrEpochNotSetled
	}
	payout, err := applyRate(req.SharesAmount, rate)
	if err != nil {
		return nil, err
	}
	if err := e.transfer(offer.BuyToken, e.address, sender, payout); err != nil {
		return nil, err
	}
	if err := e.clearRequest(sender, epochID); err != nil {
		return nil, err
	}
	e.emit(RequestClaimedEvent{
		Sender:  sender,
		Shares:  cloneAmount(req.SharesAmount),
		Payout:  cloneAmount(payout),
		EpochID: req.EpochID,
		Rate:    rate,
		Auto:    auto,
	})
	return payout, nil
}
