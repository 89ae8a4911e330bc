package vault

import "math/big"

// Settlement is the outcome of closing one epoch.
type Settlement struct {
	EpochID     uint32
	Rate        Rate
	TotalRedeem *big.Int
	TotalAsset  *big.Int
}

// SettleEpoch closes the open epoch at the current price. The queued
// sale-token goes to the seller and the treasury prefunds the purchase-token
// owed to the epoch's requests. Must be authorized by the treasury.
func (e *Engine) SettleEpoch() (*Settlement, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	offer, err := e.loadOffer()
	if err != nil {
		return nil, err
	}
	if err := e.requireAuth(offer.Treasury); err != nil {
		return nil, err
	}
	epochID, err := e.epochID()
	if err != nil {
		return nil, err
	}
	pool, err := e.totalRedeem()
	if err != nil {
		return nil, err
	}
	totalAsset, err := applyRate(pool, offer.Price)
	if err != nil {
		return nil, err
	}
	if err := e.lockRate(epochID, offer.Price); err != nil {
		return nil, err
	}
	next, err := nextEpoch(epochID)
	if err != nil {
		return nil, err
	}
	if err := e.writeEpochID(next); err != nil {
		return nil, err
	}
	if err := e.writeTotalRedeem(zeroAmount()); err != nil {
		return nil, err
	}
	if err := e.transfer(offer.SellToken, e.address, offer.Seller, pool); err != nil {
		return nil, err
	}
	if err := e.transfer(offer.BuyToken, offer.Treasury, e.address, totalAsset); err != nil {
		return nil, err
	}
	e.emit(EpochSettledEvent{
		Treasury:    offer.Treasury,
		EpochID:     epochID,
		TotalRedeem: cloneAmount(pool),
		TotalAsset:  cloneAmount(totalAsset),
		Rate:        offer.Price,
	})
	return &Settlement{EpochID: epochID, Rate: offer.Price, TotalRedeem: pool, TotalAsset: totalAsset}, nil
}
