package vault

import "math/big"

// Deposit sells sale-token to buyer at the current price in exchange for
// buyAmount of purchase-token, which is forwarded to the treasury. The trade
// fails with ErrPriceTooLow when it would deliver less than minSellAmount.
//
// Transfers run in a fixed order: buyer pays the vault, the vault pays the
// buyer, the vault forwards to the treasury. Any failure aborts the
// invocation as a whole.
func (e *Engine) Deposit(buyer [20]byte, buyAmount, minSellAmount *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	if err := e.requireAuth(buyer); err != nil {
		return nil, err
	}
	offer, err := e.loadOffer()
	if err != nil {
		return nil, err
	}
	if buyAmount == nil || buyAmount.Sign() <= 0 {
		return nil, ErrZeroTokenAmount
	}
	sellAmount, err := applyRate(buyAmount, offer.Price)
	if err != nil {
		return nil, err
	}
	if sellAmount.Cmp(cloneAmount(minSellAmount)) < 0 {
		return nil, ErrPriceTooLow
	}
	if err := e.transfer(offer.BuyToken, buyer, e.address, buyAmount); err != nil {
		return nil, err
	}
	if err := e.transfer(offer.SellToken, e.address, buyer, sellAmount); err != nil {
		return nil, err
	}
	if err := e.transfer(offer.BuyToken, e.address, offer.Treasury, buyAmount); err != nil {
		return nil, err
	}
	e.emit(DepositEvent{
		Buyer:      buyer,
		Treasury:   offer.Treasury,
		BuyAmount:  cloneAmount(buyAmount),
		SellAmount: cloneAmount(sellAmount),
	})
	return sellAmount, nil
}

// ClaimLeftover sweeps amount of any token held by the vault to the seller.
// Must be authorized by the seller.
func (e *Engine) ClaimLeftover(token string, amount *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	offer, err := e.loadOffer()
	if err != nil {
		return err
	}
	if err := e.requireAuth(offer.Seller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroTokenAmount
	}
	if err := e.transfer(token, e.address, offer.Seller, amount); err != nil {
		return err
	}
	e.emit(LeftoverClaimedEvent{Seller: offer.Seller, Token: token, Amount: cloneAmount(amount)})
	return nil
}
