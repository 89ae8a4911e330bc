package vault

func (e *Engine) loadOffer() (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offer := new(Offer)
	ok, err := e.state.KVGet(offerKey, offer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotCreated
	}
	return offer, nil
}

func (e *Engine) writeOffer(offer *Offer) error {
	if offer.Price == 0 {
		return ErrZeroPrice
	}
	return e.state.KVPut(offerKey, offer)
}

// Initialize creates the offer, opens epoch 1 and empties the redeem pool. It
// can run exactly once and must be authorized by the seller.
func (e *Engine) Initialize(seller, treasury [20]byte, sellToken, buyToken string, price Rate) error {
	if err := e.begin(); err != nil {
		return err
	}
	exists, err := e.state.KVGet(offerKey, nil)
	if err != nil {
		return err
	}
	if exists {
		return ErrOfferAlreadyCreated
	}
	if price == 0 {
		return ErrZeroPrice
	}
	if err := e.requireAuth(seller); err != nil {
		return err
	}
	offer := &Offer{
		Seller:    seller,
		Treasury:  treasury,
		SellToken: sellToken,
		BuyToken:  buyToken,
		Price:     price,
	}
	if err := e.writeOffer(offer); err != nil {
		return err
	}
	if err := e.writeTotalRedeem(zeroAmount()); err != nil {
		return err
	}
	if err := e.writeEpochID(1); err != nil {
		return err
	}
	e.emit(InitializedEvent{Offer: offer.Clone()})
	return nil
}

// UpdatePrice replaces the offer price. Must be authorized by the seller.
// Epochs that already settled keep the rate they locked.
func (e *Engine) UpdatePrice(price Rate) error {
	if err := e.begin(); err != nil {
		return err
	}
	if price == 0 {
		return ErrZeroPrice
	}
	offer, err := e.loadOffer()
	if err != nil {
		return err
	}
	if err := e.requireAuth(offer.Seller); err != nil {
		return err
	}
	offer.Price = price
	if err := e.writeOffer(offer); err != nil {
		return err
	}
	e.emit(PriceUpdatedEvent{Seller: offer.Seller, Price: price})
	return nil
}
