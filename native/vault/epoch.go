package vault

import "math/big"

func (e *Engine) epochID() (uint32, error) {
	var id uint32
	ok, err := e.state.KVGet(epochIDKey, &id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrOfferNotCreated
	}
	return id, nil
}

func (e *Engine) writeEpochID(id uint32) error {
	return e.state.KVPut(epochIDKey, id)
}

func (e *Engine) totalRedeem() (*big.Int, error) {
	total := new(big.Int)
	ok, err := e.state.KVGet(totalRedeemKey, total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotCreated
	}
	return total, nil
}

func (e *Engine) writeTotalRedeem(total *big.Int) error {
	if total.Sign() < 0 {
		return ErrArithmeticOverflow
	}
	return e.state.KVPut(totalRedeemKey, total)
}

// redeemRate returns the rate locked for epochID. The boolean is false while
// the epoch is still open.
func (e *Engine) redeemRate(epochID uint32) (Rate, bool, error) {
	var rate uint32
	ok, err := e.state.KVGet(rateKey(epochID), &rate)
	if err != nil || !ok {
		return 0, false, err
	}
	return Rate(rate), true, nil
}

// lockRate records the rate for epochID. A recorded rate is never replaced.
func (e *Engine) lockRate(epochID uint32, rate Rate) error {
	_, exists, err := e.redeemRate(epochID)
	if err != nil {
		return err
	}
	if exists {
		return ErrInvalidEpochId
	}
	return e.state.KVPut(rateKey(epochID), uint32(rate))
}

func zeroAmount() *big.Int { return big.NewInt(0) }
