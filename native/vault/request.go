package vault

import "math/big"

// storedRequest is the persisted form of a RedeemRequest. Amounts are never
// negative, which keeps them encodable as RLP big integers.
type storedRequest struct {
	SharesAmount *big.Int
	EpochID      uint32
}

// readRequest returns the sender's request, or {0, 0} when none was filed.
func (e *Engine) readRequest(sender [20]byte) (*RedeemRequest, error) {
	var stored storedRequest
	ok, err := e.state.KVGet(requestKey(sender), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &RedeemRequest{SharesAmount: big.NewInt(0)}, nil
	}
	return &RedeemRequest{SharesAmount: cloneAmount(stored.SharesAmount), EpochID: stored.EpochID}, nil
}

func (e *Engine) writeRequest(sender [20]byte, amount *big.Int, epochID uint32) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrNegativeRedeemAmount
	}
	if amount.Sign() > 0 {
		if err := e.state.KVAppend(redeemersKey, sender[:]); err != nil {
			return err
		}
	}
	return e.state.KVPut(requestKey(sender), &storedRequest{SharesAmount: cloneAmount(amount), EpochID: epochID})
}

// redeemers lists every identity that ever filed a request, in first-filing
// order.
func (e *Engine) redeemers() ([][20]byte, error) {
	var raw [][]byte
	if err := e.state.KVGetList(redeemersKey, &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		var addr [20]byte
		copy(addr[:], entry)
		out = append(out, addr)
	}
	return out, nil
}

// clearRequest zeroes the sender's request and tags it with epochID. A stored
// request filed after epochID cannot be cleared with it.
func (e *Engine) clearRequest(sender [20]byte, epochID uint32) error {
	req, err := e.readRequest(sender)
	if err != nil {
		return err
	}
	if req.EpochID > epochID {
		return ErrInvalidEpochId
	}
	return e.writeRequest(sender, big.NewInt(0), epochID)
}
