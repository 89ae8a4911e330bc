package vault

import "encoding/binary"

var (
	offerKey       = []byte("vault/offer")
	totalRedeemKey = []byte("vault/total-redeem")
	epochIDKey     = []byte("vault/epoch-id")
	requestPrefix  = []byte("vault/request/")
	ratePrefix     = []byte("vault/redeem-rate/")
	redeemersKey   = []byte("vault/redeemers")
)

func requestKey(addr [20]byte) []byte {
	buf := make([]byte, len(requestPrefix)+len(addr))
	copy(buf, requestPrefix)
	copy(buf[len(requestPrefix):], addr[:])
	return buf
}

func rateKey(epochID uint32) []byte {
	buf := make([]byte, len(ratePrefix)+4)
	copy(buf, ratePrefix)
	binary.BigEndian.PutUint32(buf[len(ratePrefix):], epochID)
	return buf
}
