package host

import (
	"math/big"

	"epochvault/core/state"
	"epochvault/crypto"
	"epochvault/native/bank"
	"epochvault/native/vault"
)

// OfferView is the JSON form of the vault offer.
type OfferView struct {
	Seller    string `json:"seller"`
	Treasury  string `json:"treasury"`
	SellToken string `json:"sellToken"`
	BuyToken  string `json:"buyToken"`
	Price     uint32 `json:"price"`
	Vault     string `json:"vault"`
}

type RequestView struct {
	Address      string `json:"address"`
	SharesAmount string `json:"sharesAmount"`
	EpochID      uint32 `json:"epochId"`
	Status       string `json:"status"`
}

type EpochView struct {
	EpochID     uint32 `json:"epochId"`
	TotalRedeem string `json:"totalRedeem"`
}

type RateView struct {
	EpochID uint32 `json:"epochId"`
	Rate    uint32 `json:"rate"`
	Settled bool   `json:"settled"`
}

type BalanceView struct {
	Token   string `json:"token"`
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type AllowanceView struct {
	Token     string `json:"token"`
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

// reader returns engines bound to a fresh read-only view of committed state.
func (h *Host) reader() (*vault.Engine, *bank.Ledger) {
	mgr := state.NewManager(h.db)
	engine := vault.NewEngine(h.vaultAddr)
	engine.SetState(mgr)
	return engine, bank.NewLedger(mgr, nil)
}

func (h *Host) Offer() (*OfferView, error) {
	engine, _ := h.reader()
	offer, err := engine.Offer()
	if err != nil {
		return nil, err
	}
	return &OfferView{
		Seller:    crypto.FormatAddress(offer.Seller),
		Treasury:  crypto.FormatAddress(offer.Treasury),
		SellToken: offer.SellToken,
		BuyToken:  offer.BuyToken,
		Price:     uint32(offer.Price),
		Vault:     crypto.FormatAddress(h.vaultAddr),
	}, nil
}

func (h *Host) Request(addr [20]byte) (*RequestView, error) {
	engine, _ := h.reader()
	req, err := engine.Request(addr)
	if err != nil {
		return nil, err
	}
	status := vault.RequestNone
	if epochID, err := engine.EpochID(); err == nil {
		status = req.Status(epochID)
	}
	return &RequestView{
		Address:      crypto.FormatAddress(addr),
		SharesAmount: req.SharesAmount.String(),
		EpochID:      req.EpochID,
		Status:       string(status),
	}, nil
}

// Requests lists the live requests of every redeemer. Resolved requests are
// skipped.
func (h *Host) Requests() ([]*RequestView, error) {
	engine, _ := h.reader()
	addrs, err := engine.Redeemers()
	if err != nil {
		return nil, err
	}
	epochID, err := engine.EpochID()
	if err != nil {
		return nil, err
	}
	out := make([]*RequestView, 0, len(addrs))
	for _, addr := range addrs {
		req, err := engine.Request(addr)
		if err != nil {
			return nil, err
		}
		status := req.Status(epochID)
		if status == vault.RequestNone {
			continue
		}
		out = append(out, &RequestView{
			Address:      crypto.FormatAddress(addr),
			SharesAmount: req.SharesAmount.String(),
			EpochID:      req.EpochID,
			Status:       string(status),
		})
	}
	return out, nil
}

func (h *Host) Epoch() (*EpochView, error) {
	engine, _ := h.reader()
	epochID, err := engine.EpochID()
	if err != nil {
		return nil, err
	}
	total, err := engine.TotalRedeem()
	if err != nil {
		return nil, err
	}
	return &EpochView{EpochID: epochID, TotalRedeem: total.String()}, nil
}

// RedeemRate reports the rate locked for epochID. Open epochs report
// Settled=false.
func (h *Host) RedeemRate(epochID uint32) (*RateView, error) {
	engine, _ := h.reader()
	rate, settled, err := engine.RedeemRate(epochID)
	if err != nil {
		return nil, err
	}
	return &RateView{EpochID: epochID, Rate: uint32(rate), Settled: settled}, nil
}

func (h *Host) Balance(token string, addr [20]byte) (*BalanceView, error) {
	_, ledger := h.reader()
	bal, err := ledger.BalanceOf(token, addr)
	if err != nil {
		return nil, err
	}
	return &BalanceView{Token: token, Address: crypto.FormatAddress(addr), Balance: amountString(bal)}, nil
}

func (h *Host) Allowance(token string, owner, spender [20]byte) (*AllowanceView, error) {
	_, ledger := h.reader()
	allowed, err := ledger.AllowanceOf(token, owner, spender)
	if err != nil {
		return nil, err
	}
	return &AllowanceView{
		Token:     token,
		Owner:     crypto.FormatAddress(owner),
		Spender:   crypto.FormatAddress(spender),
		Allowance: amountString(allowed),
	}, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
