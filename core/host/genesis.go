package host

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"epochvault/config"
	"epochvault/core/auth"
	"epochvault/core/state"
	"epochvault/crypto"
	"epochvault/native/bank"
)

var ErrGenesisApplied = errors.New("host: genesis already applied")

var genesisKey = []byte("host/genesis")

// Initialized reports whether genesis has been applied to the store.
func (h *Host) Initialized() (bool, error) {
	return state.NewManager(h.db).KVHas(genesisKey)
}

// ApplyGenesis registers the genesis tokens and credits the allocations in
// one batch. It fails on a store that already carries a genesis.
func (h *Host) ApplyGenesis(g *config.Genesis) error {
	if g == nil {
		return fmt.Errorf("host: genesis required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if g.ChainID != 0 && g.ChainID != h.chainID {
		return fmt.Errorf("%w: genesis is for %d, node runs %d", ErrChainIDMismatch, g.ChainID, h.chainID)
	}
	mgr := state.NewManager(h.db)
	applied, err := mgr.KVHas(genesisKey)
	if err != nil {
		return err
	}
	if applied {
		return ErrGenesisApplied
	}
	allocs, err := g.Allocations()
	if err != nil {
		return err
	}
	for _, tok := range g.Tokens {
		name := strings.TrimSpace(tok.Name)
		if name == "" {
			name = strings.ToUpper(strings.TrimSpace(tok.Symbol))
		}
		if err := mgr.RegisterToken(tok.Symbol, name, tok.Decimals); err != nil {
			mgr.Discard()
			return fmt.Errorf("host: register %s: %w", tok.Symbol, err)
		}
	}
	ledger := bank.NewLedger(mgr, auth.NewContext())
	for _, alloc := range allocs {
		if err := ledger.Mint(alloc.Token, alloc.Account, alloc.Amount); err != nil {
			mgr.Discard()
			return fmt.Errorf("host: allocate %s to %s: %w", alloc.Token, crypto.FormatAddress(alloc.Account), err)
		}
	}
	if err := mgr.KVPut(genesisKey, h.chainID); err != nil {
		mgr.Discard()
		return err
	}
	if err := mgr.Commit(); err != nil {
		return fmt.Errorf("host: commit genesis: %w", err)
	}
	h.logger.Info("genesis applied",
		slog.Int("tokens", len(g.Tokens)),
		slog.Int("allocations", len(allocs)),
		slog.String("vault", crypto.FormatAddress(h.vaultAddr)))
	return nil
}
