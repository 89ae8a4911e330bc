// Package auth implements the authorization capability consumed by the vault
// and token modules. An invocation is authorized by an identity when it carries
// that identity's secp256k1 signature over the invocation digest, which binds
// the chain id, the method, the exact argument bytes and a nonce.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"epochvault/crypto"
)

var (
	ErrUnauthorized     = errors.New("auth: identity did not authorize this invocation")
	ErrMalformedSig     = errors.New("auth: malformed signature")
	ErrMissingMethod    = errors.New("auth: method required")
	ErrDuplicateSigners = errors.New("auth: duplicate signer")
)

const signatureLength = 65

// Invocation is a signed request to execute one method against the vault.
type Invocation struct {
	ChainID    uint64          `json:"chainId"`
	Method     string          `json:"method"`
	Args       json.RawMessage `json:"args"`
	Nonce      uint64          `json:"nonce"`
	Signatures []hexutil.Bytes `json:"signatures"`
}

type signingPayload struct {
	ChainID uint64
	Method  string
	Args    []byte
	Nonce   uint64
}

// Digest returns keccak256(rlp(chainId, method, args, nonce)). Signatures are
// not part of the digest.
func (inv *Invocation) Digest() ([32]byte, error) {
	var out [32]byte
	if inv == nil {
		return out, ErrMissingMethod
	}
	method := strings.TrimSpace(inv.Method)
	if method == "" {
		return out, ErrMissingMethod
	}
	encoded, err := rlp.EncodeToBytes(signingPayload{
		ChainID: inv.ChainID,
		Method:  method,
		Args:    []byte(inv.Args),
		Nonce:   inv.Nonce,
	})
	if err != nil {
		return out, fmt.Errorf("auth: encode payload: %w", err)
	}
	copy(out[:], ethcrypto.Keccak256(encoded))
	return out, nil
}

// Sign appends the key's signature over the invocation digest.
func (inv *Invocation) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("auth: nil key")
	}
	digest, err := inv.Digest()
	if err != nil {
		return err
	}
	sig, err := key.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("auth: sign: %w", err)
	}
	inv.Signatures = append(inv.Signatures, hexutil.Bytes(sig))
	return nil
}

// Signers recovers the identities that signed the invocation. Every signature
// must be well formed; one identity may not sign twice.
func (inv *Invocation) Signers() ([][20]byte, error) {
	digest, err := inv.Digest()
	if err != nil {
		return nil, err
	}
	seen := make(map[[20]byte]struct{}, len(inv.Signatures))
	out := make([][20]byte, 0, len(inv.Signatures))
	for i, sig := range inv.Signatures {
		if len(sig) != signatureLength {
			return nil, fmt.Errorf("%w: signature %d has length %d", ErrMalformedSig, i, len(sig))
		}
		pub, err := ethcrypto.SigToPub(digest[:], sig)
		if err != nil {
			return nil, fmt.Errorf("%w: signature %d: %v", ErrMalformedSig, i, err)
		}
		var addr [20]byte
		copy(addr[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSigners, crypto.FormatAddress(addr))
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}

// Context answers RequireAuth for the duration of one invocation.
type Context struct {
	granted map[[20]byte]struct{}
}

// NewContext creates an authorization context where the given identities have
// authorized the invocation.
func NewContext(signers ...[20]byte) *Context {
	c := &Context{granted: make(map[[20]byte]struct{}, len(signers))}
	for _, s := range signers {
		c.granted[s] = struct{}{}
	}
	return c
}

// RequireAuth fails unless addr authorized the invocation.
func (c *Context) RequireAuth(addr [20]byte) error {
	if c != nil {
		if _, ok := c.granted[addr]; ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnauthorized, crypto.FormatAddress(addr))
}
