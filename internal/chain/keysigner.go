package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySigner is a minimal Signer backed by a raw ECDSA private key. It
// exists only to make the binary runnable end to end; spec-level key
// custody (HSM, keystore file, remote signer) is assumed external and
// is never ERDE's concern — operators who need that swap in their own
// Signer implementation instead of this one.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewKeySigner parses hexKey (with or without a 0x prefix) and binds it
// to chainID for EIP-155 signing.
func NewKeySigner(hexKey string, chainID int64) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
	if err != nil {
		return nil, fmt.Errorf("parsing signer key: %w", err)
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func (s *KeySigner) Address() common.Address {
	return s.address
}

func (s *KeySigner) SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signer := types.NewEIP155Signer(s.chainID)
	return types.SignTx(tx, signer, s.key)
}
