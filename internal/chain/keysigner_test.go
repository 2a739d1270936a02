package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewKeySigner_AcceptsWithOrWithoutPrefix(t *testing.T) {
	a, err := NewKeySigner(testPrivateKeyHex, 1)
	require.NoError(t, err)

	b, err := NewKeySigner("0x"+testPrivateKeyHex, 1)
	require.NoError(t, err)

	assert.Equal(t, a.Address(), b.Address())
}

func TestKeySigner_SignTxProducesValidSignature(t *testing.T) {
	signer, err := NewKeySigner(testPrivateKeyHex, 1)
	require.NoError(t, err)

	tx := types.NewTransaction(0, signer.Address(), big.NewInt(0), 21000, big.NewInt(1), nil)
	signed, err := signer.SignTx(context.Background(), tx)
	require.NoError(t, err)

	sender, err := types.Sender(types.NewEIP155Signer(signer.chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), sender)
}
