package cache

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stageRecord struct {
	Epoch        uint64 `codec:"epoch"`
	TotalDebt    string `codec:"totalDebt"`
	RecipientLen int    `codec:"recipientLen"`
}

func TestPutGet_RoundTrip(t *testing.T) {
	store, err := Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer store.Close()

	rec := stageRecord{Epoch: 7, TotalDebt: "123456789012345678901234567890", RecipientLen: 42}
	key := Key(7, "snapshot")
	require.NoError(t, store.Put(context.Background(), key, rec))

	var got stageRecord
	require.NoError(t, store.Get(context.Background(), key, &got))
	assert.Equal(t, rec, got)
}

func TestGet_MissReturnsErrMiss(t *testing.T) {
	store, err := Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer store.Close()

	var got stageRecord
	err = store.Get(context.Background(), Key(1, "missing"), &got)
	assert.ErrorIs(t, err, ErrMiss)
}

func TestPutGet_CompressesLargeValues(t *testing.T) {
	store, err := Open(t.TempDir(), 16)
	require.NoError(t, err)
	defer store.Close()

	rec := stageRecord{Epoch: 1, TotalDebt: strings.Repeat("9", 1000), RecipientLen: 1}
	key := Key(1, "weights")
	require.NoError(t, store.Put(context.Background(), key, rec))

	var got stageRecord
	require.NoError(t, store.Get(context.Background(), key, &got))
	assert.Equal(t, rec, got)
}

func TestHas(t *testing.T) {
	store, err := Open(t.TempDir(), 1<<20)
	require.NoError(t, err)
	defer store.Close()

	key := Key(3, "budget")
	assert.False(t, store.Has(key))
	require.NoError(t, store.Put(context.Background(), key, stageRecord{Epoch: 3}))
	assert.True(t, store.Has(key))
}
