package session

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBeginDiscardsPreviousFlow(t *testing.T) {
	store := NewStore(time.Minute, zap.NewNop())

	sell := store.Begin(7, FlowSell, StateAwaitToken)
	sell.Token = common.HexToAddress("0x00000000000000000000000000000000000000DD")
	sell.TokenSymbol = "INKY"

	buy := store.Begin(7, FlowBuy, StateAwaitToken)
	assert.Equal(t, FlowBuy, buy.Flow)
	assert.Equal(t, common.Address{}, buy.Token, "sell flow data must not leak into buy")
	assert.Empty(t, buy.TokenSymbol)

	got := store.Get(7)
	require.NotNil(t, got)
	assert.Equal(t, FlowBuy, got.Flow)
}

func TestGetReturnsNilWithoutSession(t *testing.T) {
	store := NewStore(time.Minute, zap.NewNop())
	assert.Nil(t, store.Get(1))
}

func TestClear(t *testing.T) {
	store := NewStore(time.Minute, zap.NewNop())
	store.Begin(7, FlowWithdraw, StateAwaitAssetType)
	store.Clear(7)
	assert.Nil(t, store.Get(7))
	// Clearing an absent session is a no-op.
	store.Clear(7)
}

func TestExpiry(t *testing.T) {
	store := NewStore(10*time.Millisecond, zap.NewNop())
	store.Begin(7, FlowBuy, StateAwaitToken)
	time.Sleep(25 * time.Millisecond)
	assert.Nil(t, store.Get(7), "expired session must not be returned")
}

func TestAccessRefreshesExpiry(t *testing.T) {
	store := NewStore(40*time.Millisecond, zap.NewNop())
	store.Begin(7, FlowBuy, StateAwaitToken)
	for i := 0; i < 3; i++ {
		time.Sleep(20 * time.Millisecond)
		require.NotNil(t, store.Get(7), "touch %d should keep the session alive", i)
	}
}

func TestSweepBoundsMemory(t *testing.T) {
	store := NewStore(10*time.Millisecond, zap.NewNop())
	for id := int64(1); id <= 5; id++ {
		store.Begin(id, FlowSell, StateAwaitToken)
	}
	time.Sleep(25 * time.Millisecond)
	store.sweep()

	store.mu.Lock()
	n := len(store.sessions)
	store.mu.Unlock()
	assert.Zero(t, n, "sweep must drop all expired sessions")
}

func TestSessionsAreIndependentPerUser(t *testing.T) {
	store := NewStore(time.Minute, zap.NewNop())
	a := store.Begin(1, FlowBuy, StateAwaitAmount)
	b := store.Begin(2, FlowSell, StateAwaitToken)
	a.TokenSymbol = "AAA"
	b.TokenSymbol = "BBB"

	assert.Equal(t, "AAA", store.Get(1).TokenSymbol)
	assert.Equal(t, "BBB", store.Get(2).TokenSymbol)
}
