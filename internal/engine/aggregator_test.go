package engine

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"settlement-rpc-go/internal/config"
	"settlement-rpc-go/pkg/network"
)

func TestConfigFromDomain(t *testing.T) {
	d := config.DomainConfig{
		ChainID:                     137,
		Quorum:                      2,
		Confirmations:               3,
		ConfirmationTimeout:         time.Minute,
		GasPriceMaximum:             config.Wei{Int: gwei(500)},
		GasPriceInitialBoostPercent: 10,
		GasPriceMaxIncreaseScalar:   200,
		GasLimitInflation:           5000,
		MaxProviderCPS:              25,
		GasStations:                 []string{"https://gasstation.example/v2"},
	}

	cfg := ConfigFromDomain("polygon", d, 15*time.Second)

	assert.Equal(t, "polygon", cfg.Domain)
	assert.Equal(t, int64(137), cfg.ChainID.Int64())
	assert.Equal(t, 2, cfg.Quorum)
	assert.Equal(t, 3, cfg.Confirmations)
	assert.Equal(t, 0, gwei(500).Cmp(cfg.GasPrice.Maximum))
	assert.Nil(t, cfg.GasPrice.Minimum)
	assert.Equal(t, int64(10), cfg.GasPrice.InitialBoostPercent)
	assert.Equal(t, uint64(5000), cfg.GasLimitInflation)
	assert.Equal(t, 25.0, cfg.MaxProviderCPS)
	assert.Equal(t, 15*time.Second, cfg.SyncInterval)
	assert.Equal(t, []string{"https://gasstation.example/v2"}, cfg.GasStations)
}

func TestSnapshotMarksLead(t *testing.T) {
	clients := []*MockEndpoint{newMockEndpoint("a"), newMockEndpoint("b")}
	clients[0].syncsTo(100 - MaxLag)
	clients[1].syncsTo(100)
	a := newTestAggregator(t, AggregatorConfig{Quorum: 1}, clients...)
	require.NoError(t, a.Sync(context.Background()))

	s := a.Snapshot()
	assert.Equal(t, "test", s.Domain)
	assert.Equal(t, uint64(100), s.HighestBlock)
	assert.Equal(t, DefaultBlockPeriod.Milliseconds(), s.BlockPeriodMs)
	require.Len(t, s.Providers, 2)
	assert.False(t, s.Providers[0].Lead)
	assert.False(t, s.Providers[0].Synced)
	assert.True(t, s.Providers[1].Lead)
	assert.Equal(t, "b", s.Providers[1].Name)
}

func TestStartAndClose(t *testing.T) {
	var syncs atomic.Int32
	c := newMockEndpoint("a")
	c.On("Sync", mock.Anything).Run(func(mock.Arguments) {
		syncs.Add(1)
		c.health.SetSyncedBlockNumber(500)
	}).Return(nil)
	c.On("HeaderByNumber", mock.Anything, (*big.Int)(nil)).Return(&types.Header{Number: big.NewInt(500), Time: 1003}, nil)
	c.On("HeaderByNumber", mock.Anything, big.NewInt(499)).Return(&types.Header{Number: big.NewInt(499), Time: 1000}, nil)
	c.On("Close").Return()

	a := newTestAggregator(t, AggregatorConfig{SyncInterval: 5 * time.Millisecond}, c)
	a.Start(context.Background())

	assert.Equal(t, uint64(500), a.HighestBlock(), "first sync completes before Start returns")
	assert.Eventually(t, func() bool { return a.BlockPeriod() == 3*time.Second }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return syncs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	a.Close()
	c.AssertCalled(t, "Close")
	after := syncs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, syncs.Load(), "no syncs after Close")
}

type chainEndpoint struct {
	*MockEndpoint
	id int64
}

func (c chainEndpoint) ChainID(context.Context) (*big.Int, error) { return big.NewInt(c.id), nil }

func TestVerifyChainIDs(t *testing.T) {
	good := chainEndpoint{MockEndpoint: newMockEndpoint("good"), id: 137}
	wrong := chainEndpoint{MockEndpoint: newMockEndpoint("wrong"), id: 1}
	plain := newMockEndpoint("plain")

	a, err := NewAggregator(AggregatorConfig{Domain: "polygon", ChainID: big.NewInt(137)}, []EndpointClient{good, wrong, plain})
	require.NoError(t, err)

	errs := a.VerifyChainIDs(context.Background())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs["wrong"], network.ErrChainIDMismatch)
	assert.Equal(t, "Polygon PoS", a.Snapshot().Network)
}
