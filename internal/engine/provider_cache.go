package engine

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	cache "github.com/patrickmn/go-cache"
)

const (
	GasPriceTTL         = 30 * time.Second
	TransactionCountTTL = 2 * time.Second
	cacheCleanup        = time.Minute
)

const (
	keyGasPrice       = "gas_price"
	keyTxCountPrefix  = "tx_count:"
	keyDecimalsPrefix = "decimals:"
)

// ProviderCache holds short-lived RPC answers so repeated reads inside the
// TTL skip the network. Decimals never expire.
type ProviderCache struct {
	cache    *cache.Cache
	gasTTL   time.Duration
	countTTL time.Duration
}

func NewProviderCache() *ProviderCache {
	return NewProviderCacheWithTTL(GasPriceTTL, TransactionCountTTL)
}

func NewProviderCacheWithTTL(gasTTL, countTTL time.Duration) *ProviderCache {
	return &ProviderCache{
		cache:    cache.New(gasTTL, cacheCleanup),
		gasTTL:   gasTTL,
		countTTL: countTTL,
	}
}

// GasPrice returns a copy of the cached price.
func (c *ProviderCache) GasPrice() (*big.Int, bool) {
	if x, found := c.cache.Get(keyGasPrice); found {
		return new(big.Int).Set(x.(*big.Int)), true
	}
	return nil, false
}

func (c *ProviderCache) SetGasPrice(price *big.Int) {
	c.cache.Set(keyGasPrice, new(big.Int).Set(price), c.gasTTL)
}

func (c *ProviderCache) TransactionCount(account common.Address, pending bool) (uint64, bool) {
	if x, found := c.cache.Get(txCountKey(account, pending)); found {
		return x.(uint64), true
	}
	return 0, false
}

func (c *ProviderCache) SetTransactionCount(account common.Address, pending bool, count uint64) {
	c.cache.Set(txCountKey(account, pending), count, c.countTTL)
}

func (c *ProviderCache) Decimals(asset common.Address) (uint8, bool) {
	if x, found := c.cache.Get(keyDecimalsPrefix + strings.ToLower(asset.Hex())); found {
		return x.(uint8), true
	}
	return 0, false
}

func (c *ProviderCache) SetDecimals(asset common.Address, decimals uint8) {
	c.cache.Set(keyDecimalsPrefix+strings.ToLower(asset.Hex()), decimals, cache.NoExpiration)
}

func (c *ProviderCache) Flush() {
	c.cache.Flush()
}

func txCountKey(account common.Address, pending bool) string {
	tag := "latest"
	if pending {
		tag = "pending"
	}
	return keyTxCountPrefix + strings.ToLower(account.Hex()) + ":" + tag
}
