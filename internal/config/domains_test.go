package config

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDomains = `
domains:
  "6648936":
    chainId: 1
    quorum: 2
    confirmations: 3
    confirmationTimeout: 90s
    gasPriceMinimum: 1gwei
    gasPriceMaximum: "100000000000"
    gasPriceMaxIncreaseScalar: 200
    gasPriceInitialBoostPercent: 10
    gasStations:
      - https://gas.example.org/eth
    providers:
      - url: https://eth-a.example.org
        stallTimeout: 4s
      - url: https://eth-b.example.org
        weight: 2
  "1869640809":
    chainId: 10
    skipGasPriceMinimum: true
    providers:
      - url: https://op.example.org
`

func TestParseDomains(t *testing.T) {
	domains, err := ParseDomains([]byte(sampleDomains))
	require.NoError(t, err)
	require.Len(t, domains, 2)

	eth := domains["6648936"]
	assert.Equal(t, int64(1), eth.ChainID)
	assert.Equal(t, 2, eth.Quorum)
	assert.Equal(t, 3, eth.Confirmations)
	assert.Equal(t, 90*time.Second, eth.ConfirmationTimeout)
	assert.Equal(t, 0, eth.GasPriceMinimum.Cmp(big.NewInt(1_000_000_000)))
	assert.Equal(t, 0, eth.GasPriceMaximum.Cmp(big.NewInt(100_000_000_000)))
	assert.Equal(t, int64(200), eth.GasPriceMaxIncreaseScalar)
	assert.Equal(t, []string{"https://gas.example.org/eth"}, eth.GasStations)
	require.Len(t, eth.Providers, 2)
	assert.Equal(t, 4*time.Second, eth.Providers[0].StallTimeout)
	assert.Equal(t, 1.0, eth.Providers[0].Weight)
	assert.Equal(t, 2.0, eth.Providers[1].Weight)

	op := domains["1869640809"]
	assert.Equal(t, 1, op.Quorum)
	assert.Equal(t, DefaultConfirmations, op.Confirmations)
	assert.Equal(t, DefaultConfirmationTimeout, op.ConfirmationTimeout)
	assert.Equal(t, float64(DefaultMaxProviderCPS), op.MaxProviderCPS)
	assert.True(t, op.SkipGasPriceMinimum)
	assert.Nil(t, op.HardcodedGasPrice.Int)
}

func TestParseDomainsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name:    "no domains",
			yaml:    "domains: {}",
			wantErr: ErrNoDomains,
		},
		{
			name: "no providers",
			yaml: `
domains:
  "1":
    providers: []
`,
			wantErr: ErrNoProviders,
		},
		{
			name: "quorum above provider count",
			yaml: `
domains:
  "1":
    quorum: 3
    providers:
      - url: https://a.example.org
      - url: https://b.example.org
`,
			wantErr: ErrQuorumTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDomains([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateGasBounds(t *testing.T) {
	d := DomainConfig{
		Providers:       []ProviderConfig{{URL: "https://a.example.org"}},
		Quorum:          1,
		GasPriceMinimum: Wei{big.NewInt(10)},
		GasPriceMaximum: Wei{big.NewInt(5)},
	}
	err := d.Validate("1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gasPriceMinimum")
}

func TestParseWei(t *testing.T) {
	tests := []struct {
		in   string
		want *big.Int
	}{
		{"", nil},
		{"42", big.NewInt(42)},
		{"0x64", big.NewInt(100)},
		{"1.5gwei", big.NewInt(1_500_000_000)},
		{"30 GWEI", big.NewInt(30_000_000_000)},
	}
	for _, tt := range tests {
		got, err := ParseWei(tt.in)
		require.NoError(t, err, tt.in)
		if tt.want == nil {
			assert.Nil(t, got)
			continue
		}
		assert.Equal(t, 0, tt.want.Cmp(got), "input %q -> %s", tt.in, got)
	}

	_, err := ParseWei("-1")
	assert.Error(t, err)
	_, err = ParseWei("abc")
	assert.Error(t, err)
}

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv("DOMAINS_FILE", "")
	t.Setenv("SYNC_INTERVAL", "bogus")
	t.Setenv("RPC_URLS", " https://a.example.org , ,https://b.example.org")

	cfg := Load()
	assert.Equal(t, "domains.yaml", cfg.DomainsFile)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, 10*time.Second, cfg.StallTimeout)
	assert.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, cfg.RPCURLs)
}
