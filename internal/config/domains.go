package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoProviders    = errors.New("domain has no providers configured")
	ErrQuorumTooLarge = errors.New("quorum exceeds provider count")
	ErrNoDomains      = errors.New("no domains configured")
)

// Wei is a base-unit amount written in YAML as a decimal string ("5000000000")
// or a gwei shorthand ("5gwei").
type Wei struct {
	*big.Int
}

func (w *Wei) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseWei(value.Value)
	if err != nil {
		return err
	}
	w.Int = v
	return nil
}

// ParseWei accepts "123", "0x7b" or "<n>gwei".
func ParseWei(raw string) (*big.Int, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return nil, nil
	}
	if g, ok := strings.CutSuffix(s, "gwei"); ok {
		f, _, err := big.ParseFloat(strings.TrimSpace(g), 10, 256, big.ToNearestEven)
		if err != nil {
			return nil, fmt.Errorf("invalid gwei amount %q: %w", raw, err)
		}
		out, _ := new(big.Float).Mul(f, big.NewFloat(1e9)).Int(nil)
		return out, nil
	}
	out, ok := new(big.Int).SetString(s, 0)
	if !ok || out.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount %q", raw)
	}
	return out, nil
}

// ProviderConfig describes one RPC endpoint of a domain.
type ProviderConfig struct {
	URL          string        `yaml:"url"`
	Priority     float64       `yaml:"priority"`
	Weight       float64       `yaml:"weight"`
	StallTimeout time.Duration `yaml:"stallTimeout"`
}

// DomainConfig is the per-domain configuration surface of the aggregation engine.
type DomainConfig struct {
	ChainID                     int64            `yaml:"chainId"`
	Providers                   []ProviderConfig `yaml:"providers"`
	Quorum                      int              `yaml:"quorum"`
	Confirmations               int              `yaml:"confirmations"`
	ConfirmationTimeout         time.Duration    `yaml:"confirmationTimeout"`
	GasPriceMinimum             Wei              `yaml:"gasPriceMinimum"`
	GasPriceMaximum             Wei              `yaml:"gasPriceMaximum"`
	GasPriceInitialBoostPercent int64            `yaml:"gasPriceInitialBoostPercent"`
	GasPriceMaxIncreaseScalar   int64            `yaml:"gasPriceMaxIncreaseScalar"`
	HardcodedGasPrice           Wei              `yaml:"hardcodedGasPrice"`
	SkipGasPriceMinimum         bool             `yaml:"skipGasPriceMinimum"`
	GasLimitInflation           uint64           `yaml:"gasLimitInflation"`
	MaxProviderCPS              float64          `yaml:"maxProviderCPS"`
	GasStations                 []string         `yaml:"gasStations"`
}

type domainsFile struct {
	Domains map[string]DomainConfig `yaml:"domains"`
}

const (
	DefaultConfirmations       = 1
	DefaultConfirmationTimeout = 5 * time.Minute
	DefaultMaxProviderCPS      = 10
)

// LoadDomains reads and validates the YAML domains file.
func LoadDomains(path string) (map[string]DomainConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domains file: %w", err)
	}
	return ParseDomains(raw)
}

func ParseDomains(raw []byte) (map[string]DomainConfig, error) {
	var f domainsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse domains file: %w", err)
	}
	if len(f.Domains) == 0 {
		return nil, ErrNoDomains
	}
	for id, d := range f.Domains {
		d.ApplyDefaults()
		if err := d.Validate(id); err != nil {
			return nil, err
		}
		f.Domains[id] = d
	}
	return f.Domains, nil
}

// ApplyDefaults fills the optional knobs left empty in the file.
func (d *DomainConfig) ApplyDefaults() {
	if d.Quorum == 0 {
		d.Quorum = 1
	}
	if d.Confirmations <= 0 {
		d.Confirmations = DefaultConfirmations
	}
	if d.ConfirmationTimeout <= 0 {
		d.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	if d.MaxProviderCPS <= 0 {
		d.MaxProviderCPS = DefaultMaxProviderCPS
	}
	for i := range d.Providers {
		if d.Providers[i].Weight <= 0 {
			d.Providers[i].Weight = 1
		}
	}
}

// Validate fails fast on configurations the engine cannot serve.
func (d DomainConfig) Validate(domain string) error {
	if len(d.Providers) == 0 {
		return fmt.Errorf("domain %s: %w", domain, ErrNoProviders)
	}
	for i, p := range d.Providers {
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("domain %s: provider %d has an empty url", domain, i)
		}
	}
	if d.Quorum < 1 {
		return fmt.Errorf("domain %s: quorum must be at least 1, got %d", domain, d.Quorum)
	}
	if d.Quorum > len(d.Providers) {
		return fmt.Errorf("domain %s: %w (quorum %d, providers %d)", domain, ErrQuorumTooLarge, d.Quorum, len(d.Providers))
	}
	if d.GasPriceMinimum.Int != nil && d.GasPriceMaximum.Int != nil && d.GasPriceMinimum.Cmp(d.GasPriceMaximum.Int) > 0 {
		return fmt.Errorf("domain %s: gasPriceMinimum %s above gasPriceMaximum %s", domain, d.GasPriceMinimum, d.GasPriceMaximum)
	}
	if d.GasPriceInitialBoostPercent < 0 {
		return fmt.Errorf("domain %s: gasPriceInitialBoostPercent must not be negative", domain)
	}
	return nil
}
