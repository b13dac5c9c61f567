// Package config handles YAML configuration parsing.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"pharosbot/internal/chain"
	"pharosbot/internal/template"

	"gopkg.in/yaml.v3"
)

// DefaultInviteCode is used when a run is started without an invite code.
const DefaultInviteCode = "S6NGMzXSCDBxhnwo"

// Config is the root configuration structure.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Chain    ChainConfig    `yaml:"chain"`
	Accounts AccountsConfig `yaml:"accounts"`
	Retry    RetryConfig    `yaml:"retry"`
	Server   ServerConfig   `yaml:"server"`
}

// APIConfig describes the remote task service.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	RPS          int           `yaml:"rps"` // 0 disables pacing
	InviteCode   string        `yaml:"invite_code"`
	LoginMessage string        `yaml:"login_message"`
	Referer      string        `yaml:"referer"`
	UserAgents   []string      `yaml:"user_agents"`
}

// ChainConfig describes the ledger and the on-chain task rounds.
type ChainConfig struct {
	RPCURL           string        `yaml:"rpc_url"`
	ChainID          int64         `yaml:"chain_id"` // 0 = ask the node
	ReceiptTimeout   time.Duration `yaml:"receipt_timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxPriorityFee   uint64        `yaml:"max_priority_fee_wei"`
	MaxFee           uint64        `yaml:"max_fee_wei"`
	MinNativeBalance string        `yaml:"min_native_balance"`
	DeadlineWindow   time.Duration `yaml:"deadline_window"`

	Gas       GasConfig       `yaml:"gas"`
	Rounds    RoundsConfig    `yaml:"rounds"`
	Amounts   AmountsConfig   `yaml:"amounts"`
	Delays    DelaysConfig    `yaml:"delays"`
	Contracts ContractsConfig `yaml:"contracts"`
	Tokens    []TokenConfig   `yaml:"tokens"`
	Pools     []PoolConfig    `yaml:"pools"`
	TaskIDs   TaskIDsConfig   `yaml:"task_ids"`
}

type GasConfig struct {
	Transfer  uint64 `yaml:"transfer"`
	Approve   uint64 `yaml:"approve"`
	Wrap      uint64 `yaml:"wrap"`
	Swap      uint64 `yaml:"swap"`
	Liquidity uint64 `yaml:"liquidity"`
}

type RoundsConfig struct {
	Transfer  int `yaml:"transfer"`
	Wrap      int `yaml:"wrap"`
	Swap      int `yaml:"swap"`
	Liquidity int `yaml:"liquidity"`
}

// AmountsConfig holds decimal token amounts, e.g. "0.01".
type AmountsConfig struct {
	Transfer  string `yaml:"transfer"`
	WrapMin   string `yaml:"wrap_min"`
	WrapMax   string `yaml:"wrap_max"`
	Swap      string `yaml:"swap"`
	Liquidity string `yaml:"liquidity"`
}

type DelaysConfig struct {
	Transfer  time.Duration `yaml:"transfer"`
	Wrap      time.Duration `yaml:"wrap"`
	Swap      time.Duration `yaml:"swap"`
	Liquidity time.Duration `yaml:"liquidity"`
}

type ContractsConfig struct {
	WrappedNative   string `yaml:"wrapped_native"`
	Router          string `yaml:"router"`
	PositionManager string `yaml:"position_manager"`
}

type TokenConfig struct {
	Symbol  string `yaml:"symbol"`
	Address string `yaml:"address"`
}

// PoolConfig is a two-token pool; Base is the wrapped native token.
type PoolConfig struct {
	Address string `yaml:"address"`
	Base    string `yaml:"base"`
	Quote   string `yaml:"quote"`
}

type TaskIDsConfig struct {
	Transfer  int `yaml:"transfer"`
	Wrap      int `yaml:"wrap"`
	Swap      int `yaml:"swap"`
	Liquidity int `yaml:"liquidity"`
}

type AccountsConfig struct {
	File string `yaml:"file"`
}

// RetryConfig sets the retry budget per step class.
type RetryConfig struct {
	Auth   RetryPolicyConfig `yaml:"auth"`
	Soft   RetryPolicyConfig `yaml:"soft"`
	Verify RetryPolicyConfig `yaml:"verify"`
	Tx     RetryPolicyConfig `yaml:"tx"`
}

type RetryPolicyConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Delay      time.Duration `yaml:"delay"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a complete configuration for the Pharos testnet.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:      "https://api.pharosnetwork.xyz",
			Timeout:      30 * time.Second,
			RPS:          2,
			InviteCode:   DefaultInviteCode,
			LoginMessage: "pharos",
			Referer:      "https://testnet.pharosnetwork.xyz/",
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			},
		},
		Chain: ChainConfig{
			RPCURL:           "https://atlantic.dplabs-internal.com",
			ReceiptTimeout:   2 * time.Minute,
			PollInterval:     time.Second,
			MaxPriorityFee:   1_000_000_000,
			MaxFee:           20_000_000_000,
			MinNativeBalance: "0.001",
			DeadlineWindow:   30 * time.Minute,
			Gas: GasConfig{
				Transfer:  21_000,
				Approve:   100_000,
				Wrap:      100_000,
				Swap:      500_000,
				Liquidity: 800_000,
			},
			Rounds: RoundsConfig{Transfer: 10, Wrap: 10, Swap: 10, Liquidity: 10},
			Amounts: AmountsConfig{
				Transfer:  "0.000001",
				WrapMin:   "0.001",
				WrapMax:   "0.005",
				Swap:      "0.01",
				Liquidity: "0.0001",
			},
			Delays: DelaysConfig{
				Transfer:  time.Second,
				Wrap:      time.Second,
				Swap:      2 * time.Second,
				Liquidity: 2 * time.Second,
			},
			Contracts: ContractsConfig{
				WrappedNative:   "0x838800b758277cc111b2d48ab01e5e164f8e9471",
				Router:          "0x819829e5cf6e19f9fed92f6b4cc1edf45a2cc4a2",
				PositionManager: "0x680829027709e2ef95d079ac97ddf5feab82d248",
			},
			Tokens: []TokenConfig{
				{Symbol: "WPHRS", Address: "0x838800b758277cc111b2d48ab01e5e164f8e9471"},
				{Symbol: "USDC", Address: "0xe0be08c77f415f577a1b3a9ad7a1df1479564ec8"},
				{Symbol: "USDT", Address: "0xe7e84b8b4f39c507499c40b4ac199b050e2882d5"},
			},
			Pools: []PoolConfig{
				{Address: "0x969d72e652a2223a372d82992d27847726756210", Base: "WPHRS", Quote: "USDC"},
				{Address: "0xc4874f67c42732a677337c726a481f26487df770", Base: "WPHRS", Quote: "USDT"},
			},
			TaskIDs: TaskIDsConfig{Transfer: 401, Wrap: 401, Swap: 402, Liquidity: 401},
		},
		Accounts: AccountsConfig{File: "accounts.yaml"},
		Server:   ServerConfig{Listen: "127.0.0.1:8787"},
	}
}

// LoadConfig reads a YAML configuration file on top of Default.
// ${env:VAR} placeholders are expanded before parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := template.ExpandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Token looks up a configured token by symbol.
func (c *ChainConfig) Token(symbol string) (TokenConfig, bool) {
	for _, t := range c.Tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return TokenConfig{}, false
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}
	if c.API.RPS < 0 {
		errs = append(errs, errors.New("api.rps must be >= 0"))
	}
	if c.Chain.RPCURL == "" {
		errs = append(errs, errors.New("chain.rpc_url is required"))
	}
	if c.Chain.ReceiptTimeout <= 0 {
		errs = append(errs, errors.New("chain.receipt_timeout must be positive"))
	}
	if c.Chain.MaxFee < c.Chain.MaxPriorityFee {
		errs = append(errs, errors.New("chain.max_fee_wei must be >= chain.max_priority_fee_wei"))
	}

	r := c.Chain.Rounds
	if r.Transfer < 0 || r.Wrap < 0 || r.Swap < 0 || r.Liquidity < 0 {
		errs = append(errs, errors.New("chain.rounds must be >= 0"))
	}

	amounts := map[string]string{
		"chain.min_native_balance": c.Chain.MinNativeBalance,
		"chain.amounts.transfer":   c.Chain.Amounts.Transfer,
		"chain.amounts.wrap_min":   c.Chain.Amounts.WrapMin,
		"chain.amounts.wrap_max":   c.Chain.Amounts.WrapMax,
		"chain.amounts.swap":       c.Chain.Amounts.Swap,
		"chain.amounts.liquidity":  c.Chain.Amounts.Liquidity,
	}
	for name, v := range amounts {
		if _, err := chain.ParseUnits(v, 18); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if lo, err1 := chain.ParseUnits(c.Chain.Amounts.WrapMin, 18); err1 == nil {
		if hi, err2 := chain.ParseUnits(c.Chain.Amounts.WrapMax, 18); err2 == nil && hi.Cmp(lo) < 0 {
			errs = append(errs, errors.New("chain.amounts.wrap_max must be >= wrap_min"))
		}
	}

	addrs := map[string]string{
		"chain.contracts.wrapped_native":   c.Chain.Contracts.WrappedNative,
		"chain.contracts.router":           c.Chain.Contracts.Router,
		"chain.contracts.position_manager": c.Chain.Contracts.PositionManager,
	}
	for _, t := range c.Chain.Tokens {
		addrs["chain.tokens."+t.Symbol] = t.Address
	}
	for _, p := range c.Chain.Pools {
		addrs["chain.pools."+p.Base+"/"+p.Quote] = p.Address
		for _, sym := range []string{p.Base, p.Quote} {
			if _, ok := c.Chain.Token(sym); !ok {
				errs = append(errs, fmt.Errorf("chain.pools: unknown token %q", sym))
			}
		}
	}
	for name, a := range addrs {
		if !chain.IsHexAddress(a) {
			errs = append(errs, fmt.Errorf("%s: %q is not a hex address", name, a))
		}
	}

	for name, p := range map[string]RetryPolicyConfig{
		"retry.auth": c.Retry.Auth, "retry.soft": c.Retry.Soft,
		"retry.verify": c.Retry.Verify, "retry.tx": c.Retry.Tx,
	} {
		if p.MaxRetries < 0 || p.Delay < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	return errors.Join(errs...)
}
