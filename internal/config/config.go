// Package config loads chipctl settings from ~/.config/esp5791/config.yaml
// and the environment.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"github.com/xtools-at/esp5791/pkg/attestation"
	"github.com/xtools-at/esp5791/pkg/session"
	"github.com/xtools-at/esp5791/pkg/transport"
)

// Environment variables read by LoadFromEnv.
const (
	EnvRPCURL     = "ESP5791_RPC_URL"
	EnvPrivateKey = "ESP5791_PRIVATE_KEY"
	EnvContract   = "ESP5791_CONTRACT"
)

// Requirement errors returned when a command needs a setting that is unset.
var (
	ErrNoRPCURL     = errors.New("rpc_url is not set")
	ErrNoContract   = errors.New("contract is not set")
	ErrNoPrivateKey = errors.New(EnvPrivateKey + " is not set")
)

// Timeouts holds the per-step session deadlines.
type Timeouts struct {
	Discover  time.Duration `json:"discover" yaml:"discover"`
	Connect   time.Duration `json:"connect" yaml:"connect"`
	Read      time.Duration `json:"read" yaml:"read"`
	Write     time.Duration `json:"write" yaml:"write"`
	Signature time.Duration `json:"signature" yaml:"signature"`
}

// Config holds chipctl configuration.
type Config struct {
	// RPCURL is the JSON-RPC endpoint of the chain node.
	RPCURL string `json:"rpc_url,omitempty" yaml:"rpc_url,omitempty"`

	// Contract is the verifier contract address.
	Contract string `json:"contract,omitempty" yaml:"contract,omitempty"`

	// DBPath overrides the discovery log and claim history database.
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`

	// FreshnessBound is the maximum checkpoint age accepted at submission.
	FreshnessBound time.Duration `json:"freshness_bound" yaml:"freshness_bound"`

	Timeouts    Timeouts      `json:"timeouts" yaml:"timeouts"`
	SettleDelay time.Duration `json:"settle_delay" yaml:"settle_delay"`

	// Hashed sends keccak256 of the challenge instead of the raw payload.
	Hashed bool `json:"hashed" yaml:"hashed"`

	// AnyDevice disables the chip service filter. Development only.
	AnyDevice bool `json:"any_device" yaml:"any_device"`

	SafeTransfer bool `json:"safe_transfer" yaml:"safe_transfer"`

	// PrivateKey signs verifier transactions. Never read from or written to
	// the config file.
	PrivateKey string `json:"-" yaml:"-"`
}

// DefaultConfig returns configuration with defaults.
func DefaultConfig() *Config {
	sc := session.DefaultConfig()
	return &Config{
		FreshnessBound: attestation.DefaultFreshnessBound,
		Timeouts: Timeouts{
			Discover:  sc.DiscoverTimeout,
			Connect:   sc.ConnectTimeout,
			Read:      sc.ReadTimeout,
			Write:     sc.WriteTimeout,
			Signature: sc.SignatureTimeout,
		},
		SettleDelay:  sc.SettleDelay,
		SafeTransfer: true,
	}
}

// Path returns the default config file location, or "" if the home
// directory cannot be determined.
func Path() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "esp5791", "config.yaml")
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadFromEnv applies environment overrides. The private key is only ever
// taken from the environment.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv(EnvRPCURL); v != "" {
		c.RPCURL = v
	}
	if v := os.Getenv(EnvContract); v != "" {
		c.Contract = v
	}
	c.PrivateKey = os.Getenv(EnvPrivateKey)
	return nil
}

// Validate checks configuration for errors. Unset optional values pass;
// commands that need them call the Require methods.
func (c *Config) Validate() error {
	t := c.Timeouts
	if t.Discover <= 0 || t.Connect <= 0 || t.Read <= 0 || t.Write <= 0 || t.Signature <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}
	if c.FreshnessBound <= 0 {
		return fmt.Errorf("freshness_bound must be positive")
	}
	if c.RPCURL != "" {
		u, err := url.Parse(c.RPCURL)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("rpc_url %q is not a URL", c.RPCURL)
		}
	}
	if c.Contract != "" && !common.IsHexAddress(c.Contract) {
		return fmt.Errorf("contract %q is not an address", c.Contract)
	}
	if c.PrivateKey != "" {
		if _, err := c.Key(); err != nil {
			return err
		}
	}
	return nil
}

// RequireRPC returns ErrNoRPCURL if no node is configured.
func (c *Config) RequireRPC() error {
	if c.RPCURL == "" {
		return ErrNoRPCURL
	}
	return nil
}

// RequireContract returns ErrNoContract if no verifier address is configured.
func (c *Config) RequireContract() error {
	if c.Contract == "" {
		return ErrNoContract
	}
	return nil
}

// Key parses the private key. Returns ErrNoPrivateKey when unset.
func (c *Config) Key() (*ecdsa.PrivateKey, error) {
	if c.PrivateKey == "" {
		return nil, ErrNoPrivateKey
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid private key", EnvPrivateKey)
	}
	return key, nil
}

// ContractAddress returns the verifier address.
func (c *Config) ContractAddress() (common.Address, error) {
	if err := c.RequireContract(); err != nil {
		return common.Address{}, err
	}
	return attestation.ParseAddress(c.Contract)
}

// SessionConfig maps the settings onto a session configuration.
func (c *Config) SessionConfig() session.Config {
	sc := session.DefaultConfig()
	sc.DiscoverTimeout = c.Timeouts.Discover
	sc.ConnectTimeout = c.Timeouts.Connect
	sc.ReadTimeout = c.Timeouts.Read
	sc.WriteTimeout = c.Timeouts.Write
	sc.SignatureTimeout = c.Timeouts.Signature
	sc.SettleDelay = c.SettleDelay
	sc.Hashed = c.Hashed
	if c.AnyDevice {
		sc.Filter = transport.ServiceFilter{AcceptAll: true}
	}
	return sc
}

// Gate returns a freshness gate using FreshnessBound.
func (c *Config) Gate() *attestation.Gate {
	return &attestation.Gate{FreshnessBound: c.FreshnessBound}
}
