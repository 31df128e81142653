package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"github.com/xtools-at/esp5791/pkg/attestation"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestPath(t *testing.T) {
	path := Path()
	if path == "" {
		t.Skip("Could not determine home directory")
	}
	expected := filepath.Join(".config", "esp5791", "config.yaml")
	if !strings.HasSuffix(path, expected) {
		t.Errorf("Path() = %q, want path ending with %q", path, expected)
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if cfg.FreshnessBound != attestation.DefaultFreshnessBound {
		t.Errorf("FreshnessBound = %v", cfg.FreshnessBound)
	}
	if !cfg.SafeTransfer {
		t.Error("SafeTransfer should default to true")
	}
	if cfg.Timeouts.Signature <= cfg.Timeouts.Write {
		t.Error("signature wait should have the longest bound")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Timeouts != DefaultConfig().Timeouts {
		t.Errorf("Timeouts = %+v", cfg.Timeouts)
	}
}

func TestLoad_OverlaysFileOnDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "rpc_url: http://127.0.0.1:8545\n" +
		"contract: \"0x5FbDB2315678afecb367f032d93F642f64180aa3\"\n" +
		"freshness_bound: 5m\n" +
		"timeouts:\n  signature: 30s\n" +
		"hashed: true\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RPCURL != "http://127.0.0.1:8545" {
		t.Errorf("RPCURL = %q", cfg.RPCURL)
	}
	if cfg.FreshnessBound != 5*time.Minute {
		t.Errorf("FreshnessBound = %v, want 5m", cfg.FreshnessBound)
	}
	if cfg.Timeouts.Signature != 30*time.Second {
		t.Errorf("Timeouts.Signature = %v, want 30s", cfg.Timeouts.Signature)
	}
	t.Log("Keys absent from the file keep their defaults")
	if cfg.Timeouts.Connect != DefaultConfig().Timeouts.Connect {
		t.Errorf("Timeouts.Connect = %v", cfg.Timeouts.Connect)
	}
	if !cfg.SafeTransfer {
		t.Error("SafeTransfer lost its default")
	}
	if !cfg.Hashed {
		t.Error("Hashed = false, want true")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("timeouts: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSave_NeverWritesPrivateKey(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.RPCURL = "http://127.0.0.1:8545"
	cfg.PrivateKey = testKey

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), testKey) {
		t.Error("private key written to config file")
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if loaded.RPCURL != cfg.RPCURL || loaded.Timeouts != cfg.Timeouts {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadFromEnv(t *testing.T) {
	// Cannot run in parallel - modifies environment variables
	t.Setenv(EnvRPCURL, "http://env.example:8545")
	t.Setenv(EnvContract, "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv(EnvPrivateKey, "0x"+testKey)

	cfg := DefaultConfig()
	cfg.RPCURL = "http://file.example:8545"
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.RPCURL != "http://env.example:8545" {
		t.Errorf("RPCURL = %q, env should override file", cfg.RPCURL)
	}

	key, err := cfg.Key()
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	want, _ := crypto.HexToECDSA(testKey)
	if crypto.PubkeyToAddress(key.PublicKey) != crypto.PubkeyToAddress(want.PublicKey) {
		t.Error("Key() returned a different key")
	}

	addr, err := cfg.ContractAddress()
	if err != nil {
		t.Fatalf("ContractAddress() error = %v", err)
	}
	if addr.Hex() != "0x5FbDB2315678afecb367f032d93F642f64180aa3" {
		t.Errorf("ContractAddress() = %s", addr.Hex())
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero timeout", func(c *Config) { c.Timeouts.Read = 0 }, "timeouts"},
		{"negative settle", func(c *Config) { c.SettleDelay = -time.Second }, "settle_delay"},
		{"zero freshness", func(c *Config) { c.FreshnessBound = 0 }, "freshness_bound"},
		{"bad rpc url", func(c *Config) { c.RPCURL = "localhost" }, "rpc_url"},
		{"bad contract", func(c *Config) { c.Contract = "0x1234" }, "contract"},
		{"bad key", func(c *Config) { c.PrivateKey = "nothex" }, EnvPrivateKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestRequirements(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if err := cfg.RequireRPC(); err != ErrNoRPCURL {
		t.Errorf("RequireRPC() = %v", err)
	}
	if _, err := cfg.ContractAddress(); err != ErrNoContract {
		t.Errorf("ContractAddress() = %v", err)
	}
	if _, err := cfg.Key(); err != ErrNoPrivateKey {
		t.Errorf("Key() = %v", err)
	}
}

func TestSessionConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Timeouts.Signature = 42 * time.Second
	cfg.Hashed = true

	sc := cfg.SessionConfig()
	if sc.SignatureTimeout != 42*time.Second {
		t.Errorf("SignatureTimeout = %v", sc.SignatureTimeout)
	}
	if !sc.Hashed {
		t.Error("Hashed not carried")
	}
	if sc.Filter.AcceptAll {
		t.Error("filter should be scoped by default")
	}

	cfg.AnyDevice = true
	if !cfg.SessionConfig().Filter.AcceptAll {
		t.Error("AnyDevice should disable the service filter")
	}
	if err := cfg.SessionConfig().Validate(); err != nil {
		t.Errorf("SessionConfig().Validate() = %v", err)
	}
}
