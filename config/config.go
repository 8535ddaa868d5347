package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

const (
	NonceModeFixed = "fixed"
	NonceModeChain = "chain"
	NonceModeStore = "store"

	DefaultConfigPath = "txsend.toml"
)

// Env vars that override values from the config file. Secrets should come from here rather
// than from the file.
const (
	EnvConfigPath       = "TXSEND_CONFIG_PATH"
	EnvRpc              = "TXSEND_RPC"
	EnvPrivateKey       = "TXSEND_PRIVATE_KEY"
	EnvKeystorePassword = "TXSEND_KEYSTORE_PASSWORD"
)

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Quantity is a wei amount written either as a toml integer (value = 1) or as a string holding
// a decimal or 0x hex integer (gas_price = "0x9184e72a000"). Parsing of the string form happens
// at signing.
type Quantity string

func (q *Quantity) UnmarshalTOML(v interface{}) error {
	switch t := v.(type) {
	case int64:
		if t < 0 {
			return fmt.Errorf("negative quantity %d", t)
		}
		*q = Quantity(strconv.FormatInt(t, 10))
	case string:
		*q = Quantity(strings.TrimSpace(t))
	default:
		return fmt.Errorf("quantity must be an integer or a string, got %T", v)
	}

	return nil
}

func (q Quantity) String() string {
	return string(q)
}

type LogDNAConfig struct {
	Secret        string   `toml:"secret"`
	AppName       string   `toml:"app_name"`
	HostName      string   `toml:"host_name"`
	FlushInterval Duration `toml:"flush_interval"`
	MaxBufferLen  int      `toml:"max_buffer_len"`
}

type TxSend struct {
	Chain             string   `toml:"chain"`
	Rpc               string   `toml:"rpc"`
	RpcTimeout        Duration `toml:"rpc_timeout"`
	Proxy             string   `toml:"proxy"`
	DialRetry         int      `toml:"dial_retry"`
	DialRetryInterval Duration `toml:"dial_retry_interval"`

	PrivateKey       string `toml:"private_key"`
	Keystore         string `toml:"keystore"`
	KeystorePassword string `toml:"-"`

	To        string   `toml:"to"`
	Gas       uint64   `toml:"gas"`
	GasPrice  Quantity `toml:"gas_price"`
	Value     Quantity `toml:"value"`
	Nonce     uint64   `toml:"nonce"`
	NonceMode string   `toml:"nonce_mode"`
	ChainId   int64    `toml:"chain_id"`

	WaitReceipt    bool     `toml:"wait_receipt"`
	ReceiptTimeout Duration `toml:"receipt_timeout"`

	ReporterUrl string `toml:"reporter_url"`

	UseDb           bool   `toml:"use_db"`
	DbHost          string `toml:"db_host"`
	DbPort          int    `toml:"db_port"`
	DbUsername      string `toml:"db_username"`
	DbPassword      string `toml:"db_password"`
	DbSchema        string `toml:"db_schema"`
	InMemory        bool   `toml:"in_memory"`
	DbMigrationPath string `toml:"db_migration_path"`

	LogDNA LogDNAConfig `toml:"log_dna"`
}

// Load reads the toml file at path, applies env overrides and defaults, and validates the
// result. An empty path falls back to TXSEND_CONFIG_PATH and then DefaultConfigPath.
func Load(path string) (TxSend, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultConfigPath
	}

	var cfg TxSend
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("cannot decode config file %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.SetDefaults()

	return cfg, cfg.Validate()
}

func (c *TxSend) applyEnv() {
	if v := os.Getenv(EnvRpc); v != "" {
		c.Rpc = v
	}
	if v := os.Getenv(EnvPrivateKey); v != "" {
		c.PrivateKey = v
	}
	if v, ok := os.LookupEnv(EnvKeystorePassword); ok {
		c.KeystorePassword = v
	}
}

func (c *TxSend) SetDefaults() {
	if c.Chain == "" {
		c.Chain = "eth"
	}
	if c.RpcTimeout.Duration == 0 {
		c.RpcTimeout.Duration = 30 * time.Second
	}
	if c.DialRetryInterval.Duration == 0 {
		c.DialRetryInterval.Duration = 5 * time.Second
	}
	if c.Gas == 0 {
		c.Gas = 100_000
	}
	if c.GasPrice == "" {
		c.GasPrice = "0x9184e72a000"
	}
	if c.Value == "" {
		c.Value = "1"
	}
	c.NonceMode = strings.ToLower(c.NonceMode)
	if c.NonceMode == "" {
		c.NonceMode = NonceModeFixed
	}
	if c.ReceiptTimeout.Duration == 0 {
		c.ReceiptTimeout.Duration = time.Minute
	}
	if c.DbSchema == "" {
		c.DbSchema = "txsend"
	}
	if c.DbPort == 0 {
		c.DbPort = 3306
	}
	if c.DbMigrationPath == "" {
		c.DbMigrationPath = "file://database/migrations"
	}
}

func (c *TxSend) Validate() error {
	if c.Rpc == "" {
		return fmt.Errorf("rpc endpoint is not set")
	}
	if c.PrivateKey == "" && c.Keystore == "" {
		return fmt.Errorf("either private_key or keystore must be set")
	}
	if !common.IsHexAddress(c.To) {
		return fmt.Errorf("invalid recipient address %q", c.To)
	}

	switch c.NonceMode {
	case NonceModeFixed, NonceModeChain:
	case NonceModeStore:
		if !c.UseDb {
			return fmt.Errorf("nonce_mode %q requires use_db", c.NonceMode)
		}
	default:
		return fmt.Errorf("unknown nonce_mode %q", c.NonceMode)
	}

	if c.DialRetry < 0 {
		return fmt.Errorf("dial_retry cannot be negative")
	}
	if c.ChainId < 0 {
		return fmt.Errorf("chain_id cannot be negative")
	}

	return nil
}
