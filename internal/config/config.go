// Package config loads and saves w3fund settings from ~/.w3fund/config.toml.
// Every key can be overridden by a W3FUND_<KEY> environment variable.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// DirEnv selects the config directory when no dir is passed to Load.
const DirEnv = "W3FUND_CONFIG_DIR"

const (
	envPrefix       = "W3FUND"
	configName      = "config"
	configType      = "toml"
	configFile      = "config.toml"
	walletsFile     = "wallets.json"
	grantsFile      = "grants.json"
	submissionsFile = "submissions.json"
	keysDir         = "keys"
	tempFilePattern = "config-*.toml.tmp"

	dirMode  = 0o700
	fileMode = 0o600
)

// Keys.
const (
	KeyRPCURL          = "rpc_url"
	KeyChainID         = "chain_id"
	KeyContractAddress = "contract_address"
	KeyConfirmTimeout  = "confirm_timeout"
	KeyConfirmBlocks   = "confirm_blocks"
	KeyPollInterval    = "poll_interval"
	KeyReadRetries     = "read_retries"
	KeyLogLevel        = "log_level"
	KeyDefaultWallet   = "default_wallet"
)

// Defaults target a fresh local hardhat node.
const (
	DefaultRPCURL          = "http://127.0.0.1:8545/"
	DefaultChainID         = int64(31337)
	DefaultContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	DefaultReadRetries     = uint(3)
	DefaultLogLevel        = "warn"
)

// ErrUnknownKey is returned by Set for keys the config does not have.
var ErrUnknownKey = errors.New("unknown config key")

// Config holds all w3fund configuration.
type Config struct {
	RPCURL          string
	ChainID         int64 // 0 asks the node on every submission
	ContractAddress string
	ConfirmTimeout  time.Duration
	ConfirmBlocks   uint64
	PollInterval    time.Duration
	ReadRetries     uint
	LogLevel        string
	DefaultWallet   string

	// internal: config dir path used for Save()
	configDir string
}

// fileSchema is the on-disk shape. Durations are stored as strings so the
// file stays hand-editable.
type fileSchema struct {
	RPCURL          string `toml:"rpc_url"`
	ChainID         int64  `toml:"chain_id"`
	ContractAddress string `toml:"contract_address"`
	ConfirmTimeout  string `toml:"confirm_timeout"`
	ConfirmBlocks   uint64 `toml:"confirm_blocks"`
	PollInterval    string `toml:"poll_interval"`
	ReadRetries     uint   `toml:"read_retries"`
	LogLevel        string `toml:"log_level"`
	DefaultWallet   string `toml:"default_wallet,omitempty"`
}

// Load reads config from dir (or creates defaults). dir defaults to
// $W3FUND_CONFIG_DIR, then ~/.w3fund.
func Load(dir string) (*Config, error) {
	dir, err := resolveDir(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{
		RPCURL:          strings.TrimSpace(v.GetString(KeyRPCURL)),
		ChainID:         v.GetInt64(KeyChainID),
		ContractAddress: strings.TrimSpace(v.GetString(KeyContractAddress)),
		ConfirmTimeout:  v.GetDuration(KeyConfirmTimeout),
		ConfirmBlocks:   v.GetUint64(KeyConfirmBlocks),
		PollInterval:    v.GetDuration(KeyPollInterval),
		ReadRetries:     v.GetUint(KeyReadRetries),
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		DefaultWallet:   v.GetString(KeyDefaultWallet),
		configDir:       dir,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func resolveDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	if env := os.Getenv(DirEnv); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home dir: %w", err)
	}
	return filepath.Join(home, ".w3fund"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyRPCURL, DefaultRPCURL)
	v.SetDefault(KeyChainID, DefaultChainID)
	v.SetDefault(KeyContractAddress, DefaultContractAddress)
	v.SetDefault(KeyConfirmTimeout, TxConfirmTimeout.String())
	v.SetDefault(KeyConfirmBlocks, 0)
	v.SetDefault(KeyPollInterval, TxPollInterval.String())
	v.SetDefault(KeyReadRetries, DefaultReadRetries)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyDefaultWallet, "")
}

// Validate checks that the node URL and contract address are usable and that
// confirmation waits are bounded.
func (c *Config) Validate() error {
	u, err := url.Parse(c.RPCURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: %q is not an http(s) URL", KeyRPCURL, c.RPCURL)
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("%s: %q is not an address", KeyContractAddress, c.ContractAddress)
	}
	if c.ChainID < 0 {
		return fmt.Errorf("%s: must not be negative", KeyChainID)
	}
	if c.ConfirmTimeout < 0 {
		return fmt.Errorf("%s: must not be negative", KeyConfirmTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%s: must be positive", KeyPollInterval)
	}
	if c.ConfirmTimeout == 0 && c.ConfirmBlocks == 0 {
		return fmt.Errorf("%s and %s cannot both be zero", KeyConfirmTimeout, KeyConfirmBlocks)
	}
	return nil
}

// Save writes the config to disk atomically.
func (c *Config) Save() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.configDir, dirMode); err != nil {
		return err
	}

	data, err := toml.Marshal(c.schema())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(c.configDir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpName, c.Path()); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	cleanup = false
	return nil
}

func (c *Config) schema() fileSchema {
	return fileSchema{
		RPCURL:          c.RPCURL,
		ChainID:         c.ChainID,
		ContractAddress: c.ContractAddress,
		ConfirmTimeout:  c.ConfirmTimeout.String(),
		ConfirmBlocks:   c.ConfirmBlocks,
		PollInterval:    c.PollInterval.String(),
		ReadRetries:     c.ReadRetries,
		LogLevel:        c.LogLevel,
		DefaultWallet:   c.DefaultWallet,
	}
}

// Keys lists every settable key, sorted.
func Keys() []string {
	keys := []string{
		KeyRPCURL, KeyChainID, KeyContractAddress, KeyConfirmTimeout, KeyConfirmBlocks,
		KeyPollInterval, KeyReadRetries, KeyLogLevel, KeyDefaultWallet,
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of key formatted as it would be written.
func (c *Config) Get(key string) (string, error) {
	s := c.schema()
	switch key {
	case KeyRPCURL:
		return s.RPCURL, nil
	case KeyChainID:
		return strconv.FormatInt(s.ChainID, 10), nil
	case KeyContractAddress:
		return s.ContractAddress, nil
	case KeyConfirmTimeout:
		return s.ConfirmTimeout, nil
	case KeyConfirmBlocks:
		return strconv.FormatUint(s.ConfirmBlocks, 10), nil
	case KeyPollInterval:
		return s.PollInterval, nil
	case KeyReadRetries:
		return strconv.FormatUint(uint64(s.ReadRetries), 10), nil
	case KeyLogLevel:
		return s.LogLevel, nil
	case KeyDefaultWallet:
		return s.DefaultWallet, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// Set parses value into key. The result is validated; on error c is left
// unchanged.
func (c *Config) Set(key, value string) error {
	next := *c
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case KeyRPCURL:
		next.RPCURL = value
	case KeyChainID:
		next.ChainID, err = strconv.ParseInt(value, 10, 64)
	case KeyContractAddress:
		next.ContractAddress = value
	case KeyConfirmTimeout:
		next.ConfirmTimeout, err = time.ParseDuration(value)
	case KeyConfirmBlocks:
		next.ConfirmBlocks, err = strconv.ParseUint(value, 10, 64)
	case KeyPollInterval:
		next.PollInterval, err = time.ParseDuration(value)
	case KeyReadRetries:
		var n uint64
		n, err = strconv.ParseUint(value, 10, 32)
		next.ReadRetries = uint(n)
	case KeyLogLevel:
		next.LogLevel = strings.ToLower(value)
	case KeyDefaultWallet:
		next.DefaultWallet = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// PinnedChainID returns the configured chain id, or nil when the node should
// be asked.
func (c *Config) PinnedChainID() *big.Int {
	if c.ChainID == 0 {
		return nil
	}
	return big.NewInt(c.ChainID)
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// Path returns the config file path.
func (c *Config) Path() string { return filepath.Join(c.configDir, configFile) }

// WalletsPath returns where wallet metadata is stored.
func (c *Config) WalletsPath() string { return filepath.Join(c.configDir, walletsFile) }

// GrantsPath returns where wallet authorizations are stored.
func (c *Config) GrantsPath() string { return filepath.Join(c.configDir, grantsFile) }

// SubmissionsPath returns where the write ledger is stored.
func (c *Config) SubmissionsPath() string { return filepath.Join(c.configDir, submissionsFile) }

// KeysDir returns the file keyring directory.
func (c *Config) KeysDir() string { return filepath.Join(c.configDir, keysDir) }
