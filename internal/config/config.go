package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// RouterKind selects the AMM interface shape used for factory queries and
// swap calldata.
type RouterKind string

const (
	RouterKindV2 RouterKind = "v2"
	RouterKindV3 RouterKind = "v3"
)

// RouterDescriptor describes one DEX deployment. The configured order is
// the resolution priority: the first router with an existing pool wins,
// regardless of price.
type RouterDescriptor struct {
	Name    string     `yaml:"name"`
	Router  string     `yaml:"router"`
	Factory string     `yaml:"factory"`
	Kind    RouterKind `yaml:"kind"`
	// Fee is the V3 fee tier in hundredths of a bip; unused for V2.
	Fee  int64  `yaml:"fee"`
	WETH string `yaml:"weth"`
}

func (r RouterDescriptor) RouterAddress() common.Address  { return common.HexToAddress(r.Router) }
func (r RouterDescriptor) FactoryAddress() common.Address { return common.HexToAddress(r.Factory) }
func (r RouterDescriptor) WETHAddress() common.Address    { return common.HexToAddress(r.WETH) }

type GlobalFlags struct {
	ConfigPath string
	LogFile    string
	Debug      bool
}

type Settings struct {
	RPCURL        string
	ChainID       int64
	FeeWallet     string
	ExplorerBase  string
	BridgeURL     string
	BotToken      string
	EncryptionKey string

	WalletStorePath string
	WalletLockPath  string

	SessionTTL         time.Duration
	ReceiptPollEvery   time.Duration
	ReceiptStepTimeout time.Duration

	LogFile string
	Debug   bool

	Routers []RouterDescriptor
}

type fileConfig struct {
	RPCURL       string `yaml:"rpc_url"`
	ChainID      *int64 `yaml:"chain_id"`
	FeeWallet    string `yaml:"fee_wallet"`
	ExplorerBase string `yaml:"explorer_base"`
	BridgeURL    string `yaml:"bridge_url"`
	Wallets      struct {
		StorePath string `yaml:"store_path"`
		LockPath  string `yaml:"lock_path"`
	} `yaml:"wallets"`
	Session struct {
		TTL string `yaml:"ttl"`
	} `yaml:"session"`
	Receipts struct {
		PollInterval string `yaml:"poll_interval"`
		StepTimeout  string `yaml:"step_timeout"`
	} `yaml:"receipts"`
	Routers []RouterDescriptor `yaml:"routers"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}
	applyEnv(&settings)

	if flags.LogFile != "" {
		settings.LogFile = flags.LogFile
	}
	if flags.Debug {
		settings.Debug = true
	}

	if err := validate(settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	storePath, lockPath, err := defaultStorePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		RPCURL:             "https://rpc-gel.inkonchain.com",
		ChainID:            57073,
		ExplorerBase:       "https://explorer.inkonchain.com",
		BridgeURL:          "https://inkonchain.com/bridge",
		WalletStorePath:    storePath,
		WalletLockPath:     lockPath,
		SessionTTL:         30 * time.Minute,
		ReceiptPollEvery:   2 * time.Second,
		ReceiptStepTimeout: 2 * time.Minute,
		LogFile:            "logs/inkybot.log",
		Routers:            DefaultRouters(),
	}, nil
}

// DefaultRouters is the Ink mainnet deployment set: the InkyFactory V3
// router first, then the InkySwap V2 router as fallback.
func DefaultRouters() []RouterDescriptor {
	return []RouterDescriptor{
		{
			Name:    "InkyFactory",
			Router:  "0x177778F19E89dD1012BdBe603F144088A95C4B53",
			Factory: "0x640887A9ba3A9C53Ed27D0F7e8246A4F933f3424",
			Kind:    RouterKindV3,
			Fee:     10000,
			WETH:    "0x4200000000000000000000000000000000000006",
		},
		{
			Name:    "InkySwap",
			Router:  "0xA8C1C38FF57428e5C3a34E0899Be5Cb385476507",
			Factory: "0x458C5d5B75ccBA22651D2C5b61cB1EA1e0b0f95D",
			Kind:    RouterKindV2,
			WETH:    "0x4200000000000000000000000000000000000006",
		},
	}
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "inkybot", "config.yaml"), nil
}

func defaultStorePaths() (string, string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	dir := filepath.Join(base, "inkybot")
	return filepath.Join(dir, "wallets.db"), filepath.Join(dir, "wallets.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.RPCURL != "" {
		settings.RPCURL = cfg.RPCURL
	}
	if cfg.ChainID != nil {
		settings.ChainID = *cfg.ChainID
	}
	if cfg.FeeWallet != "" {
		settings.FeeWallet = cfg.FeeWallet
	}
	if cfg.ExplorerBase != "" {
		settings.ExplorerBase = strings.TrimRight(cfg.ExplorerBase, "/")
	}
	if cfg.BridgeURL != "" {
		settings.BridgeURL = cfg.BridgeURL
	}
	if cfg.Wallets.StorePath != "" {
		settings.WalletStorePath = cfg.Wallets.StorePath
	}
	if cfg.Wallets.LockPath != "" {
		settings.WalletLockPath = cfg.Wallets.LockPath
	}
	if cfg.Session.TTL != "" {
		d, err := time.ParseDuration(cfg.Session.TTL)
		if err != nil {
			return fmt.Errorf("config session.ttl: %w", err)
		}
		settings.SessionTTL = d
	}
	if cfg.Receipts.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Receipts.PollInterval)
		if err != nil {
			return fmt.Errorf("config receipts.poll_interval: %w", err)
		}
		settings.ReceiptPollEvery = d
	}
	if cfg.Receipts.StepTimeout != "" {
		d, err := time.ParseDuration(cfg.Receipts.StepTimeout)
		if err != nil {
			return fmt.Errorf("config receipts.step_timeout: %w", err)
		}
		settings.ReceiptStepTimeout = d
	}
	if len(cfg.Routers) > 0 {
		settings.Routers = cfg.Routers
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.ChainID = id
		}
	}
	if v := os.Getenv("FEE_WALLET"); v != "" {
		settings.FeeWallet = v
	}
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		settings.BotToken = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		settings.EncryptionKey = v
	}
	if v := os.Getenv("INKYBOT_WALLET_STORE"); v != "" {
		settings.WalletStorePath = v
	}
	if v := os.Getenv("INKYBOT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.Debug = b
		}
	}
}

func validate(s Settings) error {
	if strings.TrimSpace(s.RPCURL) == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if s.ChainID <= 0 {
		return fmt.Errorf("chain_id must be positive")
	}
	if s.FeeWallet != "" && !common.IsHexAddress(s.FeeWallet) {
		return fmt.Errorf("fee_wallet is not a valid address")
	}
	// The session store halves the TTL for its sweep ticker, which panics
	// on a non-positive period.
	if s.SessionTTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if s.ReceiptPollEvery <= 0 {
		return fmt.Errorf("receipts.poll_interval must be positive")
	}
	if s.ReceiptStepTimeout <= 0 {
		return fmt.Errorf("receipts.step_timeout must be positive")
	}
	if len(s.Routers) == 0 {
		return fmt.Errorf("at least one router must be configured")
	}
	for i, r := range s.Routers {
		if !common.IsHexAddress(r.Router) || !common.IsHexAddress(r.Factory) || !common.IsHexAddress(r.WETH) {
			return fmt.Errorf("router %q (index %d) has an invalid address", r.Name, i)
		}
		switch r.Kind {
		case RouterKindV2:
		case RouterKindV3:
			if r.Fee <= 0 {
				return fmt.Errorf("router %q is v3 but has no fee tier", r.Name)
			}
		default:
			return fmt.Errorf("router %q has unsupported kind %q", r.Name, r.Kind)
		}
	}
	return nil
}
