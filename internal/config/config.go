package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/noteprotocol/note-wallet/internal/core/application"
	"github.com/noteprotocol/note-wallet/internal/core/domain"
	"github.com/noteprotocol/note-wallet/internal/core/ports"
	"github.com/noteprotocol/note-wallet/internal/infrastructure/db"
	"github.com/noteprotocol/note-wallet/internal/infrastructure/feeestimator/mempool"
	"github.com/noteprotocol/note-wallet/internal/infrastructure/keyprovider/hd"
	"github.com/noteprotocol/note-wallet/internal/infrastructure/urchain"
	notelib "github.com/noteprotocol/note-wallet/pkg/note-lib"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

const (
	defaultNetwork            = "testnet"
	defaultLogLevel           = int(log.InfoLevel)
	defaultDbType             = "badger"
	defaultFeeTier            = string(notelib.FeeTierAverage)
	defaultUrchainURL         = "https://btc.urchain.com/api/"
	defaultUrchainTestnetURL  = "https://btc-testnet4.urchain.com/api/"
	defaultUrchainAPIKey      = "1234567890"
	defaultCommitPollAttempts = 10
	defaultCommitPollInterval = time.Second
	defaultOutpointLockExpiry = 10 * time.Minute

	dotEnvFile = ".env"

	// dotenv keys
	mnemonicKey           = "WALLET_MNEMONIC"
	urchainAPIKeyKey      = "URCHAIN_KEY"
	urchainHostKey        = "BTC_URCHAIN_HOST"
	urchainHostTestnetKey = "BTC_URCHAIN_HOST_TESTNET"
	mempoolHostKey        = "MEMPOOL_HOST"
)

var (
	defaultDatadir = btcutil.AppDataDir("note-wallet", false)

	supportedNetworks = supportedType{
		"livenet": {},
		"testnet": {},
	}
	supportedDbs = supportedType{
		"badger":   {},
		"inmemory": {},
	}
	supportedFeeTiers = supportedType{
		string(notelib.FeeTierSlow):    {},
		string(notelib.FeeTierAverage): {},
		string(notelib.FeeTierFast):    {},
	}

	// envReplacer maps keys like `btc-urchain-host` to env vars like `BTC_URCHAIN_HOST`.
	envReplacer = strings.NewReplacer("-", "_", ".", "_")
)

type Config struct {
	Datadir            string
	Network            string
	LogLevel           int
	Mnemonic           string
	UrchainURL         string
	UrchainAPIKey      string
	MempoolURL         string
	AccountIndex       uint32
	FeeTier            string
	DustLimit          int64
	CommitPollAttempts int
	CommitPollInterval time.Duration
	OutpointLockExpiry time.Duration
	MaxLocktime        uint32
	DbType             string
	DbDir              string

	// EnvFile is the dotenv file the settings were read from, the one init writes otherwise.
	EnvFile string

	network      notelib.Network
	keyProvider  ports.KeyProvider
	indexer      ports.Indexer
	feeEstimator ports.FeeEstimator
	txRepo       domain.TxRepository
	svc          application.Service
}

// env returns a list of strings prefixed with `NOTE_`.
// This is used as a syntax sugar for defining env vars.
func env(values ...string) []string {
	envs := make([]string, len(values))

	for i, value := range values {
		envs[i] = fmt.Sprintf("NOTE_%s", value)
	}

	return envs
}

var (
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}

	Network = &cli.StringFlag{
		Usage: "Bitcoin network (livenet, testnet)",
		Name:  "network", EnvVars: env("NETWORK"),
		Value: defaultNetwork,
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	Mnemonic = &cli.StringFlag{
		Usage: "Wallet mnemonic, read from WALLET_MNEMONIC in the .env file when unset",
		Name:  "mnemonic", EnvVars: env("MNEMONIC"),
	}

	UrchainURL = &cli.StringFlag{
		Usage: "Urchain indexer url, defaults to the public instance of the network",
		Name:  "urchain-url", EnvVars: env("URCHAIN_URL"),
	}

	UrchainAPIKey = &cli.StringFlag{
		Usage: "Urchain api key",
		Name:  "urchain-api-key", EnvVars: env("URCHAIN_API_KEY"),
	}

	MempoolURL = &cli.StringFlag{
		Usage: "Mempool.space compatible api used for fee rates",
		Name:  "mempool-url", EnvVars: env("MEMPOOL_URL"),
	}

	AccountIndex = &cli.UintFlag{
		Usage: "Index of the account to use",
		Name:  "account", EnvVars: env("ACCOUNT"),
	}

	FeeTier = &cli.StringFlag{
		Usage: "Fee rate tier (slow, avg, fast)",
		Name:  "fee-tier", EnvVars: env("FEE_TIER"),
		Value: defaultFeeTier,
	}

	DustLimit = &cli.Int64Flag{
		Usage: "Value in sats of note outputs and minimum change",
		Name:  "dust-limit", EnvVars: env("DUST_LIMIT"),
		Value: notelib.DustLimit,
	}

	CommitPollAttempts = &cli.IntFlag{
		Usage: "Number of times the indexer is polled for a funded commit utxo",
		Name:  "commit-poll-attempts", EnvVars: env("COMMIT_POLL_ATTEMPTS"),
		Value: defaultCommitPollAttempts,
	}

	CommitPollInterval = &cli.DurationFlag{
		Usage: "Interval between commit utxo polls",
		Name:  "commit-poll-interval", EnvVars: env("COMMIT_POLL_INTERVAL"),
		Value: defaultCommitPollInterval,
	}

	OutpointLockExpiry = &cli.DurationFlag{
		Usage: "How long outpoints spent by a broadcast tx are kept out of coin selection",
		Name:  "outpoint-lock-expiry", EnvVars: env("OUTPOINT_LOCK_EXPIRY"),
		Value: defaultOutpointLockExpiry,
	}

	MaxLocktime = &cli.UintFlag{
		Usage: "Upper bound (exclusive) of the locktime searched when mining bitwork",
		Name:  "max-locktime", EnvVars: env("MAX_LOCKTIME"),
		Value: uint(notelib.MaxLocktime),
	}

	DbType = &cli.StringFlag{
		Usage: "History database type (badger, inmemory)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}
)

var Flags = []cli.Flag{
	Datadir,
	Network,
	LogLevel,
	Mnemonic,
	UrchainURL,
	UrchainAPIKey,
	MempoolURL,
	AccountIndex,
	FeeTier,
	DustLimit,
	CommitPollAttempts,
	CommitPollInterval,
	OutpointLockExpiry,
	MaxLocktime,
	DbType,
}

// LoadConfig merges flags (and their NOTE_ env vars) with the optional .env file of the datadir
// or of the working directory. Flags win.
func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}
	datadir := c.String(Datadir.Name)

	v, envFile, err := loadDotEnv(datadir, ".")
	if err != nil {
		return nil, err
	}
	if envFile == "" {
		envFile = filepath.Join(datadir, dotEnvFile)
	}

	network := strings.ToLower(c.String(Network.Name))
	parsed, err := notelib.ParseNetwork(network)
	if err != nil {
		return nil, err
	}

	urchainHostKeyForNetwork := urchainHostKey
	defaultURL := defaultUrchainURL
	if parsed == notelib.NetworkTest {
		urchainHostKeyForNetwork = urchainHostTestnetKey
		defaultURL = defaultUrchainTestnetURL
	}

	return &Config{
		Datadir:            datadir,
		Network:            network,
		LogLevel:           c.Int(LogLevel.Name),
		Mnemonic:           stringValue(c, Mnemonic.Name, v, mnemonicKey, ""),
		UrchainURL:         stringValue(c, UrchainURL.Name, v, urchainHostKeyForNetwork, defaultURL),
		UrchainAPIKey:      stringValue(c, UrchainAPIKey.Name, v, urchainAPIKeyKey, defaultUrchainAPIKey),
		MempoolURL:         stringValue(c, MempoolURL.Name, v, mempoolHostKey, ""),
		AccountIndex:       uint32(c.Uint(AccountIndex.Name)),
		FeeTier:            c.String(FeeTier.Name),
		DustLimit:          c.Int64(DustLimit.Name),
		CommitPollAttempts: c.Int(CommitPollAttempts.Name),
		CommitPollInterval: c.Duration(CommitPollInterval.Name),
		OutpointLockExpiry: c.Duration(OutpointLockExpiry.Name),
		MaxLocktime:        uint32(c.Uint(MaxLocktime.Name)),
		DbType:             c.String(DbType.Name),
		DbDir:              filepath.Join(datadir, "db"),
		EnvFile:            envFile,
	}, nil
}

func (c *Config) Validate() error {
	network, err := notelib.ParseNetwork(c.Network)
	if err != nil {
		return fmt.Errorf("network not supported, please select one of: %s", supportedNetworks)
	}
	c.network = network

	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedFeeTiers.supports(c.FeeTier) {
		return fmt.Errorf("fee tier not supported, please select one of: %s", supportedFeeTiers)
	}
	if c.LogLevel < int(log.PanicLevel) || c.LogLevel > int(log.TraceLevel) {
		return fmt.Errorf("invalid log level %d", c.LogLevel)
	}
	if c.UrchainURL == "" {
		return fmt.Errorf("missing urchain url")
	}
	if c.DustLimit <= 0 {
		return fmt.Errorf("dust limit must be positive")
	}
	if c.CommitPollAttempts <= 0 {
		return fmt.Errorf("commit poll attempts must be positive")
	}
	if c.CommitPollInterval <= 0 {
		return fmt.Errorf("commit poll interval must be positive")
	}
	if c.MaxLocktime == 0 {
		return fmt.Errorf("max locktime must be positive")
	}
	return nil
}

func (c *Config) String() string {
	clone := *c
	if clone.Mnemonic != "" {
		clone.Mnemonic = "••••••"
	}
	if clone.UrchainAPIKey != "" {
		clone.UrchainAPIKey = "••••••"
	}
	return fmt.Sprintf(
		"datadir: %s, network: %s, urchain: %s, mempool: %s, account: %d, fee tier: %s, "+
			"dust limit: %d, db: %s",
		clone.Datadir, clone.Network, clone.UrchainURL, clone.MempoolURL, clone.AccountIndex,
		clone.FeeTier, clone.DustLimit, clone.DbType,
	)
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

// InitWallet stores mnemonic, a new one when empty, in the .env file and returns it. An existing
// mnemonic is only replaced with force.
func (c *Config) InitWallet(mnemonic string, force bool) (string, error) {
	if c.Mnemonic != "" && !force {
		return "", fmt.Errorf("wallet already initialized in %s, use --force to replace it", c.EnvFile)
	}
	if mnemonic == "" {
		generated, err := hd.NewMnemonic()
		if err != nil {
			return "", err
		}
		mnemonic = generated
	}
	if _, err := hd.New(mnemonic, "", notelib.NetworkMain); err != nil {
		return "", err
	}

	v, _, err := loadDotEnv(filepath.Dir(c.EnvFile))
	if err != nil {
		return "", err
	}
	v.Set(mnemonicKey, mnemonic)
	if err := makeDirectoryIfNotExists(filepath.Dir(c.EnvFile)); err != nil {
		return "", err
	}
	if err := v.WriteConfigAs(c.EnvFile); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", c.EnvFile, err)
	}
	if err := os.Chmod(c.EnvFile, 0o600); err != nil {
		return "", err
	}

	c.Close()
	c.Mnemonic = mnemonic
	return mnemonic, nil
}

// Close releases the app service, if any was created.
func (c *Config) Close() {
	if c.svc != nil {
		c.svc.Close()
		c.svc = nil
	}
}

func (c *Config) keyProviderService() error {
	if c.Mnemonic == "" {
		return fmt.Errorf("wallet not initialized, run init first or set %s", mnemonicKey)
	}
	keyProvider, err := hd.New(c.Mnemonic, "", c.network)
	if err != nil {
		return err
	}
	c.keyProvider = keyProvider
	return nil
}

func (c *Config) indexerService() error {
	c.indexer = urchain.New(c.UrchainURL, c.UrchainAPIKey)
	return nil
}

func (c *Config) feeEstimatorService() error {
	c.feeEstimator = mempool.New(c.MempoolURL, c.network)
	return nil
}

func (c *Config) repoService() error {
	baseDir := c.DbDir
	if c.DbType == "inmemory" {
		baseDir = ""
	}
	repo, err := db.NewTxRepository(db.ServiceConfig{DataStoreType: c.DbType, BaseDir: baseDir})
	if err != nil {
		return err
	}
	c.txRepo = repo
	return nil
}

func (c *Config) appService() error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, setup := range []func() error{
		c.keyProviderService,
		c.indexerService,
		c.feeEstimatorService,
		c.repoService,
	} {
		if err := setup(); err != nil {
			return err
		}
	}

	svc, err := application.NewService(
		application.Config{
			Network:            c.network,
			AccountIndex:       c.AccountIndex,
			FeeTier:            notelib.FeeTier(c.FeeTier),
			DustLimit:          c.DustLimit,
			CommitPollAttempts: c.CommitPollAttempts,
			CommitPollInterval: c.CommitPollInterval,
			OutpointLockExpiry: c.OutpointLockExpiry,
			MaxLocktime:        c.MaxLocktime,
		},
		c.keyProvider, c.indexer, c.feeEstimator, c.txRepo,
	)
	if err != nil {
		c.txRepo.Close()
		return err
	}

	c.svc = svc
	return nil
}

// loadDotEnv reads the first .env file found in dirs and falls back to the environment for
// every key. It returns the path of the file read, empty if none.
func loadDotEnv(dirs ...string) (*viper.Viper, string, error) {
	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(envReplacer)

	for _, dir := range dirs {
		path := filepath.Join(dir, dotEnvFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		log.Debugf("loaded settings from %s", path)
		return v, path, nil
	}
	return v, "", nil
}

// stringValue resolves a setting from its flag when set, the dotenv key otherwise.
func stringValue(c *cli.Context, flag string, v *viper.Viper, key, defaultValue string) string {
	if c.IsSet(flag) {
		return c.String(flag)
	}
	if value := strings.Trim(v.GetString(key), `"`); value != "" {
		return value
	}
	return defaultValue
}

func initDatadir(c *cli.Context) error {
	datadir := c.String(Datadir.Name)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
