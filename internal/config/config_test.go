package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon " +
	"abandon abandon about"

func loadTestConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	var (
		cfg     *Config
		loadErr error
	)
	app := cli.NewApp()
	app.Flags = Flags
	app.Action = func(c *cli.Context) error {
		cfg, loadErr = LoadConfig(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"note-cli"}, args...)))
	return cfg, loadErr
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		datadir := t.TempDir()
		t.Chdir(t.TempDir())

		cfg, err := loadTestConfig(t, "--datadir", datadir)
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())
		require.Equal(t, "testnet", cfg.Network)
		require.Equal(t, defaultUrchainTestnetURL, cfg.UrchainURL)
		require.Equal(t, defaultUrchainAPIKey, cfg.UrchainAPIKey)
		require.Empty(t, cfg.Mnemonic)
		require.Equal(t, filepath.Join(datadir, dotEnvFile), cfg.EnvFile)
		require.Equal(t, filepath.Join(datadir, "db"), cfg.DbDir)
	})

	t.Run("dotenv", func(t *testing.T) {
		datadir := t.TempDir()
		t.Chdir(t.TempDir())
		envFile := filepath.Join(datadir, dotEnvFile)
		require.NoError(t, os.WriteFile(envFile, []byte(
			"WALLET_MNEMONIC=\""+testMnemonic+"\"\n"+
				"URCHAIN_KEY=secret\n"+
				"BTC_URCHAIN_HOST=http://localhost:3000/\n"+
				"BTC_URCHAIN_HOST_TESTNET=http://localhost:3001/\n",
		), 0o600))

		cfg, err := loadTestConfig(t, "--datadir", datadir, "--network", "livenet")
		require.NoError(t, err)
		require.Equal(t, testMnemonic, cfg.Mnemonic)
		require.Equal(t, "secret", cfg.UrchainAPIKey)
		require.Equal(t, "http://localhost:3000/", cfg.UrchainURL)
		require.Equal(t, envFile, cfg.EnvFile)

		// flags win over the .env file
		cfg, err = loadTestConfig(
			t, "--datadir", datadir, "--urchain-url", "http://indexer/", "--urchain-api-key", "k",
		)
		require.NoError(t, err)
		require.Equal(t, "http://indexer/", cfg.UrchainURL)
		require.Equal(t, "k", cfg.UrchainAPIKey)
	})

	t.Run("invalid network", func(t *testing.T) {
		_, err := loadTestConfig(t, "--datadir", t.TempDir(), "--network", "regtest")
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Network:            "testnet",
			LogLevel:           4,
			UrchainURL:         defaultUrchainTestnetURL,
			FeeTier:            "avg",
			DustLimit:          546,
			CommitPollAttempts: 1,
			CommitPollInterval: defaultCommitPollInterval,
			MaxLocktime:        10,
			DbType:             "inmemory",
		}
	}
	require.NoError(t, valid().Validate())

	fixtures := []struct {
		name   string
		modify func(c *Config)
	}{
		{"network", func(c *Config) { c.Network = "signet" }},
		{"db type", func(c *Config) { c.DbType = "postgres" }},
		{"fee tier", func(c *Config) { c.FeeTier = "fastest" }},
		{"log level", func(c *Config) { c.LogLevel = 7 }},
		{"urchain url", func(c *Config) { c.UrchainURL = "" }},
		{"dust limit", func(c *Config) { c.DustLimit = 0 }},
		{"poll attempts", func(c *Config) { c.CommitPollAttempts = 0 }},
		{"poll interval", func(c *Config) { c.CommitPollInterval = 0 }},
		{"max locktime", func(c *Config) { c.MaxLocktime = 0 }},
	}
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			cfg := valid()
			f.modify(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestInitWallet(t *testing.T) {
	datadir := t.TempDir()
	t.Chdir(t.TempDir())

	cfg, err := loadTestConfig(t, "--datadir", datadir, "--db-type", "inmemory")
	require.NoError(t, err)

	_, err = cfg.AppService()
	require.ErrorContains(t, err, "wallet not initialized")

	mnemonic, err := cfg.InitWallet("", false)
	require.NoError(t, err)
	require.Len(t, strings.Fields(mnemonic), 12)

	_, err = cfg.InitWallet(testMnemonic, false)
	require.Error(t, err)

	_, err = cfg.InitWallet("not a mnemonic", true)
	require.Error(t, err)

	// reloading reads the stored mnemonic
	reloaded, err := loadTestConfig(t, "--datadir", datadir, "--db-type", "inmemory")
	require.NoError(t, err)
	require.Equal(t, mnemonic, reloaded.Mnemonic)

	svc, err := reloaded.AppService()
	require.NoError(t, err)
	defer reloaded.Close()

	again, err := reloaded.AppService()
	require.NoError(t, err)
	require.Equal(t, svc, again)
}
