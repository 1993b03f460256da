package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// LoadServerConfig loads the server config from the given path, or from
// COORDINATOR_* environment variables when path is nil.
func LoadServerConfig(configPath *string) (*ServerConfig, error) {
	v := viper.New()

	if configPath == nil {
		config, err := loadEnv(v)
		if err != nil {
			return nil, fmt.Errorf("failed to load env config: %w", err)
		}
		return config, nil
	}
	config, err := loadFile(v, *configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load file config: %w", err)
	}
	return config, nil
}

func loadEnv(v *viper.Viper) (*ServerConfig, error) {
	// godotenv might fail if the .env file is missing but env can be
	// applied through docker, systemd or other means, so skip the error
	_ = godotenv.Load()
	v.SetEnvPrefix("COORDINATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var config ServerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env config: %w", err)
	}
	if err := verifyServerConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

// bindEnvKeys binds each config key to its env var so Unmarshal sees env
// values when no config file is loaded (env-only mode).
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"port", "host", "allowed_origins",
		"rate_per_minute", "max_concurrent_requests",
		"enable_metrics", "tracker_urls",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func loadFile(v *viper.Viper, configPath string) (*ServerConfig, error) {
	if !strings.HasSuffix(configPath, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ServerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := verifyServerConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

func verifyServerConfig(config *ServerConfig) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if config.Host == "" {
		return fmt.Errorf("host is required")
	}
	if len(config.TrackerURLs) == 0 {
		return fmt.Errorf("tracker_urls is required")
	}
	for _, url := range config.TrackerURLs {
		if url == "" {
			return fmt.Errorf("tracker_urls must not be empty")
		}
	}
	return nil
}

// LoadChainParams reads the chain parameter file.
func LoadChainParams(filePath string) (*ChainParams, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain params file: %w", err)
	}

	var params ChainParams
	if err := toml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse TOML chain params: %w", err)
	}
	if err := verifyChainParams(&params); err != nil {
		return nil, err
	}
	return &params, nil
}

func verifyChainParams(params *ChainParams) error {
	if params.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required")
	}
	if params.Ethereum.SwapContract == "" || params.Ethereum.TokenContract == "" {
		return fmt.Errorf("ethereum contract addresses are required")
	}
	if params.Ethereum.PrivateKeyEnv == "" {
		return fmt.Errorf("ethereum.private_key_env is required")
	}
	if params.Tezos.IndexerURL == "" || params.Tezos.SignerURL == "" {
		return fmt.Errorf("tezos indexer and signer URLs are required")
	}
	if params.Tezos.SwapContract == "" || params.Tezos.TokenContract == "" {
		return fmt.Errorf("tezos contract addresses are required")
	}
	if params.Tezos.Account == "" {
		return fmt.Errorf("tezos.account is required")
	}
	if params.RefundWindowHours <= 0 {
		return fmt.Errorf("refund_window_hours must be positive")
	}
	return nil
}
