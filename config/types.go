package config

// ServerConfig holds the HTTP surface and fee tracker settings. Loaded from
// a TOML file or COORDINATOR_* environment variables.
type ServerConfig struct {
	Port int    `toml:"port" mapstructure:"port"`
	Host string `toml:"host" mapstructure:"host"`

	AllowedOrigins []string `toml:"allowed_origins" mapstructure:"allowed_origins"`

	RatePerMinute         int `toml:"rate_per_minute" mapstructure:"rate_per_minute"`
	MaxConcurrentRequests int `toml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`

	EnableMetrics bool `toml:"enable_metrics" mapstructure:"enable_metrics"`

	// Fee tracker endpoints; the first is primary, the rest are backups.
	TrackerURLs []string `toml:"tracker_urls" mapstructure:"tracker_urls"`
}

// EthereumParams configures the Ethereum leg.
type EthereumParams struct {
	RPCURL        string `toml:"rpc_url"`
	ChainID       int64  `toml:"chain_id"`
	SwapContract  string `toml:"swap_contract"`
	TokenContract string `toml:"token_contract"`

	// PrivateKeyEnv names the environment variable carrying the hex key;
	// the key itself never lives in the file.
	PrivateKeyEnv string `toml:"private_key_env"`
}

// TezosParams configures the Tezos leg.
type TezosParams struct {
	IndexerURL    string `toml:"indexer_url"`
	SignerURL     string `toml:"signer_url"`
	SwapContract  string `toml:"swap_contract"`
	TokenContract string `toml:"token_contract"`
	Account       string `toml:"account"`
}

// ChainParams is the chain parameter file: both legs plus swap economics.
type ChainParams struct {
	Ethereum EthereumParams `toml:"ethereum"`
	Tezos    TezosParams    `toml:"tezos"`

	// RefundWindowHours is how far in the future new swaps set their
	// refund time.
	RefundWindowHours int `toml:"refund_window_hours"`

	// FeePad is the bot fee safety margin, e.g. "1.05".
	FeePad string `toml:"fee_pad"`
}
