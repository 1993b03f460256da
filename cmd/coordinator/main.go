package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tezexlabs/coordinator/chain"
	"github.com/tezexlabs/coordinator/chain/ethereum"
	"github.com/tezexlabs/coordinator/chain/tezos"
	"github.com/tezexlabs/coordinator/config"
	"github.com/tezexlabs/coordinator/coordinator"
	"github.com/tezexlabs/coordinator/dispatcher"
	"github.com/tezexlabs/coordinator/feeds"
	"github.com/tezexlabs/coordinator/fees"
	"github.com/tezexlabs/coordinator/models"
	"github.com/tezexlabs/coordinator/registry"
	"github.com/tezexlabs/coordinator/rpc"
	"github.com/tezexlabs/coordinator/scheduler"
)

var log zerolog.Logger

func init() {
	// Initialize zerolog with console writer
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the other packages
	rpc.SetLogger(log)
	coordinator.SetLogger(log)
	dispatcher.SetLogger(log)
	fees.SetLogger(log)
	feeds.SetLogger(log)
	registry.SetLogger(log)
	scheduler.SetLogger(log)
	ethereum.SetLogger(log)
	tezos.SetLogger(log)
}

func main() {
	configServer := flag.String("config", "./coordinator.toml", "config file for the HTTP server")
	configChains := flag.String("chains", "./chains.toml", "config file for the chain legs")
	envOnly := flag.Bool("env", false, "load the server config from environment variables instead of a file")
	flag.Parse()

	log.Info().
		Str("server_config", *configServer).
		Str("chains_config", *configChains).
		Msg("Starting swap coordinator")

	var serverPath *string
	if !*envOnly {
		serverPath = configServer
	}
	serverConfig, err := config.LoadServerConfig(serverPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load server config")
	}

	chainParams, err := config.LoadChainParams(*configChains)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load chain params")
	}

	tracker, err := feeds.NewClient(serverConfig.TrackerURLs[0], serverConfig.TrackerURLs[1:], feeds.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create fee tracker client")
	}

	adapters, ethClient, err := buildAdapters(chainParams)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize chain adapters")
	}

	sessionConfig := coordinator.DefaultConfig()

	engineConfig := fees.DefaultConfig()
	// A quote older than one refresh cycle must never price a swap.
	engineConfig.MaxQuoteAge = sessionConfig.QuoteInterval
	if chainParams.FeePad != "" {
		pad, err := decimal.NewFromString(chainParams.FeePad)
		if err != nil {
			log.Fatal().Err(err).Str("fee_pad", chainParams.FeePad).Msg("Invalid fee pad")
		}
		engineConfig.FeePad = pad
	}
	engine := fees.NewEngine(tracker, ethClient, engineConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := coordinator.New(ctx, sessionConfig, adapters, engine)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start coordinator session")
	}

	server := rpc.NewServer(&rpc.ServerConfig{
		Address:               fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
		AllowedOrigins:        serverConfig.AllowedOrigins,
		EnableMetrics:         serverConfig.EnableMetrics,
		RatePerMinute:         serverConfig.RatePerMinute,
		MaxConcurrentRequests: serverConfig.MaxConcurrentRequests,
	}, session)

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	session.Close()
	tracker.Close()
	ethClient.Close()
}

// buildAdapters wires both chain legs from the loaded parameters. The
// Ethereum client doubles as the gas pricer, so it is returned separately.
func buildAdapters(params *config.ChainParams) (map[models.Chain]chain.LedgerAdapter, *ethereum.Client, error) {
	privateKey := os.Getenv(params.Ethereum.PrivateKeyEnv)
	if privateKey == "" {
		return nil, nil, fmt.Errorf("environment variable %s is not set", params.Ethereum.PrivateKeyEnv)
	}

	refundWindow := time.Duration(params.RefundWindowHours) * time.Hour

	ethClient, err := ethereum.NewClient(ethereum.Config{
		RPCURL:         params.Ethereum.RPCURL,
		ChainID:        big.NewInt(params.Ethereum.ChainID),
		SwapContract:   params.Ethereum.SwapContract,
		TokenContract:  params.Ethereum.TokenContract,
		PrivateKeyHex:  privateKey,
		RefundWindow:   refundWindow,
		ConfirmTimeout: 2 * time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ethereum adapter: %w", err)
	}

	tezosClient := tezos.NewClient(tezos.Config{
		IndexerURL:    params.Tezos.IndexerURL,
		SignerURL:     params.Tezos.SignerURL,
		SwapContract:  params.Tezos.SwapContract,
		TokenContract: params.Tezos.TokenContract,
		Account:       params.Tezos.Account,
		RefundWindow:  refundWindow,
		Timeout:       30 * time.Second,
	})

	return map[models.Chain]chain.LedgerAdapter{
		models.ChainEthereum: ethClient,
		models.ChainTezos:    tezosClient,
	}, ethClient, nil
}
