package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftrental/config"
	"nftrental/core/state"
	"nftrental/native/rental"
	"nftrental/observability/logging"
	"nftrental/rpc"
	"nftrental/storage"
)

const rpcTokenEnvDefault = "NFTRENTAL_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("NFTRENTAL_ENV"))
	logger := logging.Setup("nftrentald", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "err", err, "dir", cfg.DataDir)
		os.Exit(1)
	}
	defer db.Close()

	engine := rental.NewEngine()
	engine.SetState(state.NewManager(db))
	engine.SetVault(vaultAddress(cfg.NetworkName))

	tokenEnv := cfg.RPCTokenEnv
	if tokenEnv == "" {
		tokenEnv = rpcTokenEnvDefault
	}
	token := strings.TrimSpace(os.Getenv(tokenEnv))
	if token == "" {
		logger.Warn("no RPC auth token configured; mutating surface is open", "env", tokenEnv)
	}

	server := rpc.NewServer(engine, token, logger)
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting JSON-RPC server", "addr", cfg.RPCAddress, "network", cfg.NetworkName)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "err", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}
}

// vaultAddress derives the escrow vault deterministically from the network
// name so every node on a network agrees on where collateral sits.
func vaultAddress(network string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("nftrental/escrow-vault/" + network))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}
