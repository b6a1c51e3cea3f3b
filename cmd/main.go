// Command riskvault runs the risk-managed vault: a token ledger with
// price-driven deposit limits, a volatility index and automated rebalancing
// of the risk allocation, served over a signed HTTP API.
//
// Usage:
//
//	riskvault --setup                      run the configuration wizard
//	riskvault --config vault.yaml          start the vault
//	riskvault --sign deposit.json          sign a request body with the owner key
//
// Environment variables (also read from --env, default .env):
//
//	RISKVAULT_OWNER_KEY    hex private key of the owner, used for --sign and to derive the owner address
//	RISKVAULT_HTTP_ADDR    overrides http_addr
//	RISKVAULT_DATA_DIR     overrides data_dir
//	REDIS_ADDR, REDIS_PASSWORD for the redis price source
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/config"
	"github.com/vadiminshakov/riskvault/internal"
	"github.com/vadiminshakov/riskvault/internal/identity"
	"github.com/vadiminshakov/riskvault/internal/setup"
	"github.com/vadiminshakov/riskvault/internal/vault"
	"github.com/vadiminshakov/riskvault/internal/web"
)

const signTTL = time.Minute

func main() {
	flags := config.ParseFlags()

	if err := config.LoadEnv(flags.EnvFile); err != nil {
		log.Fatal(err)
	}

	if flags.Setup {
		if err := setup.RunTUI(flags.ConfigPath, flags.EnvFile); err != nil {
			log.Fatal(err)
		}
		// pick up a freshly generated owner key
		if err := config.LoadEnv(flags.EnvFile); err != nil {
			log.Fatal(err)
		}
	}

	if flags.SignFile != "" {
		if err := sign(flags.SignFile, flags.ConfigPath); err != nil {
			log.Fatal(err)
		}
		return
	}

	conf, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := internal.NewNode(ctx, conf, logger)
	if err != nil {
		logger.Fatal("failed to start vault", zap.Error(err))
	}
	defer node.Close()

	if err := node.Run(ctx); err != nil {
		logger.Error("vault stopped with error", zap.Error(err))
		return
	}
	logger.Info("vault stopped")
}

// sign prints a signed request body and its X-Signature value. A missing
// deadline is set to one minute from now and a missing vault is taken from the config.
func sign(path, configPath string) error {
	signer, err := identity.LoadKey(os.Getenv(config.EnvOwnerKey))
	if err != nil {
		return errors.Wrapf(err, "load %s", config.EnvOwnerKey)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read request")
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return errors.Wrap(err, "decode request")
	}
	if _, ok := payload["deadline"]; !ok {
		payload["deadline"] = time.Now().Add(signTTL).Unix()
	}
	if _, ok := payload["vault"]; !ok {
		conf, err := config.Load(configPath)
		if err != nil {
			return errors.Wrap(err, "request has no vault and config cannot supply one")
		}
		addr := conf.Vault.Address
		if addr == (common.Address{}) {
			addr = vault.DefaultAddress(conf.Vault.Owner)
		}
		payload["vault"] = addr.Hex()
	}

	body, sig, err := web.SignBody(signer, payload)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n%s\n", web.SignatureHeader, sig, body)
	return nil
}
