// Command covalent-relayer bridges the two tiers: it drains queued
// channel-open requests onto the channel tier node and walks newly
// committed channel-tier blocks forward, settling closed channels back
// onto the token tier node. It owns no chain state of its own beyond the
// oracle's confirmed-block watermark and pending-request queues, and
// talks to both tier nodes purely over their JSON-RPC surfaces.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"covalent/internal/config"
	"covalent/internal/kv"
	"covalent/internal/logging"
	"covalent/internal/oracle"
	"covalent/internal/producer"
	"covalent/internal/relayer"
	"covalent/internal/rpcclient"
	"covalent/pkg/wallet"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "covalent-relayer",
		Short: "shuttle channel opens and settlements between the two tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "./config/covalent-relayer.toml", "path to the relayer's config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("covalent-relayer: %w", err)
	}
	logging.SetLevel(cfg.LogLevel)
	log := logging.For("relayer")

	store, err := kv.Open(cfg.DBPath, oracle.Namespaces()...)
	if err != nil {
		return fmt.Errorf("covalent-relayer: open store: %w", err)
	}
	defer store.Close()

	keyBytes, err := hex.DecodeString(cfg.PrivateKeyHex)
	if err != nil {
		return fmt.Errorf("covalent-relayer: decode private_key_hex: %w", err)
	}
	w, err := wallet.FromPrivateKeyBytes(keyBytes)
	if err != nil {
		return fmt.Errorf("covalent-relayer: load wallet: %w", err)
	}

	o := oracle.New(store)
	l2Client := rpcclient.New(cfg.L2RPCAddr)
	l3Client := rpcclient.New(cfg.L3RPCAddr)

	createDrainer := relayer.New(o, w, l3Client, log)
	settlementRelay := relayer.NewTokenSettlementRelay(w, l2Client, cfg.ChainID, cfg.CyclesLimit)
	settlement := relayer.NewSettlement(o, l3Client, settlementRelay, log)

	tick := func(ctx context.Context) error {
		if err := createDrainer.DrainPendingCreates(); err != nil {
			log.WithError(err).Error("drain pending creates failed")
		}
		if err := settlement.Tick(); err != nil {
			log.WithError(err).Error("settlement tick failed")
		}
		return nil
	}

	interval := time.Duration(cfg.SettleIntervalMs) * time.Millisecond
	prod := producer.New(interval, tick, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go prod.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	log.WithField("l2_rpc_uri", cfg.L2RPCAddr).WithField("l3_rpc_uri", cfg.L3RPCAddr).Info("covalent-relayer started")
	<-sig
	log.Info("shutting down")
	cancel()
	return nil
}
