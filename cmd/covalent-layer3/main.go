// Command covalent-layer3 runs one channel-tier node: it opens the
// shared KV store, hydrates chain state from the last committed block
// (or genesis), and starts the block producer and JSON-RPC surface side
// by side until an interrupt arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"covalent/internal/config"
	"covalent/internal/kv"
	"covalent/internal/l3chain"
	"covalent/internal/l3executor"
	"covalent/internal/l3mempool"
	"covalent/internal/l3rpc"
	"covalent/internal/l3types"
	"covalent/internal/logging"
	"covalent/internal/producer"
	"covalent/internal/smtdb"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "covalent-layer3",
		Short: "run a channel-tier settlement node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "./config/covalent-l3.toml", "path to the node's config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("covalent-layer3: %w", err)
	}
	logging.SetLevel(cfg.LogLevel)
	log := logging.For("layer3")

	namespaces := append(l3chain.Namespaces(), l3executor.Namespace)
	store, err := kv.Open(cfg.DBPath, namespaces...)
	if err != nil {
		return fmt.Errorf("covalent-layer3: open store: %w", err)
	}
	defer store.Close()

	chainStore := l3chain.New(store)
	backend := smtdb.NewBackend(store)
	executor := l3executor.New(backend)
	mempool := l3mempool.New()

	var (
		stateRoot l3types.Hash
		prevHash  l3types.Hash
		number    uint64
	)
	if head, found, err := chainStore.LatestHeader(); err != nil {
		return fmt.Errorf("covalent-layer3: read chain tip: %w", err)
	} else if found {
		stateRoot = head.StateRoot
		number = head.Number + 1
		hash, err := head.Hash()
		if err != nil {
			return fmt.Errorf("covalent-layer3: hash chain tip: %w", err)
		}
		prevHash = hash
	} else {
		stateRoot = l3types.Hash(smtdb.EmptyRoot())
	}
	// At genesis prevHash stays the zero Hash, and stateRoot starts at the
	// sparse merkle tree's own empty-tree root rather than the all-zero
	// marker the token tier uses — the two tiers' "empty" roots are not the
	// same value, so each tier hydrates its own.

	rootStore := stateRoot
	proposer := l3types.Address{}
	copy(proposer[:], []byte(cfg.Address))

	tick := func(ctx context.Context) error {
		txs := mempool.Package()
		if len(txs) == 0 {
			return nil
		}
		resp, err := executor.Exec(rootStore, txs)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
		txLeaves := make([][]byte, len(txs))
		for i, stx := range txs {
			txLeaves[i] = stx.TxHash[:]
		}
		header := l3types.Header{
			ChainID:         cfg.ChainID,
			Number:          number,
			PrevHash:        prevHash,
			TimestampMs:     time.Now().UnixMilli(),
			TransactionRoot: l3types.MerkleRoot(txLeaves),
			ReceiptRoot:     resp.ReceiptRoot,
			StateRoot:       resp.StateRoot,
			Proposer:        proposer,
		}
		block := l3types.Block{Header: header, Txs: txs}
		if err := chainStore.SaveBlock(block, resp.Responses); err != nil {
			return fmt.Errorf("save block: %w", err)
		}
		hash, err := header.Hash()
		if err != nil {
			return fmt.Errorf("hash header: %w", err)
		}
		rootStore = resp.StateRoot
		prevHash = hash
		number++
		log.WithField("number", header.Number).WithField("txs", len(txs)).Info("produced block")
		return nil
	}

	interval := time.Duration(cfg.BlockIntervalMs) * time.Millisecond
	prod := producer.New(interval, tick, log)

	rpcServer := l3rpc.New(cfg.RPCAddr, mempool, chainStore, backend, l3executor.Namespace, func() l3types.Hash { return rootStore })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go prod.Run(ctx)
	go func() {
		if err := rpcServer.ListenAndServe(ctx); err != nil {
			log.WithError(err).Error("rpc server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	log.WithField("rpc_addr", cfg.RPCAddr).Info("covalent-layer3 node started")
	<-sig
	log.Info("shutting down")
	cancel()
	return nil
}
