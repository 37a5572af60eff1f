// Command covalent-layer2 runs one token-tier node: it opens the shared
// KV store, hydrates chain state from the last committed block (or
// genesis), and starts the block producer and JSON-RPC surface side by
// side until an interrupt arrives.
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
	"covalent/internal/l2chain"
	"covalent/internal/l2executor"
	"covalent/internal/l2mempool"
	"covalent/internal/l2rpc"
	"covalent/internal/l2types"
	"covalent/internal/logging"
	"covalent/internal/producer"
	"covalent/internal/triedb"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "covalent-layer2",
		Short: "run a token-tier settlement node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "./config/covalent.toml", "path to the node's config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("covalent-layer2: %w", err)
	}
	logging.SetLevel(cfg.LogLevel)
	log := logging.For("layer2")

	namespaces := append(l2chain.Namespaces(), l2executor.NodeNamespace)
	store, err := kv.Open(cfg.DBPath, namespaces...)
	if err != nil {
		return fmt.Errorf("covalent-layer2: open store: %w", err)
	}
	defer store.Close()

	chainStore := l2chain.New(store)
	backend := triedb.NewBackend(store)
	executor := l2executor.New(backend)
	mempool := l2mempool.New()

	var (
		stateRoot l2types.Hash
		prevHash  l2types.Hash
		number    uint64
	)
	if head, found, err := chainStore.LatestHeader(); err != nil {
		return fmt.Errorf("covalent-layer2: read chain tip: %w", err)
	} else if found {
		stateRoot = head.StateRoot
		number = head.Number + 1
		hash, err := head.Hash()
		if err != nil {
			return fmt.Errorf("covalent-layer2: hash chain tip: %w", err)
		}
		prevHash = hash
	}
	// At genesis prevHash stays the zero Hash rather than the hash of an
	// empty Header{}, so the first block's PrevHash plainly means "no
	// parent" instead of pointing at a header nobody ever committed.

	rootStore := stateRoot
	proposer := l2types.BytesToAddress([]byte(cfg.Address))

	tick := func(ctx context.Context) error {
		txs := mempool.Package(cfg.CyclesLimit)
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
		header := l2types.Header{
			ChainID:         cfg.ChainID,
			Number:          number,
			PrevHash:        prevHash,
			TimestampMs:     time.Now().UnixMilli(),
			TransactionRoot: l2types.MerkleRoot(txLeaves),
			StateRoot:       resp.StateRoot,
			CyclesLimit:     cfg.CyclesLimit,
			Proposer:        proposer,
		}
		block := l2types.Block{Header: header, Txs: txs}
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

	rpcServer := l2rpc.New(cfg.RPCAddr, mempool, chainStore, backend, l2executor.NodeNamespace, func() l2types.Hash { return rootStore })

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
	log.WithField("rpc_addr", cfg.RPCAddr).Info("covalent-layer2 node started")
	<-sig
	log.Info("shutting down")
	cancel()
	return nil
}
