// Package l2executor implements the token-tier per-block state machine:
// a deterministic state transition over the Patricia trie (accounts → a
// nested per-account balance trie), driven by the Mint/Lock/Unlock/Divert/
// Transfer action alphabet, with a two-tier write-back cache (§4.3).
package l2executor

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"covalent/internal/l2types"
	"covalent/internal/triedb"
)

// NodeNamespace is the shared KV bucket holding every Patricia trie node —
// the top-level state trie and every account's nested balance trie alike,
// since both are content-addressed and naturally dedupe within one pool.
const NodeNamespace = "l2_trie_nodes"

// Executor runs blocks of token-tier transactions against a Patricia trie
// rooted in the shared KV store.
type Executor struct {
	backend *triedb.Backend
}

// New returns an Executor backed by store.
func New(backend *triedb.Backend) *Executor {
	return &Executor{backend: backend}
}

type cacheKey struct {
	addr  l2types.Address
	token l2types.TokenID
}

// Exec executes txs against the state rooted at stateRoot and returns the
// new root plus one response per transaction, in order.
func (e *Executor) Exec(stateRoot l2types.Hash, txs []l2types.SignedTransaction) (l2types.BlockExecuteResponse, error) {
	stateTrie, err := triedb.Open(e.backend, NodeNamespace, [32]byte(stateRoot))
	if err != nil {
		return l2types.BlockExecuteResponse{}, fmt.Errorf("l2executor: open state trie: %w", err)
	}

	blockCache := map[cacheKey]l2types.TokenBalance{}
	txCache := map[cacheKey]l2types.TokenBalance{}
	logCache := map[l2types.Hash][]l2types.Log{}
	accounts := map[l2types.Address]l2types.Account{}

	loadAccount := func(addr l2types.Address) (l2types.Account, error) {
		if a, ok := accounts[addr]; ok {
			return a, nil
		}
		data, err := stateTrie.Get(addr[:])
		if err == triedb.ErrNotFound {
			a := l2types.Account{Address: addr, BalanceRoot: l2types.EmptyBalanceRoot}
			accounts[addr] = a
			return a, nil
		}
		if err != nil {
			return l2types.Account{}, err
		}
		a, err := l2types.DecodeAccount(data)
		if err != nil {
			return l2types.Account{}, err
		}
		accounts[addr] = a
		return a, nil
	}

	loadFromTrie := func(addr l2types.Address, token l2types.TokenID) (l2types.TokenBalance, error) {
		acct, err := loadAccount(addr)
		if err != nil {
			return l2types.TokenBalance{}, err
		}
		if acct.BalanceRoot.IsZero() {
			return l2types.NewTokenBalance(), nil
		}
		balTrie, err := triedb.Open(e.backend, NodeNamespace, [32]byte(acct.BalanceRoot))
		if err != nil {
			return l2types.TokenBalance{}, err
		}
		data, err := balTrie.Get(token[:])
		if err == triedb.ErrNotFound {
			return l2types.NewTokenBalance(), nil
		}
		if err != nil {
			return l2types.TokenBalance{}, err
		}
		return l2types.DecodeTokenBalance(data)
	}

	responses := make([]l2types.ExecuteResponse, 0, len(txs))

	for _, stx := range txs {
		touched := map[cacheKey]bool{}
		snapshot := map[cacheKey]*l2types.TokenBalance{}
		var loadErr error

		load := func(addr l2types.Address, token l2types.TokenID) l2types.TokenBalance {
			key := cacheKey{addr, token}
			if !touched[key] {
				touched[key] = true
				if v, ok := txCache[key]; ok {
					c := v.Clone()
					snapshot[key] = &c
				} else {
					snapshot[key] = nil
				}
			}
			if v, ok := txCache[key]; ok {
				return v
			}
			if v, ok := blockCache[key]; ok {
				c := v.Clone()
				txCache[key] = c
				return c
			}
			b, err := loadFromTrie(addr, token)
			if err != nil && loadErr == nil {
				loadErr = err
			}
			txCache[key] = b.Clone()
			if _, ok := blockCache[key]; !ok {
				blockCache[key] = b.Clone()
			}
			return txCache[key]
		}

		var execErr *l2types.ExecError
		var logs []l2types.Log

		for _, req := range stx.Raw.Requests {
			if loadErr != nil {
				break
			}
			bal := load(req.Address, req.TokenID)
			amount := req.Amount
			if amount == nil {
				amount = uint256.NewInt(0)
			}
			switch req.Action {
			case l2types.ActionMint:
				bal.Active = new(uint256.Int).Add(bal.Active, amount)
				txCache[cacheKey{req.Address, req.TokenID}] = bal
				logs = append(logs, l2types.Log{Address: req.Address, TokenID: req.TokenID, Amount: amount, Direction: l2types.LogActiveAdd})

			case l2types.ActionLock:
				if bal.Active.Cmp(amount) < 0 {
					execErr = &l2types.ExecError{Code: l2types.ErrCodeActiveLessThanLock, Message: "ActiveAmountLessThanLock"}
					break
				}
				bal.Active = new(uint256.Int).Sub(bal.Active, amount)
				bal.Locked = new(uint256.Int).Add(bal.Locked, amount)
				txCache[cacheKey{req.Address, req.TokenID}] = bal
				logs = append(logs, l2types.Log{Address: req.Address, TokenID: req.TokenID, Amount: amount, Direction: l2types.LogActiveToLock})

			case l2types.ActionUnlock:
				if bal.Locked.Cmp(amount) < 0 {
					execErr = &l2types.ExecError{Code: l2types.ErrCodeLockedLessThanUnlock, Message: "LockedAmountLessThanUnlock"}
					break
				}
				bal.Locked = new(uint256.Int).Sub(bal.Locked, amount)
				bal.Active = new(uint256.Int).Add(bal.Active, amount)
				txCache[cacheKey{req.Address, req.TokenID}] = bal
				logs = append(logs, l2types.Log{Address: req.Address, TokenID: req.TokenID, Amount: amount, Direction: l2types.LogLockToActive})

			case l2types.ActionDivert:
				if bal.Active.Cmp(amount) < 0 {
					execErr = &l2types.ExecError{Code: l2types.ErrCodeActiveLessThanDivert, Message: "ActiveAmountLessThanDivert"}
					break
				}
				bal.Active = new(uint256.Int).Sub(bal.Active, amount)
				txCache[cacheKey{req.Address, req.TokenID}] = bal
				logs = append(logs, l2types.Log{Address: req.Address, TokenID: req.TokenID, Amount: amount, Direction: l2types.LogActiveReduce})

			case l2types.ActionTransfer:
				if bal.Active.Cmp(amount) < 0 {
					execErr = &l2types.ExecError{Code: l2types.ErrCodeActiveLessThanTransfer, Message: "ActiveAmountLessThanTransfer"}
					break
				}
				recipient := load(req.To, req.TokenID)
				bal.Active = new(uint256.Int).Sub(bal.Active, amount)
				recipient.Active = new(uint256.Int).Add(recipient.Active, amount)
				txCache[cacheKey{req.Address, req.TokenID}] = bal
				txCache[cacheKey{req.To, req.TokenID}] = recipient
				logs = append(logs, l2types.Log{Address: req.Address, TokenID: req.TokenID, Amount: amount, Direction: l2types.LogActiveReduce})
				logs = append(logs, l2types.Log{Address: req.To, TokenID: req.TokenID, Amount: amount, Direction: l2types.LogActiveAdd})
			}
			if execErr != nil {
				break
			}
		}

		if loadErr != nil {
			return l2types.BlockExecuteResponse{}, fmt.Errorf("l2executor: %w", loadErr)
		}

		if execErr != nil {
			for key, pre := range snapshot {
				if pre == nil {
					delete(txCache, key)
				} else {
					txCache[key] = *pre
				}
			}
			responses = append(responses, l2types.ExecuteResponse{TxHash: stx.TxHash, Error: execErr})
			continue
		}

		for key := range touched {
			blockCache[key] = txCache[key].Clone()
		}
		logCache[stx.TxHash] = logs
		responses = append(responses, l2types.ExecuteResponse{TxHash: stx.TxHash, Ret: stx.TxHash[:]})
	}

	if err := commit(stateTrie, e.backend, accounts, blockCache); err != nil {
		return l2types.BlockExecuteResponse{}, err
	}
	newRoot, err := stateTrie.Root()
	if err != nil {
		return l2types.BlockExecuteResponse{}, fmt.Errorf("l2executor: state root: %w", err)
	}

	return l2types.BlockExecuteResponse{StateRoot: l2types.Hash(newRoot), Responses: responses}, nil
}

// commit walks block_cache in the two sorted key orders the determinism
// requirement (§4.3) pins — address, then token_id — and writes each
// touched account's balance trie and the account itself into stateTrie.
func commit(stateTrie *triedb.Trie, backend *triedb.Backend, accounts map[l2types.Address]l2types.Account, blockCache map[cacheKey]l2types.TokenBalance) error {
	byAddr := map[l2types.Address][]l2types.TokenID{}
	for k := range blockCache {
		byAddr[k.addr] = append(byAddr[k.addr], k.token)
	}
	addrs := make([]l2types.Address, 0, len(byAddr))
	for a := range byAddr {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return lessBytes(addrs[i][:], addrs[j][:]) })

	for _, addr := range addrs {
		tokens := byAddr[addr]
		sort.Slice(tokens, func(i, j int) bool { return lessBytes(tokens[i][:], tokens[j][:]) })

		acct, ok := accounts[addr]
		if !ok {
			acct = l2types.Account{Address: addr, BalanceRoot: l2types.EmptyBalanceRoot}
		}
		balTrie, err := triedb.Open(backend, NodeNamespace, [32]byte(acct.BalanceRoot))
		if err != nil {
			return fmt.Errorf("l2executor: open balance trie for %s: %w", addr, err)
		}
		for _, tok := range tokens {
			enc, err := l2types.EncodeTokenBalance(blockCache[cacheKey{addr, tok}])
			if err != nil {
				return err
			}
			if err := balTrie.Insert(tok[:], enc); err != nil {
				return err
			}
		}
		newBalRoot, err := balTrie.Root()
		if err != nil {
			return fmt.Errorf("l2executor: balance root for %s: %w", addr, err)
		}
		acct.BalanceRoot = l2types.Hash(newBalRoot)
		accEnc, err := l2types.EncodeAccount(acct)
		if err != nil {
			return err
		}
		if err := stateTrie.Insert(addr[:], accEnc); err != nil {
			return err
		}
	}
	return nil
}

func lessBytes(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
