package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/sisu-network/lib/log"
	"github.com/sodiumlabs/txsend/account"
	chainseth "github.com/sodiumlabs/txsend/chains/eth"
	"github.com/sodiumlabs/txsend/config"
	"github.com/sodiumlabs/txsend/database"
)

// NonceManager decides which nonce the next transaction of an account uses and records it
// once the transaction was accepted.
//
//	fixed: the account's local counter, never checked against the chain.
//	chain: the pending transaction count reported by the node.
//	store: the larger of the persisted nonce and the chain's pending count.
type NonceManager struct {
	mode   string
	chain  string
	db     database.Database
	client chainseth.EthClient
	lock   *sync.Mutex
}

func NewNonceManager(mode string, chain string, db database.Database, client chainseth.EthClient) *NonceManager {
	return &NonceManager{
		mode:   mode,
		chain:  chain,
		db:     db,
		client: client,
		lock:   &sync.Mutex{},
	}
}

// Next reconciles the account's counter according to the mode and returns it.
func (m *NonceManager) Next(ctx context.Context, acc *account.Account) (uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	switch m.mode {
	case config.NonceModeFixed, "":
		return acc.Nonce(), nil

	case config.NonceModeChain:
		nonce, err := m.client.PendingNonceAt(ctx, acc.Address())
		if err != nil {
			return 0, fmt.Errorf("cannot get nonce of %s on chain %s: %w", acc.Address().Hex(), m.chain, err)
		}
		acc.SetNonce(nonce)
		return nonce, nil

	case config.NonceModeStore:
		if m.db == nil {
			return 0, fmt.Errorf("nonce mode %s needs a database", m.mode)
		}

		chainNonce, err := m.client.PendingNonceAt(ctx, acc.Address())
		if err != nil {
			return 0, fmt.Errorf("cannot get nonce of %s on chain %s: %w", acc.Address().Hex(), m.chain, err)
		}

		stored, ok, err := m.db.GetNonce(m.chain, acc.Address().Hex())
		if err != nil {
			return 0, err
		}

		nonce := chainNonce
		if ok && stored > chainNonce {
			// Transactions we sent may still be pending somewhere the node does not see.
			log.Warnf("Stored nonce %d is ahead of chain nonce %d for %s", stored, chainNonce, acc.Address().Hex())
			nonce = stored
		}
		acc.SetNonce(nonce)
		return nonce, nil
	}

	return 0, fmt.Errorf("unknown nonce mode %s", m.mode)
}

// Commit increments the account's counter after a successful send and persists it in store
// mode.
func (m *NonceManager) Commit(acc *account.Account) (uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	nonce := acc.IncrementNonce()
	if m.mode == config.NonceModeStore && m.db != nil {
		if err := m.db.SetNonce(m.chain, acc.Address().Hex(), nonce); err != nil {
			return nonce, err
		}
	}

	return nonce, nil
}
