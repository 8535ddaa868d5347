package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sisu-network/lib/log"
)

var (
	ErrAlreadyKnown       = errors.New("already known")
	ErrUnderpriced        = errors.New("transaction underpriced")
	ErrIntrinsicGas       = errors.New("intrinsic gas too low")
	ErrContractCreation   = errors.New("contract creation is not supported")
	DefaultMinGasPrice    = big.NewInt(1)
	DefaultDevNodeChainId = big.NewInt(3151908)
)

type devBlock struct {
	number    uint64
	hash      common.Hash
	parent    common.Hash
	timestamp uint64
	txs       []common.Hash
}

// DevNode is an in-memory chain that accepts plain value transfers. Every accepted
// transaction is mined immediately in its own block. It only validates what a real node would
// reject a transfer for: signature, chain id, nonce, gas and balance.
type DevNode struct {
	lock        *sync.RWMutex
	chainId     *big.Int
	minGasPrice *big.Int
	signer      ethtypes.Signer

	blocks   []*devBlock
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	txs      map[common.Hash]*ethtypes.Transaction
	receipts map[common.Hash]*ethtypes.Receipt
}

func NewDevNode(chainId *big.Int, alloc map[common.Address]*big.Int) *DevNode {
	if chainId == nil {
		chainId = DefaultDevNodeChainId
	}

	n := &DevNode{
		lock:        &sync.RWMutex{},
		chainId:     new(big.Int).Set(chainId),
		minGasPrice: DefaultMinGasPrice,
		signer:      ethtypes.LatestSignerForChainID(chainId),
		balances:    make(map[common.Address]*big.Int),
		nonces:      make(map[common.Address]uint64),
		txs:         make(map[common.Hash]*ethtypes.Transaction),
		receipts:    make(map[common.Hash]*ethtypes.Receipt),
	}
	for addr, balance := range alloc {
		n.balances[addr] = new(big.Int).Set(balance)
	}

	n.mine(nil)

	return n
}

func (n *DevNode) SetMinGasPrice(price *big.Int) {
	n.lock.Lock()
	defer n.lock.Unlock()

	n.minGasPrice = new(big.Int).Set(price)
}

func (n *DevNode) ChainId() *big.Int {
	return new(big.Int).Set(n.chainId)
}

func (n *DevNode) BlockNumber() uint64 {
	n.lock.RLock()
	defer n.lock.RUnlock()

	return n.blocks[len(n.blocks)-1].number
}

func (n *DevNode) Balance(addr common.Address) *big.Int {
	n.lock.RLock()
	defer n.lock.RUnlock()

	if b, ok := n.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (n *DevNode) Nonce(addr common.Address) uint64 {
	n.lock.RLock()
	defer n.lock.RUnlock()

	return n.nonces[addr]
}

func (n *DevNode) Transaction(hash common.Hash) *ethtypes.Transaction {
	n.lock.RLock()
	defer n.lock.RUnlock()

	return n.txs[hash]
}

// MineEmptyBlock advances the chain without transactions.
func (n *DevNode) MineEmptyBlock() uint64 {
	n.lock.Lock()
	defer n.lock.Unlock()

	return n.mine(nil).number
}

// mine appends a block. Callers must hold the write lock (or be the constructor).
func (n *DevNode) mine(txs []common.Hash) *devBlock {
	b := &devBlock{
		timestamp: uint64(time.Now().Unix()),
		txs:       txs,
	}
	if len(n.blocks) > 0 {
		prev := n.blocks[len(n.blocks)-1]
		b.number = prev.number + 1
		b.parent = prev.hash
	}

	num := make([]byte, 8)
	binary.BigEndian.PutUint64(num, b.number)
	parts := [][]byte{b.parent.Bytes(), num}
	for _, h := range txs {
		parts = append(parts, h.Bytes())
	}
	b.hash = crypto.Keccak256Hash(parts...)

	n.blocks = append(n.blocks, b)
	return b
}

// block returns the block at the given height. Negative heights (latest, pending) resolve to
// the head.
func (n *DevNode) block(number int64) *devBlock {
	if number < 0 {
		return n.blocks[len(n.blocks)-1]
	}
	if number >= int64(len(n.blocks)) {
		return nil
	}
	return n.blocks[number]
}

// SubmitRawTx validates the signed transaction, applies the transfer and mines it.
func (n *DevNode) SubmitRawTx(raw []byte) (common.Hash, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, fmt.Errorf("rlp: %w", err)
	}

	from, err := ethtypes.Sender(n.signer, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid sender: %w", err)
	}
	if tx.To() == nil {
		return common.Hash{}, ErrContractCreation
	}

	n.lock.Lock()
	defer n.lock.Unlock()

	hash := tx.Hash()
	if _, ok := n.txs[hash]; ok {
		return common.Hash{}, ErrAlreadyKnown
	}

	expected := n.nonces[from]
	if tx.Nonce() < expected {
		return common.Hash{}, fmt.Errorf("nonce too low: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), expected)
	}
	if tx.Nonce() > expected {
		return common.Hash{}, fmt.Errorf("nonce too high: address %s, tx: %d state: %d", from.Hex(), tx.Nonce(), expected)
	}
	if tx.GasPrice().Cmp(n.minGasPrice) < 0 {
		return common.Hash{}, ErrUnderpriced
	}
	if tx.Gas() < params.TxGas {
		return common.Hash{}, ErrIntrinsicGas
	}

	balance := n.balances[from]
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Cmp(tx.Cost()) < 0 {
		return common.Hash{}, fmt.Errorf("insufficient funds for gas * price + value: address %s have %v want %v",
			from.Hex(), balance, tx.Cost())
	}

	// Only the intrinsic gas is charged, the rest of the limit is refunded.
	fee := new(big.Int).Mul(new(big.Int).SetUint64(params.TxGas), tx.GasPrice())
	n.balances[from] = new(big.Int).Sub(balance, new(big.Int).Add(fee, tx.Value()))
	to := *tx.To()
	toBalance := n.balances[to]
	if toBalance == nil {
		toBalance = big.NewInt(0)
	}
	n.balances[to] = new(big.Int).Add(toBalance, tx.Value())
	n.nonces[from] = expected + 1

	b := n.mine([]common.Hash{hash})
	n.txs[hash] = tx
	n.receipts[hash] = &ethtypes.Receipt{
		Type:              tx.Type(),
		Status:            ethtypes.ReceiptStatusSuccessful,
		CumulativeGasUsed: params.TxGas,
		Logs:              []*ethtypes.Log{},
		TxHash:            hash,
		GasUsed:           params.TxGas,
		BlockHash:         b.hash,
		BlockNumber:       new(big.Int).SetUint64(b.number),
		TransactionIndex:  0,
	}

	log.Verbosef("Dev node mined tx %s from %s at block %d", hash.Hex(), from.Hex(), b.number)

	return hash, nil
}

func (n *DevNode) Receipt(hash common.Hash) *ethtypes.Receipt {
	n.lock.RLock()
	defer n.lock.RUnlock()

	return n.receipts[hash]
}
