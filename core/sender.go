package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/golang/groupcache/lru"
	"github.com/sisu-network/lib/log"
	"github.com/sodiumlabs/txsend/account"
	chainseth "github.com/sodiumlabs/txsend/chains/eth"
	"github.com/sodiumlabs/txsend/client"
	"github.com/sodiumlabs/txsend/config"
	"github.com/sodiumlabs/txsend/database"
	"github.com/sodiumlabs/txsend/types"
)

const (
	SentTxCacheSize     = 1_000
	ReceiptPollInterval = time.Second
)

var (
	ErrAlreadySubmitted = errors.New("transaction was already submitted")
)

// Sender runs the send pipeline against a single node: connect, fetch the latest block, build
// the transaction record, sign, submit, bookkeeping. Each step writes one status line to out.
// Any failing step aborts the run.
type Sender struct {
	cfg      config.TxSend
	client   chainseth.EthClient
	account  *account.Account
	nonces   *NonceManager
	db       database.Database
	reporter client.Client
	out      io.Writer

	sentCache    *lru.Cache
	pollInterval time.Duration
}

// NewSender wires a sender. db and reporter are optional and may be nil.
func NewSender(
	cfg *config.TxSend,
	ethClient chainseth.EthClient,
	acc *account.Account,
	nonces *NonceManager,
	db database.Database,
	reporter client.Client,
	out io.Writer,
) *Sender {
	return &Sender{
		cfg:          *cfg,
		client:       ethClient,
		account:      acc,
		nonces:       nonces,
		db:           db,
		reporter:     reporter,
		out:          out,
		sentCache:    lru.New(SentTxCacheSize),
		pollInterval: ReceiptPollInterval,
	}
}

func (s *Sender) printf(format string, args ...interface{}) {
	fmt.Fprintf(s.out, "[*] "+format+"\n", args...)
}

// Connect checks the node answers. With dial_retry > 0 it re-checks that many times before
// giving up.
func (s *Sender) Connect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if s.client.IsConnected(ctx) {
			s.printf("Connected to RPC Client.")
			return nil
		}

		if attempt >= s.cfg.DialRetry {
			return fmt.Errorf("%w: %s", chainseth.ErrNotConnected, s.cfg.Rpc)
		}

		log.Warnf("Cannot reach node %s, retrying in %s", s.cfg.Rpc, s.cfg.DialRetryInterval.Duration)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.DialRetryInterval.Duration):
		}
	}
}

func (s *Sender) LatestBlock(ctx context.Context) (*types.BlockSummary, error) {
	block, err := s.client.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot get latest block: %w", err)
	}

	s.printf("Latest Block: %d (%d)", block.Number, block.TxCount)
	return block, nil
}

// BuildTx assembles the transaction record from config and the nonce manager. Field formats
// are checked when signing.
func (s *Sender) BuildTx(ctx context.Context) (*types.TxParams, error) {
	nonce, err := s.nonces.Next(ctx, s.account)
	if err != nil {
		return nil, err
	}

	params := &types.TxParams{
		Nonce:    nonce,
		To:       s.cfg.To,
		Gas:      s.cfg.Gas,
		GasPrice: s.cfg.GasPrice.String(),
		Value:    s.cfg.Value.String(),
	}
	if s.cfg.ChainId > 0 {
		params.ChainId = big.NewInt(s.cfg.ChainId)
	}

	log.Verbosef("Built tx record, nonce = %d, to = %s, gas = %d, gas price = %s, value = %s",
		params.Nonce, params.To, params.Gas, params.GasPrice, params.Value)

	return params, nil
}

func (s *Sender) Sign(params *types.TxParams) (*types.SignedTx, error) {
	signed, err := chainseth.SignTx(params, s.account.PrivateKey())
	if err != nil {
		return nil, err
	}

	s.printf("Signed Transaction: %s", signed.Hash.Hex())
	return signed, nil
}

// Submit broadcasts the signed bytes. The node must echo the hash we signed. On success the
// local nonce is committed and the tx is recorded.
func (s *Sender) Submit(ctx context.Context, signed *types.SignedTx) (common.Hash, error) {
	if _, ok := s.sentCache.Get(signed.Hash); ok {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrAlreadySubmitted, signed.Hash.Hex())
	}

	txHash, err := s.client.SendRawTransaction(ctx, signed.Raw)
	if err != nil {
		return common.Hash{}, err
	}
	if txHash != signed.Hash {
		return txHash, chainseth.NewHashMismatchError(signed.Hash, txHash)
	}

	s.printf("Sent Transaction: %s", txHash.Hex())
	s.sentCache.Add(signed.Hash, true)

	return txHash, s.bookkeeping(signed)
}

func (s *Sender) bookkeeping(signed *types.SignedTx) error {
	nonce, err := s.nonces.Commit(s.account)
	if err != nil {
		return fmt.Errorf("cannot persist nonce %d: %w", nonce, err)
	}
	log.Verbose("Next nonce for ", s.account.Address().Hex(), " is ", nonce)

	sent := &types.SentTx{
		Chain: s.cfg.Chain,
		Hash:  signed.Hash.Hex(),
		From:  signed.From.Hex(),
		To:    signed.To.Hex(),
		Nonce: signed.Nonce,
		Raw:   signed.Raw,
	}

	// The tx is already on the wire, failures below are only logged.
	if s.db != nil {
		if err := s.db.SaveSentTx(sent); err != nil {
			log.Error("Cannot save sent tx ", sent.Hash, " err = ", err)
		}
	}
	if s.reporter != nil {
		if err := s.reporter.PostSentTx(sent); err != nil {
			log.Error("Cannot report sent tx ", sent.Hash, " err = ", err)
		}
	}

	return nil
}

// WaitForReceipt polls the node until the transaction is mined or the timeout expires.
func (s *Sender) WaitForReceipt(ctx context.Context, txHash common.Hash, timeout time.Duration) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			log.Infof("Tx %s included in block %s, status = %d", txHash.Hex(), receipt.BlockNumber, receipt.Status)
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			log.Error("Failed to get receipt for tx ", txHash.Hex(), " err = ", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("cannot find receipt for tx hash %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Sender) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	return s.client.BalanceAt(ctx, address)
}

// Run executes the whole pipeline once and prints the final Done marker.
func (s *Sender) Run(ctx context.Context) (*types.SignedTx, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	if _, err := s.LatestBlock(ctx); err != nil {
		return nil, err
	}

	params, err := s.BuildTx(ctx)
	if err != nil {
		return nil, err
	}

	signed, err := s.Sign(params)
	if err != nil {
		return nil, err
	}

	txHash, err := s.Submit(ctx, signed)
	if err != nil {
		return signed, err
	}

	if s.cfg.WaitReceipt {
		if _, err := s.WaitForReceipt(ctx, txHash, s.cfg.ReceiptTimeout.Duration); err != nil {
			return signed, err
		}
	}

	s.printf("Done.")
	return signed, nil
}
