package eth

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sisu-network/lib/log"
	"github.com/sodiumlabs/txsend/config"
	"github.com/sodiumlabs/txsend/network"
	"github.com/sodiumlabs/txsend/types"
)

const (
	RpcTimeOut = 30 * time.Second
)

// EthClient is the subset of the node's JSON-RPC api used by the sender.
type EthClient interface {
	IsConnected(ctx context.Context) bool
	ClientVersion(ctx context.Context) (string, error)
	LatestBlock(ctx context.Context) (*types.BlockSummary, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	Close()
}

type defaultEthClient struct {
	url       string
	timeout   time.Duration
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// rpcBlock only decodes the fields we display. Transactions may be hashes or full objects
// depending on the fullTx flag, so they are kept raw.
type rpcBlock struct {
	Number       *hexutil.Big      `json:"number"`
	Hash         common.Hash       `json:"hash"`
	Transactions []json.RawMessage `json:"transactions"`
}

// NewEthClient creates a client for the node at cfg.Rpc. For http endpoints no connection is
// made until the first call; use IsConnected to check the node is reachable.
func NewEthClient(ctx context.Context, cfg config.TxSend) (EthClient, error) {
	timeout := cfg.RpcTimeout.Duration
	if timeout == 0 {
		timeout = RpcTimeOut
	}

	var rpcClient *rpc.Client
	var err error
	if strings.HasPrefix(cfg.Rpc, "http://") || strings.HasPrefix(cfg.Rpc, "https://") {
		httpClient, err := network.NewHttp(timeout, cfg.Proxy).Client()
		if err != nil {
			return nil, err
		}
		rpcClient, err = rpc.DialHTTPWithClient(cfg.Rpc, httpClient)
		if err != nil {
			return nil, fmt.Errorf("cannot create rpc client for %s: %w", cfg.Rpc, err)
		}
	} else {
		rpcClient, err = rpc.DialContext(ctx, cfg.Rpc)
		if err != nil {
			return nil, fmt.Errorf("cannot dial %s: %w", cfg.Rpc, err)
		}
	}

	return NewEthClientWithRpc(cfg.Rpc, rpcClient, timeout), nil
}

func NewEthClientWithRpc(url string, rpcClient *rpc.Client, timeout time.Duration) EthClient {
	return &defaultEthClient{
		url:       url,
		timeout:   timeout,
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}
}

func (c *defaultEthClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *defaultEthClient) IsConnected(ctx context.Context) bool {
	version, err := c.ClientVersion(ctx)
	if err != nil {
		log.Verbose("Node ", c.url, " is not reachable, err = ", err)
		return false
	}

	log.Verbose("Node ", c.url, " client version = ", version)
	return true
}

func (c *defaultEthClient) ClientVersion(ctx context.Context) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var version string
	err := c.rpcClient.CallContext(ctx, &version, "web3_clientVersion")
	return version, err
}

func (c *defaultEthClient) LatestBlock(ctx context.Context) (*types.BlockSummary, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var block *rpcBlock
	err := c.rpcClient.CallContext(ctx, &block, "eth_getBlockByNumber", "latest", false)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, ethereum.NotFound
	}
	if block.Number == nil {
		return nil, fmt.Errorf("malformed block from %s: missing number", c.url)
	}

	return &types.BlockSummary{
		Number:  block.Number.ToInt().Uint64(),
		Hash:    block.Hash,
		TxCount: len(block.Transactions),
	}, nil
}

func (c *defaultEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.ethClient.BlockNumber(ctx)
}

func (c *defaultEthClient) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.ethClient.ChainID(ctx)
}

func (c *defaultEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.ethClient.PendingNonceAt(ctx, account)
}

func (c *defaultEthClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.ethClient.BalanceAt(ctx, account, nil)
}

func (c *defaultEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.ethClient.TransactionReceipt(ctx, txHash)
}

// SendRawTransaction broadcasts already signed bytes and returns the hash reported by the
// node.
func (c *defaultEthClient) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var txHash common.Hash
	err := c.rpcClient.CallContext(ctx, &txHash, "eth_sendRawTransaction", hexutil.Encode(raw))
	if err != nil {
		return common.Hash{}, NewTxRejectedError(err)
	}

	return txHash, nil
}

func (c *defaultEthClient) Close() {
	c.rpcClient.Close()
}
