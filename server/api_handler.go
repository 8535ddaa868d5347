package server

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

const ClientVersion = "txsend-devnode/v0.1.0"

// EthApi serves the eth namespace of the dev node.
type EthApi struct {
	node *DevNode
}

func NewEthApi(node *DevNode) *EthApi {
	return &EthApi{
		node: node,
	}
}

func (api *EthApi) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.node.ChainId())
}

func (api *EthApi) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.node.BlockNumber())
}

func (api *EthApi) GasPrice() *hexutil.Big {
	api.node.lock.RLock()
	defer api.node.lock.RUnlock()

	return (*hexutil.Big)(api.node.minGasPrice)
}

// GetBlockByNumber always lists transaction hashes, fullTx is ignored.
func (api *EthApi) GetBlockByNumber(ctx context.Context, number rpc.BlockNumber, fullTx bool) (map[string]interface{}, error) {
	api.node.lock.RLock()
	defer api.node.lock.RUnlock()

	b := api.node.block(number.Int64())
	if b == nil {
		return nil, nil
	}

	txs := make([]common.Hash, len(b.txs))
	copy(txs, b.txs)

	return map[string]interface{}{
		"number":       hexutil.Uint64(b.number),
		"hash":         b.hash,
		"parentHash":   b.parent,
		"timestamp":    hexutil.Uint64(b.timestamp),
		"gasLimit":     hexutil.Uint64(30_000_000),
		"transactions": txs,
	}, nil
}

func (api *EthApi) GetTransactionCount(ctx context.Context, address common.Address, number rpc.BlockNumber) hexutil.Uint64 {
	return hexutil.Uint64(api.node.Nonce(address))
}

func (api *EthApi) GetBalance(ctx context.Context, address common.Address, number rpc.BlockNumber) *hexutil.Big {
	return (*hexutil.Big)(api.node.Balance(address))
}

func (api *EthApi) SendRawTransaction(ctx context.Context, input hexutil.Bytes) (common.Hash, error) {
	return api.node.SubmitRawTx(input)
}

// GetTransactionReceipt returns nil for unknown hashes, which clients read as not found.
func (api *EthApi) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return api.node.Receipt(hash), nil
}

type Web3Api struct{}

func (api *Web3Api) ClientVersion() string {
	return ClientVersion
}

type NetApi struct {
	node *DevNode
}

func (api *NetApi) Version() string {
	return api.node.ChainId().String()
}
