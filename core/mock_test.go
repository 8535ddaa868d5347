package core

import (
	"context"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sodiumlabs/txsend/account"
	chainseth "github.com/sodiumlabs/txsend/chains/eth"
	"github.com/sodiumlabs/txsend/server"
	"github.com/sodiumlabs/txsend/types"
	"github.com/stretchr/testify/require"
)

const testKey = "bcdf20249abf0ed6d944c0288fad489e33f66b3960d9e6229c1cd214ed3bbe31"

var (
	testFunding = new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	testChainId = big.NewInt(3151908)
)

// MockClient is a reporter that records what it is given.
type MockClient struct {
	TryDialFunc    func()
	PingFunc       func(source string) error
	PostSentTxFunc func(tx *types.SentTx) error
}

func (c *MockClient) TryDial() {
	if c.TryDialFunc != nil {
		c.TryDialFunc()
	}
}

func (c *MockClient) Ping(source string) error {
	if c.PingFunc != nil {
		return c.PingFunc(source)
	}
	return nil
}

func (c *MockClient) PostSentTx(tx *types.SentTx) error {
	if c.PostSentTxFunc != nil {
		return c.PostSentTxFunc(tx)
	}
	return nil
}

// mockEthClient overrides selected calls of an underlying client.
type mockEthClient struct {
	chainseth.EthClient

	IsConnectedFunc        func(ctx context.Context) bool
	SendRawTransactionFunc func(ctx context.Context, raw []byte) (common.Hash, error)
}

func (c *mockEthClient) IsConnected(ctx context.Context) bool {
	if c.IsConnectedFunc != nil {
		return c.IsConnectedFunc(ctx)
	}
	return c.EthClient.IsConnected(ctx)
}

func (c *mockEthClient) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	if c.SendRawTransactionFunc != nil {
		return c.SendRawTransactionFunc(ctx, raw)
	}
	return c.EthClient.SendRawTransaction(ctx, raw)
}

func mockAccount(t *testing.T) *account.Account {
	acc, err := account.FromHex(testKey)
	require.Nil(t, err)
	return acc
}

// mockNode starts a dev node funding the test key and returns a client connected to it.
func mockNode(t *testing.T) (*server.DevNode, chainseth.EthClient) {
	acc := mockAccount(t)
	node := server.NewDevNode(testChainId, map[common.Address]*big.Int{
		acc.Address(): testFunding,
	})

	handler, err := server.NewHandler(node)
	require.Nil(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rpcClient, err := rpc.Dial(srv.URL)
	require.Nil(t, err)

	client := chainseth.NewEthClientWithRpc(srv.URL, rpcClient, 5*time.Second)
	t.Cleanup(client.Close)

	return node, client
}
