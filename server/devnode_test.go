package server

import (
	"context"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

var (
	testKey, _  = crypto.HexToECDSA("bcdf20249abf0ed6d944c0288fad489e33f66b3960d9e6229c1cd214ed3bbe31")
	testAddr    = crypto.PubkeyToAddress(testKey.PublicKey)
	testTo      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testFunding = new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
)

func mockNode() *DevNode {
	return NewDevNode(big.NewInt(1337), map[common.Address]*big.Int{
		testAddr: testFunding,
	})
}

func signedTransfer(t *testing.T, nonce uint64, value int64, gasPrice int64, signer ethtypes.Signer) []byte {
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &testTo,
		Value:    big.NewInt(value),
		Gas:      21_000,
		GasPrice: big.NewInt(gasPrice),
	})
	signed, err := ethtypes.SignTx(tx, signer, testKey)
	require.Nil(t, err)

	raw, err := signed.MarshalBinary()
	require.Nil(t, err)
	return raw
}

func TestDevNode_SubmitRawTx(t *testing.T) {
	t.Run("transfer", func(t *testing.T) {
		node := mockNode()
		require.Equal(t, uint64(0), node.BlockNumber())

		raw := signedTransfer(t, 0, 5, 10, ethtypes.NewEIP155Signer(big.NewInt(1337)))
		hash, err := node.SubmitRawTx(raw)
		require.Nil(t, err)

		require.Equal(t, uint64(1), node.BlockNumber())
		require.Equal(t, uint64(1), node.Nonce(testAddr))
		require.Equal(t, big.NewInt(5), node.Balance(testTo))

		spent := big.NewInt(21_000*10 + 5)
		require.Equal(t, new(big.Int).Sub(testFunding, spent), node.Balance(testAddr))

		receipt := node.Receipt(hash)
		require.NotNil(t, receipt)
		require.Equal(t, ethtypes.ReceiptStatusSuccessful, receipt.Status)
		require.Equal(t, big.NewInt(1), receipt.BlockNumber)
	})

	t.Run("unprotected_signature", func(t *testing.T) {
		node := mockNode()
		_, err := node.SubmitRawTx(signedTransfer(t, 0, 1, 10, ethtypes.HomesteadSigner{}))
		require.Nil(t, err)
	})

	t.Run("wrong_chain_id", func(t *testing.T) {
		node := mockNode()
		_, err := node.SubmitRawTx(signedTransfer(t, 0, 1, 10, ethtypes.NewEIP155Signer(big.NewInt(1))))
		require.NotNil(t, err)
	})

	t.Run("nonce_mismatch", func(t *testing.T) {
		node := mockNode()
		_, err := node.SubmitRawTx(signedTransfer(t, 3, 1, 10, ethtypes.HomesteadSigner{}))
		require.ErrorContains(t, err, "nonce too high")

		_, err = node.SubmitRawTx(signedTransfer(t, 0, 1, 10, ethtypes.HomesteadSigner{}))
		require.Nil(t, err)

		_, err = node.SubmitRawTx(signedTransfer(t, 0, 2, 10, ethtypes.HomesteadSigner{}))
		require.ErrorContains(t, err, "nonce too low")
	})

	t.Run("already_known", func(t *testing.T) {
		node := mockNode()
		raw := signedTransfer(t, 0, 1, 10, ethtypes.HomesteadSigner{})
		_, err := node.SubmitRawTx(raw)
		require.Nil(t, err)

		_, err = node.SubmitRawTx(raw)
		require.ErrorIs(t, err, ErrAlreadyKnown)
	})

	t.Run("insufficient_funds", func(t *testing.T) {
		node := NewDevNode(big.NewInt(1337), nil)
		_, err := node.SubmitRawTx(signedTransfer(t, 0, 1, 10, ethtypes.HomesteadSigner{}))
		require.ErrorContains(t, err, "insufficient funds")
	})

	t.Run("underpriced", func(t *testing.T) {
		node := mockNode()
		node.SetMinGasPrice(big.NewInt(100))
		_, err := node.SubmitRawTx(signedTransfer(t, 0, 1, 10, ethtypes.HomesteadSigner{}))
		require.ErrorIs(t, err, ErrUnderpriced)
	})

	t.Run("garbage", func(t *testing.T) {
		node := mockNode()
		_, err := node.SubmitRawTx([]byte{0x01, 0x02})
		require.NotNil(t, err)
	})
}

func TestHandler(t *testing.T) {
	node := mockNode()
	handler, err := NewHandler(node)
	require.Nil(t, err)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	rpcClient, err := rpc.Dial(srv.URL)
	require.Nil(t, err)
	defer rpcClient.Close()
	client := ethclient.NewClient(rpcClient)
	ctx := context.Background()

	var version string
	require.Nil(t, rpcClient.CallContext(ctx, &version, "web3_clientVersion"))
	require.Equal(t, ClientVersion, version)

	chainId, err := client.ChainID(ctx)
	require.Nil(t, err)
	require.Equal(t, big.NewInt(1337), chainId)

	netVersion, err := client.NetworkID(ctx)
	require.Nil(t, err)
	require.Equal(t, big.NewInt(1337), netVersion)

	balance, err := client.BalanceAt(ctx, testAddr, nil)
	require.Nil(t, err)
	require.Equal(t, testFunding, balance)

	raw := signedTransfer(t, 0, 7, 10, ethtypes.NewEIP155Signer(big.NewInt(1337)))
	tx := new(ethtypes.Transaction)
	require.Nil(t, tx.UnmarshalBinary(raw))
	require.Nil(t, client.SendTransaction(ctx, tx))

	nonce, err := client.PendingNonceAt(ctx, testAddr)
	require.Nil(t, err)
	require.Equal(t, uint64(1), nonce)

	number, err := client.BlockNumber(ctx)
	require.Nil(t, err)
	require.Equal(t, uint64(1), number)

	receipt, err := client.TransactionReceipt(ctx, tx.Hash())
	require.Nil(t, err)
	require.Equal(t, ethtypes.ReceiptStatusSuccessful, receipt.Status)
	require.Equal(t, tx.Hash(), receipt.TxHash)

	_, err = client.TransactionReceipt(ctx, common.HexToHash("0x01"))
	require.NotNil(t, err)

	var block map[string]interface{}
	require.Nil(t, rpcClient.CallContext(ctx, &block, "eth_getBlockByNumber", "latest", false))
	require.Equal(t, "0x1", block["number"])
	require.Len(t, block["transactions"], 1)
}
