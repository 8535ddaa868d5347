package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxParams is the transaction record the sender builds before signing. From is not part of
// it: the sending address is derived from the signing key.
type TxParams struct {
	Nonce uint64
	To    string
	Gas   uint64
	// Hex with 0x prefix or decimal.
	GasPrice string
	// Wei, decimal or hex.
	Value string
	// 0 means no replay protection.
	ChainId *big.Int
}

// SignedTx holds the raw bytes ready for eth_sendRawTransaction and the keccak256 hash of
// those bytes.
type SignedTx struct {
	Raw   []byte
	Hash  common.Hash
	From  common.Address
	To    common.Address
	Nonce uint64
}

type BlockSummary struct {
	Number  uint64
	Hash    common.Hash
	TxCount int
}

// A transaction accepted by the node. Saved to the db and posted to the reporter.
type SentTx struct {
	Chain string
	Hash  string
	From  string
	To    string
	Nonce uint64
	Raw   []byte
}
