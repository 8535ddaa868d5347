package eth

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sodiumlabs/txsend/types"
)

// ParseBigInt accepts a 0x prefixed hex integer or a decimal integer. Leading zeros are allowed
// in both forms.
func ParseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)

	var n *big.Int
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		n, ok = new(big.Int).SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative integer %q", s)
	}

	return n, nil
}

// NewTx converts the transaction record into an unsigned legacy transaction.
func NewTx(params *types.TxParams) (*ethtypes.Transaction, error) {
	if !common.IsHexAddress(params.To) {
		return nil, fmt.Errorf("invalid recipient address %q", params.To)
	}
	to := common.HexToAddress(params.To)

	gasPrice, err := ParseBigInt(params.GasPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid gas price: %w", err)
	}

	value, err := ParseBigInt(params.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}

	return ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    params.Nonce,
		To:       &to,
		Value:    value,
		Gas:      params.Gas,
		GasPrice: gasPrice,
	}), nil
}

// Signer returns an EIP-155 signer for a non zero chain id and a homestead signer otherwise.
func Signer(chainId *big.Int) ethtypes.Signer {
	if chainId == nil || chainId.Sign() == 0 {
		return ethtypes.HomesteadSigner{}
	}

	return ethtypes.NewEIP155Signer(chainId)
}

// SignTx builds and signs the record. Signing is deterministic (RFC 6979) so the same record
// and key always give the same bytes.
func SignTx(params *types.TxParams, key *ecdsa.PrivateKey) (*types.SignedTx, error) {
	tx, err := NewTx(params)
	if err != nil {
		return nil, err
	}

	signer := Signer(params.ChainId)
	signedTx, err := ethtypes.SignTx(tx, signer, key)
	if err != nil {
		return nil, fmt.Errorf("error signing transaction: %w", err)
	}

	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("error encoding transaction: %w", err)
	}

	from, err := ethtypes.Sender(signer, signedTx)
	if err != nil {
		return nil, err
	}

	return &types.SignedTx{
		Raw:   raw,
		Hash:  signedTx.Hash(),
		From:  from,
		To:    *signedTx.To(),
		Nonce: signedTx.Nonce(),
	}, nil
}

// DecodeTx parses raw bytes produced by SignTx.
func DecodeTx(raw []byte) (*ethtypes.Transaction, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("cannot decode raw transaction: %w", err)
	}

	return tx, nil
}
