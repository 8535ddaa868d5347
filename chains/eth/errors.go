package eth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotConnected = errors.New("node is not connected")
)

// TxRejectedError is returned when the node refuses a raw transaction (nonce mismatch,
// insufficient funds, underpriced...).
type TxRejectedError struct {
	Reason string
	err    error
}

func NewTxRejectedError(err error) error {
	return &TxRejectedError{
		Reason: err.Error(),
		err:    err,
	}
}

func (e *TxRejectedError) Error() string {
	return fmt.Sprintf("transaction rejected by node: %s", e.Reason)
}

func (e *TxRejectedError) Unwrap() error {
	return e.err
}

func (e *TxRejectedError) IsNonceError() bool {
	reason := strings.ToLower(e.Reason)
	return strings.Contains(reason, "nonce too low") || strings.Contains(reason, "nonce too high")
}

type HashMismatchError struct {
	Signed   common.Hash
	Returned common.Hash
}

func NewHashMismatchError(signed, returned common.Hash) error {
	return &HashMismatchError{
		Signed:   signed,
		Returned: returned,
	}
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("node returned hash %s, signed hash is %s", e.Returned.Hex(), e.Signed.Hex())
}
