package account

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is an externally owned account used to sign transactions. It carries a local nonce
// counter which is only as good as whatever reconciles it with the chain.
type Account struct {
	key     *ecdsa.PrivateKey
	address common.Address

	lock  *sync.Mutex
	nonce uint64
}

func New(key *ecdsa.PrivateKey) *Account {
	return &Account{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		lock:    &sync.Mutex{},
	}
}

// FromHex parses a hex private key, with or without the 0x prefix.
func FromHex(hexKey string) (*Account, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return New(key), nil
}

func FromKeystore(path, passphrase string) (*Account, error) {
	keyJson, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read keystore file %s: %w", path, err)
	}

	key, err := keystore.DecryptKey(keyJson, passphrase)
	if err != nil {
		return nil, fmt.Errorf("cannot decrypt keystore file %s: %w", path, err)
	}

	return New(key.PrivateKey), nil
}

// Generate creates an account with a random key.
func Generate() (*Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	return New(key), nil
}

func (a *Account) Address() common.Address {
	return a.address
}

func (a *Account) PrivateKey() *ecdsa.PrivateKey {
	return a.key
}

func (a *Account) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(a.key))
}

func (a *Account) Nonce() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()

	return a.nonce
}

func (a *Account) SetNonce(nonce uint64) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.nonce = nonce
}

// IncrementNonce bumps the local counter after a transaction was accepted and returns the new
// value.
func (a *Account) IncrementNonce() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.nonce++
	return a.nonce
}
