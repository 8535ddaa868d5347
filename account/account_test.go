package account

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const (
	testKey     = "bcdf20249abf0ed6d944c0288fad489e33f66b3960d9e6229c1cd214ed3bbe31"
	testAddress = "0x8943545177806ED17B9F23F0a21ee5948eCaa776"
)

func TestFromHex(t *testing.T) {
	acc, err := FromHex(testKey)
	require.Nil(t, err)
	require.Equal(t, common.HexToAddress(testAddress), acc.Address())
	require.Equal(t, testKey, acc.PrivateKeyHex())

	prefixed, err := FromHex("0x" + testKey)
	require.Nil(t, err)
	require.Equal(t, acc.Address(), prefixed.Address())

	_, err = FromHex("not-a-key")
	require.NotNil(t, err)

	_, err = FromHex("")
	require.NotNil(t, err)
}

func TestNonce(t *testing.T) {
	acc, err := Generate()
	require.Nil(t, err)

	require.Equal(t, uint64(0), acc.Nonce())
	require.Equal(t, uint64(1), acc.IncrementNonce())
	require.Equal(t, uint64(1), acc.Nonce())

	acc.SetNonce(42)
	require.Equal(t, uint64(43), acc.IncrementNonce())
}

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.Nil(t, err)
	b, err := Generate()
	require.Nil(t, err)

	require.NotEqual(t, a.Address(), b.Address())

	restored, err := FromHex(a.PrivateKeyHex())
	require.Nil(t, err)
	require.Equal(t, a.Address(), restored.Address())
}

func TestFromKeystore(t *testing.T) {
	dir := t.TempDir()
	ks := keystore.NewKeyStore(dir, keystore.LightScryptN, keystore.LightScryptP)

	acc, err := FromHex(testKey)
	require.Nil(t, err)

	imported, err := ks.ImportECDSA(acc.PrivateKey(), "secret")
	require.Nil(t, err)

	loaded, err := FromKeystore(imported.URL.Path, "secret")
	require.Nil(t, err)
	require.Equal(t, common.HexToAddress(testAddress), loaded.Address())

	_, err = FromKeystore(imported.URL.Path, "wrong")
	require.NotNil(t, err)

	_, err = FromKeystore(filepath.Join(dir, "missing.json"), "secret")
	require.NotNil(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}
