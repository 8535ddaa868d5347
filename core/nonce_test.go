package core

import (
	"context"
	"testing"

	"github.com/sodiumlabs/txsend/config"
	"github.com/sodiumlabs/txsend/database"
	"github.com/stretchr/testify/require"
)

func mockNonceDb(t *testing.T, schema string) database.Database {
	db := database.NewDb(&config.TxSend{
		InMemory:        true,
		DbSchema:        schema,
		DbMigrationPath: "file://../database/migrations",
	})
	require.Nil(t, db.Init())
	t.Cleanup(func() { db.Close() })

	return db
}

func TestNonceManager(t *testing.T) {
	ctx := context.Background()

	t.Run("fixed", func(t *testing.T) {
		_, client := mockNode(t)
		acc := mockAccount(t)
		acc.SetNonce(7)
		m := NewNonceManager(config.NonceModeFixed, "eth", nil, client)

		nonce, err := m.Next(ctx, acc)
		require.Nil(t, err)
		require.Equal(t, uint64(7), nonce)

		next, err := m.Commit(acc)
		require.Nil(t, err)
		require.Equal(t, uint64(8), next)
	})

	t.Run("chain", func(t *testing.T) {
		node, client := mockNode(t)
		acc := mockAccount(t)
		acc.SetNonce(7)
		m := NewNonceManager(config.NonceModeChain, "eth", nil, client)

		nonce, err := m.Next(ctx, acc)
		require.Nil(t, err)
		require.Equal(t, node.Nonce(acc.Address()), nonce)
		require.Equal(t, uint64(0), acc.Nonce())
	})

	t.Run("store", func(t *testing.T) {
		_, client := mockNode(t)
		db := mockNonceDb(t, "nonce_manager_store")
		acc := mockAccount(t)
		m := NewNonceManager(config.NonceModeStore, "eth", db, client)

		// Nothing stored: chain nonce.
		nonce, err := m.Next(ctx, acc)
		require.Nil(t, err)
		require.Equal(t, uint64(0), nonce)

		next, err := m.Commit(acc)
		require.Nil(t, err)
		require.Equal(t, uint64(1), next)

		stored, ok, err := db.GetNonce("eth", acc.Address().Hex())
		require.Nil(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(1), stored)

		// Stored value ahead of the chain wins.
		require.Nil(t, db.SetNonce("eth", acc.Address().Hex(), 9))
		nonce, err = m.Next(ctx, acc)
		require.Nil(t, err)
		require.Equal(t, uint64(9), nonce)
	})

	t.Run("store_without_db", func(t *testing.T) {
		_, client := mockNode(t)
		m := NewNonceManager(config.NonceModeStore, "eth", nil, client)

		_, err := m.Next(ctx, mockAccount(t))
		require.NotNil(t, err)
	})

	t.Run("unknown_mode", func(t *testing.T) {
		_, client := mockNode(t)
		m := NewNonceManager("random", "eth", nil, client)

		_, err := m.Next(ctx, mockAccount(t))
		require.NotNil(t, err)
	})
}
