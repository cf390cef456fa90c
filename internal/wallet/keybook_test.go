package wallet_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

func TestKeyBookImportAndOpen(t *testing.T) {
	book := wallet.NewKeyBook(wallet.NewInMemoryKeystore(), wallet.WithInMemoryStore())

	entry, err := book.Import("deployer", testKey)
	require.NoError(t, err)
	assert.Equal(t, testAddress, entry.Address)
	assert.Equal(t, "w3link.deployer", entry.KeyRef)
	assert.NotEmpty(t, entry.CreatedAt)

	w, err := book.Open("deployer", 8453, nil)
	require.NoError(t, err)
	assert.Equal(t, testAddress, addrOf(t, w))
	assert.Equal(t, int64(8453), w.ChainID())
}

func TestKeyBookRejectsDuplicatesAndBadKeys(t *testing.T) {
	book := wallet.NewKeyBook(wallet.NewInMemoryKeystore())

	_, err := book.Import("dup", testKey)
	require.NoError(t, err)
	_, err = book.Import("dup", testKey)
	assert.ErrorIs(t, err, wallet.ErrExists)

	_, err = book.Import("bad", "0x1234")
	assert.ErrorIs(t, err, wallet.ErrInvalidKey)
}

func TestKeyBookGenerateListRemove(t *testing.T) {
	ks := wallet.NewInMemoryKeystore()
	book := wallet.NewKeyBook(ks)

	b, err := book.Generate("bravo")
	require.NoError(t, err)
	_, err = book.Generate("alpha")
	require.NoError(t, err)

	list, err := book.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "bravo", list[1].Name)

	require.NoError(t, book.Remove("bravo"))
	_, err = book.Get("bravo")
	assert.ErrorIs(t, err, wallet.ErrNotFound)
	_, err = ks.Retrieve(b.KeyRef)
	assert.ErrorIs(t, err, wallet.ErrNotFound, "removing the entry also deletes its key")

	assert.ErrorIs(t, book.Remove("bravo"), wallet.ErrNotFound)
}

func TestKeyBookPersistsToConfigDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	ks := wallet.NewInMemoryKeystore()

	book := wallet.NewKeyBook(ks, wallet.WithStore(wallet.NewConfigStore(cfg)))
	_, err = book.Import("main", testKey)
	require.NoError(t, err)

	info, err := os.Stat(cfg.LocalKeysPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened := wallet.NewKeyBook(ks, wallet.WithStore(wallet.NewConfigStore(cfg)))
	entry, err := reopened.Get("main")
	require.NoError(t, err)
	assert.Equal(t, testAddress, entry.Address)
}
