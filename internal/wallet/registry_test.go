package wallet_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

func newLocal(t *testing.T) *wallet.PrivateKeyWallet {
	t.Helper()
	w, err := wallet.GenerateWallet(1, nil)
	require.NoError(t, err)
	return w
}

func addrOf(t *testing.T, w wallet.Wallet) string {
	t.Helper()
	a, err := w.Address(context.Background())
	require.NoError(t, err)
	return a.Hex()
}

func TestRegistryAddIsIdempotent(t *testing.T) {
	reg := wallet.NewRegistry()
	first, err := wallet.NewPrivateKeyWallet(testKey, 1, nil)
	require.NoError(t, err)
	second, err := wallet.NewPrivateKeyWallet(testKey, 8453, nil)
	require.NoError(t, err)

	kept, err := reg.Add(context.Background(), first)
	require.NoError(t, err)
	assert.Same(t, first, kept)

	kept, err = reg.Add(context.Background(), second)
	require.NoError(t, err)
	assert.Same(t, first, kept, "re-adding an address keeps the original wallet")

	got, err := reg.Get(testAddress)
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Len(t, reg.List(), 1)
}

func TestRegistryGetNormalisesAddress(t *testing.T) {
	reg := wallet.NewRegistry()
	w := newLocal(t)
	_, err := reg.Add(context.Background(), w)
	require.NoError(t, err)

	addr := addrOf(t, w)
	for _, variant := range []string{addr, strings.ToLower(addr), "0x" + strings.ToUpper(addr[2:])} {
		got, err := reg.Get(variant)
		require.NoError(t, err, variant)
		assert.Same(t, w, got)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := wallet.NewRegistry()
	_, err := reg.Get(testAddress)
	assert.ErrorIs(t, err, wallet.ErrNotFound)
	_, err = reg.Get("not-an-address")
	assert.ErrorIs(t, err, wallet.ErrNotFound)
}

func TestRegistrySetActiveReplaces(t *testing.T) {
	reg := wallet.NewRegistry()
	a, b := newLocal(t), newLocal(t)

	assert.Nil(t, reg.Active())
	reg.SetActive(a)
	assert.Same(t, a, reg.Active())
	reg.SetActive(b)
	assert.Same(t, b, reg.Active())
}

func TestRegistryRemove(t *testing.T) {
	reg := wallet.NewRegistry()
	a, b := newLocal(t), newLocal(t)
	for _, w := range []wallet.Wallet{a, b} {
		_, err := reg.Add(context.Background(), w)
		require.NoError(t, err)
	}
	reg.SetActive(a)

	reg.Remove(testAddress) // never added
	reg.Remove("garbage")
	assert.Len(t, reg.List(), 2)

	reg.Remove(addrOf(t, b))
	assert.Same(t, a, reg.Active(), "removing an inactive wallet keeps the active one")

	reg.Remove(strings.ToLower(addrOf(t, a)))
	assert.Nil(t, reg.Active())
	assert.Empty(t, reg.List())
}

func TestRegistryListMarksActive(t *testing.T) {
	reg := wallet.NewRegistry()
	a, b := newLocal(t), newLocal(t)
	_, _ = reg.Add(context.Background(), a)
	_, _ = reg.Add(context.Background(), b)
	reg.SetActive(b)

	entries := reg.List()
	require.Len(t, entries, 2)
	assert.Negative(t, entries[0].Address.Cmp(entries[1].Address))
	for _, e := range entries {
		assert.Equal(t, e.Wallet == wallet.Wallet(b), e.Active)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := wallet.NewRegistry()
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := wallet.GenerateWallet(1, nil)
			if err != nil {
				return
			}
			_, _ = reg.Add(context.Background(), w)
			reg.SetActive(w)
			_ = reg.List()
		}()
	}
	wg.Wait()
	assert.Len(t, reg.List(), 16)
	assert.NotNil(t, reg.Active())
}
