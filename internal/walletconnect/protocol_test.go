package walletconnect

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURIRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0xab}, 32)
	uri := BuildURI("topic-1", "https://bridge.example", key)
	assert.Contains(t, uri, "wc:topic-1@1?")

	topic, bridge, got, err := ParseURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "topic-1", topic)
	assert.Equal(t, "https://bridge.example", bridge)
	assert.Equal(t, key, got)
}

func TestParseURIRejects(t *testing.T) {
	for _, uri := range []string{
		"https://example.com",
		"wc:topic@2?bridge=x&key=00",
		"wc:@1?bridge=x&key=00",
		"wc:topic@1?bridge=x",
		"wc:topic@1?bridge=x&key=nothex",
	} {
		_, _, _, err := ParseURI(uri)
		assert.Error(t, err, uri)
	}
}

func TestSealOpen(t *testing.T) {
	key, err := newKey()
	require.NoError(t, err)

	payload, err := seal(key, []byte(`{"id":1}`))
	require.NoError(t, err)
	assert.NotContains(t, payload, `"id"`)

	plain, err := open(key, payload)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(plain))

	other, err := newKey()
	require.NoError(t, err)
	_, err = open(other, payload)
	assert.ErrorContains(t, err, "decrypting envelope")

	_, err = open(key, "not json")
	assert.Error(t, err)
}
