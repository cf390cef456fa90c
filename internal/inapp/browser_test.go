package inapp

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redirectOf pulls the redirect URL out of a login page URL.
func redirectOf(t *testing.T, loginURL string) string {
	t.Helper()
	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	return u.Query().Get("redirectUrl")
}

func loginPage(redirect string) string {
	return "https://login.example/start?" + url.Values{"redirectUrl": {redirect}}.Encode()
}

func TestLoopbackBrowserGetRedirect(t *testing.T) {
	var redirect string
	b := NewLoopbackBrowser(WithLoginTimeout(5*time.Second), WithOpener(func(target string) error {
		redirect = redirectOf(t, target)
		go func() {
			resp, err := http.Get(redirect + "?" + url.Values{"authResult": {`{"authToken":"t"}`}}.Encode())
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}))

	res, err := b.Login(context.Background(), loginPage)
	require.NoError(t, err)
	assert.Equal(t, BrowserSuccess, res.Status)
	assert.Equal(t, `{"authToken":"t"}`, res.AuthResult)

	// The redirect server is gone once Login returns.
	_, err = http.Get(redirect)
	assert.Error(t, err)
}

func TestLoopbackBrowserPostFailure(t *testing.T) {
	b := NewLoopbackBrowser(WithLoginTimeout(5*time.Second), WithOpener(func(target string) error {
		redirect := redirectOf(t, target)
		go func() {
			body := bytes.NewBufferString(`{"eventType":"userLoginFailed","error":"denied"}`)
			resp, err := http.Post(redirect, "application/json", body)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}))

	res, err := b.Login(context.Background(), loginPage)
	require.NoError(t, err)
	assert.Equal(t, BrowserFailed, res.Status)
	assert.Equal(t, "denied", res.Error)
}

func TestLoopbackBrowserTimeout(t *testing.T) {
	b := NewLoopbackBrowser(WithLoginTimeout(50*time.Millisecond), WithOpener(func(string) error { return nil }))

	res, err := b.Login(context.Background(), loginPage)
	require.NoError(t, err)
	assert.Equal(t, BrowserTimeout, res.Status)
	assert.Equal(t, "timeout", res.Status.String())
}

func TestLoopbackBrowserContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewLoopbackBrowser(WithLoginTimeout(time.Minute), WithOpener(func(string) error {
		cancel()
		return nil
	}))

	_, err := b.Login(ctx, loginPage)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoopbackBrowserOpenError(t *testing.T) {
	b := NewLoopbackBrowser(WithOpener(func(string) error { return assert.AnError }))
	_, err := b.Login(context.Background(), loginPage)
	assert.ErrorIs(t, err, assert.AnError)
}
