package inapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

// authenticator runs one login flow against w.
type authenticator func(ctx context.Context, w *Wallet) error

var authenticators = map[wallet.AuthProvider]authenticator{
	wallet.AuthDefault: loginOTP,
	wallet.AuthSiwe: func(ctx context.Context, w *Wallet) error {
		return w.LoginWithSiwe(ctx, w.ChainID())
	},
	wallet.AuthJWT: func(ctx context.Context, w *Wallet) error {
		return w.LoginWithJWT(ctx, w.opts.JWTOrPayload)
	},
	wallet.AuthEndpoint: func(ctx context.Context, w *Wallet) error {
		return w.LoginWithAuthEndpoint(ctx, w.opts.JWTOrPayload)
	},
	wallet.AuthGuest: func(ctx context.Context, w *Wallet) error {
		return w.LoginWithGuest(ctx)
	},
}

func authenticatorFor(p wallet.AuthProvider) (authenticator, bool) {
	if a, ok := authenticators[p]; ok {
		return a, true
	}
	if p.IsOAuth() {
		return func(ctx context.Context, w *Wallet) error { return w.LoginWithOAuth(ctx) }, true
	}
	return nil, false
}

// Login runs the flow selected by the wallet's auth provider. It makes a
// single attempt; errors wrap wallet.ErrAuthentication unless the options
// themselves are unusable.
func (w *Wallet) Login(ctx context.Context) error {
	auth, ok := authenticatorFor(w.opts.Auth())
	if !ok {
		return fmt.Errorf("%w: unknown auth provider %q", wallet.ErrConfiguration, w.opts.Auth())
	}
	return authError(auth(ctx, w))
}

// loginForLink logs in a wallet that is about to be linked, taking
// credentials from opts when present.
func (w *Wallet) loginForLink(ctx context.Context, opts wallet.LinkOptions) error {
	var err error
	switch auth := w.opts.Auth(); auth {
	case wallet.AuthDefault:
		if opts.OTP == "" {
			return fmt.Errorf("%w: one-time password is required to link %s", wallet.ErrConfiguration, w.otpDestination())
		}
		_, err = w.VerifyOTP(ctx, opts.OTP)
	case wallet.AuthSiwe:
		chainID := opts.ChainID
		if chainID == 0 {
			chainID = w.ChainID()
		}
		err = w.LoginWithSiwe(ctx, chainID)
	case wallet.AuthJWT:
		err = w.LoginWithJWT(ctx, firstNonEmpty(opts.JWTOrPayload, w.opts.JWTOrPayload))
	case wallet.AuthEndpoint:
		err = w.LoginWithAuthEndpoint(ctx, firstNonEmpty(opts.JWTOrPayload, w.opts.JWTOrPayload))
	default:
		return w.Login(ctx)
	}
	return authError(err)
}

// SendOTP sends a one-time password to the configured email or phone.
func (w *Wallet) SendOTP(ctx context.Context) error {
	switch {
	case w.opts.Email != "":
		return w.client.SendEmailOTP(ctx, w.opts.Email)
	case w.opts.PhoneNumber != "":
		return w.client.SendPhoneOTP(ctx, w.opts.PhoneNumber)
	default:
		return fmt.Errorf("%w: email or phone number is required", wallet.ErrConfiguration)
	}
}

// VerifyOTP submits code. On rejection retry reports whether the
// backend accepts another attempt for the same OTP.
func (w *Wallet) VerifyOTP(ctx context.Context, code string) (retry bool, err error) {
	res, err := w.client.VerifyOTP(ctx, w.opts.Email, w.opts.PhoneNumber, code)
	if err != nil {
		return canRetry(err), err
	}
	return false, w.complete(res)
}

// LoginWithSiwe signs a sign-in challenge with the configured signer.
func (w *Wallet) LoginWithSiwe(ctx context.Context, chainID int64) error {
	signer := w.opts.SiweSigner
	if signer == nil {
		return fmt.Errorf("%w: siwe login requires a signer wallet", wallet.ErrConfiguration)
	}
	addr, err := signer.Address(ctx)
	if err != nil {
		return fmt.Errorf("resolving signer address: %w", err)
	}
	payload, err := w.client.SiwePayload(ctx, addr.Hex(), chainID)
	if err != nil {
		return fmt.Errorf("fetching siwe payload: %w", err)
	}
	sig, err := signer.PersonalSign(ctx, []byte(payload.Message()))
	if err != nil {
		return fmt.Errorf("signing siwe payload: %w", err)
	}
	res, err := w.client.LoginSiwe(ctx, payload, hexutil.Encode(sig))
	if err != nil {
		return err
	}
	return w.complete(res)
}

// LoginWithJWT exchanges a developer-issued JWT.
func (w *Wallet) LoginWithJWT(ctx context.Context, jwt string) error {
	if jwt == "" {
		return fmt.Errorf("%w: jwt is required", wallet.ErrConfiguration)
	}
	res, err := w.client.LoginJWT(ctx, jwt)
	if err != nil {
		return err
	}
	return w.complete(res)
}

// LoginWithAuthEndpoint hands payload to the developer's auth endpoint.
func (w *Wallet) LoginWithAuthEndpoint(ctx context.Context, payload string) error {
	if payload == "" {
		return fmt.Errorf("%w: payload is required", wallet.ErrConfiguration)
	}
	res, err := w.client.LoginAuthEndpoint(ctx, payload)
	if err != nil {
		return err
	}
	return w.complete(res)
}

// LoginWithGuest logs in anonymously. The guest id is kept in the storage
// dir so the same guest account comes back next time.
func (w *Wallet) LoginWithGuest(ctx context.Context) error {
	id, err := w.store.GuestID(newGuestID)
	if err != nil {
		return fmt.Errorf("loading guest id: %w", err)
	}
	res, err := w.client.LoginGuest(ctx, id)
	if err != nil {
		return err
	}
	return w.complete(res)
}

// LoginWithOAuth runs a browser login with the configured OAuth provider.
func (w *Wallet) LoginWithOAuth(ctx context.Context) error {
	if w.browser == nil {
		return fmt.Errorf("%w: browser login is not available", wallet.ErrConfiguration)
	}
	provider := w.opts.Auth()
	res, err := w.browser.Login(ctx, func(redirectURL string) string {
		return w.client.OAuthURL(provider, redirectURL)
	})
	if err != nil {
		return err
	}

	switch res.Status {
	case BrowserSuccess:
		parsed, err := parseAuthResult(res.AuthResult)
		if err != nil {
			return err
		}
		return w.complete(parsed)
	case BrowserTimeout:
		return fmt.Errorf("%s login: %w", provider, wallet.ErrTimeout)
	default:
		return fmt.Errorf("%s login failed: %s", provider, res.Error)
	}
}

// loginOTP sends a code and keeps prompting while the backend allows
// retries for it.
func loginOTP(ctx context.Context, w *Wallet) error {
	if w.prompter == nil {
		return fmt.Errorf("%w: no prompt available for one-time password", wallet.ErrConfiguration)
	}
	if err := w.SendOTP(ctx); err != nil {
		return fmt.Errorf("sending one-time password: %w", err)
	}
	for {
		code, err := w.prompter.PromptOTP(ctx, w.otpDestination())
		if err != nil {
			return err
		}
		retry, err := w.VerifyOTP(ctx, code)
		if err == nil {
			return nil
		}
		if !retry {
			return fmt.Errorf("verifying one-time password: %w", err)
		}
		w.logger.Info("one-time password rejected, retrying", "err", err)
	}
}

func (w *Wallet) otpDestination() string {
	return firstNonEmpty(w.opts.Email, w.opts.PhoneNumber)
}

// authError tags a login failure as an authentication error. Configuration
// errors pass through untouched.
func authError(err error) error {
	if err == nil || errors.Is(err, wallet.ErrConfiguration) || errors.Is(err, wallet.ErrAuthentication) {
		return err
	}
	return fmt.Errorf("%w: %w", wallet.ErrAuthentication, err)
}
