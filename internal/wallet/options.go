package wallet

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Provider selects the wallet variant built by Connect.
type Provider string

const (
	ProviderPrivateKey    Provider = "privateKeyWallet"
	ProviderInApp         Provider = "inAppWallet"
	ProviderWalletConnect Provider = "walletConnectWallet"
	ProviderMetaMask      Provider = "metaMaskWallet"
	ProviderEcosystem     Provider = "ecosystemWallet"
)

// Providers lists every known provider in display order.
var Providers = []Provider{
	ProviderPrivateKey,
	ProviderInApp,
	ProviderEcosystem,
	ProviderWalletConnect,
	ProviderMetaMask,
}

// ParseProvider accepts a provider name case-insensitively, with or without
// the "Wallet" suffix ("inapp", "walletConnect", "metamask").
func ParseProvider(s string) (Provider, error) {
	want := strings.TrimSuffix(strings.ToLower(s), "wallet")
	for _, p := range Providers {
		if strings.TrimSuffix(strings.ToLower(string(p)), "wallet") == want {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown provider %q", ErrConfiguration, s)
}

// AuthProvider selects the login flow of a custodial wallet.
type AuthProvider string

const (
	AuthDefault   AuthProvider = "default" // one-time password by email or phone
	AuthSiwe      AuthProvider = "siwe"
	AuthJWT       AuthProvider = "jwt"
	AuthEndpoint  AuthProvider = "auth_endpoint"
	AuthGuest     AuthProvider = "guest"
	AuthGoogle    AuthProvider = "google"
	AuthApple     AuthProvider = "apple"
	AuthFacebook  AuthProvider = "facebook"
	AuthDiscord   AuthProvider = "discord"
	AuthTelegram  AuthProvider = "telegram"
	AuthFarcaster AuthProvider = "farcaster"
	AuthLine      AuthProvider = "line"
	AuthX         AuthProvider = "x"
	AuthCoinbase  AuthProvider = "coinbase"
	AuthGithub    AuthProvider = "github"
	AuthTwitch    AuthProvider = "twitch"
	AuthSteam     AuthProvider = "steam"
)

var oauthProviders = []AuthProvider{
	AuthGoogle, AuthApple, AuthFacebook, AuthDiscord, AuthTelegram, AuthFarcaster,
	AuthLine, AuthX, AuthCoinbase, AuthGithub, AuthTwitch, AuthSteam,
}

// IsOAuth reports whether a logs in through a browser redirect.
func (a AuthProvider) IsOAuth() bool {
	return slices.Contains(oauthProviders, a)
}

// Known reports whether a is a recognised auth provider. The empty value
// means AuthDefault.
func (a AuthProvider) Known() bool {
	switch a {
	case "", AuthDefault, AuthSiwe, AuthJWT, AuthEndpoint, AuthGuest:
		return true
	}
	return a.IsOAuth()
}

// TokenPaymaster selects an ERC-20 gas payment token for smart accounts.
type TokenPaymaster int

const (
	TokenPaymasterNone TokenPaymaster = iota
	TokenPaymasterBaseUSDC
	TokenPaymasterCeloCUSD
	TokenPaymasterLiskLSK
)

func (t TokenPaymaster) String() string {
	switch t {
	case TokenPaymasterBaseUSDC:
		return "BASE_USDC"
	case TokenPaymasterCeloCUSD:
		return "CELO_CUSD"
	case TokenPaymasterLiskLSK:
		return "LISK_LSK"
	default:
		return "NONE"
	}
}

// InAppOptions configures an in-app (custodial) wallet.
type InAppOptions struct {
	Email        string
	PhoneNumber  string
	AuthProvider AuthProvider
	// JWTOrPayload is the token for AuthJWT or the payload for AuthEndpoint.
	JWTOrPayload        string
	LegacyEncryptionKey string
	// StorageDir holds the persisted auth session. Defaults under the
	// user config dir.
	StorageDir string
	// SiweSigner signs the sign-in payload for AuthSiwe.
	SiweSigner Wallet
}

// Auth returns the effective auth provider.
func (o *InAppOptions) Auth() AuthProvider {
	if o.AuthProvider == "" {
		return AuthDefault
	}
	return o.AuthProvider
}

func (o *InAppOptions) validate() error {
	switch auth := o.Auth(); {
	case !auth.Known():
		return fmt.Errorf("%w: unknown auth provider %q", ErrConfiguration, auth)
	case auth == AuthDefault && o.Email == "" && o.PhoneNumber == "":
		return fmt.Errorf("%w: email or phone number is required for one-time password login", ErrConfiguration)
	case (auth == AuthJWT || auth == AuthEndpoint) && o.JWTOrPayload == "":
		return fmt.Errorf("%w: %s login requires a JWT or payload", ErrConfiguration, auth)
	case auth == AuthSiwe && o.SiweSigner == nil:
		return fmt.Errorf("%w: siwe login requires a signer wallet", ErrConfiguration)
	}
	return nil
}

// EcosystemOptions configures an ecosystem (custodial, partner-scoped) wallet.
type EcosystemOptions struct {
	EcosystemID        string
	EcosystemPartnerID string
	InAppOptions
}

// SmartOptions requests an account-abstraction upgrade.
type SmartOptions struct {
	SponsorGas             bool
	FactoryAddress         string
	AccountAddressOverride string
	EntryPoint             string
	BundlerURL             string
	PaymasterURL           string
	TokenPaymaster         TokenPaymaster
}

// Options is a connection request.
type Options struct {
	Provider  Provider
	ChainID   int64
	InApp     *InAppOptions
	Ecosystem *EcosystemOptions
	Smart     *SmartOptions
	// KeyName loads a stored local key instead of generating one.
	KeyName string
}

// InAppOptions returns o.InApp, or empty options when unset.
func (o *Options) InAppOptions() *InAppOptions {
	if o.InApp == nil {
		o.InApp = &InAppOptions{}
	}
	return o.InApp
}

// Validate checks the request without any I/O.
func (o *Options) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: options are required", ErrConfiguration)
	}
	if o.ChainID <= 0 {
		return fmt.Errorf("%w: chain id must be greater than 0, got %d", ErrConfiguration, o.ChainID)
	}

	switch o.Provider {
	case ProviderPrivateKey, ProviderWalletConnect, ProviderMetaMask:
		return nil
	case ProviderInApp:
		in := o.InApp
		if in == nil {
			in = &InAppOptions{}
		}
		return in.validate()
	case ProviderEcosystem:
		if o.Ecosystem == nil {
			return fmt.Errorf("%w: ecosystem options are required for %s", ErrConfiguration, o.Provider)
		}
		if o.Ecosystem.EcosystemID == "" {
			return fmt.Errorf("%w: ecosystem id is required for %s", ErrConfiguration, o.Provider)
		}
		return o.Ecosystem.validate()
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrConfiguration, o.Provider)
	}
}

// DefaultStorageDir returns <user config dir>/w3link/<kind>.
func DefaultStorageDir(kind string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "w3link", kind)
}
