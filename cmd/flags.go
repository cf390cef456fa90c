package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3link/internal/connect"
	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
	"github.com/Mohsinsiddi/w3link/internal/walletconnect"
)

// connectFlags are shared by every command that needs a connected wallet.
type connectFlags struct {
	provider     string
	chain        string
	key          string
	email        string
	phone        string
	auth         string
	jwt          string
	ecosystem    string
	partner      string
	smart        bool
	sponsor      bool
	factory      string
	account      string
	tokenPayment string
}

func (f *connectFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.provider, "provider", "p", "", "wallet provider: privateKey, inApp, ecosystem, walletConnect, metaMask")
	fl.StringVarP(&f.chain, "chain", "c", "", "chain name or id (default: config)")
	fl.StringVar(&f.key, "key", "", "stored key name for privateKey wallets")
	fl.StringVar(&f.email, "email", "", "email for one-time password login")
	fl.StringVar(&f.phone, "phone", "", "phone number for one-time password login")
	fl.StringVar(&f.auth, "auth", "", "auth provider: default, guest, jwt, auth_endpoint, siwe, google, ...")
	fl.StringVar(&f.jwt, "jwt", "", "JWT or auth endpoint payload")
	fl.StringVar(&f.ecosystem, "ecosystem", "", "ecosystem id, e.g. ecosystem.my-app")
	fl.StringVar(&f.partner, "partner", "", "ecosystem partner id")
	fl.BoolVar(&f.smart, "smart", false, "upgrade to a smart account")
	fl.BoolVar(&f.sponsor, "sponsor", false, "sponsor smart account gas")
	fl.StringVar(&f.factory, "factory", "", "smart account factory address")
	fl.StringVar(&f.account, "account", "", "use this smart account address instead of the factory's")
	fl.StringVar(&f.tokenPayment, "pay-with", "", "pay smart account gas in BASE_USDC, CELO_CUSD or LISK_LSK")
}

// options turns the flags into a connection request, asking for the
// provider when none was given.
func (f *connectFlags) options() (*wallet.Options, error) {
	chainID, err := resolveChainID(f.chain)
	if err != nil {
		return nil, err
	}

	name := f.provider
	if name == "" {
		name, err = pickProvider()
		if err != nil {
			return nil, err
		}
	}
	provider, err := wallet.ParseProvider(name)
	if err != nil {
		return nil, err
	}

	opts := &wallet.Options{Provider: provider, ChainID: chainID, KeyName: f.key}
	inApp := wallet.InAppOptions{
		Email:        f.email,
		PhoneNumber:  f.phone,
		AuthProvider: wallet.AuthProvider(strings.ToLower(f.auth)),
		JWTOrPayload: f.jwt,
	}
	switch provider {
	case wallet.ProviderInApp:
		opts.InApp = &inApp
	case wallet.ProviderEcosystem:
		opts.Ecosystem = &wallet.EcosystemOptions{
			EcosystemID:        f.ecosystem,
			EcosystemPartnerID: f.partner,
			InAppOptions:       inApp,
		}
	}

	if f.smart {
		token, err := parseTokenPaymaster(f.tokenPayment)
		if err != nil {
			return nil, err
		}
		opts.Smart = &wallet.SmartOptions{
			SponsorGas:             f.sponsor,
			FactoryAddress:         f.factory,
			AccountAddressOverride: f.account,
			TokenPaymaster:         token,
		}
	}
	return opts, nil
}

func parseTokenPaymaster(s string) (wallet.TokenPaymaster, error) {
	if s == "" {
		return wallet.TokenPaymasterNone, nil
	}
	for _, t := range []wallet.TokenPaymaster{
		wallet.TokenPaymasterBaseUSDC,
		wallet.TokenPaymasterCeloCUSD,
		wallet.TokenPaymasterLiskLSK,
	} {
		if strings.EqualFold(t.String(), s) {
			return t, nil
		}
	}
	return wallet.TokenPaymasterNone, fmt.Errorf("%w: unknown gas token %q", wallet.ErrConfiguration, s)
}

var providerItems = []ui.PickerItem{
	{Label: "Private key", SubLabel: "a key stored on this machine", Value: string(wallet.ProviderPrivateKey)},
	{Label: "In-app wallet", SubLabel: "email, phone, social or guest login", Value: string(wallet.ProviderInApp)},
	{Label: "Ecosystem wallet", SubLabel: "an in-app wallet shared across partner apps", Value: string(wallet.ProviderEcosystem)},
	{Label: "WalletConnect", SubLabel: "pair a mobile wallet over the bridge", Value: string(wallet.ProviderWalletConnect)},
	{Label: "MetaMask", SubLabel: "a local EIP-1193 provider endpoint", Value: string(wallet.ProviderMetaMask)},
}

// pickProvider is swapped out in tests.
var pickProvider = func() (string, error) {
	return ui.PickItem("Choose a wallet", providerItems)
}

func resolveChainID(s string) (int64, error) {
	if s == "" {
		return cfg.DefaultChainID, nil
	}
	c, err := lookupChain(s)
	if err != nil {
		return 0, err
	}
	return c.ChainID, nil
}

var prompter *ui.Prompter

// terminal returns the process-wide prompter, so buffered stdin is shared
// between the login flow and later confirmations.
func terminal(cmd *cobra.Command) *ui.Prompter {
	if prompter == nil {
		prompter = ui.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	}
	return prompter
}

// newManager builds a connection manager wired to the terminal: OTP codes
// are read from stdin and pairing URIs are printed to stdout.
func newManager(cmd *cobra.Command) (*connect.Manager, error) {
	out := cmd.OutOrStdout()

	var spin *ui.Spinner
	connector := walletconnect.NewConnector(
		walletconnect.SettingsFrom(cfg.WalletConnect),
		walletconnect.WithStore(sessionStore()),
		walletconnect.WithHandlers(walletconnect.Handlers{
			OnNewSessionStarted: func(s walletconnect.Session) {
				if spin != nil {
					spin.Stop()
				}
				fmt.Fprintln(out, ui.PairingBlock(s.URI()))
				spin = ui.NewSpinner(out, "waiting for the wallet")
				spin.Start()
			},
			OnConnected: func(*walletconnect.SessionData) {
				if spin != nil {
					spin.Stop()
				}
			},
			OnConnectionFailed: func(error) {
				if spin != nil {
					spin.Stop()
				}
			},
		}),
		walletconnect.WithMetrics(metered),
		walletconnect.WithConnectorLogger(logger),
	)

	return connect.New(cfg,
		connect.WithKeyBook(newKeyBook()),
		connect.WithOTPPrompter(terminal(cmd)),
		connect.WithConnector(connector),
		connect.WithMetrics(metered),
		connect.WithLogger(logger),
	)
}

// connectWallet runs the whole connection flow for a command.
func connectWallet(cmd *cobra.Command, f *connectFlags) (*connect.Manager, wallet.Wallet, error) {
	opts, err := f.options()
	if err != nil {
		return nil, nil, err
	}
	m, err := newManager(cmd)
	if err != nil {
		return nil, nil, err
	}
	w, err := m.Connect(cmd.Context(), opts)
	if err != nil {
		m.Close()
		return nil, nil, explain(err)
	}
	return m, w, nil
}

// explain adds a next step to the errors users can act on.
func explain(err error) error {
	switch {
	case errors.Is(err, wallet.ErrAuthentication):
		return fmt.Errorf("%w\n  %s", err, ui.Hint("check the code or credentials and try again"))
	case errors.Is(err, wallet.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w\n  %s", err, ui.Hint("the wallet did not answer in time"))
	case errors.Is(err, wallet.ErrNotFound):
		return fmt.Errorf("%w\n  %s", err, ui.Hint("list stored keys with: w3link wallet list"))
	}
	return err
}

func printWallet(ctx context.Context, out io.Writer, w wallet.Wallet) error {
	addr, err := w.Address(ctx)
	if err != nil {
		return err
	}
	chainLabel := fmt.Sprint(w.ChainID())
	if c, err := registry().GetByChainID(w.ChainID()); err == nil {
		chainLabel = c.DisplayName
	}
	fmt.Fprintln(out, ui.KeyValueBlock("Connected", [][2]string{
		{"Address", ui.Addr(addr.Hex())},
		{"Account", ui.AccountBadge(w.AccountType().String())},
		{"Chain", ui.ChainName(chainLabel)},
	}))
	return nil
}
