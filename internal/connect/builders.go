package connect

import (
	"context"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/extension"
	"github.com/Mohsinsiddi/w3link/internal/inapp"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
	"github.com/Mohsinsiddi/w3link/internal/walletconnect"
)

// builder constructs the unauthenticated wallet for one provider.
type builder func(ctx context.Context, m *Manager, opts *wallet.Options) (wallet.Wallet, error)

func defaultBuilders() map[wallet.Provider]builder {
	return map[wallet.Provider]builder{
		wallet.ProviderPrivateKey:    buildPrivateKey,
		wallet.ProviderInApp:         buildInApp,
		wallet.ProviderEcosystem:     buildEcosystem,
		wallet.ProviderWalletConnect: buildWalletConnect,
		wallet.ProviderMetaMask:      buildMetaMask,
	}
}

// buildPrivateKey opens the named stored key, or generates a throwaway one.
func buildPrivateKey(_ context.Context, m *Manager, opts *wallet.Options) (wallet.Wallet, error) {
	if opts.KeyName != "" && m.keys != nil {
		return m.keys.Open(opts.KeyName, opts.ChainID, m.sessions)
	}
	return wallet.GenerateWallet(opts.ChainID, m.sessions)
}

func buildInApp(_ context.Context, m *Manager, opts *wallet.Options) (wallet.Wallet, error) {
	return inapp.New(*opts.InAppOptions(), opts.ChainID, m.inappDeps())
}

func buildEcosystem(_ context.Context, m *Manager, opts *wallet.Options) (wallet.Wallet, error) {
	eco := opts.Ecosystem
	deps := m.inappDeps(inapp.WithEcosystem(eco.EcosystemID, eco.EcosystemPartnerID))
	return inapp.NewEcosystem(*eco, opts.ChainID, deps)
}

func buildWalletConnect(ctx context.Context, m *Manager, opts *wallet.Options) (wallet.Wallet, error) {
	return walletconnect.Connect(ctx, m.Connector(), opts.ChainID, m.chains)
}

func buildMetaMask(ctx context.Context, m *Manager, opts *wallet.Options) (wallet.Wallet, error) {
	providerURL := m.cfg.MetaMask.ProviderURL
	if providerURL == "" {
		providerURL = config.DefaultMetaMaskURL
	}
	return extension.Connect(ctx, providerURL, opts.ChainID,
		extension.WithHTTPClient(m.httpClient),
		extension.WithRegistry(m.chains),
		extension.WithLogger(m.logger),
	)
}

func (m *Manager) inappDeps(extra ...inapp.ClientOption) inapp.Deps {
	clientOpts := []inapp.ClientOption{
		inapp.WithHTTPClient(m.httpClient),
		inapp.WithBundleID(m.cfg.BundleID),
		inapp.WithLogger(m.logger),
	}
	if m.backendURL != "" {
		clientOpts = append(clientOpts, inapp.WithBaseURL(m.backendURL))
	}
	clientOpts = append(clientOpts, extra...)
	return inapp.Deps{
		Client:   inapp.NewClient(m.cfg.ClientID, clientOpts...),
		Sessions: m.sessions,
		Prompter: m.prompter,
		Browser:  m.browser,
		Logger:   m.logger,
	}
}
