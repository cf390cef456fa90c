package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/Mohsinsiddi/w3link/internal/walletconnect"
)

// sessionStore is swapped out in tests.
var sessionStore = func() walletconnect.SessionStore { return walletconnect.DefaultFileStore() }

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect the saved WalletConnect session",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved bridge session",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		saved, err := sessionStore().Load()
		if err != nil {
			return err
		}
		if saved == nil {
			fmt.Fprintln(out, ui.Info("No saved WalletConnect session."))
			fmt.Fprintln(out, ui.Hint("pair one with: w3link connect --provider walletConnect"))
			return nil
		}

		peer := "pending approval"
		if saved.PeerMeta != nil && saved.PeerMeta.Name != "" {
			peer = saved.PeerMeta.Name
		}
		chainLabel := fmt.Sprint(saved.ChainID)
		if c, err := registry().GetByChainID(saved.ChainID); err == nil {
			chainLabel = c.DisplayName
		}
		fmt.Fprintln(out, ui.KeyValueBlock("WalletConnect session", [][2]string{
			{"Wallet", peer},
			{"Accounts", ui.Addr(strings.Join(saved.Accounts, ", "))},
			{"Chain", ui.ChainName(chainLabel)},
			{"Bridge", saved.BridgeURL},
			{"Topic", ui.Meta(saved.Topic)},
		}))
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the saved bridge session",
	Long: `Forget the saved bridge session locally. The wallet app keeps its side
until it notices the session is gone; disconnect there too if needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := sessionStore().Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("WalletConnect session cleared"))
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionStatusCmd, sessionClearCmd)
}
