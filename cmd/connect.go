package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3link/internal/smart"
	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

var (
	connectOpts connectFlags
	connectSave string
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a wallet and show its address",
	Long: `Connect a wallet, log in if it has no session yet, and print its address.

Sessions persist: in-app logins and paired bridge wallets are resumed by
later commands without asking again.

Examples:
  w3link connect --provider privateKey --key dev
  w3link connect --provider inApp --email me@example.com --chain base
  w3link connect --provider inApp --auth google
  w3link connect --provider walletConnect --chain 137
  w3link connect --provider privateKey --key dev --smart --sponsor`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, w, err := connectWallet(cmd, &connectOpts)
		if err != nil {
			return err
		}
		defer m.Close()

		out := cmd.OutOrStdout()
		if err := printWallet(cmd.Context(), out, w); err != nil {
			return err
		}

		personal := w
		if acct, ok := w.(*smart.Account); ok {
			personal = acct.Personal()
		}
		pk, ok := personal.(*wallet.PrivateKeyWallet)
		if !ok || connectOpts.key != "" {
			return nil
		}
		if connectSave == "" {
			fmt.Fprintln(out, ui.Warn("this key is ephemeral"))
			fmt.Fprintln(out, ui.Hint("keep it with --save <name>, or create one with: w3link wallet generate <name>"))
			return nil
		}
		hexKey, err := pk.Export()
		if err != nil {
			return err
		}
		entry, err := newKeyBook().Import(connectSave, hexKey)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("key saved as %q", entry.Name)))
		return nil
	},
}

func init() {
	connectOpts.bind(connectCmd)
	connectCmd.Flags().StringVar(&connectSave, "save", "", "store a generated private key under this name")
}
