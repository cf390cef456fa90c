package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

var walletImportKey string

// keyBackend holds key material; the OS keychain unless swapped in tests.
var keyBackend = func() wallet.KeystoreBackend { return wallet.DefaultKeystore(cfg.Dir()) }

// newKeyBook indexes keys in the config dir and keeps the secrets in
// keyBackend.
func newKeyBook() *wallet.KeyBook {
	return wallet.NewKeyBook(keyBackend(), wallet.WithStore(wallet.NewConfigStore(cfg)))
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage stored private keys",
}

var walletGenerateCmd = &cobra.Command{
	Use:   "generate <name>",
	Short: "Generate and store a new private key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := newKeyBook().Generate(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("key %q created: %s", entry.Name, ui.Addr(entry.Address))))
		fmt.Fprintln(out, ui.Hint("connect with: w3link connect --provider privateKey --key "+entry.Name))
		return nil
	},
}

var walletImportCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Store an existing private key",
	Long: `Store an existing private key under a name.

Without --private-key the key is read from the terminal without echo.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hexKey := walletImportKey
		if hexKey == "" {
			var err error
			hexKey, err = readSecret(cmd, "Private key")
			if err != nil {
				return err
			}
		}
		entry, err := newKeyBook().Import(args[0], hexKey)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("key %q imported: %s", entry.Name, ui.Addr(entry.Address))))
		return nil
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := newKeyBook().List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(keys) == 0 {
			fmt.Fprintln(out, ui.Info("No keys stored yet."))
			fmt.Fprintln(out, ui.Hint("create one with: w3link wallet generate dev"))
			return nil
		}

		t := ui.NewTable(
			ui.Column{Title: "Name"},
			ui.Column{Title: "Address"},
			ui.Column{Title: "Created"},
		)
		for _, k := range keys {
			t.AddRow(k.Name, k.Address, k.CreatedAt)
		}
		fmt.Fprint(out, t.Render())
		fmt.Fprintln(out, ui.Meta(fmt.Sprintf("%d key(s)", len(keys))))
		return nil
	},
}

var walletRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a stored key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !terminal(cmd).ConfirmDanger(fmt.Sprintf("Delete key %q? This cannot be undone.", args[0])) {
			fmt.Fprintln(out, ui.Meta("Cancelled."))
			return nil
		}
		if err := newKeyBook().Remove(args[0]); err != nil {
			return explain(err)
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("key %q removed", args[0])))
		return nil
	},
}

var walletExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Print a stored private key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !terminal(cmd).ConfirmDanger("Print the private key to the terminal?") {
			return nil
		}
		w, err := newKeyBook().Open(args[0], cfg.DefaultChainID, nil)
		if err != nil {
			return explain(err)
		}
		hexKey, err := w.Export()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hexKey)
		return nil
	},
}

// readSecret reads a line without echo when stdin is a terminal.
func readSecret(cmd *cobra.Command, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return terminal(cmd).Input(cmd.Context(), label)
	}
	fmt.Fprint(cmd.OutOrStdout(), ui.Val(label)+": ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func init() {
	walletImportCmd.Flags().StringVar(&walletImportKey, "private-key", "", "hex private key (prompted when omitted)")
	walletCmd.AddCommand(walletGenerateCmd, walletImportCmd, walletListCmd, walletRemoveCmd, walletExportCmd)
}
