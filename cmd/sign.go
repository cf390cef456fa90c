package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

var (
	signOpts  connectFlags
	signTyped string

	verifySig     string
	verifyAddress string
)

var signCmd = &cobra.Command{
	Use:   "sign [message]",
	Short: "Sign a message (EIP-191) or typed data (EIP-712)",
	Long: `Sign a plaintext message with personal_sign, or an EIP-712 typed data
document with --typed.

Smart accounts sign through their personal wallet and are deployed first
when needed, so the signature verifies with EIP-1271.

Examples:
  w3link sign "hello world" --provider privateKey --key dev
  w3link sign --typed permit.json --provider walletConnect`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (len(args) == 0) == (signTyped == "") {
			return fmt.Errorf("give either a message or --typed <file>")
		}

		var typed apitypes.TypedData
		if signTyped != "" {
			data, err := os.ReadFile(signTyped)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &typed); err != nil {
				return fmt.Errorf("parsing typed data: %w", err)
			}
		}

		m, w, err := connectWallet(cmd, &signOpts)
		if err != nil {
			return err
		}
		defer m.Close()

		ctx := cmd.Context()
		addr, err := w.Address(ctx)
		if err != nil {
			return err
		}

		var sig []byte
		pairs := [][2]string{{"Signer", ui.Addr(addr.Hex())}}
		if signTyped != "" {
			sig, err = w.SignTypedData(ctx, typed)
			pairs = append(pairs, [2]string{"Primary type", typed.PrimaryType})
		} else {
			sig, err = w.PersonalSign(ctx, []byte(args[0]))
			pairs = append(pairs, [2]string{"Message", args[0]})
		}
		if err != nil {
			return explain(fmt.Errorf("signing failed: %w", err))
		}

		sigHex := hexutil.Encode(sig)
		pairs = append(pairs, [2]string{"Signature", sigHex})
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.KeyValueBlock("Signed", pairs))
		if signTyped == "" && w.AccountType() != wallet.AccountSmart {
			fmt.Fprintln(out, ui.Hint(fmt.Sprintf("verify: w3link verify %q --sig %s --address %s", args[0], sigHex, addr.Hex())))
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <message>",
	Short: "Recover the signer of an EIP-191 signed message",
	Long: `Recover who signed a message with personal_sign and, with --address,
compare it to the expected signer.

Smart account signatures are contract signatures and cannot be recovered
this way.

Examples:
  w3link verify "hello world" --sig 0x... --address 0x...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifySig == "" {
			return fmt.Errorf("--sig is required")
		}
		sig, err := hexutil.Decode(verifySig)
		if err != nil {
			return fmt.Errorf("invalid signature hex: %w", err)
		}

		recovered, err := wallet.RecoverPersonalSign([]byte(args[0]), sig)
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}

		pairs := [][2]string{
			{"Message", args[0]},
			{"Recovered", ui.Addr(recovered.Hex())},
		}
		var mismatch bool
		if verifyAddress != "" {
			if strings.EqualFold(recovered.Hex(), verifyAddress) {
				pairs = append(pairs, [2]string{"Match", ui.Success("signer matches")})
			} else {
				mismatch = true
				pairs = append(pairs,
					[2]string{"Expected", ui.Addr(verifyAddress)},
					[2]string{"Match", ui.Err("signer does not match")},
				)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValueBlock("Signature", pairs))
		if mismatch {
			return fmt.Errorf("signature was made by %s", recovered.Hex())
		}
		return nil
	},
}

func init() {
	signOpts.bind(signCmd)
	signCmd.Flags().StringVar(&signTyped, "typed", "", "EIP-712 typed data JSON file")

	verifyCmd.Flags().StringVar(&verifySig, "sig", "", "hex signature (required)")
	verifyCmd.Flags().StringVar(&verifyAddress, "address", "", "expected signer address")
}
