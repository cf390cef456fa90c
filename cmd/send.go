package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/connect"
	"github.com/Mohsinsiddi/w3link/internal/ens"
	"github.com/Mohsinsiddi/w3link/internal/ui"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

var (
	sendOpts  connectFlags
	sendTo    string
	sendValue string
	sendData  string
	sendYes   bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a transaction from a connected wallet",
	Long: `Send native currency or call data from a connected wallet.

Smart accounts send a user operation through the bundler, sponsored when
--sponsor is set.

Examples:
  w3link send --to 0x... --value 0.01 --provider privateKey --key dev --chain sepolia
  w3link send --to 0x... --data 0xa9059cbb... --provider inApp --smart --sponsor`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(sendTo) && !ens.IsName(sendTo) {
			return fmt.Errorf("--to must be an address or ENS name, got %q", sendTo)
		}
		req, err := sendRequest()
		if err != nil {
			return err
		}

		m, w, err := connectWallet(cmd, &sendOpts)
		if err != nil {
			return err
		}
		defer m.Close()

		ctx := cmd.Context()
		to, err := resolveRecipient(ctx, m, sendTo)
		if err != nil {
			return err
		}
		req.To = &to

		from, err := w.Address(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.KeyValueBlock("Transaction", [][2]string{
			{"From", ui.Addr(from.Hex())},
			{"To", recipientLabel(to)},
			{"Value", sendValueLabel(w.ChainID())},
			{"Data", fmt.Sprintf("%d bytes", len(req.Data))},
		}))
		if !sendYes && !terminal(cmd).Confirm("Send it?") {
			fmt.Fprintln(out, ui.Meta("Cancelled."))
			return nil
		}

		spin := ui.NewSpinner(out, "sending")
		spin.Start()
		hash, err := w.SendTransaction(ctx, req)
		spin.Stop()
		if err != nil {
			return explain(fmt.Errorf("send failed: %w", err))
		}

		fmt.Fprintln(out, ui.Success("sent "+hash.Hex()))
		if c, err := registry().GetByChainID(w.ChainID()); err == nil && c.Explorer != "" {
			fmt.Fprintln(out, ui.Hint(c.Explorer+"/tx/"+hash.Hex()))
		}
		return nil
	},
}

// sendRequest builds the value and data of the transaction; the
// recipient is resolved after connecting.
func sendRequest() (*wallet.TxRequest, error) {
	req := &wallet.TxRequest{}

	if sendValue != "" {
		v, err := chain.ParseEther(sendValue)
		if err != nil {
			return nil, err
		}
		req.Value = v
	}
	if sendData != "" {
		if !strings.HasPrefix(sendData, "0x") {
			sendData = "0x" + sendData
		}
		data, err := hexutil.Decode(sendData)
		if err != nil {
			return nil, fmt.Errorf("invalid --data: %w", err)
		}
		req.Data = data
	}
	return req, nil
}

// ensChainID is where ENS names are resolved, whatever chain the wallet
// is on.
const ensChainID = 1

func resolveRecipient(ctx context.Context, m *connect.Manager, s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	sess, err := m.Session(ctx, ensChainID)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := ens.Resolve(ctx, sess.Client, s)
	if err != nil {
		return common.Address{}, err
	}
	logger.Debug("resolved ENS name", "name", s, "address", addr.Hex())
	return addr, nil
}

func recipientLabel(to common.Address) string {
	if ens.IsName(sendTo) {
		return ui.Addr(to.Hex()) + " " + ui.Meta("("+sendTo+")")
	}
	return ui.Addr(to.Hex())
}

func sendValueLabel(chainID int64) string {
	symbol := "ETH"
	if c, err := registry().GetByChainID(chainID); err == nil {
		symbol = c.NativeCurrency.Symbol
	}
	if sendValue == "" {
		return "0 " + symbol
	}
	return sendValue + " " + symbol
}

func init() {
	sendOpts.bind(sendCmd)
	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient address or ENS name (required)")
	sendCmd.Flags().StringVar(&sendValue, "value", "", "amount of native currency, e.g. 0.01")
	sendCmd.Flags().StringVar(&sendData, "data", "", "hex call data")
	sendCmd.Flags().BoolVarP(&sendYes, "yes", "y", false, "skip the confirmation prompt")
	_ = sendCmd.MarkFlagRequired("to")
}
