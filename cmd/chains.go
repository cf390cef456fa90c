package cmd

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/ui"
)

var chainsTestnets bool

var registry = sync.OnceValue(chain.NewRegistry)

// lookupChain accepts a slug ("base") or a numeric chain id ("8453").
func lookupChain(s string) (*chain.Chain, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if c, err := registry().GetByChainID(id); err == nil {
			return c, nil
		}
		// Unknown ids are still usable with a custom or thirdweb RPC.
		return &chain.Chain{Name: s, DisplayName: "chain " + s, ChainID: id}, nil
	}
	c, err := registry().GetByName(s)
	if err != nil {
		return nil, fmt.Errorf("unknown chain %q\n  %s", s, ui.Hint("see: w3link chains"))
	}
	return c, nil
}

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "List known chains",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := ui.NewTable(
			ui.Column{Title: "Name"},
			ui.Column{Title: "ID"},
			ui.Column{Title: "Currency"},
			ui.Column{Title: "RPC"},
		)
		for _, c := range registry().All() {
			if c.Testnet && !chainsTestnets {
				continue
			}
			rpc := "public"
			if cfg.ClientID != "" {
				rpc = "thirdweb"
			}
			if custom := cfg.GetRPCs(c.ChainID); len(custom) > 0 {
				rpc = "custom (" + strconv.Itoa(len(custom)) + ")"
			}
			name := c.Name
			if c.ChainID == cfg.DefaultChainID {
				name += " *"
			}
			t.AddRow(name, strconv.FormatInt(c.ChainID, 10), c.NativeCurrency.Symbol, rpc)
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, t.Render())
		fmt.Fprintln(out, ui.Meta("* default chain"))
		return nil
	},
}

func init() {
	chainsCmd.Flags().BoolVar(&chainsTestnets, "testnets", false, "include testnets")
}
