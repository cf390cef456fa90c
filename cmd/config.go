package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3link/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.StyleTitle.Render("Current configuration"))
		fmt.Fprintln(out, string(data))
		fmt.Fprintln(out, ui.Meta("Config directory: "+cfg.Dir()))
		return nil
	},
}

// configSetters maps settable keys to their parsers.
var configSetters = map[string]func(v string) error{
	"client-id": func(v string) error { cfg.ClientID = v; return nil },
	"bundle-id": func(v string) error { cfg.BundleID = v; return nil },
	"default-chain": func(v string) error {
		c, err := lookupChain(v)
		if err != nil {
			return err
		}
		cfg.DefaultChainID = c.ChainID
		return nil
	},
	"rpc-algorithm": func(v string) error {
		if !slices.Contains([]string{"fastest", "round-robin", "failover"}, v) {
			return fmt.Errorf("rpc-algorithm must be fastest, round-robin or failover")
		}
		cfg.RPCAlgorithm = v
		return nil
	},
	"debug-logs":        boolSetter(func(b bool) { cfg.ShowDebugLogs = b }),
	"opt-out-analytics": boolSetter(func(b bool) { cfg.OptOutUsageAnalytics = b }),
	"bridge-url":        func(v string) error { cfg.WalletConnect.BridgeURL = v; return nil },
	"project-id":        func(v string) error { cfg.WalletConnect.ProjectID = v; return nil },
	"auto-resume":       boolSetter(func(b bool) { cfg.WalletConnect.AutoSaveAndResume = b }),
	"retry-on-timeout":  boolSetter(func(b bool) { cfg.WalletConnect.RetryOnTimeout = b }),
	"max-timeout-retries": func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("max-timeout-retries must be a non-negative integer")
		}
		cfg.WalletConnect.MaxTimeoutRetries = n
		return nil
	},
	"bridge-chains": func(v string) error {
		var ids []int64
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			c, err := lookupChain(part)
			if err != nil {
				return err
			}
			ids = append(ids, c.ChainID)
		}
		cfg.WalletConnect.SupportedChainIDs = ids
		return nil
	},
	"metamask-url":  func(v string) error { cfg.MetaMask.ProviderURL = v; return nil },
	"factory":       func(v string) error { cfg.Smart.FactoryAddress = v; return nil },
	"entry-point":   func(v string) error { cfg.Smart.EntryPoint = v; return nil },
	"bundler-url":   func(v string) error { cfg.Smart.BundlerURL = v; return nil },
	"paymaster-url": func(v string) error { cfg.Smart.PaymasterURL = v; return nil },
}

func boolSetter(set func(bool)) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", v)
		}
		set(b)
		return nil
	}
}

func configKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Keys: " + strings.Join(configKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return configKeys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		set, ok := configSetters[args[0]]
		if !ok {
			return fmt.Errorf("unknown key %q\n  %s", args[0], ui.Hint("keys: "+strings.Join(configKeys(), ", ")))
		}
		if err := set(args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("%s set to %q", args[0], args[1])))
		return nil
	},
}

var configAddRPCCmd = &cobra.Command{
	Use:   "add-rpc <chain> <url>",
	Short: "Add a custom RPC for a chain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := lookupChain(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := cfg.AddRPC(c.ChainID, args[1]); err != nil {
			fmt.Fprintln(out, ui.Warn(err.Error()))
			return nil
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("RPC %s added for %s", args[1], c.DisplayName)))
		return nil
	},
}

var configRemoveRPCCmd = &cobra.Command{
	Use:   "remove-rpc <chain> <url>",
	Short: "Remove a custom RPC",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := lookupChain(args[0])
		if err != nil {
			return err
		}
		if err := cfg.RemoveRPC(c.ChainID, args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("RPC %s removed from %s", args[1], c.DisplayName)))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configAddRPCCmd, configRemoveRPCCmd)
}
