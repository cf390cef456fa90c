package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/metrics"
	"github.com/Mohsinsiddi/w3link/internal/ui"
)

// Version is the current release. Overridable via build ldflags:
//
//	go build -ldflags "-X github.com/Mohsinsiddi/w3link/cmd.Version=1.2.3" .
var Version = config.SDKVersion

var (
	cfgDir      string
	cfg         *config.Config
	verbose     bool
	metricsAddr string

	logger  = slog.New(slog.DiscardHandler)
	metered *metrics.Metrics
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "w3link",
	Short: "Connect wallets and sign with them from the terminal",
	Long: `w3link connects local keys, in-app and ecosystem accounts, bridge wallets
(WalletConnect) and MetaMask, and optionally upgrades any of them to an
ERC-4337 smart account.

Every signing command accepts the same connection flags as "w3link connect".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if verbose || cfg.ShowDebugLogs {
			logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
		if metricsAddr != "" {
			metered = metrics.New()
			serveMetrics(metricsAddr)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), ui.Banner(Version))
		return cmd.Help()
	},
}

// Execute runs the root command. SIGINT cancels the running flow.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, ui.ErrCancelled) {
			fmt.Fprintln(os.Stderr, ui.Err(err.Error()))
		}
		stop()
		os.Exit(1)
	}
}

func serveMetrics(addr string) {
	srv := &http.Server{Addr: addr, Handler: metered.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener stopped", "addr", addr, "err", err)
		}
	}()
	logger.Debug("serving metrics", "addr", addr)
}

func init() {
	// W3LINK_CONFIG_DIR overrides the --config default.
	if envDir := os.Getenv("W3LINK_CONFIG_DIR"); envDir != "" {
		cfgDir = envDir
	}

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", cfgDir, "config directory (default: ~/.w3link)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logs on stderr")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address, e.g. :9464")

	rootCmd.AddCommand(
		connectCmd,
		signCmd,
		verifyCmd,
		sendCmd,
		walletCmd,
		sessionCmd,
		chainsCmd,
		configCmd,
	)
}
