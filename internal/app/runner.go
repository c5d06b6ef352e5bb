package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/inky-tools/inkybot/internal/bot"
	"github.com/inky-tools/inkybot/internal/chain"
	"github.com/inky-tools/inkybot/internal/config"
	botderr "github.com/inky-tools/inkybot/internal/errors"
	"github.com/inky-tools/inkybot/internal/explorer"
	"github.com/inky-tools/inkybot/internal/router"
	"github.com/inky-tools/inkybot/internal/session"
	"github.com/inky-tools/inkybot/internal/swap"
	"github.com/inky-tools/inkybot/internal/telegram"
	"github.com/inky-tools/inkybot/internal/version"
	"github.com/inky-tools/inkybot/internal/wallet"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

func NewRunner() *Runner {
	return &Runner{stdout: os.Stdout, stderr: os.Stderr}
}

func (r *Runner) Run(args []string) int {
	var flags config.GlobalFlags

	root := &cobra.Command{
		Use:           version.AppName,
		Short:         "Custodial swap bot for the Ink chain",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Accept snake_case spellings of the flags too.
	root.PersistentFlags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to the yaml config file")
	root.PersistentFlags().StringVar(&flags.LogFile, "log-file", "", "append JSON logs to this file")
	root.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "enable debug logging")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.serve(cmd.Context(), flags)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(r.stdout, "%s %s (%s)\n", version.AppName, version.Version, version.Commit)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	if err := root.ExecuteContext(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(r.stderr, "error: %v\n", err)
		if botderr.KindOf(err) == botderr.KindUsage {
			return 2
		}
		return 1
	}
	return 0
}

func (r *Runner) serve(ctx context.Context, flags config.GlobalFlags) error {
	// Local .env files are a convenience for development; absence is fine.
	_ = godotenv.Load()

	settings, err := config.Load(flags)
	if err != nil {
		return err
	}

	log, err := InitLogger(settings.Debug, settings.LogFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting",
		zap.String("version", version.Version),
		zap.Int64("chain_id", settings.ChainID),
		zap.String("rpc", settings.RPCURL))

	client, err := chain.Dial(ctx, settings.RPCURL, settings.ChainID, chain.RPCOptions{
		PollInterval: settings.ReceiptPollEvery,
		StepTimeout:  settings.ReceiptStepTimeout,
	}, log)
	if err != nil {
		return err
	}
	defer client.Close()

	cipher, err := wallet.NewCipher(settings.EncryptionKey)
	if err != nil {
		return err
	}
	store, err := wallet.OpenStore(settings.WalletStorePath, settings.WalletLockPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	wallets := wallet.NewManager(store, cipher, log)

	resolver := router.NewResolver(client, settings.Routers, log)
	sequencer := swap.NewSequencer(client, resolver, common.HexToAddress(settings.FeeWallet), log)
	balances := explorer.NewClient(settings.ExplorerBase, log)

	sessions := session.NewStore(settings.SessionTTL, log)
	go sessions.Run(ctx)

	transport := telegram.NewClient(settings.BotToken, log)
	facade := bot.NewFacade(transport, wallets, sessions, sequencer, resolver, balances, client,
		bot.Links{ExplorerBase: settings.ExplorerBase, BridgeURL: settings.BridgeURL}, log)

	poller := telegram.NewPoller(transport, facade, log)
	err = poller.Run(ctx)
	if err == context.Canceled {
		log.Info("shutting down")
		return nil
	}
	return err
}
