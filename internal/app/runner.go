package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/safepilot/internal/assistant"
	"github.com/ggonzalez94/safepilot/internal/config"
	clierr "github.com/ggonzalez94/safepilot/internal/errors"
	"github.com/ggonzalez94/safepilot/internal/execution"
	"github.com/ggonzalez94/safepilot/internal/execution/signer"
	"github.com/ggonzalez94/safepilot/internal/formatter"
	"github.com/ggonzalez94/safepilot/internal/httpx"
	"github.com/ggonzalez94/safepilot/internal/intent"
	"github.com/ggonzalez94/safepilot/internal/logx"
	"github.com/ggonzalez94/safepilot/internal/model"
	"github.com/ggonzalez94/safepilot/internal/near"
	"github.com/ggonzalez94/safepilot/internal/oracle"
	"github.com/ggonzalez94/safepilot/internal/out"
	"github.com/ggonzalez94/safepilot/internal/policy"
	"github.com/ggonzalez94/safepilot/internal/portfolio"
	"github.com/ggonzalez94/safepilot/internal/providers"
	"github.com/ggonzalez94/safepilot/internal/providers/binance"
	"github.com/ggonzalez94/safepilot/internal/providers/coingecko"
	"github.com/ggonzalez94/safepilot/internal/providers/defillama"
	"github.com/ggonzalez94/safepilot/internal/providers/refinance"
	"github.com/ggonzalez94/safepilot/internal/ranking"
	"github.com/ggonzalez94/safepilot/internal/schema"
	"github.com/ggonzalez94/safepilot/internal/server"
	"github.com/ggonzalez94/safepilot/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	logger        *slog.Logger
	root          *cobra.Command
	lastCommand   string
	lastWarnings  []string
	lastProviders []model.ProviderStatus

	oracle        *oracle.Oracle
	ledgers       []assistant.Ledger
	scanner       *portfolio.Scanner
	ranker        *ranking.Engine
	formatter     formatter.Formatter
	pipeline      *assistant.Pipeline
	store         *execution.Store
	intents       *intent.Service
	providerInfos []model.ProviderInfo
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if state.store != nil {
		_ = state.store.Close()
	}
	if err == nil {
		return 0
	}
	state.renderError("", err, state.lastWarnings, state.lastProviders)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Guided NEAR yield assistant",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}
			s.logger = logx.New(settings.LogLevel, settings.LogFormat, s.runner.stderr)

			if s.pipeline == nil {
				if err := s.wireProviders(); err != nil {
					return err
				}
			}
			if shouldOpenIntentStore(path) && s.store == nil {
				if err := s.openIntentStore(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Overall request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per provider request")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "NEAR JSON-RPC endpoint")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.EnvFile, "env-file", "", "Path to a .env file")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&s.flags.LogFormat, "log-format", "", "Log format (json, text)")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newAskCommand())
	cmd.AddCommand(s.newPricesCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newPortfolioCommand())
	cmd.AddCommand(s.newOptionsCommand())
	cmd.AddCommand(s.newIntentCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// wireProviders builds the read-side graph: price sources, ledgers, scanner,
// ranking engine, formatter and the chat pipeline. Nothing here touches the
// network until a command runs.
func (s *runtimeState) wireProviders() error {
	settings := s.settings
	httpClient := httpx.New(settings.RequestTimeout, settings.Retries)

	gecko := coingecko.New(httpClient, settings.CoinGeckoAPIKey)
	bnb := binance.New(httpClient)
	pools := refinance.New(httpClient)
	llama := defillama.New(httpClient)
	s.oracle = oracle.New(
		[]providers.PriceProvider{gecko, bnb},
		settings.PriceTimeout,
		model.Price{Native: settings.FallbackNearPrice, Reference: settings.FallbackBTCPrice},
		s.logger,
	)

	primary := near.New(httpClient, settings.RPCURL, settings.LedgerTimeout)
	s.ledgers = []assistant.Ledger{{Name: "near-rpc", Reader: primary}}
	for i, url := range settings.FallbackRPCURLs {
		s.ledgers = append(s.ledgers, assistant.Ledger{
			Name:   fmt.Sprintf("near-rpc-fallback-%d", i+1),
			Reader: near.New(httpClient, url, settings.LedgerTimeout),
		})
	}
	s.scanner = portfolio.NewScanner(primary, s.logger)
	s.ranker = ranking.New(primary, []providers.PoolProvider{pools, llama}, ranking.Config{
		TVLFloor:    settings.PoolTVLFloor,
		TopK:        settings.PoolTopK,
		PoolTimeout: settings.PoolTimeout,
	}, s.logger)

	f, err := formatter.New(formatter.Config{
		Backend: settings.FormatterBackend,
		APIKey:  settings.FormatterAPIKey,
		BaseURL: settings.FormatterBaseURL,
		Model:   settings.FormatterModel,
		Timeout: settings.FormatterTimeout,
	})
	if err != nil {
		return err
	}
	s.formatter = f

	s.pipeline = assistant.New(assistant.Deps{
		Prices:         s.oracle,
		Ledgers:        s.ledgers,
		Scanner:        s.scanner,
		Ranker:         s.ranker,
		Formatter:      s.formatter,
		RequestTimeout: settings.RequestTimeout,
		Logger:         s.logger,
	})

	s.providerInfos = []model.ProviderInfo{
		gecko.Info(),
		bnb.Info(),
		pools.Info(),
		llama.Info(),
		primary.Info(),
	}
	if s.formatter != nil {
		s.providerInfos = append(s.providerInfos, model.ProviderInfo{
			Name:         s.formatter.Name(),
			Type:         "formatter",
			RequiresKey:  true,
			Capabilities: []string{"chat.format"},
		})
	}
	return nil
}

func (s *runtimeState) openIntentStore() error {
	store, err := execution.OpenStore(s.settings.IntentStorePath, s.settings.IntentLockPath)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "open intent store", err)
	}
	s.store = store

	var wallet execution.Wallet
	if strings.TrimSpace(s.settings.SignerURL) != "" {
		relay, err := signer.NewRelay(s.settings.SignerURL, s.settings.SignerAccount, s.settings.SignerToken, signer.DefaultRelayTimeout)
		if err != nil {
			return err
		}
		wallet = relay
	}

	reader := s.ledgers[0].Reader
	s.intents = &intent.Service{
		Ledger:     reader,
		Ranker:     s.ranker,
		Scanner:    s.scanner,
		Store:      store,
		Dispatcher: execution.NewDispatcher(store, wallet, s.logger),
		Logger:     s.logger,
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	var withRoutes bool
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var routes chi.Routes
			if withRoutes {
				routes = server.New(nil, nil, 0, s.logger).Router()
			}
			data, err := schema.Build(s.root, strings.Join(args, " "), routes)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, nil)
		},
	}
	cmd.Flags().BoolVar(&withRoutes, "routes", false, "Include the HTTP routes served by `serve`")
	return cmd
}

func (s *runtimeState) newAskCommand() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask the assistant; same contract as POST /api/chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp := s.pipeline.Handle(cmd.Context(), model.ChatRequest{
				Message:   strings.Join(args, " "),
				AccountID: account,
			})
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), resp, nil, nil)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "NEAR account id (omit for guest)")
	return cmd
}

func (s *runtimeState) newPricesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "NEAR and BTC USD quotes with provider fallback",
		RunE: func(cmd *cobra.Command, args []string) error {
			price, statuses := s.oracle.Prices(cmd.Context())
			var warnings []string
			if price.Source == "static" {
				warnings = append(warnings, "all price providers failed; using static fallback prices")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), price, warnings, statuses)
		},
	}
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Liquid NEAR balance of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(account) == "" {
				return clierr.New(clierr.CodeUsage, "--account is required")
			}
			bal := s.pipeline.Balance(cmd.Context(), account)
			var warnings []string
			if !bal.Known {
				warnings = append(warnings, "balance unavailable from every ledger; reporting zero")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), bal, warnings, nil)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "NEAR account id")
	return cmd
}

func (s *runtimeState) newPortfolioCommand() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Staked positions across registered liquid-staking protocols",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(account) == "" {
				return clierr.New(clierr.CodeUsage, "--account is required")
			}
			positions := s.scanner.Scan(cmd.Context(), account)
			if positions == nil {
				positions = []model.ProtocolPosition{}
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), positions, nil, nil)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "NEAR account id")
	return cmd
}

func (s *runtimeState) newOptionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "options",
		Short: "Ranked staking options: curated first, then market pools",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, statuses := s.ranker.Options(cmd.Context())
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), opts, nil, statuses)
		},
	}
}

func (s *runtimeState) newIntentCommand() *cobra.Command {
	root := &cobra.Command{Use: "intent", Short: "Build, dispatch and inspect transaction intents"}

	var deploy intent.DeployInput
	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Plan a deposit of a percentage of liquid balance into an option",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := s.intents.Deploy(cmd.Context(), deploy)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil, nil)
		},
	}
	deployCmd.Flags().StringVar(&deploy.AccountID, "account", "", "Signer account id")
	deployCmd.Flags().StringVar(&deploy.OptionID, "option", "", "Option id from `options`")
	deployCmd.Flags().IntVar(&deploy.Percent, "percent", 0, "Percent of liquid balance (10..100, step 10)")
	deployCmd.Flags().StringVar(&deploy.RawBalance, "raw-balance", "", "Liquid balance in yocto units (looked up when omitted)")
	_ = deployCmd.MarkFlagRequired("account")
	_ = deployCmd.MarkFlagRequired("option")
	_ = deployCmd.MarkFlagRequired("percent")

	var withdraw intent.WithdrawInput
	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Plan an unstake of a protocol position",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := s.intents.Withdraw(cmd.Context(), withdraw)
			if err != nil {
				return err
			}
			var warnings []string
			if out.Approximate {
				warnings = append(warnings, "withdraw amount was rebuilt from a display value and may leave dust")
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, warnings, nil)
		},
	}
	withdrawCmd.Flags().StringVar(&withdraw.AccountID, "account", "", "Signer account id")
	withdrawCmd.Flags().StringVar(&withdraw.ProtocolID, "protocol", "", "Protocol contract id")
	withdrawCmd.Flags().StringVar(&withdraw.RawAmount, "raw-amount", "", "Exact token amount in base units")
	withdrawCmd.Flags().StringVar(&withdraw.DisplayAmount, "amount", "", "Display amount (approximate)")
	_ = withdrawCmd.MarkFlagRequired("account")
	_ = withdrawCmd.MarkFlagRequired("protocol")

	var submitID string
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Sign and broadcast a planned intent through the configured signer",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := s.intents.Submit(cmd.Context(), submitID)
			if err != nil {
				return err
			}
			if out.Outcome != nil && out.Outcome.Status == execution.OutcomeFailed {
				return clierr.New(clierr.CodeTxFailed, out.Outcome.Message)
			}
			var warnings []string
			if out.Outcome != nil && out.Outcome.Status == execution.OutcomeAmbiguousSuccess {
				warnings = append(warnings, out.Outcome.Message)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, warnings, nil)
		},
	}
	submitCmd.Flags().StringVar(&submitID, "intent-id", "", "Intent identifier")
	_ = submitCmd.MarkFlagRequired("intent-id")

	var listStatus string
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored intents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := s.intents.List(listStatus, listLimit)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil, nil)
		},
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (planned, processing, success, ambiguous_success, failed)")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum intents to return")

	var showID string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show one intent and its outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := s.intents.Get(showID)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), out, nil, nil)
		},
	}
	showCmd.Flags().StringVar(&showID, "intent-id", "", "Intent identifier")
	_ = showCmd.MarkFlagRequired("intent-id")

	root.AddCommand(deployCmd, withdrawCmd, submitCmd, listCmd, showCmd)
	return root
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat and intent API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(addr) == "" {
				addr = s.settings.ListenAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			srv := server.New(s.pipeline, s.intents, s.settings.RequestTimeout, s.logger)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr)")
	return cmd
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Provider commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List data providers and API key metadata (no keys required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.providerInfos, nil, nil)
		},
	}
	root.AddCommand(list)
	return root
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, providers []model.ProviderStatus) error {
	s.captureCommandDiagnostics(warnings, providers)
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Partial:   partialFromStatuses(providers),
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, providers []model.ProviderStatus) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    clierr.ExitCode(err),
			Type:    clierr.TypeName(err),
			Message: message,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, providers []model.ProviderStatus) {
	s.lastWarnings = append([]string(nil), warnings...)
	s.lastProviders = append([]model.ProviderStatus(nil), providers...)
}

// partialFromStatuses reports whether any provider in the chain failed even
// though the command produced a result.
func partialFromStatuses(statuses []model.ProviderStatus) bool {
	for _, st := range statuses {
		if st.Status != "ok" {
			return true
		}
	}
	return false
}

func shouldOpenIntentStore(commandPath string) bool {
	path := normalizeCommandPath(commandPath)
	return path == "serve" || strings.HasPrefix(path, "intent ")
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[1:], " ")
}

func normalizeCommandPath(commandPath string) string {
	return strings.ToLower(strings.Join(strings.Fields(commandPath), " "))
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return clierr.Wrap(clierr.CodeUnavailable, "command cancelled", err)
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "command failed", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"required flag",
		"accepts ",
		"requires at least",
		"invalid argument",
		"flag needs an argument",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
