package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/agents/classify"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/agents/draft"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/agents/research"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/artifact"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/chat"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/chat/slack"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/config"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/dispatch"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/estimate"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/httpapi"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/factory"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/llm/middleware/retry"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/metrics"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/persistence"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/pipeline"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/session"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/sheets"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/status"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/templates"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/version"
)

const (
	// shutdownGrace bounds how long running pipelines may finish after a signal.
	shutdownGrace = 30 * time.Second
	// eventsDBName holds processed event ids when history is not in SQLite.
	eventsDBName = "events.db"
)

type serveOptions struct {
	tee      bool
	noStatus bool
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to Slack and handle messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.tee, "tee", false, "write logs to stderr as well as the log file")
	cmd.Flags().BoolVar(&opts.noStatus, "no-status", false, "disable the terminal status display")
	return cmd
}

// services is everything serve builds before it starts listening.
type services struct {
	transport  *slack.Client
	dispatcher *dispatch.Dispatcher
	status     *status.Multiplexer
	metrics    *metrics.Recorder
	closers    []func() error
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logx.Warnf("close: %v", err)
		}
	}
}

func runServe(parent context.Context, flags *rootFlags, opts *serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if err := logx.InitializeLogFile(filepath.Join(cfg.DataDir, "logs"), cfg.Log.Keep, opts.tee); err != nil {
		return err
	}
	defer func() { _ = logx.CloseLogFile() }()
	if cfg.Log.Debug {
		logx.SetDebug(true, cfg.Log.DebugDomains...)
	}

	logger := logx.NewLogger("taskbot")
	logger.Info("starting taskbot %s", version.String())

	password, err := secretsPassword(cfg.DataDir)
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecretStore(cfg.DataDir, password)
	if err != nil {
		return err
	}

	svc, err := build(ctx, cfg, secrets, opts)
	if err != nil {
		return err
	}
	defer svc.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.transport.Run(gctx, svc.dispatcher.Handle)
	})
	if cfg.Metrics.Addr != "" {
		api := httpapi.New(httpapi.Deps{
			Status:   svc.status,
			Queues:   svc.dispatcher,
			Registry: svc.metrics.Registry(),
		})
		g.Go(func() error { return api.ListenAndServe(gctx, cfg.Metrics.Addr) })
	}

	runErr := g.Wait()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := svc.dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("pipelines did not finish within %s: %v", shutdownGrace, err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// build wires the pipeline graph. On error everything opened so far is
// closed.
func build(ctx context.Context, cfg *config.Config, secrets *config.SecretStore, opts *serveOptions) (_ *services, err error) {
	svc := &services{metrics: metrics.NewRecorder()}
	defer func() {
		if err != nil {
			svc.close()
		}
	}()

	botToken, err := secrets.Get(config.SecretSlackBotToken)
	if err != nil {
		return nil, err
	}
	appToken, err := secrets.Get(config.SecretSlackAppToken)
	if err != nil {
		return nil, err
	}
	svc.transport, err = slack.New(botToken, appToken, cfg.Slack.DMOnly)
	if err != nil {
		return nil, err
	}
	poster := chat.NewService(svc.transport)

	gens, err := buildGenerators(cfg, secrets, svc.metrics)
	if err != nil {
		return nil, err
	}

	prompts := templates.MustRenderer()
	classifier, err := classify.New(gens.classify, prompts)
	if err != nil {
		return nil, err
	}
	store, err := sheets.NewGoogle(ctx, sheets.GoogleConfig{
		SpreadsheetID:   cfg.Sheets.SpreadsheetID,
		Tab:             cfg.Sheets.Tab,
		CredentialsFile: cfg.Resolve(cfg.Sheets.CredentialsFile),
	})
	if err != nil {
		return nil, err
	}
	drafter, err := draft.New(gens.draft, gens.trends, store, prompts, cfg.Pipelines.ProposalCount)
	if err != nil {
		return nil, err
	}
	researcher, err := research.New(gens.research, prompts, cfg.Pipelines.ResearchBudget)
	if err != nil {
		return nil, err
	}

	history, db, err := openHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if db != nil {
		svc.closers = append(svc.closers, db.Close)
	}
	dedup, err := buildDeduper(ctx, cfg, db, svc)
	if err != nil {
		return nil, err
	}

	observers := []status.Observer{status.NewLogObserver(), status.NewMetricsObserver(svc.metrics)}
	if !opts.noStatus && !opts.tee {
		observers = append(observers, status.NewTerminalObserver())
	}
	svc.status = status.New(observers...)

	tokens := pipeline.Tokens(cfg.Tokens)
	machine := pipeline.New(pipeline.Config{
		Store:      session.NewStore(),
		Status:     svc.status,
		Chat:       poster,
		Classifier: classifier,
		Draft:      drafter,
		Research:   researcher,
		Estimator:  estimate.NewEstimator(history, cfg.EstimateDefaults()),
		Artifacts:  artifact.NewWriter(afero.NewOsFs(), cfg.Resolve(cfg.Output.Dir)),
		Tokens:     tokens,
		USDToJPY:   cfg.Currency.USDToJPY,
		Steps:      svc.metrics,
	})
	svc.dispatcher = dispatch.New(dispatch.Config{
		Machine: machine,
		Chat:    poster,
		Dedup:   dedup,
		Tokens:  tokens,
		Depth:   cfg.Dispatch.MailboxDepth,
		Metrics: svc.metrics,
	})
	return svc, nil
}

type generators struct {
	classify, draft, trends, research llm.Generator
}

func buildGenerators(cfg *config.Config, secrets *config.SecretStore, rec *metrics.Recorder) (generators, error) {
	f := factory.New(factory.Credentials{
		AnthropicKey: secrets.Lookup(config.SecretAnthropicKey),
		OpenAIKey:    secrets.Lookup(config.SecretOpenAIKey),
		GoogleKey:    secrets.Lookup(config.SecretGoogleKey),
		OllamaHost:   cfg.Models.OllamaHost,
	}, rec, retry.DefaultConfig)

	var g generators
	for _, b := range []struct {
		name string
		tier llm.Tier
		dst  *llm.Generator
	}{
		{"classify", cfg.Models.Classify, &g.classify},
		{"draft", cfg.Models.Draft, &g.draft},
		{"trends", cfg.Models.Trends, &g.trends},
		{"research", cfg.Models.Research, &g.research},
	} {
		gen, err := f.Build(b.tier)
		if err != nil {
			return generators{}, fmt.Errorf("models.%s: %w", b.name, err)
		}
		*b.dst = gen
	}
	return g, nil
}

// buildDeduper reuses the history database when there is one. The sqlite
// backend with file history opens a separate events database.
func buildDeduper(ctx context.Context, cfg *config.Config, db *persistence.DB, svc *services) (dispatch.Deduper, error) {
	if cfg.Dispatch.DedupBackend != config.HistorySQLite {
		return dispatch.NewMemoryDeduper(cfg.Dispatch.DedupTTL), nil
	}
	if db == nil {
		var err error
		db, err = persistence.Open(ctx, cfg.Resolve(eventsDBName))
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, db.Close)
	}
	if n, err := db.Events().Prune(ctx, time.Now().Add(-cfg.Dispatch.DedupTTL)); err == nil && n > 0 {
		logx.Infof("pruned %d processed event ids", n)
	}
	return dispatch.NewStoreDeduper(db.Events()), nil
}
