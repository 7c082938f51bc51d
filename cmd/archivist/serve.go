package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"google.golang.org/api/option"

	"github.com/memohai/archivist/internal/analysis"
	"github.com/memohai/archivist/internal/analysis/gemini"
	"github.com/memohai/archivist/internal/archive"
	"github.com/memohai/archivist/internal/archive/gdrive"
	"github.com/memohai/archivist/internal/calendar"
	"github.com/memohai/archivist/internal/calendar/gcal"
	"github.com/memohai/archivist/internal/channel"
	"github.com/memohai/archivist/internal/channel/adapters/line"
	"github.com/memohai/archivist/internal/channel/adapters/telegram"
	"github.com/memohai/archivist/internal/config"
	"github.com/memohai/archivist/internal/googleauth"
	"github.com/memohai/archivist/internal/handlers"
	"github.com/memohai/archivist/internal/logger"
	"github.com/memohai/archivist/internal/media"
	"github.com/memohai/archivist/internal/pipeline"
	"github.com/memohai/archivist/internal/retry"
	"github.com/memohai/archivist/internal/server"
	"github.com/memohai/archivist/internal/session"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideSpooler,
			provideGoogleOptions,
			provideDriveStore,
			provideTaxonomy,
			provideArchiver,
			provideCalendarInserter,
			provideMaterializer,
			provideGeminiClient,
			provideAnalyzer,
			providePipeline,
			provideChannelRegistry,
			provideSessionStore,
			provideController,
			provideDispatcher,
			provideSweeper,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServer,
		),
		fx.Invoke(
			startDispatcher,
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideSpooler(log *slog.Logger, cfg config.Config) (*media.Spooler, error) {
	return media.NewSpooler(log, cfg.Session.TempDir, cfg.Session.MaxAttachmentBytes)
}

type googleClientOptions []option.ClientOption

func provideGoogleOptions(cfg config.Config) (googleClientOptions, error) {
	opts, err := googleauth.ClientOptions(context.Background(), cfg.Google.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("google credentials: %w", err)
	}
	return opts, nil
}

func provideDriveStore(log *slog.Logger, opts googleClientOptions) (*gdrive.Store, error) {
	return gdrive.New(context.Background(), log, opts...)
}

func provideTaxonomy(log *slog.Logger, store *gdrive.Store) *archive.Taxonomy {
	return archive.NewTaxonomy(log, store)
}

func provideArchiver(log *slog.Logger, store *gdrive.Store, spooler *media.Spooler) *archive.Archiver {
	return archive.NewArchiver(log, store, spooler)
}

func provideCalendarInserter(log *slog.Logger, cfg config.Config, opts googleClientOptions) (calendar.Inserter, error) {
	if !cfg.Calendar.Enabled() {
		log.Info("calendar disabled: no calendar id configured")
		return nil, nil
	}
	client, err := gcal.New(context.Background(), log, cfg.Calendar.CalendarID, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func provideMaterializer(log *slog.Logger, cfg config.Config, inserter calendar.Inserter) (*calendar.Materializer, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return calendar.NewMaterializer(log, inserter, loc), nil
}

func provideGeminiClient(log *slog.Logger, cfg config.Config) (*gemini.Client, error) {
	return gemini.New(context.Background(), log, gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.GeminiTimeout(),
	})
}

func provideAnalyzer(log *slog.Logger, cfg config.Config, client *gemini.Client) (*analysis.Analyzer, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return analysis.NewAnalyzer(log, client, analysis.Options{
		Retry: retry.Policy{
			Attempts: cfg.Retry.Attempts,
			Delay:    cfg.RetryDelay(),
			Logger:   log,
			Name:     "gemini analysis",
		},
		Location:       loc,
		MaxInlineBytes: cfg.Session.MaxInlineBytes,
	}), nil
}

func providePipeline(log *slog.Logger, cfg config.Config, analyzer *analysis.Analyzer, taxonomy *archive.Taxonomy, archiver *archive.Archiver, events *calendar.Materializer) *pipeline.Runner {
	return pipeline.NewRunner(log, pipeline.Deps{
		Analyzer: analyzer,
		Resolver: taxonomy,
		Archiver: archiver,
		Events:   events,
		RootID:   cfg.Drive.RootFolderID,
	})
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	if cfg.Line.Enabled() {
		adapter, err := line.NewLineAdapter(log, line.Config{
			ChannelSecret:      cfg.Line.ChannelSecret,
			ChannelAccessToken: cfg.Line.ChannelAccessToken,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	if cfg.Telegram.Enabled() {
		if err := registry.Register(telegram.NewTelegramAdapter(log, telegram.Config{
			BotToken:    cfg.Telegram.BotToken,
			SecretToken: cfg.Telegram.SecretToken,
		})); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func provideSessionStore() session.Store {
	return session.NewMemoryStore()
}

func provideController(log *slog.Logger, store session.Store, registry *channel.Registry, spooler *media.Spooler, runner *pipeline.Runner) *session.Controller {
	return session.NewController(log, store, registry, spooler, runner)
}

func provideDispatcher(log *slog.Logger, cfg config.Config, controller *session.Controller) *channel.Dispatcher {
	return channel.NewDispatcher(log, cfg.Server.MaxPendingPerUser, controller.HandleInbound)
}

func provideSweeper(log *slog.Logger, cfg config.Config, store session.Store, registry *channel.Registry, spooler *media.Spooler) *session.Sweeper {
	return session.NewSweeper(log, store, registry, spooler, cfg.SessionMaxIdle(), cfg.Session.SweepSchedule)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, registry *channel.Registry, dispatcher *channel.Dispatcher) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, registry, dispatcher, cfg.Server.MaxBodyBytes)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startDispatcher(lc fx.Lifecycle, dispatcher *channel.Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { dispatcher.Start(ctx); return nil },
		OnStop:  func(ctx context.Context) error { return dispatcher.Stop(ctx) },
	})
}

func startSweeper(lc fx.Lifecycle, sweeper *session.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return sweeper.Start() },
		OnStop:  func(ctx context.Context) error { return sweeper.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, registry *channel.Registry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			channels := make([]string, 0)
			for _, a := range registry.List() {
				channels = append(channels, a.Type().String())
			}
			logger.Info("starting archivist", slog.String("version", version), slog.String("addr", srv.Addr()), slog.Any("channels", channels))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
