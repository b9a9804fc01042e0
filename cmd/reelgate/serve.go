package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/reelgate/reelgate/internal/catalog"
	"github.com/reelgate/reelgate/internal/config"
	"github.com/reelgate/reelgate/internal/logger"
	"github.com/reelgate/reelgate/internal/messaging"
	"github.com/reelgate/reelgate/internal/metrics"
	"github.com/reelgate/reelgate/internal/notify"
	"github.com/reelgate/reelgate/internal/server"
	"github.com/reelgate/reelgate/internal/tracker"
	"github.com/reelgate/reelgate/internal/triage"
	"github.com/reelgate/reelgate/internal/webhook"
	"github.com/reelgate/reelgate/internal/workflow"
)

const dialTimeout = 60 * time.Second

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideMetrics,
			provideTransport,
			provideMessagingClient,
			workflow.NewStore,
			tracker.New,
			provideCatalogClient,
			provideNotifier,
			provideEngine,
			provideConsumer,
			provideWebhookHandler,
			provideServer,
		),
		fx.Invoke(
			startServer,
			registerCatalogWebhook,
			announceReadiness,
			startConsumer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideMetrics() *metrics.Metrics { return metrics.New() }

func provideTransport(log *slog.Logger) messaging.Transport {
	return messaging.NewGatewayTransport(log)
}

// provideMessagingClient builds the client before anything else starts.
// An installation-limit failure prints its remediation steps so the
// operator can act without digging through logs.
func provideMessagingClient(log *slog.Logger, cfg config.Config, transport messaging.Transport) (messaging.Client, error) {
	env, err := messaging.ParseEnvironment(cfg.Messaging.Environment)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	client, err := messaging.NewBuilder(log, transport).Build(ctx, messaging.ClientConfig{
		Environment:   env,
		GatewayURL:    cfg.Messaging.GatewayURL,
		SigningKey:    cfg.Messaging.SigningKey,
		EncryptionKey: cfg.Messaging.EncryptionKey,
	}, cfg.Messaging.AutoRevoke)
	if err != nil {
		var limitErr *messaging.InstallationLimitError
		if errors.As(err, &limitErr) {
			fmt.Fprintln(os.Stderr, "messaging identity has too many registered installations:")
			for i, step := range limitErr.ResolutionSteps {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, step)
			}
		}
		return nil, fmt.Errorf("build messaging client: %w", err)
	}

	log.Info("messaging client ready",
		slog.String("address", client.Address()),
		slog.String("inbox_id", client.InboxID()))
	return client, nil
}

func provideCatalogClient(log *slog.Logger, cfg config.Config) *catalog.Client {
	return catalog.NewClient(log, cfg.Catalog.BaseURL, cfg.Catalog.APIKey, cfg.Catalog.Users)
}

func provideNotifier(log *slog.Logger, client messaging.Client, m *metrics.Metrics) *notify.Notifier {
	return notify.New(log, client, m)
}

func provideEngine(log *slog.Logger, client messaging.Client, cat *catalog.Client, states *workflow.Store, requests *tracker.Tracker, cfg config.Config, m *metrics.Metrics) *triage.Engine {
	return triage.NewEngine(log, client, cat, states, requests, cfg.Access.Allowlist, m)
}

func provideConsumer(log *slog.Logger, client messaging.Client, engine *triage.Engine, m *metrics.Metrics) *triage.Consumer {
	return triage.NewConsumer(log, client, engine, m)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, requests *tracker.Tracker, notifier *notify.Notifier, m *metrics.Metrics) (*webhook.Handler, error) {
	if !cfg.Webhook.Enabled {
		return nil, nil
	}
	allowlist, err := webhook.ParseAllowlist(cfg.Webhook.IPAllowlist)
	if err != nil {
		return nil, fmt.Errorf("webhook ip allowlist: %w", err)
	}
	return webhook.NewHandler(log, allowlist, webhook.Options{
		Secret:           cfg.Webhook.Secret,
		TrustProxyHeader: cfg.Webhook.TrustProxyHeader,
		Debug:            cfg.Webhook.Debug,
	}, requests, notifier, m), nil
}

func provideServer(log *slog.Logger, cfg config.Config, webhookHandler *webhook.Handler, m *metrics.Metrics) *server.Server {
	handlers := []server.Handler{m}
	if webhookHandler != nil {
		handlers = append(handlers, webhookHandler)
	}
	return server.New(log, cfg.Webhook.Addr, handlers...)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", slog.String("error", err.Error()))
				}
			}()
			return nil
		},
		OnStop: srv.Stop,
	})
}

func registerCatalogWebhook(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, cat *catalog.Client) {
	if !cfg.Webhook.Enabled {
		return
	}
	publicURL := strings.TrimSpace(cfg.Catalog.PublicURL)
	if publicURL == "" {
		log.Warn("webhook enabled but catalog.public_url is not set, skipping backend registration")
		return
	}
	endpoint := strings.TrimRight(publicURL, "/") + "/webhook"
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return cat.RegisterWebhook(ctx, endpoint, cfg.Webhook.Secret)
		},
	})
}

func announceReadiness(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, client messaging.Client, notifier *notify.Notifier) {
	if len(cfg.Access.Admins) == 0 {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Best effort: a missing admin conversation must not block startup.
			go func() {
				text := fmt.Sprintf("reelgate is online as %s", client.Address())
				for _, admin := range cfg.Access.Admins {
					if err := notifier.Notify(context.Background(), admin, text); err != nil {
						log.Warn("readiness announcement failed",
							slog.String("admin", admin),
							slog.String("error", err.Error()))
					}
				}
			}()
			return nil
		},
	})
}

func startConsumer(lc fx.Lifecycle, log *slog.Logger, consumer *triage.Consumer) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("message consumer stopped", slog.String("error", err.Error()))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
