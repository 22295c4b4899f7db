package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"briefbot/internal/ai"
	"briefbot/internal/chat"
	"briefbot/internal/config"
	"briefbot/internal/dispatch"
	"briefbot/internal/domain"
	"briefbot/internal/ledger"
	"briefbot/internal/metrics"
	"briefbot/internal/store"
	"briefbot/internal/workflow"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "briefbot",
		Short: "briefbot: Slack article summaries and thread Q&A",
		Long:  "briefbot listens to Slack webhooks, summarizes shared articles on reaction, and answers follow-up questions in threads.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.briefbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)

			st, err := store.NewSQLiteStore(store.Config{
				DBPath: cfg.Store.DBPath,
				Logger: logger,
			})
			if err != nil {
				logger.Info("store", "path", cfg.Store.DBPath, "healthy", false, "err", err)
				return nil
			}
			defer st.Close()
			logger.Info("store", "path", cfg.Store.DBPath, "healthy", true)
			logger.Info("ledger", "tier", cfg.Store.Ledger)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long:  "Starts the HTTP server handling Slack events and interactivity payloads. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(store.Config{
		DBPath:          cfg.Store.DBPath,
		LedgerRetention: time.Duration(cfg.Store.DurableRetentionMinutes) * time.Minute,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var eventLedger domain.EventLedger
	switch cfg.Store.Ledger {
	case "memory":
		eventLedger = ledger.NewMemory(ledger.MemoryConfig{
			Retention: time.Duration(cfg.Store.MemoryRetentionMinutes) * time.Minute,
			Logger:    logger,
		})
	default:
		eventLedger = st
	}
	logger.Info("event ledger ready", "tier", cfg.Store.Ledger)

	prompts := ai.DefaultPrompts()
	if cfg.Gemini.PromptFile != "" {
		prompts, err = ai.LoadPrompts(cfg.Gemini.PromptFile)
		if err != nil {
			return fmt.Errorf("load prompts: %w", err)
		}
		logger.Info("prompt overrides loaded", "path", cfg.Gemini.PromptFile)
	}

	summarizer := ai.NewGemini(ai.GeminiConfig{
		APIKey:  cfg.Gemini.APIKey,
		APIBase: cfg.Gemini.APIBase,
		Model:   cfg.Gemini.Model,
		Prompts: prompts,
		Logger:  logger,
	})

	slackChat := chat.NewSlack(chat.SlackConfig{
		BotToken: cfg.Slack.BotToken,
		Logger:   logger,
	})

	resolver := workflow.NewResolver(st, logger)
	reactions := workflow.NewReaction(workflow.ReactionConfig{
		Chat:          slackChat,
		AI:            summarizer,
		Articles:      st,
		Conversations: st,
		Log:           st,
		Resolver:      resolver,
		Trigger:       cfg.Slack.TriggerReaction,
		FailureMark:   cfg.Slack.FailureReaction,
		Logger:        logger,
	})
	messages := workflow.NewMessage(workflow.MessageConfig{
		Chat:          slackChat,
		AI:            summarizer,
		Conversations: st,
		Log:           st,
		Resolver:      resolver,
		Logger:        logger,
	})

	guard := dispatch.NewGuard(time.Duration(cfg.Dispatch.TimeoutSeconds)*time.Second, logger)
	dispatcher := dispatch.NewDispatcher(dispatch.DispatcherConfig{
		Ledger:    eventLedger,
		Reactions: reactions,
		Messages:  messages,
		Guard:     guard,
		Logger:    logger,
	})
	interactions := dispatch.NewInteractions(dispatch.InteractionsConfig{
		SigningSecret: cfg.Slack.SigningSecret,
		Chat:          slackChat,
		Reactions:     reactions,
		Messages:      messages,
		Guard:         guard,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.EventsPath, dispatcher.HandleEvents)
	mux.HandleFunc(cfg.Server.InteractionsPath, interactions.HandleInteractions)
	mux.HandleFunc("/metrics", metrics.Collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook server started",
			"addr", addr,
			"events", cfg.Server.EventsPath,
			"interactions", cfg.Server.InteractionsPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown timed out, forcing exit", "err", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
