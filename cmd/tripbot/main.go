package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"tripbot/internal/channel"
	"tripbot/internal/config"
	"tripbot/internal/domain"
	"tripbot/internal/intent"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "tripbot",
		Short:        "tripbot: a travel assistant that routes chat to weather, traffic and trip-planning tools",
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.tripbot/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	return root
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file (defaults when absent) and swaps the
// bootstrap logger for the configured one. The returned func closes the
// log file, if any.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.LoadOrDefaults(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	l, closeLog, err := newLogger(cfg.General)
	if err != nil {
		return nil, nil, err
	}
	logger = l
	return cfg, closeLog, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\nSet TRIPBOT_LLM_API_KEY and TRIPBOT_AMAP_API_KEY, then run 'tripbot chat'.\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat in the terminal",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.loop.Run(ctx)

	cli := channel.NewCLI(channel.CLIConfig{
		DisplayName: cfg.General.DisplayName,
		UserID:      cfg.General.DefaultUserID,
		Spinner:     true,
		Logger:      logger,
		In:          cmd.InOrStdin(),
		Out:         cmd.OutOrStdout(),
	})
	return cli.Start(ctx, a.bus)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the enabled channels (WebSocket, Telegram) and the agent loop",
		Long:  "Starts every enabled non-interactive channel, the agent loop, and the metrics endpoint. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.provider.Healthy(ctx); err != nil {
		logger.Warn("model provider unhealthy at startup", "provider", a.provider.Name(), "err", err)
	} else {
		logger.Info("model provider healthy", "provider", a.provider.Name())
	}

	var channels []domain.Channel
	if ws := cfg.Channels.WebSocket; ws.Enabled {
		channels = append(channels, channel.NewWebSocketChannel(channel.WSConfig{
			Host:           ws.Host,
			Port:           ws.Port,
			Path:           ws.Path,
			AllowedOrigins: ws.AllowedOrigins,
			Logger:         logger,
		}))
	}
	if tg := cfg.Channels.Telegram; tg.Enabled {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:       tg.Token,
			AllowFrom:   tg.AllowFrom,
			DisplayName: cfg.General.DisplayName,
			Logger:      logger,
		}))
	}
	if len(channels) == 0 && !cfg.Metrics.Enabled {
		return errors.New("no channel enabled: turn on channels.websocket or channels.telegram, or use 'tripbot chat'")
	}

	go a.loop.Run(ctx)

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch domain.Channel) {
			defer wg.Done()
			if err := ch.Start(ctx, a.bus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
			}
		}(ch)
		logger.Info("channel enabled", "channel", ch.Name())
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = a.metricsServer(net.JoinHostPort(cfg.Metrics.Host, strconv.Itoa(cfg.Metrics.Port)), cfg.Metrics.Path)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "err", err)
			}
		}()
		logger.Info("metrics endpoint enabled", "addr", metricsSrv.Addr, "path", cfg.Metrics.Path)
	}

	logger.Info("tripbot serving. Press Ctrl+C to stop.")
	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop failed", "channel", ch.Name(), "err", err)
			}
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		wg.Wait()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return errors.New("shutdown timed out")
	}
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalogue as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			reg, err := newToolRegistry(cfg, nil, logger)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), reg.Definitions())
		},
	}
}

// classification is the JSON shape printed by the classify command.
type classification struct {
	Text     string        `json:"text"`
	Results  intent.Result `json:"results"`
	Matched  []string      `json:"matched"`
	Selected string        `json:"selected"`
}

func classifyCmd() *cobra.Command {
	var hasImage bool
	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "Show every classifier result and the branch a message would take",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			classifier, err := newClassifier(cfg)
			if err != nil {
				return err
			}
			res := classifier.Classify(args[0], hasImage)
			out := classification{Text: args[0], Results: res, Selected: res.Top().String()}
			for _, k := range intent.Priority {
				if res.Matches(k) {
					out.Matched = append(out.Matched, k.String())
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&hasImage, "image", false, "classify as if an image were attached")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefaults(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(config.Sanitize(cfg))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. llm.model)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefaults(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), val)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
