package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	tele "gopkg.in/telebot.v3"

	"github.com/orenlab/pytmbot-sub000/pkg/access"
	"github.com/orenlab/pytmbot-sub000/pkg/auth"
	"github.com/orenlab/pytmbot-sub000/pkg/bot"
	"github.com/orenlab/pytmbot-sub000/pkg/callback"
	"github.com/orenlab/pytmbot-sub000/pkg/config"
	"github.com/orenlab/pytmbot-sub000/pkg/docker"
	"github.com/orenlab/pytmbot-sub000/pkg/events"
	"github.com/orenlab/pytmbot-sub000/pkg/handlers"
	"github.com/orenlab/pytmbot-sub000/pkg/health"
	"github.com/orenlab/pytmbot-sub000/pkg/keyboards"
	"github.com/orenlab/pytmbot-sub000/pkg/log"
	"github.com/orenlab/pytmbot-sub000/pkg/metrics"
	"github.com/orenlab/pytmbot-sub000/pkg/plugin"
	_ "github.com/orenlab/pytmbot-sub000/pkg/plugin/builtin/monitor"
	"github.com/orenlab/pytmbot-sub000/pkg/sanitize"
	"github.com/orenlab/pytmbot-sub000/pkg/session"
	"github.com/orenlab/pytmbot-sub000/pkg/sysmon"
	"github.com/orenlab/pytmbot-sub000/pkg/templates"
	"github.com/orenlab/pytmbot-sub000/pkg/version"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tmbot",
	Short: "tmbot - Telegram agent for the local Docker engine and host",
	Long: `tmbot is a Telegram-native operations agent: it exposes the local
Docker engine and host vitals to a small allow-listed set of accounts,
guards every container mutation behind TOTP two-factor auth, and serves
an operational endpoint for container health probes.

Configuration is read from ./tmbot.yaml (override with TMBOT_CONFIG).`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		if healthCheck, _ := cmd.Flags().GetBool("health_check"); healthCheck {
			ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
			defer cancel()
			os.Exit(health.ProbeOps(ctx, "", os.Stdout))
		}
		return runBot(cmd)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"tmbot version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.Flags().String("mode", "prod", "Bot operating mode (dev or prod)")
	rootCmd.Flags().String("log-level", "INFO", "Log level (DEBUG, INFO, ERROR)")
	rootCmd.Flags().Bool("colorize_logs", true, "Colorized console logs; plain JSON when disabled")
	rootCmd.Flags().Bool("webhook", false, "Receive updates over a webhook instead of long polling")
	rootCmd.Flags().String("socket_host", "127.0.0.1", "Local bind address for the webhook listener")
	rootCmd.Flags().String("plugins", "", "Comma-separated list of plugins to load")
	rootCmd.Flags().Bool("health_check", false,
		"Probe the operations endpoint and exit: 0 healthy, 1 unhealthy, 2 unknown")
}

func runBot(cmd *cobra.Command) error {
	modeFlag, _ := cmd.Flags().GetString("mode")
	levelFlag, _ := cmd.Flags().GetString("log-level")
	colorize, _ := cmd.Flags().GetBool("colorize_logs")
	useWebhook, _ := cmd.Flags().GetBool("webhook")
	socketHost, _ := cmd.Flags().GetString("socket_host")
	pluginList, _ := cmd.Flags().GetString("plugins")

	mode, err := config.ParseMode(modeFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		return err
	}

	// The sanitizer must exist before the first log line: every secret
	// the config carries is masked from every sink.
	san := sanitize.New(cfg.Secrets()...)
	log.Init(log.Config{
		Level:     log.ParseLevel(levelFlag),
		Colorize:  colorize,
		Sanitizer: san,
	})
	logger := log.WithComponent("main")

	token, err := cfg.Token(mode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	engine, err := docker.Connect(ctx, cfg.DockerHost())
	cancel()
	if err != nil {
		return fmt.Errorf("failed to reach the container engine: %w", err)
	}

	renderer, err := templates.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	broker := events.NewBroker()
	sessions := session.NewStore()
	codec := callback.New([]byte(cfg.AuthSalt()))
	host := &sysmon.Host{}

	svc := docker.NewService(engine, docker.Options{
		Sanitizer:       san,
		Broker:          broker,
		IsAdmin:         cfg.IsAdmin,
		IsAuthenticated: sessions.IsAuthenticated,
		Logger:          log.WithComponent("docker"),
	})

	var (
		poller  tele.Poller
		ingress *bot.Ingress
	)
	if useWebhook {
		ingress, err = bot.NewIngress(cfg, token, socketHost, log.WithComponent("webhook"))
		if err != nil {
			return err
		}
		poller = ingress
	} else {
		poller = bot.NewLongPoller()
	}

	b, err := bot.NewClient(token, poller)
	if err != nil {
		return err
	}

	reg := handlers.NewRegistry(handlers.Options{
		Config:     cfg,
		Renderer:   renderer,
		Sessions:   sessions,
		Gate:       auth.NewGate(sessions),
		TOTP:       auth.NewAuthenticator(cfg.AuthSalt()),
		Docker:     svc,
		Sysmon:     host,
		Codec:      codec,
		Keyboards:  keyboards.NewBuilder(codec),
		Releases:   version.NewChecker(),
		Sanitizer:  san,
		Broker:     broker,
		BotName:    b.Me.Username,
		BotVersion: Version,
		BotCommit:  Commit,
	})

	plugins := plugin.NewManager(plugin.Options{
		Deps: plugin.Deps{
			Commands: reg,
			Config:   cfg,
			Logger:   log.WithComponent("plugins"),
			Broker:   broker,
			Sysmon:   host,
			Docker:   svc,
			Notify: func(chatID int64, text string) error {
				_, err := b.Send(tele.ChatID(chatID), text)
				return err
			},
		},
		Logger: log.WithComponent("plugins"),
		Broker: broker,
	})
	reg.SetPlugins(plugins)

	collector := metrics.NewCollector(metrics.Sources{
		ActiveSessions: sessions.ActiveSessions,
		LoadedPlugins:  func() int { return len(plugins.Loaded()) },
		SelfUsage:      host.Self,
		EnginePing:     svc.IsAvailable,
	})

	runtime := bot.New(bot.Options{
		Bot:       b,
		Config:    cfg,
		Access:    access.NewController(cfg.IsAllowedUser, broker),
		Rate:      access.NewRateLimiter(access.DefaultRateLimit, access.DefaultRatePeriod),
		Registry:  reg,
		Docker:    svc,
		Sysmon:    host,
		Plugins:   plugins,
		Broker:    broker,
		Collector: collector,
		Ingress:   ingress,
		Version:   Version,
	})

	plugins.LoadAll(splitPlugins(pluginList))

	if err := runtime.Launch(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("signal received")
		done := make(chan error, 1)
		go func() { done <- runtime.Shutdown("signal " + sig.String()) }()
		for {
			select {
			case err := <-done:
				return err
			case again := <-sigCh:
				// A second Ctrl+C skips the drain.
				if again == os.Interrupt {
					fmt.Fprintln(os.Stderr, "forced exit")
					os.Exit(1)
				}
			}
		}
	case <-runtime.Done():
		return fmt.Errorf("bot runtime stopped unexpectedly")
	}
}

func splitPlugins(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
