package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/support-widget/internal/config"
	"github.com/zhouzirui/support-widget/internal/logging"
	"github.com/zhouzirui/support-widget/internal/service/chat"
	"github.com/zhouzirui/support-widget/internal/service/orchestrator"
	"github.com/zhouzirui/support-widget/internal/service/render"
	"github.com/zhouzirui/support-widget/internal/service/transport"
	"github.com/zhouzirui/support-widget/internal/storage"
)

type options struct {
	backend       string
	storage       string
	sqlitePath    string
	tab           string
	timeout       time.Duration
	fallbackDelay time.Duration
	logLevel      string
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "chattester",
		Short: "Chat with a support backend through the widget core in the terminal",
		Long: "chattester drives the same session store, renderer and orchestrator the gateway uses, " +
			"printing each view to the terminal. Type a message and press enter; /quit ends the session.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupWriter(config.LogConfig{Level: opts.logLevel, Format: "console"}, cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.backend == "" {
				return errors.New("--backend or BACKEND_URL is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, opts, in, out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.backend, "backend", os.Getenv("BACKEND_URL"), "chat backend base URL")
	f.StringVar(&opts.storage, "storage", "memory", "session storage: memory or sqlite")
	f.StringVar(&opts.sqlitePath, "sqlite-path", "chattester.db", "SQLite file for --storage=sqlite")
	f.StringVar(&opts.tab, "tab", "", "resume an existing tab ID (requires persistent storage)")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "backend request timeout")
	f.DurationVar(&opts.fallbackDelay, "fallback-delay", render.DefaultFallbackDelay, "delay before a fallback phrase is shown")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", zerolog.WarnLevel.String(), "log level")

	return cmd
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	store, err := storage.Open(ctx, storage.Options{Driver: opts.storage, SQLitePath: opts.sqlitePath})
	if err != nil {
		return err
	}
	defer store.Close()

	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		log.Warn().Err(err).Msg("markdown renderer unavailable, printing plain text")
		md = nil
	}
	presenter := newTerminalPresenter(out, md)

	tabs := chat.NewService(chat.Config{
		API:          transport.NewHTTPAPI(opts.backend, opts.timeout),
		Storage:      store,
		Presenters:   func(string) render.Presenter { return presenter },
		Render:       render.Options{FallbackDelay: opts.fallbackDelay},
		Orchestrator: orchestrator.Options{},
	})
	defer tabs.Close()

	var tab *chat.Tab
	if opts.tab != "" {
		tab, err = tabs.Open(ctx, opts.tab)
	} else {
		tab, err = tabs.CreateTab(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", statusStyle.Render("Tab:"), tab.ID)

	if tab.Store.Snapshot().PrivacyAccepted {
		tab.Orchestrator.Resume(ctx)
	} else {
		tab.Orchestrator.AcceptPrivacy(ctx)
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			break
		}
		if line == "" {
			continue
		}

		res, err := tab.Orchestrator.Submit(ctx, line)
		switch {
		case errors.Is(err, orchestrator.ErrConversationClosed):
			fmt.Fprintln(out, statusStyle.Render(err.Error()))
			return nil
		case err != nil && !errors.Is(err, orchestrator.ErrNotConnected):
			fmt.Fprintln(out, statusStyle.Render(err.Error()))
		default:
			log.Debug().Str("phase", res.Phase.String()).Int("attempts", res.Attempts).Msg("turn finished")
		}

		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}
