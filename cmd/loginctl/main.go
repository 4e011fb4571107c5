package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/foundrynet/telegram-login-service/internal/tools/common"
	"github.com/foundrynet/telegram-login-service/internal/tools/loadgen"
	"github.com/foundrynet/telegram-login-service/internal/tools/ui"
	"github.com/foundrynet/telegram-login-service/loginclient"
)

type options struct {
	serverURL   string
	botUsername string
	noBrowser   bool
	timeout     time.Duration
}

func main() {
	_ = common.LoadEnvFile(".env")
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "loginctl",
		Short:        "Sign in to the service through Telegram",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.serverURL, "server", envOr("LOGIN_SERVER_URL", "http://localhost:8080"), "login service base URL")
	cmd.PersistentFlags().StringVar(&opts.botUsername, "bot", envOr("BOT_USERNAME", ""), "Telegram bot username")
	cmd.PersistentFlags().BoolVar(&opts.noBrowser, "no-browser", false, "print the deep link instead of opening it")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "polling budget")
	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newResumeCommand(opts))
	cmd.AddCommand(newWhoamiCommand(opts))
	cmd.AddCommand(newLogoutCommand())
	cmd.AddCommand(newLoadgenCommand(opts))
	return cmd
}

func newLoginCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Start a fresh Telegram login",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, relay, err := buildOrchestrator(opts)
			if err != nil {
				return err
			}
			link, err := o.LoginWithBot(cmd.Context())
			if err != nil {
				return fmt.Errorf("start login: %s", loginclient.UserMessage(err))
			}
			return runHandshakeUI(o, relay, link)
		},
	}
}

func newResumeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume an interrupted login attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, relay, err := buildOrchestrator(opts)
			if err != nil {
				return err
			}
			resumed, err := o.Resume(cmd.Context())
			if err != nil {
				return err
			}
			if !resumed {
				fmt.Println("No pending login to resume. Run `loginctl login`.")
				return nil
			}
			return runHandshakeUI(o, relay, o.DeepLink(o.ActiveToken()))
		},
	}
}

func newWhoamiCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			if sess == nil {
				fmt.Println("Not signed in.")
				return nil
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet,
				opts.serverURL+"/api/v1/auth/telegram/me", nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
			resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized {
				fmt.Println("Session expired. Run `loginctl login`.")
				return nil
			}
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
			var reply struct {
				User loginclient.SessionUser `json:"user"`
			}
			if err := json.Unmarshal(body, &reply); err != nil {
				return fmt.Errorf("decode reply: %w", err)
			}
			fmt.Printf("%s (%s)\n", reply.User.Email, reply.User.UserID)
			return nil
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.Remove(sessionPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func newLoadgenCommand(opts *options) *cobra.Command {
	var (
		profile     string
		duration    time.Duration
		rps         int
		concurrency int
		seed        int64
		ci          bool
	)
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Generate synthetic handshake traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			run := func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:     opts.serverURL,
					Profile:     profile,
					Duration:    duration,
					RPS:         rps,
					Concurrency: concurrency,
					Seed:        seed,
				})
				if err != nil {
					return nil, err
				}
				details := []string{fmt.Sprintf("total=%d failures=%d", res.TotalRequests, res.Failures)}
				for class, n := range res.StatusClasses {
					details = append(details, fmt.Sprintf("%s=%d", class, n))
				}
				return details, nil
			}
			if ci {
				details, err := run(cmd.Context())
				common.PrintCIResult(err == nil, "loginctl loadgen", details, err)
				return err
			}
			details, err := ui.Run("loginctl loadgen", run)
			for _, d := range details {
				fmt.Println(d)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "mixed", "request mix: poll, auth, mixed")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "run duration")
	cmd.Flags().IntVar(&rps, "rps", 20, "requests per second")
	cmd.Flags().IntVar(&concurrency, "concurrency", 6, "parallel workers")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().BoolVar(&ci, "ci", false, "non-interactive machine-readable output")
	return cmd
}

// eventRelay bridges orchestrator events into whichever UI program is
// running; events emitted before a UI attaches are dropped, which is
// fine because the model starts from the current state anyway.
type eventRelay struct {
	mu   sync.Mutex
	sink func(loginclient.Event)
}

func (r *eventRelay) send(ev loginclient.Event) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

func (r *eventRelay) attach(p *tea.Program) {
	r.mu.Lock()
	r.sink = func(ev loginclient.Event) { p.Send(ev) }
	r.mu.Unlock()
}

func buildOrchestrator(opts *options) (*loginclient.Orchestrator, *eventRelay, error) {
	if opts.botUsername == "" {
		return nil, nil, fmt.Errorf("bot username is required: set --bot or BOT_USERNAME")
	}
	relay := &eventRelay{}
	o, err := loginclient.NewOrchestrator(loginclient.Options{
		API:         loginclient.NewAPIClient(opts.serverURL),
		BotUsername: opts.botUsername,
		Browser:     browserFor(opts),
		Recovery:    loginclient.NewFileRecoveryStore(loginclient.DefaultRecoveryPath()),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		PollBudget:  opts.timeout,
		Events:      relay.send,
	})
	if err != nil {
		return nil, nil, err
	}
	return o, relay, nil
}

func browserFor(opts *options) loginclient.BrowserOpener {
	if opts.noBrowser {
		return nil
	}
	return systemBrowser()
}

func runHandshakeUI(o *loginclient.Orchestrator, relay *eventRelay, link string) error {
	model := newLoginModel(o, link)
	p := tea.NewProgram(model)
	relay.attach(p)

	final, err := p.Run()
	if err != nil {
		return err
	}
	m, ok := final.(loginModel)
	if !ok {
		return nil
	}
	switch m.state {
	case loginclient.StateSessionEstablished:
		if m.grant != nil {
			if err := saveSession(m.grant); err != nil {
				fmt.Fprintf(os.Stderr, "warning: could not persist session: %v\n", err)
			}
			fmt.Printf("Signed in as %s\n", m.grant.User.Email)
		}
		return nil
	case loginclient.StateCancelled:
		return nil
	default:
		if m.flowErr != nil {
			return errors.New(loginclient.UserMessage(m.flowErr))
		}
		return nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func sessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "telegram-login", "session.json")
}

func saveSession(grant *loginclient.SessionGrant) error {
	if err := os.MkdirAll(filepath.Dir(sessionPath()), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(grant)
	if err != nil {
		return err
	}
	return os.WriteFile(sessionPath(), data, 0o600)
}

func loadSession() (*loginclient.SessionGrant, error) {
	data, err := os.ReadFile(sessionPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var grant loginclient.SessionGrant
	if err := json.Unmarshal(data, &grant); err != nil {
		return nil, nil
	}
	return &grant, nil
}
