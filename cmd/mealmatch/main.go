package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/stellarlinkco/mealmatch/internal/backend"
	"github.com/stellarlinkco/mealmatch/internal/channel"
	"github.com/stellarlinkco/mealmatch/internal/coach"
	"github.com/stellarlinkco/mealmatch/internal/config"
	"github.com/stellarlinkco/mealmatch/internal/cron"
	"github.com/stellarlinkco/mealmatch/internal/memory"
	"github.com/stellarlinkco/mealmatch/internal/scoring"
	"github.com/stellarlinkco/mealmatch/internal/transcript"
)

// Session is a wired coach plus the stores behind it. Memory, Store and
// Snapshots are nil when persistence is unavailable.
type Session struct {
	Coach     channel.Turner
	Memory    *memory.Conversation
	Store     *transcript.Store
	Snapshots *cron.Service
}

func (s *Session) Close() {
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			log.Printf("[transcript] close store: %v", err)
		}
	}
}

// SessionFactory creates a Session from config (allows mocking in tests)
type SessionFactory func(cfg *config.Config) (*Session, error)

// DefaultSessionFactory wires both model backends, the summarizer, the
// scoring policy and the transcript sinks.
func DefaultSessionFactory(cfg *config.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrMissingCredentials) {
			return nil, fmt.Errorf("%w. Run 'mealmatch onboard' and fill in %s", err, config.EnvPath())
		}
		return nil, err
	}

	policy, err := scoring.PolicyByName(cfg.Agent.Scoring)
	if err != nil {
		return nil, err
	}

	var backends [2]backend.Backend
	for i, name := range cfg.Agent.Order {
		b, err := backend.New(cfg, name)
		if err != nil {
			return nil, err
		}
		backends[i] = b
	}

	summarizer, err := backend.New(cfg, cfg.Memory.Summarizer)
	if err != nil {
		return nil, fmt.Errorf("summarizer: %w", err)
	}
	mem := memory.NewConversation(summarizer)

	timeout, err := cfg.TurnTimeout()
	if err != nil {
		return nil, err
	}

	sess := &Session{Memory: mem}
	sinks := transcript.MultiSink{transcript.NewFileSink(cfg.Transcript.Path)}

	store, err := transcript.NewStore(cfg.Transcript.DBPath)
	if err != nil {
		log.Printf("[transcript] turn store unavailable: %v", err)
	} else {
		sess.Store = store
		sinks = append(sinks, store)

		restored, err := store.LatestSummary(context.Background())
		if err != nil {
			log.Printf("[memory] load snapshot: %v", err)
		}
		if restored != "" {
			mem.Restore(restored)
			log.Printf("[memory] restored summary (%d chars)", len(restored))
		}
		sess.Snapshots = cron.NewService(cfg.Memory.SnapshotSchedule, mem, store)
		sess.Snapshots.Seed(restored)
	}

	c, err := coach.New(coach.Options{
		Backends: backends,
		Policy:   policy,
		Memory:   mem,
		Sink:     sinks,
		Timeout:  timeout,
	})
	if err != nil {
		sess.Close()
		return nil, err
	}
	sess.Coach = c
	return sess, nil
}

// ChatOptions for running chat with custom dependencies
type ChatOptions struct {
	SessionFactory SessionFactory
	Stdin          io.Reader
	Stdout         io.Writer
	Stderr         io.Writer
}

// TelegramOptions for serving the bot with custom dependencies
type TelegramOptions struct {
	SessionFactory SessionFactory
	BotFactory     channel.BotFactory
}

var rootCmd = &cobra.Command{
	Use:   "mealmatch",
	Short: "mealmatch - nutrition coach that keeps the better of two model answers",
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the coach in single message or REPL mode",
	RunE:  runChat,
}

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Serve the coach over a Telegram bot",
	RunE:  runTelegram,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config, key file and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mealmatch status",
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent turns",
	RunE:  runHistory,
}

var (
	messageFlag string
	limitFlag   int
)

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	historyCmd.Flags().IntVarP(&limitFlag, "limit", "n", config.DefaultHistoryLimit, "Number of turns to show")
	rootCmd.AddCommand(chatCmd, telegramCmd, onboardCmd, statusCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	return runChatWithOptions(ChatOptions{})
}

// runChatWithOptions runs chat with injectable dependencies for testing
func runChatWithOptions(opts ChatOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	factory := opts.SessionFactory
	if factory == nil {
		factory = DefaultSessionFactory
	}
	sess, err := factory(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	ctx := context.Background()
	defer saveSnapshot(ctx, sess)

	// Single message mode
	if messageFlag != "" {
		reply, err := sess.Coach.Turn(ctx, messageFlag)
		if err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		printReply(stdout, reply)
		return nil
	}

	// REPL mode
	fmt.Fprintln(stdout, coach.Welcome)
	fmt.Fprintln(stdout, "\nType 'exit' to quit.")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\nUser: ")
		if !scanner.Scan() {
			break
		}
		// the line is used as typed: only an exact "exit" (any case) quits,
		// and blank lines are still sent as a turn
		input := scanner.Text()
		if strings.ToLower(input) == "exit" {
			fmt.Fprintln(stdout, "\n"+coach.Farewell)
			break
		}

		reply, err := sess.Coach.Turn(ctx, input)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			fmt.Fprintln(stdout, coach.ErrorStyle.Render(coach.Unavailable))
			continue
		}
		printReply(stdout, reply)
	}
	return scanner.Err()
}

func printReply(w io.Writer, reply *coach.Reply) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, coach.RenderScores(reply))
	fmt.Fprintln(w)
	fmt.Fprintln(w, coach.RenderAnswer(reply))
}

func saveSnapshot(ctx context.Context, sess *Session) {
	if sess.Snapshots == nil {
		return
	}
	if _, err := sess.Snapshots.Snapshot(ctx); err != nil {
		log.Printf("[memory] snapshot on exit: %v", err)
	}
}

func runTelegram(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runTelegramWithOptions(ctx, TelegramOptions{})
}

// runTelegramWithOptions serves until ctx is done or polling stops.
func runTelegramWithOptions(ctx context.Context, opts TelegramOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Channels.Telegram.Token == "" {
		return fmt.Errorf("telegram token not set. Set channels.telegram.token in %s or MEALMATCH_TELEGRAM_TOKEN", config.ConfigPath())
	}

	factory := opts.SessionFactory
	if factory == nil {
		factory = DefaultSessionFactory
	}
	sess, err := factory(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	var ch *channel.Telegram
	if opts.BotFactory != nil {
		ch, err = channel.NewTelegramWithFactory(cfg.Channels.Telegram, sess.Coach, opts.BotFactory)
	} else {
		ch, err = channel.NewTelegram(cfg.Channels.Telegram, sess.Coach)
	}
	if err != nil {
		return fmt.Errorf("init telegram channel: %w", err)
	}

	if sess.Snapshots != nil {
		if err := sess.Snapshots.Start(ctx); err != nil {
			return err
		}
		defer sess.Snapshots.Stop()
	}

	if err := ch.Start(ctx); err != nil {
		return err
	}
	log.Printf("[telegram] serving, press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case <-ch.Done():
	}
	_ = ch.Stop()
	saveSnapshot(context.Background(), sess)
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, dir := range []string{filepath.Dir(config.EnvPath()), filepath.Dir(cfg.Transcript.DBPath), filepath.Dir(cfg.Transcript.Path)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	writeIfNotExists(config.EnvPath(), defaultEnvFile, 0600)

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Put your keys in %s\n", config.EnvPath())
	fmt.Println("  2. Or set OPENAI_API_KEY and CLAUDE_API_KEY")
	fmt.Println("  3. Run 'mealmatch chat -m \"vegan high protein breakfast\"' to test")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("OpenAI: %s (key %s)\n", cfg.Providers.OpenAI.Model, maskKey(cfg.Providers.OpenAI.APIKey))
	fmt.Printf("Anthropic: %s (key %s)\n", cfg.Providers.Anthropic.Model, maskKey(cfg.Providers.Anthropic.APIKey))
	fmt.Printf("Scoring: %s\n", cfg.Agent.Scoring)
	fmt.Printf("Order: %s\n", strings.Join(cfg.Agent.Order, ", "))
	fmt.Printf("Summarizer: %s\n", cfg.Memory.Summarizer)
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)

	if info, err := os.Stat(cfg.Transcript.Path); err != nil {
		fmt.Println("Transcript: none yet")
	} else {
		fmt.Printf("Transcript: %s (%s)\n", cfg.Transcript.Path, humanize.Bytes(uint64(info.Size())))
	}

	if _, err := os.Stat(cfg.Transcript.DBPath); err != nil {
		fmt.Println("Turns: none yet")
		return nil
	}
	store, err := transcript.NewStore(cfg.Transcript.DBPath)
	if err != nil {
		fmt.Printf("Turns: error (%v)\n", err)
		return nil
	}
	defer store.Close()

	ctx := context.Background()
	n, err := store.Count(ctx)
	if err != nil {
		fmt.Printf("Turns: error (%v)\n", err)
		return nil
	}
	last := ""
	if recent, err := store.Recent(ctx, 1); err == nil && len(recent) > 0 {
		last = ", last " + humanize.Time(recent[0].Time)
	}
	fmt.Printf("Turns: %s%s\n", humanize.Comma(int64(n)), last)

	if summary, err := store.LatestSummary(ctx); err == nil && summary != "" {
		fmt.Printf("Memory: %s snapshot\n", humanize.Bytes(uint64(len(summary))))
	} else {
		fmt.Println("Memory: empty")
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	return printHistory(cmd.OutOrStdout(), limitFlag)
}

func printHistory(w io.Writer, limit int) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if _, err := os.Stat(cfg.Transcript.DBPath); err != nil {
		fmt.Fprintln(w, "No turns recorded yet.")
		return nil
	}
	store, err := transcript.NewStore(cfg.Transcript.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "No turns recorded yet.")
		return nil
	}
	// oldest first
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		fmt.Fprintf(w, "[%s] %s\n", humanize.Time(rec.Time), rec.Input)
		for _, c := range rec.Candidates {
			fmt.Fprintf(w, "  %s: %d (%s)\n", c.Backend, c.Result.Total, c.Result.Breakdown)
		}
		fmt.Fprintf(w, "  Best Model: %s, Diet: %s, Policy: %s\n", rec.Winner, rec.Diet, rec.Policy)
	}
	return nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}

func writeIfNotExists(path, content string, perm os.FileMode) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), perm)
		fmt.Printf("  Created: %s\n", path)
	}
}

const defaultEnvFile = `# API keys for the two coaching backends.
OPENAI_API_KEY=
CLAUDE_API_KEY=
`
