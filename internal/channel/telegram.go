// Package channel serves the coach over chat platforms.
package channel

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stellarlinkco/mealmatch/internal/coach"
	"github.com/stellarlinkco/mealmatch/internal/config"
)

const telegramChannelName = "telegram"

// Telegram caps messages at 4096 characters.
const maxMessageLen = 4000

// Turner runs one coach turn.
type Turner interface {
	Turn(ctx context.Context, input string) (*coach.Reply, error)
}

// TelegramBot interface for mocking telegram bot API
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() { w.bot.StopReceivingUpdates() }

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) { return w.bot.Send(c) }

func (w *tgBotWrapper) GetSelf() tgbotapi.User { return w.bot.Self }

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// Telegram answers each incoming message with one coach turn. Messages are
// handled one at a time in arrival order.
type Telegram struct {
	token      string
	proxy      string
	timeout    int
	allowFrom  map[string]bool
	coach      Turner
	botFactory BotFactory

	mu     sync.Mutex
	bot    TelegramBot
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTelegram(cfg config.TelegramConfig, c Turner) (*Telegram, error) {
	return NewTelegramWithFactory(cfg, c, defaultBotFactory)
}

// NewTelegramWithFactory creates a Telegram channel with a custom bot factory.
func NewTelegramWithFactory(cfg config.TelegramConfig, c Turner, factory BotFactory) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if c == nil {
		return nil, fmt.Errorf("telegram channel needs a coach")
	}
	allow := make(map[string]bool, len(cfg.AllowFrom))
	for _, id := range cfg.AllowFrom {
		id = strings.TrimPrefix(strings.TrimSpace(id), "@")
		if id != "" {
			allow[id] = true
		}
	}
	return &Telegram{
		token:      cfg.Token,
		proxy:      cfg.Proxy,
		timeout:    config.DefaultTelegramTimeout,
		allowFrom:  allow,
		coach:      c,
		botFactory: factory,
	}, nil
}

func (t *Telegram) Name() string { return telegramChannelName }

// IsAllowed reports whether a sender may talk to the bot. An empty allow
// list admits everyone.
func (t *Telegram) IsAllowed(senderID, username string) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	return t.allowFrom[senderID] || (username != "" && t.allowFrom[username])
}

func (t *Telegram) httpClient() (*http.Client, error) {
	if t.proxy == "" {
		return http.DefaultClient, nil
	}
	proxyURL, err := url.Parse(t.proxy)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	return &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}, nil
}

func (t *Telegram) initBot() error {
	client, err := t.httpClient()
	if err != nil {
		return err
	}
	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.mu.Lock()
	t.bot = bot
	t.mu.Unlock()
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

// Start begins long polling. It returns once polling is running.
func (t *Telegram) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	bot := t.bot
	t.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.timeout
	updates := bot.GetUpdatesChan(u)

	go func() {
		defer close(done)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil {
					continue
				}
				t.handleMessage(ctx, update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("[telegram] polling started")
	return nil
}

// Done is closed when the polling loop exits.
func (t *Telegram) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)
	if !t.IsAllowed(senderID, msg.From.UserName) {
		log.Printf("[telegram] rejected message from %s (%s)", senderID, msg.From.UserName)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" {
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			t.reply(msg.Chat.ID, coach.Welcome)
			return
		}
	}

	reply, err := t.coach.Turn(ctx, text)
	if err != nil {
		log.Printf("[telegram] turn for %s failed: %v", senderID, err)
		t.reply(msg.Chat.ID, coach.Unavailable)
		return
	}
	log.Printf("[telegram] %s answered by %s (diet %s)", senderID, reply.Winner.Backend, reply.Diet)
	t.reply(msg.Chat.ID, reply.Answer())
}

func (t *Telegram) reply(chatID int64, text string) {
	if err := t.Send(chatID, text); err != nil {
		log.Printf("[telegram] send to %d failed: %v", chatID, err)
	}
}

func (t *Telegram) Stop() error {
	t.mu.Lock()
	cancel := t.cancel
	bot := t.bot
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if bot != nil {
		bot.StopReceivingUpdates()
	}
	log.Printf("[telegram] stopped")
	return nil
}

// SetBot sets the bot (for testing)
func (t *Telegram) SetBot(bot TelegramBot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bot = bot
}

// Send delivers text to a chat, split into chunks that fit one message.
// Each chunk is sent as HTML first and falls back to plain text.
func (t *Telegram) Send(chatID int64, text string) error {
	t.mu.Lock()
	bot := t.bot
	t.mu.Unlock()
	if bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	for _, chunk := range splitMessage(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(chatID, toTelegramHTML(chunk))
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := bot.Send(msg); err != nil {
			msg.ParseMode = ""
			msg.Text = chunk
			if _, err2 := bot.Send(msg); err2 != nil {
				return fmt.Errorf("send telegram message: %w", err2)
			}
		}
	}
	return nil
}

// splitMessage cuts s into pieces of at most n bytes, preferring newline
// boundaries and never splitting a UTF-8 sequence.
func splitMessage(s string, n int) []string {
	var chunks []string
	for len(s) > n {
		cut := strings.LastIndex(s[:n], "\n")
		if cut <= 0 {
			cut = n
			for cut > 0 && !isRuneStart(s[cut]) {
				cut--
			}
			if cut == 0 {
				cut = n
			}
		}
		chunks = append(chunks, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// toTelegramHTML converts the markdown coaches tend to produce into the
// subset of HTML Telegram accepts.
func toTelegramHTML(s string) string {
	s = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, "#")
		if trimmed != line && strings.HasPrefix(trimmed, " ") {
			lines[i] = "<b>" + strings.TrimSpace(trimmed) + "</b>"
		}
	}
	s = strings.Join(lines, "\n")

	s = wrapPairs(s, "```", "<pre>", "</pre>", stripLanguageTag)
	s = wrapPairs(s, "`", "<code>", "</code>", nil)
	s = wrapPairs(s, "**", "<b>", "</b>", nil)
	s = wrapPairs(s, "*", "<i>", "</i>", nil)
	return s
}

// wrapPairs replaces each matched pair of delim with open/close tags.
// An unmatched trailing delimiter is left as is.
func wrapPairs(s, delim, open, close string, inner func(string) string) string {
	var sb strings.Builder
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			break
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			break
		}
		end += start + len(delim)
		body := s[start+len(delim) : end]
		if inner != nil {
			body = inner(body)
		}
		sb.WriteString(s[:start])
		sb.WriteString(open)
		sb.WriteString(body)
		sb.WriteString(close)
		s = s[end+len(delim):]
	}
	sb.WriteString(s)
	return sb.String()
}

func stripLanguageTag(code string) string {
	nl := strings.Index(code, "\n")
	if nl < 0 {
		return code
	}
	first := strings.TrimSpace(code[:nl])
	if first != "" && !strings.Contains(first, " ") {
		return code[nl+1:]
	}
	return code
}
