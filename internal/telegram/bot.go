package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"courier/internal/agent"
	"courier/internal/providers"
)

const (
	defaultPollTimeout    = 30 * time.Second
	defaultTaskTimeout    = 5 * time.Minute
	defaultJobQueueDepth  = 16
	defaultMaxConcurrency = 3
	voiceFileLimit        = 20 * 1024 * 1024
)

type job struct {
	ChatID    int64
	MessageID int64
	Text      string
}

type chatWorker struct {
	Jobs chan job
}

// Bot long-polls getUpdates and hands each message to the router. Messages
// are serialized per chat and parallel across chats, with a global
// concurrency cap.
type Bot struct {
	API         *API
	Router      *agent.Router
	Transcriber *providers.Transcriber
	Logger      *zap.Logger

	// Allowed restricts which chat ids the bot answers. Empty allows all.
	Allowed map[int64]bool

	PollTimeout    time.Duration
	TaskTimeout    time.Duration
	MaxConcurrency int

	mu      sync.Mutex
	workers map[int64]*chatWorker
	sem     chan struct{}
}

func NewBot(api *API, router *agent.Router, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		API:            api,
		Router:         router,
		Logger:         logger,
		Allowed:        map[int64]bool{},
		PollTimeout:    defaultPollTimeout,
		TaskTimeout:    defaultTaskTimeout,
		MaxConcurrency: defaultMaxConcurrency,
		workers:        make(map[int64]*chatWorker),
	}
}

func (b *Bot) allowed(chatID int64) bool {
	return len(b.Allowed) == 0 || b.Allowed[chatID]
}

// Run polls until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.API == nil {
		return errors.New("telegram api is not configured")
	}
	if b.Router == nil {
		return errors.New("telegram router is not configured")
	}

	maxConc := b.MaxConcurrency
	if maxConc <= 0 {
		maxConc = defaultMaxConcurrency
	}
	b.sem = make(chan struct{}, maxConc)

	me, err := b.API.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	b.Logger.Info("telegram bot started",
		zap.String("username", me.Username),
		zap.Int64("bot_id", me.ID),
		zap.Duration("poll_timeout", b.PollTimeout),
		zap.Int("max_concurrency", maxConc),
	)

	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		updates, nextOffset, err := b.API.GetUpdates(ctx, offset, b.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.Logger.Warn("telegram getUpdates failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		offset = nextOffset

		for _, update := range updates {
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update Update) {
	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.From != nil && msg.From.IsBot {
		return
	}
	chatID := msg.Chat.ID

	text, err := b.normalize(ctx, msg)
	if err != nil {
		b.Logger.Warn("message normalization failed", zap.Int64("chat_id", chatID), zap.Error(err))
		_ = b.API.SendMessage(ctx, chatID, "error: "+err.Error())
		return
	}
	if text == "" {
		return
	}

	switch command(text) {
	case "/start", "/help":
		_ = b.API.SendMessage(ctx, chatID,
			"Send me a request and I will work through it, using tools when needed.\n"+
				"Commands: /id shows this chat's id.")
		return
	case "/id":
		_ = b.API.SendMessage(ctx, chatID, fmt.Sprintf("chat_id=%d type=%s", chatID, msg.Chat.Type))
		return
	}

	if !b.allowed(chatID) {
		b.Logger.Warn("unauthorized chat", zap.Int64("chat_id", chatID))
		_ = b.API.SendMessage(ctx, chatID, "unauthorized")
		return
	}

	b.enqueue(ctx, job{ChatID: chatID, MessageID: msg.MessageID, Text: text})
}

// normalize folds the message variants into plain request text: text,
// caption, a quoted reply, and voice notes via transcription.
func (b *Bot) normalize(ctx context.Context, msg *Message) (string, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}

	if msg.Voice != nil {
		transcript, err := b.transcribeVoice(ctx, msg.Voice)
		if err != nil {
			return "", err
		}
		if text == "" {
			text = transcript
		} else {
			text = text + "\n" + transcript
		}
	}

	if msg.ReplyTo != nil {
		quoted := strings.TrimSpace(msg.ReplyTo.Text)
		if quoted == "" {
			quoted = strings.TrimSpace(msg.ReplyTo.Caption)
		}
		if quoted != "" && text != "" {
			text = "Quoted message:\n> " + quoted + "\n\n" + text
		}
	}

	return strings.TrimSpace(text), nil
}

func (b *Bot) transcribeVoice(ctx context.Context, voice *Voice) (string, error) {
	if b.Transcriber == nil {
		return "", errors.New("voice messages are not supported (no transcriber configured)")
	}

	file, err := b.API.GetFile(ctx, voice.FileID)
	if err != nil {
		return "", fmt.Errorf("fetch voice file: %w", err)
	}
	audio, err := b.API.DownloadFile(ctx, file.FilePath, voiceFileLimit)
	if err != nil {
		return "", fmt.Errorf("download voice file: %w", err)
	}
	transcript, err := b.Transcriber.Transcribe(ctx, "voice.ogg", audio)
	if err != nil {
		return "", fmt.Errorf("transcribe voice: %w", err)
	}
	return transcript, nil
}

func (b *Bot) enqueue(ctx context.Context, item job) {
	b.mu.Lock()
	worker := b.workers[item.ChatID]
	if worker == nil {
		worker = &chatWorker{Jobs: make(chan job, defaultJobQueueDepth)}
		b.workers[item.ChatID] = worker
		go b.runWorker(ctx, item.ChatID, worker)
	}
	b.mu.Unlock()

	select {
	case worker.Jobs <- item:
		b.Logger.Debug("message enqueued", zap.Int64("chat_id", item.ChatID), zap.Int("text_len", len(item.Text)))
	default:
		b.Logger.Warn("chat queue full, dropping message", zap.Int64("chat_id", item.ChatID))
		_ = b.API.SendMessage(ctx, item.ChatID, "busy, try again in a moment")
	}
}

func (b *Bot) runWorker(ctx context.Context, chatID int64, worker *chatWorker) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-worker.Jobs:
			b.sem <- struct{}{}
			b.process(ctx, item)
			<-b.sem
		}
	}
}

func (b *Bot) process(ctx context.Context, item job) {
	stopTyping := b.startTyping(ctx, item.ChatID)
	defer stopTyping()

	taskCtx, cancel := context.WithTimeout(ctx, b.taskTimeout())
	defer cancel()

	inbound := agent.Inbound{
		ChatID:  strconv.FormatInt(item.ChatID, 10),
		Surface: "telegram",
		Text:    item.Text,
	}
	reply, err := b.Router.Handle(taskCtx, inbound, nil)
	if err != nil {
		if agent.IsUserCancelled(err) {
			return
		}
		b.Logger.Warn("turn failed", zap.Int64("chat_id", item.ChatID), zap.Error(err))
		_ = b.API.SendMessage(ctx, item.ChatID, "error: "+err.Error())
		return
	}

	if err := b.API.SendMessageChunked(ctx, item.ChatID, reply); err != nil {
		b.Logger.Warn("telegram send failed", zap.Int64("chat_id", item.ChatID), zap.Error(err))
	}
}

func (b *Bot) taskTimeout() time.Duration {
	if b.TaskTimeout > 0 {
		return b.TaskTimeout
	}
	return defaultTaskTimeout
}

// startTyping keeps the "typing" indicator alive while a turn runs. Telegram
// expires the indicator after a few seconds, so it is re-sent on a ticker.
func (b *Bot) startTyping(ctx context.Context, chatID int64) func() {
	tickerCtx, cancel := context.WithCancel(ctx)
	go func() {
		_ = b.API.SendChatAction(tickerCtx, chatID, "typing")
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-tickerCtx.Done():
				return
			case <-ticker.C:
				_ = b.API.SendChatAction(tickerCtx, chatID, "typing")
			}
		}
	}()
	return cancel
}

func command(text string) string {
	word := strings.Fields(text)[0]
	if !strings.HasPrefix(word, "/") {
		return ""
	}
	// Group chats address commands as /cmd@botname.
	if at := strings.Index(word, "@"); at > 0 {
		word = word[:at]
	}
	return strings.ToLower(word)
}
