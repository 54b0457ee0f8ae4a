package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"agrisaarthi/internal/bus"
	"agrisaarthi/internal/chat"
	"agrisaarthi/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramChatPrefix     = "telegram:"
	telegramMaxPhotoSize   = 10 << 20
)

// telegramAPI is the part of *tgbotapi.BotAPI the channel uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Telegram runs the chat as a Telegram bot. Every Telegram chat gets its own
// router; assistant replies are forwarded from message.appended events.
type Telegram struct {
	token     string
	allowFrom []int64
	hub       *chat.Hub
	logger    *slog.Logger
	client    *http.Client
	limiter   *RateLimiter

	api     telegramAPI
	subs    []subscription
	retryIn time.Duration
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string
	Hub       *chat.Hub
	Limiter   *RateLimiter
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		hub:       cfg.Hub,
		logger:    cfg.Logger,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   cfg.Limiter,
		retryIn:   time.Second,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)
	t.attach(bot)
	defer t.detach()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			// Each exchange blocks for the simulated latency.
			go t.handleUpdate(ctx, update)
		}
	}
}

// Stop is a no-op: polling ends when Start's context is cancelled.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) attach(api telegramAPI) {
	t.api = api
	events := t.hub.Events()
	t.subs = []subscription{
		{bus.EventMessageAppended, events.On(bus.EventMessageAppended, t.onMessage)},
	}
}

func (t *Telegram) detach() {
	for _, s := range t.subs {
		t.hub.Events().Off(s.event, s.id)
	}
	t.subs = nil
}

func telegramChatID(id int64) string { return telegramChatPrefix + strconv.FormatInt(id, 10) }

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	tgChat := msg.Chat.ID
	if !t.isAllowed(msg.From.ID) {
		t.logger.Warn("unauthorized telegram user", "user_id", msg.From.ID, "username", msg.From.UserName)
		t.sendMessage(tgChat, "Unauthorized. Your user ID is not in the allow list.")
		return
	}
	chatID := telegramChatID(tgChat)

	if msg.IsCommand() {
		cmd := chat.ParseCommand(msg.Text)
		if cmd.Appends() && !t.limiter.Allow(chatID) {
			t.sendMessage(tgChat, slowDown)
			return
		}
		res := t.hub.HandleCommand(ctx, chatID, cmd)
		switch {
		case !res.Handled:
			t.sendMessage(tgChat, "Unknown command. Type /help for available commands.")
		case res.Response != "":
			t.sendMessage(tgChat, res.Response)
		}
		return
	}

	screen, err := t.hub.Router(chatID).Screen()
	if err != nil {
		t.sendMessage(tgChat, chat.Notice(err))
		return
	}
	if !t.limiter.Allow(chatID) {
		t.sendMessage(tgChat, slowDown)
		return
	}

	switch {
	case msg.Voice != nil:
		t.typing(tgChat, tgbotapi.ChatRecordVoice)
		err = screen.SubmitVoice(ctx)
	case len(msg.Photo) > 0:
		t.typing(tgChat, tgbotapi.ChatUploadPhoto)
		err = t.submitPhoto(ctx, screen, msg.Photo)
	case strings.TrimSpace(msg.Text) != "":
		t.logger.Info("telegram message received", "chat_id", tgChat, "text_len", len(msg.Text))
		t.typing(tgChat, tgbotapi.ChatTyping)
		err = screen.SubmitText(ctx, msg.Text, domain.TypeText)
	default:
		return
	}
	if err != nil {
		t.sendMessage(tgChat, chat.Notice(err))
	}
}

func (t *Telegram) submitPhoto(ctx context.Context, screen *chat.Screen, sizes []tgbotapi.PhotoSize) error {
	// Telegram lists sizes smallest first.
	photo := sizes[len(sizes)-1]
	data, err := t.download(ctx, photo.FileID)
	if err != nil {
		return err
	}
	img, err := domain.NewImageFile(photo.FileUniqueID+".jpg", data)
	if err != nil {
		return err
	}
	if err := screen.Attach(img); err != nil {
		return err
	}
	return screen.SubmitImage(ctx)
}

func (t *Telegram) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := t.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("photo url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download photo: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, telegramMaxPhotoSize))
}

// onMessage forwards assistant messages; the user already sees their own.
func (t *Telegram) onMessage(e bus.Event) {
	if e.Message == nil || e.Message.Sender != domain.SenderAI {
		return
	}
	raw, ok := strings.CutPrefix(e.ChatID, telegramChatPrefix)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		t.logger.Error("invalid telegram chat id", "chat_id", e.ChatID, "err", err)
		return
	}
	text := e.Message.Text
	if e.Message.AudioURL != "" {
		text += "\n\n🔊 " + e.Message.AudioURL
	}
	t.sendMessage(id, text)
}

func (t *Telegram) typing(chatID int64, action string) {
	_, _ = t.api.Request(tgbotapi.NewChatAction(chatID, action))
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// sendMessage splits text at Telegram's length limit, preferring line breaks.
func (t *Telegram) sendMessage(chatID int64, text string) {
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
				for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
					cutAt--
				}
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}
		t.sendChunk(chatID, chunk)
	}
}

func (t *Telegram) sendChunk(chatID int64, text string) {
	var err error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		if _, err = t.api.Send(tgbotapi.NewMessage(chatID, text)); err == nil {
			return
		}
		if attempt == telegramMaxSendRetries {
			break
		}
		backoff := time.Duration(attempt+1) * t.retryIn
		if strings.Contains(err.Error(), "Too Many Requests") {
			backoff *= 3
		}
		t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
		time.Sleep(backoff)
	}
	t.logger.Error("telegram send failed after retries", "err", err, "attempts", telegramMaxSendRetries+1)
}
