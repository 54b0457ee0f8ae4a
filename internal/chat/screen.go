// Package chat holds the per-chat conversation flow: a Router that tracks the
// selected role and the Screen that exchanges messages with the assistant.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"agrisaarthi/internal/bus"
	"agrisaarthi/internal/domain"
	"agrisaarthi/internal/metrics"

	"github.com/google/uuid"
)

// FallbackReply replaces the assistant answer when advice or speech synthesis fails.
const FallbackReply = "Sorry, I encountered an error. Please try again."

// voicePlaceholder stands in for recorded audio; nothing decodes it.
var voicePlaceholder = []byte("mock audio data")

var greetings = map[domain.Role]string{
	domain.RoleFarmer:   "Hello! I'm your AgriSaarthi assistant. How can I help you today? You can type, speak, or take a photo of your crops.",
	domain.RoleGardener: "Hello! I'm your AgriSaarthi gardening assistant. Ask me anything about plants, gardening tips, or plant care!",
}

// Greeting returns the opening assistant message for a role.
func Greeting(role domain.Role) string { return greetings[role] }

// State is the screen's position in its request cycle. Every request starts
// and ends in StateIdle; only one request runs at a time.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateAnalyzing State = "analyzing"
	StatePending   State = "pending"
	StateClosed    State = "closed"
)

// ScreenConfig wires a Screen to its collaborators. Now and NewID default to
// time.Now and UUIDv7.
type ScreenConfig struct {
	ChatID   string
	Role     domain.Role
	Services domain.Services
	Store    domain.ConversationStore
	Events   *bus.EventBus
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

// Screen is one conversation with the assistant for a chosen role.
type Screen struct {
	chatID   string
	convID   string
	role     domain.Role
	services domain.Services
	store    domain.ConversationStore
	events   *bus.EventBus
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu         sync.Mutex
	state      State
	input      string
	attachment *domain.ImageFile
}

// NewScreen opens a conversation for cfg.Role and appends its greeting.
func NewScreen(ctx context.Context, cfg ScreenConfig) (*Screen, error) {
	if !cfg.Role.Valid() {
		return nil, fmt.Errorf("new screen: %w", domain.ErrInvalidRole)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = newMessageID
	}

	s := &Screen{
		chatID:   cfg.ChatID,
		convID:   cfg.NewID(),
		role:     cfg.Role,
		services: cfg.Services,
		store:    cfg.Store,
		events:   cfg.Events,
		logger:   cfg.Logger.With("chat", cfg.ChatID, "role", cfg.Role),
		now:      cfg.Now,
		newID:    cfg.NewID,
		state:    StateIdle,
	}
	if err := s.store.CreateConversation(ctx, s.convID, s.role); err != nil {
		return nil, fmt.Errorf("new screen: %w", err)
	}
	if err := s.append(ctx, s.message(domain.SenderAI, Greeting(s.role), "", domain.TypeNone)); err != nil {
		if derr := s.store.DiscardConversation(context.WithoutCancel(ctx), s.convID); derr != nil {
			s.logger.Warn("discard conversation", "conversation", s.convID, "err", derr)
		}
		return nil, fmt.Errorf("new screen: %w", err)
	}
	metrics.ActiveScreens.Inc()
	return s, nil
}

func newMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (s *Screen) Role() domain.Role { return s.role }
func (s *Screen) ChatID() string    { return s.chatID }

func (s *Screen) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Loading reports whether an advice request is in flight.
func (s *Screen) Loading() bool { return s.State() == StatePending }

// Recording reports whether a voice note is being transcribed.
func (s *Screen) Recording() bool { return s.State() == StateRecording }

// Busy reports whether input affordances should be disabled.
func (s *Screen) Busy() bool {
	st := s.State()
	return st != StateIdle && st != StateClosed
}

func (s *Screen) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *Screen) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Messages returns the conversation in insertion order.
func (s *Screen) Messages(ctx context.Context) ([]domain.Message, error) {
	if s.State() == StateClosed {
		return nil, domain.ErrClosed
	}
	return s.store.Messages(ctx, s.convID)
}

// Send submits the current input as a text message.
func (s *Screen) Send(ctx context.Context) error {
	return s.SubmitText(ctx, s.Input(), domain.TypeText)
}

// SubmitText appends text as a user message and then the assistant reply.
// Blank text is ignored. It blocks until the reply is appended and returns
// domain.ErrBusy if another request is in flight.
func (s *Screen) SubmitText(ctx context.Context, text string, typ domain.MessageType) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if err := s.begin(StatePending); err != nil {
		return err
	}
	defer s.finish()
	return s.exchange(ctx, text, typ)
}

// SubmitVoice transcribes a placeholder recording and sends the result as a
// voice message. Farmer screens only.
func (s *Screen) SubmitVoice(ctx context.Context) error {
	if s.role != domain.RoleFarmer {
		return fmt.Errorf("voice input: %w", domain.ErrUnsupported)
	}
	if err := s.begin(StateRecording); err != nil {
		return err
	}
	defer s.finish()

	ctx = context.WithoutCancel(ctx)
	text, err := s.services.SpeechToText(ctx, voicePlaceholder)
	if err != nil {
		s.logger.Warn("speech to text failed", "err", err)
		return fmt.Errorf("speech to text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s.transition(StatePending)
	return s.exchange(ctx, text, domain.TypeVoice)
}

// Attach selects an image for the next SubmitImage. Farmer screens only.
func (s *Screen) Attach(img domain.ImageFile) error {
	if s.role != domain.RoleFarmer {
		return fmt.Errorf("image input: %w", domain.ErrUnsupported)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return domain.ErrClosed
	}
	s.attachment = &img
	return nil
}

// Attachment returns the selected image, or nil.
func (s *Screen) Attachment() *domain.ImageFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachment == nil {
		return nil
	}
	img := *s.attachment
	return &img
}

// SubmitImage analyzes the attached image and sends the diagnosis as an
// image message. Without an attachment it does nothing. The attachment is
// cleared whether or not the analysis starts.
func (s *Screen) SubmitImage(ctx context.Context) error {
	if s.role != domain.RoleFarmer {
		return fmt.Errorf("image input: %w", domain.ErrUnsupported)
	}

	s.mu.Lock()
	switch {
	case s.state == StateClosed:
		s.mu.Unlock()
		return domain.ErrClosed
	case s.attachment == nil:
		s.mu.Unlock()
		return nil
	case s.state != StateIdle:
		s.attachment = nil
		s.mu.Unlock()
		metrics.BusyRejections.Inc()
		return domain.ErrBusy
	}
	img := *s.attachment
	s.attachment = nil
	s.state = StateAnalyzing
	s.mu.Unlock()
	s.emitState(StateAnalyzing)
	defer s.finish()

	ctx = context.WithoutCancel(ctx)
	result, err := s.services.AnalyzeImage(ctx, img)
	if err != nil {
		s.logger.Warn("image analysis failed", "image", img.Name, "err", err)
		return fmt.Errorf("analyze image: %w", err)
	}
	s.transition(StatePending)
	return s.exchange(ctx, "Image Analysis: "+result, domain.TypeImage)
}

// Close discards the conversation. A request still in flight runs to the
// end, but its reply is dropped.
func (s *Screen) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.attachment = nil
	s.mu.Unlock()

	metrics.ActiveScreens.Dec()
	s.emitState(StateClosed)
	if err := s.store.DiscardConversation(context.Background(), s.convID); err != nil {
		return fmt.Errorf("discard conversation: %w", err)
	}
	return nil
}

// begin moves an idle screen into next.
func (s *Screen) begin(next State) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
	case StateClosed:
		s.mu.Unlock()
		return domain.ErrClosed
	default:
		s.mu.Unlock()
		metrics.BusyRejections.Inc()
		return domain.ErrBusy
	}
	s.state = next
	s.mu.Unlock()
	s.emitState(next)
	return nil
}

func (s *Screen) transition(next State) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()
	s.emitState(next)
}

func (s *Screen) finish() {
	s.transition(StateIdle)
}

// exchange runs one user message → assistant reply round. The caller owns
// the non-idle state for its whole duration.
func (s *Screen) exchange(ctx context.Context, text string, typ domain.MessageType) error {
	ctx = context.WithoutCancel(ctx)

	if err := s.append(ctx, s.message(s.role.Sender(), text, "", typ)); err != nil {
		return err
	}
	s.SetInput("")

	reply, err := s.reply(ctx, text)
	if err != nil {
		metrics.FallbackReplies.Inc()
		s.logger.Error("assistant reply failed", "err", err)
		reply = s.message(domain.SenderAI, FallbackReply, "", domain.TypeNone)
	}

	if err := s.append(ctx, reply); err != nil {
		if errors.Is(err, domain.ErrClosed) {
			s.logger.Debug("reply dropped, screen closed", "message", reply.ID)
			return nil
		}
		return err
	}
	return nil
}

func (s *Screen) reply(ctx context.Context, text string) (domain.Message, error) {
	advice, err := s.services.GenerateAdvice(ctx, text, s.role)
	if err != nil {
		return domain.Message{}, fmt.Errorf("generate advice: %w", err)
	}
	audioURL, err := s.services.TextToSpeech(ctx, advice)
	if err != nil {
		return domain.Message{}, fmt.Errorf("text to speech: %w", err)
	}
	return s.message(domain.SenderAI, advice, audioURL, domain.TypeNone), nil
}

func (s *Screen) message(sender domain.Sender, text, audioURL string, typ domain.MessageType) domain.Message {
	return domain.Message{
		ID:        s.newID(),
		Sender:    sender,
		Text:      text,
		AudioURL:  audioURL,
		Timestamp: s.now(),
		Type:      typ,
	}
}

func (s *Screen) append(ctx context.Context, m domain.Message) error {
	if s.State() == StateClosed {
		return domain.ErrClosed
	}
	if err := s.store.AppendMessage(ctx, s.convID, m); err != nil {
		return err
	}
	metrics.MessagesAppended.Inc()
	if s.events != nil {
		s.events.Emit(bus.Event{Type: bus.EventMessageAppended, ChatID: s.chatID, Message: &m})
	}
	return nil
}

func (s *Screen) emitState(st State) {
	if s.events != nil {
		s.events.Emit(bus.Event{Type: bus.EventScreenState, ChatID: s.chatID, State: string(st), Role: s.role})
	}
}
