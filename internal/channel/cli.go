package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"agrisaarthi/internal/bus"
	"agrisaarthi/internal/chat"
	"agrisaarthi/internal/domain"
	"agrisaarthi/internal/render"
)

const (
	cliChatID     = "cli"
	cliRolePrompt = "Choose your role:\n  1) Farmer\n  2) Gardener"
)

// CLI is an interactive terminal chat for a single local user.
type CLI struct {
	hub      *chat.Hub
	chatID   string
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer
	player   *render.Player
	readFile func(string) ([]byte, error)
	spinner  bool

	outMu     sync.Mutex
	audio     []string
	thinking  bool
	thinkStop chan struct{}
	thinkDone chan struct{}
	subs      []subscription
}

type subscription struct{ event, id string }

type CLIConfig struct {
	Hub      *chat.Hub
	ChatID   string
	Logger   *slog.Logger
	In       io.Reader
	Out      io.Writer
	Player   *render.Player
	ReadFile func(string) ([]byte, error)
	Spinner  bool
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.ChatID == "" {
		cfg.ChatID = cliChatID
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Player == nil {
		cfg.Player = render.NewPlayer(render.DefaultPlayback)
	}
	if cfg.ReadFile == nil {
		cfg.ReadFile = os.ReadFile
	}
	return &CLI{
		hub:      cfg.Hub,
		chatID:   cfg.ChatID,
		logger:   cfg.Logger,
		in:       cfg.In,
		out:      cfg.Out,
		player:   cfg.Player,
		readFile: cfg.ReadFile,
		spinner:  cfg.Spinner,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the REPL until EOF, /quit or ctx is cancelled.
func (c *CLI) Start(ctx context.Context) error {
	events := c.hub.Events()
	c.subs = []subscription{
		{bus.EventMessageAppended, events.On(bus.EventMessageAppended, c.onMessage)},
		{bus.EventScreenState, events.On(bus.EventScreenState, c.onState)},
	}
	defer c.unsubscribe()

	c.println("AgriSaarthi. Type /help for commands, /quit to exit.")
	c.println(cliRolePrompt)
	c.prompt()

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}
		if line != "" {
			c.handleLine(ctx, line)
		}
		c.prompt()
	}
}

func (c *CLI) Stop() error {
	c.stopThinking()
	c.player.Stop()
	return nil
}

func (c *CLI) unsubscribe() {
	for _, s := range c.subs {
		c.hub.Events().Off(s.event, s.id)
	}
	c.subs = nil
	c.stopThinking()
}

func (c *CLI) handleLine(ctx context.Context, line string) {
	router := c.hub.Router(c.chatID)

	if router.Role() == domain.RoleUnset {
		if role, err := domain.ParseRole(strings.TrimPrefix(line, "/")); err == nil {
			if _, err := router.Select(ctx, role); err != nil {
				c.println(chat.Notice(err))
			}
			return
		}
	}

	if cmd := chat.ParseCommand(line); cmd != nil {
		c.handleCommand(ctx, cmd)
		return
	}

	screen, err := router.Screen()
	if err != nil {
		c.println("Please enter 1 or 2.")
		return
	}
	if err := screen.SubmitText(ctx, line, domain.TypeText); err != nil {
		c.println(chat.Notice(err))
	}
}

func (c *CLI) handleCommand(ctx context.Context, cmd *chat.Command) {
	switch cmd.Name {
	case "image":
		c.submitImage(ctx, cmd)
		return
	case "play":
		c.play(cmd)
		return
	case "back":
		c.outMu.Lock()
		c.audio = nil
		c.outMu.Unlock()
	}

	res := c.hub.HandleCommand(ctx, c.chatID, cmd)
	if !res.Handled {
		c.println("Unknown command. Type /help for available commands.")
		return
	}
	if res.Response != "" {
		c.println(res.Response)
	}
}

func (c *CLI) submitImage(ctx context.Context, cmd *chat.Command) {
	if len(cmd.Args) == 0 {
		c.println("Usage: /image <path>")
		return
	}
	screen, err := c.hub.Router(c.chatID).Screen()
	if err != nil {
		c.println(chat.Notice(err))
		return
	}
	path := strings.Join(cmd.Args, " ")
	data, err := c.readFile(path)
	if err != nil {
		c.println("Cannot read image: " + err.Error())
		return
	}
	img, err := domain.NewImageFile(filepath.Base(path), data)
	if err != nil {
		c.println(chat.Notice(err))
		return
	}
	if err := screen.Attach(img); err != nil {
		c.println(chat.Notice(err))
		return
	}
	if err := screen.SubmitImage(ctx); err != nil {
		c.println(chat.Notice(err))
	}
}

func (c *CLI) play(cmd *chat.Command) {
	c.outMu.Lock()
	n := len(c.audio)
	c.outMu.Unlock()
	if n == 0 {
		c.println("No audio to play yet.")
		return
	}

	idx := n
	if len(cmd.Args) > 0 {
		v, err := strconv.Atoi(cmd.Args[0])
		if err != nil || v < 1 || v > n {
			c.println(fmt.Sprintf("Usage: /play <1-%d>", n))
			return
		}
		idx = v
	}
	c.outMu.Lock()
	url := c.audio[idx-1]
	c.outMu.Unlock()

	if err := c.player.Play(url); err != nil {
		c.println(chat.Notice(err))
		return
	}
	c.println(fmt.Sprintf("Playing audio #%d (%s)", idx, c.player.Duration()))
}

func (c *CLI) onMessage(e bus.Event) {
	if e.ChatID != c.chatID || e.Message == nil {
		return
	}
	c.stopThinking()
	b := render.Render(*e.Message)

	c.outMu.Lock()
	defer c.outMu.Unlock()
	text := b.Text()
	if b.Playable {
		c.audio = append(c.audio, b.AudioURL)
		text = strings.TrimSuffix(text, "[audio]") + fmt.Sprintf("[audio #%d, /play %d]", len(c.audio), len(c.audio))
	}
	fmt.Fprint(c.out, "\r\033[K")
	fmt.Fprintln(c.out, text)
}

func (c *CLI) onState(e bus.Event) {
	if e.ChatID != c.chatID {
		return
	}
	switch chat.State(e.State) {
	case chat.StateRecording:
		c.startThinking("Listening...")
	case chat.StateAnalyzing:
		c.startThinking("Analyzing image...")
	case chat.StatePending:
		c.startThinking("Thinking...")
	default:
		c.stopThinking()
	}
}

func (c *CLI) startThinking(label string) {
	if !c.spinner {
		return
	}
	c.stopThinking()

	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.thinking = true
	stop := make(chan struct{})
	done := make(chan struct{})
	c.thinkStop, c.thinkDone = stop, done
	go func() {
		defer close(done)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.outMu.Lock()
				fmt.Fprintf(c.out, "\r%s %s", frames[i%len(frames)], label)
				c.outMu.Unlock()
			}
		}
	}()
}

func (c *CLI) stopThinking() {
	c.outMu.Lock()
	if !c.thinking {
		c.outMu.Unlock()
		return
	}
	c.thinking = false
	close(c.thinkStop)
	done := c.thinkDone
	c.outMu.Unlock()
	<-done
}

func (c *CLI) prompt() {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	role := c.hub.Router(c.chatID).Role()
	if role == domain.RoleUnset {
		fmt.Fprint(c.out, "> ")
		return
	}
	fmt.Fprintf(c.out, "%s> ", role)
}

func (c *CLI) println(s string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintln(c.out, s)
}
